package session

import "time"

type Config struct {
	BaseURL        string
	APIPath        string
	Duration       time.Duration
	SafetyMargin   time.Duration
	MinDelay       time.Duration
	MaxDelay       time.Duration
	MaxAttempts    int
	RequestTimeout time.Duration

	BlockedBackoffMin   time.Duration
	BlockedBackoffMax   time.Duration
	TransientBackoffMin time.Duration
	TransientBackoffMax time.Duration

	BreakerFailures uint32
	BreakerCooldown time.Duration

	UserAgent string
}

type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		BaseURL:             "https://www.nseindia.com",
		APIPath:             "/api",
		Duration:            10 * time.Minute,
		SafetyMargin:        30 * time.Second,
		MinDelay:            time.Second,
		MaxDelay:            3 * time.Second,
		MaxAttempts:         3,
		RequestTimeout:      30 * time.Second,
		BlockedBackoffMin:   5 * time.Second,
		BlockedBackoffMax:   10 * time.Second,
		TransientBackoffMin: 2 * time.Second,
		TransientBackoffMax: 4 * time.Second,
		BreakerFailures:     5,
		BreakerCooldown:     2 * time.Minute,
		UserAgent:           "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	}
}

func WithBaseURL(base string) Option {
	return func(c *Config) { c.BaseURL = base }
}

func WithAPIPath(path string) Option {
	return func(c *Config) { c.APIPath = path }
}

// WithDuration sets the session lifetime and the extra age tolerated past it.
func WithDuration(d, margin time.Duration) Option {
	return func(c *Config) {
		c.Duration = d
		c.SafetyMargin = margin
	}
}

// WithDelay sets the random spacing window between consecutive requests.
func WithDelay(min, max time.Duration) Option {
	return func(c *Config) {
		c.MinDelay = min
		c.MaxDelay = max
	}
}

func WithMaxAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.MaxAttempts = n
		}
	}
}

func WithRequestTimeout(d time.Duration) Option {
	return func(c *Config) { c.RequestTimeout = d }
}

func WithBlockedBackoff(min, max time.Duration) Option {
	return func(c *Config) {
		c.BlockedBackoffMin = min
		c.BlockedBackoffMax = max
	}
}

func WithTransientBackoff(min, max time.Duration) Option {
	return func(c *Config) {
		c.TransientBackoffMin = min
		c.TransientBackoffMax = max
	}
}

// WithBreaker opens the circuit after n consecutive exhausted requests
// and keeps it open for cooldown.
func WithBreaker(n uint32, cooldown time.Duration) Option {
	return func(c *Config) {
		c.BreakerFailures = n
		c.BreakerCooldown = cooldown
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Config) { c.UserAgent = ua }
}
