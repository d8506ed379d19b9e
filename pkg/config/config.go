package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"15s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"120s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
		RunRateLimit    float64       `yaml:"run_rate_limit" default:"0.2"`
		RunRateBurst    int           `yaml:"run_rate_burst" default:"2"`
		WSSendBuffer    int           `yaml:"ws_send_buffer" default:"64"`
		WSOrigins       []string      `yaml:"ws_origins"`
	} `yaml:"server"`
	Logging struct {
		Level   string `yaml:"level" default:"info"`
		Format  string `yaml:"format" default:"console"`
		Output  string `yaml:"output" default:"stdout"`
		Collect struct {
			Enabled   bool          `yaml:"enabled"`
			Topic     string        `yaml:"topic" default:"ipo.logs"`
			Interval  time.Duration `yaml:"interval" default:"30s"`
			Threshold int           `yaml:"threshold" default:"100"`
		} `yaml:"collect"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Session struct {
		BaseURL             string        `yaml:"base_url" default:"https://www.nseindia.com"`
		APIPath             string        `yaml:"api_path" default:"/api"`
		Duration            time.Duration `yaml:"duration" default:"10m"`
		SafetyMargin        time.Duration `yaml:"safety_margin" default:"30s"`
		MinDelay            time.Duration `yaml:"min_delay" default:"1s"`
		MaxDelay            time.Duration `yaml:"max_delay" default:"3s"`
		MaxAttempts         int           `yaml:"max_attempts" default:"3"`
		RequestTimeout      time.Duration `yaml:"request_timeout" default:"30s"`
		BlockedBackoffMin   time.Duration `yaml:"blocked_backoff_min" default:"5s"`
		BlockedBackoffMax   time.Duration `yaml:"blocked_backoff_max" default:"10s"`
		TransientBackoffMin time.Duration `yaml:"transient_backoff_min" default:"2s"`
		TransientBackoffMax time.Duration `yaml:"transient_backoff_max" default:"4s"`
		BreakerFailures     uint32        `yaml:"breaker_failures" default:"5"`
		BreakerCooldown     time.Duration `yaml:"breaker_cooldown" default:"2m"`
		UserAgent           string        `yaml:"user_agent"`
	} `yaml:"session"`
	Acquisition struct {
		Strategy        string        `yaml:"strategy" default:"primary"`
		FallbackOnError bool          `yaml:"fallback_on_error" default:"true"`
		FixtureMaxAge   time.Duration `yaml:"fixture_max_age" default:"72h"`
		Premium         struct {
			Enabled        bool          `yaml:"enabled" default:"true"`
			RequestTimeout time.Duration `yaml:"request_timeout" default:"30s"`
			Interval       time.Duration `yaml:"interval" default:"2s"`
			Sources        []string      `yaml:"sources"`
		} `yaml:"premium"`
	} `yaml:"acquisition"`
	AI struct {
		Provider    string        `yaml:"provider" default:"openai"`
		APIKey      string        `yaml:"api_key"`
		BaseURL     string        `yaml:"base_url"`
		Model       string        `yaml:"model" default:"gpt-4o-mini"`
		Temperature float32       `yaml:"temperature" default:"0.2"`
		Timeout     time.Duration `yaml:"timeout" default:"45s"`
		ServiceURL  string        `yaml:"service_url"`
		MaxRetries  int           `yaml:"max_retries" default:"2"`
	} `yaml:"ai"`
	Pipeline struct {
		Workers       int           `yaml:"workers" default:"3"`
		StageTimeout  time.Duration `yaml:"stage_timeout" default:"5m"`
		RunTimeout    time.Duration `yaml:"run_timeout" default:"30m"`
		CacheTTL      time.Duration `yaml:"cache_ttl" default:"6h"`
		PublishBuffer int           `yaml:"publish_buffer" default:"256"`
		PublishRetry  time.Duration `yaml:"publish_retry" default:"100ms"`
		PublishMaxGap time.Duration `yaml:"publish_max_gap" default:"5s"`
	} `yaml:"pipeline"`
	Fusion struct {
		WithPremium struct {
			Premium float64 `yaml:"premium" default:"0.5"`
			Math    float64 `yaml:"math" default:"0.3"`
			AI      float64 `yaml:"ai" default:"0.2"`
		} `yaml:"with_premium"`
		WithoutPremium struct {
			Math float64 `yaml:"math" default:"0.6"`
			AI   float64 `yaml:"ai" default:"0.4"`
		} `yaml:"without_premium"`
	} `yaml:"fusion"`
	Storage struct {
		Backend string `yaml:"backend" default:"file"`
		Dir     string `yaml:"dir" default:"data"`
		Source  string `yaml:"source" default:"ipopulse"`
	} `yaml:"storage"`
	Cache struct {
		MemoryMaxSize   int           `yaml:"memory_max_size" default:"5000"`
		CleanupInterval time.Duration `yaml:"cleanup_interval" default:"1m"`
		Layered         bool          `yaml:"layered"`
		L1TTL           time.Duration `yaml:"l1_ttl" default:"1m"`
		Prefix          string        `yaml:"prefix" default:"ipopulse"`
	} `yaml:"cache"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Host     string `yaml:"host" default:"localhost"`
		Port     int    `yaml:"port" default:"6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size" default:"10"`
		MinIdle  int    `yaml:"min_idle" default:"2"`
	} `yaml:"redis"`
	Queue struct {
		Enabled       bool          `yaml:"enabled"`
		Mode          string        `yaml:"mode" default:"producer-consumer"`
		Name          string        `yaml:"name" default:"ipopulse:stage-refresh"`
		Workers       int           `yaml:"workers" default:"2"`
		MaxRetries    int           `yaml:"max_retries" default:"3"`
		RetryInterval time.Duration `yaml:"retry_interval" default:"30s"`
	} `yaml:"queue"`
	Kafka struct {
		Enabled          bool          `yaml:"enabled"`
		Brokers          []string      `yaml:"brokers"`
		PredictionsTopic string        `yaml:"predictions_topic" default:"ipo.predictions"`
		RunRequestsTopic string        `yaml:"run_requests_topic" default:"ipo.run.requests"`
		GroupID          string        `yaml:"group_id" default:"ipopulse"`
		RequiredAcks     int           `yaml:"required_acks" default:"1"`
		Compression      string        `yaml:"compression" default:"snappy"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		RetryMax         int           `yaml:"retry_max" default:"3"`
		DLQTopic         string        `yaml:"dlq_topic"`
	} `yaml:"kafka"`
	History struct {
		Backend string `yaml:"backend" default:"none"`
	} `yaml:"history"`
	ClickHouse struct {
		Host         string        `yaml:"host" default:"localhost"`
		Port         int           `yaml:"port" default:"9000"`
		Database     string        `yaml:"database" default:"ipopulse"`
		User         string        `yaml:"user" default:"default"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout  time.Duration `yaml:"read_timeout" default:"30s"`
		PoolSize     int           `yaml:"pool_size" default:"4"`
	} `yaml:"clickhouse"`
	Postgres struct {
		DSN      string `yaml:"dsn"`
		MaxConns int32  `yaml:"max_conns" default:"4"`
	} `yaml:"postgres"`
}

// Default returns a configuration populated from struct defaults only.
func Default() (*Config, error) {
	var c Config
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	return &c, nil
}

// Load reads and parses a YAML configuration file on top of the defaults.
func Load(path string) (*Config, error) {
	c, err := Default()
	if err != nil {
		return nil, err
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML (or defaults when path is empty)
// and overrides it with IPOPULSE_* environment variables.
func LoadWithEnv(path string) (*Config, error) {
	var (
		c   *Config
		err error
	)
	if path == "" {
		c, err = Default()
	} else {
		c, err = Load(path)
	}
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.Getenv)

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("IPOPULSE_ENV"); v != "" {
		c.Environment = v
	}
	if v := getenv("IPOPULSE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := getenv("IPOPULSE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := getenv("IPOPULSE_ACQUISITION_STRATEGY"); v != "" {
		c.Acquisition.Strategy = v
	}
	if v := getenv("IPOPULSE_AI_API_KEY"); v != "" {
		c.AI.APIKey = v
	} else if v := getenv("OPENAI_API_KEY"); v != "" && c.AI.APIKey == "" {
		c.AI.APIKey = v
	}
	if v := getenv("IPOPULSE_AI_PROVIDER"); v != "" {
		c.AI.Provider = v
	}
	if v := getenv("IPOPULSE_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := getenv("IPOPULSE_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := getenv("IPOPULSE_REDIS_HOST"); v != "" {
		c.Redis.Host = v
		c.Redis.Enabled = true
	}
	if v := getenv("IPOPULSE_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("IPOPULSE_HISTORY_BACKEND"); v != "" {
		c.History.Backend = v
	}
	if v := getenv("IPOPULSE_POSTGRES_DSN"); v != "" {
		c.Postgres.DSN = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	switch c.Acquisition.Strategy {
	case "primary", "fixture":
	default:
		return fmt.Errorf("acquisition.strategy must be 'primary' or 'fixture', got %q", c.Acquisition.Strategy)
	}
	switch c.AI.Provider {
	case "openai", "http", "none":
	default:
		return fmt.Errorf("ai.provider must be 'openai', 'http' or 'none', got %q", c.AI.Provider)
	}
	if c.AI.Provider == "http" && c.AI.ServiceURL == "" {
		return fmt.Errorf("ai.service_url is required when ai.provider is 'http'")
	}
	switch c.Storage.Backend {
	case "file":
		if c.Storage.Dir == "" {
			return fmt.Errorf("storage.dir is required for the file backend")
		}
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("storage.backend 'redis' requires redis.enabled")
		}
	default:
		return fmt.Errorf("storage.backend must be 'file' or 'redis', got %q", c.Storage.Backend)
	}
	switch c.History.Backend {
	case "none", "clickhouse":
	case "postgres":
		if c.Postgres.DSN == "" {
			return fmt.Errorf("postgres.dsn is required when history.backend is 'postgres'")
		}
	default:
		return fmt.Errorf("history.backend must be 'none', 'clickhouse' or 'postgres', got %q", c.History.Backend)
	}
	if c.Session.MinDelay > c.Session.MaxDelay {
		return fmt.Errorf("session.min_delay must not exceed session.max_delay")
	}
	if c.Session.MaxAttempts < 1 {
		return fmt.Errorf("session.max_attempts must be at least 1")
	}
	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("pipeline.workers must be at least 1")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	if c.Queue.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("queue.enabled requires redis.enabled")
	}
	if c.Cache.Layered && !c.Redis.Enabled {
		return fmt.Errorf("cache.layered requires redis.enabled")
	}
	switch c.Queue.Mode {
	case "producer-consumer", "producer-only", "consumer-only":
	default:
		return fmt.Errorf("queue.mode must be 'producer-consumer', 'producer-only' or 'consumer-only', got %q", c.Queue.Mode)
	}
	wp := c.Fusion.WithPremium
	if !sumsToOne(wp.Premium, wp.Math, wp.AI) {
		return fmt.Errorf("fusion.with_premium weights must sum to 1")
	}
	if !sumsToOne(c.Fusion.WithoutPremium.Math, c.Fusion.WithoutPremium.AI) {
		return fmt.Errorf("fusion.without_premium weights must sum to 1")
	}
	return nil
}

func sumsToOne(weights ...float64) bool {
	var sum float64
	for _, w := range weights {
		if w < 0 {
			return false
		}
		sum += w
	}
	return sum > 0.999 && sum < 1.001
}
