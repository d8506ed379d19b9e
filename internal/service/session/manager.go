// Package session keeps a warmed, cookie-bearing connection to the exchange
// website and wraps every API call in pacing, retry and circuit breaking.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/repository"
	"IPOPulse/internal/service/ratelimit"
	xhttp "IPOPulse/pkg/http"
	"IPOPulse/pkg/logger"

	"github.com/sony/gobreaker"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateActive        State = "active"
	StateExpired       State = "expired"
)

const maxPayloadBytes = 8 << 20

// Info is a point-in-time view of the session for status endpoints.
type Info struct {
	State            State      `json:"state"`
	Active           bool       `json:"active"`
	CreatedAt        *time.Time `json:"createdAt,omitempty"`
	ExpiresAt        *time.Time `json:"expiresAt,omitempty"`
	LastRequestAt    *time.Time `json:"lastRequestAt,omitempty"`
	AgeSeconds       float64    `json:"ageSeconds"`
	ExpiresInSeconds float64    `json:"expiresInSeconds"`
	Warmups          int64      `json:"warmups"`
	Breaker          string     `json:"breaker"`
}

type Manager struct {
	cfg     *Config
	client  *xhttp.Client
	pacer   *ratelimit.Pacer
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
	metrics repository.Metrics

	refreshMu sync.Mutex // at most one warm-up in flight

	mu        sync.RWMutex
	state     State
	createdAt time.Time
	expiresAt time.Time
	warmups   int64

	rndMu sync.Mutex
	rnd   *rand.Rand
	now   func() time.Time
}

func NewManager(lgr *logger.Logger, metrics repository.Metrics, opts ...Option) *Manager {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if metrics == nil {
		metrics = repository.NopMetrics{}
	}

	m := &Manager{
		cfg: cfg,
		client: xhttp.NewClient(
			xhttp.WithTimeout(cfg.RequestTimeout),
			xhttp.WithCookieJar(),
			xhttp.WithHeaders(browserHeaders(cfg.UserAgent)),
		),
		pacer:   ratelimit.NewPacer(cfg.MinDelay, cfg.MaxDelay),
		logger:  lgr.With(logger.Component("session")),
		metrics: metrics,
		state:   StateUninitialized,
		rnd:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
	}

	m.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "nse",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return cfg.BreakerFailures > 0 && counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		IsSuccessful: func(err error) bool {
			if err == nil || errors.Is(err, context.Canceled) {
				return true
			}
			// the source answered; only retry exhaustion counts against it
			return !errs.IsKind(err, errs.KindExhausted)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Warn("circuit breaker state change",
				logger.String("breaker", name),
				logger.String("from", from.String()),
				logger.String("to", to.String()))
		},
	})
	return m
}

func browserHeaders(ua string) map[string]string {
	return map[string]string{
		"User-Agent":      ua,
		"Accept-Language": "en-US,en;q=0.9",
		"Accept-Encoding": "gzip, deflate",
		"Connection":      "keep-alive",
		"Cache-Control":   "no-cache",
		"Pragma":          "no-cache",
	}
}

func (m *Manager) apiHeaders() map[string]string {
	return map[string]string{
		"Accept":           "application/json, text/plain, */*",
		"Referer":          xhttp.JoinURL(m.cfg.BaseURL, "/market-data/all-upcoming-issues-ipo"),
		"X-Requested-With": "XMLHttpRequest",
	}
}

// live reports whether the current session may be used without refreshing.
func (m *Manager) live(now time.Time) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateActive {
		return false
	}
	if !now.Before(m.expiresAt) {
		return false
	}
	return now.Sub(m.createdAt) <= m.cfg.Duration+m.cfg.SafetyMargin
}

// EnsureSession warms up the session when it is missing or expired. Callers
// arriving during a warm-up wait for it and reuse its result.
func (m *Manager) EnsureSession(ctx context.Context) error {
	if m.live(m.now()) {
		return nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	if m.live(m.now()) {
		return nil
	}
	m.expire()
	return m.warmUp(ctx)
}

// Refresh forces a new warm-up regardless of the current state.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	m.expire()
	return m.warmUp(ctx)
}

// Invalidate marks the session expired; the next request refreshes it.
func (m *Manager) Invalidate() {
	m.expire()
}

func (m *Manager) expire() {
	m.mu.Lock()
	if m.state == StateActive {
		m.state = StateExpired
	}
	m.mu.Unlock()
}

func (m *Manager) warmUp(ctx context.Context) error {
	const op = "session.warmup"
	start := m.now()

	if err := m.pacer.Wait(ctx); err != nil {
		return err
	}
	m.client.ResetCookies()
	resp, err := m.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method: xhttp.MethodGet,
		URL:    m.cfg.BaseURL,
		Headers: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		},
	})
	if err != nil {
		m.metrics.RecordWarmup(false)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errs.E(errs.KindTransient, op, err)
	}
	_, _ = xhttp.ReadBody(resp, maxPayloadBytes)

	if resp.StatusCode != http.StatusOK {
		m.metrics.RecordWarmup(false)
		kind := classifyStatus(resp.StatusCode)
		if kind == errs.KindSessionExpired {
			kind = errs.KindBlocked
		}
		return &errs.Error{Kind: kind, Op: op, Status: resp.StatusCode}
	}

	now := m.now()
	m.mu.Lock()
	m.state = StateActive
	m.createdAt = now
	m.expiresAt = now.Add(m.cfg.Duration)
	m.warmups++
	m.mu.Unlock()

	m.metrics.RecordWarmup(true)
	m.logger.Info("session established",
		logger.Duration("took_ms", now.Sub(start)),
		logger.Int("cookies", len(m.client.Cookies(m.cfg.BaseURL))))
	return nil
}

// Request calls an API endpoint and returns its JSON body. Failures are
// *errs.Error values: Malformed for unusable 200 bodies, Exhausted once
// every attempt has been spent, Blocked when the circuit is open.
func (m *Manager) Request(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	out, err := m.breaker.Execute(func() (interface{}, error) {
		return m.requestWithRetry(ctx, endpoint, params)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		m.metrics.RecordRequest(endpoint, "circuit_open")
		return nil, &errs.Error{Kind: errs.KindBlocked, Op: "session.request", Msg: "circuit open", Err: err}
	}
	if err != nil {
		return nil, err
	}
	return out.(json.RawMessage), nil
}

func (m *Manager) requestWithRetry(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	op := "session.request " + endpoint
	limit := m.cfg.MaxAttempts
	refreshed := false

	var last error
	for attempt := 1; attempt <= limit; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := m.EnsureSession(ctx); err != nil {
			last = err
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			m.logger.Warn("session warm-up failed",
				logger.String("endpoint", endpoint),
				logger.Int("attempt", attempt),
				logger.Error(err))
			if attempt < limit {
				if err := m.backoff(ctx, errs.KindOf(err)); err != nil {
					return nil, err
				}
			}
			continue
		}

		if err := m.pacer.Wait(ctx); err != nil {
			return nil, err
		}

		payload, err := m.attempt(ctx, endpoint, params)
		if err == nil {
			m.metrics.RecordRequest(endpoint, "ok")
			return payload, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		last = err
		kind := errs.KindOf(err)
		m.metrics.RecordRequest(endpoint, kind.String())
		m.logger.Warn("request attempt failed",
			logger.String("endpoint", endpoint),
			logger.Int("attempt", attempt),
			logger.String("kind", kind.String()),
			logger.Error(err))

		switch kind {
		case errs.KindSessionExpired:
			m.Invalidate()
			if refreshed {
				return nil, err
			}
			refreshed = true
			// a rejected session always earns one retry on a fresh one
			if attempt == limit {
				limit++
			}
		case errs.KindBlocked, errs.KindTransient:
			if attempt < limit {
				if err := m.backoff(ctx, kind); err != nil {
					return nil, err
				}
			}
		default:
			return nil, err
		}
	}

	return nil, &errs.Error{
		Kind: errs.KindExhausted,
		Op:   op,
		Msg:  fmt.Sprintf("%d attempts", limit),
		Err:  last,
	}
}

func (m *Manager) attempt(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	op := "session.request " + endpoint

	// cancelling ctx stops new attempts; the one in flight runs to its own timeout
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.RequestTimeout)
	defer cancel()

	resp, err := m.client.SendRequest(reqCtx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         xhttp.JoinURL(xhttp.JoinURL(m.cfg.BaseURL, m.cfg.APIPath), endpoint),
		Headers:     m.apiHeaders(),
		QueryParams: params,
	})
	if err != nil {
		if xhttp.IsTimeout(err) {
			return nil, &errs.Error{Kind: errs.KindTransient, Op: op, Msg: "timed out after " + m.cfg.RequestTimeout.String(), Err: err}
		}
		return nil, errs.E(errs.KindTransient, op, err)
	}

	body, readErr := xhttp.ReadBody(resp, maxPayloadBytes)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &errs.Error{Kind: classifyStatus(resp.StatusCode), Op: op, Status: resp.StatusCode}
	}
	if readErr != nil {
		return nil, errs.E(errs.KindTransient, op, readErr)
	}
	if len(body) == 0 || !json.Valid(body) {
		return nil, &errs.Error{Kind: errs.KindMalformed, Op: op, Status: resp.StatusCode, Msg: "response is not JSON"}
	}
	return json.RawMessage(body), nil
}

func classifyStatus(status int) errs.Kind {
	switch status {
	case http.StatusUnauthorized:
		return errs.KindSessionExpired
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return errs.KindBlocked
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusGatewayTimeout, http.StatusRequestTimeout:
		return errs.KindTransient
	case http.StatusNotFound:
		return errs.KindNotFound
	default:
		return errs.KindInvalid
	}
}

func (m *Manager) backoff(ctx context.Context, kind errs.Kind) error {
	min, max := m.cfg.TransientBackoffMin, m.cfg.TransientBackoffMax
	if kind == errs.KindBlocked {
		min, max = m.cfg.BlockedBackoffMin, m.cfg.BlockedBackoffMax
	}
	m.rndMu.Lock()
	d := ratelimit.Jitter(m.rnd, min, max)
	m.rndMu.Unlock()
	return ratelimit.Sleep(ctx, d)
}

func (m *Manager) Info() Info {
	now := m.now()
	m.mu.RLock()
	defer m.mu.RUnlock()

	info := Info{
		State:   m.state,
		Warmups: m.warmups,
		Breaker: m.breaker.State().String(),
	}
	if m.state != StateUninitialized {
		created, expires := m.createdAt, m.expiresAt
		info.CreatedAt = &created
		info.ExpiresAt = &expires
		info.AgeSeconds = now.Sub(created).Seconds()
		if left := expires.Sub(now); left > 0 {
			info.ExpiresInSeconds = left.Seconds()
		}
		info.Active = m.state == StateActive && now.Before(expires) &&
			now.Sub(created) <= m.cfg.Duration+m.cfg.SafetyMargin
	}
	if last := m.pacer.Last(); !last.IsZero() {
		info.LastRequestAt = &last
	}
	return info
}

// Close releases idle connections.
func (m *Manager) Close() {
	m.client.CloseIdleConnections()
}
