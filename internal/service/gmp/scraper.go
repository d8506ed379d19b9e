// Package gmp scrapes grey-market premium tables from public IPO sites.
package gmp

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/service/ratelimit"
	xhttp "IPOPulse/pkg/http"
	"IPOPulse/pkg/logger"
)

const (
	limiterKey   = "premium-sources"
	maxPageBytes = 4 << 20
)

type Option func(*Scraper)

type Scraper struct {
	client   *xhttp.Client
	sources  []SourceSpec
	limiter  *ratelimit.Limiter
	interval time.Duration
	timeout  time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

func NewScraper(lgr *logger.Logger, limiter *ratelimit.Limiter, opts ...Option) *Scraper {
	s := &Scraper{
		sources:  DefaultSources(),
		limiter:  limiter,
		interval: 2 * time.Second,
		timeout:  30 * time.Second,
		logger:   lgr.With(logger.Component("gmp")),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = ratelimit.New()
	}
	s.client = xhttp.NewClient(
		xhttp.WithTimeout(s.timeout),
		xhttp.WithHeaders(map[string]string{
			"User-Agent":      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "en-US,en;q=0.9",
		}),
	)
	return s
}

func WithSources(sources []SourceSpec) Option {
	return func(s *Scraper) { s.sources = sources }
}

// WithInterval sets the minimum spacing between page fetches.
func WithInterval(d time.Duration) Option {
	return func(s *Scraper) { s.interval = d }
}

func WithTimeout(d time.Duration) Option {
	return func(s *Scraper) { s.timeout = d }
}

// FetchPremiumQuotes polls every source in turn. A source that fails on both
// its primary and backup URL is skipped; the call fails only when every
// source fails.
func (s *Scraper) FetchPremiumQuotes(ctx context.Context) ([]models.PremiumQuote, error) {
	var (
		all      []models.PremiumQuote
		failures []string
		lastErr  error
	)
	for _, src := range s.sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		quotes, err := s.fetchSource(ctx, src)
		if err != nil {
			lastErr = err
			failures = append(failures, src.Name)
			s.logger.Warn("premium source failed", logger.String("source", src.Name), logger.Error(err))
			continue
		}
		s.logger.Info("premium source scraped", logger.String("source", src.Name), logger.Int("quotes", len(quotes)))
		all = append(all, quotes...)
	}

	if len(s.sources) > 0 && len(failures) == len(s.sources) {
		return nil, &errs.Error{
			Kind: errs.KindExhausted,
			Op:   "gmp.fetch",
			Msg:  "all sources failed: " + strings.Join(failures, ", "),
			Err:  lastErr,
		}
	}
	return all, nil
}

func (s *Scraper) fetchSource(ctx context.Context, src SourceSpec) ([]models.PremiumQuote, error) {
	urls := []string{src.URL}
	if src.BackupURL != "" {
		urls = append(urls, src.BackupURL)
	}

	var lastErr error
	for _, u := range urls {
		quotes, err := s.fetchPage(ctx, src, u)
		if err == nil && len(quotes) > 0 {
			return quotes, nil
		}
		if err == nil {
			err = errs.Newf(errs.KindMalformed, "gmp.parse", "no premium rows at %s", u)
		}
		lastErr = err
	}
	return nil, lastErr
}

func (s *Scraper) fetchPage(ctx context.Context, src SourceSpec, pageURL string) ([]models.PremiumQuote, error) {
	op := "gmp.fetch " + src.Name
	if s.interval > 0 {
		if err := s.limiter.Wait(ctx, limiterKey, 1, 1/s.interval.Seconds()); err != nil {
			return nil, err
		}
	}

	resp, err := s.client.SendRequest(ctx, &xhttp.RequestOptions{Method: xhttp.MethodGet, URL: pageURL})
	if err != nil {
		return nil, errs.E(errs.KindTransient, op, err)
	}
	body, err := xhttp.ReadBody(resp, maxPageBytes)
	if err != nil {
		return nil, errs.E(errs.KindTransient, op, err)
	}
	switch {
	case resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests:
		return nil, &errs.Error{Kind: errs.KindBlocked, Op: op, Status: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, &errs.Error{Kind: errs.KindTransient, Op: op, Status: resp.StatusCode}
	}

	quotes, err := ParseTable(bytes.NewReader(body), src, s.now())
	if err != nil {
		return nil, errs.E(errs.KindMalformed, op, fmt.Errorf("parse html: %w", err))
	}
	return quotes, nil
}
