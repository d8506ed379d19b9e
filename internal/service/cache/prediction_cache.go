// Package cache keeps fused predictions keyed by (symbol, date) so read
// paths do not hit storage for every request.
package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/domain/repository"
	pkgcache "IPOPulse/pkg/cache"
	"IPOPulse/pkg/logger"
)

const fusionPrefix = "fusion"

// PredictionCache is a TTL cache of ConsensusPredictions over a pkg/cache
// Service (memory, Redis or layered).
type PredictionCache struct {
	svc     pkgcache.Service
	ttl     time.Duration
	metrics repository.Metrics
	logger  *logger.Logger
}

func NewPredictionCache(svc pkgcache.Service, ttl time.Duration, metrics repository.Metrics, lgr *logger.Logger) *PredictionCache {
	if metrics == nil {
		metrics = repository.NopMetrics{}
	}
	return &PredictionCache{
		svc:     svc,
		ttl:     ttl,
		metrics: metrics,
		logger:  lgr.With(logger.Component("prediction_cache")),
	}
}

func key(symbol, date string) string {
	return pkgcache.Key(fusionPrefix, strings.ToUpper(symbol), date)
}

// Get returns the cached prediction and whether it was present.
func (c *PredictionCache) Get(ctx context.Context, symbol, date string) (*models.ConsensusPrediction, bool) {
	var pred models.ConsensusPrediction
	err := c.svc.Get(ctx, key(symbol, date), &pred)
	switch {
	case err == nil:
		c.metrics.RecordCache(true)
		return &pred, true
	case errors.Is(err, pkgcache.ErrCacheMiss):
	default:
		c.logger.Warn("prediction cache read failed", logger.String("symbol", symbol), logger.Error(err))
	}
	c.metrics.RecordCache(false)
	return nil, false
}

func (c *PredictionCache) Put(ctx context.Context, pred *models.ConsensusPrediction) {
	if err := c.svc.Set(ctx, key(pred.Symbol, pred.Date), pred, c.ttl); err != nil {
		c.logger.Warn("prediction cache write failed", logger.String("symbol", pred.Symbol), logger.Error(err))
	}
}

// Invalidate drops the entries of the given symbols for date.
func (c *PredictionCache) Invalidate(ctx context.Context, date string, symbols ...string) {
	if len(symbols) == 0 {
		return
	}
	keys := make([]string, len(symbols))
	for i, s := range symbols {
		keys[i] = key(s, date)
	}
	if err := c.svc.Delete(ctx, keys...); err != nil {
		c.logger.Warn("prediction cache invalidate failed", logger.String("date", date), logger.Error(err))
	}
}

// InvalidateDate drops every entry for date.
func (c *PredictionCache) InvalidateDate(ctx context.Context, date string) {
	if err := c.svc.DeleteByPattern(ctx, pkgcache.Key(fusionPrefix, "*", date)); err != nil {
		c.logger.Warn("prediction cache invalidate failed", logger.String("date", date), logger.Error(err))
	}
}
