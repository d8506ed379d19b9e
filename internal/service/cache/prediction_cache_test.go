package cache

import (
	"context"
	"testing"
	"time"

	"IPOPulse/internal/domain/models"
	pkgcache "IPOPulse/pkg/cache"
	"IPOPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingMetrics struct {
	hits, misses int
}

func (m *countingMetrics) RecordRequest(string, string) {}
func (m *countingMetrics) RecordWarmup(bool) {}
func (m *countingMetrics) RecordStage(string, string, float64) {}
func (m *countingMetrics) RecordRun(bool, float64) {}
func (m *countingMetrics) RecordPrediction(string) {}
func (m *countingMetrics) RecordCache(hit bool) {
	if hit {
		m.hits++
	} else {
		m.misses++
	}
}

func TestPredictionCacheKeyedBySymbolAndDate(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	m := &countingMetrics{}
	c := NewPredictionCache(mem, time.Hour, m, logger.NewNop())
	ctx := context.Background()

	c.Put(ctx, &models.ConsensusPrediction{Symbol: "ACME", Date: "2026-10-16", Recommendation: models.RecBuy})

	got, ok := c.Get(ctx, "acme", "2026-10-16")
	require.True(t, ok)
	assert.Equal(t, models.RecBuy, got.Recommendation)

	_, ok = c.Get(ctx, "ACME", "2026-10-17")
	assert.False(t, ok)
	assert.Equal(t, 1, m.hits)
	assert.Equal(t, 1, m.misses)
}

func TestPredictionCacheInvalidate(t *testing.T) {
	mem := pkgcache.NewMemoryCache()
	defer mem.Close()
	c := NewPredictionCache(mem, time.Hour, nil, logger.NewNop())
	ctx := context.Background()

	for _, s := range []string{"ACME", "BETA"} {
		c.Put(ctx, &models.ConsensusPrediction{Symbol: s, Date: "2026-10-16"})
	}
	c.Put(ctx, &models.ConsensusPrediction{Symbol: "ACME", Date: "2026-10-15"})

	c.Invalidate(ctx, "2026-10-16", "ACME")
	_, ok := c.Get(ctx, "ACME", "2026-10-16")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "BETA", "2026-10-16")
	assert.True(t, ok)

	c.InvalidateDate(ctx, "2026-10-16")
	_, ok = c.Get(ctx, "BETA", "2026-10-16")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "ACME", "2026-10-15")
	assert.True(t, ok)
}
