package acquisition

import (
	"context"
	"testing"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/repository"
	"IPOPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	listings []models.ListingRecord
	snap     *models.SubscriptionSnapshot
	quotes   []models.PremiumQuote
	err      error
	calls    int
}

func (s *stubSource) FetchListings(context.Context, models.ListingCategory, string) ([]models.ListingRecord, error) {
	s.calls++
	return s.listings, s.err
}

func (s *stubSource) FetchSubscription(context.Context, string) (*models.SubscriptionSnapshot, error) {
	s.calls++
	return s.snap, s.err
}

func (s *stubSource) FetchPremiumQuotes(context.Context) ([]models.PremiumQuote, error) {
	s.calls++
	return s.quotes, s.err
}

func TestFixtureBuiltinData(t *testing.T) {
	f := NewFixture(nil, 0, logger.NewNop())
	ctx := context.Background()

	recs, err := f.FetchListings(ctx, models.CategoryCurrent, "2026-10-16")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "ACME", recs[0].Symbol)
	assert.Equal(t, "16-Oct-2026", recs[0].CloseDate)

	snap, err := f.FetchSubscription(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, 15.5, snap.Total)
	assert.Equal(t, 12.1, snap.Institutional)

	_, err = f.FetchSubscription(ctx, "NOPE")
	assert.ErrorIs(t, err, errs.ErrNotFound)

	quotes, err := f.FetchPremiumQuotes(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, quotes)
}

func TestPrimaryRecordsLastGoodCopies(t *testing.T) {
	store, err := repository.NewFileStorage(t.TempDir(), "test")
	require.NoError(t, err)
	ctx := context.Background()

	src := &stubSource{
		listings: []models.ListingRecord{{Symbol: "LIVE", CompanyName: "Live Co"}},
		snap:     &models.SubscriptionSnapshot{Symbol: "LIVE", Total: 2, Institutional: 1},
		quotes:   []models.PremiumQuote{{Source: "x", Symbol: "LIVE", Amount: models.Float(5)}},
	}
	p := NewPrimary(src, src, store, logger.NewNop())

	_, err = p.FetchListings(ctx, models.CategoryCurrent, "2026-10-16")
	require.NoError(t, err)
	_, err = p.FetchSubscription(ctx, "live")
	require.NoError(t, err)
	_, err = p.FetchPremiumQuotes(ctx)
	require.NoError(t, err)

	f := NewFixture(store, 0, logger.NewNop())
	recs, err := f.FetchListings(ctx, models.CategoryCurrent, "2026-10-17")
	require.NoError(t, err)
	assert.Equal(t, "LIVE", recs[0].Symbol)

	snap, err := f.FetchSubscription(ctx, "LIVE")
	require.NoError(t, err)
	assert.Equal(t, 2.0, snap.Total)

	quotes, err := f.FetchPremiumQuotes(ctx)
	require.NoError(t, err)
	assert.Equal(t, "LIVE", quotes[0].Symbol)
}

func TestFixtureIgnoresStaleCopies(t *testing.T) {
	store, err := repository.NewFileStorage(t.TempDir(), "test")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, models.NamespaceFallback, listingsKey(models.CategoryCurrent),
		[]models.ListingRecord{{Symbol: "OLD"}}))

	f := NewFixture(store, time.Nanosecond, logger.NewNop())
	time.Sleep(time.Millisecond)
	recs, err := f.FetchListings(ctx, models.CategoryCurrent, "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, "ACME", recs[0].Symbol)
}

func TestFallbackServesFixtureOnError(t *testing.T) {
	ctx := context.Background()
	broken := &stubSource{err: errs.Newf(errs.KindExhausted, "nse", "blocked")}
	acq, err := New(StrategyPrimary, true,
		NewPrimary(broken, broken, nil, logger.NewNop()),
		NewFixture(nil, 0, logger.NewNop()),
		nil, logger.NewNop())
	require.NoError(t, err)

	recs, err := acq.FetchListings(ctx, models.CategoryCurrent, "2026-10-16")
	require.NoError(t, err)
	assert.Equal(t, "ACME", recs[0].Symbol)
	assert.Equal(t, "primary+fixture", acq.Name())
}

func TestFallbackDoesNotMaskCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	broken := &stubSource{err: context.Canceled}
	acq := NewFallback(NewPrimary(broken, broken, nil, logger.NewNop()), NewFixture(nil, 0, logger.NewNop()), nil, logger.NewNop())

	_, err := acq.FetchListings(ctx, models.CategoryCurrent, "2026-10-16")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewStrategySelection(t *testing.T) {
	p := NewPrimary(&stubSource{}, nil, nil, logger.NewNop())
	f := NewFixture(nil, 0, logger.NewNop())

	acq, err := New(StrategyPrimary, false, p, f, nil, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, StrategyPrimary, acq.Name())

	acq, err = New(StrategyFixture, false, p, f, nil, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, StrategyFixture, acq.Name())

	_, err = New("bogus", false, p, f, nil, logger.NewNop())
	assert.Error(t, err)

	quotes, err := p.FetchPremiumQuotes(context.Background())
	assert.NoError(t, err)
	assert.Nil(t, quotes)
}
