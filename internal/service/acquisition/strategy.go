package acquisition

import (
	"context"
	"errors"
	"fmt"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/domain/repository"
	"IPOPulse/internal/domain/service"
	"IPOPulse/pkg/logger"
)

// Fallback tries the primary strategy and serves fixture data whenever a
// call fails for a reason other than cancellation.
type Fallback struct {
	primary service.Acquisition
	fixture service.Acquisition
	metrics repository.Metrics
	logger  *logger.Logger
}

func NewFallback(primary, fixture service.Acquisition, metrics repository.Metrics, lgr *logger.Logger) *Fallback {
	if metrics == nil {
		metrics = repository.NopMetrics{}
	}
	return &Fallback{
		primary: primary,
		fixture: fixture,
		metrics: metrics,
		logger:  lgr.With(logger.Component("acquisition")),
	}
}

func (f *Fallback) Name() string { return f.primary.Name() + "+" + f.fixture.Name() }

func (f *Fallback) degrade(ctx context.Context, op string, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return false
	}
	f.logger.Warn("primary acquisition failed, serving fixture data",
		logger.String("op", op),
		logger.String("kind", errs.KindOf(err).String()),
		logger.Error(err))
	f.metrics.RecordRequest("acquisition."+op, "fallback")
	return true
}

func (f *Fallback) FetchListings(ctx context.Context, category models.ListingCategory, date string) ([]models.ListingRecord, error) {
	recs, err := f.primary.FetchListings(ctx, category, date)
	if err != nil && f.degrade(ctx, "listings", err) {
		return f.fixture.FetchListings(ctx, category, date)
	}
	return recs, err
}

func (f *Fallback) FetchSubscription(ctx context.Context, symbol string) (*models.SubscriptionSnapshot, error) {
	snap, err := f.primary.FetchSubscription(ctx, symbol)
	if err != nil && f.degrade(ctx, "subscription", err) {
		return f.fixture.FetchSubscription(ctx, symbol)
	}
	return snap, err
}

func (f *Fallback) FetchPremiumQuotes(ctx context.Context) ([]models.PremiumQuote, error) {
	quotes, err := f.primary.FetchPremiumQuotes(ctx)
	if err != nil && f.degrade(ctx, "premiums", err) {
		return f.fixture.FetchPremiumQuotes(ctx)
	}
	return quotes, err
}

// New selects the strategy by name.
func New(strategy string, fallbackOnError bool, primary *Primary, fixture *Fixture, metrics repository.Metrics, lgr *logger.Logger) (service.Acquisition, error) {
	switch strategy {
	case StrategyPrimary:
		if fallbackOnError {
			return NewFallback(primary, fixture, metrics, lgr), nil
		}
		return primary, nil
	case StrategyFixture:
		return fixture, nil
	default:
		return nil, fmt.Errorf("unknown acquisition strategy %q", strategy)
	}
}
