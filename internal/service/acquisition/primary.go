// Package acquisition provides the pluggable data-acquisition strategies the
// pipeline reads listings, subscriptions and premium quotes through.
package acquisition

import (
	"context"
	"strings"

	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/domain/repository"
	"IPOPulse/internal/domain/service"
	"IPOPulse/pkg/logger"
)

const (
	StrategyPrimary = "primary"
	StrategyFixture = "fixture"

	premiumsKey = "premiums/latest"
)

func listingsKey(category models.ListingCategory) string { return "listings/" + string(category) }
func subscriptionKey(symbol string) string               { return "subscriptions/" + strings.ToUpper(symbol) }

// Primary reads from the exchange and the premium scrapers. Every successful
// fetch is also recorded as a last-good copy for the fixture strategy.
type Primary struct {
	listings service.ListingSource
	premiums service.PremiumSource
	store    repository.Storage
	logger   *logger.Logger
}

// NewPrimary builds the primary strategy. premiums and store may be nil.
func NewPrimary(listings service.ListingSource, premiums service.PremiumSource, store repository.Storage, lgr *logger.Logger) *Primary {
	return &Primary{
		listings: listings,
		premiums: premiums,
		store:    store,
		logger:   lgr.With(logger.Component("acquisition"), logger.String("strategy", StrategyPrimary)),
	}
}

func (p *Primary) Name() string { return StrategyPrimary }

func (p *Primary) keep(ctx context.Context, key string, payload interface{}) {
	if p.store == nil {
		return
	}
	if err := p.store.Save(ctx, models.NamespaceFallback, key, payload); err != nil {
		p.logger.Warn("save last-good copy failed", logger.String("key", key), logger.Error(err))
	}
}

func (p *Primary) FetchListings(ctx context.Context, category models.ListingCategory, date string) ([]models.ListingRecord, error) {
	recs, err := p.listings.FetchListings(ctx, category, date)
	if err != nil {
		return nil, err
	}
	if len(recs) > 0 {
		p.keep(ctx, listingsKey(category), recs)
	}
	return recs, nil
}

func (p *Primary) FetchSubscription(ctx context.Context, symbol string) (*models.SubscriptionSnapshot, error) {
	snap, err := p.listings.FetchSubscription(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if snap.HasData() {
		p.keep(ctx, subscriptionKey(symbol), snap)
	}
	return snap, nil
}

func (p *Primary) FetchPremiumQuotes(ctx context.Context) ([]models.PremiumQuote, error) {
	if p.premiums == nil {
		return nil, nil
	}
	quotes, err := p.premiums.FetchPremiumQuotes(ctx)
	if err != nil {
		return nil, err
	}
	if len(quotes) > 0 {
		p.keep(ctx, premiumsKey, quotes)
	}
	return quotes, nil
}
