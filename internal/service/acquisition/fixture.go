package acquisition

import (
	"context"
	"errors"
	"strings"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/domain/repository"
	"IPOPulse/pkg/logger"
	"IPOPulse/pkg/util"
)

// Fixture serves the last-good copies recorded by the primary strategy and,
// when none exist, a small deterministic data set.
type Fixture struct {
	store  repository.Storage
	maxAge time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewFixture builds the fixture strategy. store may be nil, in which case
// only the built-in data set is served.
func NewFixture(store repository.Storage, maxAge time.Duration, lgr *logger.Logger) *Fixture {
	return &Fixture{
		store:  store,
		maxAge: maxAge,
		logger: lgr.With(logger.Component("acquisition"), logger.String("strategy", StrategyFixture)),
		now:    time.Now,
	}
}

func (f *Fixture) Name() string { return StrategyFixture }

// load decodes a last-good copy into dest. It reports false when nothing
// usable is stored.
func (f *Fixture) load(ctx context.Context, key string, dest interface{}) bool {
	if f.store == nil {
		return false
	}
	doc, err := f.store.Load(ctx, models.NamespaceFallback, key, f.maxAge)
	if err != nil {
		if !errors.Is(err, errs.ErrNotFound) {
			f.logger.Warn("fallback copy unreadable", logger.String("key", key), logger.Error(err))
		}
		return false
	}
	if err := doc.Decode(dest); err != nil {
		f.logger.Warn("fallback copy undecodable", logger.String("key", key), logger.Error(err))
		return false
	}
	return true
}

func (f *Fixture) FetchListings(ctx context.Context, category models.ListingCategory, date string) ([]models.ListingRecord, error) {
	var recs []models.ListingRecord
	if f.load(ctx, listingsKey(category), &recs) {
		return recs, nil
	}
	return builtinListings(category, date, f.now()), nil
}

func (f *Fixture) FetchSubscription(ctx context.Context, symbol string) (*models.SubscriptionSnapshot, error) {
	symbol = strings.ToUpper(symbol)
	var snap models.SubscriptionSnapshot
	if f.load(ctx, subscriptionKey(symbol), &snap) {
		return &snap, nil
	}
	if s, ok := builtinSubscription(symbol, f.now()); ok {
		return s, nil
	}
	return nil, errs.Newf(errs.KindNotFound, "acquisition.fixture.FetchSubscription", "no fixture for %s", symbol)
}

func (f *Fixture) FetchPremiumQuotes(ctx context.Context) ([]models.PremiumQuote, error) {
	var quotes []models.PremiumQuote
	if f.load(ctx, premiumsKey, &quotes) {
		return quotes, nil
	}
	return builtinPremiums(f.now()), nil
}

func builtinListings(category models.ListingCategory, date string, now time.Time) []models.ListingRecord {
	open, err := time.ParseInLocation(util.RunDateLayout, date, util.MarketLocation())
	if err != nil {
		open = now.In(util.MarketLocation())
	}
	const layout = "02-Jan-2006"

	switch category {
	case models.CategoryCurrent:
		return []models.ListingRecord{{
			Symbol:      "ACME",
			CompanyName: "Acme Industries Limited",
			Series:      "EQ",
			PriceRange:  "Rs.100 to Rs.110",
			PriceLow:    100,
			PriceHigh:   110,
			IssueSize:   "45000000",
			OpenDate:    open.AddDate(0, 0, -2).Format(layout),
			CloseDate:   open.Format(layout),
			Status:      "Active",
			Category:    models.CategoryCurrent,
		}}
	case models.CategoryUpcoming:
		return []models.ListingRecord{{
			Symbol:      "ZENITH",
			CompanyName: "Zenith Components Limited",
			Series:      "SME",
			PriceRange:  "Rs.52 to Rs.55",
			PriceLow:    52,
			PriceHigh:   55,
			OpenDate:    open.AddDate(0, 0, 3).Format(layout),
			CloseDate:   open.AddDate(0, 0, 5).Format(layout),
			Status:      "Forthcoming",
			Category:    models.CategoryUpcoming,
		}}
	}
	return nil
}

func builtinSubscription(symbol string, now time.Time) (*models.SubscriptionSnapshot, bool) {
	if symbol != "ACME" {
		return nil, false
	}
	s := &models.SubscriptionSnapshot{
		Symbol:           "ACME",
		Date:             util.RunDate(now),
		Institutional:    12.1,
		NonInstitutional: 8.2,
		Retail:           3.2,
		Total:            15.5,
		CapturedAt:       now.UTC(),
		Categories: []models.CategorySubscription{
			{Category: models.SubInstitutional, Label: "Qualified Institutional Buyers(QIBs)", Times: 12.1},
			{Category: models.SubNonInstitutional, Label: "Non Institutional Investors", Times: 8.2},
			{Category: models.SubRetail, Label: "Retail Individual Investors(RIIs)", Times: 3.2},
			{Category: models.SubTotal, Label: "Total", Times: 15.5},
		},
	}
	s.Status = models.SubscriptionStatus(s.Total)
	return s, true
}

func builtinPremiums(now time.Time) []models.PremiumQuote {
	return []models.PremiumQuote{
		{Source: "fixture", Symbol: "ACMEINDUSTRI", CompanyName: "Acme Industries",
			Amount: models.Float(22), IssuePrice: models.Float(110), GainPercent: models.Float(20), CapturedAt: now.UTC()},
	}
}
