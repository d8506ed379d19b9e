// Package nse fetches listings, subscription snapshots and market status
// from the exchange's JSON API through a session.Manager.
package nse

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/pkg/logger"
	"IPOPulse/pkg/util"
)

const (
	EndpointCurrent      = "/ipo-current-issue"
	EndpointUpcoming     = "/all-upcoming-issues"
	EndpointSubscription = "/ipo-active-category"
	EndpointMarketStatus = "/marketStatus"
)

// Requester is the subset of session.Manager used here.
type Requester interface {
	Request(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error)
}

type Source struct {
	session Requester
	logger  *logger.Logger
	now     func() time.Time
}

func NewSource(session Requester, lgr *logger.Logger) *Source {
	return &Source{
		session: session,
		logger:  lgr.With(logger.Component("nse")),
		now:     time.Now,
	}
}

// FetchListings returns current or upcoming listings. Records without a
// symbol or company name are skipped individually.
func (s *Source) FetchListings(ctx context.Context, category models.ListingCategory, date string) ([]models.ListingRecord, error) {
	var (
		endpoint string
		params   url.Values
	)
	switch category {
	case models.CategoryCurrent:
		endpoint = EndpointCurrent
	case models.CategoryUpcoming:
		endpoint = EndpointUpcoming
		params = url.Values{"category": {"ipo"}}
	default:
		return nil, errs.Newf(errs.KindInvalid, "nse.fetch_listings", "unknown category %q", category)
	}

	payload, err := s.session.Request(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	listings, skipped, err := ParseListings(payload, category)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		s.logger.Warn("skipped unparseable listings",
			logger.String("category", string(category)),
			logger.Int("skipped", skipped))
	}
	s.logger.Info("listings fetched",
		logger.String("category", string(category)),
		logger.String("date", date),
		logger.Int("count", len(listings)))
	return listings, nil
}

// ParseListings decodes a listings payload; it returns the number of
// records skipped because they were unusable.
func ParseListings(payload []byte, category models.ListingCategory) ([]models.ListingRecord, int, error) {
	items, err := unwrapList("nse.parse_listings", payload)
	if err != nil {
		return nil, 0, err
	}

	out := make([]models.ListingRecord, 0, len(items))
	skipped := 0
	for _, item := range items {
		var raw rawListing
		if err := json.Unmarshal(item, &raw); err != nil {
			skipped++
			continue
		}
		rec, ok := toListing(raw, category)
		if !ok {
			skipped++
			continue
		}
		out = append(out, rec)
	}
	return out, skipped, nil
}

func toListing(raw rawListing, category models.ListingCategory) (models.ListingRecord, bool) {
	symbol := strings.ToUpper(raw.Symbol.String())
	name := raw.CompanyName.String()
	if symbol == "" || name == "" {
		return models.ListingRecord{}, false
	}

	priceRange := raw.IssuePrice.String()
	if priceRange == "" {
		priceRange = raw.PriceBand.String()
	}
	rec := models.ListingRecord{
		Symbol:      symbol,
		CompanyName: name,
		Series:      raw.Series.String(),
		PriceRange:  priceRange,
		IssueSize:   raw.IssueSize.String(),
		OpenDate:    raw.IssueStart.String(),
		CloseDate:   raw.IssueEnd.String(),
		Status:      raw.Status.String(),
		Category:    category,
	}
	if low, high, ok := util.ParsePriceRange(priceRange); ok {
		rec.PriceLow, rec.PriceHigh = low, high
	}
	rec.SharesOffered, _ = util.SafeInt(raw.SharesOffered.String())
	rec.SharesBid, _ = util.SafeInt(raw.SharesBid.String())
	rec.SubscriptionTimes, _ = util.SafeFloat(raw.Times.String())
	if rec.Series == "" {
		rec.Series = "EQ"
	}
	return rec, true
}

// FetchSubscription returns the category-wise subscription snapshot for symbol.
func (s *Source) FetchSubscription(ctx context.Context, symbol string) (*models.SubscriptionSnapshot, error) {
	payload, err := s.session.Request(ctx, EndpointSubscription, url.Values{"symbol": {symbol}})
	if err != nil {
		return nil, err
	}
	snap, err := ParseSubscription(payload, symbol, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Debug("subscription fetched",
		logger.String("symbol", symbol),
		logger.Float64("total", snap.Total),
		logger.Int("categories", len(snap.Categories)))
	return snap, nil
}

func ParseSubscription(payload []byte, symbol string, now time.Time) (*models.SubscriptionSnapshot, error) {
	const op = "nse.parse_subscription"

	var raw rawSubscription
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errs.E(errs.KindMalformed, op, err)
	}

	snap := &models.SubscriptionSnapshot{
		Symbol:     strings.ToUpper(symbol),
		Date:       util.RunDate(now),
		UpdatedAt:  raw.UpdateTime.String(),
		CapturedAt: now.UTC(),
	}

	seen := make(map[models.SubscriptionCategory]bool)
	var offered, bid int64
	for _, item := range raw.DataList {
		var row rawSubscriptionRow
		if err := json.Unmarshal(item, &row); err != nil {
			continue
		}
		label := row.Category.String()
		if label == "" || strings.EqualFold(label, "category") {
			continue
		}
		cat, ok := classifyCategory(label)
		if !ok || seen[cat] {
			continue
		}
		seen[cat] = true

		entry := models.CategorySubscription{Category: cat, Label: label}
		entry.Times, _ = util.SafeFloat(row.Times.String())
		entry.SharesOffered, _ = util.SafeInt(row.SharesOffered.String())
		entry.SharesBid, _ = util.SafeInt(row.SharesBid.String())
		snap.Categories = append(snap.Categories, entry)

		switch cat {
		case models.SubInstitutional:
			snap.Institutional = entry.Times
		case models.SubNonInstitutional:
			snap.NonInstitutional = entry.Times
		case models.SubRetail:
			snap.Retail = entry.Times
		case models.SubEmployee:
			snap.Employee = entry.Times
		case models.SubTotal:
			snap.Total = entry.Times
		}
		if cat != models.SubTotal {
			offered += entry.SharesOffered
			bid += entry.SharesBid
		}
	}

	if !seen[models.SubTotal] && offered > 0 {
		snap.Total = float64(bid) / float64(offered)
	}
	snap.Status = models.SubscriptionStatus(snap.Total)
	return snap, nil
}

func classifyCategory(label string) (models.SubscriptionCategory, bool) {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "qualified institutional") || strings.Contains(l, "qib"):
		return models.SubInstitutional, true
	case strings.Contains(l, "non institutional") || strings.Contains(l, "non-institutional") || strings.HasPrefix(l, "nii"):
		return models.SubNonInstitutional, true
	case strings.Contains(l, "retail"):
		return models.SubRetail, true
	case strings.Contains(l, "employee"):
		return models.SubEmployee, true
	case l == "total":
		return models.SubTotal, true
	}
	return "", false
}

// MarketStatus returns the exchange's per-segment market state.
func (s *Source) MarketStatus(ctx context.Context) ([]models.MarketStatus, error) {
	payload, err := s.session.Request(ctx, EndpointMarketStatus, nil)
	if err != nil {
		return nil, err
	}
	var raw rawMarketStatus
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, errs.E(errs.KindMalformed, "nse.market_status", err)
	}
	out := make([]models.MarketStatus, 0, len(raw.MarketState))
	for _, m := range raw.MarketState {
		st := models.MarketStatus{
			Market:    m.Market.String(),
			Status:    m.Status.String(),
			TradeDate: m.TradeDate.String(),
			Index:     m.Index.String(),
			Message:   m.Message.String(),
		}
		st.Last, _ = util.SafeFloat(m.Last.String())
		st.Variation, _ = util.SafeFloat(m.Variation.String())
		st.PercentDiff, _ = util.SafeFloat(m.PercentDiff.String())
		out = append(out, st)
	}
	return out, nil
}
