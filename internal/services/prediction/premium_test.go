package prediction

import (
	"testing"
	"time"

	"IPOPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quote(source string, amount, gain *float64) models.PremiumQuote {
	return models.PremiumQuote{Source: source, Symbol: "ACME", Amount: amount, GainPercent: gain}
}

func TestAggregateConsistentSources(t *testing.T) {
	a := NewPremiumAggregator(DefaultPremiumParams())
	got := a.Aggregate("acme", []models.PremiumQuote{
		quote("ipowatch", models.Float(20), models.Float(18)),
		quote("investorgain", models.Float(22), models.Float(20)),
		quote("chittorgarh", models.Float(24), models.Float(22)),
	})

	require.True(t, got.HasData)
	assert.Equal(t, "ACME", got.Symbol)
	assert.Equal(t, 3, got.SourceCount)
	assert.Equal(t, 22.0, *got.Amount)
	assert.Equal(t, 20.0, *got.GainPercent)
	assert.Equal(t, 69.0, got.Reliability)
	assert.Equal(t, []string{"chittorgarh", "investorgain", "ipowatch"}, got.Sources)
}

func TestAggregateExcludesMissingValues(t *testing.T) {
	a := NewPremiumAggregator(DefaultPremiumParams())
	got := a.Aggregate("ACME", []models.PremiumQuote{
		quote("ipowatch", models.Float(20), nil),
		quote("investorgain", nil, models.Float(15)),
	})

	assert.Equal(t, 20.0, *got.Amount)
	assert.Equal(t, 15.0, *got.GainPercent)
	assert.Equal(t, 50.0, got.Reliability, "a single amount skips the consistency factor")
}

func TestAggregateInconsistentSourcesFloorAtHalf(t *testing.T) {
	a := NewPremiumAggregator(DefaultPremiumParams())
	got := a.Aggregate("ACME", []models.PremiumQuote{
		quote("a", models.Float(10), nil),
		quote("b", models.Float(100), nil),
	})
	assert.Equal(t, 25.0, got.Reliability)
}

func TestAggregateDerivesGainFromIssuePrice(t *testing.T) {
	a := NewPremiumAggregator(DefaultPremiumParams())
	q := quote("a", models.Float(22), nil)
	q.IssuePrice = models.Float(110)
	got := a.Aggregate("ACME", []models.PremiumQuote{q})
	require.NotNil(t, got.GainPercent)
	assert.Equal(t, 20.0, *got.GainPercent)
}

func TestAggregateNoQuotes(t *testing.T) {
	a := NewPremiumAggregator(DefaultPremiumParams())
	got := a.Aggregate("ACME", nil)
	assert.False(t, got.HasData)
	assert.Equal(t, 0, got.SourceCount)

	pred := a.Predict(got)
	assert.Equal(t, models.RecNoData, pred.Recommendation)
	assert.False(t, pred.HasData)
}

func TestPremiumPredictionBands(t *testing.T) {
	a := NewPremiumAggregator(DefaultPremiumParams())
	cases := []struct {
		gain        float64
		reliability float64
		rec         models.Recommendation
		conf        models.Confidence
	}{
		{25, 100, models.RecStrongBuy, models.ConfidenceHigh},
		{12, 75, models.RecBuy, models.ConfidenceMedium},
		{6, 50, models.RecHold, models.ConfidenceMedium},
		{0, 25, models.RecNeutral, models.ConfidenceLow},
		{-3, 25, models.RecAvoid, models.ConfidenceLow},
	}
	for _, tc := range cases {
		got := a.Predict(models.ConsensusPremium{HasData: true, GainPercent: models.Float(tc.gain), Reliability: tc.reliability})
		assert.Equal(t, tc.rec, got.Recommendation, "gain %v", tc.gain)
		assert.Equal(t, tc.conf, got.Confidence, "reliability %v", tc.reliability)
	}
}

func TestMatchQuotes(t *testing.T) {
	quotes := []models.PremiumQuote{
		{Source: "a", Symbol: "ACMEINDUSTRI"},
		{Source: "b", Symbol: "TATACAPITAL"},
		{Source: "c", Symbol: "BETAFOODS"},
	}

	got := MatchQuotes(models.ListingRecord{Symbol: "ACME", CompanyName: "Acme Industries Limited"}, quotes)
	require.Len(t, got, 1)
	assert.Equal(t, "ACMEINDUSTRI", got[0].Symbol)

	got = MatchQuotes(models.ListingRecord{Symbol: "TATACAP", CompanyName: "Tata Cap"}, quotes)
	require.Len(t, got, 1)
	assert.Equal(t, "TATACAPITAL", got[0].Symbol)

	assert.Empty(t, MatchQuotes(models.ListingRecord{Symbol: "ZETA", CompanyName: "Zeta Works"}, quotes))
}

func TestAggregateCountsSourcesNotRows(t *testing.T) {
	a := NewPremiumAggregator(DefaultPremiumParams())
	got := a.Aggregate("ACME", []models.PremiumQuote{
		quote("ipowatch", models.Float(20), models.Float(18)),
		quote("ipowatch", models.Float(20), models.Float(18)),
		quote("ipowatch", models.Float(20), models.Float(18)),
		quote("ipowatch", models.Float(20), models.Float(18)),
	})

	assert.Equal(t, 1, got.SourceCount)
	assert.Equal(t, []string{"ipowatch"}, got.Sources)
	assert.Equal(t, 25.0, got.Reliability)
}

func TestMatchQuotesKeepsLatestQuotePerSource(t *testing.T) {
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	quotes := []models.PremiumQuote{
		{Source: "ipowatch", Symbol: "ACME", Amount: models.Float(10), CapturedAt: now},
		{Source: "ipowatch", Symbol: "ACME", Amount: models.Float(14), CapturedAt: now.Add(time.Hour)},
		{Source: "chittorgarh", Symbol: "ACME", Amount: models.Float(12), CapturedAt: now},
	}

	got := MatchQuotes(models.ListingRecord{Symbol: "ACME"}, quotes)
	require.Len(t, got, 2)
	assert.Equal(t, "ipowatch", got[0].Source)
	assert.Equal(t, 14.0, *got[0].Amount)
	assert.Equal(t, "chittorgarh", got[1].Source)
}

func TestMatchQuotesFuzzyTakesFirstSymbolOnly(t *testing.T) {
	quotes := []models.PremiumQuote{
		{Source: "ipowatch", Symbol: "ABCINFRA", GainPercent: models.Float(50)},
		{Source: "investorgain", Symbol: "ABCFOODS", GainPercent: models.Float(5)},
		{Source: "chittorgarh", Symbol: "ABCINFRA", GainPercent: models.Float(48)},
	}

	got := MatchQuotes(models.ListingRecord{Symbol: "ABC"}, quotes)
	require.Len(t, got, 2)
	for _, q := range got {
		assert.Equal(t, "ABCINFRA", q.Symbol)
	}

	c := NewPremiumAggregator(DefaultPremiumParams()).Aggregate("ABC", got)
	assert.Equal(t, 49.0, *c.GainPercent)
}
