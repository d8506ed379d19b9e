package prediction

import (
	"math"
	"sort"
	"strings"

	"IPOPulse/internal/domain/models"
	"IPOPulse/pkg/util"
)

type PremiumParams struct {
	PerSourceReliability float64
	MinConsistency       float64

	StrongBuyGain float64
	BuyGain       float64
	HoldGain      float64

	HighReliability   float64
	MediumReliability float64
}

func DefaultPremiumParams() PremiumParams {
	return PremiumParams{
		PerSourceReliability: 25,
		MinConsistency:       0.5,
		StrongBuyGain:        20,
		BuyGain:              10,
		HoldGain:             5,
		HighReliability:      80,
		MediumReliability:    50,
	}
}

type PremiumAggregator struct {
	p PremiumParams
}

func NewPremiumAggregator(p PremiumParams) *PremiumAggregator {
	return &PremiumAggregator{p: p}
}

// MatchQuotes selects the quotes that belong to listing: exact symbol match
// first, otherwise the first quote symbol that contains, or is contained in,
// the listing symbol or the symbol derived from its company name. Only that
// one symbol's quotes are returned, at most one per source.
func MatchQuotes(listing models.ListingRecord, quotes []models.PremiumQuote) []models.PremiumQuote {
	symbol := strings.ToUpper(listing.Symbol)
	derived := util.ExtractSymbol(listing.CompanyName)

	var exact []models.PremiumQuote
	for _, q := range quotes {
		if q.Symbol == symbol || (derived != "" && q.Symbol == derived) {
			exact = append(exact, q)
		}
	}
	if len(exact) > 0 {
		return onePerSource(exact)
	}

	matched := ""
	for _, q := range quotes {
		if q.Symbol == "" {
			continue
		}
		for _, key := range []string{symbol, derived} {
			if len(key) >= 3 && (strings.Contains(q.Symbol, key) || strings.Contains(key, q.Symbol)) {
				matched = q.Symbol
				break
			}
		}
		if matched != "" {
			break
		}
	}
	if matched == "" {
		return nil
	}
	var fuzzy []models.PremiumQuote
	for _, q := range quotes {
		if q.Symbol == matched {
			fuzzy = append(fuzzy, q)
		}
	}
	return onePerSource(fuzzy)
}

// onePerSource keeps the most recently captured quote of each source,
// preserving first-seen order.
func onePerSource(quotes []models.PremiumQuote) []models.PremiumQuote {
	idx := make(map[string]int, len(quotes))
	out := make([]models.PremiumQuote, 0, len(quotes))
	for _, q := range quotes {
		i, seen := idx[q.Source]
		if !seen {
			idx[q.Source] = len(out)
			out = append(out, q)
			continue
		}
		if q.CapturedAt.After(out[i].CapturedAt) {
			out[i] = q
		}
	}
	return out
}

// Aggregate folds the quotes of one symbol into a consensus, one quote per
// source. Missing values are excluded from the means rather than counted as
// zero.
func (a *PremiumAggregator) Aggregate(symbol string, quotes []models.PremiumQuote) models.ConsensusPremium {
	out := models.ConsensusPremium{Symbol: strings.ToUpper(symbol)}
	if len(quotes) == 0 {
		return out
	}

	quotes = onePerSource(quotes)
	var amounts, gains, prices []float64
	for _, q := range quotes {
		out.Sources = append(out.Sources, q.Source)
		if q.Amount != nil && finite(*q.Amount) {
			amounts = append(amounts, *q.Amount)
		}
		if q.GainPercent != nil && finite(*q.GainPercent) {
			gains = append(gains, *q.GainPercent)
		}
		if q.IssuePrice != nil && finite(*q.IssuePrice) && *q.IssuePrice > 0 {
			prices = append(prices, *q.IssuePrice)
		}
	}

	sort.Strings(out.Sources)
	out.SourceCount = len(out.Sources)

	if len(amounts) > 0 {
		out.Amount = models.Float(round2(mean(amounts)))
	}
	if len(prices) > 0 {
		out.IssuePrice = models.Float(round2(mean(prices)))
	}
	switch {
	case len(gains) > 0:
		out.GainPercent = models.Float(round2(mean(gains)))
	case out.Amount != nil && out.IssuePrice != nil:
		out.GainPercent = models.Float(round2(*out.Amount / *out.IssuePrice * 100))
	}

	out.HasData = out.Amount != nil || out.GainPercent != nil
	out.Reliability = a.reliability(out.SourceCount, amounts)
	return out
}

func (a *PremiumAggregator) reliability(count int, amounts []float64) float64 {
	score := math.Min(100, float64(count)*a.p.PerSourceReliability)
	if len(amounts) >= 2 {
		m := mean(amounts)
		if m > 0 {
			factor := math.Max(a.p.MinConsistency, 1-popStdDev(amounts, m)/m)
			score *= factor
		}
	}
	return math.Floor(clamp(score, 0, 100))
}

// Predict maps a consensus premium onto a source prediction.
func (a *PremiumAggregator) Predict(c models.ConsensusPremium) models.SourcePrediction {
	if !c.HasData || c.GainPercent == nil {
		return models.SourcePrediction{
			Source:         models.SourcePremium,
			Recommendation: models.RecNoData,
			Confidence:     models.ConfidenceLow,
			Risk:           models.RiskUnknown,
			Premium:        &c,
		}
	}

	gain := *c.GainPercent
	pred := models.SourcePrediction{
		Source:              models.SourcePremium,
		ExpectedGainPercent: gain,
		Score:               c.Reliability,
		HasData:             true,
		Premium:             &c,
	}

	switch {
	case gain >= a.p.StrongBuyGain:
		pred.Recommendation = models.RecStrongBuy
	case gain >= a.p.BuyGain:
		pred.Recommendation = models.RecBuy
	case gain >= a.p.HoldGain:
		pred.Recommendation = models.RecHold
	case gain >= 0:
		pred.Recommendation = models.RecNeutral
	default:
		pred.Recommendation = models.RecAvoid
	}

	switch {
	case c.Reliability >= a.p.HighReliability:
		pred.Confidence = models.ConfidenceHigh
	case c.Reliability >= a.p.MediumReliability:
		pred.Confidence = models.ConfidenceMedium
	default:
		pred.Confidence = models.ConfidenceLow
	}

	switch {
	case gain >= 20:
		pred.Risk = models.RiskLow
	case gain >= 10:
		pred.Risk = models.RiskMediumLow
	case gain >= 0:
		pred.Risk = models.RiskMedium
	default:
		pred.Risk = models.RiskHigh
	}
	return pred
}

func mean(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func popStdDev(v []float64, m float64) float64 {
	var ss float64
	for _, x := range v {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(v)))
}
