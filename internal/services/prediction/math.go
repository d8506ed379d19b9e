// Package prediction holds the deterministic predictors and the fusion
// engine that blends them into one consensus per listing.
package prediction

import (
	"math"

	"IPOPulse/internal/domain/models"
)

// GainBucket is one row of the subscription -> gain range table.
type GainBucket struct {
	Below float64
	Range models.GainRange
}

// MathParams holds every constant of the subscription model.
type MathParams struct {
	InstitutionalWeight    float64
	NonInstitutionalWeight float64
	RetailWeight           float64

	LogCoefficient         float64
	LogFloor               float64
	InstitutionalFactor    float64
	NonInstitutionalFactor float64
	RetailFactor           float64

	Buckets []GainBucket

	StrongBuyGain   float64
	BuyGain         float64
	ModerateBuyGain float64
	HoldGain        float64

	ScoreSubscriptionScale float64
	ScoreGainOffset        float64
	ScoreGainScale         float64
	ScoreSubscriptionShare float64
	ScoreGainShare         float64
	UndersubscribedPenalty float64
}

func DefaultMathParams() MathParams {
	return MathParams{
		InstitutionalWeight:    0.65,
		NonInstitutionalWeight: 0.20,
		RetailWeight:           0.15,

		LogCoefficient:         12.5,
		LogFloor:               0.01,
		InstitutionalFactor:    15.2,
		NonInstitutionalFactor: 12.8,
		RetailFactor:           8.4,

		Buckets: []GainBucket{
			{Below: 1.0, Range: models.GainRange{MinPercent: -10, MaxPercent: 5, PositiveProbability: 0.65}},
			{Below: 5.0, Range: models.GainRange{MinPercent: 5, MaxPercent: 25, PositiveProbability: 0.70}},
			{Below: 20.0, Range: models.GainRange{MinPercent: 20, MaxPercent: 60, PositiveProbability: 0.80}},
			{Below: 50.0, Range: models.GainRange{MinPercent: 45, MaxPercent: 120, PositiveProbability: 0.85}},
			{Below: math.Inf(1), Range: models.GainRange{MinPercent: 80, MaxPercent: 200, PositiveProbability: 0.75}},
		},

		StrongBuyGain:   40,
		BuyGain:         20,
		ModerateBuyGain: 10,
		HoldGain:        5,

		ScoreSubscriptionScale: 15,
		ScoreGainOffset:        20,
		ScoreGainScale:         2,
		ScoreSubscriptionShare: 0.6,
		ScoreGainShare:         0.4,
		UndersubscribedPenalty: 40,
	}
}

// MathPredictor turns a subscription snapshot into a prediction. It does no
// I/O and never fails.
type MathPredictor struct {
	p MathParams
}

func NewMathPredictor(p MathParams) *MathPredictor {
	return &MathPredictor{p: p}
}

func (m *MathPredictor) WeightedScore(inst, nii, retail float64) float64 {
	return inst*m.p.InstitutionalWeight + nii*m.p.NonInstitutionalWeight + retail*m.p.RetailWeight
}

func (m *MathPredictor) logGain(total float64) float64 {
	return m.p.LogCoefficient * math.Log10(math.Max(total, m.p.LogFloor))
}

func (m *MathPredictor) categoryGain(inst, nii, retail float64) float64 {
	return inst*m.p.InstitutionalFactor*m.p.InstitutionalWeight +
		nii*m.p.NonInstitutionalFactor*m.p.NonInstitutionalWeight +
		retail*m.p.RetailFactor*m.p.RetailWeight
}

// AdjustGain applies the undersubscription penalty (1-total)^2.
func AdjustGain(base, total float64) (adjusted, penalty float64) {
	if total >= 1.0 {
		return base, 0
	}
	penalty = (1 - total) * (1 - total)
	return base * (1 - penalty), penalty
}

// GainRange returns the first bucket whose threshold exceeds total.
func (m *MathPredictor) GainRange(total float64) models.GainRange {
	for _, b := range m.p.Buckets {
		if total < b.Below {
			return b.Range
		}
	}
	return m.p.Buckets[len(m.p.Buckets)-1].Range
}

func riskLevel(total, inst float64) models.RiskLevel {
	switch {
	case total < 1.0:
		return models.RiskHigh
	case total < 5.0:
		if inst >= 2.0 {
			return models.RiskMedium
		}
		return models.RiskMediumHigh
	case total < 20.0:
		return models.RiskMediumLow
	default:
		return models.RiskLow
	}
}

func confidenceLevel(total, inst float64) models.Confidence {
	switch {
	case inst >= 10 && total >= 20:
		return models.ConfidenceVeryHigh
	case inst >= 5 && total >= 10:
		return models.ConfidenceHigh
	case inst >= 1 && total >= 3:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

func (m *MathPredictor) recommend(total, gain float64, risk models.RiskLevel) models.Recommendation {
	switch {
	case total < 1.0:
		return models.RecAvoid
	case gain >= m.p.StrongBuyGain && (risk == models.RiskLow || risk == models.RiskMediumLow):
		return models.RecStrongBuy
	case gain >= m.p.BuyGain && risk != models.RiskHigh:
		return models.RecBuy
	case gain >= m.p.ModerateBuyGain:
		return models.RecModerateBuy
	case gain >= m.p.HoldGain:
		return models.RecHold
	default:
		return models.RecAvoid
	}
}

func (m *MathPredictor) score(weighted, gain, total float64) float64 {
	sub := math.Min(100, weighted*m.p.ScoreSubscriptionScale)
	g := math.Min(100, math.Max(0, (gain+m.p.ScoreGainOffset)*m.p.ScoreGainScale))
	s := m.p.ScoreSubscriptionShare*sub + m.p.ScoreGainShare*g
	if total < 1.0 {
		s -= (1 - total) * m.p.UndersubscribedPenalty
	}
	return clamp(s, 0, 100)
}

// InsufficientMath is the prediction used when no subscription data exists.
func InsufficientMath() models.SourcePrediction {
	return models.SourcePrediction{
		Source:         models.SourceMathematical,
		Recommendation: models.RecInsufficientData,
		Confidence:     models.ConfidenceLow,
		Risk:           models.RiskUnknown,
		Score:          50,
	}
}

func (m *MathPredictor) Predict(snap *models.SubscriptionSnapshot) models.SourcePrediction {
	if !snap.HasData() || !finite(snap.Total, snap.Institutional, snap.NonInstitutional, snap.Retail) {
		return InsufficientMath()
	}

	total, inst, nii, retail := snap.Total, snap.Institutional, snap.NonInstitutional, snap.Retail

	weighted := m.WeightedScore(inst, nii, retail)
	a := m.logGain(total)
	b := m.categoryGain(inst, nii, retail)
	base := (a + b) / 2
	adjusted, penalty := AdjustGain(base, total)

	risk := riskLevel(total, inst)
	details := &models.MathDetails{
		WeightedScore:  round2(weighted),
		LogGain:        round2(a),
		CategoryGain:   round2(b),
		BaseGain:       round2(base),
		PenaltyFactor:  round4(penalty),
		Range:          m.GainRange(total),
		Subscription:   total,
		Institutional:  inst,
		NonInstitution: nii,
		Retail:         retail,
	}

	return models.SourcePrediction{
		Source:              models.SourceMathematical,
		Recommendation:      m.recommend(total, adjusted, risk),
		ExpectedGainPercent: round2(adjusted),
		Confidence:          confidenceLevel(total, inst),
		Risk:                risk,
		Score:               round2(m.score(weighted, adjusted, total)),
		HasData:             true,
		Math:                details,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round4(v float64) float64 { return math.Round(v*10000) / 10000 }
