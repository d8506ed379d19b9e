package prediction

import (
	"math"
	"time"

	"IPOPulse/internal/domain/models"
)

type riskBand struct {
	Min   float64
	Level models.RiskLevel
}

type confidenceBand struct {
	Min   float64
	Level models.Confidence
}

// FusionParams holds the weighting tables and cut-offs of the fusion engine.
type FusionParams struct {
	WithPremium    models.Weights
	WithoutPremium models.Weights

	RecommendationScores map[models.Recommendation]float64
	RiskScores           map[models.RiskLevel]float64
	ConfidenceScores     map[models.Confidence]float64

	StrongBuyScore   float64
	BuyScore         float64
	ModerateBuyScore float64
	HoldScore        float64
	MinBuySignals    int
	MinAvoidSignals  int

	PremiumRiskBonus       float64
	PremiumRiskMinGain     float64
	PremiumConfidenceBonus float64
	ConsensusBonus         map[models.ConsensusStrength]float64

	RiskBands       []riskBand
	ConfidenceBands []confidenceBand
}

func DefaultFusionParams() FusionParams {
	return FusionParams{
		WithPremium:    models.Weights{Premium: 0.5, Math: 0.3, AI: 0.2},
		WithoutPremium: models.Weights{Premium: 0, Math: 0.6, AI: 0.4},

		RecommendationScores: map[models.Recommendation]float64{
			models.RecStrongBuy:        100,
			models.RecBuy:              75,
			models.RecModerateBuy:      60,
			models.RecHold:             50,
			models.RecNeutral:          50,
			models.RecAvoid:            25,
			models.RecStrongAvoid:      0,
			models.RecInsufficientData: 0,
			models.RecNoData:           0,
		},
		RiskScores: map[models.RiskLevel]float64{
			models.RiskLow:        100,
			models.RiskMediumLow:  80,
			models.RiskMedium:     60,
			models.RiskMediumHigh: 40,
			models.RiskHigh:       20,
			models.RiskVeryHigh:   0,
			models.RiskUnknown:    50,
		},
		ConfidenceScores: map[models.Confidence]float64{
			models.ConfidenceVeryHigh: 95,
			models.ConfidenceHigh:     80,
			models.ConfidenceMedium:   60,
			models.ConfidenceLow:      40,
			models.ConfidenceVeryLow:  20,
		},

		StrongBuyScore:   80,
		BuyScore:         65,
		ModerateBuyScore: 55,
		HoldScore:        45,
		MinBuySignals:    2,
		MinAvoidSignals:  2,

		PremiumRiskBonus:       15,
		PremiumRiskMinGain:     10,
		PremiumConfidenceBonus: 20,
		ConsensusBonus: map[models.ConsensusStrength]float64{
			models.ConsensusUnanimous: 15,
			models.ConsensusStrong:    10,
			models.ConsensusMixed:     -15,
		},

		RiskBands: []riskBand{
			{80, models.RiskLow},
			{60, models.RiskMediumLow},
			{40, models.RiskMedium},
			{25, models.RiskMediumHigh},
			{math.Inf(-1), models.RiskHigh},
		},
		ConfidenceBands: []confidenceBand{
			{85, models.ConfidenceVeryHigh},
			{70, models.ConfidenceHigh},
			{50, models.ConfidenceMedium},
			{30, models.ConfidenceLow},
			{math.Inf(-1), models.ConfidenceVeryLow},
		},
	}
}

// FusionEngine blends the three source predictions of a listing. It never
// fails: unusable inputs are replaced by a neutral prediction.
type FusionEngine struct {
	p   FusionParams
	now func() time.Time
}

func NewFusionEngine(p FusionParams) *FusionEngine {
	return &FusionEngine{p: p, now: time.Now}
}

// NeutralPrediction is the stand-in for a missing or malformed source.
func NeutralPrediction(source models.PredictionSource) models.SourcePrediction {
	return models.SourcePrediction{
		Source:         source,
		Recommendation: models.RecHold,
		Confidence:     models.ConfidenceMedium,
		Risk:           models.RiskMedium,
		Score:          50,
	}
}

func (f *FusionEngine) sanitize(p models.SourcePrediction, source models.PredictionSource) models.SourcePrediction {
	if !p.Recommendation.Valid() || !finite(p.ExpectedGainPercent, p.Score) {
		return NeutralPrediction(source)
	}
	p.Source = source
	if _, ok := f.p.RiskScores[p.Risk]; !ok {
		p.Risk = models.RiskMedium
	}
	if _, ok := f.p.ConfidenceScores[p.Confidence]; !ok {
		p.Confidence = models.ConfidenceMedium
	}
	return p
}

// Weights returns the weight vector for the given premium availability.
func (f *FusionEngine) Weights(premiumPresent bool) models.Weights {
	if premiumPresent {
		return f.p.WithPremium
	}
	return f.p.WithoutPremium
}

// Consensus classifies agreement among the sources that have data.
func Consensus(buy, avoid, total int) models.ConsensusStrength {
	switch {
	case total > 0 && buy == total:
		return models.ConsensusUnanimous
	case total > 0 && 3*buy >= 2*total:
		return models.ConsensusStrong
	case buy > avoid:
		return models.ConsensusModerate
	case total > 0 && 3*avoid >= 2*total:
		return models.ConsensusStrongNegative
	default:
		return models.ConsensusMixed
	}
}

func (f *FusionEngine) Combine(listing models.ListingRecord, date string,
	mathPred, premiumPred, aiPred models.SourcePrediction) models.ConsensusPrediction {

	mathPred = f.sanitize(mathPred, models.SourceMathematical)
	premiumPred = f.sanitize(premiumPred, models.SourcePremium)
	aiPred = f.sanitize(aiPred, models.SourceExternalAI)

	premiumPresent := premiumPred.HasData
	w := f.Weights(premiumPresent)

	weightedGain := premiumPred.ExpectedGainPercent*w.Premium +
		mathPred.ExpectedGainPercent*w.Math +
		aiPred.ExpectedGainPercent*w.AI
	weightedScore := f.p.RecommendationScores[premiumPred.Recommendation]*w.Premium +
		f.p.RecommendationScores[mathPred.Recommendation]*w.Math +
		f.p.RecommendationScores[aiPred.Recommendation]*w.AI

	var buy, avoid, total int
	for _, p := range []models.SourcePrediction{mathPred, premiumPred, aiPred} {
		if !p.HasData {
			continue
		}
		total++
		if p.Recommendation.IsBuy() {
			buy++
		}
		if p.Recommendation.IsAvoid() {
			avoid++
		}
	}
	consensus := Consensus(buy, avoid, total)

	riskScore := f.blend(f.p.RiskScores[mathPred.Risk], f.p.RiskScores[aiPred.Risk], w)
	if premiumPresent && premiumPred.ExpectedGainPercent > f.p.PremiumRiskMinGain {
		riskScore += f.p.PremiumRiskBonus
	}
	riskScore = clamp(riskScore, 0, 100)

	confScore := f.blend(f.p.ConfidenceScores[mathPred.Confidence], f.p.ConfidenceScores[aiPred.Confidence], w)
	if premiumPresent {
		confScore += f.p.PremiumConfidenceBonus
	}
	confScore += f.p.ConsensusBonus[consensus]
	confScore = clamp(confScore, 0, 100)

	out := models.ConsensusPrediction{
		Symbol:              listing.Symbol,
		CompanyName:         listing.CompanyName,
		Date:                date,
		ExpectedGainPercent: round2(weightedGain),
		WeightedScore:       round2(weightedScore),
		Recommendation:      f.finalRecommendation(weightedScore, buy, avoid, consensus),
		Consensus:           consensus,
		BuySignals:          buy,
		AvoidSignals:        avoid,
		SignalSources:       total,
		Risk:                f.riskBand(riskScore),
		RiskScore:           round2(riskScore),
		Confidence:          f.confidenceBand(confScore),
		ConfidenceScore:     round2(confScore),
		Weights:             w,
		Math:                mathPred,
		Premium:             premiumPred,
		AI:                  aiPred,
		GeneratedAt:         f.now().UTC(),
	}

	issue := listing.IssuePrice()
	if issue <= 0 && premiumPred.Premium != nil && premiumPred.Premium.IssuePrice != nil {
		issue = *premiumPred.Premium.IssuePrice
	}
	if issue > 0 {
		out.IssuePrice = issue
		out.ExpectedListingPrice = round2(issue * (1 + weightedGain/100))
	}
	return out
}

// blend averages math and AI scores by their share of the weight vector.
func (f *FusionEngine) blend(mathScore, aiScore float64, w models.Weights) float64 {
	denom := w.Math + w.AI
	if denom <= 0 {
		return (mathScore + aiScore) / 2
	}
	return (mathScore*w.Math + aiScore*w.AI) / denom
}

func (f *FusionEngine) finalRecommendation(score float64, buy, avoid int, c models.ConsensusStrength) models.Recommendation {
	switch {
	case score >= f.p.StrongBuyScore && buy >= f.p.MinBuySignals:
		return models.RecStrongBuy
	case score >= f.p.BuyScore && (c == models.ConsensusUnanimous || c == models.ConsensusStrong):
		return models.RecBuy
	case score >= f.p.ModerateBuyScore:
		return models.RecModerateBuy
	case score >= f.p.HoldScore:
		return models.RecHold
	case avoid >= f.p.MinAvoidSignals:
		return models.RecAvoid
	default:
		return models.RecHold
	}
}

func (f *FusionEngine) riskBand(score float64) models.RiskLevel {
	for _, b := range f.p.RiskBands {
		if score >= b.Min {
			return b.Level
		}
	}
	return models.RiskHigh
}

func (f *FusionEngine) confidenceBand(score float64) models.Confidence {
	for _, b := range f.p.ConfidenceBands {
		if score >= b.Min {
			return b.Level
		}
	}
	return models.ConfidenceVeryLow
}
