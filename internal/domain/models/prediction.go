package models

import (
	"strings"
	"time"
)

type Recommendation string

const (
	RecStrongBuy        Recommendation = "STRONG_BUY"
	RecBuy              Recommendation = "BUY"
	RecModerateBuy      Recommendation = "MODERATE_BUY"
	RecHold             Recommendation = "HOLD"
	RecNeutral          Recommendation = "NEUTRAL"
	RecAvoid            Recommendation = "AVOID"
	RecStrongAvoid      Recommendation = "STRONG_AVOID"
	RecInsufficientData Recommendation = "INSUFFICIENT_DATA"
	RecNoData           Recommendation = "NO_DATA"
)

func (r Recommendation) IsBuy() bool   { return strings.Contains(string(r), "BUY") }
func (r Recommendation) IsAvoid() bool { return strings.Contains(string(r), "AVOID") }

func (r Recommendation) Valid() bool {
	switch r {
	case RecStrongBuy, RecBuy, RecModerateBuy, RecHold, RecNeutral, RecAvoid,
		RecStrongAvoid, RecInsufficientData, RecNoData:
		return true
	}
	return false
}

// ParseRecommendation normalises free-form labels such as "strong buy".
func ParseRecommendation(s string) (Recommendation, bool) {
	r := Recommendation(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")))
	return r, r.Valid()
}

type RiskLevel string

const (
	RiskLow        RiskLevel = "LOW"
	RiskMediumLow  RiskLevel = "MEDIUM-LOW"
	RiskMedium     RiskLevel = "MEDIUM"
	RiskMediumHigh RiskLevel = "MEDIUM-HIGH"
	RiskHigh       RiskLevel = "HIGH"
	RiskVeryHigh   RiskLevel = "VERY_HIGH"
	RiskUnknown    RiskLevel = "UNKNOWN"
)

func ParseRiskLevel(s string) (RiskLevel, bool) {
	// "medium high", "Medium_High" and "MEDIUM-HIGH" are the same level
	words := strings.Fields(strings.NewReplacer("_", " ", "-", " ").Replace(s))
	r := RiskLevel(strings.ToUpper(strings.Join(words, "-")))
	if r == "VERY-HIGH" {
		r = RiskVeryHigh
	}
	switch r {
	case RiskLow, RiskMediumLow, RiskMedium, RiskMediumHigh, RiskHigh, RiskVeryHigh, RiskUnknown:
		return r, true
	}
	return r, false
}

type Confidence string

const (
	ConfidenceVeryHigh Confidence = "VERY_HIGH"
	ConfidenceHigh     Confidence = "HIGH"
	ConfidenceMedium   Confidence = "MEDIUM"
	ConfidenceLow      Confidence = "LOW"
	ConfidenceVeryLow  Confidence = "VERY_LOW"
)

func ParseConfidence(s string) (Confidence, bool) {
	c := Confidence(strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", "_")))
	switch c {
	case ConfidenceVeryHigh, ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceVeryLow:
		return c, true
	}
	return c, false
}

type PredictionSource string

const (
	SourceMathematical PredictionSource = "mathematical"
	SourcePremium      PredictionSource = "premium"
	SourceExternalAI   PredictionSource = "ai"
)

type GainRange struct {
	MinPercent          float64 `json:"minPercent"`
	MaxPercent          float64 `json:"maxPercent"`
	PositiveProbability float64 `json:"positiveProbability"`
}

// MathDetails exposes the intermediate values of the subscription model.
type MathDetails struct {
	WeightedScore  float64   `json:"weightedScore"`
	LogGain        float64   `json:"logGain"`
	CategoryGain   float64   `json:"categoryGain"`
	BaseGain       float64   `json:"baseGain"`
	PenaltyFactor  float64   `json:"penaltyFactor"`
	Range          GainRange `json:"range"`
	Subscription   float64   `json:"subscription"`
	Institutional  float64   `json:"institutional"`
	NonInstitution float64   `json:"nonInstitutional"`
	Retail         float64   `json:"retail"`
}

// SourcePrediction is the output of one independent predictor. Source
// selects which of the detail fields is populated.
type SourcePrediction struct {
	Source              PredictionSource  `json:"source"`
	Recommendation      Recommendation    `json:"recommendation"`
	ExpectedGainPercent float64           `json:"expectedGainPercent"`
	Confidence          Confidence        `json:"confidence"`
	Risk                RiskLevel         `json:"riskLevel"`
	Score               float64           `json:"score"`
	HasData             bool              `json:"hasData"`
	Reasoning           string            `json:"reasoning,omitempty"`
	Math                *MathDetails      `json:"math,omitempty"`
	Premium             *ConsensusPremium `json:"premium,omitempty"`
}

type Weights struct {
	Premium float64 `json:"premium"`
	Math    float64 `json:"math"`
	AI      float64 `json:"ai"`
}

func (w Weights) Sum() float64 { return w.Premium + w.Math + w.AI }

type ConsensusStrength string

const (
	ConsensusUnanimous      ConsensusStrength = "UNANIMOUS"
	ConsensusStrong         ConsensusStrength = "STRONG"
	ConsensusModerate       ConsensusStrength = "MODERATE"
	ConsensusStrongNegative ConsensusStrength = "STRONG_NEGATIVE"
	ConsensusMixed          ConsensusStrength = "MIXED"
)

// ConsensusPrediction is the final fused output for one symbol and date.
type ConsensusPrediction struct {
	Symbol               string            `json:"symbol"`
	CompanyName          string            `json:"companyName,omitempty"`
	Date                 string            `json:"date"`
	RunID                string            `json:"runId,omitempty"`
	ExpectedGainPercent  float64           `json:"expectedGainPercent"`
	WeightedScore        float64           `json:"weightedScore"`
	Recommendation       Recommendation    `json:"recommendation"`
	Consensus            ConsensusStrength `json:"consensus"`
	BuySignals           int               `json:"buySignals"`
	AvoidSignals         int               `json:"avoidSignals"`
	SignalSources        int               `json:"signalSources"`
	Risk                 RiskLevel         `json:"riskLevel"`
	RiskScore            float64           `json:"riskScore"`
	Confidence           Confidence        `json:"confidence"`
	ConfidenceScore      float64           `json:"confidenceScore"`
	IssuePrice           float64           `json:"issuePrice,omitempty"`
	ExpectedListingPrice float64           `json:"expectedListingPrice,omitempty"`
	Weights              Weights           `json:"weights"`
	Math                 SourcePrediction  `json:"math"`
	Premium              SourcePrediction  `json:"premium"`
	AI                   SourcePrediction  `json:"ai"`
	GeneratedAt          time.Time         `json:"generatedAt"`
}
