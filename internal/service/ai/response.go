package ai

import (
	"encoding/json"
	"errors"
	"strings"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
)

// Response is the JSON document the AI providers are asked to return.
// The alternative field names cover older prompt revisions.
type Response struct {
	Recommendation      string   `json:"recommendation"`
	ExpectedGainPercent *float64 `json:"expected_gain_percent"`
	ExpectedListingGain *float64 `json:"expected_listing_gain_percent"`
	Confidence          string   `json:"confidence"`
	ConfidenceScore     *float64 `json:"confidence_score"`
	RiskLevel           string   `json:"risk_level"`
	Reasoning           string   `json:"reasoning"`
	AIReasoning         string   `json:"ai_reasoning"`
}

// ParseResponse decodes a model reply, tolerating markdown code fences.
func ParseResponse(text string) (*Response, error) {
	clean := strings.TrimSpace(text)
	clean = strings.TrimPrefix(clean, "```json")
	clean = strings.TrimPrefix(clean, "```")
	clean = strings.TrimSuffix(clean, "```")
	clean = strings.TrimSpace(clean)
	if clean == "" {
		return nil, errs.Newf(errs.KindMalformed, "ai.ParseResponse", "empty reply")
	}

	var r Response
	if err := json.Unmarshal([]byte(clean), &r); err != nil {
		return nil, errs.E(errs.KindMalformed, "ai.ParseResponse", err)
	}
	return &r, nil
}

// Prediction converts the reply into a source prediction. A reply without a
// usable recommendation or gain is reported as insufficient data.
func (r *Response) Prediction() (*models.SourcePrediction, error) {
	const op = "ai.Prediction"

	rec, ok := models.ParseRecommendation(r.Recommendation)
	if !ok || rec == models.RecInsufficientData || rec == models.RecNoData {
		return nil, errs.E(errs.KindInsufficientData, op, errors.New("no usable recommendation"))
	}

	gain := r.ExpectedGainPercent
	if gain == nil {
		gain = r.ExpectedListingGain
	}
	if gain == nil {
		return nil, errs.E(errs.KindInsufficientData, op, errors.New("no expected gain"))
	}

	pred := &models.SourcePrediction{
		Source:              models.SourceExternalAI,
		Recommendation:      rec,
		ExpectedGainPercent: *gain,
		Confidence:          models.ConfidenceMedium,
		Risk:                models.RiskMedium,
		Score:               50,
		HasData:             true,
		Reasoning:           r.Reasoning,
	}
	if pred.Reasoning == "" {
		pred.Reasoning = r.AIReasoning
	}

	if c, ok := models.ParseConfidence(r.Confidence); ok {
		pred.Confidence = c
	} else if r.ConfidenceScore != nil {
		pred.Confidence = confidenceFromScore(*r.ConfidenceScore)
	}
	if r.ConfidenceScore != nil {
		pred.Score = *r.ConfidenceScore
	}
	if risk, ok := models.ParseRiskLevel(r.RiskLevel); ok {
		pred.Risk = risk
	}
	return pred, nil
}

func confidenceFromScore(score float64) models.Confidence {
	switch {
	case score >= 85:
		return models.ConfidenceVeryHigh
	case score >= 70:
		return models.ConfidenceHigh
	case score >= 50:
		return models.ConfidenceMedium
	case score >= 30:
		return models.ConfidenceLow
	default:
		return models.ConfidenceVeryLow
	}
}

// classifyStatus maps a provider status code onto the error taxonomy.
func classifyStatus(status int) errs.Kind {
	switch {
	case status == 401, status == 403, status == 429:
		return errs.KindBlocked
	case status == 404:
		return errs.KindNotFound
	case status >= 500:
		return errs.KindTransient
	default:
		return errs.KindInvalid
	}
}
