package prediction

import (
	"testing"

	"IPOPulse/internal/domain/models"

	"github.com/stretchr/testify/assert"
)

func TestWeightedScore(t *testing.T) {
	m := NewMathPredictor(DefaultMathParams())
	assert.InDelta(t, 7.95, m.WeightedScore(10, 5, 3), 1e-9)
}

func TestAdjustGainUndersubscribed(t *testing.T) {
	adj, pf := AdjustGain(20, 0.5)
	assert.InDelta(t, 0.25, pf, 1e-12)
	assert.InDelta(t, 15.0, adj, 1e-12)

	adj, pf = AdjustGain(20, 1.0)
	assert.Equal(t, 20.0, adj)
	assert.Equal(t, 0.0, pf)
}

func TestGainRangeBuckets(t *testing.T) {
	m := NewMathPredictor(DefaultMathParams())
	cases := []struct {
		total float64
		want  models.GainRange
	}{
		{0.99, models.GainRange{MinPercent: -10, MaxPercent: 5, PositiveProbability: 0.65}},
		{1.0, models.GainRange{MinPercent: 5, MaxPercent: 25, PositiveProbability: 0.70}},
		{7.0, models.GainRange{MinPercent: 20, MaxPercent: 60, PositiveProbability: 0.80}},
		{20.0, models.GainRange{MinPercent: 45, MaxPercent: 120, PositiveProbability: 0.85}},
		{250, models.GainRange{MinPercent: 80, MaxPercent: 200, PositiveProbability: 0.75}},
	}
	for _, tc := range cases {
		if got := m.GainRange(tc.total); got != tc.want {
			t.Fatalf("GainRange(%v) = %+v, want %+v", tc.total, got, tc.want)
		}
	}
}

func TestPredictACMERegression(t *testing.T) {
	m := NewMathPredictor(DefaultMathParams())
	got := m.Predict(&models.SubscriptionSnapshot{
		Symbol:           "ACME",
		Institutional:    12.1,
		NonInstitutional: 8.2,
		Retail:           3.2,
		Total:            15.5,
	})

	assert.Contains(t, []models.Recommendation{models.RecBuy, models.RecStrongBuy}, got.Recommendation)
	assert.GreaterOrEqual(t, got.ExpectedGainPercent, 20.0)
	assert.NotEqual(t, models.RiskHigh, got.Risk)
	assert.Equal(t, models.RiskMediumLow, got.Risk)
	assert.Equal(t, models.ConfidenceHigh, got.Confidence)
	assert.InDelta(t, 79.73, got.ExpectedGainPercent, 0.01)
	assert.Equal(t, 100.0, got.Score)
	assert.True(t, got.HasData)
	assert.Equal(t, models.GainRange{MinPercent: 20, MaxPercent: 60, PositiveProbability: 0.80}, got.Math.Range)
}

func TestPredictUndersubscribed(t *testing.T) {
	m := NewMathPredictor(DefaultMathParams())
	got := m.Predict(&models.SubscriptionSnapshot{Institutional: 0.3, NonInstitutional: 0.5, Retail: 0.7, Total: 0.5})

	assert.Equal(t, models.RecAvoid, got.Recommendation)
	assert.Equal(t, models.RiskHigh, got.Risk)
	assert.Equal(t, models.ConfidenceLow, got.Confidence)
	assert.InDelta(t, 0.25, got.Math.PenaltyFactor, 1e-9)
	assert.GreaterOrEqual(t, got.Score, 0.0)
	assert.LessOrEqual(t, got.Score, 100.0)
}

func TestPredictRiskDependsOnInstitutionalDemand(t *testing.T) {
	m := NewMathPredictor(DefaultMathParams())
	strong := m.Predict(&models.SubscriptionSnapshot{Institutional: 2.5, NonInstitutional: 3, Retail: 3, Total: 3})
	weak := m.Predict(&models.SubscriptionSnapshot{Institutional: 1, NonInstitutional: 3, Retail: 4, Total: 3})

	assert.Equal(t, models.RiskMedium, strong.Risk)
	assert.Equal(t, models.RiskMediumHigh, weak.Risk)
	assert.Equal(t, models.ConfidenceMedium, strong.Confidence)
}

func TestPredictInsufficientData(t *testing.T) {
	m := NewMathPredictor(DefaultMathParams())
	for _, snap := range []*models.SubscriptionSnapshot{nil, {Symbol: "X"}} {
		got := m.Predict(snap)
		assert.Equal(t, models.RecInsufficientData, got.Recommendation)
		assert.Equal(t, 0.0, got.ExpectedGainPercent)
		assert.Equal(t, 50.0, got.Score)
		assert.Equal(t, models.ConfidenceLow, got.Confidence)
		assert.Equal(t, models.RiskUnknown, got.Risk)
		assert.False(t, got.HasData)
	}
}

func TestPredictIsDeterministic(t *testing.T) {
	m := NewMathPredictor(DefaultMathParams())
	snap := &models.SubscriptionSnapshot{Institutional: 4.2, NonInstitutional: 2.1, Retail: 1.7, Total: 2.9}
	assert.Equal(t, m.Predict(snap), m.Predict(snap))
}
