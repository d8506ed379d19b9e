package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseRiskLevel(t *testing.T) {
	cases := map[string]RiskLevel{
		"low":          RiskLow,
		"Medium High":  RiskMediumHigh,
		"medium_high":  RiskMediumHigh,
		"MEDIUM-HIGH":  RiskMediumHigh,
		" medium low ": RiskMediumLow,
		"Very High":    RiskVeryHigh,
		"very-high":    RiskVeryHigh,
		"VERY_HIGH":    RiskVeryHigh,
	}
	for in, want := range cases {
		got, ok := ParseRiskLevel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseRiskLevel("extreme")
	assert.False(t, ok)
}
