package models

import "time"

// PremiumQuote is one grey-market premium observation from one source.
// Nil numeric fields mean the source did not report the value.
type PremiumQuote struct {
	Source      string    `json:"source"`
	Symbol      string    `json:"symbol"`
	CompanyName string    `json:"companyName"`
	Amount      *float64  `json:"amount,omitempty"`
	IssuePrice  *float64  `json:"issuePrice,omitempty"`
	GainPercent *float64  `json:"gainPercent,omitempty"`
	CapturedAt  time.Time `json:"capturedAt"`
}

// ConsensusPremium summarises every quote collected for a symbol.
type ConsensusPremium struct {
	Symbol      string   `json:"symbol"`
	HasData     bool     `json:"hasData"`
	SourceCount int      `json:"sourceCount"`
	Sources     []string `json:"sources,omitempty"`
	Amount      *float64 `json:"amount,omitempty"`
	GainPercent *float64 `json:"gainPercent,omitempty"`
	IssuePrice  *float64 `json:"issuePrice,omitempty"`
	Reliability float64  `json:"reliability"`
}

func Float(v float64) *float64 { return &v }
