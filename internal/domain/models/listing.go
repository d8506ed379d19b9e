package models

import (
	"strings"
	"time"
)

type ListingCategory string

const (
	CategoryCurrent  ListingCategory = "current"
	CategoryUpcoming ListingCategory = "upcoming"
)

// ListingRecord is one public offering as published by the exchange.
type ListingRecord struct {
	Symbol            string          `json:"symbol"`
	CompanyName       string          `json:"companyName"`
	Series            string          `json:"series,omitempty"`
	PriceRange        string          `json:"priceRange"`
	PriceLow          float64         `json:"priceLow,omitempty"`
	PriceHigh         float64         `json:"priceHigh,omitempty"`
	IssueSize         string          `json:"issueSize,omitempty"`
	SharesOffered     int64           `json:"sharesOffered,omitempty"`
	SharesBid         int64           `json:"sharesBid,omitempty"`
	SubscriptionTimes float64         `json:"subscriptionTimes,omitempty"`
	OpenDate          string          `json:"openDate"`
	CloseDate         string          `json:"closeDate"`
	Status            string          `json:"status,omitempty"`
	Category          ListingCategory `json:"category"`
}

// Key is the listing identity: symbol plus issue window.
func (l ListingRecord) Key() string {
	return strings.ToUpper(l.Symbol) + "|" + l.OpenDate + "|" + l.CloseDate
}

// IssuePrice is the upper bound of the price band.
func (l ListingRecord) IssuePrice() float64 {
	if l.PriceHigh > 0 {
		return l.PriceHigh
	}
	return l.PriceLow
}

type SubscriptionCategory string

const (
	SubInstitutional    SubscriptionCategory = "institutional"
	SubNonInstitutional SubscriptionCategory = "non_institutional"
	SubRetail           SubscriptionCategory = "retail"
	SubEmployee         SubscriptionCategory = "employee"
	SubTotal            SubscriptionCategory = "total"
)

type CategorySubscription struct {
	Category      SubscriptionCategory `json:"category"`
	Label         string               `json:"label"`
	Times         float64              `json:"times"`
	SharesOffered int64                `json:"sharesOffered,omitempty"`
	SharesBid     int64                `json:"sharesBid,omitempty"`
}

// SubscriptionSnapshot holds subscription multiples for one listing on one date.
type SubscriptionSnapshot struct {
	Symbol           string                 `json:"symbol"`
	Date             string                 `json:"date"`
	Total            float64                `json:"total"`
	Institutional    float64                `json:"institutional"`
	NonInstitutional float64                `json:"nonInstitutional"`
	Retail           float64                `json:"retail"`
	Employee         float64                `json:"employee,omitempty"`
	Status           string                 `json:"status"`
	Categories       []CategorySubscription `json:"categories,omitempty"`
	UpdatedAt        string                 `json:"updatedAt,omitempty"`
	CapturedAt       time.Time              `json:"capturedAt"`
}

// HasData is false for nil snapshots and snapshots without any demand figure.
func (s *SubscriptionSnapshot) HasData() bool {
	if s == nil {
		return false
	}
	return s.Total > 0 || s.Institutional > 0 || s.NonInstitutional > 0 || s.Retail > 0
}

// SubscriptionStatus buckets a total subscription multiple into a label.
func SubscriptionStatus(total float64) string {
	switch {
	case total >= 5:
		return "Highly Oversubscribed"
	case total >= 2:
		return "Oversubscribed"
	case total >= 1:
		return "Fully Subscribed"
	case total >= 0.5:
		return "Moderately Subscribed"
	default:
		return "Undersubscribed"
	}
}

// MarketStatus is one segment entry of the exchange market status feed.
type MarketStatus struct {
	Market      string  `json:"market"`
	Status      string  `json:"marketStatus"`
	TradeDate   string  `json:"tradeDate"`
	Index       string  `json:"index,omitempty"`
	Last        float64 `json:"last,omitempty"`
	Variation   float64 `json:"variation,omitempty"`
	PercentDiff float64 `json:"percentChange,omitempty"`
	Message     string  `json:"marketStatusMessage,omitempty"`
}
