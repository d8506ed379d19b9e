package service

import (
	"context"

	"IPOPulse/internal/domain/models"
)

// ListingSource fetches listings and subscription snapshots from the exchange.
type ListingSource interface {
	FetchListings(ctx context.Context, category models.ListingCategory, date string) ([]models.ListingRecord, error)
	FetchSubscription(ctx context.Context, symbol string) (*models.SubscriptionSnapshot, error)
}

// PremiumSource collects grey-market premium quotes from every configured source.
type PremiumSource interface {
	FetchPremiumQuotes(ctx context.Context) ([]models.PremiumQuote, error)
}

// Acquisition is the single data-acquisition surface the pipeline depends on.
// Implementations are strategies (primary network sources or fixtures).
type Acquisition interface {
	ListingSource
	PremiumSource
	Name() string
}

// AIPredictor produces an independent market-sentiment prediction for a listing.
// It returns errs.ErrInsufficientData when it cannot produce a confident result.
type AIPredictor interface {
	Predict(ctx context.Context, details ListingDetails) (*models.SourcePrediction, error)
}

// ListingDetails is everything known about a listing when the AI is consulted.
type ListingDetails struct {
	Listing      models.ListingRecord         `json:"listing"`
	Subscription *models.SubscriptionSnapshot `json:"subscription,omitempty"`
}
