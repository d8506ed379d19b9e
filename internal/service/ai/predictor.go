// Package ai adapts external AI providers to the prediction pipeline. Every
// provider returns errs.ErrInsufficientData when it cannot give a verdict;
// the fusion engine then substitutes a neutral prediction.
package ai

import (
	"context"
	"errors"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/domain/service"
	"IPOPulse/pkg/config"
	"IPOPulse/pkg/logger"
)

// Disabled is used when no provider is configured.
type Disabled struct{}

func (Disabled) Predict(context.Context, service.ListingDetails) (*models.SourcePrediction, error) {
	return nil, errs.E(errs.KindInsufficientData, "ai.Disabled.Predict", errors.New("ai provider disabled"))
}

// New selects the provider named by cfg.AI.Provider.
func New(cfg *config.Config, lgr *logger.Logger) service.AIPredictor {
	switch cfg.AI.Provider {
	case "openai":
		if cfg.AI.APIKey == "" {
			lgr.Warn("ai provider 'openai' has no api key, ai predictions disabled")
			return Disabled{}
		}
		return NewOpenAIPredictor(lgr, cfg.AI.APIKey,
			WithModel(cfg.AI.Model),
			WithBaseURL(cfg.AI.BaseURL),
			WithTemperature(cfg.AI.Temperature),
			WithTimeout(cfg.AI.Timeout),
		)
	case "http":
		return NewHTTPPredictor(lgr, cfg.AI.ServiceURL, cfg.AI.Timeout, cfg.AI.MaxRetries+1)
	default:
		return Disabled{}
	}
}
