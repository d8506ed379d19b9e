package repository

import (
	"context"

	"IPOPulse/internal/domain/models"
	domrepo "IPOPulse/internal/domain/repository"
)

// NopHistory is used when history.backend is "none".
type NopHistory struct{}

func (NopHistory) Init(context.Context) error { return nil }
func (NopHistory) Record(context.Context, []models.ConsensusPrediction) error { return nil }
func (NopHistory) Close() error { return nil }
func (NopHistory) Recent(context.Context, string, int) ([]models.ConsensusPrediction, error) {
	return nil, nil
}

var _ domrepo.PredictionHistory = NopHistory{}
