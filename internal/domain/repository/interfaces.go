package repository

import (
	"context"
	"time"

	"IPOPulse/internal/domain/models"
)

// Storage persists whole documents under {namespace}/{key}. Keys are composed
// as {category}/{date} or {category}/{date}/{symbol}. Save overwrites the
// previous document atomically; Load returns errs.ErrNotFound when absent or
// older than maxAge (zero means no limit).
type Storage interface {
	Save(ctx context.Context, namespace, key string, payload interface{}) error
	Load(ctx context.Context, namespace, key string, maxAge time.Duration) (*models.Document, error)
}

// PredictionHistory keeps an append-only analytical record of fused predictions.
type PredictionHistory interface {
	Init(ctx context.Context) error
	Record(ctx context.Context, preds []models.ConsensusPrediction) error
	Recent(ctx context.Context, symbol string, limit int) ([]models.ConsensusPrediction, error)
	Close() error
}

// PredictionPublisher fans persisted predictions out to subscribers.
type PredictionPublisher interface {
	Publish(ctx context.Context, pred *models.ConsensusPrediction) error
	Close() error
}

type Metrics interface {
	RecordRequest(endpoint, outcome string)
	RecordWarmup(success bool)
	RecordStage(stage, status string, seconds float64)
	RecordRun(success bool, seconds float64)
	RecordPrediction(recommendation string)
	RecordCache(hit bool)
}

// NopMetrics discards all measurements.
type NopMetrics struct{}

func (NopMetrics) RecordRequest(string, string) {}
func (NopMetrics) RecordWarmup(bool) {}
func (NopMetrics) RecordStage(string, string, float64) {}
func (NopMetrics) RecordRun(bool, float64) {}
func (NopMetrics) RecordPrediction(string) {}
func (NopMetrics) RecordCache(bool) {}
