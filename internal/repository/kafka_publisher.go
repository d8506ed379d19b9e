package repository

import (
	"context"
	"fmt"
	"strings"

	"IPOPulse/internal/domain/models"
	domrepo "IPOPulse/internal/domain/repository"
	pkgkafka "IPOPulse/pkg/kafka"

	"github.com/segmentio/kafka-go"
)

// KafkaPublisher writes each persisted prediction to the predictions topic,
// keyed by symbol so one symbol's updates stay ordered.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

func (p *KafkaPublisher) Publish(ctx context.Context, pred *models.ConsensusPrediction) error {
	if pred == nil {
		return nil
	}
	var headers []kafka.Header
	if pred.RunID != "" {
		headers = append(headers, kafka.Header{Key: pkgkafka.TraceIDHeader, Value: []byte(pred.RunID)})
	}
	rec := pkgkafka.Record{
		Topic:   p.topic,
		Key:     []byte(strings.ToUpper(pred.Symbol)),
		Value:   pred,
		Headers: headers,
	}
	if err := p.producer.Send(ctx, rec); err != nil {
		return fmt.Errorf("publish prediction %s: %w", pred.Symbol, err)
	}
	return nil
}

// Close is a no-op. The producer is shared with the log collector and is
// closed by whoever created it.
func (p *KafkaPublisher) Close() error { return nil }

var _ domrepo.PredictionPublisher = (*KafkaPublisher)(nil)
