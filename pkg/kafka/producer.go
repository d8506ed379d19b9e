package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/segmentio/kafka-go"
)

var (
	producedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipopulse_kafka_produced_total",
		Help: "Records written to Kafka by topic and outcome",
	}, []string{"topic", "outcome"})
	producedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ipopulse_kafka_produced_bytes_total",
		Help: "Encoded payload bytes written to Kafka",
	}, []string{"topic"})
	produceLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ipopulse_kafka_produce_seconds",
		Help:    "Time spent in a single produce call",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"topic"})
)

// Record is one outbound message. Value may be []byte, a string or any
// JSON-encodable value.
type Record struct {
	Topic   string
	Key     []byte
	Value   interface{}
	Headers []kafka.Header
}

// Producer writes records through a shared kafka-go writer. The writer
// picks the topic per message so one Producer serves every topic.
type Producer struct {
	writer *kafka.Writer
}

// ErrNoBrokers is returned when the producer is built without brokers.
var ErrNoBrokers = errors.New("kafka: no brokers configured")

func NewProducer(opts ...ProducerOption) (*Producer, error) {
	cfg := defaultProducerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if len(cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	codec, err := cfg.codec()
	if err != nil {
		return nil, err
	}
	return &Producer{writer: &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     cfg.balancer(),
		RequiredAcks: kafka.RequiredAcks(cfg.Acks),
		Compression:  codec,
		MaxAttempts:  cfg.Attempts,
		WriteTimeout: cfg.Timeout,
		ReadTimeout:  cfg.Timeout,
		BatchSize:    cfg.MaxBatch,
		BatchBytes:   cfg.MaxBytes,
		BatchTimeout: cfg.Linger,
	}}, nil
}

// Send writes records in one call. Records that fail to encode abort the
// call before anything is written.
func (p *Producer) Send(ctx context.Context, records ...Record) error {
	if len(records) == 0 {
		return nil
	}
	now := time.Now()
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		v, err := encodeValue(r.Value)
		if err != nil {
			return fmt.Errorf("encode record for %s: %w", r.Topic, err)
		}
		msgs[i] = kafka.Message{Topic: r.Topic, Key: r.Key, Value: v, Headers: r.Headers, Time: now}
	}

	err := p.writer.WriteMessages(ctx, msgs...)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	elapsed := time.Since(now).Seconds()
	for _, m := range msgs {
		producedTotal.WithLabelValues(m.Topic, outcome).Inc()
		producedBytes.WithLabelValues(m.Topic).Add(float64(len(m.Value)))
	}
	produceLatency.WithLabelValues(msgs[0].Topic).Observe(elapsed)
	return err
}

// PublishMessage sends an unkeyed record; it lets the producer back the log
// collector.
func (p *Producer) PublishMessage(ctx context.Context, topic string, payload interface{}) error {
	return p.Send(ctx, Record{Topic: topic, Value: payload})
}

func (p *Producer) Close() error {
	return p.writer.Close()
}

func encodeValue(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case nil:
		return nil, nil
	}
	return json.Marshal(value)
}
