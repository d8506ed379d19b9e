package kafka

import (
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds producer settings. Zero values fall back to the
// defaults in NewProducer.
type ProducerConfig struct {
	Brokers     []string
	Acks        int // -1 all, 0 none, 1 leader
	Attempts    int
	Codec       string
	Timeout     time.Duration
	Linger      time.Duration
	MaxBatch    int
	MaxBytes    int64
	KeyAffinity bool
}

func defaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Acks:     int(kafka.RequireAll),
		Attempts: 3,
		Codec:    "snappy",
		Timeout:  10 * time.Second,
		Linger:   50 * time.Millisecond,
		MaxBatch: 100,
		MaxBytes: 1 << 20,
	}
}

func WithBrokers(brokers ...string) ProducerOption {
	return func(c *ProducerConfig) { c.Brokers = brokers }
}

// WithDelivery sets the acknowledgement level and how many times the writer
// retries a failed batch.
func WithDelivery(acks, attempts int) ProducerOption {
	return func(c *ProducerConfig) {
		c.Acks = acks
		if attempts > 0 {
			c.Attempts = attempts
		}
	}
}

func WithCodec(codec string) ProducerOption {
	return func(c *ProducerConfig) { c.Codec = codec }
}

func WithTimeout(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.Timeout = d }
}

// WithLinger bounds how long a partial batch waits before it is sent.
func WithLinger(d time.Duration) ProducerOption {
	return func(c *ProducerConfig) { c.Linger = d }
}

// WithKeyAffinity routes equal keys to one partition.
func WithKeyAffinity() ProducerOption {
	return func(c *ProducerConfig) { c.KeyAffinity = true }
}

func (c ProducerConfig) codec() (kafka.Compression, error) {
	switch c.Codec {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	}
	return 0, fmt.Errorf("unknown compression codec %q", c.Codec)
}

func (c ProducerConfig) balancer() kafka.Balancer {
	if c.KeyAffinity {
		return &kafka.Hash{}
	}
	return &kafka.LeastBytes{}
}
