package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"IPOPulse/internal/domain/models"
	domrepo "IPOPulse/internal/domain/repository"
	applogger "IPOPulse/pkg/logger"
)

// Sink is one downstream consumer of persisted predictions.
type Sink interface {
	Publish(ctx context.Context, pred *models.ConsensusPrediction) error
}

type namedSink struct {
	name string
	sink Sink
}

type pending struct {
	pred     *models.ConsensusPrediction
	sink     int
	attempts int
}

// PublishPipeline fans predictions out to every sink. A sink that fails is
// retried from a bounded buffer in the background so a slow broker never
// blocks the pipeline run.
type PublishPipeline struct {
	sinks       []namedSink
	metrics     domrepo.Metrics
	logger      *applogger.Logger
	bufSize     int
	maxAttempts int
	backoffMin  time.Duration
	backoffMax  time.Duration

	bufCh    chan pending
	stopCh   chan struct{}
	done     chan struct{}
	mu       sync.Mutex
	started  bool
	closers  []func() error
	stopOnce sync.Once
}

type PipelineOption func(*PublishPipeline)

// WithBufferSize sets how many failed deliveries wait for a retry.
func WithBufferSize(n int) PipelineOption {
	return func(p *PublishPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

func WithMaxAttempts(n int) PipelineOption {
	return func(p *PublishPipeline) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithBackoff(min, max time.Duration) PipelineOption {
	return func(p *PublishPipeline) {
		if min > 0 && max >= min {
			p.backoffMin, p.backoffMax = min, max
		}
	}
}

// WithSink adds a named sink. A sink that also has Close() error is closed
// by Stop.
func WithSink(name string, s Sink) PipelineOption {
	return func(p *PublishPipeline) {
		if s == nil {
			return
		}
		p.sinks = append(p.sinks, namedSink{name: name, sink: s})
		if c, ok := s.(interface{ Close() error }); ok {
			p.closers = append(p.closers, c.Close)
		}
	}
}

func NewPublishPipeline(metrics domrepo.Metrics, lgr *applogger.Logger, opts ...PipelineOption) *PublishPipeline {
	p := &PublishPipeline{
		metrics:     metrics,
		logger:      lgr.With(applogger.Component("publish-pipeline")),
		bufSize:     256,
		maxAttempts: 5,
		backoffMin:  100 * time.Millisecond,
		backoffMax:  5 * time.Second,
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.bufCh = make(chan pending, p.bufSize)
	return p
}

// Start launches the retry loop.
func (p *PublishPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go p.retryLoop(ctx)
}

func (p *PublishPipeline) retryLoop(ctx context.Context) {
	defer close(p.done)
	backoff := p.backoffMin
	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case item := <-p.bufCh:
			s := p.sinks[item.sink]
			item.attempts++
			err := s.sink.Publish(ctx, item.pred)
			if err == nil {
				backoff = p.backoffMin
				p.metrics.RecordRequest("publish."+s.name, "retried")
				continue
			}
			if item.attempts >= p.maxAttempts {
				p.metrics.RecordRequest("publish."+s.name, "dropped")
				p.logger.Error("prediction dropped after retries",
					applogger.String("sink", s.name),
					applogger.String("symbol", item.pred.Symbol),
					applogger.Int("attempts", item.attempts),
					applogger.Error(err))
				continue
			}
			if backoff < p.backoffMax {
				backoff *= 2
				if backoff > p.backoffMax {
					backoff = p.backoffMax
				}
			}
			select {
			case <-time.After(backoff):
			case <-p.stopCh:
				return
			case <-ctx.Done():
				return
			}
			p.enqueue(item)
		}
	}
}

func (p *PublishPipeline) enqueue(item pending) {
	select {
	case p.bufCh <- item:
	default:
		p.metrics.RecordRequest("publish."+p.sinks[item.sink].name, "buffer_full")
		p.logger.Warn("publish buffer full, dropping prediction",
			applogger.String("sink", p.sinks[item.sink].name),
			applogger.String("symbol", item.pred.Symbol))
	}
}

// Publish validates the prediction and hands it to every sink. Failed
// deliveries are buffered for retry; the returned error joins them.
func (p *PublishPipeline) Publish(ctx context.Context, pred *models.ConsensusPrediction) error {
	if err := validatePrediction(pred); err != nil {
		p.metrics.RecordRequest("publish", "invalid")
		return err
	}

	var errs []error
	for i, s := range p.sinks {
		if err := s.sink.Publish(ctx, pred); err != nil {
			p.metrics.RecordRequest("publish."+s.name, "buffered")
			p.enqueue(pending{pred: pred, sink: i, attempts: 1})
			errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
			continue
		}
		p.metrics.RecordRequest("publish."+s.name, "ok")
	}
	return errors.Join(errs...)
}

// Stop ends the retry loop and closes closable sinks.
func (p *PublishPipeline) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
		p.mu.Lock()
		started := p.started
		p.mu.Unlock()
		if started {
			<-p.done
		}
	})
}

// Close implements domrepo.PredictionPublisher.
func (p *PublishPipeline) Close() error {
	p.Stop()
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Pending reports how many deliveries wait for a retry.
func (p *PublishPipeline) Pending() int { return len(p.bufCh) }

func validatePrediction(pred *models.ConsensusPrediction) error {
	if pred == nil {
		return fmt.Errorf("prediction nil")
	}
	if pred.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if pred.Date == "" {
		return fmt.Errorf("date empty")
	}
	if !pred.Recommendation.Valid() {
		return fmt.Errorf("recommendation %q invalid", pred.Recommendation)
	}
	return nil
}

var _ domrepo.PredictionPublisher = (*PublishPipeline)(nil)
