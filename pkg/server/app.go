package server

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/handler/api"
	"IPOPulse/internal/handler/ws"
	mid "IPOPulse/internal/middleware"
	"IPOPulse/internal/usecase"
	"IPOPulse/pkg/config"
	xhttp "IPOPulse/pkg/http"
	pkgkafka "IPOPulse/pkg/kafka"
	applogger "IPOPulse/pkg/logger"
	"IPOPulse/pkg/queue"
)

// App encapsulates the application lifecycle. Clients it did not create
// (Redis, Kafka producer, history stores) are released by the caller.
type App struct {
	cfg        *config.Config
	logger     *applogger.Logger
	orch       *usecase.Orchestrator
	handler    *api.PipelineHandler
	hub        *ws.Hub
	publisher  *mid.PublishPipeline
	consumer   *pkgkafka.Consumer
	jobs       *queue.RedisQueue
	httpServer *xhttp.Server
}

type Option func(*App)

func WithConsumer(c *pkgkafka.Consumer) Option {
	return func(a *App) { a.consumer = c }
}

func WithJobQueue(q *queue.RedisQueue) Option {
	return func(a *App) { a.jobs = q }
}

func New(
	cfg *config.Config,
	lgr *applogger.Logger,
	orch *usecase.Orchestrator,
	handler *api.PipelineHandler,
	hub *ws.Hub,
	publisher *mid.PublishPipeline,
	opts ...Option,
) *App {
	a := &App{
		cfg:       cfg,
		logger:    lgr.With(applogger.Component("app")),
		orch:      orch,
		handler:   handler,
		hub:       hub,
		publisher: publisher,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run serves HTTP, the websocket feed, the Kafka run trigger and the
// refresh queue until SIGINT/SIGTERM or a listen failure.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.Serve(ctx)
}

// Serve is Run with a caller-owned context.
func (a *App) Serve(ctx context.Context) error {
	a.publisher.Start(ctx)

	if a.jobs != nil {
		if err := a.jobs.Start(); err != nil {
			a.logger.Error("job queue start failed", applogger.Error(err))
			a.publisher.Stop()
			return err
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Start(); err != nil {
			a.logger.Error("kafka consumer start failed", applogger.Error(err))
			_ = a.shutdown()
			return err
		}
		a.logger.Info("kafka consumer started", applogger.String("topic", a.cfg.Kafka.RunRequestsTopic))
	}

	a.httpServer = xhttp.NewServer([]xhttp.Handler{a.handler, a.hub},
		xhttp.WithHost(a.cfg.Server.Host),
		xhttp.WithPort(a.cfg.Server.Port),
		xhttp.WithTimeouts(a.cfg.Server.ReadTimeout, a.cfg.Server.WriteTimeout, a.cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(true),
		xhttp.WithLogger(a.logger),
	)
	if err := a.httpServer.Start(); err != nil {
		_ = a.shutdown()
		return err
	}
	a.logger.Info("ipopulse started",
		applogger.String("env", a.cfg.Environment),
		applogger.String("acquisition", a.cfg.Acquisition.Strategy),
		applogger.String("storage", a.cfg.Storage.Backend),
		applogger.String("history", a.cfg.History.Backend))

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-a.httpServer.Err():
	}
	if err := a.shutdown(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// RunOnce executes a single pipeline run without serving anything.
func (a *App) RunOnce(ctx context.Context, date, trigger string) (*models.PipelineRun, error) {
	a.publisher.Start(ctx)
	defer func() {
		if n := a.publisher.Pending(); n > 0 {
			a.logger.Warn("exiting with undelivered predictions", applogger.Int("pending", n))
		}
		_ = a.publisher.Close()
	}()
	return a.orch.Run(ctx, date, trigger)
}

// LatestRun returns the last persisted run.
func (a *App) LatestRun(ctx context.Context) (*models.PipelineRun, error) {
	return a.orch.Latest(ctx)
}

// shutdown stops intake first, then lets in-flight work drain.
func (a *App) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if a.httpServer != nil {
		if err := a.httpServer.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.logger.Warn("kafka consumer stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}
	if a.jobs != nil {
		if err := a.jobs.Stop(ctx); err != nil {
			a.logger.Warn("job queue stop error", applogger.Error(err))
			errs = append(errs, err)
		}
	}

	done := make(chan struct{})
	go func() {
		a.handler.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("background runs still in flight at shutdown", applogger.Duration("waited", a.cfg.Server.ShutdownTimeout))
	}

	if err := a.publisher.Close(); err != nil {
		a.logger.Warn("publish pipeline close error", applogger.Error(err))
		errs = append(errs, err)
	}
	a.logger.Info("shutdown complete")
	return errors.Join(errs...)
}
