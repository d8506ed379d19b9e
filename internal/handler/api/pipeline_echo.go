package api

import (
	"context"
	"net/http"
	"sync"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/service/metrics"
	"IPOPulse/internal/service/ratelimit"
	"IPOPulse/internal/service/session"
	"IPOPulse/internal/usecase"
	xhttp "IPOPulse/pkg/http"
	applogger "IPOPulse/pkg/logger"
	"IPOPulse/pkg/queue"

	"github.com/labstack/echo/v4"
)

// Pipeline is what the API needs from the orchestrator.
type Pipeline interface {
	usecase.Runner
	Status() (*models.PipelineRun, bool)
	Latest(ctx context.Context) (*models.PipelineRun, error)
	LastRefresh(ctx context.Context, date string, stage models.StageName) (*models.StageRefresh, error)
	Premiums(ctx context.Context, date string) ([]models.PremiumQuote, error)
	Predictions(ctx context.Context, date string) ([]models.ConsensusPrediction, error)
	Prediction(ctx context.Context, date, symbol string) (*models.ConsensusPrediction, error)
	History(ctx context.Context, symbol string, limit int) ([]models.ConsensusPrediction, error)
}

type Session interface {
	Info() session.Info
	Refresh(ctx context.Context) error
}

type MarketStatusSource interface {
	MarketStatus(ctx context.Context) ([]models.MarketStatus, error)
}

// PipelineHandler serves the pipeline, prediction and session endpoints.
type PipelineHandler struct {
	logger   *applogger.Logger
	pipeline Pipeline
	session  Session
	market   MarketStatusSource
	jobs     queue.Publisher

	limiter  *ratelimit.Limiter
	runRate  float64
	runBurst int
	inflight sync.WaitGroup
}

type Option func(*PipelineHandler)

func WithSession(s Session) Option {
	return func(h *PipelineHandler) { h.session = s }
}

func WithMarketStatus(m MarketStatusSource) Option {
	return func(h *PipelineHandler) { h.market = m }
}

// WithJobQueue enables ?async=true stage refreshes.
func WithJobQueue(q queue.Publisher) Option {
	return func(h *PipelineHandler) { h.jobs = q }
}

// WithRunRateLimit throttles run, refresh and session-refresh requests per
// client address. perSec <= 0 disables the limit.
func WithRunRateLimit(perSec float64, burst int) Option {
	return func(h *PipelineHandler) { h.runRate, h.runBurst = perSec, burst }
}

func NewPipelineHandler(lgr *applogger.Logger, pipeline Pipeline, opts ...Option) *PipelineHandler {
	metrics.Register()
	h := &PipelineHandler{
		logger:   lgr.With(applogger.Component("api")),
		pipeline: pipeline,
		limiter:  ratelimit.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *PipelineHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/v1")
	g.POST("/runs", h.StartRun, h.throttle)
	g.GET("/runs/latest", h.LatestRun)
	g.POST("/runs/stages/:stage/refresh", h.RefreshStage, h.throttle)
	g.GET("/runs/stages/:stage/refresh", h.LastRefresh)
	g.GET("/premiums/:date", h.Premiums)
	g.GET("/predictions/:date", h.Predictions)
	g.GET("/predictions/:date/:symbol", h.Prediction)
	g.GET("/history/:symbol", h.History)
	g.GET("/session", h.SessionInfo)
	g.POST("/session/refresh", h.RefreshSession, h.throttle)
	g.GET("/market/status", h.MarketStatus)
}

// Wait blocks until runs started with async=true have returned.
func (h *PipelineHandler) Wait() { h.inflight.Wait() }

func (h *PipelineHandler) throttle(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if h.runRate > 0 && !h.limiter.Allow("trigger:"+c.RealIP(), h.runBurst, h.runRate) {
			metrics.APIErrors.WithLabelValues(c.Path(), "rate_limited").Inc()
			return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsErrorf("too many pipeline requests, retry later"))
		}
		return next(c)
	}
}

func (h *PipelineHandler) fail(c echo.Context, endpoint string, err error) error {
	kind := errs.KindOf(err)
	metrics.APIErrors.WithLabelValues(endpoint, kind.String()).Inc()
	appErr := toAppError(err)
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.Error("request failed", applogger.String("endpoint", endpoint), applogger.Error(err))
	}
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *PipelineHandler) Health(c echo.Context) error {
	run, running := h.pipeline.Status()
	body := map[string]interface{}{"status": "ok", "running": running}
	if run != nil {
		body["lastRunId"] = run.ID
		body["lastRunSuccess"] = run.Success
	}
	return xhttp.SuccessResponse(c, body)
}

// StartRun executes all stages. With async=true it returns 202 at once
// and the run continues in the background.
func (h *PipelineHandler) StartRun(c echo.Context) error {
	defer metrics.Observe("runs.start")()
	req := &models.RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	trigger := "api:" + c.RealIP()

	if req.Async {
		if _, running := h.pipeline.Status(); running {
			return h.fail(c, "runs.start", errs.Newf(errs.KindConflict, "pipeline", "a run is already in progress"))
		}
		h.inflight.Add(1)
		go func() {
			defer h.inflight.Done()
			if _, err := h.pipeline.Run(context.Background(), req.Date, trigger); err != nil {
				h.logger.Warn("async run finished with error", applogger.String("date", req.Date), applogger.Error(err))
			}
		}()
		return xhttp.AcceptedResponse(c, map[string]interface{}{"date": req.Date, "accepted": true})
	}

	run, err := h.pipeline.Run(c.Request().Context(), req.Date, trigger)
	if err != nil && (run == nil || !errs.IsKind(err, errs.KindCriticalStageFailure)) {
		return h.fail(c, "runs.start", err)
	}
	return xhttp.SuccessResponse(c, run)
}

func (h *PipelineHandler) LatestRun(c echo.Context) error {
	defer metrics.Observe("runs.latest")()
	run, running := h.pipeline.Status()
	if running {
		return xhttp.SuccessResponse(c, map[string]interface{}{"running": true, "run": run})
	}
	run, err := h.pipeline.Latest(c.Request().Context())
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no pipeline run recorded yet"))
		}
		return h.fail(c, "runs.latest", err)
	}
	return xhttp.SuccessResponse(c, map[string]interface{}{"running": false, "run": run})
}

// RefreshStage re-executes one stage, or queues it when async=true.
func (h *PipelineHandler) RefreshStage(c echo.Context) error {
	defer metrics.Observe("runs.refresh")()
	req := &models.StageRefreshRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stage, err := models.ParseStage(req.Stage)
	if err != nil {
		return h.fail(c, "runs.refresh", errs.E(errs.KindInvalid, "refresh", err))
	}

	if req.Async {
		if h.jobs == nil {
			return xhttp.AppErrorResponse(c, xhttp.UnavailableErrorf("asynchronous refresh needs the job queue"))
		}
		trigger := models.RunTrigger{Date: req.Date, Stage: stage, Source: "api"}
		if err := h.jobs.PublishMessage(c.Request().Context(), usecase.StageRefreshJobType, trigger); err != nil {
			return h.fail(c, "runs.refresh", err)
		}
		return xhttp.AcceptedResponse(c, trigger)
	}

	res, err := h.pipeline.RefreshStage(c.Request().Context(), string(stage), req.Date)
	if err != nil {
		return h.fail(c, "runs.refresh", err)
	}
	return xhttp.SuccessResponse(c, res)
}

// LastRefresh reports the most recent refresh of a stage for a date.
func (h *PipelineHandler) LastRefresh(c echo.Context) error {
	defer metrics.Observe("runs.refresh.last")()
	req := &models.RefreshLookupRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	stage, err := models.ParseStage(req.Stage)
	if err != nil {
		return h.fail(c, "runs.refresh.last", errs.E(errs.KindInvalid, "refresh", err))
	}
	rec, err := h.pipeline.LastRefresh(c.Request().Context(), req.Date, stage)
	if err != nil {
		return h.fail(c, "runs.refresh.last", err)
	}
	return xhttp.SuccessResponse(c, rec)
}

// Premiums lists the grey-market quotes stored for a date.
func (h *PipelineHandler) Premiums(c echo.Context) error {
	defer metrics.Observe("premiums.list")()
	req := &models.PremiumsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	quotes, err := h.pipeline.Premiums(c.Request().Context(), req.Date)
	if err != nil {
		return h.fail(c, "premiums.list", err)
	}
	return xhttp.ListResponse(c, quotes, int64(len(quotes)))
}

func (h *PipelineHandler) Predictions(c echo.Context) error {
	defer metrics.Observe("predictions.list")()
	req := &models.PredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	preds, err := h.pipeline.Predictions(c.Request().Context(), req.Date)
	if err != nil {
		return h.fail(c, "predictions.list", err)
	}
	return xhttp.ListResponse(c, preds, int64(len(preds)))
}

func (h *PipelineHandler) Prediction(c echo.Context) error {
	defer metrics.Observe("predictions.get")()
	req := &models.PredictionsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	pred, err := h.pipeline.Prediction(c.Request().Context(), req.Date, req.Symbol)
	if err != nil {
		return h.fail(c, "predictions.get", err)
	}
	return xhttp.SuccessResponse(c, pred)
}

func (h *PipelineHandler) History(c echo.Context) error {
	defer metrics.Observe("predictions.history")()
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	preds, err := h.pipeline.History(c.Request().Context(), req.Symbol, req.Limit)
	if err != nil {
		return h.fail(c, "predictions.history", err)
	}
	if preds == nil {
		preds = []models.ConsensusPrediction{}
	}
	return xhttp.ListResponse(c, preds, int64(len(preds)))
}

func (h *PipelineHandler) SessionInfo(c echo.Context) error {
	if h.session == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no exchange session in %s mode", "fixture"))
	}
	return xhttp.SuccessResponse(c, h.session.Info())
}

func (h *PipelineHandler) RefreshSession(c echo.Context) error {
	defer metrics.Observe("session.refresh")()
	if h.session == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no exchange session in %s mode", "fixture"))
	}
	if err := h.session.Refresh(c.Request().Context()); err != nil {
		return h.fail(c, "session.refresh", err)
	}
	return xhttp.SuccessResponse(c, h.session.Info())
}

func (h *PipelineHandler) MarketStatus(c echo.Context) error {
	defer metrics.Observe("market.status")()
	if h.market == nil {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("market status needs the exchange source"))
	}
	status, err := h.market.MarketStatus(c.Request().Context())
	if err != nil {
		return h.fail(c, "market.status", err)
	}
	return xhttp.ListResponse(c, status, int64(len(status)))
}

var _ xhttp.Handler = (*PipelineHandler)(nil)
