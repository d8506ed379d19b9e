package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	domrepo "IPOPulse/internal/domain/repository"
	"IPOPulse/internal/domain/service"
	"IPOPulse/internal/services/prediction"
	applogger "IPOPulse/pkg/logger"
	"IPOPulse/pkg/util"

	"github.com/google/uuid"
)

const (
	runLockKey  = "pipeline:run"
	latestRunID = "latest"
)

// PredictionCache is the fusion cache keyed by (symbol, date).
type PredictionCache interface {
	Get(ctx context.Context, symbol, date string) (*models.ConsensusPrediction, bool)
	Put(ctx context.Context, pred *models.ConsensusPrediction)
	InvalidateDate(ctx context.Context, date string)
}

// Locker serialises runs across processes sharing one Redis.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Orchestrator runs the seven pipeline stages for a date. Only one run or
// stage refresh executes at a time.
type Orchestrator struct {
	acq       service.Acquisition
	ai        service.AIPredictor
	store     domrepo.Storage
	metrics   domrepo.Metrics
	logger    *applogger.Logger
	math      *prediction.MathPredictor
	premium   *prediction.PremiumAggregator
	fusion    *prediction.FusionEngine
	cache     PredictionCache
	history   domrepo.PredictionHistory
	publisher domrepo.PredictionPublisher
	locker    Locker

	workers      int
	stageTimeout time.Duration
	runTimeout   time.Duration
	now          func() time.Time

	mu      sync.Mutex
	running bool
	current *models.PipelineRun
	latest  *models.PipelineRun
}

type OrchestratorOption func(*Orchestrator)

func WithWorkers(n int) OrchestratorOption {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithTimeouts sets the per-stage and whole-run deadlines.
func WithTimeouts(stage, run time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if stage > 0 {
			o.stageTimeout = stage
		}
		if run > 0 {
			o.runTimeout = run
		}
	}
}

func WithPredictors(m *prediction.MathPredictor, p *prediction.PremiumAggregator, f *prediction.FusionEngine) OrchestratorOption {
	return func(o *Orchestrator) {
		if m != nil {
			o.math = m
		}
		if p != nil {
			o.premium = p
		}
		if f != nil {
			o.fusion = f
		}
	}
}

func WithPredictionCache(c PredictionCache) OrchestratorOption {
	return func(o *Orchestrator) { o.cache = c }
}

func WithHistory(h domrepo.PredictionHistory) OrchestratorOption {
	return func(o *Orchestrator) {
		if h != nil {
			o.history = h
		}
	}
}

func WithPublisher(p domrepo.PredictionPublisher) OrchestratorOption {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithLocker(l Locker) OrchestratorOption {
	return func(o *Orchestrator) { o.locker = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func NewOrchestrator(acq service.Acquisition, ai service.AIPredictor, store domrepo.Storage,
	metrics domrepo.Metrics, lgr *applogger.Logger, opts ...OrchestratorOption) *Orchestrator {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	o := &Orchestrator{
		acq:          acq,
		ai:           ai,
		store:        store,
		metrics:      metrics,
		logger:       lgr.With(applogger.Component("orchestrator")),
		math:         prediction.NewMathPredictor(prediction.DefaultMathParams()),
		premium:      prediction.NewPremiumAggregator(prediction.DefaultPremiumParams()),
		fusion:       prediction.NewFusionEngine(prediction.DefaultFusionParams()),
		workers:      3,
		stageTimeout: 5 * time.Minute,
		runTimeout:   30 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// resolveDate defaults to today in the exchange time zone.
func (o *Orchestrator) resolveDate(date string) (string, error) {
	d, err := util.ParseRunDate(date, o.now())
	if err != nil {
		return "", errs.Newf(errs.KindInvalid, "pipeline", "date %q must be YYYY-MM-DD", date)
	}
	return d, nil
}

func validDate(op, date string) error {
	if _, err := time.Parse(util.RunDateLayout, date); err != nil {
		return errs.Newf(errs.KindInvalid, op, "date %q must be YYYY-MM-DD", date)
	}
	return nil
}

func (o *Orchestrator) acquire(ctx context.Context) (func(), error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, errs.Newf(errs.KindConflict, "pipeline", "a run is already in progress")
	}
	o.running = true
	o.mu.Unlock()

	locked := false
	if o.locker != nil {
		ok, err := o.locker.TryLock(ctx, runLockKey, o.runTimeout+time.Minute)
		switch {
		case err != nil:
			o.logger.Warn("run lock unavailable, continuing with local lock", applogger.Error(err))
		case !ok:
			o.mu.Lock()
			o.running = false
			o.mu.Unlock()
			return nil, errs.Newf(errs.KindConflict, "pipeline", "a run is already in progress on another instance")
		default:
			locked = true
		}
	}

	return func() {
		if locked {
			uctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := o.locker.Unlock(uctx, runLockKey); err != nil {
				o.logger.Warn("release run lock", applogger.Error(err))
			}
			cancel()
		}
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}, nil
}

// Run executes all stages for date ("" means today). The returned run is
// never nil once the run started; err is a Conflict or Invalid error when
// it could not start, or a CriticalStageFailure when stage 1 or 7 failed.
func (o *Orchestrator) Run(ctx context.Context, date, trigger string) (*models.PipelineRun, error) {
	date, err := o.resolveDate(date)
	if err != nil {
		return nil, err
	}
	release, err := o.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	run := &models.PipelineRun{
		ID:        uuid.NewString(),
		Date:      date,
		Trigger:   trigger,
		StartedAt: o.now().UTC(),
	}
	for _, name := range models.Stages() {
		run.Stages = append(run.Stages, models.StageResult{Name: name, Status: models.StatusPending})
	}
	o.mu.Lock()
	o.current = run
	o.mu.Unlock()

	l := o.logger.With(applogger.String("run_id", run.ID), applogger.String("date", date))
	l.Info("pipeline run started", applogger.String("trigger", trigger))

	rctx, cancel := context.WithTimeout(ctx, o.runTimeout)
	defer cancel()

	st := newRunState(date, run.ID)
	var runErr error
	for i, name := range models.Stages() {
		if err := rctx.Err(); err != nil {
			runErr = errs.E(errs.KindTransient, "pipeline", fmt.Errorf("run stopped before %s: %w", name, err))
			break
		}
		res := &run.Stages[i]
		o.executeStage(rctx, l, st, res)
		if name.Critical() && o.stageFailed(res) {
			runErr = &errs.Error{Kind: errs.KindCriticalStageFailure, Op: string(name), Msg: o.stageError(res)}
			break
		}
	}

	o.mu.Lock()
	finishRun(run, runErr, o.now().UTC())
	o.latest = run
	o.current = nil
	snapshot := copyRun(run)
	o.mu.Unlock()

	o.persistRun(ctx, snapshot, run.Date, latestRunID)
	o.metrics.RecordRun(snapshot.Success, snapshot.FinishedAt.Sub(snapshot.StartedAt).Seconds())
	l.Info("pipeline run finished",
		applogger.Bool("success", snapshot.Success),
		applogger.Float64("success_rate", snapshot.SuccessRate),
		applogger.Duration("elapsed", snapshot.FinishedAt.Sub(snapshot.StartedAt)))
	return snapshot, runErr
}

// RefreshStage re-executes one named stage for date using the stored
// outputs of the stages it depends on.
func (o *Orchestrator) RefreshStage(ctx context.Context, name, date string) (*models.StageResult, error) {
	stage, err := models.ParseStage(name)
	if err != nil {
		return nil, errs.E(errs.KindInvalid, "refresh", err)
	}
	date, err = o.resolveDate(date)
	if err != nil {
		return nil, err
	}
	release, err := o.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	l := o.logger.With(applogger.String("date", date), applogger.String("refresh", string(stage)))
	st, err := o.loadState(ctx, date, stage)
	if err != nil {
		return nil, err
	}
	st.runID = uuid.NewString()

	res := &models.StageResult{Name: stage, Status: models.StatusPending}
	o.executeStage(ctx, l, st, res)

	o.mu.Lock()
	out := *res
	o.mu.Unlock()
	o.recordRefresh(ctx, st.runID, date, out)
	return &out, nil
}

// Status returns the run in progress, or the last finished run.
func (o *Orchestrator) Status() (*models.PipelineRun, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current != nil {
		return copyRun(o.current), true
	}
	if o.latest != nil {
		return copyRun(o.latest), false
	}
	return nil, false
}

// Latest returns the last finished run, reading storage after a restart.
func (o *Orchestrator) Latest(ctx context.Context) (*models.PipelineRun, error) {
	o.mu.Lock()
	if o.latest != nil {
		run := copyRun(o.latest)
		o.mu.Unlock()
		return run, nil
	}
	o.mu.Unlock()

	doc, err := o.store.Load(ctx, models.NamespaceRuns, latestRunID, 0)
	if err != nil {
		return nil, err
	}
	var run models.PipelineRun
	if err := doc.Decode(&run); err != nil {
		return nil, errs.E(errs.KindMalformed, "pipeline.Latest", err)
	}
	return &run, nil
}

// Predictions returns every persisted prediction for date.
func (o *Orchestrator) Predictions(ctx context.Context, date string) ([]models.ConsensusPrediction, error) {
	if err := validDate("predictions", date); err != nil {
		return nil, err
	}
	doc, err := o.store.Load(ctx, models.NamespacePredictions, date, 0)
	if err != nil {
		return nil, err
	}
	var preds []models.ConsensusPrediction
	if err := doc.Decode(&preds); err != nil {
		return nil, errs.E(errs.KindMalformed, "predictions", err)
	}
	return preds, nil
}

// Premiums returns the grey-market quotes captured for date.
func (o *Orchestrator) Premiums(ctx context.Context, date string) ([]models.PremiumQuote, error) {
	if err := validDate("premiums", date); err != nil {
		return nil, err
	}
	doc, err := o.store.Load(ctx, models.NamespacePremiums, date, 0)
	if err != nil {
		return nil, err
	}
	var quotes []models.PremiumQuote
	if err := doc.Decode(&quotes); err != nil {
		return nil, errs.E(errs.KindMalformed, "premiums", err)
	}
	return quotes, nil
}

// Prediction returns one symbol's prediction, from the fusion cache when
// present.
func (o *Orchestrator) Prediction(ctx context.Context, date, symbol string) (*models.ConsensusPrediction, error) {
	if err := validDate("prediction", date); err != nil {
		return nil, err
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if o.cache != nil {
		if p, ok := o.cache.Get(ctx, symbol, date); ok {
			return p, nil
		}
	}
	doc, err := o.store.Load(ctx, models.NamespacePredictions, date+"/"+symbol, 0)
	if err != nil {
		return nil, err
	}
	var pred models.ConsensusPrediction
	if err := doc.Decode(&pred); err != nil {
		return nil, errs.E(errs.KindMalformed, "prediction", err)
	}
	if o.cache != nil {
		o.cache.Put(ctx, &pred)
	}
	return &pred, nil
}

// History returns the most recent recorded predictions for symbol.
func (o *Orchestrator) History(ctx context.Context, symbol string, limit int) ([]models.ConsensusPrediction, error) {
	if o.history == nil {
		return nil, nil
	}
	return o.history.Recent(ctx, strings.ToUpper(symbol), limit)
}

func (o *Orchestrator) stageFailed(res *models.StageResult) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return res.Status == models.StatusFailed
}

func (o *Orchestrator) stageError(res *models.StageResult) string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return res.Error
}

// executeStage runs one stage under the stage timeout and records its
// outcome in res. Result fields are only written under o.mu so Status can
// read them while the stage runs.
func (o *Orchestrator) executeStage(ctx context.Context, l *applogger.Logger, st *runState, res *models.StageResult) {
	name := res.Name
	started := o.now().UTC()
	o.mu.Lock()
	res.Status = models.StatusRunning
	res.StartedAt = &started
	res.FinishedAt = nil
	res.Error, res.Message, res.ItemCount, res.FailedItems = "", "", 0, nil
	o.mu.Unlock()

	sctx, cancel := context.WithTimeout(ctx, o.stageTimeout)
	defer cancel()

	out := o.stage(name)(sctx, st)
	if out.err == nil && errors.Is(sctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		out.err = errs.Newf(errs.KindTransient, string(name), "stage timed out after %s", o.stageTimeout)
	}

	finished := o.now().UTC()
	o.mu.Lock()
	res.FinishedAt = &finished
	res.ItemCount = out.count
	res.FailedItems = out.failed
	res.Message = out.message
	if out.err != nil {
		res.Status = models.StatusFailed
		res.Error = out.err.Error()
	} else {
		res.Status = models.StatusSucceeded
	}
	status := res.Status
	o.mu.Unlock()

	elapsed := finished.Sub(started)
	o.metrics.RecordStage(string(name), string(status), elapsed.Seconds())
	fields := []applogger.Field{
		applogger.String("stage", string(name)),
		applogger.String("status", string(status)),
		applogger.Int("items", out.count),
		applogger.Int("failed_items", len(out.failed)),
		applogger.Duration("elapsed", elapsed),
	}
	if out.err != nil {
		l.Warn("stage failed", append(fields, applogger.Error(out.err))...)
		return
	}
	l.Info("stage finished", fields...)
}

func finishRun(run *models.PipelineRun, runErr error, now time.Time) {
	run.FinishedAt = &now
	succeeded := 0
	for _, s := range run.Stages {
		if s.Status == models.StatusSucceeded {
			succeeded++
		}
	}
	if n := len(run.Stages); n > 0 {
		run.SuccessRate = float64(succeeded) / float64(n)
	}
	first := run.Stage(models.StageCurrentListings)
	last := run.Stage(models.StageFusion)
	run.Success = first != nil && first.Status == models.StatusSucceeded &&
		last != nil && last.Status == models.StatusSucceeded
	if runErr != nil {
		run.Error = runErr.Error()
	} else if !run.Success {
		run.Error = "critical stage did not succeed"
	}
}

func copyRun(run *models.PipelineRun) *models.PipelineRun {
	cp := *run
	cp.Stages = append([]models.StageResult(nil), run.Stages...)
	return &cp
}

func (o *Orchestrator) persistRun(ctx context.Context, run *models.PipelineRun, keys ...string) {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	for _, key := range keys {
		if err := o.store.Save(pctx, models.NamespaceRuns, key, run); err != nil {
			o.logger.Error("persist run status", applogger.String("run_id", run.ID), applogger.String("key", key), applogger.Error(err))
		}
	}
}

// recordRefresh stores a refreshed stage on its own. Finished runs are
// frozen, so the run for date keeps its stages and outcome.
func (o *Orchestrator) recordRefresh(ctx context.Context, id, date string, res models.StageResult) {
	rec := models.StageRefresh{ID: id, Date: date, RefreshedAt: o.now().UTC(), Result: res}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.store.Save(pctx, models.NamespaceRuns, models.RefreshKey(date, res.Name), rec); err != nil {
		o.logger.Error("persist stage refresh",
			applogger.String("refresh_id", id),
			applogger.String("stage", string(res.Name)),
			applogger.Error(err))
	}
}

// LastRefresh returns the most recent refresh of stage on date.
func (o *Orchestrator) LastRefresh(ctx context.Context, date string, stage models.StageName) (*models.StageRefresh, error) {
	if err := validDate("refresh", date); err != nil {
		return nil, err
	}
	doc, err := o.store.Load(ctx, models.NamespaceRuns, models.RefreshKey(date, stage), 0)
	if err != nil {
		return nil, err
	}
	var rec models.StageRefresh
	if err := doc.Decode(&rec); err != nil {
		return nil, errs.E(errs.KindMalformed, "pipeline.LastRefresh", err)
	}
	return &rec, nil
}
