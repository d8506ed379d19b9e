package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	applogger "IPOPulse/pkg/logger"
	pkgkafka "IPOPulse/pkg/kafka"
	"IPOPulse/pkg/queue"
)

// Runner is the part of the Orchestrator that triggers work.
type Runner interface {
	Run(ctx context.Context, date, trigger string) (*models.PipelineRun, error)
	RefreshStage(ctx context.Context, stage, date string) (*models.StageResult, error)
}

func dispatch(ctx context.Context, r Runner, t *models.RunTrigger, trigger string) error {
	if t.Stage != "" {
		_, err := r.RefreshStage(ctx, string(t.Stage), t.Date)
		return err
	}
	_, err := r.Run(ctx, t.Date, trigger)
	// a failed critical stage is recorded in the run; redelivery would not help
	if errs.IsKind(err, errs.KindCriticalStageFailure) {
		return nil
	}
	return err
}

// RunTriggerHandler starts a run for every message on the run-request topic.
type RunTriggerHandler struct {
	topic  string
	runner Runner
	logger *applogger.Logger
}

func NewRunTriggerHandler(topic string, runner Runner, lgr *applogger.Logger) *RunTriggerHandler {
	return &RunTriggerHandler{topic: topic, runner: runner, logger: lgr.With(applogger.Component("run-trigger"))}
}

func (h *RunTriggerHandler) Topic() string { return h.topic }

// incoming message schema: {"date":"YYYY-MM-DD","stage":"optional"}
func (h *RunTriggerHandler) Handle(ctx context.Context, b []byte) error {
	var t models.RunTrigger
	if err := json.Unmarshal(b, &t); err != nil {
		return &pkgkafka.HookError{Code: "ERR_DECODE", Err: err}
	}
	trigger := "kafka"
	if t.Source != "" {
		trigger = "kafka:" + t.Source
	}
	if id := pkgkafka.TraceIDFrom(ctx); id != "" {
		trigger += "#" + id
	}

	err := dispatch(ctx, h.runner, &t, trigger)
	switch {
	case err == nil:
		return nil
	case errs.IsKind(err, errs.KindConflict):
		// the run in progress already covers this request
		h.logger.Warn("run trigger skipped", applogger.String("date", t.Date), applogger.Error(err))
		return nil
	case errs.IsKind(err, errs.KindInvalid), errs.IsKind(err, errs.KindNotFound):
		h.logger.Warn("run trigger rejected", applogger.String("date", t.Date), applogger.Error(err))
		return nil
	}
	return fmt.Errorf("run trigger %s: %w", t.Date, err)
}

var _ pkgkafka.MessageHandler = (*RunTriggerHandler)(nil)

// StageRefreshJobType is the queue message type of asynchronous refreshes.
const StageRefreshJobType = "pipeline.stage_refresh"

// StageRefreshJob executes queued runs and stage refreshes. A conflicting
// run makes the job fail so the queue retries it later.
type StageRefreshJob struct {
	runner Runner
}

func NewStageRefreshJob(runner Runner) *StageRefreshJob {
	return &StageRefreshJob{runner: runner}
}

func (j *StageRefreshJob) Name() string { return "stage-refresh" }

func (j *StageRefreshJob) Type() string { return StageRefreshJobType }

func (j *StageRefreshJob) Handle(ctx context.Context, payload interface{}) error {
	t, err := queue.ParsePayload[models.RunTrigger](payload)
	if err != nil {
		return err
	}
	err = dispatch(ctx, j.runner, t, "queue")
	if errs.IsKind(err, errs.KindInvalid) || errs.IsKind(err, errs.KindNotFound) {
		// retrying cannot succeed until another run stores the inputs
		return nil
	}
	return err
}

var _ queue.Job = (*StageRefreshJob)(nil)
