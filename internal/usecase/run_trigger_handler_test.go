package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	pkgkafka "IPOPulse/pkg/kafka"
	applogger "IPOPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunner struct {
	runErr     error
	refreshErr error
	runs       []string
	triggers   []string
	refreshes  []string
}

func (f *fakeRunner) Run(_ context.Context, date, trigger string) (*models.PipelineRun, error) {
	f.runs = append(f.runs, date)
	f.triggers = append(f.triggers, trigger)
	return &models.PipelineRun{Date: date}, f.runErr
}

func (f *fakeRunner) RefreshStage(_ context.Context, stage, date string) (*models.StageResult, error) {
	f.refreshes = append(f.refreshes, stage+"@"+date)
	return &models.StageResult{Name: models.StageName(stage)}, f.refreshErr
}

func TestRunTriggerHandlerStartsRun(t *testing.T) {
	r := &fakeRunner{}
	h := NewRunTriggerHandler("ipo.run.requests", r, applogger.NewNop())
	assert.Equal(t, "ipo.run.requests", h.Topic())

	ctx := pkgkafka.WithTraceID(context.Background(), "abc")
	require.NoError(t, h.Handle(ctx, []byte(`{"date":"2026-10-16","source":"cron"}`)))
	assert.Equal(t, []string{"2026-10-16"}, r.runs)
	assert.Equal(t, []string{"kafka:cron#abc"}, r.triggers)
}

func TestRunTriggerHandlerRefreshesStage(t *testing.T) {
	r := &fakeRunner{}
	h := NewRunTriggerHandler("t", r, applogger.NewNop())
	require.NoError(t, h.Handle(context.Background(), []byte(`{"date":"2026-10-16","stage":"fusion"}`)))
	assert.Empty(t, r.runs)
	assert.Equal(t, []string{"fusion@2026-10-16"}, r.refreshes)
}

func TestRunTriggerHandlerErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"critical failure is recorded", errs.Newf(errs.KindCriticalStageFailure, "fusion", "x"), false},
		{"conflict is skipped", errs.Newf(errs.KindConflict, "pipeline", "busy"), false},
		{"invalid is dropped", errs.Newf(errs.KindInvalid, "pipeline", "bad date"), false},
		{"other errors retry", errors.New("disk full"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := NewRunTriggerHandler("t", &fakeRunner{runErr: tc.err}, applogger.NewNop())
			err := h.Handle(context.Background(), []byte(`{"date":"2026-10-16"}`))
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestRunTriggerHandlerBadJSON(t *testing.T) {
	h := NewRunTriggerHandler("t", &fakeRunner{}, applogger.NewNop())
	err := h.Handle(context.Background(), []byte(`{`))
	var he *pkgkafka.HookError
	require.ErrorAs(t, err, &he)
	assert.Equal(t, "ERR_DECODE", he.Code)
}

func TestStageRefreshJob(t *testing.T) {
	r := &fakeRunner{}
	j := NewStageRefreshJob(r)
	assert.Equal(t, StageRefreshJobType, j.Type())

	payload, err := json.Marshal(models.RunTrigger{Date: "2026-10-16", Stage: models.StagePremiums})
	require.NoError(t, err)
	require.NoError(t, j.Handle(context.Background(), json.RawMessage(payload)))
	assert.Equal(t, []string{"premiums@2026-10-16"}, r.refreshes)

	require.NoError(t, j.Handle(context.Background(), models.RunTrigger{Date: "2026-10-16"}))
	assert.Equal(t, []string{"queue"}, r.triggers)
}

func TestStageRefreshJobRetriesConflict(t *testing.T) {
	r := &fakeRunner{refreshErr: errs.Newf(errs.KindConflict, "pipeline", "busy")}
	j := NewStageRefreshJob(r)
	err := j.Handle(context.Background(), &models.RunTrigger{Date: "2026-10-16", Stage: models.StageFusion})
	assert.True(t, errs.IsKind(err, errs.KindConflict))

	r.refreshErr = errs.Newf(errs.KindNotFound, "refresh", "no listings")
	assert.NoError(t, j.Handle(context.Background(), &models.RunTrigger{Date: "2026-10-16", Stage: models.StageFusion}))
}
