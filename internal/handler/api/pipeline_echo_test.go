package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/service/session"
	"IPOPulse/internal/usecase"
	applogger "IPOPulse/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	mu        sync.Mutex
	running   bool
	runErr    error
	run       *models.PipelineRun
	refreshed []string
	preds     map[string]models.ConsensusPrediction
	quotes    map[string][]models.PremiumQuote
	refreshes map[string]models.StageRefresh
	dates     []string
}

func (f *fakePipeline) Run(_ context.Context, date, _ string) (*models.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dates = append(f.dates, date)
	return f.run, f.runErr
}

func (f *fakePipeline) RefreshStage(_ context.Context, stage, date string) (*models.StageResult, error) {
	f.refreshed = append(f.refreshed, stage+"@"+date)
	return &models.StageResult{Name: models.StageName(stage), Status: models.StatusSucceeded}, nil
}

func (f *fakePipeline) Status() (*models.PipelineRun, bool) { return f.run, f.running }

func (f *fakePipeline) Latest(context.Context) (*models.PipelineRun, error) {
	if f.run == nil {
		return nil, errs.ErrNotFound
	}
	return f.run, nil
}

func (f *fakePipeline) LastRefresh(_ context.Context, date string, stage models.StageName) (*models.StageRefresh, error) {
	rec, ok := f.refreshes[models.RefreshKey(date, stage)]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "storage", "runs/%s", models.RefreshKey(date, stage))
	}
	return &rec, nil
}

func (f *fakePipeline) Premiums(_ context.Context, date string) ([]models.PremiumQuote, error) {
	quotes, ok := f.quotes[date]
	if !ok {
		return nil, errs.Newf(errs.KindNotFound, "storage", "premiums/%s", date)
	}
	return quotes, nil
}

func (f *fakePipeline) Predictions(_ context.Context, date string) ([]models.ConsensusPrediction, error) {
	var out []models.ConsensusPrediction
	for _, p := range f.preds {
		if p.Date == date {
			out = append(out, p)
		}
	}
	if out == nil {
		return nil, errs.Newf(errs.KindNotFound, "storage", "predictions/%s", date)
	}
	return out, nil
}

func (f *fakePipeline) Prediction(_ context.Context, date, symbol string) (*models.ConsensusPrediction, error) {
	p, ok := f.preds[strings.ToUpper(symbol)]
	if !ok || p.Date != date {
		return nil, errs.Newf(errs.KindNotFound, "storage", "predictions/%s/%s", date, symbol)
	}
	return &p, nil
}

func (f *fakePipeline) History(context.Context, string, int) ([]models.ConsensusPrediction, error) {
	return nil, nil
}

type fakeQueue struct {
	msgType string
	payload interface{}
}

func (q *fakeQueue) PublishMessage(_ context.Context, msgType string, payload interface{}) error {
	q.msgType, q.payload = msgType, payload
	return nil
}

type fakeSession struct{ refreshErr error }

func (s *fakeSession) Info() session.Info { return session.Info{State: session.StateActive, Active: true} }
func (s *fakeSession) Refresh(context.Context) error { return s.refreshErr }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func serve(t *testing.T, h *PipelineHandler, method, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestStartRunSync(t *testing.T) {
	p := &fakePipeline{run: &models.PipelineRun{ID: "r1", Date: "2026-10-16", Success: true}}
	rec, env := serve(t, NewPipelineHandler(applogger.NewNop(), p), http.MethodPost, "/api/v1/runs?date=2026-10-16")
	assert.Equal(t, http.StatusOK, rec.Code)
	var run models.PipelineRun
	require.NoError(t, json.Unmarshal(env.Data, &run))
	assert.Equal(t, "r1", run.ID)
	assert.Equal(t, []string{"2026-10-16"}, p.dates)
}

func TestStartRunCriticalFailureStillReturnsRun(t *testing.T) {
	p := &fakePipeline{
		run:    &models.PipelineRun{ID: "r2", Success: false},
		runErr: errs.Newf(errs.KindCriticalStageFailure, "current_listings", "blocked"),
	}
	rec, _ := serve(t, NewPipelineHandler(applogger.NewNop(), p), http.MethodPost, "/api/v1/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStartRunConflict(t *testing.T) {
	p := &fakePipeline{runErr: errs.Newf(errs.KindConflict, "pipeline", "busy")}
	rec, env := serve(t, NewPipelineHandler(applogger.NewNop(), p), http.MethodPost, "/api/v1/runs")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, http.StatusConflict, env.Status)

	p = &fakePipeline{running: true, run: &models.PipelineRun{}}
	rec, _ = serve(t, NewPipelineHandler(applogger.NewNop(), p), http.MethodPost, "/api/v1/runs?async=true")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestStartRunAsync(t *testing.T) {
	p := &fakePipeline{run: &models.PipelineRun{ID: "r3"}}
	h := NewPipelineHandler(applogger.NewNop(), p)
	rec, _ := serve(t, h, http.MethodPost, "/api/v1/runs?async=true&date=2026-10-16")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	h.Wait()
	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, []string{"2026-10-16"}, p.dates)
}

func TestStartRunBadDate(t *testing.T) {
	rec, _ := serve(t, NewPipelineHandler(applogger.NewNop(), &fakePipeline{}), http.MethodPost, "/api/v1/runs?date=16-10-2026")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "YYYY-MM-DD")
}

func TestRefreshStage(t *testing.T) {
	p := &fakePipeline{}
	rec, _ := serve(t, NewPipelineHandler(applogger.NewNop(), p), http.MethodPost, "/api/v1/runs/stages/fusion/refresh?date=2026-10-16")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"fusion@2026-10-16"}, p.refreshed)

	rec, _ = serve(t, NewPipelineHandler(applogger.NewNop(), p), http.MethodPost, "/api/v1/runs/stages/gmp/refresh")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "valid stages")
}

func TestRefreshStageAsyncQueuesJob(t *testing.T) {
	q := &fakeQueue{}
	p := &fakePipeline{}
	h := NewPipelineHandler(applogger.NewNop(), p, WithJobQueue(q))
	rec, _ := serve(t, h, http.MethodPost, "/api/v1/runs/stages/premiums/refresh?async=true&date=2026-10-16")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, usecase.StageRefreshJobType, q.msgType)
	assert.Equal(t, models.RunTrigger{Date: "2026-10-16", Stage: models.StagePremiums, Source: "api"}, q.payload)
	assert.Empty(t, p.refreshed)

	rec, _ = serve(t, NewPipelineHandler(applogger.NewNop(), p), http.MethodPost, "/api/v1/runs/stages/premiums/refresh?async=true")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestPredictionEndpoints(t *testing.T) {
	p := &fakePipeline{preds: map[string]models.ConsensusPrediction{
		"ACME": {Symbol: "ACME", Date: "2026-10-16", Recommendation: models.RecStrongBuy},
	}}
	h := NewPipelineHandler(applogger.NewNop(), p)

	rec, env := serve(t, h, http.MethodGet, "/api/v1/predictions/2026-10-16/acme")
	assert.Equal(t, http.StatusOK, rec.Code)
	var pred models.ConsensusPrediction
	require.NoError(t, json.Unmarshal(env.Data, &pred))
	assert.Equal(t, models.RecStrongBuy, pred.Recommendation)

	rec, _ = serve(t, h, http.MethodGet, "/api/v1/predictions/2026-10-16")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = serve(t, h, http.MethodGet, "/api/v1/predictions/2026-10-17/ACME")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = serve(t, h, http.MethodGet, "/api/v1/predictions/yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLatestRunNotFound(t *testing.T) {
	rec, _ := serve(t, NewPipelineHandler(applogger.NewNop(), &fakePipeline{}), http.MethodGet, "/api/v1/runs/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionEndpoints(t *testing.T) {
	h := NewPipelineHandler(applogger.NewNop(), &fakePipeline{})
	rec, _ := serve(t, h, http.MethodGet, "/api/v1/session")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	s := &fakeSession{refreshErr: errs.Newf(errs.KindBlocked, "session.warmup", "status 403")}
	h = NewPipelineHandler(applogger.NewNop(), &fakePipeline{}, WithSession(s))
	rec, _ = serve(t, h, http.MethodGet, "/api/v1/session")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = serve(t, h, http.MethodPost, "/api/v1/session/refresh")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRunTriggersAreRateLimited(t *testing.T) {
	p := &fakePipeline{run: &models.PipelineRun{ID: "r"}}
	h := NewPipelineHandler(applogger.NewNop(), p, WithRunRateLimit(0.001, 1))
	rec, _ := serve(t, h, http.MethodPost, "/api/v1/runs")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = serve(t, h, http.MethodPost, "/api/v1/runs")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestPremiumsEndpoint(t *testing.T) {
	amount := 40.0
	p := &fakePipeline{quotes: map[string][]models.PremiumQuote{
		"2026-10-16": {{Source: "ipowatch", Symbol: "ACME", Amount: &amount}},
	}}
	h := NewPipelineHandler(applogger.NewNop(), p)

	rec, env := serve(t, h, http.MethodGet, "/api/v1/premiums/2026-10-16")
	assert.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Rows  []models.PremiumQuote `json:"rows"`
		Total int64                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, int64(1), list.Total)
	assert.Equal(t, "ACME", list.Rows[0].Symbol)

	rec, _ = serve(t, h, http.MethodGet, "/api/v1/premiums/2026-10-17")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = serve(t, h, http.MethodGet, "/api/v1/premiums/16-10-2026")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLastRefreshEndpoint(t *testing.T) {
	p := &fakePipeline{refreshes: map[string]models.StageRefresh{
		models.RefreshKey("2026-10-16", models.StageFusion): {
			ID: "f1", Date: "2026-10-16",
			Result: models.StageResult{Name: models.StageFusion, Status: models.StatusSucceeded},
		},
	}}
	h := NewPipelineHandler(applogger.NewNop(), p)

	rec, env := serve(t, h, http.MethodGet, "/api/v1/runs/stages/fusion/refresh?date=2026-10-16")
	assert.Equal(t, http.StatusOK, rec.Code)
	var got models.StageRefresh
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, "f1", got.ID)
	assert.Equal(t, models.StatusSucceeded, got.Result.Status)

	rec, _ = serve(t, h, http.MethodGet, "/api/v1/runs/stages/math_predictions/refresh?date=2026-10-16")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = serve(t, h, http.MethodGet, "/api/v1/runs/stages/fusion/refresh")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
