package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/domain/service"
	"IPOPulse/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var acme = service.ListingDetails{
	Listing: models.ListingRecord{Symbol: "ACME", CompanyName: "Acme Industries Limited", PriceRange: "100-110"},
	Subscription: &models.SubscriptionSnapshot{
		Symbol: "ACME", Total: 15.5, Institutional: 12.1, NonInstitutional: 8.2, Retail: 3.2,
	},
}

func TestParseResponseStripsFences(t *testing.T) {
	r, err := ParseResponse("```json\n{\"recommendation\":\"BUY\",\"expected_gain_percent\":12.5,\"confidence\":\"HIGH\",\"risk_level\":\"LOW\",\"reasoning\":\"strong book\"}\n```")
	require.NoError(t, err)

	pred, err := r.Prediction()
	require.NoError(t, err)
	assert.Equal(t, models.RecBuy, pred.Recommendation)
	assert.Equal(t, 12.5, pred.ExpectedGainPercent)
	assert.Equal(t, models.ConfidenceHigh, pred.Confidence)
	assert.Equal(t, models.RiskLow, pred.Risk)
	assert.Equal(t, models.SourceExternalAI, pred.Source)
	assert.True(t, pred.HasData)
	assert.Equal(t, "strong book", pred.Reasoning)
}

func TestParseResponseMalformed(t *testing.T) {
	_, err := ParseResponse("I think it will list well")
	if !errs.IsKind(err, errs.KindMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestPredictionAlternativeFields(t *testing.T) {
	r, err := ParseResponse(`{"recommendation":"strong buy","expected_listing_gain_percent":30,"confidence_score":72,"risk_level":"medium_high","ai_reasoning":"x"}`)
	require.NoError(t, err)

	pred, err := r.Prediction()
	require.NoError(t, err)
	assert.Equal(t, models.RecStrongBuy, pred.Recommendation)
	assert.Equal(t, 30.0, pred.ExpectedGainPercent)
	assert.Equal(t, models.ConfidenceHigh, pred.Confidence)
	assert.Equal(t, 72.0, pred.Score)
	assert.Equal(t, models.RiskMediumHigh, pred.Risk)
	assert.Equal(t, "x", pred.Reasoning)
}

func TestPredictionInsufficientData(t *testing.T) {
	for _, body := range []string{
		`{"recommendation":"INSUFFICIENT_DATA","expected_gain_percent":0}`,
		`{"recommendation":"maybe","expected_gain_percent":4}`,
		`{"recommendation":"BUY"}`,
	} {
		r, err := ParseResponse(body)
		require.NoError(t, err)
		_, err = r.Prediction()
		assert.ErrorIs(t, err, errs.ErrInsufficientData, body)
	}
}

func TestBuildPromptIncludesSubscription(t *testing.T) {
	p := BuildPrompt(acme)
	assert.Contains(t, p, "Acme Industries Limited")
	assert.Contains(t, p, "Total: 15.50x")
	assert.Contains(t, p, "expected_gain_percent")

	bare := BuildPrompt(service.ListingDetails{Listing: models.ListingRecord{Symbol: "X"}})
	assert.NotContains(t, bare, "SUBSCRIPTION")
	assert.Contains(t, bare, "Company: Unknown")
}

func TestHTTPPredictorRetriesTransient(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != predictPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var got service.ListingDetails
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil || got.Listing.Symbol != "ACME" {
			t.Errorf("bad payload: %v %+v", err, got)
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"recommendation":"HOLD","expected_gain_percent":4,"confidence":"LOW"}`))
	}))
	defer srv.Close()

	p := NewHTTPPredictor(logger.NewNop(), srv.URL, 0, 3)
	pred, err := p.Predict(context.Background(), acme)
	require.NoError(t, err)
	assert.Equal(t, models.RecHold, pred.Recommendation)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestHTTPPredictorDoesNotRetryInvalid(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	p := NewHTTPPredictor(logger.NewNop(), srv.URL, 0, 3)
	_, err := p.Predict(context.Background(), acme)
	assert.True(t, errs.IsKind(err, errs.KindInvalid), "got %v", err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestOpenAIPredictor(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Model          string `json:"model"`
			ResponseFormat struct {
				Type string `json:"type"`
			} `json:"response_format"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.ResponseFormat.Type != "json_object" {
			t.Errorf("response format = %q", req.ResponseFormat.Type)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 0,
			"model":   req.Model,
			"choices": []map[string]interface{}{{
				"index":         0,
				"finish_reason": "stop",
				"message": map[string]string{
					"role":    "assistant",
					"content": `{"recommendation":"BUY","expected_gain_percent":22,"confidence":"MEDIUM","risk_level":"MEDIUM"}`,
				},
			}},
			"usage": map[string]int{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		})
	}))
	defer srv.Close()

	p := NewOpenAIPredictor(logger.NewNop(), "test-key", WithBaseURL(srv.URL+"/v1"), WithModel("test-model"))
	pred, err := p.Predict(context.Background(), acme)
	require.NoError(t, err)
	assert.Equal(t, models.RecBuy, pred.Recommendation)
	assert.Equal(t, 22.0, pred.ExpectedGainPercent)
}

func TestOpenAIPredictorRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIPredictor(logger.NewNop(), "test-key", WithBaseURL(srv.URL+"/v1"))
	_, err := p.Predict(context.Background(), acme)
	assert.ErrorIs(t, err, errs.ErrBlocked)
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.Predict(context.Background(), acme)
	assert.ErrorIs(t, err, errs.ErrInsufficientData)
}
