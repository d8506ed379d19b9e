package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/domain/service"
	xhttp "IPOPulse/pkg/http"
	"IPOPulse/pkg/logger"
)

const predictPath = "/predict"

// HTTPPredictor delegates to a sidecar prediction service that accepts the
// listing details as JSON and replies with a Response document.
type HTTPPredictor struct {
	baseURL  string
	client   *xhttp.Client
	attempts int
	logger   *logger.Logger
}

func NewHTTPPredictor(lgr *logger.Logger, baseURL string, timeout time.Duration, attempts int) *HTTPPredictor {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if attempts < 1 {
		attempts = 1
	}
	return &HTTPPredictor{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   xhttp.NewClient(xhttp.WithTimeout(timeout)),
		attempts: attempts,
		logger:   lgr.With(logger.Component("ai"), logger.String("provider", "http")),
	}
}

func (p *HTTPPredictor) Predict(ctx context.Context, details service.ListingDetails) (*models.SourcePrediction, error) {
	var reply Response
	if err := p.postJSONWithRetry(ctx, predictPath, details, &reply); err != nil {
		return nil, err
	}
	return reply.Prediction()
}

func (p *HTTPPredictor) postJSON(ctx context.Context, path string, payload, dest interface{}) error {
	const op = "ai.HTTPPredictor.post"

	resp, err := p.client.SendRequest(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     p.baseURL + path,
		Headers: map[string]string{"Content-Type": "application/json"},
		Body:    payload,
	})
	if err != nil {
		return errs.E(errs.KindTransient, op, fmt.Errorf("post %s: %w", path, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := xhttp.ReadBody(resp, 512)
		return &errs.Error{Kind: classifyStatus(resp.StatusCode), Op: op, Status: resp.StatusCode, Msg: strings.TrimSpace(string(body))}
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return errs.E(errs.KindMalformed, op, err)
	}
	return nil
}

// postJSONWithRetry retries retryable failures with a linear backoff.
func (p *HTTPPredictor) postJSONWithRetry(ctx context.Context, path string, payload, dest interface{}) error {
	var err error
	for i := 1; i <= p.attempts; i++ {
		err = p.postJSON(ctx, path, payload, dest)
		if err == nil || !errs.KindOf(err).Retryable() || i == p.attempts {
			return err
		}
		p.logger.Warn("ai request failed, retrying", logger.Int("attempt", i), logger.Error(err))
		select {
		case <-time.After(time.Duration(i) * 250 * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return err
}
