package ai

import (
	"context"
	"errors"
	"time"

	"IPOPulse/internal/domain/errs"
	"IPOPulse/internal/domain/models"
	"IPOPulse/internal/domain/service"
	"IPOPulse/pkg/logger"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIPredictor asks an OpenAI-compatible chat model for a JSON verdict.
type OpenAIPredictor struct {
	client      *openai.Client
	model       string
	temperature float32
	timeout     time.Duration
	logger      *logger.Logger
}

type OpenAIOption func(*OpenAIPredictor, *openai.ClientConfig)

func WithModel(model string) OpenAIOption {
	return func(p *OpenAIPredictor, _ *openai.ClientConfig) {
		if model != "" {
			p.model = model
		}
	}
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(_ *OpenAIPredictor, cfg *openai.ClientConfig) {
		if url != "" {
			cfg.BaseURL = url
		}
	}
}

func WithTemperature(t float32) OpenAIOption {
	return func(p *OpenAIPredictor, _ *openai.ClientConfig) { p.temperature = t }
}

func WithTimeout(d time.Duration) OpenAIOption {
	return func(p *OpenAIPredictor, _ *openai.ClientConfig) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewOpenAIPredictor(lgr *logger.Logger, apiKey string, opts ...OpenAIOption) *OpenAIPredictor {
	cfg := openai.DefaultConfig(apiKey)
	p := &OpenAIPredictor{
		model:       openai.GPT4oMini,
		temperature: 0.2,
		timeout:     45 * time.Second,
		logger:      lgr.With(logger.Component("ai"), logger.String("provider", "openai")),
	}
	for _, opt := range opts {
		opt(p, &cfg)
	}
	p.client = openai.NewClientWithConfig(cfg)
	return p
}

func (p *OpenAIPredictor) Predict(ctx context.Context, details service.ListingDetails) (*models.SourcePrediction, error) {
	const op = "ai.OpenAIPredictor.Predict"

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.model,
		Temperature: p.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(details)},
		},
	})
	if err != nil {
		return nil, classifyOpenAIError(op, err)
	}
	if len(resp.Choices) == 0 {
		return nil, errs.Newf(errs.KindInsufficientData, op, "no choices returned")
	}

	parsed, err := ParseResponse(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	pred, err := parsed.Prediction()
	if err != nil {
		return nil, err
	}

	p.logger.Debug("ai prediction",
		logger.String("symbol", details.Listing.Symbol),
		logger.String("recommendation", string(pred.Recommendation)),
		logger.Int("tokens", resp.Usage.TotalTokens))
	return pred, nil
}

func classifyOpenAIError(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &errs.Error{Kind: classifyStatus(apiErr.HTTPStatusCode), Op: op, Status: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &errs.Error{Kind: classifyStatus(reqErr.HTTPStatusCode), Op: op, Status: reqErr.HTTPStatusCode, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errs.E(errs.KindTransient, op, err)
	}
	return errs.E(errs.KindUnknown, op, err)
}
