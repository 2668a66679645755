// Package evaluate asks an OpenAI-compatible chat model to assess a proposed
// prediction market and validates the structured answer.
package evaluate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/kunalatmosoft/MetaMarket/internal/domain"
	"github.com/kunalatmosoft/MetaMarket/internal/observability"
)

// Defaults target Gemini's OpenAI-compatible endpoint.
const (
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultModel   = "gemini-2.0-flash"
	DefaultTimeout = 60 * time.Second
)

// Config configures the model endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float32
	HTTPClient  *http.Client
}

// Gateway evaluates market proposals. Calls are not retried.
type Gateway struct {
	client      *openai.Client
	model       string
	timeout     time.Duration
	temperature float32
	schema      string
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewGateway creates a Gateway. metrics may be nil.
func NewGateway(cfg Config, metrics *observability.Metrics, logger *slog.Logger) (*Gateway, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	schema, err := json.MarshalIndent(&outputSchema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("evaluate: marshal schema: %w", err)
	}

	return &Gateway{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		schema:      string(schema),
		metrics:     metrics,
		logger:      logger.With(slog.String("component", "evaluate")),
	}, nil
}

// Evaluate sends the proposal to the model and returns its parsed verdict.
// Model text that is not JSON or breaks the schema yields a
// *domain.ModelOutputParseError; a failed call yields a *domain.UpstreamError.
func (g *Gateway) Evaluate(ctx context.Context, p domain.Proposal) (domain.EvaluationResult, error) {
	if strings.TrimSpace(p.Title) == "" || strings.TrimSpace(p.Description) == "" {
		return domain.EvaluationResult{}, fmt.Errorf("evaluate: title and description are required: %w", domain.ErrInvalidInput)
	}
	prompt, err := buildPrompt(p, g.schema)
	if err != nil {
		return domain.EvaluationResult{}, fmt.Errorf("evaluate: build prompt: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: g.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		g.metrics.Evaluation("upstream_error")
		g.logger.WarnContext(ctx, "model call failed",
			slog.String("model", g.model),
			slog.String("error", err.Error()),
		)
		return domain.EvaluationResult{}, &domain.UpstreamError{Err: describe(err)}
	}
	if len(resp.Choices) == 0 {
		g.metrics.Evaluation("upstream_error")
		return domain.EvaluationResult{}, &domain.UpstreamError{Err: errors.New("model returned no choices")}
	}

	raw := resp.Choices[0].Message.Content
	res, err := parseOutput(raw)
	if err != nil {
		g.metrics.Evaluation("parse_error")
		g.logger.WarnContext(ctx, "model output rejected",
			slog.String("error", err.Error()),
			slog.Int("raw_len", len(raw)),
		)
		return domain.EvaluationResult{}, err
	}

	g.metrics.Evaluation("ok")
	g.logger.InfoContext(ctx, "proposal evaluated",
		slog.String("recommendation", string(res.Recommendation)),
		slog.Float64("confidence", res.Confidence),
		slog.Duration("took", time.Since(start)),
	)
	return res, nil
}

// describe keeps the provider's status and message for API errors.
func describe(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("status %d: %s: %w", apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	return err
}
