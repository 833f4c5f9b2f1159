// Package fallback implements the model-assisted matcher that proposes
// pairings for mesh parts the deterministic pass could not resolve.
package fallback

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/turtacn/BOMMesh/internal/config"
	"github.com/turtacn/BOMMesh/internal/infrastructure/monitoring/logging"
	pkgerrors "github.com/turtacn/BOMMesh/pkg/errors"
)

// ChatClient sends one system/user exchange and returns the reply text.
type ChatClient interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// completer is the subset of *openai.Client used here.
type completer interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClient talks to any OpenAI-compatible chat completion endpoint.
// Calls are throttled by a token bucket and retried with exponential
// backoff on transport errors, 429 and 5xx responses.
type OpenAIClient struct {
	api         completer
	limiter     *rate.Limiter
	model       string
	temperature float32
	maxTokens   int
	maxRetries  int
	baseDelay   time.Duration
	logger      logging.Logger
}

// NewOpenAIClient builds a client from cfg.
func NewOpenAIClient(cfg config.FallbackConfig, log logging.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, pkgerrors.New(pkgerrors.ErrCodeFallbackUnavailable, "fallback api key is not configured")
	}
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = cfg.BaseURL
	oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return newOpenAIClient(openai.NewClientWithConfig(oc), cfg, log), nil
}

func newOpenAIClient(api completer, cfg config.FallbackConfig, log logging.Logger) *OpenAIClient {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &OpenAIClient{
		api:         api,
		limiter:     rate.NewLimiter(limit, burst),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		maxRetries:  cfg.MaxRetries,
		baseDelay:   time.Second,
		logger:      log.Named("fallback.client"),
	}
}

// Complete implements ChatClient.
func (c *OpenAIClient) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, c.backoff(attempt)); err != nil {
				return "", err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", err
		}

		start := time.Now()
		resp, err := c.api.CreateChatCompletion(ctx, req)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", pkgerrors.New(pkgerrors.ErrCodeFallbackReplyInvalid, "completion returned no choices")
			}
			c.logger.Debug("Completion received",
				logging.String("model", c.model),
				logging.Int("attempt", attempt+1),
				logging.Int("reply_chars", len(resp.Choices[0].Message.Content)),
				logging.Duration("elapsed", time.Since(start)))
			return resp.Choices[0].Message.Content, nil
		}

		lastErr = err
		if ctx.Err() != nil || !retryable(err) {
			break
		}
		c.logger.Warn("Completion attempt failed",
			logging.Int("attempt", attempt+1), logging.Int("max_retries", c.maxRetries), logging.Err(err))
	}
	return "", pkgerrors.Wrap(lastErr, pkgerrors.ErrCodeFallbackUnavailable, "chat completion failed")
}

func (c *OpenAIClient) backoff(attempt int) time.Duration {
	if c.baseDelay <= 0 {
		return 0
	}
	d := c.baseDelay << (attempt - 1)
	return d + time.Duration(rand.Int63n(int64(c.baseDelay)))
}

func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= 500
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= 500
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
