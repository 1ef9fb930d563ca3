package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/apolo-agent/backend/internal/metrics"
	"github.com/apolo-agent/backend/pkg/circuitbreaker"
	"github.com/apolo-agent/backend/pkg/logger"
)

var (
	// ErrEmbeddingService wraps quota/auth/network failures of the embedding
	// provider. Recoverable per request.
	ErrEmbeddingService = errors.New("embedding service error")

	// ErrCompletionService wraps failures of the chat-completion provider.
	// Recoverable per request.
	ErrCompletionService = errors.New("completion service error")
)

// Config is injected at construction; the client never reads configuration
// from the environment on its own.
type Config struct {
	// Provider is "openai" or "azure".
	Provider string
	APIKey   string
	// Endpoint is the Azure resource endpoint; ignored for plain OpenAI.
	Endpoint    string
	Model       string
	VisionModel string

	// Azure deploys embeddings on a separate resource in the reference
	// setup; when unset the completion credentials are reused.
	EmbeddingAPIKey   string
	EmbeddingEndpoint string
	EmbeddingModel    string

	Temperature     float32
	MaxTokens       int
	EmbedTimeout    time.Duration
	CompleteTimeout time.Duration
}

// Client is the gateway to the embedding and chat-completion services. Both
// are opaque external collaborators: every call carries an explicit timeout,
// retries transient failures with exponential backoff, and trips a circuit
// breaker when the upstream keeps failing.
type Client struct {
	chat       *openai.Client
	embeddings *openai.Client
	cfg        Config
	breaker    *circuitbreaker.Breaker
}

func NewClient(cfg Config) *Client {
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 15 * time.Second
	}
	if cfg.CompleteTimeout <= 0 {
		cfg.CompleteTimeout = 60 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}

	chat := newProviderClient(cfg.Provider, cfg.APIKey, cfg.Endpoint)
	embeddings := chat
	if cfg.EmbeddingEndpoint != "" {
		key := cfg.EmbeddingAPIKey
		if key == "" {
			key = cfg.APIKey
		}
		embeddings = newProviderClient(cfg.Provider, key, cfg.EmbeddingEndpoint)
	}

	logger.Info("LLM client initialized",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.String("embedding_model", cfg.EmbeddingModel),
	)

	return &Client{
		chat:       chat,
		embeddings: embeddings,
		cfg:        cfg,
		breaker: circuitbreaker.New("llm", circuitbreaker.Config{
			OpenTimeout:      30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			Logger:           logger.Log,
		}),
	}
}

func newProviderClient(provider, apiKey, endpoint string) *openai.Client {
	if provider == "azure" {
		return openai.NewClientWithConfig(openai.DefaultAzureConfig(apiKey, endpoint))
	}
	return openai.NewClient(apiKey)
}

// Embed converts text into a fixed-dimension vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.EmbedTimeout)
	defer cancel()

	var embedding []float32
	err := c.breaker.Execute(ctx, func() error {
		return c.withBackoff(ctx, func() error {
			resp, err := c.embeddings.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: []string{text},
				Model: openai.EmbeddingModel(c.cfg.EmbeddingModel),
			})
			if err != nil {
				return err
			}
			if len(resp.Data) == 0 {
				return errors.New("empty embedding response")
			}
			embedding = resp.Data[0].Embedding
			recordUsage(c.cfg.EmbeddingModel, resp.Usage)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingService, err)
	}
	return embedding, nil
}

// Complete sends one assembled prompt payload and returns the model's
// free-text answer.
func (c *Client) Complete(ctx context.Context, payload string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CompleteTimeout)
	defer cancel()

	var answer string
	err := c.breaker.Execute(ctx, func() error {
		return c.withBackoff(ctx, func() error {
			resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model: c.cfg.Model,
				Messages: []openai.ChatCompletionMessage{
					{Role: openai.ChatMessageRoleUser, Content: payload},
				},
				Temperature: c.cfg.Temperature,
				MaxTokens:   c.cfg.MaxTokens,
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return errors.New("empty completion response")
			}
			answer = resp.Choices[0].Message.Content
			recordUsage(c.cfg.Model, resp.Usage)
			logger.Debug("Completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionService, err)
	}
	return answer, nil
}

// CompleteWithImage sends the payload together with one attached image to a
// vision-capable deployment.
func (c *Client) CompleteWithImage(ctx context.Context, payload string, imageBytes []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CompleteTimeout)
	defer cancel()

	model := c.cfg.VisionModel
	if model == "" {
		model = c.cfg.Model
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(imageBytes)

	var answer string
	err := c.breaker.Execute(ctx, func() error {
		return c.withBackoff(ctx, func() error {
			resp, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model: model,
				Messages: []openai.ChatCompletionMessage{
					{
						Role: openai.ChatMessageRoleUser,
						MultiContent: []openai.ChatMessagePart{
							{Type: openai.ChatMessagePartTypeText, Text: payload},
							{
								Type:     openai.ChatMessagePartTypeImageURL,
								ImageURL: &openai.ChatMessageImageURL{URL: dataURL},
							},
						},
					},
				},
				MaxTokens: c.cfg.MaxTokens,
			})
			if err != nil {
				return err
			}
			if len(resp.Choices) == 0 {
				return errors.New("empty completion response")
			}
			answer = resp.Choices[0].Message.Content
			recordUsage(model, resp.Usage)
			return nil
		})
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionService, err)
	}
	return answer, nil
}

// recordUsage feeds the provider's reported token counts into the usage
// counters.
func recordUsage(model string, usage openai.Usage) {
	if usage.PromptTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	}
	if usage.CompletionTokens > 0 {
		metrics.LLMTokensUsed.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
	}
}

// withBackoff retries rate-limited calls with exponential backoff; other
// API errors fail immediately.
func (c *Client) withBackoff(ctx context.Context, operation func() error) error {
	wrapped := func() error {
		err := operation()
		if err == nil {
			return nil
		}
		if isRateLimit(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second

	return backoff.Retry(wrapped, backoff.WithContext(b, ctx))
}

func isRateLimit(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429
	}
	return false
}
