// Package llm adapts the OpenAI API to the rag.Embedder and rag.Generator
// interfaces.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// maxEmbeddingInputs is the API's per-request input limit.
const maxEmbeddingInputs = 512

// Config selects models and transport settings.
type Config struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Temperature    float64
	MaxRetries     int
	Timeout        time.Duration // per HTTP attempt
	Metrics        *Metrics      // optional
}

// Client implements rag.Embedder and rag.Generator.
type Client struct {
	api            openai.Client
	chatModel      string
	embeddingModel string
	temperature    float64
	metrics        *Metrics
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = "gpt-4"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-ada-002"
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}

	return &Client{
		api:            openai.NewClient(opts...),
		chatModel:      cfg.ChatModel,
		embeddingModel: cfg.EmbeddingModel,
		temperature:    cfg.Temperature,
		metrics:        cfg.Metrics,
	}, nil
}

// Embed requests embeddings in batches and returns them in input order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingInputs {
		end := min(start+maxEmbeddingInputs, len(texts))
		batch := texts[start:end]

		began := time.Now()
		resp, err := c.api.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			Model: openai.EmbeddingModel(c.embeddingModel),
		})
		c.metrics.record(ctx, "embeddings", c.embeddingModel, time.Since(began), err)
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		if len(resp.Data) != len(batch) {
			return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), len(batch))
		}

		vectors := make([][]float64, len(batch))
		for _, d := range resp.Data {
			if d.Index < 0 || int(d.Index) >= len(batch) {
				return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
			}
			vectors[d.Index] = d.Embedding
		}
		out = append(out, vectors...)
	}
	return out, nil
}

// Generate runs a single chat completion and returns the first choice.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	began := time.Now()
	resp, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.chatModel),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(c.temperature),
	})
	c.metrics.record(ctx, "chat", c.chatModel, time.Since(began), err)
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai chat: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
