package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"marketrag/internal/domain"
	"marketrag/internal/oaiclient"
	"marketrag/internal/zlog"
)

// Client is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Client struct {
	client         *goopenai.Client
	model          string
	timeout        time.Duration
	dimension      atomic.Int64
	maxRetries     int
	initialBackoff time.Duration
}

// Config configures the OpenAI-compatible embeddings client.
type Config struct {
	BaseURL        string
	APIKeyEnv      string
	Model          string
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
}

// NewClient creates a new embeddings client using the provided configuration.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	client, err := oaiclient.New(cfg.BaseURL, cfg.APIKeyEnv, 0)
	if err != nil {
		return nil, err
	}
	return &Client{
		client:         client,
		model:          cfg.Model,
		timeout:        cfg.Timeout,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
	}, nil
}

// Name returns the embedding model identifier.
func (c *Client) Name() string { return "openai:" + c.model }

// Dimension is known after the first successful call.
func (c *Client) Dimension() int { return int(c.dimension.Load()) }

// Embed returns one vector per text, in input order. Failures after the
// retry budget is spent are reported as domain.ErrEmbeddingUnavailable.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := oaiclient.Retry(ctx, c.maxRetries, c.initialBackoff, func(ctx context.Context) (goopenai.EmbeddingResponse, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.client.CreateEmbeddings(attemptCtx, goopenai.EmbeddingRequest{
			Model: goopenai.EmbeddingModel(c.model),
			Input: texts,
		})
	})
	if err != nil {
		zlog.Error("embedding request failed", zap.String("model", c.model), zap.Int("texts", len(texts)), zap.Error(err))
		return nil, domain.NewOpError("embed", "", domain.ErrEmbeddingUnavailable, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.NewOpError("embed", "", domain.ErrEmbeddingUnavailable,
			fmt.Errorf("got %d embeddings for %d texts", len(resp.Data), len(texts)))
	}
	data := resp.Data
	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	out := make([][]float32, len(data))
	for i, d := range data {
		if len(d.Embedding) == 0 {
			return nil, domain.NewOpError("embed", "", domain.ErrEmbeddingUnavailable, errors.New("no embedding returned"))
		}
		v := make([]float32, len(d.Embedding))
		copy(v, d.Embedding)
		out[i] = v
	}
	c.dimension.CompareAndSwap(0, int64(len(out[0])))
	return out, nil
}
