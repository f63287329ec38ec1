// Package llm wraps the chat-completion backend used for answers and
// intent classification.
package llm

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"
	"go.uber.org/zap"

	"marketrag/internal/domain"
	"marketrag/internal/oaiclient"
	"marketrag/internal/zlog"
)

// Request is a single-turn completion.
type Request struct {
	System      string
	User        string
	Temperature float32
	// Schema, when set, constrains the reply to a JSON document named SchemaName.
	Schema     *jsonschema.Definition
	SchemaName string
}

// Generator produces text from a prompt.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config configures the OpenAI-compatible chat backend.
type Config struct {
	BaseURL        string
	APIKeyEnv      string
	Model          string
	Timeout        time.Duration
	InitialBackoff time.Duration
}

// Client implements Generator with go-openai. A transient failure is
// retried once; anything else surfaces as domain.ErrGenerationUnavailable.
type Client struct {
	client         *goopenai.Client
	model          string
	timeout        time.Duration
	initialBackoff time.Duration
}

const maxGenerationRetries = 1

var errEmptyCompletion = errors.New("empty completion")

func NewClient(cfg Config) (*Client, error) {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	client, err := oaiclient.New(cfg.BaseURL, cfg.APIKeyEnv, 0)
	if err != nil {
		return nil, err
	}
	return &Client{client: client, model: cfg.Model, timeout: cfg.Timeout, initialBackoff: cfg.InitialBackoff}, nil
}

func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	temperature := req.Temperature
	if temperature == 0 {
		// go-openai omits a zero temperature, which the API reads as 1.
		temperature = math.SmallestNonzeroFloat32
	}
	creq := goopenai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: req.System},
			{Role: goopenai.ChatMessageRoleUser, Content: req.User},
		},
	}
	if req.Schema != nil {
		creq.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: req.Schema,
				Strict: true,
			},
		}
	}

	resp, err := oaiclient.Retry(ctx, maxGenerationRetries, c.initialBackoff, func(ctx context.Context) (goopenai.ChatCompletionResponse, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()
		return c.client.CreateChatCompletion(attemptCtx, creq)
	})
	if err != nil {
		zlog.Error("chat completion failed", zap.String("model", c.model), zap.Error(err))
		return "", domain.NewOpError("generate", c.model, domain.ErrGenerationUnavailable, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", domain.NewOpError("generate", c.model, domain.ErrGenerationUnavailable, errEmptyCompletion)
	}
	return resp.Choices[0].Message.Content, nil
}
