// Package oaiclient builds go-openai clients and classifies their errors.
package oaiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

// New returns a client for an OpenAI-compatible endpoint. The API key is
// read from the environment variable apiKeyEnv.
func New(baseURL, apiKeyEnv string, timeout time.Duration) (*openai.Client, error) {
	key := os.Getenv(apiKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", apiKeyEnv)
	}
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if timeout > 0 {
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return openai.NewClientWithConfig(cfg), nil
}

// Transient reports whether err is worth retrying: rate limits, server
// errors, timeouts and connection failures.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Retry runs op with exponential backoff, giving up after maxRetries
// retries, on the first non-transient error, or when ctx is done.
func Retry[T any](ctx context.Context, maxRetries int, initial time.Duration, op func(context.Context) (T, error)) (T, error) {
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	policy := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMaxInterval(5*time.Second),
		backoff.WithMaxElapsedTime(0),
	)
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(maxRetries, 0))), ctx)
	return backoff.RetryWithData(func() (T, error) {
		v, err := op(ctx)
		if err != nil && !Transient(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, b)
}
