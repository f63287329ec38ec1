package oaiclient

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransient(t *testing.T) {
	assert.True(t, Transient(&openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}))
	assert.True(t, Transient(&openai.APIError{HTTPStatusCode: http.StatusBadGateway}))
	assert.True(t, Transient(&openai.RequestError{HTTPStatusCode: http.StatusServiceUnavailable}))
	assert.True(t, Transient(context.DeadlineExceeded))
	assert.False(t, Transient(&openai.APIError{HTTPStatusCode: http.StatusUnauthorized}))
	assert.False(t, Transient(errors.New("bad input")))
	assert.False(t, Transient(nil))
}

func TestRetry(t *testing.T) {
	ctx := context.Background()

	t.Run("Transient failures are retried until success", func(t *testing.T) {
		calls := 0
		v, err := Retry(ctx, 3, time.Millisecond, func(context.Context) (int, error) {
			calls++
			if calls < 3 {
				return 0, &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}
			}
			return 42, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 42, v)
		assert.Equal(t, 3, calls)
	})

	t.Run("Retries are bounded", func(t *testing.T) {
		calls := 0
		_, err := Retry(ctx, 1, time.Millisecond, func(context.Context) (int, error) {
			calls++
			return 0, &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}
		})
		assert.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("Permanent failures stop immediately", func(t *testing.T) {
		calls := 0
		_, err := Retry(ctx, 5, time.Millisecond, func(context.Context) (int, error) {
			calls++
			return 0, &openai.APIError{HTTPStatusCode: http.StatusBadRequest, Message: "bad"}
		})
		var apiErr *openai.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, 1, calls)
	})

	t.Run("Zero retries means one attempt", func(t *testing.T) {
		calls := 0
		_, err := Retry(ctx, 0, time.Millisecond, func(context.Context) (int, error) {
			calls++
			return 0, context.DeadlineExceeded
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

func TestNewRequiresKey(t *testing.T) {
	t.Setenv("MARKETRAG_TEST_KEY", "")
	_, err := New("", "MARKETRAG_TEST_KEY", 0)
	assert.Error(t, err)

	t.Setenv("MARKETRAG_TEST_KEY", "sk-test")
	c, err := New("http://localhost:1/v1", "MARKETRAG_TEST_KEY", time.Second)
	require.NoError(t, err)
	assert.NotNil(t, c)
}
