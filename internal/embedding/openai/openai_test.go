package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketrag/internal/domain"
)

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc, retries int) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("MARKETRAG_EMBED_KEY", "sk-test")
	c, err := NewClient(Config{
		BaseURL:        srv.URL + "/v1",
		APIKeyEnv:      "MARKETRAG_EMBED_KEY",
		Model:          "text-embedding-3-small",
		Timeout:        2 * time.Second,
		MaxRetries:     retries,
		InitialBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func writeEmbeddings(w http.ResponseWriter, n int, reversed bool) {
	type item struct {
		Object    string    `json:"object"`
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	}
	data := make([]item, n)
	for i := 0; i < n; i++ {
		idx := i
		if reversed {
			idx = n - 1 - i
		}
		data[i] = item{Object: "embedding", Index: idx, Embedding: []float32{float32(idx), 1, 0}}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "text-embedding-3-small"})
}

func TestClientEmbed(t *testing.T) {
	ctx := context.Background()

	t.Run("Returns vectors in input order", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/embeddings", r.URL.Path)
			assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
			var req embeddingRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "text-embedding-3-small", req.Model)
			writeEmbeddings(w, len(req.Input), true)
		}, 0)

		vecs, err := c.Embed(ctx, []string{"a", "b", "c"})
		require.NoError(t, err)
		require.Len(t, vecs, 3)
		for i, v := range vecs {
			assert.Equal(t, float32(i), v[0])
		}
		assert.Equal(t, 3, c.Dimension())
		assert.Equal(t, "openai:text-embedding-3-small", c.Name())
	})

	t.Run("Rate limits are retried", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit_error"}}`))
				return
			}
			writeEmbeddings(w, 1, false)
		}, 2)

		vecs, err := c.Embed(ctx, []string{"q"})
		require.NoError(t, err)
		assert.Len(t, vecs, 1)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Persistent outage is reported as unavailable", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":{"message":"down","type":"server_error"}}`))
		}, 2)

		_, err := c.Embed(ctx, []string{"q"})
		assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Empty input makes no request", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("unexpected request")
		}, 0)
		vecs, err := c.Embed(ctx, nil)
		require.NoError(t, err)
		assert.Empty(t, vecs)
	})
}
