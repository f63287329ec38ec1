package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketrag/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	t.Setenv("MARKETRAG_CHAT_KEY", "sk-test")
	c, err := NewClient(Config{
		BaseURL:        srv.URL + "/v1",
		APIKeyEnv:      "MARKETRAG_CHAT_KEY",
		Model:          "gpt-4o-mini",
		Timeout:        2 * time.Second,
		InitialBackoff: time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"model":  "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"message":"unavailable","type":"server_error"}}`))
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("Sends prompt and returns content", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "gpt-4o-mini", body["model"])
			assert.InDelta(t, 0.2, body["temperature"], 1e-6)
			msgs := body["messages"].([]any)
			assert.Len(t, msgs, 2)
			assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
			assert.NotContains(t, body, "response_format")
			writeCompletion(w, "answer [1]")
		})
		out, err := c.Generate(ctx, Request{System: "sys", User: "q", Temperature: 0.2})
		require.NoError(t, err)
		assert.Equal(t, "answer [1]", out)
	})

	t.Run("Schema requests JSON output", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			format, ok := body["response_format"].(map[string]any)
			if assert.True(t, ok) {
				assert.Equal(t, "json_schema", format["type"])
			}
			assert.Greater(t, body["temperature"], 0.0)
			writeCompletion(w, `{"ok":true}`)
		})
		schema := &jsonschema.Definition{
			Type:       jsonschema.Object,
			Properties: map[string]jsonschema.Definition{"ok": {Type: jsonschema.Boolean}},
			Required:   []string{"ok"},
		}
		out, err := c.Generate(ctx, Request{System: "s", User: "u", Schema: schema, SchemaName: "intent"})
		require.NoError(t, err)
		assert.JSONEq(t, `{"ok":true}`, out)
	})

	t.Run("Retries a transient failure once", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				writeError(w, http.StatusTooManyRequests)
				return
			}
			writeCompletion(w, "second try")
		})
		out, err := c.Generate(ctx, Request{User: "q"})
		require.NoError(t, err)
		assert.Equal(t, "second try", out)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Gives up after one retry", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeError(w, http.StatusBadGateway)
		})
		_, err := c.Generate(ctx, Request{User: "q"})
		assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("Client errors are not retried", func(t *testing.T) {
		var calls atomic.Int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			writeError(w, http.StatusBadRequest)
		})
		_, err := c.Generate(ctx, Request{User: "q"})
		assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("Empty completion is unavailable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			writeCompletion(w, "  ")
		})
		_, err := c.Generate(ctx, Request{User: "q"})
		assert.ErrorIs(t, err, domain.ErrGenerationUnavailable)
	})
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("MARKETRAG_MISSING_KEY", "")
	_, err := NewClient(Config{APIKeyEnv: "MARKETRAG_MISSING_KEY"})
	assert.Error(t, err)
}
