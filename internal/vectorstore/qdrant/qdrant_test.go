package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketrag/internal/domain"
)

// fakeQdrant keeps upserted points and answers searches with canned scores.
type fakeQdrant struct {
	mu      sync.Mutex
	created bool
	points  []map[string]any
	apiKey  string
}

func (f *fakeQdrant) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.apiKey = r.Header.Get("api-key")
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks":
			if f.created {
				w.WriteHeader(http.StatusConflict)
				return
			}
			f.created = true
			_, _ = w.Write([]byte(`{"result":true}`))
		case r.Method == http.MethodPut && r.URL.Path == "/collections/chunks/points":
			var body struct {
				Points []map[string]any `json:"points"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			f.points = append(f.points, body.Points...)
			_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/chunks/points/search":
			// Returned out of tie order on purpose.
			type hit struct {
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			}
			hits := []hit{}
			for i := len(f.points) - 1; i >= 0; i-- {
				hits = append(hits, hit{Score: 0.5, Payload: f.points[i]["payload"].(map[string]any)})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": hits})
		case r.Method == http.MethodPost && r.URL.Path == "/collections/chunks/points/payload":
			var body struct {
				Payload map[string]any `json:"payload"`
				Filter  map[string]any `json:"filter"`
			}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.NotNil(t, body.Filter, "payload applies to every point")
			for _, p := range f.points {
				for k, v := range body.Payload {
					p["payload"].(map[string]any)[k] = v
				}
			}
			_, _ = w.Write([]byte(`{"result":{"status":"completed"}}`))
		case r.Method == http.MethodPost && r.URL.Path == "/collections/chunks/points/scroll":
			if !f.created {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			points := []map[string]any{}
			if len(f.points) > 0 {
				points = append(points, map[string]any{"id": f.points[0]["id"], "payload": f.points[0]["payload"]})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"result": map[string]any{"points": points}})
		case r.Method == http.MethodDelete:
			if !f.created {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			f.created = false
			f.points = nil
			_, _ = w.Write([]byte(`{"result":true}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}
}

func TestStorage(t *testing.T) {
	ctx := context.Background()
	fake := &fakeQdrant{}
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "chunks"})

	require.NoError(t, s.Init(ctx, 2))
	require.NoError(t, s.Init(ctx, 2), "existing collection is accepted")
	assert.Equal(t, "secret", fake.apiKey)

	chunks := []domain.Chunk{
		{ID: "a.md::chunk0", Source: "a.md", Text: "first", Seq: 0},
		{ID: "a.md::chunk1", Source: "a.md", Text: "second", Seq: 1},
	}
	require.NoError(t, s.Upsert(ctx, chunks, [][]float32{{1, 0}, {0, 1}}))
	require.Len(t, fake.points, 2)
	assert.Equal(t, PointID("a.md::chunk0"), fake.points[0]["id"])

	res, err := s.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a.md::chunk0", res[0].Chunk.ID, "ties fall back to insertion order")
	assert.Equal(t, "a.md", res[0].Chunk.Source)

	res, err = s.Search(ctx, []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, res)

	t.Run("Build stamp", func(t *testing.T) {
		build, err := s.Build(ctx)
		require.NoError(t, err)
		assert.Empty(t, build)
		require.NoError(t, s.SetBuild(ctx, "abc123"))
		build, err = s.Build(ctx)
		require.NoError(t, err)
		assert.Equal(t, "abc123", build)
	})

	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.Clear(ctx), "missing collection is accepted")
	build, err := s.Build(ctx)
	require.NoError(t, err)
	assert.Empty(t, build, "missing collection has no build")
	assert.Error(t, s.Upsert(ctx, chunks, nil))
}

func TestPointIDIsStable(t *testing.T) {
	assert.Equal(t, PointID("x::chunk0"), PointID("x::chunk0"))
	assert.NotEqual(t, PointID("x::chunk0"), PointID("x::chunk1"))
}
