package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketrag/internal/domain"
	"marketrag/internal/embedding/hashing"
	"marketrag/internal/index"
)

type countingEmbedder struct {
	domain.Embedder
	calls int
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	if c.err != nil {
		return nil, c.err
	}
	return c.Embedder.Embed(ctx, texts)
}

// unsortedSearcher returns every result with the same score in reverse order.
type unsortedSearcher struct{ chunks []domain.Chunk }

func (u unsortedSearcher) Search(_ context.Context, _ []float32, _ int) ([]domain.SearchResult, error) {
	out := make([]domain.SearchResult, 0, len(u.chunks))
	for i := len(u.chunks) - 1; i >= 0; i-- {
		out = append(out, domain.SearchResult{Chunk: u.chunks[i], Score: 0.25})
	}
	return out, nil
}

func hashingEmbedder(t *testing.T) *hashing.Embedder {
	t.Helper()
	e, err := hashing.NewEmbedder(256)
	require.NoError(t, err)
	return e
}

func buildIndex(t *testing.T, e domain.Embedder, texts ...string) *index.Index {
	t.Helper()
	chunks := make([]domain.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = domain.Chunk{ID: "doc.md::chunk" + string(rune('0'+i)), Source: "doc.md", Text: text}
	}
	ix, err := index.Build(context.Background(), e, chunks, 16)
	require.NoError(t, err)
	return ix
}

func TestRetrieve(t *testing.T) {
	ctx := context.Background()
	e := hashingEmbedder(t)
	ix := buildIndex(t, e,
		"gold vendors in the gcc region",
		"weekly views and orders",
		"return rate by category",
		"gold vendors sell electronics")
	r, err := New(e, ix, ix.Model())
	require.NoError(t, err)

	t.Run("Most similar first", func(t *testing.T) {
		res, err := r.Retrieve(ctx, "gold vendors", 2)
		require.NoError(t, err)
		require.Len(t, res, 2)
		for _, hit := range res {
			assert.Contains(t, hit.Chunk.Text, "gold vendors")
		}
		assert.GreaterOrEqual(t, res[0].Score, res[1].Score)
	})

	t.Run("At most k", func(t *testing.T) {
		for k := 0; k < 7; k++ {
			res, err := r.Retrieve(ctx, "orders", k)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(res), k)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		a, err := r.Retrieve(ctx, "return rate", 3)
		require.NoError(t, err)
		b, err := r.Retrieve(ctx, "return rate", 3)
		require.NoError(t, err)
		assert.Equal(t, a, b)
	})
}

func TestRetrieveEmptyIndexSkipsEmbedding(t *testing.T) {
	e := &countingEmbedder{Embedder: hashingEmbedder(t)}
	ix := buildIndex(t, e)
	r, err := New(e, ix, ix.Model())
	require.NoError(t, err)

	res, err := r.Retrieve(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, res)
	assert.Zero(t, e.calls)
}

func TestRetrieveTiesFollowIndexOrder(t *testing.T) {
	e := hashingEmbedder(t)
	chunks := []domain.Chunk{{ID: "a", Seq: 0}, {ID: "b", Seq: 1}, {ID: "c", Seq: 2}}
	r, err := New(e, unsortedSearcher{chunks: chunks}, e.Name())
	require.NoError(t, err)

	res, err := r.Retrieve(context.Background(), "q", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].Chunk.ID)
	assert.Equal(t, "b", res[1].Chunk.ID)
}

func TestNewRejectsOtherModel(t *testing.T) {
	e := hashingEmbedder(t)
	_, err := New(e, unsortedSearcher{}, "openai:text-embedding-3-small")
	assert.ErrorIs(t, err, domain.ErrModelMismatch)
}

func TestRetrievePropagatesOutage(t *testing.T) {
	outage := domain.NewOpError("embed", "", domain.ErrEmbeddingUnavailable, errors.New("503"))
	e := &countingEmbedder{Embedder: hashingEmbedder(t), err: outage}
	chunks := []domain.Chunk{{ID: "a"}}
	r, err := New(e, unsortedSearcher{chunks: chunks}, e.Name())
	require.NoError(t, err)

	_, err = r.Retrieve(context.Background(), "q", 1)
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.True(t, domain.IsUnavailable(err))
}

func TestContexts(t *testing.T) {
	ctxs := Contexts([]domain.SearchResult{{Chunk: domain.Chunk{Source: "a.md", Text: "x"}, Score: 0.5}})
	assert.Equal(t, []domain.Context{{Source: "a.md", Score: 0.5, Text: "x"}}, ctxs)
}
