package minilm

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/knights-analytics/hugot/pipelines"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketrag/internal/domain"
	"marketrag/internal/embedding"
)

type stubRunner struct {
	out *pipelines.FeatureExtractionOutput
	err error
}

func (s stubRunner) RunPipeline([]string) (*pipelines.FeatureExtractionOutput, error) {
	return s.out, s.err
}

func TestEmbedFailuresAreUnavailable(t *testing.T) {
	ctx := context.Background()

	e := &Embedder{name: "minilm:test", pipeline: stubRunner{err: errors.New("onnx session closed")}}
	_, err := e.Embed(ctx, []string{"gold vendors"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)
	assert.True(t, domain.IsUnavailable(err))

	e.pipeline = stubRunner{out: &pipelines.FeatureExtractionOutput{Embeddings: [][]float32{{1}}}}
	_, err = e.Embed(ctx, []string{"a", "b"})
	assert.ErrorIs(t, err, domain.ErrEmbeddingUnavailable)

	vecs, err := e.Embed(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1}}, vecs)
}

// Downloads the model on first run, so it is opt-in.
func TestEmbedder(t *testing.T) {
	if testing.Short() || os.Getenv("MARKETRAG_MINILM_TEST") == "" {
		t.Skip("set MARKETRAG_MINILM_TEST=1 to run the local model test")
	}
	e, err := New(Config{ModelDir: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })

	vecs, err := embedding.EmbedAll(context.Background(), e, []string{
		"Gold vendors in the GCC region",
		"Top vendors by region",
		"How to bake bread",
	}, 8)
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Len(t, vecs[0], e.Dimension())

	sim := func(a, b []float32) float32 {
		var s float32
		for i := range a {
			s += a[i] * b[i]
		}
		return s
	}
	assert.Greater(t, sim(vecs[0], vecs[1]), sim(vecs[0], vecs[2]))
}
