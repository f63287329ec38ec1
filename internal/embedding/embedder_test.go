package embedding

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls [][]string
	fail  error
	short bool
}

func (c *countingEmbedder) Name() string   { return "counting" }
func (c *countingEmbedder) Dimension() int { return 2 }
func (c *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if c.fail != nil {
		return nil, c.fail
	}
	c.calls = append(c.calls, texts)
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{3, 4}
	}
	if c.short {
		out = out[:len(out)-1]
	}
	return out, nil
}

func TestNormalize(t *testing.T) {
	v := []float32{3, 4}
	Normalize(v)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	Normalize(zero)
	assert.Equal(t, []float32{0, 0}, zero)
}

func TestEmbedAll(t *testing.T) {
	ctx := context.Background()

	t.Run("Batches preserve order and normalize", func(t *testing.T) {
		e := &countingEmbedder{}
		vecs, err := EmbedAll(ctx, e, []string{"a", "b", "c", "d", "e"}, 2)
		require.NoError(t, err)
		require.Len(t, vecs, 5)
		assert.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, e.calls)
		for _, v := range vecs {
			assert.InDelta(t, 1.0, math.Hypot(float64(v[0]), float64(v[1])), 1e-6)
		}
	})

	t.Run("Backend errors propagate", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := EmbedAll(ctx, &countingEmbedder{fail: boom}, []string{"a"}, 2)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("Short responses are rejected", func(t *testing.T) {
		_, err := EmbedAll(ctx, &countingEmbedder{short: true}, []string{"a", "b"}, 2)
		assert.Error(t, err)
	})

	t.Run("Single text", func(t *testing.T) {
		v, err := EmbedOne(ctx, &countingEmbedder{}, "q")
		require.NoError(t, err)
		assert.Len(t, v, 2)
	})
}
