package embedding

import (
	"context"
	"fmt"
	"math"

	"marketrag/internal/domain"
)

// Normalize scales v to unit length in place. Zero vectors are left untouched.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sum))
	for i := range v {
		v[i] *= inv
	}
}

// EmbedAll embeds texts in batches of batchSize, preserving order, and
// normalizes every vector.
func EmbedAll(ctx context.Context, e domain.Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = 32
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		vecs, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedder %s returned %d vectors for %d texts", e.Name(), len(vecs), end-start)
		}
		for _, v := range vecs {
			Normalize(v)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// EmbedOne embeds a single text and normalizes the result.
func EmbedOne(ctx context.Context, e domain.Embedder, text string) ([]float32, error) {
	vecs, err := EmbedAll(ctx, e, []string{text}, 1)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
