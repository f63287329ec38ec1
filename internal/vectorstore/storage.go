package vectorstore

import (
	"context"
	"sort"

	"marketrag/internal/domain"
)

// Storage persists vectors and supports similarity search. Vectors are
// expected to be L2-normalized, so scores are cosine similarities.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]domain.SearchResult, error)
	Clear(ctx context.Context) error
	// SetBuild records which index build the stored vectors came from.
	SetBuild(ctx context.Context, build string) error
	// Build returns the recorded build, or "" when none is recorded.
	Build(ctx context.Context) (string, error)
}

// SortResults orders results by descending score, breaking ties by chunk
// insertion order, and truncates to topK.
func SortResults(results []domain.SearchResult, topK int) []domain.SearchResult {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Seq < results[j].Chunk.Seq
	})
	if topK < len(results) {
		results = results[:max(topK, 0)]
	}
	return results
}
