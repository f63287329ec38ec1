// Package retriever turns a free-text query into the top-k indexed chunks.
package retriever

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"marketrag/internal/domain"
	"marketrag/internal/embedding"
	"marketrag/internal/vectorstore"
	"marketrag/internal/zlog"
)

type sized interface {
	Len() int
}

// Retriever embeds queries with the index's embedding model and searches.
// It holds no mutable state.
type Retriever struct {
	embedder domain.Embedder
	searcher domain.Searcher
}

// New pairs a query embedder with a searcher over vectors produced by the
// model named indexModel. A different embedder is rejected with
// domain.ErrModelMismatch.
func New(embedder domain.Embedder, searcher domain.Searcher, indexModel string) (*Retriever, error) {
	if embedder.Name() != indexModel {
		return nil, domain.NewOpError("new retriever", "", domain.ErrModelMismatch,
			fmt.Errorf("index built with %q, query embedder is %q", indexModel, embedder.Name()))
	}
	return &Retriever{embedder: embedder, searcher: searcher}, nil
}

// Retrieve returns at most k results by descending score. Equal scores keep
// index order. k <= 0 or an empty index yields an empty result without
// calling the embedder.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]domain.SearchResult, error) {
	if k <= 0 || strings.TrimSpace(query) == "" {
		return []domain.SearchResult{}, nil
	}
	if s, ok := r.searcher.(sized); ok && s.Len() == 0 {
		return []domain.SearchResult{}, nil
	}
	vec, err := embedding.EmbedOne(ctx, r.embedder, query)
	if err != nil {
		zlog.Error("embed query failed", zap.Error(err))
		return nil, fmt.Errorf("embed query: %w", err)
	}
	results, err := r.searcher.Search(ctx, vec, k)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return vectorstore.SortResults(results, k), nil
}

// Contexts converts results into the rendering form used by answers.
func Contexts(results []domain.SearchResult) []domain.Context {
	out := make([]domain.Context, len(results))
	for i, r := range results {
		out[i] = domain.Context{Source: r.Chunk.Source, Score: r.Score, Text: r.Chunk.Text}
	}
	return out
}
