package index

import (
	"context"
	"errors"
	"fmt"

	"marketrag/internal/domain"
	"marketrag/internal/vectorstore"
)

// Replica serves searches from a store written by Sync and resolves every
// hit against the index it was synced from.
type Replica struct {
	ix *Index
	st vectorstore.Storage
}

// OpenReplica checks that st holds this build and returns a searcher over it.
// A store synced from another build, or never fully synced, is reported as
// domain.ErrIndexCorruption. An empty index is not checked: it never
// searches the store.
func (ix *Index) OpenReplica(ctx context.Context, st vectorstore.Storage) (*Replica, error) {
	if ix.Len() > 0 {
		build, err := st.Build(ctx)
		if err != nil {
			return nil, fmt.Errorf("read replica build: %w", err)
		}
		if build != ix.digest {
			return nil, domain.NewOpError("open replica", "", domain.ErrIndexCorruption,
				fmt.Errorf("replica holds build %q, index is %q", short(build), short(ix.digest)))
		}
	}
	return &Replica{ix: ix, st: st}, nil
}

func short(digest string) string {
	if digest == "" {
		return "none"
	}
	return digest[:min(12, len(digest))]
}

// Len is the number of chunks in the local index.
func (r *Replica) Len() int { return r.ix.Len() }

// Search queries the store. Each hit must name an indexed chunk with the
// same text; its chunk is replaced by the local one.
func (r *Replica) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if r.ix.Len() == 0 || k <= 0 {
		return []domain.SearchResult{}, nil
	}
	hits, err := r.st.Search(ctx, vector, k)
	if err != nil {
		return nil, err
	}
	out := make([]domain.SearchResult, 0, len(hits))
	for _, h := range hits {
		ch, ok := r.ix.Chunk(h.Chunk.ID)
		if !ok {
			return nil, domain.NewOpError("search replica", h.Chunk.Source, domain.ErrIndexCorruption,
				fmt.Errorf("chunk %q is not in the index", h.Chunk.ID))
		}
		if h.Chunk.Text != ch.Text {
			return nil, domain.NewOpError("search replica", ch.Source, domain.ErrIndexCorruption,
				errors.New("replica text differs from chunk "+ch.ID))
		}
		out = append(out, domain.SearchResult{Chunk: ch, Score: h.Score})
	}
	return vectorstore.SortResults(out, k), nil
}
