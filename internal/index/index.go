// Package index builds, persists and serves the chunk embedding index.
//
// An index is stored as two artifacts that are always written together:
// a JSONL chunk metadata file ({id, source, text} per line) and a gob
// blob holding the embedding model name, the dimension, the chunk ids,
// a digest of the chunk metadata and the vectors in the same order.
// Loading cross-checks both and fails with domain.ErrIndexCorruption when
// they disagree.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"marketrag/internal/domain"
	"marketrag/internal/embedding"
	"marketrag/internal/vectorstore"
	"marketrag/internal/vectorstore/memory"
)

// Index is immutable once built or loaded and safe for concurrent search.
type Index struct {
	model     string
	dimension int
	chunks    []domain.Chunk
	vectors   [][]float32
	digest    string
	byID      map[string]int
	store     *memory.Storage
}

// Build embeds every chunk with emb and returns the resulting index.
// Chunks keep their order; Seq is set to the position in that order.
func Build(ctx context.Context, emb domain.Embedder, chunks []domain.Chunk, batchSize int) (*Index, error) {
	owned := make([]domain.Chunk, len(chunks))
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		ch.Seq = i
		owned[i] = ch
		texts[i] = ch.Text
	}
	vectors, err := embedding.EmbedAll(ctx, emb, texts, batchSize)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}
	dim := emb.Dimension()
	if len(vectors) > 0 {
		dim = len(vectors[0])
	}
	return assemble(emb.Name(), dim, owned, vectors)
}

func assemble(model string, dimension int, chunks []domain.Chunk, vectors [][]float32) (*Index, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("%d chunks but %d vectors", len(chunks), len(vectors))
	}
	byID := make(map[string]int, len(chunks))
	for i, ch := range chunks {
		if _, dup := byID[ch.ID]; dup {
			return nil, fmt.Errorf("duplicate chunk id %q", ch.ID)
		}
		byID[ch.ID] = i
		if len(vectors[i]) != dimension {
			return nil, fmt.Errorf("vector %d has dimension %d, want %d", i, len(vectors[i]), dimension)
		}
	}
	ix := &Index{
		model:     model,
		dimension: dimension,
		chunks:    chunks,
		vectors:   vectors,
		digest:    digestOf(model, dimension, chunks),
		byID:      byID,
		store:     memory.NewStorage(),
	}
	if len(chunks) == 0 {
		return ix, nil
	}
	ctx := context.Background()
	if err := ix.store.Init(ctx, dimension); err != nil {
		return nil, err
	}
	if err := ix.store.Upsert(ctx, chunks, vectors); err != nil {
		return nil, err
	}
	return ix, nil
}

// digestOf identifies a build by its model, dimension and chunk metadata.
func digestOf(model string, dimension int, chunks []domain.Chunk) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00", model, dimension)
	for _, ch := range chunks {
		fmt.Fprintf(h, "%s\x00%s\x00%s\x00", ch.ID, ch.Source, ch.Text)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Digest identifies the build: two indexes share a digest only when they
// hold the same chunks embedded by the same model.
func (ix *Index) Digest() string { return ix.digest }

// Chunk returns the indexed chunk with the given id.
func (ix *Index) Chunk(id string) (domain.Chunk, bool) {
	i, ok := ix.byID[id]
	if !ok {
		return domain.Chunk{}, false
	}
	return ix.chunks[i], true
}

// Model is the name of the embedder the index was built with.
func (ix *Index) Model() string { return ix.model }

// Dimension of the stored vectors, zero for an empty index built by a
// remote embedder that never answered.
func (ix *Index) Dimension() int { return ix.dimension }

// Len is the number of chunks.
func (ix *Index) Len() int { return len(ix.chunks) }

// Chunks returns a copy of the chunks in index order.
func (ix *Index) Chunks() []domain.Chunk {
	out := make([]domain.Chunk, len(ix.chunks))
	copy(out, ix.chunks)
	return out
}

// Search returns up to k chunks by descending inner product; equal scores
// keep index order. An empty index returns an empty result.
func (ix *Index) Search(ctx context.Context, vector []float32, k int) ([]domain.SearchResult, error) {
	if len(ix.chunks) == 0 || k <= 0 {
		return []domain.SearchResult{}, nil
	}
	return ix.store.Search(ctx, vector, k)
}

// Sync replaces the contents of st with this index. The build digest is
// recorded last, so an interrupted sync leaves st without one.
func (ix *Index) Sync(ctx context.Context, st vectorstore.Storage) error {
	if err := st.Clear(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}
	if len(ix.chunks) == 0 {
		return nil
	}
	if err := st.Init(ctx, ix.dimension); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	const batch = 256
	for start := 0; start < len(ix.chunks); start += batch {
		end := min(start+batch, len(ix.chunks))
		if err := st.Upsert(ctx, ix.chunks[start:end], ix.vectors[start:end]); err != nil {
			return fmt.Errorf("upsert chunks: %w", err)
		}
	}
	if err := st.SetBuild(ctx, ix.digest); err != nil {
		return fmt.Errorf("record build: %w", err)
	}
	return nil
}
