package chunker

import (
	"fmt"
	"iter"
	"strconv"

	"marketrag/internal/domain"
)

// WindowChunker splits text into fixed-size character windows with overlap.
// Sizes count runes, not bytes, so multi-byte text is never split mid-character.
type WindowChunker struct {
	size    int
	overlap int
}

// NewWindowChunker validates the window settings. overlap must be strictly
// below size, otherwise the window would never advance.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be > 0, got %d", domain.ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", domain.ErrInvalidConfig, size, overlap)
	}
	return &WindowChunker{size: size, overlap: overlap}, nil
}

// Chunks yields the windows of document lazily. The content is split as
// given; line endings are the loader's concern. Chunk ids are
// "<source>::chunk<N>". Seq is left zero; the index assigns it.
func (c *WindowChunker) Chunks(document domain.Document) iter.Seq[domain.Chunk] {
	text := []rune(document.Content)
	return func(yield func(domain.Chunk) bool) {
		start, n := 0, 0
		for start < len(text) {
			end := min(len(text), start+c.size)
			chunk := domain.Chunk{
				ID:     ChunkID(document.Source, n),
				Source: document.Source,
				Text:   string(text[start:end]),
			}
			if !yield(chunk) {
				return
			}
			if end == len(text) {
				return
			}
			start = max(end-c.overlap, 0)
			n++
		}
	}
}

// ChunkID formats the id of the n-th chunk of source.
func ChunkID(source string, n int) string {
	return source + "::chunk" + strconv.Itoa(n)
}

// Collect drains the chunks of document into a slice.
func Collect(c domain.Chunker, document domain.Document) []domain.Chunk {
	var out []domain.Chunk
	for ch := range c.Chunks(document) {
		out = append(out, ch)
	}
	return out
}
