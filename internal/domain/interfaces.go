package domain

import (
	"context"
	"iter"
)

// Document is a single source file loaded from the manifest.
type Document struct {
	Source  string
	Content string
}

// Chunk is a bounded slice of a document used as the retrieval unit.
// Seq is the global insertion position inside the index and breaks score ties.
type Chunk struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Text   string `json:"text"`
	Seq    int    `json:"-"`
}

// SearchResult represents a matching chunk with a similarity score.
type SearchResult struct {
	Chunk Chunk
	Score float64
}

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage is one entry of a conversation log.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Context is a retrieved source as rendered next to an answer.
type Context struct {
	Source string  `json:"source"`
	Score  float64 `json:"score"`
	Text   string  `json:"text"`
}

// Answer is the composed reply to a question together with the sources it used.
type Answer struct {
	Text     string    `json:"answer_text"`
	Contexts []Context `json:"contexts"`
}

// Embedder converts text into vectors. Name identifies the model and is
// recorded in the index so that queries are embedded in the same space.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Chunker splits documents into chunks suitable for retrieval indexing.
// The returned sequence can be ranged over more than once.
type Chunker interface {
	Chunks(document Document) iter.Seq[Chunk]
}

// Searcher runs a top-k similarity search over stored vectors.
type Searcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
}
