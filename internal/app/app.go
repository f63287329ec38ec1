// Package app assembles the configured components for the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"marketrag/internal/catalog"
	"marketrag/internal/chunker"
	"marketrag/internal/composer"
	"marketrag/internal/config"
	"marketrag/internal/domain"
	"marketrag/internal/embedding/hashing"
	"marketrag/internal/embedding/minilm"
	"marketrag/internal/embedding/openai"
	"marketrag/internal/index"
	"marketrag/internal/intent"
	"marketrag/internal/llm"
	"marketrag/internal/loader"
	"marketrag/internal/retriever"
	"marketrag/internal/service"
	"marketrag/internal/session"
	"marketrag/internal/store"
	"marketrag/internal/vectorstore"
	"marketrag/internal/vectorstore/pgvector"
	"marketrag/internal/vectorstore/qdrant"
	"marketrag/internal/zlog"
)

type closer func() error

func noop() error { return nil }

// NewEmbedder builds the embedder named by cfg.Type.
func NewEmbedder(cfg config.EmbedderConfig) (domain.Embedder, func() error, error) {
	switch cfg.Type {
	case "openai":
		if cfg.OpenAI == nil {
			return nil, noop, fmt.Errorf("%w: openai embedder config missing", domain.ErrInvalidConfig)
		}
		c, err := openai.NewClient(openai.Config{
			BaseURL:    cfg.OpenAI.BaseURL,
			APIKeyEnv:  cfg.OpenAI.APIKeyEnv,
			Model:      cfg.OpenAI.Model,
			Timeout:    time.Duration(cfg.OpenAI.TimeoutSecs) * time.Second,
			MaxRetries: cfg.OpenAI.MaxRetries,
		})
		if err != nil {
			return nil, noop, fmt.Errorf("openai embedder init: %w", err)
		}
		return c, noop, nil
	case "minilm":
		if cfg.MiniLM == nil {
			return nil, noop, fmt.Errorf("%w: minilm embedder config missing", domain.ErrInvalidConfig)
		}
		e, err := minilm.New(minilm.Config{ModelName: cfg.MiniLM.ModelName, ModelDir: cfg.MiniLM.ModelDir})
		if err != nil {
			return nil, noop, fmt.Errorf("minilm embedder init: %w", err)
		}
		return e, e.Close, nil
	case "hashing":
		dim := 0
		if cfg.Hashing != nil {
			dim = cfg.Hashing.Dimension
		}
		e, err := hashing.NewEmbedder(dim)
		if err != nil {
			return nil, noop, err
		}
		return e, noop, nil
	}
	return nil, noop, fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfig, cfg.Type)
}

// NewReplica builds the remote vector store, or returns nil for "memory".
func NewReplica(cfg config.VectorStoreConfig) (vectorstore.Storage, func() error, error) {
	switch cfg.Type {
	case "memory", "":
		return nil, noop, nil
	case "qdrant":
		if cfg.Qdrant == nil {
			return nil, noop, fmt.Errorf("%w: qdrant config missing", domain.ErrInvalidConfig)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.Qdrant.URL,
			APIKey:     cfg.Qdrant.APIKey,
			Collection: cfg.Qdrant.Collection,
			Timeout:    time.Duration(cfg.Qdrant.TimeoutSecs) * time.Second,
		}), noop, nil
	case "pgvector":
		if cfg.PGVector == nil {
			return nil, noop, fmt.Errorf("%w: pgvector config missing", domain.ErrInvalidConfig)
		}
		s, err := pgvector.Open(cfg.PGVector.DSN, cfg.PGVector.Table)
		if err != nil {
			return nil, noop, fmt.Errorf("pgvector init: %w", err)
		}
		return s, s.Close, nil
	}
	return nil, noop, fmt.Errorf("%w: unknown vector store %q", domain.ErrInvalidConfig, cfg.Type)
}

// NewIndexer wires the offline build pipeline. The returned function
// releases the embedder and the replica.
func NewIndexer(cfg *config.AppConfig) (*service.IndexService, func() error, error) {
	ch, err := chunker.NewWindowChunker(cfg.Chunker.Size, cfg.Chunker.OverlapRunes())
	if err != nil {
		return nil, noop, err
	}
	emb, closeEmb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		return nil, noop, err
	}
	replica, closeReplica, err := NewReplica(cfg.VectorStore)
	if err != nil {
		_ = closeEmb()
		return nil, noop, err
	}
	l := loader.New(os.DirFS(cfg.Sources.Root), cfg.Sources.CSVRowLimit)
	svc := service.NewIndexService(l, ch, emb, cfg.Embedder.BatchSize, replica)
	return svc, func() error { return errors.Join(closeReplica(), closeEmb()) }, nil
}

// Chat bundles everything a chat front end needs.
type Chat struct {
	Service  *service.ChatService
	Catalog  *catalog.Catalog
	Sessions *session.Registry
	// Index is nil when no index has been built.
	Index *index.Index

	closers []closer
}

// Close releases the store, the embedder and any replica connection.
func (c *Chat) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		errs = append(errs, c.closers[i]())
	}
	return errors.Join(errs...)
}

// NewChat opens the catalog, loads the index when present and wires the
// chat service. Questions are answered with a fixed message while the
// index is missing; a backend that cannot be initialized answers every
// question with the unavailable reply.
func NewChat(cfg *config.AppConfig) (*Chat, error) {
	st, err := store.Open(cfg.StoreDSN())
	if err != nil {
		return nil, err
	}
	c := &Chat{
		Catalog:  catalog.New(st),
		Sessions: session.NewRegistry(time.Duration(cfg.Server.SessionTTLMinutes) * time.Minute),
		closers:  []closer{st.Close},
	}

	ix, ok, err := index.LoadIfExists(cfg.ChunksPath(), cfg.VectorsPath())
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	var ret service.Retriever
	if ok {
		c.Index = ix
		ret, err = c.buildRetriever(cfg, ix)
		if err != nil {
			_ = c.Close()
			return nil, err
		}
		zlog.Info("index loaded", zap.Int("chunks", ix.Len()), zap.String("model", ix.Model()))
	} else {
		zlog.Warn("no index found", zap.String("chunks", cfg.ChunksPath()), zap.String("vectors", cfg.VectorsPath()))
	}

	gen := newGenerator(cfg.Generator, cfg.Generator.Model)
	var fallback intent.Classifier
	if cfg.Intent.ModelClassifier {
		fallback = intent.NewModelClassifier(newGenerator(cfg.Generator, cfg.Intent.Model))
	}

	c.Service = service.NewChatService(
		intent.NewRouter(fallback),
		ret,
		composer.New(gen, cfg.Generator.SamplingTemperature()),
		c.Catalog,
		cfg.Retrieval.TopK,
	)
	return c, nil
}

func (c *Chat) buildRetriever(cfg *config.AppConfig, ix *index.Index) (service.Retriever, error) {
	emb, closeEmb, err := NewEmbedder(cfg.Embedder)
	if err != nil {
		zlog.Error("query embedder unavailable", zap.Error(err))
		return unavailableRetriever{err: domain.NewOpError("embed query", "", domain.ErrEmbeddingUnavailable, err)}, nil
	}
	c.closers = append(c.closers, closeEmb)

	var searcher domain.Searcher = ix
	replica, closeReplica, err := NewReplica(cfg.VectorStore)
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, closeReplica)
	if replica != nil {
		r, err := ix.OpenReplica(context.Background(), replica)
		if err != nil {
			return nil, err
		}
		searcher = r
	}
	r, err := retriever.New(emb, searcher, ix.Model())
	if err != nil {
		return nil, err
	}
	return r, nil
}

func newGenerator(cfg config.GeneratorConfig, model string) llm.Generator {
	gen, err := llm.NewClient(llm.Config{
		BaseURL:   cfg.BaseURL,
		APIKeyEnv: cfg.APIKeyEnv,
		Model:     model,
		Timeout:   time.Duration(cfg.TimeoutSecs) * time.Second,
	})
	if err != nil {
		zlog.Error("generator unavailable", zap.String("model", model), zap.Error(err))
		return unavailableGenerator{err: domain.NewOpError("generate", model, domain.ErrGenerationUnavailable, err)}
	}
	return gen
}

type unavailableGenerator struct{ err error }

func (u unavailableGenerator) Generate(context.Context, llm.Request) (string, error) {
	return "", u.err
}

type unavailableRetriever struct{ err error }

func (u unavailableRetriever) Retrieve(context.Context, string, int) ([]domain.SearchResult, error) {
	return nil, u.err
}
