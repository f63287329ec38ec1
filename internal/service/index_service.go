package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"marketrag/internal/chunker"
	"marketrag/internal/domain"
	"marketrag/internal/index"
	"marketrag/internal/loader"
	"marketrag/internal/summarizer"
	"marketrag/internal/vectorstore"
	"marketrag/internal/zlog"
)

// IndexService runs the offline pipeline: manifest, documents, chunks,
// embeddings, persisted index and an optional replica vector store.
type IndexService struct {
	loader    *loader.Loader
	chunker   domain.Chunker
	embedder  domain.Embedder
	batchSize int
	overview  *summarizer.Overview
	replica   vectorstore.Storage
}

// NewIndexService wires the pipeline. replica may be nil.
func NewIndexService(l *loader.Loader, c domain.Chunker, e domain.Embedder, batchSize int, replica vectorstore.Storage) *IndexService {
	return &IndexService{loader: l, chunker: c, embedder: e, batchSize: batchSize, overview: summarizer.New(), replica: replica}
}

// BuildReport summarizes a build.
type BuildReport struct {
	Documents []string
	Skipped   []loader.Skipped
	Chunks    int
	Model     string
	Dimension int
	Overview  []string
	Replica   bool
	Elapsed   time.Duration
}

var errNoDocuments = errors.New("no documents could be loaded")

// Build reads the manifest, indexes every readable document and writes both
// index artifacts. A build that fails before saving leaves the previous
// artifacts untouched.
func (s *IndexService) Build(ctx context.Context, manifest, chunksPath, vectorsPath string) (*index.Index, BuildReport, error) {
	start := time.Now()
	var report BuildReport

	loaded, err := s.loader.LoadManifest(manifest)
	if err != nil {
		return nil, report, domain.NewOpError("load manifest", manifest, domain.ErrIngestion, err)
	}
	report.Skipped = loaded.Skipped
	if len(loaded.Documents) == 0 {
		return nil, report, domain.NewOpError("load manifest", manifest, domain.ErrIngestion, errNoDocuments)
	}

	var chunks []domain.Chunk
	for _, doc := range loaded.Documents {
		report.Documents = append(report.Documents, doc.Source)
		chunks = append(chunks, chunker.Collect(s.chunker, doc)...)
	}
	zlog.Info("documents chunked",
		zap.Int("documents", len(loaded.Documents)),
		zap.Int("skipped", len(loaded.Skipped)),
		zap.Int("chunks", len(chunks)))

	ix, err := index.Build(ctx, s.embedder, chunks, s.batchSize)
	if err != nil {
		return nil, report, fmt.Errorf("build index: %w", err)
	}
	if err := ix.Save(chunksPath, vectorsPath); err != nil {
		return nil, report, err
	}
	if s.replica != nil {
		if err := ix.Sync(ctx, s.replica); err != nil {
			return nil, report, fmt.Errorf("sync vector store: %w", err)
		}
		report.Replica = true
	}

	report.Chunks = ix.Len()
	report.Model = ix.Model()
	report.Dimension = ix.Dimension()
	report.Overview = s.overview.Summarize(loaded.Documents, 5)
	report.Elapsed = time.Since(start)
	return ix, report, nil
}
