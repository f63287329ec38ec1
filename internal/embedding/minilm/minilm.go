// Package minilm embeds text locally with the all-MiniLM-L6-v2 sentence
// transformer through hugot's pure Go backend.
package minilm

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knights-analytics/hugot"
	"github.com/knights-analytics/hugot/pipelines"

	"marketrag/internal/domain"
)

const dimension = 384

// Config locates the model on disk.
type Config struct {
	ModelName string
	ModelDir  string
}

type runner interface {
	RunPipeline(inputs []string) (*pipelines.FeatureExtractionOutput, error)
}

// Embedder runs a hugot feature-extraction pipeline.
type Embedder struct {
	name     string
	session  *hugot.Session
	pipeline runner
}

// PrepareModel downloads the model into cfg.ModelDir unless it is already there
// and returns its path.
func PrepareModel(cfg Config) (string, error) {
	modelPath := filepath.Join(cfg.ModelDir, strings.ReplaceAll(cfg.ModelName, "/", "_"))
	if _, err := os.Stat(modelPath); err == nil {
		return modelPath, nil
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("stat model: %w", err)
	}
	if err := os.MkdirAll(cfg.ModelDir, 0o755); err != nil {
		return "", fmt.Errorf("create model directory: %w", err)
	}
	opts := hugot.NewDownloadOptions()
	opts.OnnxFilePath = "onnx/model.onnx"
	downloaded, err := hugot.DownloadModel(cfg.ModelName, cfg.ModelDir, opts)
	if err != nil {
		return "", fmt.Errorf("download model: %w", err)
	}
	return downloaded, nil
}

// New prepares the model and starts a pipeline. Call Close when done.
func New(cfg Config) (*Embedder, error) {
	if cfg.ModelName == "" {
		cfg.ModelName = "sentence-transformers/all-MiniLM-L6-v2"
	}
	if cfg.ModelDir == "" {
		cfg.ModelDir = "./models"
	}
	modelPath, err := PrepareModel(cfg)
	if err != nil {
		return nil, err
	}
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, fmt.Errorf("create hugot session: %w", err)
	}
	pipe, err := hugot.NewPipeline(session, hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "marketrag-embedder",
	})
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, fmt.Errorf("create pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	return &Embedder{name: "minilm:" + cfg.ModelName, session: session, pipeline: pipe}, nil
}

func (e *Embedder) Name() string { return e.name }

func (e *Embedder) Dimension() int { return dimension }

// Embed runs the pipeline over texts. Inference is local and not cancellable
// mid-batch; ctx is checked before starting. Pipeline failures are
// domain.ErrEmbeddingUnavailable.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(texts) == 0 {
		return nil, nil
	}
	out, err := e.pipeline.RunPipeline(texts)
	if err != nil {
		return nil, domain.NewOpError("embed", "", domain.ErrEmbeddingUnavailable, err)
	}
	if len(out.Embeddings) != len(texts) {
		return nil, domain.NewOpError("embed", "", domain.ErrEmbeddingUnavailable,
			fmt.Errorf("pipeline returned %d embeddings for %d texts", len(out.Embeddings), len(texts)))
	}
	return out.Embeddings, nil
}

// Close releases the hugot session.
func (e *Embedder) Close() error {
	return e.session.Destroy()
}
