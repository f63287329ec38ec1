package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"marketrag/internal/app"
	"marketrag/internal/config"
	"marketrag/internal/zlog"
)

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "Path to YAML or TOML config file")
	manifest := flag.String("manifest", "", "Manifest path relative to the sources root (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *manifest != "" {
		cfg.Sources.Manifest = *manifest
	}
	if err := zlog.Init(cfg.Log); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zlog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	head := color.New(color.Bold, color.FgCyan)
	ok := color.New(color.FgGreen)
	warn := color.New(color.FgYellow)
	fail := color.New(color.FgRed, color.Bold)

	head.Println("marketrag index builder")
	fmt.Printf("  manifest: %s\n  embedder: %s\n  output:   %s, %s\n\n",
		cfg.Sources.Manifest, cfg.Embedder.Type, cfg.ChunksPath(), cfg.VectorsPath())

	indexer, closeIndexer, err := app.NewIndexer(cfg)
	if err != nil {
		fail.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(1)
	}
	_, report, err := indexer.Build(ctx, cfg.Sources.Manifest, cfg.ChunksPath(), cfg.VectorsPath())
	if cerr := closeIndexer(); cerr != nil {
		zlog.Warn("release embedder", zap.Error(cerr))
	}

	for _, s := range report.Skipped {
		warn.Printf("  skipped %s: %v\n", s.Source, s.Err)
	}
	if err != nil {
		fail.Fprintf(os.Stderr, "build failed: %v\n", err)
		os.Exit(1)
	}

	for _, d := range report.Documents {
		ok.Printf("  indexed %s\n", d)
	}
	fmt.Println()
	ok.Printf("%d chunks from %d documents, model %s (dim %d) in %s\n",
		report.Chunks, len(report.Documents), report.Model, report.Dimension, report.Elapsed.Round(time.Millisecond))
	if report.Replica {
		ok.Printf("replicated to %s\n", cfg.VectorStore.Type)
	}
	if len(report.Overview) > 0 {
		fmt.Println()
		head.Println("Overview")
		for _, s := range report.Overview {
			fmt.Printf("  - %s\n", s)
		}
	}
}
