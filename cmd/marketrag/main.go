package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"marketrag/internal/app"
	"marketrag/internal/config"
	"marketrag/internal/tui"
	"marketrag/internal/zlog"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML or TOML config file (optional; uses ./config.yaml or ~/.config/marketrag/config.yaml if not provided)")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// The terminal belongs to the UI.
	if cfg.Log.Path == "" {
		cfg.Log.Path = "marketrag.log"
	}
	cfg.Log.Console = false
	if err := zlog.Init(cfg.Log); err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zlog.Sync()

	chat, err := app.NewChat(cfg)
	if err != nil {
		log.Fatalf("failed to start chat: %v", err)
	}
	defer chat.Close()

	overview := "No index built yet: run marketrag-index to enable questions."
	if chat.Index != nil {
		overview = fmt.Sprintf("Index: %d chunks, model %s", chat.Index.Len(), chat.Index.Model())
	}

	sess, _ := chat.Sessions.Get("")
	m := tui.New(context.Background(), chat.Service, sess, overview)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err)
	}
}
