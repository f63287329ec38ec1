package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"marketrag/internal/domain"
)

// LogConfig configures the process logger.
type LogConfig struct {
	Level      string `yaml:"level" toml:"level"`
	Path       string `yaml:"path" toml:"path"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
	Console    bool   `yaml:"console" toml:"console"`
}

// SourcesConfig locates the ingestion manifest.
type SourcesConfig struct {
	Manifest    string `yaml:"manifest" toml:"manifest"`
	Root        string `yaml:"root" toml:"root"`
	CSVRowLimit int    `yaml:"csv_row_limit" toml:"csv_row_limit"`
}

// ChunkerConfig configures how documents are split into chunks.
// A nil Overlap means 15% of Size, capped at 120 runes.
type ChunkerConfig struct {
	Size    int  `yaml:"size" toml:"size"`
	Overlap *int `yaml:"overlap" toml:"overlap"`
}

// OverlapRunes is the configured overlap, or the default for Size.
func (c ChunkerConfig) OverlapRunes() int {
	if c.Overlap == nil {
		return min(120, c.Size*15/100)
	}
	return *c.Overlap
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env" toml:"api_key_env"`
	Model       string `yaml:"model" toml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" toml:"max_retries"`
}

// MiniLMEmbedderConfig configures the local sentence-transformer embedder.
type MiniLMEmbedderConfig struct {
	ModelName string `yaml:"model_name" toml:"model_name"`
	ModelDir  string `yaml:"model_dir" toml:"model_dir"`
}

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension" toml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type      string                 `yaml:"type" toml:"type"`
	BatchSize int                    `yaml:"batch_size" toml:"batch_size"`
	OpenAI    *OpenAIEmbedderConfig  `yaml:"openai,omitempty" toml:"openai,omitempty"`
	MiniLM    *MiniLMEmbedderConfig  `yaml:"minilm,omitempty" toml:"minilm,omitempty"`
	Hashing   *HashingEmbedderConfig `yaml:"hashing,omitempty" toml:"hashing,omitempty"`
}

// IndexConfig names the persisted index artifacts.
type IndexConfig struct {
	Dir         string `yaml:"dir" toml:"dir"`
	ChunksFile  string `yaml:"chunks_file" toml:"chunks_file"`
	VectorsFile string `yaml:"vectors_file" toml:"vectors_file"`
}

// VectorStoreConfig selects where similarity search is served from.
type VectorStoreConfig struct {
	Type     string          `yaml:"type" toml:"type"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty" toml:"qdrant,omitempty"`
	PGVector *PGVectorConfig `yaml:"pgvector,omitempty" toml:"pgvector,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url" toml:"url"`
	APIKey      string `yaml:"api_key" toml:"api_key"`
	Collection  string `yaml:"collection" toml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs" toml:"timeout_secs"`
}

// PGVectorConfig contains connection details for a pgvector table.
type PGVectorConfig struct {
	DSN   string `yaml:"dsn" toml:"dsn"`
	Table string `yaml:"table" toml:"table"`
}

// RetrievalConfig tunes the retriever.
type RetrievalConfig struct {
	TopK int `yaml:"top_k" toml:"top_k"`
}

// GeneratorConfig configures the chat-completion backend.
type GeneratorConfig struct {
	BaseURL     string  `yaml:"base_url" toml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env" toml:"api_key_env"`
	Model       string   `yaml:"model" toml:"model"`
	Temperature *float32 `yaml:"temperature" toml:"temperature"`
	TimeoutSecs int      `yaml:"timeout_secs" toml:"timeout_secs"`
}

const defaultTemperature = 0.2

// SamplingTemperature is the configured temperature; unset means 0.2 and
// an explicit 0 is kept.
func (c GeneratorConfig) SamplingTemperature() float32 {
	if c.Temperature == nil {
		return defaultTemperature
	}
	return *c.Temperature
}

// IntentConfig configures the optional model-based intent classifier.
type IntentConfig struct {
	ModelClassifier bool   `yaml:"model_classifier" toml:"model_classifier"`
	Model           string `yaml:"model" toml:"model"`
}

// StoreConfig locates the catalog database.
type StoreConfig struct {
	DSN string `yaml:"dsn" toml:"dsn"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr              string   `yaml:"addr" toml:"addr"`
	CORSOrigins       []string `yaml:"cors_origins" toml:"cors_origins"`
	SessionTTLMinutes int      `yaml:"session_ttl_minutes" toml:"session_ttl_minutes"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         LogConfig         `yaml:"log" toml:"log"`
	Sources     SourcesConfig     `yaml:"sources" toml:"sources"`
	Chunker     ChunkerConfig     `yaml:"chunker" toml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder" toml:"embedder"`
	Index       IndexConfig       `yaml:"index" toml:"index"`
	VectorStore VectorStoreConfig `yaml:"vector_store" toml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval" toml:"retrieval"`
	Generator   GeneratorConfig   `yaml:"generator" toml:"generator"`
	Intent      IntentConfig      `yaml:"intent" toml:"intent"`
	Store       StoreConfig       `yaml:"store" toml:"store"`
	Server      ServerConfig      `yaml:"server" toml:"server"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// Files ending in .toml are decoded as TOML, everything else as YAML.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("decode toml config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode yaml config: %w", err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/marketrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/marketrag/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path as YAML, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings that would make a component misbehave.
func (c *AppConfig) Validate() error {
	if c.Chunker.Size <= 0 {
		return fmt.Errorf("%w: chunker.size must be > 0", domain.ErrInvalidConfig)
	}
	if o := c.Chunker.OverlapRunes(); o < 0 || o >= c.Chunker.Size {
		return fmt.Errorf("%w: chunker.overlap must be in [0, size)", domain.ErrInvalidConfig)
	}
	if c.Server.SessionTTLMinutes < 0 {
		return fmt.Errorf("%w: server.session_ttl_minutes must be > 0", domain.ErrInvalidConfig)
	}
	if c.Retrieval.TopK < 0 {
		return fmt.Errorf("%w: retrieval.top_k must be >= 0", domain.ErrInvalidConfig)
	}
	switch c.Embedder.Type {
	case "openai", "minilm", "hashing":
	default:
		return fmt.Errorf("%w: unknown embedder %q", domain.ErrInvalidConfig, c.Embedder.Type)
	}
	switch c.VectorStore.Type {
	case "memory":
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return fmt.Errorf("%w: qdrant url missing", domain.ErrInvalidConfig)
		}
	case "pgvector":
		if c.VectorStore.PGVector == nil || c.VectorStore.PGVector.DSN == "" {
			return fmt.Errorf("%w: pgvector dsn missing", domain.ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown vector store %q", domain.ErrInvalidConfig, c.VectorStore.Type)
	}
	return nil
}

// ChunksPath returns the location of the chunk metadata file.
func (c *AppConfig) ChunksPath() string {
	return filepath.Join(c.Index.Dir, c.Index.ChunksFile)
}

// VectorsPath returns the location of the vector blob.
func (c *AppConfig) VectorsPath() string {
	return filepath.Join(c.Index.Dir, c.Index.VectorsFile)
}

// StoreDSN prefers the configured DSN and falls back to DATABASE_URL.
func (c *AppConfig) StoreDSN() string {
	if c.Store.DSN != "" {
		return c.Store.DSN
	}
	return os.Getenv("DATABASE_URL")
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "marketrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai"},
		VectorStore: VectorStoreConfig{Type: "memory"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Path != "" {
		if cfg.Log.MaxSizeMB == 0 {
			cfg.Log.MaxSizeMB = 50
		}
		if cfg.Log.MaxBackups == 0 {
			cfg.Log.MaxBackups = 3
		}
		if cfg.Log.MaxAgeDays == 0 {
			cfg.Log.MaxAgeDays = 28
		}
	}
	if cfg.Sources.Manifest == "" {
		cfg.Sources.Manifest = "rag/data_sources.txt"
	}
	if cfg.Sources.Root == "" {
		cfg.Sources.Root = "."
	}
	if cfg.Sources.CSVRowLimit == 0 {
		cfg.Sources.CSVRowLimit = 200
	}
	if cfg.Chunker.Size == 0 {
		cfg.Chunker.Size = 800
	}
	if cfg.Chunker.Overlap == nil {
		overlap := cfg.Chunker.OverlapRunes()
		cfg.Chunker.Overlap = &overlap
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 32
	}
	switch cfg.Embedder.Type {
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		if cfg.Embedder.OpenAI.BaseURL == "" {
			cfg.Embedder.OpenAI.BaseURL = "https://api.openai.com/v1"
		}
		if cfg.Embedder.OpenAI.APIKeyEnv == "" {
			cfg.Embedder.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
		}
		if cfg.Embedder.OpenAI.Model == "" {
			cfg.Embedder.OpenAI.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
		if cfg.Embedder.OpenAI.MaxRetries == 0 {
			cfg.Embedder.OpenAI.MaxRetries = 4
		}
	case "minilm":
		if cfg.Embedder.MiniLM == nil {
			cfg.Embedder.MiniLM = &MiniLMEmbedderConfig{}
		}
		if cfg.Embedder.MiniLM.ModelName == "" {
			cfg.Embedder.MiniLM.ModelName = "sentence-transformers/all-MiniLM-L6-v2"
		}
		if cfg.Embedder.MiniLM.ModelDir == "" {
			cfg.Embedder.MiniLM.ModelDir = "./models"
		}
	case "hashing":
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 512
		}
	}
	if cfg.Index.Dir == "" {
		cfg.Index.Dir = "rag"
	}
	if cfg.Index.ChunksFile == "" {
		cfg.Index.ChunksFile = "chunks.jsonl"
	}
	if cfg.Index.VectorsFile == "" {
		cfg.Index.VectorsFile = "index.bin"
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "memory"
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "marketrag_chunks"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}
	if p := cfg.VectorStore.PGVector; p != nil && p.Table == "" {
		p.Table = "rag_chunks"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Generator.BaseURL == "" {
		cfg.Generator.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Generator.APIKeyEnv == "" {
		cfg.Generator.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Generator.Model == "" {
		cfg.Generator.Model = "gpt-4o-mini"
	}
	if cfg.Generator.Temperature == nil {
		temperature := float32(defaultTemperature)
		cfg.Generator.Temperature = &temperature
	}
	if cfg.Generator.TimeoutSecs == 0 {
		cfg.Generator.TimeoutSecs = 60
	}
	if cfg.Intent.Model == "" {
		cfg.Intent.Model = cfg.Generator.Model
	}
	if cfg.Store.DSN == "" && os.Getenv("DATABASE_URL") == "" {
		cfg.Store.DSN = "data/marketplace.db"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.SessionTTLMinutes == 0 {
		cfg.Server.SessionTTLMinutes = 60
	}
}
