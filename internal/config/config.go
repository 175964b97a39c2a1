// Package config provides configuration loading and structs for the tcmkb server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Embedding backend types.
const (
	EmbedderONNX   = "onnx"
	EmbedderOpenAI = "openai"
	EmbedderMock   = "mock"
)

// Config holds all configuration for the application.
type Config struct {
	Debug         bool                `yaml:"debug"`
	Server        ServerConfig        `yaml:"server"`
	Storage       StorageConfig       `yaml:"storage"`
	Embedding     EmbeddingConfig     `yaml:"embedding"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledge_base"`
	Search        SearchConfig        `yaml:"search"`
	Processing    ProcessingConfig    `yaml:"processing"`
	Watch         WatchConfig         `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host                  string `yaml:"host"`
	Port                  int    `yaml:"port"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
	MaxUploadMB           int    `yaml:"max_upload_mb"`
}

// StorageConfig selects the relational store and where uploaded files live.
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
	PostgresDSN  string `yaml:"postgres_dsn"`
	UploadDir    string `yaml:"upload_dir"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// EmbeddingConfig lists the embedding models available to knowledge bases.
type EmbeddingConfig struct {
	MaxInputChars int           `yaml:"max_input_chars"`
	CacheSize     int           `yaml:"cache_size"`
	Models        []ModelConfig `yaml:"models"`
}

// ModelConfig describes one embedding model. Name is the value stored in
// knowledge_base.embedding_model.
type ModelConfig struct {
	Name       string `yaml:"name"`
	Type       string `yaml:"type"`
	Dimensions int    `yaml:"dimensions"`

	// onnx
	ModelPath   string `yaml:"model_path,omitempty"`
	VocabPath   string `yaml:"vocab_path,omitempty"`
	LibraryPath string `yaml:"library_path,omitempty"`
	MaxTokens   int    `yaml:"max_tokens,omitempty"`
	Pooling     string `yaml:"pooling,omitempty"`

	// openai
	BaseURL     string `yaml:"base_url,omitempty"`
	APIKey      string `yaml:"api_key,omitempty"`
	RemoteModel string `yaml:"remote_model,omitempty"`
}

// KnowledgeBaseConfig holds defaults applied to newly created knowledge bases.
type KnowledgeBaseConfig struct {
	EmbeddingModel      string  `yaml:"embedding_model"`
	EmbeddingDimension  int     `yaml:"embedding_dimension"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	SearchType          string  `yaml:"search_type"`
	TopK                int     `yaml:"top_k"`
}

// SearchConfig holds retrieval and segmentation settings.
type SearchConfig struct {
	MaxTopK          int `yaml:"max_top_k"`
	SegmentMaxLength int `yaml:"segment_max_length"`
	PreviewLength    int `yaml:"preview_length"`
}

// ProcessingConfig sizes the background document worker pool.
type ProcessingConfig struct {
	Workers        int `yaml:"workers"`
	QueueSize      int `yaml:"queue_size"`
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []WatchDirectory `yaml:"directories"`
	Extensions  []string         `yaml:"extensions"`
	Recursive   *bool            `yaml:"recursive"`
}

// WatchDirectory maps a watched directory to the knowledge base its files are ingested into.
type WatchDirectory struct {
	Path            string `yaml:"path"`
	KnowledgeBaseID string `yaml:"knowledge_base_id"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Model returns the model config with the given name.
func (e *EmbeddingConfig) Model(name string) (ModelConfig, bool) {
	for _, m := range e.Models {
		if m.Name == name {
			return m, true
		}
	}
	return ModelConfig{}, false
}

// Load reads and parses the config file at path, applies environment overrides
// and defaults, expands paths and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyEnv(&cfg)
	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	for i := range cfg.Embedding.Models {
		m := &cfg.Embedding.Models[i]
		m.ModelPath = expandPath(m.ModelPath, configDir)
		m.VocabPath = expandPath(m.VocabPath, configDir)
		m.LibraryPath = expandPath(m.LibraryPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i].Path = expandPath(cfg.Watch.Directories[i].Path, configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Validate reports configuration errors that would otherwise surface at first use.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.DatabasePath == "" {
			return fmt.Errorf("storage.database_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q (supported: sqlite, postgres)", c.Storage.Driver)
	}

	seen := make(map[string]bool, len(c.Embedding.Models))
	for _, m := range c.Embedding.Models {
		if m.Name == "" {
			return fmt.Errorf("embedding model without name")
		}
		if seen[m.Name] {
			return fmt.Errorf("duplicate embedding model %q", m.Name)
		}
		seen[m.Name] = true
		if m.Dimensions <= 0 {
			return fmt.Errorf("embedding model %q: dimensions must be positive", m.Name)
		}
		if m.Type == EmbedderONNX && m.ModelPath == "" {
			return fmt.Errorf("embedding model %q: model_path is required for onnx", m.Name)
		}
		switch m.Pooling {
		case "", "cls", "mean":
		default:
			return fmt.Errorf("embedding model %q: unknown pooling %q", m.Name, m.Pooling)
		}
		switch m.Type {
		case EmbedderONNX, EmbedderOpenAI, EmbedderMock:
		default:
			return fmt.Errorf("embedding model %q: unknown type %q", m.Name, m.Type)
		}
	}

	switch c.KnowledgeBase.SearchType {
	case "embedding", "keywords", "blend":
	default:
		return fmt.Errorf("knowledge_base.search_type %q is not one of embedding, keywords, blend", c.KnowledgeBase.SearchType)
	}
	if t := c.KnowledgeBase.SimilarityThreshold; t < 0 || t > 1 {
		return fmt.Errorf("knowledge_base.similarity_threshold %v is outside [0,1]", t)
	}
	for _, d := range c.Watch.Directories {
		if d.KnowledgeBaseID == "" {
			return fmt.Errorf("watch directory %q has no knowledge_base_id", d.Path)
		}
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
