package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// HashingEmbedderConfig configures the offline feature-hashing embedder.
type HashingEmbedderConfig struct {
	Dimension int `yaml:"dimension"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type          string                 `yaml:"type"`
	BatchSize     int                    `yaml:"batch_size"`
	MaxInputChars int                    `yaml:"max_input_chars"`
	Hashing       *HashingEmbedderConfig `yaml:"hashing,omitempty"`
	OpenAI        *OpenAIEmbedderConfig  `yaml:"openai,omitempty"`
}

// ChunkerConfig configures how documents are split into passages. A zero
// overlap is defaulted; set it negative to disable overlap.
type ChunkerConfig struct {
	Type      string `yaml:"type"`
	ChunkSize int    `yaml:"chunk_size"`
	Overlap   int    `yaml:"overlap"`
}

// VectorStoreConfig configures the passage index and how new ingestions
// treat existing passages.
type VectorStoreConfig struct {
	Type     string `yaml:"type"`
	Policy   string `yaml:"policy"`
	TopK     int    `yaml:"top_k"`
	Location string `yaml:"location"`
}

// LocalStorageConfig stores the index under a directory.
type LocalStorageConfig struct {
	Dir string `yaml:"dir"`
}

// MinIOConfig contains connection details for a MinIO or S3 bucket.
// Credentials are read from the named environment variables.
type MinIOConfig struct {
	Endpoint     string `yaml:"endpoint"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	Bucket       string `yaml:"bucket"`
	UseSSL       bool   `yaml:"use_ssl"`
}

// StorageConfig selects where the index is persisted.
type StorageConfig struct {
	Type  string              `yaml:"type"`
	Local *LocalStorageConfig `yaml:"local,omitempty"`
	MinIO *MinIOConfig        `yaml:"minio,omitempty"`
}

// CompletionConfig configures the OpenAI-compatible chat backend.
type CompletionConfig struct {
	Type           string  `yaml:"type"`
	BaseURL        string  `yaml:"base_url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Model          string  `yaml:"model"`
	Temperature    float32 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSecs    int     `yaml:"timeout_secs"`
	SystemPrompt   string  `yaml:"system_prompt,omitempty"`
	PromptTemplate string  `yaml:"prompt_template,omitempty"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `yaml:"type"`
	MaxSentences int    `yaml:"max_sentences"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr                string   `yaml:"addr"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
	MaxUploadMB         int      `yaml:"max_upload_mb"`
	AllowText           bool     `yaml:"allow_text"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file,omitempty"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Storage     StorageConfig     `yaml:"storage"`
	Completion  CompletionConfig  `yaml:"completion"`
	Summarizer  SummarizerConfig  `yaml:"summarizer"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docchat/config.yaml.
// If neither exists, it writes defaults to ~/.config/docchat/config.yaml and returns them.
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

// Save writes the config to the given path, creating directories as needed.
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

// Validate rejects unknown implementation types and a missing ingestion
// policy. It expects defaults to have been applied.
func (c *AppConfig) Validate() error {
	var errs []error
	check := func(field, value string, allowed ...string) {
		for _, a := range allowed {
			if value == a {
				return
			}
		}
		if value == "" {
			errs = append(errs, fmt.Errorf("%s must be set (one of %s)", field, strings.Join(allowed, ", ")))
			return
		}
		errs = append(errs, fmt.Errorf("%s: unknown value %q (one of %s)", field, value, strings.Join(allowed, ", ")))
	}
	check("embedder.type", c.Embedder.Type, "hashing", "openai")
	check("chunker.type", c.Chunker.Type, "recursive", "langchain")
	check("vector_store.type", c.VectorStore.Type, "flat")
	check("vector_store.policy", c.VectorStore.Policy, "accumulate", "replace")
	check("storage.type", c.Storage.Type, "local", "minio", "none")
	check("completion.type", c.Completion.Type, "openai")
	check("summarizer.type", c.Summarizer.Type, "frequency", "none")
	check("log.level", c.Log.Level, "debug", "info", "error")
	if c.Chunker.Overlap >= c.Chunker.ChunkSize {
		errs = append(errs, fmt.Errorf("chunker.overlap (%d) must be smaller than chunker.chunk_size (%d)", c.Chunker.Overlap, c.Chunker.ChunkSize))
	}
	if c.Storage.Type == "minio" && (c.Storage.MinIO == nil || c.Storage.MinIO.Endpoint == "" || c.Storage.MinIO.Bucket == "") {
		errs = append(errs, errors.New("storage.minio.endpoint and storage.minio.bucket are required"))
	}
	return errors.Join(errs...)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docchat", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "hashing", Hashing: &HashingEmbedderConfig{}},
		Chunker:     ChunkerConfig{Type: "recursive"},
		VectorStore: VectorStoreConfig{Type: "flat", Policy: "replace"},
		Storage:     StorageConfig{Type: "local"},
		Completion:  CompletionConfig{Type: "openai", Temperature: 0.5},
		Summarizer:  SummarizerConfig{Type: "frequency"},
		Server:      ServerConfig{AllowedOrigins: []string{"http://localhost:5173"}},
	}
	applyConfigDefaults(cfg)
	return cfg
}

// applyConfigDefaults fills zero values. The ingestion policy is never
// defaulted here.
func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "hashing"
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 100
	}
	if cfg.Embedder.MaxInputChars == 0 {
		cfg.Embedder.MaxInputChars = 8000
	}
	if cfg.Embedder.Type == "hashing" {
		if cfg.Embedder.Hashing == nil {
			cfg.Embedder.Hashing = &HashingEmbedderConfig{}
		}
		if cfg.Embedder.Hashing.Dimension == 0 {
			cfg.Embedder.Hashing.Dimension = 384
		}
	}
	if cfg.Embedder.Type == "openai" {
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
		if cfg.Embedder.OpenAI.Dimension == 0 {
			cfg.Embedder.OpenAI.Dimension = 1536
		}
		if cfg.Embedder.OpenAI.TimeoutSecs == 0 {
			cfg.Embedder.OpenAI.TimeoutSecs = 30
		}
	}

	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "recursive"
	}
	if cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 1000
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = min(200, cfg.Chunker.ChunkSize/5)
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "flat"
	}
	if cfg.VectorStore.TopK == 0 {
		cfg.VectorStore.TopK = 4
	}
	if cfg.VectorStore.Location == "" {
		cfg.VectorStore.Location = "faiss_index"
	}

	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "local"
	}
	if cfg.Storage.Type == "local" {
		if cfg.Storage.Local == nil {
			cfg.Storage.Local = &LocalStorageConfig{}
		}
		if cfg.Storage.Local.Dir == "" {
			cfg.Storage.Local.Dir = "data"
		}
	}
	if cfg.Storage.Type == "minio" && cfg.Storage.MinIO != nil {
		if cfg.Storage.MinIO.AccessKeyEnv == "" {
			cfg.Storage.MinIO.AccessKeyEnv = "MINIO_ACCESS_KEY"
		}
		if cfg.Storage.MinIO.SecretKeyEnv == "" {
			cfg.Storage.MinIO.SecretKeyEnv = "MINIO_SECRET_KEY"
		}
	}

	if cfg.Completion.Type == "" {
		cfg.Completion.Type = "openai"
	}
	if cfg.Completion.BaseURL == "" {
		cfg.Completion.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Completion.APIKeyEnv == "" {
		cfg.Completion.APIKeyEnv = "GROQ_API_KEY"
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "llama-3.3-70b-versatile"
	}
	if cfg.Completion.TimeoutSecs == 0 {
		cfg.Completion.TimeoutSecs = 60
	}

	if cfg.Summarizer.Type == "" {
		cfg.Summarizer.Type = "frequency"
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":5000"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 10
	}
	if cfg.Server.ShutdownTimeoutSecs == 0 {
		cfg.Server.ShutdownTimeoutSecs = 5
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}
