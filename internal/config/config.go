package config

import (
	"errors"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"docrag/internal/domain"
)

// ChunkerConfig configures how documents are split into segments.
type ChunkerConfig struct {
	Type              string   `yaml:"type"`
	ChunkSize         int      `yaml:"chunk_size"`
	ChunkOverlap      int      `yaml:"chunk_overlap"`
	Separators        []string `yaml:"separators,omitempty"`
	SentencesPerChunk int      `yaml:"sentences_per_chunk,omitempty"`
	OverlapSentences  int      `yaml:"overlap_sentences,omitempty"`
}

// OllamaConfig holds connection details for a local Ollama server.
type OllamaConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// OpenAIConfig holds configuration for an OpenAI-compatible API.
type OpenAIConfig struct {
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	Model     string `yaml:"model"`
}

// HashingConfig configures the offline hashing embedder.
type HashingConfig struct {
	Dimension int `yaml:"dimension"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type        string         `yaml:"type"`
	BatchSize   int            `yaml:"batch_size"`
	Concurrency int            `yaml:"concurrency"`
	TimeoutSecs int            `yaml:"timeout_secs"`
	MaxRetries  int            `yaml:"max_retries"`
	Ollama      *OllamaConfig  `yaml:"ollama,omitempty"`
	OpenAI      *OpenAIConfig  `yaml:"openai,omitempty"`
	Hashing     *HashingConfig `yaml:"hashing,omitempty"`
}

// CompletionConfig selects the model used to answer questions.
type CompletionConfig struct {
	Type         string        `yaml:"type"`
	TimeoutSecs  int           `yaml:"timeout_secs"`
	SystemPrompt string        `yaml:"system_prompt,omitempty"`
	Ollama       *OllamaConfig `yaml:"ollama,omitempty"`
	OpenAI       *OpenAIConfig `yaml:"openai,omitempty"`
}

// IndexConfig locates the persisted vector index.
type IndexConfig struct {
	Dir string `yaml:"dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr               string `yaml:"addr"`
	UploadDir          string `yaml:"upload_dir"`
	MaxUploadMB        int    `yaml:"max_upload_mb"`
	ProgressIntervalMS int    `yaml:"progress_interval_ms"`
}

// WatchConfig configures the inbox directory watcher. An empty Dir disables it.
type WatchConfig struct {
	Dir        string `yaml:"dir,omitempty"`
	DebounceMS int    `yaml:"debounce_ms"`
}

// QueryConfig holds retrieval defaults.
type QueryConfig struct {
	TopK int `yaml:"top_k"`
}

// SummarizerConfig configures the ingestion summary.
type SummarizerConfig struct {
	MaxSentences int `yaml:"max_sentences"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Chunker    ChunkerConfig    `yaml:"chunker"`
	Embedder   EmbedderConfig   `yaml:"embedder"`
	Completion CompletionConfig `yaml:"completion"`
	Index      IndexConfig      `yaml:"index"`
	Server     ServerConfig     `yaml:"server"`
	Watch      WatchConfig      `yaml:"watch"`
	Query      QueryConfig      `yaml:"query"`
	Summarizer SummarizerConfig `yaml:"summarizer"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, domain.E(domain.KindConfig, "config.load", "parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/docrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/docrag/config.yaml and returns them.
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
	cfg := Default()
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

// Validate rejects configurations that cannot produce a working pipeline.
func (c *AppConfig) Validate() error {
	const op = "config.validate"
	switch c.Chunker.Type {
	case "recursive":
		if c.Chunker.ChunkSize <= 0 {
			return domain.E(domain.KindConfig, op, "chunk_size must be positive, got %d", c.Chunker.ChunkSize)
		}
		if c.Chunker.ChunkOverlap < 0 || c.Chunker.ChunkOverlap >= c.Chunker.ChunkSize {
			return domain.E(domain.KindConfig, op, "chunk_overlap must be in [0, chunk_size), got %d with chunk_size %d", c.Chunker.ChunkOverlap, c.Chunker.ChunkSize)
		}
	case "sentence":
		if c.Chunker.OverlapSentences < 0 || c.Chunker.OverlapSentences >= c.Chunker.SentencesPerChunk {
			return domain.E(domain.KindConfig, op, "overlap_sentences must be in [0, sentences_per_chunk)")
		}
	default:
		return domain.E(domain.KindConfig, op, "unknown chunker: %q", c.Chunker.Type)
	}
	switch c.Embedder.Type {
	case "ollama", "openai", "hashing":
	default:
		return domain.E(domain.KindConfig, op, "unknown embedder: %q", c.Embedder.Type)
	}
	switch c.Completion.Type {
	case "ollama", "openai", "none":
	default:
		return domain.E(domain.KindConfig, op, "unknown completion: %q", c.Completion.Type)
	}
	if c.Index.Dir == "" {
		return domain.E(domain.KindConfig, op, "index.dir must be set")
	}
	if c.Query.TopK <= 0 {
		return domain.E(domain.KindConfig, op, "query.top_k must be positive")
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml"), nil
}

// Default returns the built-in configuration.
func Default() *AppConfig {
	cfg := &AppConfig{
		Chunker:    ChunkerConfig{Type: "recursive", ChunkSize: 512, ChunkOverlap: 50},
		Embedder:   EmbedderConfig{Type: "ollama"},
		Completion: CompletionConfig{Type: "ollama"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Chunker.Type == "" {
		cfg.Chunker.Type = "recursive"
	}
	if cfg.Chunker.Type == "recursive" && cfg.Chunker.ChunkSize == 0 {
		cfg.Chunker.ChunkSize = 512
		if cfg.Chunker.ChunkOverlap == 0 {
			cfg.Chunker.ChunkOverlap = 50
		}
	}
	if cfg.Chunker.Type == "sentence" && cfg.Chunker.SentencesPerChunk == 0 {
		cfg.Chunker.SentencesPerChunk = 5
	}

	e := &cfg.Embedder
	if e.Type == "" {
		e.Type = "ollama"
	}
	if e.BatchSize == 0 {
		e.BatchSize = 10
	}
	if e.Concurrency == 0 {
		e.Concurrency = 2
	}
	if e.TimeoutSecs == 0 {
		e.TimeoutSecs = 60
	}
	switch e.Type {
	case "ollama":
		if e.Ollama == nil {
			e.Ollama = &OllamaConfig{}
		}
		if e.Ollama.BaseURL == "" {
			e.Ollama.BaseURL = "http://localhost:11434"
		}
		if e.Ollama.Model == "" {
			e.Ollama.Model = "nomic-embed-text"
		}
	case "openai":
		if e.OpenAI == nil {
			e.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(e.OpenAI, "text-embedding-3-small")
	case "hashing":
		if e.Hashing == nil {
			e.Hashing = &HashingConfig{}
		}
		if e.Hashing.Dimension == 0 {
			e.Hashing.Dimension = 256
		}
	}

	c := &cfg.Completion
	if c.Type == "" {
		c.Type = "ollama"
	}
	if c.TimeoutSecs == 0 {
		c.TimeoutSecs = 300
	}
	switch c.Type {
	case "ollama":
		if c.Ollama == nil {
			c.Ollama = &OllamaConfig{}
		}
		if c.Ollama.BaseURL == "" {
			c.Ollama.BaseURL = "http://localhost:11434"
		}
		if c.Ollama.Model == "" {
			c.Ollama.Model = "llama3.2"
		}
	case "openai":
		if c.OpenAI == nil {
			c.OpenAI = &OpenAIConfig{}
		}
		applyOpenAIDefaults(c.OpenAI, "gpt-4o-mini")
	}

	if cfg.Index.Dir == "" {
		cfg.Index.Dir = "index_data"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8001"
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = "uploads"
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 50
	}
	if cfg.Server.ProgressIntervalMS == 0 {
		cfg.Server.ProgressIntervalMS = 500
	}
	if cfg.Watch.DebounceMS == 0 {
		cfg.Watch.DebounceMS = 500
	}
	if cfg.Query.TopK == 0 {
		cfg.Query.TopK = 3
	}
	if cfg.Summarizer.MaxSentences == 0 {
		cfg.Summarizer.MaxSentences = 3
	}
}

func applyOpenAIDefaults(o *OpenAIConfig, model string) {
	if o.BaseURL == "" {
		o.BaseURL = "https://api.openai.com/v1"
	}
	if o.APIKeyEnv == "" {
		o.APIKeyEnv = "OPENAI_API_KEY"
	}
	if o.Model == "" {
		o.Model = model
	}
}
