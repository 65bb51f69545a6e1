package main

import (
	"fmt"
	"log"
	"time"

	"docrag/internal/chunker"
	ollamacompletion "docrag/internal/completion/ollama"
	openaicompletion "docrag/internal/completion/openai"
	"docrag/internal/config"
	"docrag/internal/domain"
	"docrag/internal/embedding/hashing"
	ollamaembed "docrag/internal/embedding/ollama"
	openaiembed "docrag/internal/embedding/openai"
	"docrag/internal/parser"
	"docrag/internal/service"
	"docrag/internal/summarizer"
	"docrag/internal/vectorstore"
)

type app struct {
	cfg      *config.AppConfig
	pipeline *service.Pipeline
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgFile == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgFile)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newApp assembles the pipeline from configuration and loads the index.
func newApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	ch, err := newChunker(cfg.Chunker)
	if err != nil {
		return nil, err
	}
	emb, err := newEmbedder(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	// A missing completion model only disables ask.
	comp, err := newCompleter(cfg.Completion)
	if err != nil {
		log.Printf("completion disabled: %v", err)
		comp = nil
	}

	store, err := vectorstore.Open(cfg.Index.Dir)
	if err != nil {
		return nil, err
	}

	p := service.New(service.Deps{
		Parser:     parser.New(),
		Chunker:    ch,
		Embedder:   emb,
		Completer:  comp,
		Summarizer: summarizer.NewFrequency(),
		Store:      store,
	}, service.Options{
		BatchSize:        cfg.Embedder.BatchSize,
		Concurrency:      cfg.Embedder.Concurrency,
		EmbedTimeout:     time.Duration(cfg.Embedder.TimeoutSecs) * time.Second,
		CompleteTimeout:  time.Duration(cfg.Completion.TimeoutSecs) * time.Second,
		TopK:             cfg.Query.TopK,
		SystemPrompt:     cfg.Completion.SystemPrompt,
		SummarySentences: cfg.Summarizer.MaxSentences,
	})
	return &app{cfg: cfg, pipeline: p}, nil
}

func newChunker(c config.ChunkerConfig) (domain.Chunker, error) {
	switch c.Type {
	case "recursive", "":
		return chunker.NewRecursive(c.ChunkSize, c.ChunkOverlap, c.Separators)
	case "sentence":
		return chunker.NewSentence(c.SentencesPerChunk, c.OverlapSentences)
	default:
		return nil, domain.E(domain.KindConfig, "config", "unknown chunker: %s", c.Type)
	}
}

func newEmbedder(c config.EmbedderConfig) (domain.Embedder, error) {
	timeout := time.Duration(c.TimeoutSecs) * time.Second
	switch c.Type {
	case "ollama", "":
		return ollamaembed.NewClient(ollamaembed.Config{
			BaseURL:    c.Ollama.BaseURL,
			Model:      c.Ollama.Model,
			Timeout:    timeout,
			MaxRetries: c.MaxRetries,
		}), nil
	case "openai":
		return openaiembed.NewClient(openaiembed.Config{
			BaseURL:   c.OpenAI.BaseURL,
			APIKeyEnv: c.OpenAI.APIKeyEnv,
			Model:     c.OpenAI.Model,
		})
	case "hashing":
		return hashing.NewEmbedder(c.Hashing.Dimension), nil
	default:
		return nil, domain.E(domain.KindConfig, "config", "unknown embedder: %s", c.Type)
	}
}

func newCompleter(c config.CompletionConfig) (domain.Completer, error) {
	switch c.Type {
	case "ollama", "":
		return ollamacompletion.NewClient(ollamacompletion.Config{
			BaseURL: c.Ollama.BaseURL,
			Model:   c.Ollama.Model,
			Timeout: time.Duration(c.TimeoutSecs) * time.Second,
		}), nil
	case "openai":
		return openaicompletion.NewClient(openaicompletion.Config{
			BaseURL:   c.OpenAI.BaseURL,
			APIKeyEnv: c.OpenAI.APIKeyEnv,
			Model:     c.OpenAI.Model,
		})
	case "none":
		return nil, nil
	default:
		return nil, domain.E(domain.KindConfig, "config", "unknown completion model: %s", c.Type)
	}
}
