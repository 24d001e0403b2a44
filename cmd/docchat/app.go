package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"

	"docchat/internal/blobstore"
	"docchat/internal/blobstore/local"
	"docchat/internal/blobstore/s3"
	"docchat/internal/chunker"
	"docchat/internal/completion/openai"
	"docchat/internal/config"
	"docchat/internal/domain"
	"docchat/internal/embedding/hashing"
	embopenai "docchat/internal/embedding/openai"
	"docchat/internal/service"
	"docchat/internal/summarizer"
)

// newConversation assembles the conversation and restores any persisted index.
func newConversation(ctx context.Context, cfg *config.AppConfig, logger logr.Logger) (*service.Conversation, bool, error) {
	emb, err := newEmbedder(cfg)
	if err != nil {
		return nil, false, err
	}
	ch, err := newChunker(cfg)
	if err != nil {
		return nil, false, err
	}
	store, err := newStore(ctx, cfg)
	if err != nil {
		return nil, false, err
	}
	sum, err := newSummarizer(cfg)
	if err != nil {
		return nil, false, err
	}
	comp, err := openai.NewClient(openai.Config{
		BaseURL:      cfg.Completion.BaseURL,
		APIKeyEnv:    cfg.Completion.APIKeyEnv,
		Model:        cfg.Completion.Model,
		Temperature:  cfg.Completion.Temperature,
		MaxTokens:    cfg.Completion.MaxTokens,
		SystemPrompt: cfg.Completion.SystemPrompt,
		Timeout:      time.Duration(cfg.Completion.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return nil, false, fmt.Errorf("completion init failed: %w", err)
	}

	conv, err := service.New(service.Deps{
		Chunker:    ch,
		Embedder:   emb,
		Completer:  comp,
		Summarizer: sum,
		Store:      store,
		Logger:     logger.WithName("conversation"),
	}, service.Options{
		Policy:              service.Policy(cfg.VectorStore.Policy),
		TopK:                cfg.VectorStore.TopK,
		IndexLocation:       cfg.VectorStore.Location,
		EmbedBatchSize:      cfg.Embedder.BatchSize,
		CompletionTimeout:   time.Duration(cfg.Completion.TimeoutSecs) * time.Second,
		SummaryMaxSentences: cfg.Summarizer.MaxSentences,
		PromptTemplate:      cfg.Completion.PromptTemplate,
	})
	if err != nil {
		return nil, false, err
	}
	restored, err := conv.Restore(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("restore index: %w", err)
	}
	logger.Info("conversation ready",
		"embedder", emb.Name(),
		"chunker", cfg.Chunker.Type,
		"storage", cfg.Storage.Type,
		"policy", cfg.VectorStore.Policy,
		"restored", restored,
	)
	return conv, restored, nil
}

func newEmbedder(cfg *config.AppConfig) (domain.Embedder, error) {
	switch cfg.Embedder.Type {
	case "hashing", "":
		dim := 0
		if cfg.Embedder.Hashing != nil {
			dim = cfg.Embedder.Hashing.Dimension
		}
		return hashing.NewEmbedder(dim, cfg.Embedder.MaxInputChars), nil
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:       cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv:     cfg.Embedder.OpenAI.APIKeyEnv,
			Model:         cfg.Embedder.OpenAI.Model,
			Dimension:     cfg.Embedder.OpenAI.Dimension,
			MaxInputChars: cfg.Embedder.MaxInputChars,
			Timeout:       time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, fmt.Errorf("openai embedder init failed: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func newChunker(cfg *config.AppConfig) (domain.Chunker, error) {
	switch cfg.Chunker.Type {
	case "recursive", "":
		return chunker.NewRecursive(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap), nil
	case "langchain":
		return chunker.NewLangChain(cfg.Chunker.ChunkSize, cfg.Chunker.Overlap), nil
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}
}

func newStore(ctx context.Context, cfg *config.AppConfig) (blobstore.Store, error) {
	switch cfg.Storage.Type {
	case "local", "":
		dir := "data"
		if cfg.Storage.Local != nil && cfg.Storage.Local.Dir != "" {
			dir = cfg.Storage.Local.Dir
		}
		return local.NewStore(dir)
	case "minio":
		m := cfg.Storage.MinIO
		if m == nil {
			return nil, fmt.Errorf("minio storage config missing")
		}
		return s3.NewStore(ctx, s3.Config{
			Endpoint:  m.Endpoint,
			AccessKey: os.Getenv(m.AccessKeyEnv),
			SecretKey: os.Getenv(m.SecretKeyEnv),
			Bucket:    m.Bucket,
			UseSSL:    m.UseSSL,
		})
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown storage: %s", cfg.Storage.Type)
	}
}

func newSummarizer(cfg *config.AppConfig) (domain.Summarizer, error) {
	switch cfg.Summarizer.Type {
	case "frequency", "":
		return summarizer.NewFrequencySummarizer(), nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}
}
