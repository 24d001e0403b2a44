package main

import (
	"context"
	"testing"

	"github.com/go-logr/logr"

	"docchat/internal/config"
)

func testConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg, err := config.Load(t.TempDir() + "/absent.yaml")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Storage.Local.Dir = t.TempDir()
	return cfg
}

func TestBuilders(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.AppConfig)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*config.AppConfig) {}},
		{name: "langchain chunker", mutate: func(cfg *config.AppConfig) { cfg.Chunker.Type = "langchain" }},
		{name: "no storage", mutate: func(cfg *config.AppConfig) { cfg.Storage.Type = "none" }},
		{name: "no summarizer", mutate: func(cfg *config.AppConfig) { cfg.Summarizer.Type = "none" }},
		{name: "unknown embedder", mutate: func(cfg *config.AppConfig) { cfg.Embedder.Type = "word2vec" }, wantErr: true},
		{name: "unknown chunker", mutate: func(cfg *config.AppConfig) { cfg.Chunker.Type = "sentence" }, wantErr: true},
		{name: "missing policy", mutate: func(cfg *config.AppConfig) { cfg.VectorStore.Policy = "" }, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GROQ_API_KEY", "test-key")
			cfg := testConfig(t)
			tt.mutate(cfg)
			conv, restored, err := newConversation(context.Background(), cfg, logr.Discard())
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if restored || conv.Ready() {
				t.Error("fresh conversation should not be ready")
			}
		})
	}
}

func TestNewConversation_MissingCompletionKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	if _, _, err := newConversation(context.Background(), testConfig(t), logr.Discard()); err == nil {
		t.Fatal("expected error without completion API key")
	}
}
