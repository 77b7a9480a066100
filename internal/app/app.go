// Package app assembles the recommendation service from configuration.
package app

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"librarian/internal/catalog"
	"librarian/internal/config"
	"librarian/internal/embedding"
	embopenai "librarian/internal/embedding/openai"
	"librarian/internal/embedding/tfidf"
	"librarian/internal/guardrail"
	llmopenai "librarian/internal/llm/openai"
	"librarian/internal/service"
	"librarian/internal/tools"
	"librarian/internal/vectorstore"
	"librarian/internal/vectorstore/memory"
	"librarian/internal/vectorstore/qdrant"
	"librarian/internal/vectorstore/sqlite"
)

// Build wires the catalog, guardrail, embedder, vector store and chat client
// into a Librarian according to cfg. The caller owns the returned service and
// must Close it.
func Build(cfg *config.AppConfig, logger *zap.Logger) (*service.Librarian, error) {
	books, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, err
	}

	patterns := cfg.Guardrail.Patterns
	if len(patterns) == 0 {
		patterns = guardrail.DefaultPatterns
	}
	guard, err := guardrail.New(patterns, cfg.Guardrail.Message)
	if err != nil {
		return nil, err
	}

	emb, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildStorage(cfg)
	if err != nil {
		return nil, err
	}

	completer, err := llmopenai.NewClient(llmopenai.Config{
		BaseURL:     cfg.Chat.OpenAI.BaseURL,
		APIKeyEnv:   cfg.Chat.OpenAI.APIKeyEnv,
		Model:       cfg.Chat.OpenAI.Model,
		Temperature: cfg.Chat.Temperature,
		MaxTokens:   cfg.Chat.OpenAI.MaxTokens,
		Timeout:     time.Duration(cfg.Chat.OpenAI.TimeoutSecs) * time.Second,
		RatePerSec:  cfg.Chat.OpenAI.RatePerSec,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	opts := service.Options{
		TopK:             cfg.TopK,
		FirstTemperature: cfg.Chat.Temperature,
		FinalTemperature: cfg.Chat.FinalTemperature,
	}
	registry := tools.NewRegistry(books)
	return service.New(guard, books, emb, store, completer, registry, opts, logger), nil
}

func buildEmbedder(cfg *config.AppConfig) (embedding.Embedder, error) {
	switch cfg.Embedder.Type {
	case "openai", "":
		return embopenai.NewClient(embopenai.Config{
			BaseURL:    cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv:  cfg.Embedder.OpenAI.APIKeyEnv,
			Model:      cfg.Embedder.OpenAI.Model,
			Timeout:    time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
			RatePerSec: cfg.Embedder.OpenAI.RatePerSec,
		})
	case "tfidf":
		return tfidf.NewEmbedder(), nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}
}

func buildStorage(cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "sqlite", "":
		return sqlite.Open(sqlite.Config{
			Path:       cfg.VectorStore.SQLite.Path,
			Collection: cfg.VectorStore.SQLite.Collection,
		})
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			return nil, fmt.Errorf("qdrant config missing")
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.VectorStore.Qdrant.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "memory":
		return memory.NewStorage(), nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
	}
}
