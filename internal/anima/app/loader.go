package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bdobrica/Anima/internal/anima/memory"
	"github.com/bdobrica/Anima/internal/anima/runtime"
	"github.com/bdobrica/Anima/internal/anima/runtime/fastembed"
	"github.com/bdobrica/Anima/internal/anima/runtime/ollama"
	"github.com/bdobrica/Anima/internal/anima/runtime/onnx"
)

// NewLoader returns the runtime loader described by cfg: chat always goes
// through Ollama, embeddings through the configured backend, optionally
// behind a ristretto cache.
func NewLoader(cfg Config, logger *slog.Logger) runtime.Loader {
	if logger == nil {
		logger = slog.Default()
	}
	client := sync.OnceValues(func() (*ollama.Client, error) {
		return ollama.New(ollama.Config{
			Host:        cfg.Ollama.Host,
			ChatModel:   cfg.Ollama.ChatModel,
			EmbedModel:  cfg.Ollama.EmbedModel,
			Timeout:     cfg.Ollama.Timeout,
			ContextSize: cfg.Ollama.ContextSize,
		}, logger)
	})

	loader := runtime.Loader{
		Chat: func(ctx context.Context) (runtime.ChatModel, error) {
			c, err := client()
			if err != nil {
				return nil, err
			}
			if err := c.Ping(ctx); err != nil {
				return nil, err
			}
			logger.Info("app: chat model ready", "host", cfg.Ollama.Host, "model", cfg.Ollama.ChatModel)
			return c, nil
		},
	}
	if cfg.Embedder == EmbedderNone {
		logger.Info("app: embeddings disabled, retrieval is off")
		return loader
	}

	loader.Embedder = func(ctx context.Context) (runtime.Embedder, error) {
		var (
			emb runtime.Embedder
			err error
		)
		switch cfg.Embedder {
		case EmbedderONNX:
			emb, err = onnx.New(onnx.Config{
				ModelPath:     cfg.ONNX.ModelPath,
				TokenizerPath: cfg.ONNX.TokenizerPath,
				LibraryPath:   cfg.ONNX.LibraryPath,
				Dimensions:    cfg.ONNX.Dimensions,
			})
		case EmbedderFastEmbed:
			emb, err = fastembed.New(fastembed.Config{
				Model:    cfg.FastEmbed.Model,
				CacheDir: cfg.FastEmbed.CacheDir,
			})
		default:
			emb, err = client()
		}
		if err != nil {
			return nil, fmt.Errorf("%s embedder: %w", cfg.Embedder, err)
		}
		logger.Info("app: embedding model ready", "backend", cfg.Embedder)

		if cfg.EmbedCacheBytes <= 0 {
			return emb, nil
		}
		cached, err := memory.NewCachedEmbedder(emb, cfg.EmbedCacheBytes)
		if err != nil {
			return nil, fmt.Errorf("embedding cache: %w", err)
		}
		return cached, nil
	}
	return loader
}
