//go:build fastembed

// Package fastembed embeds text in-process with fastembed-go's quantised
// ONNX models.
package fastembed

import (
	"context"
	"fmt"

	fastembed "github.com/anush008/fastembed-go"
)

// Embedder wraps one loaded model.
type Embedder struct {
	m *fastembed.FlagEmbedding
}

// New downloads (on first use) and loads the model named by cfg.
func New(cfg Config) (*Embedder, error) {
	cfg = cfg.withDefaults()
	m, err := fastembed.NewFlagEmbedding(&fastembed.InitOptions{
		Model:     fastembed.EmbeddingModel(cfg.Model),
		CacheDir:  cfg.CacheDir,
		MaxLength: cfg.MaxLength,
	})
	if err != nil {
		return nil, fmt.Errorf("fastembed: load %s: %w", cfg.Model, err)
	}
	return &Embedder{m: m}, nil
}

// Embed embeds text as a query.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec, err := e.m.QueryEmbed(text)
	if err != nil {
		return nil, fmt.Errorf("fastembed: embed: %w", err)
	}
	return vec, nil
}

func (e *Embedder) Close() error {
	if e.m != nil {
		e.m.Destroy()
	}
	return nil
}
