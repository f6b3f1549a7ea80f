//go:build !fastembed

// Package fastembed embeds text in-process with fastembed-go. This build was
// made without the fastembed tag, so New always fails.
package fastembed

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by New in builds without the fastembed tag.
var ErrUnavailable = errors.New("fastembed: support not included; rebuild with -tags fastembed")

type Embedder struct{}

func New(cfg Config) (*Embedder, error) {
	_ = cfg.withDefaults()
	return nil, ErrUnavailable
}

func (*Embedder) Embed(context.Context, string) ([]float32, error) { return nil, ErrUnavailable }

func (*Embedder) Close() error { return nil }
