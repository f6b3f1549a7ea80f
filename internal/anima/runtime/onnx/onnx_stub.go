//go:build !onnx

// Package onnx embeds text in-process through ONNX Runtime. This build was
// made without the onnx tag, so New always fails.
package onnx

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by New in builds without the onnx tag.
var ErrUnavailable = errors.New("onnx: support not included; rebuild with -tags onnx")

// Embedder is unusable in this build.
type Embedder struct{}

func New(cfg Config) (*Embedder, error) {
	_ = cfg.withDefaults()
	return nil, ErrUnavailable
}

func (*Embedder) Embed(context.Context, string) ([]float32, error) { return nil, ErrUnavailable }

func (*Embedder) Close() error { return nil }
