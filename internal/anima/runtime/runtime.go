// Package runtime owns the model handles Anima generates and embeds with.
//
// A Manager loads a chat model and an embedding model at most once, replays
// the first load failure to every later caller, and serialises access so at
// most one generation or embedding runs at a time. The concrete models come
// from adapter packages (runtime/ollama, runtime/onnx, runtime/fastembed) or
// from LogitChat, which drives any logit-producing model with the Go sampler
// chain in this package.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Token is a model vocabulary id.
type Token int32

// Fragment is one decoding step's output. Bytes may hold part of a
// multi-byte character. EOG marks the end of generation; any Bytes on the
// same fragment come before it.
type Fragment struct {
	Bytes []byte
	EOG   bool
}

// Prompt is a fully rendered prompt and its tokenization.
type Prompt struct {
	Text   string
	Tokens []Token
}

// SamplerConfig controls how the next token is drawn.
type SamplerConfig struct {
	// Temperature <= 0 selects greedy sampling and ignores the other knobs.
	Temperature   float64
	TopK          int
	TopP          float64
	RepeatPenalty float64
	RepeatLastN   int
	Seed          uint64
	// MaxTokens is the decoding ceiling; adapters that generate remotely
	// pass it on so the server stops too.
	MaxTokens int
}

// Chat sampling defaults.
const (
	DefaultTopK          = 40
	DefaultTopP          = 0.92
	DefaultRepeatPenalty = 1.18
	DefaultRepeatLastN   = 128

	// DefaultContextSize is the context window models are loaded with.
	DefaultContextSize = 2048
)

// NewSamplerConfig returns the standard chain for temperature and
// maxTokens, seeded from the clock.
func NewSamplerConfig(temperature float64, maxTokens int) SamplerConfig {
	return SamplerConfig{
		Temperature:   temperature,
		TopK:          DefaultTopK,
		TopP:          DefaultTopP,
		RepeatPenalty: DefaultRepeatPenalty,
		RepeatLastN:   DefaultRepeatLastN,
		Seed:          ClockSeed(),
		MaxTokens:     maxTokens,
	}
}

// ClockSeed returns the sub-second nanoseconds of the current time.
func ClockSeed() uint64 {
	return uint64(time.Now().Nanosecond())
}

// ChatModel turns prompts into a stream of fragments.
type ChatModel interface {
	Tokenize(ctx context.Context, text string) ([]Token, error)
	Start(ctx context.Context, prompt Prompt, cfg SamplerConfig) (Decoder, error)
}

// Decoder yields fragments for one generation. Close releases it and may be
// called at any point.
type Decoder interface {
	Next(ctx context.Context) (Fragment, error)
	Close() error
}

// Embedder maps text to a vector. An empty result means the model produced
// nothing usable; callers treat it as "no retrieval", not as an error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

var (
	// ErrNotInitialized is returned when a model is requested before Init.
	ErrNotInitialized = errors.New("runtime: not initialized")

	// ErrInitFailed matches every *InitError.
	ErrInitFailed = errors.New("runtime: initialization failed")

	// ErrContextOverflow is returned when a prompt does not fit the model's
	// context window.
	ErrContextOverflow = errors.New("runtime: prompt is too long for current context")
)

// InitError records why a model could not be loaded. The Manager keeps the
// first one and returns it on every later call.
type InitError struct {
	Component string
	Err       error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("runtime: init %s: %v", e.Component, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Is reports whether target is ErrInitFailed.
func (e *InitError) Is(target error) bool { return target == ErrInitFailed }
