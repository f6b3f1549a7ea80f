// Package generate turns prompts into streamed replies.
//
// An Engine holds the runtime lease for the length of one Generation and
// drives the decoder fragment by fragment. Text is released to the caller
// only once it can no longer turn into a stop sequence or a leaked
// instruction block, so a caller never has to retract anything it has shown.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bdobrica/Anima/internal/anima/runtime"
)

var (
	// ErrTokenization is returned when the prompt could not be tokenized.
	ErrTokenization = errors.New("generate: tokenization failed")
	// ErrGeneration is returned when decoding or sampling fails.
	ErrGeneration = errors.New("generate: generation failed")
)

// Decoding ceilings and sampling limits.
const (
	ChatMaxTokens     = 512
	SleepMaxTokens    = 1024
	GreetingMaxTokens = 120

	// MaxTemperature caps the sampling temperature whatever the caller asks.
	MaxTemperature = 0.7
)

// ChatRuntime hands out exclusive access to the chat model.
// *runtime.Manager implements it.
type ChatRuntime interface {
	AcquireChat(ctx context.Context) (*runtime.ChatLease, error)
}

var _ ChatRuntime = (*runtime.Manager)(nil)

// Request is one generation: already composed system and user prompts plus
// decoding limits.
type Request struct {
	System      string
	User        string
	Temperature float64
	// MaxTokens <= 0 means "up to the cap".
	MaxTokens int
	// Cap overrides ChatMaxTokens as the upper bound for MaxTokens.
	Cap int
}

func (r Request) ceiling() int {
	limit := r.Cap
	if limit <= 0 {
		limit = ChatMaxTokens
	}
	if r.MaxTokens <= 0 || r.MaxTokens > limit {
		return limit
	}
	return r.MaxTokens
}

// Engine runs generations against a chat runtime.
type Engine struct {
	runtime ChatRuntime
	logger  *slog.Logger
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine returns an Engine generating with rt.
func NewEngine(rt ChatRuntime, opts ...Option) *Engine {
	e := &Engine{runtime: rt, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Stream starts a generation. Nothing happens until the first call to
// Next; the caller must Close the generation (Chunks does so itself).
func (e *Engine) Stream(ctx context.Context, req Request) *Generation {
	return &Generation{
		ctx:       ctx,
		engine:    e,
		req:       req,
		maxTokens: req.ceiling(),
	}
}

// Complete runs req to the end and returns the final text.
func (e *Engine) Complete(ctx context.Context, req Request) (string, error) {
	g := e.Stream(ctx, req)
	defer g.Close()
	for g.Next() {
	}
	if err := g.Err(); err != nil {
		return "", err
	}
	return g.Result(), nil
}

// Chat composes the prompt for t and starts streaming the reply.
func (e *Engine) Chat(ctx context.Context, t Turn, temperature float64, maxTokens int) *Generation {
	system, user := ChatPrompt(t)
	return e.Stream(ctx, Request{
		System:      system,
		User:        user,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
}

// Greeting writes a short proactive opening line.
func (e *Engine) Greeting(ctx context.Context, in GreetingInput) (string, error) {
	text, err := e.Complete(ctx, Request{
		System:      GreetingPrompt(in),
		User:        GreetingUserTurn,
		Temperature: in.Temperature,
		MaxTokens:   GreetingMaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generate: greeting: %w", err)
	}
	return strings.TrimSpace(text), nil
}
