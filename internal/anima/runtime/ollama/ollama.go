// Package ollama runs Anima's chat and embedding models on a local Ollama
// daemon.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"
	"unicode/utf8"

	ollama "github.com/ollama/ollama/api"

	"github.com/bdobrica/Anima/internal/anima/runtime"
)

// DefaultHost is used when neither Config.Host nor OLLAMA_HOST is set.
const DefaultHost = "http://localhost:11434"

// Config selects the daemon and models.
type Config struct {
	Host        string
	ChatModel   string
	EmbedModel  string
	Timeout     time.Duration
	ContextSize int
}

// Client implements runtime.ChatModel and runtime.Embedder.
type Client struct {
	api    *ollama.Client
	cfg    Config
	logger *slog.Logger
}

var (
	_ runtime.ChatModel = (*Client)(nil)
	_ runtime.Embedder  = (*Client)(nil)
)

// New builds a client. It does not contact the daemon; see Ping.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.ContextSize <= 0 {
		cfg.ContextSize = runtime.DefaultContextSize
	}
	u, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("ollama: invalid host %q: %w", cfg.Host, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	// Streams can legitimately run for minutes, so the client timeout only
	// applies when set explicitly.
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &Client{api: ollama.NewClient(u, httpClient), cfg: cfg, logger: logger}, nil
}

// Ping checks that the daemon answers.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.api.Heartbeat(ctx); err != nil {
		return fmt.Errorf("ollama: heartbeat %s: %w", c.cfg.Host, err)
	}
	return nil
}

// Tokenize estimates the prompt's token count. Ollama tokenizes server-side,
// so the tokens are placeholders used for the empty-prompt and context-window
// checks only.
func (c *Client) Tokenize(_ context.Context, text string) ([]runtime.Token, error) {
	if !utf8.ValidString(text) {
		return nil, fmt.Errorf("ollama: tokenize: prompt is not valid UTF-8")
	}
	n := (len(text) + 3) / 4
	toks := make([]runtime.Token, n)
	for i := range toks {
		toks[i] = runtime.Token(i)
	}
	return toks, nil
}

// Options renders cfg as Ollama request options.
func Options(cfg runtime.SamplerConfig, contextSize int) map[string]any {
	opts := map[string]any{
		"num_ctx": contextSize,
		"seed":    int(cfg.Seed),
	}
	if cfg.MaxTokens > 0 {
		opts["num_predict"] = cfg.MaxTokens
	}
	if cfg.Temperature <= 0 {
		opts["temperature"] = 0.0
		opts["top_k"] = 1
		return opts
	}
	opts["temperature"] = cfg.Temperature
	if cfg.TopK > 0 {
		opts["top_k"] = cfg.TopK
	}
	if cfg.TopP > 0 {
		opts["top_p"] = cfg.TopP
	}
	if cfg.RepeatPenalty > 0 {
		opts["repeat_penalty"] = cfg.RepeatPenalty
	}
	if cfg.RepeatLastN > 0 {
		opts["repeat_last_n"] = cfg.RepeatLastN
	}
	return opts
}

// Start sends the rendered prompt in raw mode, so the daemon applies no
// template of its own, and streams the reply.
func (c *Client) Start(ctx context.Context, p runtime.Prompt, cfg runtime.SamplerConfig) (runtime.Decoder, error) {
	if len(p.Tokens) >= c.cfg.ContextSize {
		return nil, fmt.Errorf("ollama: %w: ~%d tokens, window %d",
			runtime.ErrContextOverflow, len(p.Tokens), c.cfg.ContextSize)
	}

	ctx, cancel := context.WithCancel(ctx)
	d := &decoder{
		frags:  make(chan runtime.Fragment),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	req := &ollama.GenerateRequest{
		Model:   c.cfg.ChatModel,
		Prompt:  p.Text,
		Raw:     true,
		Options: Options(cfg, c.cfg.ContextSize),
	}

	go func() {
		defer close(d.done)
		err := c.api.Generate(ctx, req, func(resp ollama.GenerateResponse) error {
			f := runtime.Fragment{Bytes: []byte(resp.Response), EOG: resp.Done}
			select {
			case d.frags <- f:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Warn("ollama: generate failed", "model", c.cfg.ChatModel, "err", err)
		}
		d.err = err
	}()
	return d, nil
}

type decoder struct {
	frags  chan runtime.Fragment
	done   chan struct{}
	err    error
	cancel context.CancelFunc

	closeOnce sync.Once
	finished  bool
}

func (d *decoder) Next(ctx context.Context) (runtime.Fragment, error) {
	if d.finished {
		return runtime.Fragment{EOG: true}, nil
	}
	select {
	case f := <-d.frags:
		if f.EOG {
			d.finished = true
		}
		return f, nil
	case <-d.done:
		d.finished = true
		if d.err != nil {
			return runtime.Fragment{}, fmt.Errorf("ollama: generate: %w", d.err)
		}
		// Stream ended without a done marker.
		return runtime.Fragment{EOG: true}, nil
	case <-ctx.Done():
		return runtime.Fragment{}, ctx.Err()
	}
}

// Close stops the request and waits for the stream goroutine.
func (d *decoder) Close() error {
	d.closeOnce.Do(func() {
		d.cancel()
		<-d.done
		d.finished = true
	})
	return nil
}

// Embed returns the first embedding for text, or an empty vector if the
// model returned none.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	res, err := c.api.Embed(ctx, &ollama.EmbedRequest{
		Model: c.cfg.EmbedModel,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: embed: %w", err)
	}
	if res == nil || len(res.Embeddings) == 0 {
		return nil, nil
	}
	return res.Embeddings[0], nil
}
