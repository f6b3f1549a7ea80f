package runtime

import (
	"context"
	"fmt"
)

// LogitModel is a model driven token by token: it reports next-token logits
// and renders tokens back to bytes.
type LogitModel interface {
	Tokenize(text string) ([]Token, error)
	// Eval feeds tokens and returns the logits for the next position.
	Eval(ctx context.Context, tokens []Token) ([]float32, error)
	Piece(tok Token) ([]byte, error)
	IsEOG(tok Token) bool
	// Reset clears the model's state before a new prompt.
	Reset() error
}

// LogitChat implements ChatModel over a LogitModel using Sampler.
type LogitChat struct {
	Model       LogitModel
	ContextSize int
}

var _ ChatModel = (*LogitChat)(nil)

// NewLogitChat wraps model with the default context window.
func NewLogitChat(model LogitModel) *LogitChat {
	return &LogitChat{Model: model, ContextSize: DefaultContextSize}
}

func (c *LogitChat) Tokenize(_ context.Context, text string) ([]Token, error) {
	return c.Model.Tokenize(text)
}

// Start evaluates the prompt and returns a decoder positioned after it.
func (c *LogitChat) Start(ctx context.Context, prompt Prompt, cfg SamplerConfig) (Decoder, error) {
	if c.ContextSize > 0 && len(prompt.Tokens) >= c.ContextSize {
		return nil, fmt.Errorf("%w: %d tokens, window %d", ErrContextOverflow, len(prompt.Tokens), c.ContextSize)
	}
	if err := c.Model.Reset(); err != nil {
		return nil, fmt.Errorf("runtime: reset context: %w", err)
	}
	logits, err := c.Model.Eval(ctx, prompt.Tokens)
	if err != nil {
		return nil, fmt.Errorf("runtime: initial decode: %w", err)
	}
	s := NewSampler(cfg)
	s.Accept(prompt.Tokens...)
	return &logitDecoder{
		chat:     c,
		sampler:  s,
		logits:   logits,
		position: len(prompt.Tokens),
	}, nil
}

type logitDecoder struct {
	chat     *LogitChat
	sampler  *Sampler
	logits   []float32
	position int
	done     bool
}

func (d *logitDecoder) Next(ctx context.Context) (Fragment, error) {
	if d.done {
		return Fragment{EOG: true}, nil
	}
	if err := ctx.Err(); err != nil {
		return Fragment{}, err
	}

	tok := d.sampler.Sample(d.logits)
	if tok < 0 {
		return Fragment{}, fmt.Errorf("runtime: sample: empty logits")
	}
	if d.chat.Model.IsEOG(tok) {
		d.done = true
		return Fragment{EOG: true}, nil
	}
	piece, err := d.chat.Model.Piece(tok)
	if err != nil {
		return Fragment{}, fmt.Errorf("runtime: token decode: %w", err)
	}

	d.sampler.Accept(tok)
	if d.chat.ContextSize > 0 && d.position+1 >= d.chat.ContextSize {
		// Window exhausted: hand out the last piece and stop.
		d.done = true
		return Fragment{Bytes: piece, EOG: true}, nil
	}
	logits, err := d.chat.Model.Eval(ctx, []Token{tok})
	if err != nil {
		return Fragment{}, fmt.Errorf("runtime: decode loop: %w", err)
	}
	d.logits = logits
	d.position++
	return Fragment{Bytes: piece}, nil
}

func (d *logitDecoder) Close() error {
	d.done = true
	return nil
}
