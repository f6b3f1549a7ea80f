// Package runtimetest provides scripted models for tests of packages that
// sit on top of runtime.Manager.
package runtimetest

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"
	"unicode"

	"github.com/bdobrica/Anima/internal/anima/runtime"
)

// Chat replays a fixed list of fragments for every generation. Each string
// becomes one fragment; the generation ends with EOG after the last one.
// Prompts and sampler configs are recorded for inspection.
type Chat struct {
	mu sync.Mutex

	Fragments [][]byte
	// Replies, when set, is consumed one entry per generation and takes
	// precedence over Fragments.
	Replies [][]string

	TokenizeErr error
	StartErr    error
	// NextErr is returned after FailAfter fragments when set.
	NextErr   error
	FailAfter int
	// EmptyTokens makes Tokenize return no tokens.
	EmptyTokens bool

	Prompts []string
	Configs []runtime.SamplerConfig
	Closed  int
}

var _ runtime.ChatModel = (*Chat)(nil)

// NewChat returns a Chat emitting each of fragments in turn.
func NewChat(fragments ...string) *Chat {
	c := &Chat{}
	for _, f := range fragments {
		c.Fragments = append(c.Fragments, []byte(f))
	}
	return c
}

// Tokenize returns one token per whitespace-separated word.
func (c *Chat) Tokenize(_ context.Context, text string) ([]runtime.Token, error) {
	if c.TokenizeErr != nil {
		return nil, c.TokenizeErr
	}
	if c.EmptyTokens {
		return nil, nil
	}
	words := strings.Fields(text)
	toks := make([]runtime.Token, len(words))
	for i := range words {
		toks[i] = runtime.Token(i + 1)
	}
	return toks, nil
}

func (c *Chat) Start(_ context.Context, p runtime.Prompt, cfg runtime.SamplerConfig) (runtime.Decoder, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Prompts = append(c.Prompts, p.Text)
	c.Configs = append(c.Configs, cfg)
	if c.StartErr != nil {
		return nil, c.StartErr
	}
	frags := c.Fragments
	if len(c.Replies) > 0 {
		frags = nil
		for _, s := range c.Replies[0] {
			frags = append(frags, []byte(s))
		}
		c.Replies = c.Replies[1:]
	}
	return &decoder{chat: c, frags: frags}, nil
}

// LastPrompt returns the most recent prompt text.
func (c *Chat) LastPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.Prompts) == 0 {
		return ""
	}
	return c.Prompts[len(c.Prompts)-1]
}

type decoder struct {
	chat  *Chat
	frags [][]byte
	i     int
}

func (d *decoder) Next(ctx context.Context) (runtime.Fragment, error) {
	if err := ctx.Err(); err != nil {
		return runtime.Fragment{}, err
	}
	if d.chat.NextErr != nil && d.i >= d.chat.FailAfter {
		return runtime.Fragment{}, d.chat.NextErr
	}
	if d.i >= len(d.frags) {
		return runtime.Fragment{EOG: true}, nil
	}
	f := d.frags[d.i]
	d.i++
	return runtime.Fragment{Bytes: f}, nil
}

func (d *decoder) Close() error {
	d.chat.mu.Lock()
	d.chat.Closed++
	d.chat.mu.Unlock()
	return nil
}

// Embedder is a deterministic bag-of-words embedder: every lower-cased word
// hashes into one of Dim buckets. Texts sharing words score high.
type Embedder struct {
	Dim int
	Err error
	// Empty makes Embed return no vector.
	Empty bool

	mu    sync.Mutex
	Calls int
}

var _ runtime.Embedder = (*Embedder)(nil)

func (e *Embedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.Calls++
	e.mu.Unlock()
	if e.Err != nil {
		return nil, e.Err
	}
	if e.Empty {
		return nil, nil
	}
	dim := e.Dim
	if dim <= 0 {
		dim = 64
	}
	vec := make([]float32, dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		h := fnv.New32a()
		h.Write([]byte(w))
		vec[h.Sum32()%uint32(dim)]++
	}
	return vec, nil
}

// Manager returns an initialised runtime.Manager over chat and emb.
func Manager(ctx context.Context, chat runtime.ChatModel, emb runtime.Embedder) (*runtime.Manager, error) {
	loader := runtime.Loader{
		Chat: func(context.Context) (runtime.ChatModel, error) { return chat, nil },
	}
	if emb != nil {
		loader.Embedder = func(context.Context) (runtime.Embedder, error) { return emb, nil }
	}
	m := runtime.NewManager(loader)
	if err := m.Init(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
