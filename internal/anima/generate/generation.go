package generate

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"

	"github.com/bdobrica/Anima/internal/anima/runtime"
)

// State is where a Generation is in its lifecycle.
type State int

const (
	Idle State = iota
	Prompting
	Decoding
	StopDetected
	LeakDetected
	EosDetected
	MaxTokensReached
	Finalizing
	Done
)

var stateNames = [...]string{
	Idle:             "idle",
	Prompting:        "prompting",
	Decoding:         "decoding",
	StopDetected:     "stop_detected",
	LeakDetected:     "leak_detected",
	EosDetected:      "eos_detected",
	MaxTokensReached: "max_tokens_reached",
	Finalizing:       "finalizing",
	Done:             "done",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Generation is a single-pass stream of reply chunks. Use it like
// bufio.Scanner:
//
//	g := engine.Stream(ctx, req)
//	defer g.Close()
//	for g.Next() {
//		fmt.Print(g.Text())
//	}
//	if err := g.Err(); err != nil { ... }
//
// A Generation is not safe for concurrent use.
type Generation struct {
	ctx       context.Context
	engine    *Engine
	req       Request
	maxTokens int

	state State
	// stopReason is the terminal decoding state, kept after Done.
	stopReason State
	lease      *runtime.ChatLease
	dec        runtime.Decoder

	pending   []byte
	generated string
	emitted   int
	steps     int

	queue  []string
	text   string
	result string
	err    error
}

// Next advances to the next chunk. It returns false when the generation has
// finished or failed; check Err afterwards.
func (g *Generation) Next() bool {
	for {
		if len(g.queue) > 0 {
			g.text, g.queue = g.queue[0], g.queue[1:]
			return true
		}
		g.text = ""
		if g.state == Done {
			return false
		}
		g.step()
	}
}

// Text returns the chunk produced by the last call to Next.
func (g *Generation) Text() string { return g.text }

// Err returns the first error the generation hit.
func (g *Generation) Err() error { return g.err }

// Result returns the sanitized, trimmed reply. It is complete once Next has
// returned false.
func (g *Generation) Result() string { return g.result }

// State reports the current lifecycle state.
func (g *Generation) State() State { return g.state }

// StopReason reports how decoding ended: StopDetected, LeakDetected,
// EosDetected or MaxTokensReached. It is Idle if decoding never ran.
func (g *Generation) StopReason() State { return g.stopReason }

// Chunks returns the remaining chunks as an iterator. Breaking out of the
// loop closes the generation.
func (g *Generation) Chunks() iter.Seq[string] {
	return func(yield func(string) bool) {
		defer g.Close()
		for g.Next() {
			if !yield(g.Text()) {
				return
			}
		}
	}
}

// Close stops the generation and releases the runtime. A generation closed
// early keeps what had already been emitted as its Result. Close is safe to
// call more than once.
func (g *Generation) Close() error {
	if g.state != Done {
		g.state = Done
		g.queue = nil
		g.result = strings.TrimSpace(Sanitize(g.generated[:min(g.emitted, len(g.generated))]))
	}
	return g.release()
}

func (g *Generation) release() error {
	var err error
	if g.dec != nil {
		err = g.dec.Close()
		g.dec = nil
	}
	if g.lease != nil {
		g.lease.Release()
		g.lease = nil
	}
	return err
}

func (g *Generation) step() {
	switch g.state {
	case Idle:
		g.start()
	case Decoding:
		g.decode()
	default:
		g.finish()
	}
}

func (g *Generation) fail(err error) {
	g.err = err
	g.Close()
}

func (g *Generation) start() {
	g.state = Prompting
	lease, err := g.engine.runtime.AcquireChat(g.ctx)
	if err != nil {
		g.fail(err)
		return
	}
	g.lease = lease

	text := Llama3(g.req.System, g.req.User)
	tokens, err := lease.Model.Tokenize(g.ctx, text)
	if err != nil {
		g.fail(fmt.Errorf("%w: %w", ErrTokenization, err))
		return
	}
	if len(tokens) == 0 {
		g.engine.logger.Debug("generate: empty tokenization, nothing to do")
		g.Close()
		return
	}

	cfg := runtime.NewSamplerConfig(min(g.req.Temperature, MaxTemperature), g.maxTokens)
	dec, err := lease.Model.Start(g.ctx, runtime.Prompt{Text: text, Tokens: tokens}, cfg)
	if err != nil {
		g.fail(fmt.Errorf("%w: start: %w", ErrGeneration, err))
		return
	}
	g.dec = dec
	g.state = Decoding
}

func (g *Generation) decode() {
	if g.steps >= g.maxTokens {
		g.state = MaxTokensReached
		return
	}
	frag, err := g.dec.Next(g.ctx)
	if err != nil {
		g.fail(fmt.Errorf("%w: decode: %w", ErrGeneration, err))
		return
	}
	g.steps++

	if len(frag.Bytes) > 0 {
		if isStopSequence(string(frag.Bytes)) {
			g.state = StopDetected
			return
		}
		g.pending = append(g.pending, frag.Bytes...)
		if utf8.Valid(g.pending) {
			g.generated += string(g.pending)
			g.pending = g.pending[:0]

			if i := leakIndex(g.generated); i >= 0 {
				g.generated = g.generated[:i]
				g.state = LeakDetected
				return
			}
			if i := stopIndex(g.generated); i >= 0 {
				g.generated = g.generated[:i]
				g.state = StopDetected
				return
			}
			g.emit(safeEmitEnd(g.generated, g.emitted))
		}
	}
	if frag.EOG {
		g.state = EosDetected
	}
}

// emit queues generated[emitted:end], sanitized, and advances emitted.
func (g *Generation) emit(end int) {
	if end <= g.emitted {
		return
	}
	if chunk := Sanitize(g.generated[g.emitted:end]); chunk != "" {
		g.queue = append(g.queue, chunk)
	}
	g.emitted = end
}

func (g *Generation) finish() {
	g.stopReason = g.state
	g.state = Finalizing

	if len(g.pending) > 0 {
		g.generated += strings.ToValidUTF8(string(g.pending), "\uFFFD")
		g.pending = nil
	}
	if i := stopIndex(g.generated); i >= 0 {
		g.generated = g.generated[:i]
	}
	if i := leakIndex(g.generated); i >= 0 {
		g.generated = g.generated[:i]
	}
	g.emit(len(g.generated))
	g.result = strings.TrimSpace(Sanitize(g.generated))

	g.engine.logger.Debug("generate: finished",
		"reason", g.stopReason.String(),
		"steps", g.steps,
		"bytes", len(g.result),
	)
	g.state = Done
	if err := g.release(); err != nil {
		g.engine.logger.Warn("generate: close decoder", "err", err)
	}
}
