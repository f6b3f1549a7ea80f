package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bdobrica/Anima/internal/anima/runtime"
	"github.com/bdobrica/Anima/internal/anima/store"
)

// DefaultTopK is how many memories Prepare returns at most.
const DefaultTopK = 3

// Retriever stores incoming messages as memories and finds related ones.
type Retriever struct {
	store    *store.Store
	embedder runtime.Embedder
	index    Index
	topK     int
	logger   *slog.Logger
	now      func() time.Time
}

// Option customises a Retriever.
type Option func(*Retriever)

// WithIndex replaces the default StoreIndex.
func WithIndex(i Index) Option {
	return func(r *Retriever) {
		if i != nil {
			r.index = i
		}
	}
}

// WithTopK overrides DefaultTopK.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithClock sets the clock used to stamp new memories.
func WithClock(now func() time.Time) Option {
	return func(r *Retriever) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRetriever returns a Retriever over s, embedding with emb.
func NewRetriever(s *store.Store, emb runtime.Embedder, opts ...Option) *Retriever {
	if emb == nil {
		emb = NoopEmbedder{}
	}
	r := &Retriever{
		store:    s,
		embedder: emb,
		index:    StoreIndex{Store: s},
		topK:     DefaultTopK,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Index returns the index queries go through.
func (r *Retriever) Index() Index { return r.index }

// Prepare saves message as a user turn, remembers it as an episodic memory
// and returns its id with the context lines of the closest earlier memories.
// When the embedder yields nothing, the message is saved without a memory
// and no context is returned.
func (r *Retriever) Prepare(ctx context.Context, message string) (int64, []string, error) {
	id, err := r.store.InsertMessage(ctx, store.RoleUser, message)
	if err != nil {
		return 0, nil, fmt.Errorf("memory: save message: %w", err)
	}

	vec, err := r.embedder.Embed(ctx, message)
	if err != nil {
		return id, nil, fmt.Errorf("memory: embed message: %w", err)
	}
	if len(vec) == 0 {
		r.logger.Debug("memory: no embedding, skipping retrieval", "message_id", id)
		return id, nil, nil
	}

	if err := r.Remember(ctx, id, store.RoleUser, message, vec, store.Episodic); err != nil {
		return id, nil, err
	}

	matches, err := r.index.Query(ctx, vec, r.topK, id)
	if err != nil {
		return id, nil, fmt.Errorf("memory: query: %w", err)
	}
	r.logger.Debug("memory: retrieved context", "message_id", id, "matches", len(matches))
	return id, FormatContext(matches), nil
}

// Remember stores vec as the memory of an existing message and mirrors it
// into the index.
func (r *Retriever) Remember(ctx context.Context, messageID int64, role store.Role, content string, vec []float32, memType store.MemoryType) error {
	now := r.now()
	if err := r.store.InsertMemory(ctx, messageID, vec, memType, now); err != nil {
		return fmt.Errorf("memory: save embedding: %w", err)
	}
	mem := store.Memory{
		MessageID:  messageID,
		Role:       role,
		Content:    content,
		MemoryType: store.NormalizeMemoryType(string(memType)),
		MemoryTime: now.UTC().Truncate(time.Second),
		CreatedAt:  now.UTC(),
		Embedding:  vec,
	}
	if err := r.index.Upsert(ctx, mem); err != nil {
		return fmt.Errorf("memory: index: %w", err)
	}
	return nil
}

// Forget deletes the memory of one message. The message stays in history.
func (r *Retriever) Forget(ctx context.Context, messageID int64) error {
	if err := r.store.DeleteMemory(ctx, messageID); err != nil {
		return err
	}
	return r.index.Remove(ctx, messageID)
}

// ForgetAll deletes every memory.
func (r *Retriever) ForgetAll(ctx context.Context) error {
	if err := r.store.ClearAllMemories(ctx); err != nil {
		return err
	}
	return r.index.Clear(ctx)
}

// FormatContext renders matches as prompt lines. Semantic facts are timeless
// and appear bare; episodic memories carry their date and, for conversation
// turns, who said it.
func FormatContext(matches []store.Match) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if m.MemoryType == store.Semantic {
			out = append(out, "- "+content)
			continue
		}
		var b strings.Builder
		b.WriteString("- [")
		b.WriteString(m.MemoryTime.UTC().Format("2006-01-02"))
		b.WriteString("] ")
		switch m.Role {
		case store.RoleUser:
			b.WriteString("(user memory) ")
		case store.RoleAssistant:
			b.WriteString("(assistant memory) ")
		}
		b.WriteString(content)
		out = append(out, b.String())
	}
	return out
}
