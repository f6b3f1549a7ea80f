// Package sleep consolidates raw conversation memories into long-term
// knowledge.
//
// A cycle feeds every raw memory (and, for the categorized schema, the
// current profile) to the chat model with a JSON-only instruction, validates
// the reply and applies it in one transaction. A reply that cannot be
// parsed leaves the store untouched.
package sleep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Anima/internal/anima/generate"
	"github.com/bdobrica/Anima/internal/anima/memory"
	"github.com/bdobrica/Anima/internal/anima/runtime"
	"github.com/bdobrica/Anima/internal/anima/store"
)

var (
	// ErrParse is returned when the model's reply is not the JSON the
	// schema asks for.
	ErrParse = errors.New("sleep: malformed consolidation response")

	// ErrRunning is returned when a cycle is started while another one is
	// still in progress.
	ErrRunning = errors.New("sleep: a cycle is already running")
)

// Temperature is the sampling temperature of the extraction pass.
const Temperature = 0.1

// Status is the outcome of a cycle.
type Status string

const (
	StatusCompleted Status = "completed"
	// StatusNoop means there were no raw memories to consolidate.
	StatusNoop Status = "noop"
)

// Result summarises one cycle.
type Result struct {
	CycleID           uuid.UUID `json:"cycle_id"`
	Schema            Schema    `json:"schema"`
	EpisodesProcessed int       `json:"episodes_processed"`
	InsightsGenerated int       `json:"insights_generated"`
	TraitsUpdated     int       `json:"traits_updated"`
	Status            Status    `json:"status"`
	StartedAt         time.Time `json:"started_at"`
	CompletedAt       time.Time `json:"completed_at"`
}

// Completer runs a non-streaming generation. *generate.Engine implements it.
type Completer interface {
	Complete(ctx context.Context, req generate.Request) (string, error)
}

var _ Completer = (*generate.Engine)(nil)

// Consolidator runs sleep cycles.
type Consolidator struct {
	store    *store.Store
	gen      Completer
	embedder runtime.Embedder
	index    memory.Index
	schema   Schema
	logger   *slog.Logger
	now      func() time.Time

	running sync.Mutex
}

// Option customises a Consolidator.
type Option func(*Consolidator)

// WithSchema selects the extraction schema. The default is SchemaSplit.
func WithSchema(s Schema) Option {
	return func(c *Consolidator) {
		if s != "" {
			c.schema = s
		}
	}
}

// WithIndex mirrors purged and new memories into idx.
func WithIndex(idx memory.Index) Option {
	return func(c *Consolidator) {
		if idx != nil {
			c.index = idx
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Consolidator) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Consolidator) {
		if now != nil {
			c.now = now
		}
	}
}

// New returns a Consolidator reading from and writing to s, generating with
// gen and embedding new facts with emb (which may be nil).
func New(s *store.Store, gen Completer, emb runtime.Embedder, opts ...Option) *Consolidator {
	if emb == nil {
		emb = memory.NoopEmbedder{}
	}
	c := &Consolidator{
		store:    s,
		gen:      gen,
		embedder: emb,
		index:    memory.StoreIndex{Store: s},
		schema:   SchemaSplit,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Schema returns the configured extraction schema.
func (c *Consolidator) Schema() Schema { return c.schema }

// Run executes one cycle. With no raw memories it returns a StatusNoop
// result and changes nothing. On any error the store is left as it was.
func (c *Consolidator) Run(ctx context.Context) (Result, error) {
	if !c.running.TryLock() {
		return Result{}, ErrRunning
	}
	defer c.running.Unlock()

	res := Result{CycleID: uuid.New(), Schema: c.schema, StartedAt: c.now().UTC()}
	log := c.logger.With("cycle_id", res.CycleID.String(), "schema", string(c.schema))

	raw, err := c.store.RawMemories(ctx)
	if err != nil {
		return res, fmt.Errorf("sleep: load memories: %w", err)
	}
	if len(raw) == 0 {
		log.Info("sleep: nothing to consolidate")
		res.Status = StatusNoop
		res.CompletedAt = c.now().UTC()
		return res, nil
	}
	res.EpisodesProcessed = len(raw)
	log.Info("sleep: cycle started", "memories", len(raw))

	var profile []store.ProfileTrait
	if c.schema == SchemaCategorized {
		if profile, err = c.store.ProfileTraits(ctx); err != nil {
			return res, fmt.Errorf("sleep: load profile: %w", err)
		}
	}

	system, user := Prompt(c.schema, raw, profile)
	reply, err := c.gen.Complete(ctx, generate.Request{
		System:      system,
		User:        user,
		Temperature: Temperature,
		MaxTokens:   generate.SleepMaxTokens,
		Cap:         generate.SleepMaxTokens,
	})
	if err != nil {
		return res, fmt.Errorf("sleep: generate: %w", err)
	}
	log.Debug("sleep: model replied", "bytes", len(reply))

	ext, err := ParseReply(c.schema, reply)
	if err != nil {
		log.Warn("sleep: discarding reply", "err", err, "reply", reply)
		return res, err
	}

	purge := make([]int64, len(raw))
	for i, m := range raw {
		purge[i] = m.MessageID
	}
	plan := store.Consolidation{Purge: purge}
	if c.schema == SchemaCategorized {
		plan.ReplaceProfile = true
		plan.Traits = ext.Traits
	} else {
		plan.Memories = c.embedFacts(ctx, log, ext)
	}

	ids, err := c.store.ApplyConsolidation(ctx, plan)
	if err != nil {
		return res, fmt.Errorf("sleep: apply: %w", err)
	}
	c.syncIndex(ctx, log, purge, plan.Memories, ids)

	res.InsightsGenerated = len(plan.Memories)
	res.TraitsUpdated = len(plan.Traits)
	res.Status = StatusCompleted
	res.CompletedAt = c.now().UTC()
	log.Info("sleep: cycle finished",
		"insights", res.InsightsGenerated,
		"traits", res.TraitsUpdated,
		"purged", len(purge),
	)
	return res, nil
}

// embedFacts turns extracted facts into new memories. A fact whose
// embedding fails or comes back empty is kept as a message only.
func (c *Consolidator) embedFacts(ctx context.Context, log *slog.Logger, ext Extraction) []store.NewMemory {
	now := c.now()
	out := make([]store.NewMemory, 0, len(ext.Semantic)+len(ext.Episodic))
	add := func(items []string, role store.Role, mt store.MemoryType) {
		for _, content := range items {
			vec, err := c.embedder.Embed(ctx, content)
			if err != nil {
				log.Warn("sleep: embed fact", "err", err, "memory_type", string(mt))
				vec = nil
			}
			out = append(out, store.NewMemory{
				Role:       role,
				Content:    content,
				Embedding:  vec,
				MemoryType: mt,
				MemoryTime: now,
			})
		}
	}
	add(ext.Semantic, store.RoleSemanticMemory, store.Semantic)
	add(ext.Episodic, store.RoleEpisodicMemory, store.Episodic)
	return out
}

// syncIndex mirrors a committed consolidation into the index. The store is
// already consistent at this point, so failures are only logged.
func (c *Consolidator) syncIndex(ctx context.Context, log *slog.Logger, purged []int64, mems []store.NewMemory, ids []int64) {
	if err := c.index.Remove(ctx, purged...); err != nil {
		log.Warn("sleep: index remove", "err", err)
	}
	for i, m := range mems {
		if len(m.Embedding) == 0 || i >= len(ids) {
			continue
		}
		err := c.index.Upsert(ctx, store.Memory{
			MessageID:  ids[i],
			Role:       m.Role,
			Content:    m.Content,
			MemoryType: m.MemoryType,
			MemoryTime: m.MemoryTime.UTC().Truncate(time.Second),
			CreatedAt:  m.MemoryTime.UTC(),
			Embedding:  m.Embedding,
		})
		if err != nil {
			log.Warn("sleep: index upsert", "err", err, "message_id", ids[i])
		}
	}
}

// UserInput renders memories as the "CONVERSATION HISTORY" block the
// extraction prompt reads.
func UserInput(raw []store.Memory) string {
	var b strings.Builder
	b.WriteString("CONVERSATION HISTORY:")
	for _, m := range raw {
		fmt.Fprintf(&b, "\n[%s] %s: %s",
			m.MemoryTime.UTC().Format("2006-01-02 15:04:05"),
			strings.ToUpper(string(m.Role)),
			m.Content,
		)
	}
	return b.String()
}
