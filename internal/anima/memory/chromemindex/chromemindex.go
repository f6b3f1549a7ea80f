// Package chromemindex keeps an in-process chromem-go copy of Anima's
// memories for faster similarity queries than a full SQLite scan.
//
// chromem compares vectors of one length only, so memories are kept in one
// collection per embedding dimension and a query only sees memories of its
// own dimension.
package chromemindex

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/bdobrica/Anima/internal/anima/memory"
	"github.com/bdobrica/Anima/internal/anima/store"
)

// Index is a memory.Index backed by chromem-go.
type Index struct {
	db            *chromem.DB
	minSimilarity float32
	logger        *slog.Logger

	mu          sync.Mutex
	collections map[int]*chromem.Collection
}

var _ memory.Index = (*Index)(nil)

// New returns an empty index applying minSimilarity to query results.
func New(minSimilarity float32, logger *slog.Logger) *Index {
	if logger == nil {
		logger = slog.Default()
	}
	return &Index{
		db:            chromem.NewDB(),
		minSimilarity: minSimilarity,
		logger:        logger,
		collections:   make(map[int]*chromem.Collection),
	}
}

// Load builds an index from every memory in s.
func Load(ctx context.Context, s *store.Store, logger *slog.Logger) (*Index, error) {
	idx := New(s.MinSimilarity(), logger)
	mems, err := s.AllMemories(ctx)
	if err != nil {
		return nil, fmt.Errorf("chromemindex: load: %w", err)
	}
	for _, m := range mems {
		if err := idx.Upsert(ctx, m); err != nil {
			return nil, err
		}
	}
	idx.logger.Info("chromemindex: loaded memories", "count", len(mems))
	return idx, nil
}

func (i *Index) collection(dim int) (*chromem.Collection, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if c, ok := i.collections[dim]; ok {
		return c, nil
	}
	c, err := i.db.CreateCollection("memories-"+strconv.Itoa(dim), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromemindex: create collection: %w", err)
	}
	i.collections[dim] = c
	return c, nil
}

func docID(id int64) string { return strconv.FormatInt(id, 10) }

// Upsert adds or replaces the memory of one message.
func (i *Index) Upsert(ctx context.Context, mem store.Memory) error {
	if len(mem.Embedding) == 0 {
		return nil
	}
	if err := i.Remove(ctx, mem.MessageID); err != nil {
		return err
	}
	col, err := i.collection(len(mem.Embedding))
	if err != nil {
		return err
	}
	doc := chromem.Document{
		ID:        docID(mem.MessageID),
		Content:   mem.Content,
		Embedding: slices.Clone(mem.Embedding),
		Metadata: map[string]string{
			"role":        string(mem.Role),
			"memory_type": string(mem.MemoryType),
			"memory_time": strconv.FormatInt(mem.MemoryTime.Unix(), 10),
			"created_at":  mem.CreatedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("chromemindex: add %d: %w", mem.MessageID, err)
	}
	return nil
}

// Query returns at most k memories of the query's dimension, most similar
// first, skipping exclude and anything under the minimum similarity.
func (i *Index) Query(ctx context.Context, query []float32, k int, exclude int64) ([]store.Match, error) {
	if len(query) == 0 || k <= 0 {
		return nil, nil
	}
	col, err := i.collection(len(query))
	if err != nil {
		return nil, err
	}
	// One extra result leaves room for the excluded message.
	n := min(k+1, col.Count())
	if n == 0 {
		return nil, nil
	}
	results, err := col.QueryEmbedding(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromemindex: query: %w", err)
	}

	out := make([]store.Match, 0, k)
	for _, r := range results {
		id, err := strconv.ParseInt(r.ID, 10, 64)
		if err != nil || id == exclude {
			continue
		}
		sim := r.Similarity
		if math.IsNaN(float64(sim)) || math.IsInf(float64(sim), 0) || sim < i.minSimilarity {
			continue
		}
		out = append(out, store.Match{Memory: fromResult(id, r), Similarity: sim})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

func fromResult(id int64, r chromem.Result) store.Memory {
	unix, _ := strconv.ParseInt(r.Metadata["memory_time"], 10, 64)
	created, _ := time.Parse(time.RFC3339Nano, r.Metadata["created_at"])
	return store.Memory{
		MessageID:  id,
		Role:       store.Role(r.Metadata["role"]),
		Content:    r.Content,
		MemoryType: store.NormalizeMemoryType(r.Metadata["memory_type"]),
		MemoryTime: time.Unix(unix, 0).UTC(),
		CreatedAt:  created,
		Embedding:  r.Embedding,
	}
}

// Remove deletes the given messages' memories from every collection.
func (i *Index) Remove(ctx context.Context, messageIDs ...int64) error {
	if len(messageIDs) == 0 {
		return nil
	}
	ids := make([]string, len(messageIDs))
	for j, id := range messageIDs {
		ids[j] = docID(id)
	}
	i.mu.Lock()
	cols := make([]*chromem.Collection, 0, len(i.collections))
	for _, c := range i.collections {
		cols = append(cols, c)
	}
	i.mu.Unlock()

	for _, c := range cols {
		if err := c.Delete(ctx, nil, nil, ids...); err != nil {
			return fmt.Errorf("chromemindex: delete: %w", err)
		}
	}
	return nil
}

// Clear drops every collection.
func (i *Index) Clear(context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	for dim := range i.collections {
		if err := i.db.DeleteCollection("memories-" + strconv.Itoa(dim)); err != nil {
			return fmt.Errorf("chromemindex: clear: %w", err)
		}
	}
	clear(i.collections)
	return nil
}

// Count returns how many memories the index holds.
func (i *Index) Count() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	n := 0
	for _, c := range i.collections {
		n += c.Count()
	}
	return n
}
