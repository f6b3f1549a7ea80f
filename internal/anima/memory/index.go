// Package memory decides what Anima remembers about a message and which past
// memories are relevant to it.
//
// Every incoming user message is stored, embedded and kept as an episodic
// memory; the closest earlier memories are then looked up through an Index
// and rendered as short context lines for the prompt.
package memory

import (
	"context"

	"github.com/bdobrica/Anima/internal/anima/store"
)

// Index answers similarity queries over stored memories. The SQLite store is
// the source of truth; an Index may keep its own copy, which Upsert, Remove
// and Clear keep in step.
type Index interface {
	Query(ctx context.Context, query []float32, k int, exclude int64) ([]store.Match, error)
	Upsert(ctx context.Context, mem store.Memory) error
	Remove(ctx context.Context, messageIDs ...int64) error
	Clear(ctx context.Context) error
}

// StoreIndex queries the SQLite store directly with a full scan.
type StoreIndex struct {
	Store *store.Store
}

var _ Index = StoreIndex{}

func (i StoreIndex) Query(ctx context.Context, query []float32, k int, exclude int64) ([]store.Match, error) {
	return i.Store.FindTopKSimilar(ctx, query, k, exclude)
}

// Upsert is a no-op: the memory is already in the store.
func (StoreIndex) Upsert(context.Context, store.Memory) error { return nil }

func (StoreIndex) Remove(context.Context, ...int64) error { return nil }

func (StoreIndex) Clear(context.Context) error { return nil }
