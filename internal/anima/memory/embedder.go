package memory

import (
	"context"
	"io"
	"slices"

	"github.com/dgraph-io/ristretto"

	"github.com/bdobrica/Anima/internal/anima/runtime"
)

// NoopEmbedder returns no vector, which turns retrieval off.
type NoopEmbedder struct{}

func (NoopEmbedder) Embed(context.Context, string) ([]float32, error) { return nil, nil }

// CachedEmbedder memoises another embedder by exact text. Empty results and
// errors are not cached.
type CachedEmbedder struct {
	next  runtime.Embedder
	cache *ristretto.Cache
}

var (
	_ runtime.Embedder = NoopEmbedder{}
	_ runtime.Embedder = (*CachedEmbedder)(nil)
)

// NewCachedEmbedder caches up to maxBytes of vectors in front of next.
func NewCachedEmbedder(next runtime.Embedder, maxBytes int64) (*CachedEmbedder, error) {
	if maxBytes <= 0 {
		maxBytes = 16 << 20
	}
	// One 384-dim vector is ~1.5KB; NumCounters follows ristretto's advice
	// of ten times the expected item count.
	items := max(maxBytes/1536, 100)
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: items * 10,
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{next: next, cache: cache}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return slices.Clone(vec), nil
		}
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil || len(vec) == 0 {
		return vec, err
	}
	c.cache.Set(text, slices.Clone(vec), int64(4*len(vec)))
	return vec, nil
}

// Wait blocks until pending cache writes are visible.
func (c *CachedEmbedder) Wait() { c.cache.Wait() }

// Close releases the cache and closes the wrapped embedder if it holds
// resources.
func (c *CachedEmbedder) Close() error {
	c.cache.Close()
	if closer, ok := c.next.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
