package embedding

import (
	"container/list"
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/utsushi/internal/metrics"
)

// queryCache is a fixed-capacity LRU of query embeddings.
type queryCache struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List
}

type queryEntry struct {
	key string
	vec []float32
}

func newQueryCache(capacity int) *queryCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &queryCache{capacity: capacity, items: make(map[string]*list.Element), order: list.New()}
}

func (c *queryCache) get(key string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*queryEntry).vec, true
}

func (c *queryCache) put(key string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*queryEntry).vec = vec
		c.order.MoveToFront(el)
		return
	}
	c.items[key] = c.order.PushFront(&queryEntry{key: key, vec: vec})
	for c.order.Len() > c.capacity {
		last := c.order.Back()
		c.order.Remove(last)
		delete(c.items, last.Value.(*queryEntry).key)
	}
}

func (c *queryCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// CachedEmbedder wraps an Embedder and caches text embeddings. Image and frame
// embeddings pass through; they are computed once per file at index time.
// Concurrent misses for the same query share one call to the wrapped embedder; a caller that
// gives up does not cancel it for the others.
type CachedEmbedder struct {
	Embedder
	cache  *queryCache
	flight singleflight.Group
}

// NewCachedEmbedder wraps e with an LRU of the given capacity.
func NewCachedEmbedder(e Embedder, capacity int) *CachedEmbedder {
	return &CachedEmbedder{Embedder: e, cache: newQueryCache(capacity)}
}

// queryKey folds case and whitespace. The CLIP tokenizer lowercases and splits on
// whitespace, so queries with the same key embed identically.
func queryKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// EmbedText returns the cached embedding for text or computes and caches it.
// The returned slice is a copy the caller may modify.
func (c *CachedEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	key := queryKey(text)
	if vec, ok := c.cache.get(key); ok {
		metrics.QueryEmbeddingCache.WithLabelValues("hit").Inc()
		return cloneVector(vec), nil
	}
	metrics.QueryEmbeddingCache.WithLabelValues("miss").Inc()
	// The shared call outlives any one caller, so it must not inherit a caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(key, func() (interface{}, error) {
		if vec, ok := c.cache.get(key); ok {
			return vec, nil
		}
		vec, err := c.Embedder.EmbedText(flightCtx, text)
		if err != nil {
			return nil, err
		}
		c.cache.put(key, vec)
		return vec, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneVector(res.Val.([]float32)), nil
	}
}

// Len returns the number of cached queries.
func (c *CachedEmbedder) Len() int {
	return c.cache.len()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
