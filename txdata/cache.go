package txdata

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheSize is the chunk cache's entry capacity. Chunks are
// typically on the order of 256KiB in the upstream network this core
// indexes for; a few hundred entries bounds cache memory while still
// covering a hot transaction's full read.
const DefaultCacheSize = 512

// cacheKey is the read-through cache's key, per spec.md §4.5: "Caching is
// by (dataRoot, relativeOffset); the cache MUST NOT key on absoluteOffset
// because absoluteOffset is tx-instance-specific while (dataRoot,
// relativeOffset) is content-addressed." golang-lru requires a comparable
// key, so dataRoot (a []byte) is converted to a string.
type cacheKey struct {
	dataRoot       string
	relativeOffset int64
}

// Cache is the read-through chunk cache of spec.md §4.5: get(dataRoot,
// relativeOffset) returns the cached bytes on a hit; on a miss it fetches
// via the underlying ChunkSource and writes back before returning.
// Grounded on the same hashicorp/golang-lru idiom as
// bundleindex.Index's filter/format dimension caches and the teacher's
// broker/client.RouteCache.
type Cache struct {
	underlying ChunkSource
	entries    *lru.Cache

	mu       sync.Mutex
	inflight map[cacheKey]*inflightFetch
}

type inflightFetch struct {
	done chan struct{}
	val  []byte
	err  error
}

// NewCache wraps underlying with a read-through cache of the given entry
// capacity.
func NewCache(underlying ChunkSource, size int) *Cache {
	if size <= 0 {
		size = DefaultCacheSize
	}
	var entries, _ = lru.New(size)
	return &Cache{underlying: underlying, entries: entries, inflight: make(map[cacheKey]*inflightFetch)}
}

// GetChunk implements ChunkSource: a cache hit on (req.DataRoot,
// req.RelativeOffset) returns immediately; a miss fetches once from the
// underlying source (concurrent misses for the same key join the single
// in-flight fetch rather than duplicating it) and writes back before
// returning, per spec.md §8's "Chunk cache idempotence" property.
func (c *Cache) GetChunk(ctx context.Context, req ChunkRequest) ([]byte, error) {
	var key = cacheKey{dataRoot: string(req.DataRoot), relativeOffset: req.RelativeOffset}

	if v, ok := c.entries.Get(key); ok {
		return v.([]byte), nil
	}

	c.mu.Lock()
	if f, ok := c.inflight[key]; ok {
		c.mu.Unlock()
		select {
		case <-f.done:
			return f.val, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var f = &inflightFetch{done: make(chan struct{})}
	c.inflight[key] = f
	c.mu.Unlock()

	f.val, f.err = c.underlying.GetChunk(ctx, req)
	if f.err == nil {
		c.entries.Add(key, f.val)
	}
	close(f.done)

	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()

	return f.val, f.err
}
