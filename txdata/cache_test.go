package txdata

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

type countingChunks struct {
	calls int32
	bytes map[string][]byte
}

func (c *countingChunks) GetChunk(ctx context.Context, req ChunkRequest) ([]byte, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.bytes[string(req.DataRoot)], nil
}

func TestCacheHitAvoidsUnderlyingFetch(t *testing.T) {
	var underlying = &countingChunks{bytes: map[string][]byte{"root": []byte("chunk-bytes")}}
	var cache = NewCache(underlying, 16)

	var req = ChunkRequest{DataRoot: []byte("root"), RelativeOffset: 0, AbsoluteOffset: 500}
	var first, err1 = cache.GetChunk(context.Background(), req)
	require.NoError(t, err1)
	require.Equal(t, []byte("chunk-bytes"), first)
	require.EqualValues(t, 1, atomic.LoadInt32(&underlying.calls))

	// Same (dataRoot, relativeOffset) but a different absoluteOffset --
	// per spec.md §4.5 the cache must not key on absoluteOffset, so this
	// is still a hit.
	var req2 = ChunkRequest{DataRoot: []byte("root"), RelativeOffset: 0, AbsoluteOffset: 9999}
	var second, err2 = cache.GetChunk(context.Background(), req2)
	require.NoError(t, err2)
	require.Equal(t, first, second)
	require.EqualValues(t, 1, atomic.LoadInt32(&underlying.calls))
}

func TestCacheMissFetchesAndWritesBack(t *testing.T) {
	var underlying = &countingChunks{bytes: map[string][]byte{"a": []byte("AAA"), "b": []byte("BBB")}}
	var cache = NewCache(underlying, 16)

	var a, err = cache.GetChunk(context.Background(), ChunkRequest{DataRoot: []byte("a"), RelativeOffset: 0})
	require.NoError(t, err)
	require.Equal(t, []byte("AAA"), a)

	var b, err2 = cache.GetChunk(context.Background(), ChunkRequest{DataRoot: []byte("b"), RelativeOffset: 0})
	require.NoError(t, err2)
	require.Equal(t, []byte("BBB"), b)
	require.EqualValues(t, 2, atomic.LoadInt32(&underlying.calls))
}

func TestCacheDistinguishesByRelativeOffset(t *testing.T) {
	var underlying = &offsetEchoChunks{}
	var cache = NewCache(underlying, 16)

	var v1, _ = cache.GetChunk(context.Background(), ChunkRequest{DataRoot: []byte("root"), RelativeOffset: 0})
	var v2, _ = cache.GetChunk(context.Background(), ChunkRequest{DataRoot: []byte("root"), RelativeOffset: 17})
	require.NotEqual(t, v1, v2)
	require.EqualValues(t, 2, atomic.LoadInt32(&underlying.calls))
}

type offsetEchoChunks struct{ calls int32 }

func (o *offsetEchoChunks) GetChunk(ctx context.Context, req ChunkRequest) ([]byte, error) {
	atomic.AddInt32(&o.calls, 1)
	return []byte{byte(req.RelativeOffset)}, nil
}

func TestCacheConcurrentMissesJoinSingleFetch(t *testing.T) {
	var underlying = &countingChunks{bytes: map[string][]byte{"root": []byte("shared")}}
	var cache = NewCache(underlying, 16)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var v, err = cache.GetChunk(context.Background(), ChunkRequest{DataRoot: []byte("root"), RelativeOffset: 0})
			require.NoError(t, err)
			require.Equal(t, []byte("shared"), v)
		}()
	}
	wg.Wait()
	require.EqualValues(t, 1, atomic.LoadInt32(&underlying.calls))
}
