package dataindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.chainindex.dev/core/model"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	var idx, err = Open(filepath.Join(t.TempDir(), "data.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

// TestGetDataAttributesByIdAndByRoot covers both resolution paths of
// spec.md §4.5: an id directly indexed against a content hash, and a data
// root indexed against the same hash when no id-level row exists.
func TestGetDataAttributesByIdAndByRoot(t *testing.T) {
	var idx = openTestIndex(t)
	var ctx = context.Background()

	var cachedAt = int64(1_700_000_500)
	require.NoError(t, idx.SaveDataContentAttributes(ctx, model.DataContentAttributes{
		ID:                        []byte("id-1"),
		Hash:                      []byte("hash-1"),
		DataSize:                  1024,
		OriginalSourceContentType: "image/png",
		CachedAt:                  &cachedAt,
		IndexedAt:                 1_700_000_000,
	}))

	var attrs, ok, err = idx.GetDataAttributes(ctx, []byte("id-1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hash-1"), attrs.Hash)
	require.Equal(t, int64(1024), attrs.DataSize)
	require.Equal(t, "image/png", attrs.OriginalSourceContentType)
	require.NotNil(t, attrs.CachedAt)
	require.Equal(t, cachedAt, *attrs.CachedAt)

	require.NoError(t, idx.SaveDataContentAttributes(ctx, model.DataContentAttributes{
		DataRoot:   []byte("root-2"),
		Hash:       []byte("hash-2"),
		DataSize:   2048,
		IndexedAt:  1_700_000_100,
	}))
	attrs, ok, err = idx.GetDataAttributes(ctx, []byte("root-2"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hash-2"), attrs.Hash)

	_, ok, err = idx.GetDataAttributes(ctx, []byte("unknown"))
	require.NoError(t, err)
	require.False(t, ok, "an unindexed id is a normal not-found result, not an error")
}

// TestGetDataParentByIdAndByHash covers the nested-range resolution of
// spec.md §4.5's NestedDataIndexWriter/ContiguousDataIndex pairing.
func TestGetDataParentByIdAndByHash(t *testing.T) {
	var idx = openTestIndex(t)
	var ctx = context.Background()

	require.NoError(t, idx.SaveNestedDataId(ctx, []byte("child-id"), []byte("parent-1"), 100, 50))
	var parent, ok, err = idx.GetDataParent(ctx, []byte("child-id"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.DataParent{ParentID: []byte("parent-1"), DataOffset: 100, DataSize: 50}, parent)

	require.NoError(t, idx.SaveDataContentAttributes(ctx, model.DataContentAttributes{
		Hash: []byte("child-hash"), DataSize: 75, IndexedAt: 1_700_000_000,
	}))
	require.NoError(t, idx.SaveNestedDataHash(ctx, []byte("child-hash"), []byte("parent-2"), 200))
	parent, ok, err = idx.GetDataParent(ctx, []byte("child-hash"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, model.DataParent{ParentID: []byte("parent-2"), DataOffset: 200, DataSize: 75}, parent)

	_, ok, err = idx.GetDataParent(ctx, []byte("no-such-child"))
	require.NoError(t, err)
	require.False(t, ok)
}

// TestSaveDataContentAttributesIsIdempotent exercises the upsert path's
// cached_at COALESCE: a later save with CachedAt unset must not clear an
// already-recorded cache timestamp.
func TestSaveDataContentAttributesIsIdempotent(t *testing.T) {
	var idx = openTestIndex(t)
	var ctx = context.Background()

	var cachedAt = int64(1_700_000_900)
	require.NoError(t, idx.SaveDataContentAttributes(ctx, model.DataContentAttributes{
		Hash: []byte("hash-3"), DataSize: 10, CachedAt: &cachedAt, IndexedAt: 1_700_000_000,
	}))
	require.NoError(t, idx.SaveDataContentAttributes(ctx, model.DataContentAttributes{
		Hash: []byte("hash-3"), DataSize: 10, IndexedAt: 1_700_000_000,
	}))

	var attrs, ok, err = idx.scanAttributes(ctx, "selectDataAttributesByHash", []byte("hash-3"))
	require.NoError(t, err)
	require.True(t, ok)
	require.NotNil(t, attrs.CachedAt)
	require.Equal(t, cachedAt, *attrs.CachedAt)
}
