package modindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestIndex(t *testing.T) *Index {
	t.Helper()
	var idx, err = Open(filepath.Join(t.TempDir(), "moderation.db"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })
	return idx
}

// TestBlockDataAndIsIdBlocked covers the id-blocklist half of spec.md §4.6.
func TestBlockDataAndIsIdBlocked(t *testing.T) {
	var idx = openTestIndex(t)
	var ctx = context.Background()

	var blocked, err = idx.IsIdBlocked(ctx, []byte("tx-1"))
	require.NoError(t, err)
	require.False(t, blocked)

	require.NoError(t, idx.BlockData(ctx, BlockRequest{ID: []byte("tx-1"), Source: "dmca", Notes: "copyright claim"}))

	blocked, err = idx.IsIdBlocked(ctx, []byte("tx-1"))
	require.NoError(t, err)
	require.True(t, blocked)

	blocked, err = idx.IsIdBlocked(ctx, []byte("tx-2"))
	require.NoError(t, err)
	require.False(t, blocked)
}

// TestBlockDataAndIsHashBlocked covers the hash-blocklist half.
func TestBlockDataAndIsHashBlocked(t *testing.T) {
	var idx = openTestIndex(t)
	var ctx = context.Background()

	require.NoError(t, idx.BlockData(ctx, BlockRequest{Hash: []byte("hash-1")}))

	var blocked, err = idx.IsHashBlocked(ctx, []byte("hash-1"))
	require.NoError(t, err)
	require.True(t, blocked)
}

// TestIsBlockedWithEmptyInputReturnsFalse covers spec.md §4.6's explicit
// edge case: empty or nil input is never blocked.
func TestIsBlockedWithEmptyInputReturnsFalse(t *testing.T) {
	var idx = openTestIndex(t)
	var ctx = context.Background()

	var blocked, err = idx.IsIdBlocked(ctx, nil)
	require.NoError(t, err)
	require.False(t, blocked)

	blocked, err = idx.IsHashBlocked(ctx, []byte{})
	require.NoError(t, err)
	require.False(t, blocked)
}

// TestBlockDataReusesSource covers source-id resolution: two blocked
// entries from the same named source must resolve to one block_sources row.
func TestBlockDataReusesSource(t *testing.T) {
	var idx = openTestIndex(t)
	var ctx = context.Background()

	require.NoError(t, idx.BlockData(ctx, BlockRequest{ID: []byte("tx-a"), Source: "reports"}))
	require.NoError(t, idx.BlockData(ctx, BlockRequest{ID: []byte("tx-b"), Source: "reports"}))

	var count int
	require.NoError(t, idx.store.DB.QueryRow(`SELECT COUNT(*) FROM block_sources WHERE name = ?`, "reports").Scan(&count))
	require.Equal(t, 1, count)

	var sourceA, sourceB int64
	require.NoError(t, idx.store.DB.QueryRow(`SELECT source_id FROM blocked_ids WHERE id = ?`, []byte("tx-a")).Scan(&sourceA))
	require.NoError(t, idx.store.DB.QueryRow(`SELECT source_id FROM blocked_ids WHERE id = ?`, []byte("tx-b")).Scan(&sourceB))
	require.Equal(t, sourceA, sourceB)
}

// TestBlockDataIsIdempotent covers re-blocking the same id: it must not
// error or duplicate the row.
func TestBlockDataIsIdempotent(t *testing.T) {
	var idx = openTestIndex(t)
	var ctx = context.Background()

	require.NoError(t, idx.BlockData(ctx, BlockRequest{ID: []byte("tx-1")}))
	require.NoError(t, idx.BlockData(ctx, BlockRequest{ID: []byte("tx-1")}))

	var count int
	require.NoError(t, idx.store.DB.QueryRow(`SELECT COUNT(*) FROM blocked_ids WHERE id = ?`, []byte("tx-1")).Scan(&count))
	require.Equal(t, 1, count)
}
