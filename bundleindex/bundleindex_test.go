package bundleindex

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.chainindex.dev/core/chainstore"
	"go.chainindex.dev/core/coreindex"
	"go.chainindex.dev/core/model"
	"go.chainindex.dev/core/schema"
)

// openTestStores mirrors coreindex's own test helper and gateway.Open's
// bootstrap-then-cross-attach sequence: each store's own schema must exist
// before the other attaches and prepares a statement reaching across.
func openTestStores(t *testing.T, maxForkDepth int64) (*coreindex.Index, *Index, func()) {
	t.Helper()
	var ctx = context.Background()
	var dir = t.TempDir()
	var corePath = filepath.Join(dir, "core.db")
	var bundlesPath = filepath.Join(dir, "bundles.db")

	for _, b := range []struct{ name, path, ddl string }{
		{"bundles-bootstrap", bundlesPath, schema.BundlesBootstrap},
		{"core-bootstrap", corePath, schema.CoreBootstrap},
	} {
		var s, err = chainstore.Open(b.name, b.path, b.ddl, nil)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}

	var coreIdx, err = coreindex.Open(ctx, corePath, bundlesPath, maxForkDepth)
	require.NoError(t, err)
	var bundlesIdx *Index
	bundlesIdx, err = Open(ctx, bundlesPath, corePath)
	require.NoError(t, err)

	return coreIdx, bundlesIdx, func() {
		coreIdx.Close()
		bundlesIdx.Close()
	}
}

func testBlock(height int64) model.Block {
	return model.Block{
		Height:    height,
		IndepHash: []byte(fmt.Sprintf("block-hash-%d", height)),
		Timestamp: 1_700_000_000 + height,
		TxCount:   1,
	}
}

func testTx(height int64) model.Transaction {
	return model.Transaction{
		ID:           []byte(fmt.Sprintf("tx-%d", height)),
		OwnerAddress: []byte(fmt.Sprintf("owner-%d", height)),
	}
}

// TestSaveDataItemResolvesHeightViaCoreAndPromotesToStable exercises the
// cross-store height resolution (selectTransactionHeightViaCore) and the
// PromoteAndClean half of coreindex.BundleCoordinator end to end: a data
// item saved with no height of its own picks up its root transaction's
// height from the core store, then is promoted into stable_data_items once
// coreindex's own stable-flush boundary passes.
func TestSaveDataItemResolvesHeightViaCoreAndPromotesToStable(t *testing.T) {
	var coreIdx, bundlesIdx, cleanup = openTestStores(t, 0)
	defer cleanup()
	var ctx = context.Background()

	var rootTx = testTx(0)
	require.NoError(t, coreIdx.SaveBlockAndTxs(ctx, testBlock(0), []model.Transaction{rootTx}, nil, bundlesIdx))

	var item = model.DataItem{
		ID:           []byte("item-1"),
		ParentID:     []byte("bundle-1"),
		RootTxID:     rootTx.ID,
		OwnerAddress: []byte("item-owner"),
		Filter:       "all",
	}
	require.NoError(t, bundlesIdx.SaveDataItem(ctx, item))

	var height sql.NullInt64
	require.NoError(t, bundlesIdx.store.DB.QueryRow(
		`SELECT height FROM new_data_items WHERE id = ?`, item.ID).Scan(&height))
	require.True(t, height.Valid)
	require.Equal(t, int64(0), height.Int64)

	// Saving again must not fail or duplicate the row (upsert idempotence).
	require.NoError(t, bundlesIdx.SaveDataItem(ctx, item))
	var count int
	require.NoError(t, bundlesIdx.store.DB.QueryRow(
		`SELECT COUNT(*) FROM new_data_items WHERE id = ?`, item.ID).Scan(&count))
	require.Equal(t, 1, count)

	for h := int64(1); h <= 5; h++ {
		require.NoError(t, coreIdx.SaveBlockAndTxs(ctx, testBlock(h), []model.Transaction{testTx(h)}, nil, bundlesIdx))
	}

	require.NoError(t, bundlesIdx.store.DB.QueryRow(
		`SELECT height FROM stable_data_items WHERE id = ?`, item.ID).Scan(&height))
	require.True(t, height.Valid)
	require.Equal(t, int64(0), height.Int64)
}

// TestResetToHeightClearsNewDataItemHeightsAboveHeight covers the bundles
// half of the §4.2 rollback path.
func TestResetToHeightClearsNewDataItemHeightsAboveHeight(t *testing.T) {
	var _, bundlesIdx, cleanup = openTestStores(t, 0)
	defer cleanup()
	var ctx = context.Background()

	var low, high = int64(3), int64(7)
	require.NoError(t, bundlesIdx.SaveDataItem(ctx, model.DataItem{
		ID: []byte("item-low"), ParentID: []byte("bundle"), RootTxID: []byte("root"),
		OwnerAddress: []byte("owner"), Height: &low,
	}))
	require.NoError(t, bundlesIdx.SaveDataItem(ctx, model.DataItem{
		ID: []byte("item-high"), ParentID: []byte("bundle"), RootTxID: []byte("root"),
		OwnerAddress: []byte("owner"), Height: &high,
	}))

	require.NoError(t, bundlesIdx.ResetToHeight(ctx, 5))

	var h sql.NullInt64
	require.NoError(t, bundlesIdx.store.DB.QueryRow(
		`SELECT height FROM new_data_items WHERE id = ?`, []byte("item-low")).Scan(&h))
	require.True(t, h.Valid)
	require.Equal(t, int64(3), h.Int64)

	require.NoError(t, bundlesIdx.store.DB.QueryRow(
		`SELECT height FROM new_data_items WHERE id = ?`, []byte("item-high")).Scan(&h))
	require.False(t, h.Valid, "data item above the reset height must have its height cleared")
}

// TestGetFailedBundleIdsAndBackfill covers the failed-bundle reconsideration
// path: a bundle skipped more than BUNDLE_REPROCESS_WAIT ago and never
// unbundled or fully indexed is "failed"; backfilling clears skipped_at so
// it no longer is.
func TestGetFailedBundleIdsAndBackfill(t *testing.T) {
	var _, bundlesIdx, cleanup = openTestStores(t, 0)
	defer cleanup()
	var ctx = context.Background()

	var oldSkip = bundlesIdx.now() - 5*60*60 // older than the 4h reprocess wait
	require.NoError(t, bundlesIdx.SaveBundle(ctx, model.BundleRecord{
		ID: []byte("bundle-failed"), RootTxID: []byte("root-failed"), SkippedAt: &oldSkip,
	}))
	var recentSkip = bundlesIdx.now()
	require.NoError(t, bundlesIdx.SaveBundle(ctx, model.BundleRecord{
		ID: []byte("bundle-recent"), RootTxID: []byte("root-recent"), SkippedAt: &recentSkip,
	}))

	var ids, err = bundlesIdx.GetFailedBundleIds(ctx)
	require.NoError(t, err)
	require.Contains(t, ids, []byte("bundle-failed"))
	require.NotContains(t, ids, []byte("bundle-recent"))

	require.NoError(t, bundlesIdx.BackfillBundles(ctx, [][]byte{[]byte("bundle-failed")}))
	ids, err = bundlesIdx.GetFailedBundleIds(ctx)
	require.NoError(t, err)
	require.NotContains(t, ids, []byte("bundle-failed"))
}

// TestSaveBundleReusesDimensionIds covers the filterID/formatID hot-cache
// resolution: two bundle records sharing a format/filter text must resolve
// to the same dimension row rather than inserting duplicates.
func TestSaveBundleReusesDimensionIds(t *testing.T) {
	var _, bundlesIdx, cleanup = openTestStores(t, 0)
	defer cleanup()
	var ctx = context.Background()

	require.NoError(t, bundlesIdx.SaveBundle(ctx, model.BundleRecord{
		ID: []byte("bundle-a"), RootTxID: []byte("root-a"), Format: "ans-104", IndexFilter: "all",
	}))
	require.NoError(t, bundlesIdx.SaveBundle(ctx, model.BundleRecord{
		ID: []byte("bundle-b"), RootTxID: []byte("root-b"), Format: "ans-104", IndexFilter: "all",
	}))

	var formatCount int
	require.NoError(t, bundlesIdx.store.DB.QueryRow(`SELECT COUNT(*) FROM bundle_formats WHERE format = ?`, "ans-104").Scan(&formatCount))
	require.Equal(t, 1, formatCount)

	var filterCount int
	require.NoError(t, bundlesIdx.store.DB.QueryRow(`SELECT COUNT(*) FROM filters WHERE filter = ?`, "all").Scan(&filterCount))
	require.Equal(t, 1, filterCount)

	var formatIDA, formatIDB int64
	require.NoError(t, bundlesIdx.store.DB.QueryRow(
		`SELECT format_id FROM bundle_records WHERE id = ?`, []byte("bundle-a")).Scan(&formatIDA))
	require.NoError(t, bundlesIdx.store.DB.QueryRow(
		`SELECT format_id FROM bundle_records WHERE id = ?`, []byte("bundle-b")).Scan(&formatIDB))
	require.Equal(t, formatIDA, formatIDB)
}
