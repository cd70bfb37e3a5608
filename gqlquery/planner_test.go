package gqlquery

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"go.chainindex.dev/core/chainstore"
	"go.chainindex.dev/core/hashutil"
	"go.chainindex.dev/core/model"
	"go.chainindex.dev/core/schema"
)

// openTestPlanner bootstraps a core store (full CoreStatements, which
// already includes selectMaxStableBlockHeight) with the bundles store
// ATTACHed, the same shape coreindex.Open wires for the real process.
func openTestPlanner(t *testing.T) (*Planner, *chainstore.Store) {
	t.Helper()
	var ctx = context.Background()
	var dir = t.TempDir()
	var corePath = filepath.Join(dir, "core.db")
	var bundlesPath = filepath.Join(dir, "bundles.db")

	var bundlesStore, err = chainstore.Open("bundles", bundlesPath, schema.BundlesBootstrap, nil)
	require.NoError(t, err)
	require.NoError(t, bundlesStore.Close())

	var coreStore *chainstore.Store
	coreStore, err = chainstore.Open("core", corePath, schema.CoreBootstrap, schema.CoreStatements)
	require.NoError(t, err)
	require.NoError(t, coreStore.Attach(ctx, "bundles", bundlesPath))

	t.Cleanup(func() { coreStore.Close() })
	return New(coreStore), coreStore
}

// seedStableTransaction inserts a fully-linked stable transaction: the
// block, the block/tx link, and the transaction row, satisfying the
// planner's INNER JOIN path for stable sources.
func seedStableTransaction(t *testing.T, store *chainstore.Store, height, blockTxIndex int64, id []byte, indexedAt int64) {
	t.Helper()
	var _, err = store.DB.Exec(`INSERT OR IGNORE INTO stable_blocks (height, indep_hash, block_timestamp) VALUES (?, ?, ?)`,
		height, []byte{byte(height)}, 1_700_000_000+height)
	require.NoError(t, err)
	_, err = store.DB.Exec(`INSERT INTO stable_block_transactions (height, transaction_id, block_transaction_index) VALUES (?, ?, ?)`,
		height, id, blockTxIndex)
	require.NoError(t, err)
	_, err = store.DB.Exec(`INSERT INTO stable_transactions (id, owner_address, indexed_at, height) VALUES (?, ?, ?, ?)`,
		id, []byte("owner"), indexedAt, height)
	require.NoError(t, err)
}

// seedStableDataItem inserts a data item bundled under rootTxID: the block
// (shared with the root transaction), and the bundles-store data item row.
func seedStableDataItem(t *testing.T, store *chainstore.Store, height int64, id, parentID, rootTxID []byte, indexedAt int64) {
	t.Helper()
	var _, err = store.DB.Exec(`INSERT OR IGNORE INTO stable_blocks (height, indep_hash, block_timestamp) VALUES (?, ?, ?)`,
		height, []byte{byte(height)}, 1_700_000_000+height)
	require.NoError(t, err)
	_, err = store.DB.Exec(
		`INSERT INTO bundles.stable_data_items (id, parent_id, root_transaction_id, owner_address, height, indexed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, parentID, rootTxID, []byte("owner"), height, indexedAt)
	require.NoError(t, err)
}

func seedStableTag(t *testing.T, store *chainstore.Store, txID []byte, height, blockTxIndex int64, name, value []byte) {
	t.Helper()
	var _, err = store.DB.Exec(
		`INSERT INTO stable_transaction_tags (tag_name_hash, tag_value_hash, transaction_id, tag_index, indexed_at, height, block_transaction_index)
		 VALUES (?, ?, ?, 0, ?, ?, ?)`,
		hashutil.TagHash(name), hashutil.TagHash(value), txID, 1_700_000_000+height, height, blockTxIndex)
	require.NoError(t, err)
	_, err = store.DB.Exec(`INSERT OR IGNORE INTO tag_names (hash, name) VALUES (?, ?)`, hashutil.TagHash(name), name)
	require.NoError(t, err)
	_, err = store.DB.Exec(`INSERT OR IGNORE INTO tag_values (hash, value) VALUES (?, ?)`, hashutil.TagHash(value), value)
	require.NoError(t, err)
}

// TestGetTransactionsPagesDescendingByHeight is scenario S3: three stable
// transactions at ascending heights, paged two at a time in the default
// (height-descending) sort order.
func TestGetTransactionsPagesDescendingByHeight(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	seedStableTransaction(t, store, 10, 0, []byte("tx-10"), 1)
	seedStableTransaction(t, store, 11, 0, []byte("tx-11"), 2)
	seedStableTransaction(t, store, 12, 0, []byte("tx-12"), 3)

	var page1, err = p.GetTransactions(ctx, TransactionsQuery{PageSize: 2})
	require.NoError(t, err)
	require.True(t, page1.HasNextPage)
	require.Len(t, page1.Edges, 2)
	require.Equal(t, []byte("tx-12"), page1.Edges[0].Node.ID)
	require.Equal(t, []byte("tx-11"), page1.Edges[1].Node.ID)

	var page2, err2 = p.GetTransactions(ctx, TransactionsQuery{PageSize: 2, Cursor: page1.Edges[1].Cursor})
	require.NoError(t, err2)
	require.False(t, page2.HasNextPage)
	require.Len(t, page2.Edges, 1)
	require.Equal(t, []byte("tx-10"), page2.Edges[0].Node.ID)
}

// TestGetTransactionsFiltersByTag is scenario S4: a tag filter restricts
// the result to transactions carrying a matching (name, value) pair.
func TestGetTransactionsFiltersByTag(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	seedStableTransaction(t, store, 10, 0, []byte("tx-tagged"), 1)
	seedStableTransaction(t, store, 11, 0, []byte("tx-untagged"), 2)
	seedStableTag(t, store, []byte("tx-tagged"), 10, 0, []byte("App-Name"), []byte("test-app"))

	var page, err = p.GetTransactions(ctx, TransactionsQuery{
		PageSize: 10,
		Tags:     []TagFilter{{Name: []byte("App-Name"), Values: [][]byte{[]byte("test-app")}}},
	})
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)
	require.Equal(t, []byte("tx-tagged"), page.Edges[0].Node.ID)
}

// TestGetTransactionsFiltersByTagNoMatch is S4's negative case: a tag value
// that no row carries returns an empty page, not an error.
func TestGetTransactionsFiltersByTagNoMatch(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	seedStableTransaction(t, store, 10, 0, []byte("tx-tagged"), 1)
	seedStableTag(t, store, []byte("tx-tagged"), 10, 0, []byte("App-Name"), []byte("test-app"))

	var page, err = p.GetTransactions(ctx, TransactionsQuery{
		PageSize: 10,
		Tags:     []TagFilter{{Name: []byte("App-Name"), Values: [][]byte{[]byte("Bar")}}},
	})
	require.NoError(t, err)
	require.Empty(t, page.Edges)
}

// TestGetTransactionsFiltersByTwoTagsReturnsRowOnce is S4's multi-constraint
// case: a transaction matching two separate tag filters must come back
// exactly once, not once per joined tag row.
func TestGetTransactionsFiltersByTwoTagsReturnsRowOnce(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	seedStableTransaction(t, store, 10, 0, []byte("tx-both"), 1)
	seedStableTransaction(t, store, 11, 0, []byte("tx-one"), 2)
	seedStableTag(t, store, []byte("tx-both"), 10, 0, []byte("App-Name"), []byte("test-app"))
	seedStableTag(t, store, []byte("tx-both"), 10, 0, []byte("Content-Type"), []byte("application/json"))
	seedStableTag(t, store, []byte("tx-one"), 11, 0, []byte("App-Name"), []byte("test-app"))

	var page, err = p.GetTransactions(ctx, TransactionsQuery{
		PageSize: 10,
		Tags: []TagFilter{
			{Name: []byte("App-Name"), Values: [][]byte{[]byte("test-app")}},
			{Name: []byte("Content-Type"), Values: [][]byte{[]byte("application/json")}},
		},
	})
	require.NoError(t, err)
	require.Len(t, page.Edges, 1)
	require.Equal(t, []byte("tx-both"), page.Edges[0].Node.ID)
}

// TestGetTransactionsBundledInFilter is scenario S5: bundledIn=[T] returns
// only the data item bundled under T, bundledIn=null returns only bare
// transactions, and an omitted bundledIn returns both.
func TestGetTransactionsBundledInFilter(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	var rootTx = []byte("tx-root")
	var item = []byte("item-1")
	seedStableTransaction(t, store, 10, 0, rootTx, 1)
	seedStableDataItem(t, store, 10, item, rootTx, rootTx, 2)

	var byIDs, err = p.GetTransactions(ctx, TransactionsQuery{
		PageSize:  10,
		BundledIn: &BundledIn{IDs: [][]byte{rootTx}},
	})
	require.NoError(t, err)
	require.Len(t, byIDs.Edges, 1)
	require.Equal(t, item, byIDs.Edges[0].Node.ID)
	require.True(t, byIDs.Edges[0].Node.IsDataItem)

	var byNull, err2 = p.GetTransactions(ctx, TransactionsQuery{
		PageSize:  10,
		BundledIn: &BundledIn{Null: true},
	})
	require.NoError(t, err2)
	require.Len(t, byNull.Edges, 1)
	require.Equal(t, rootTx, byNull.Edges[0].Node.ID)
	require.False(t, byNull.Edges[0].Node.IsDataItem)

	var both, err3 = p.GetTransactions(ctx, TransactionsQuery{PageSize: 10})
	require.NoError(t, err3)
	require.Len(t, both.Edges, 2)
}

// TestGetTransactionPointLookup covers GetTransaction's single-id path,
// including the not-found case.
func TestGetTransactionPointLookup(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	seedStableTransaction(t, store, 10, 0, []byte("tx-10"), 1)

	var node, ok, err = p.GetTransaction(ctx, []byte("tx-10"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("tx-10"), node.ID)
	require.NotNil(t, node.Height)
	require.Equal(t, int64(10), *node.Height)

	_, ok, err = p.GetTransaction(ctx, []byte("no-such-tx"))
	require.NoError(t, err)
	require.False(t, ok)
}

// TestLoadTagsReturnsInTagIndexOrder exercises LoadTags against a stable
// transaction carrying two tags.
func TestLoadTagsReturnsInTagIndexOrder(t *testing.T) {
	var p, store = openTestPlanner(t)
	var ctx = context.Background()

	seedStableTransaction(t, store, 10, 0, []byte("tx-10"), 1)
	var insertTag = func(nameHash, name, valueHash, value []byte, idx int) {
		var _, err = store.DB.Exec(`INSERT OR IGNORE INTO tag_names (hash, name) VALUES (?, ?)`, nameHash, name)
		require.NoError(t, err)
		_, err = store.DB.Exec(`INSERT OR IGNORE INTO tag_values (hash, value) VALUES (?, ?)`, valueHash, value)
		require.NoError(t, err)
		_, err = store.DB.Exec(
			`INSERT INTO stable_transaction_tags (tag_name_hash, tag_value_hash, transaction_id, tag_index, indexed_at, height, block_transaction_index)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			nameHash, valueHash, []byte("tx-10"), idx, 1_700_000_010, 10, 0)
		require.NoError(t, err)
	}
	insertTag(hashutil.TagHash([]byte("App-Name")), []byte("App-Name"), hashutil.TagHash([]byte("test-app")), []byte("test-app"), 0)
	insertTag(hashutil.TagHash([]byte("Content-Type")), []byte("Content-Type"), hashutil.TagHash([]byte("text/plain")), []byte("text/plain"), 1)

	var node, ok, err = p.GetTransaction(ctx, []byte("tx-10"))
	require.NoError(t, err)
	require.True(t, ok)

	var tags []model.Tag
	tags, err = p.LoadTags(ctx, node)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	require.Equal(t, []byte("App-Name"), tags[0].Name)
	require.Equal(t, []byte("Content-Type"), tags[1].Name)
}
