// Package coreindex implements the ChainIndex and ChainOffsetIndex
// capability sets of spec.md §6 over the core store: block and transaction
// ingestion, the new/stable staging model, fork rollback, and stable
// promotion (spec.md §4.2).
//
// Grounded on consumer/store-sqlite.Store's "one atomic multi-statement
// transaction per ingestion unit" idiom; the statement set itself is
// schema.CoreStatements.
package coreindex

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"go.chainindex.dev/core/chainstore"
	"go.chainindex.dev/core/config"
	"go.chainindex.dev/core/hashutil"
	"go.chainindex.dev/core/model"
	"go.chainindex.dev/core/schema"
)

// BundleCoordinator is the subset of the bundles store that coreindex must
// drive during stable promotion and reset-to-height, per spec.md §4.1 ("core and bundles attach each other") and §4.2
// ("run stable promotion on both core and bundles"). Implemented by
// bundleindex.Index; kept as an interface here to avoid a package cycle.
type BundleCoordinator interface {
	PromoteAndClean(ctx context.Context, endHeight int64, maxStableBlockTimestamp int64) error
	ResetToHeight(ctx context.Context, height int64) error
}

// Index implements ChainIndex and ChainOffsetIndex over one core store.
type Index struct {
	store        *chainstore.Store
	maxForkDepth int64
	now          func() int64
}

// New wraps an already-open, bundles-attached core store. maxForkDepth is
// spec.md §6's MAX_FORK_DEPTH.
func New(store *chainstore.Store, maxForkDepth int64) *Index {
	return &Index{store: store, maxForkDepth: maxForkDepth, now: func() int64 { return time.Now().Unix() }}
}

// Open opens the core store at path (WAL mode and busy timeout, as
// chainstore.Open sets them), ATTACHes the bundles store at bundlesPath under alias
// "bundles", and prepares the cross-store propagation statement. Use Open
// when constructing the gateway from file paths; use New directly in tests
// that already have a *chainstore.Store (e.g. in-memory).
func Open(ctx context.Context, path, bundlesPath string, maxForkDepth int64) (*Index, error) {
	var store, err = chainstore.Open("core", path, schema.CoreBootstrap, schema.CoreStatements)
	if err != nil {
		return nil, err
	}
	if err := store.Attach(ctx, "bundles", bundlesPath); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.Prepare("propagateHeightToDataItemsForTx", schema.PropagateHeightToDataItemsForTx); err != nil {
		store.Close()
		return nil, err
	}
	return New(store, maxForkDepth), nil
}

// Close releases the underlying store.
func (idx *Index) Close() error { return idx.store.Close() }

// SaveBlockAndTxs is the ingestion operation of spec.md §4.2: within one
// core transaction, insert the block, link each supplied transaction to it,
// upsert each transaction's tags/wallet/row, record missingTxIds as
// placeholders, and (every STABLE_FLUSH_INTERVAL blocks) promote the stable
// prefix on both stores and garbage-collect stale new_* rows.
func (idx *Index) SaveBlockAndTxs(
	ctx context.Context,
	block model.Block,
	txs []model.Transaction,
	missingTxIds [][]byte,
	bundles BundleCoordinator,
) error {
	var now = idx.now()

	var err = idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreNewBlock")).ExecContext(ctx,
			block.Height, nonEmpty(block.IndepHash), nonEmpty(block.PreviousBlock), nonEmpty(block.Nonce),
			nonEmpty(block.MiningHash), block.Timestamp, block.Diff, block.CumulativeDiff, block.LastRetarget,
			nonEmpty(block.RewardAddr), block.RewardPool, block.BlockSize, block.WeaveSize,
			block.USDToARRateDividend, block.USDToARRateDivisor, block.ScheduledRateDividend, block.ScheduledRateDivisor,
			nonEmpty(block.HashListMerkle), nonEmpty(block.WalletListHash), nonEmpty(block.TxRoot),
			block.TxCount, block.MissingTxCount,
		); err != nil {
			return errors.WithMessage(err, "inserting block")
		}

		for i, t := range txs {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreNewBlockTransaction")).
				ExecContext(ctx, block.Height, t.ID, i); err != nil {
				return errors.WithMessage(err, "linking block transaction")
			}
			if _, err := tx.StmtContext(ctx, idx.store.Stmt("propagateHeightToDataItemsForTx")).
				ExecContext(ctx, block.Height, t.ID); err != nil {
				return errors.WithMessage(err, "propagating height to data items")
			}
			t.Height = &block.Height
			if err := idx.upsertTransaction(ctx, tx, t, now); err != nil {
				return err
			}
		}

		for _, id := range missingTxIds {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertMissingTransaction")).
				ExecContext(ctx, block.Height, id); err != nil {
				return errors.WithMessage(err, "recording missing transaction")
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if block.Height%config.StableFlushInterval != 0 {
		return nil
	}
	return idx.promoteStable(ctx, block.Height, bundles)
}

// SaveTx is the single-transaction ingestion path of spec.md §4.2: if a
// `missing_transactions` placeholder exists for tx.ID, adopt its recorded
// height; otherwise the transaction keeps the Height the caller supplied
// (nil inserts it as not-yet-linked).
func (idx *Index) SaveTx(ctx context.Context, t model.Transaction) error {
	var now = idx.now()
	return idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		var pendingHeight sql.NullInt64
		var err = tx.StmtContext(ctx, idx.store.Stmt("selectMissingTransactionHeight")).
			QueryRowContext(ctx, t.ID).Scan(&pendingHeight)
		switch {
		case err == sql.ErrNoRows:
			// No pending placeholder; leave t.Height as provided by the caller.
		case err != nil:
			return errors.WithMessage(err, "looking up missing-transaction placeholder")
		case pendingHeight.Valid:
			t.Height = &pendingHeight.Int64
		}

		if err := idx.upsertTransaction(ctx, tx, t, now); err != nil {
			return err
		}
		if _, err := tx.StmtContext(ctx, idx.store.Stmt("deleteMissingTransaction")).
			ExecContext(ctx, t.ID); err != nil {
			return errors.WithMessage(err, "clearing missing-transaction placeholder")
		}
		return nil
	})
}

// upsertTransaction inserts or ignores the owner wallet, inserts or
// ignores each tag's name/value rows, upserts each tag occurrence, and
// upserts the transaction row itself -- the shared body of SaveBlockAndTxs
// and SaveTx, per spec.md §4.2.
func (idx *Index) upsertTransaction(ctx context.Context, tx *sql.Tx, t model.Transaction, now int64) error {
	if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreWallet")).
		ExecContext(ctx, t.OwnerAddress, nil); err != nil {
		return errors.WithMessage(err, "inserting owner wallet")
	}

	for i, tag := range t.Tags {
		var nameHash, valueHash = hashutil.TagHash(tag.Name), hashutil.TagHash(tag.Value)
		if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreTagName")).
			ExecContext(ctx, nameHash, tag.Name); err != nil {
			return errors.WithMessage(err, "inserting tag name")
		}
		if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreTagValue")).
			ExecContext(ctx, valueHash, tag.Value); err != nil {
			return errors.WithMessage(err, "inserting tag value")
		}
		if _, err := tx.StmtContext(ctx, idx.store.Stmt("upsertNewTransactionTag")).
			ExecContext(ctx, nameHash, valueHash, t.ID, i, now, nullInt64(t.Height)); err != nil {
			return errors.WithMessage(err, "upserting tag occurrence")
		}
	}

	if _, err := tx.StmtContext(ctx, idx.store.Stmt("upsertNewTransaction")).ExecContext(ctx,
		t.ID, nonEmpty(t.Signature), t.Format, nonEmpty(t.LastTx), t.OwnerAddress, nonEmpty(t.Target),
		t.Quantity, t.Reward, t.DataSize, nonEmpty(t.DataRoot), t.TagCount, t.ContentType,
		t.CreatedAt, now, nullInt64(t.Height),
	); err != nil {
		return errors.WithMessage(err, "upserting transaction")
	}
	return nil
}

// promoteStable runs the stable-promotion and stale-new-row garbage
// collection of spec.md §4.2 ("When block.height % 5 == 0...").
func (idx *Index) promoteStable(ctx context.Context, height int64, bundles BundleCoordinator) error {
	var maxStableTimestamp sql.NullInt64
	if err := idx.store.Stmt("selectMaxStableBlockTimestamp").QueryRowContext(ctx).Scan(&maxStableTimestamp); err != nil {
		return errors.WithMessage(err, "reading max stable block timestamp")
	}
	var endHeight = height - idx.maxForkDepth

	if err := idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, name := range []string{
			"insertOrIgnoreStableBlocks",
			"insertOrIgnoreStableBlockTransactions",
			"insertOrIgnoreStableTransactions",
			"insertOrIgnoreStableTransactionTags",
		} {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt(name)).ExecContext(ctx, endHeight); err != nil {
				return errors.WithMessagef(err, "promoting core: %s", name)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	var cutoff = maxStableTimestamp.Int64 - int64(config.NewTxCleanupWait.Seconds())
	if err := idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, name := range []string{
			"deleteStaleNewBlocks",
			"deleteStaleNewBlockTxs",
		} {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt(name)).ExecContext(ctx, endHeight); err != nil {
				return errors.WithMessagef(err, "core gc: %s", name)
			}
		}
		for _, name := range []string{"deleteStaleNewTransactions", "deleteStaleNewTransactionTags"} {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt(name)).ExecContext(ctx, endHeight, cutoff); err != nil {
				return errors.WithMessagef(err, "core gc: %s", name)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if bundles == nil {
		return nil
	}
	if err := bundles.PromoteAndClean(ctx, endHeight, maxStableTimestamp.Int64); err != nil {
		return errors.WithMessage(err, "promoting bundles store")
	}
	log.WithFields(log.Fields{"height": height, "endHeight": endHeight}).Debug("promoted stable prefix")
	return nil
}

// ResetToHeight rolls back new-state on the core store (and, if non-nil,
// the bundles store) to height h, per spec.md §4.2. Stable rows are never
// touched.
func (idx *Index) ResetToHeight(ctx context.Context, h int64, bundles BundleCoordinator) error {
	if err := idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, name := range []string{
			"clearHeightOnNewTransactionsAboveHeight",
			"clearHeightOnNewTransactionTagsAboveHeight",
		} {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt(name)).ExecContext(ctx, h); err != nil {
				return errors.WithMessagef(err, "reset: %s", name)
			}
		}
		for _, name := range []string{
			"deleteNewBlocksAboveHeight",
			"deleteNewBlockTransactionsAboveHeight",
			"deleteMissingTransactionsAboveHeight",
		} {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt(name)).ExecContext(ctx, h); err != nil {
				return errors.WithMessagef(err, "reset: %s", name)
			}
		}
		return nil
	}); err != nil {
		return err
	}
	if bundles == nil {
		return nil
	}
	return bundles.ResetToHeight(ctx, h)
}

// GetMaxHeight returns the highest known block height, preferring the new
// tip and falling back to the stable prefix (e.g. immediately after a
// resetToHeight rollback below the new table's retained window).
func (idx *Index) GetMaxHeight(ctx context.Context) (int64, bool, error) {
	var h sql.NullInt64
	if err := idx.store.Stmt("selectMaxNewBlockHeight").QueryRowContext(ctx).Scan(&h); err != nil {
		return 0, false, errors.WithMessage(err, "selecting max new block height")
	}
	if h.Valid {
		return h.Int64, true, nil
	}
	if err := idx.store.Stmt("selectMaxStableBlockHeight").QueryRowContext(ctx).Scan(&h); err != nil {
		return 0, false, errors.WithMessage(err, "selecting max stable block height")
	}
	return h.Int64, h.Valid, nil
}

// GetBlockHashByHeight returns the independent hash of the block at height
// h, checking new_blocks then stable_blocks.
func (idx *Index) GetBlockHashByHeight(ctx context.Context, h int64) ([]byte, bool, error) {
	var hash []byte
	var err = idx.store.Stmt("selectBlockHashByHeightNew").QueryRowContext(ctx, h).Scan(&hash)
	if err == nil {
		return hash, true, nil
	}
	if err != sql.ErrNoRows {
		return nil, false, errors.WithMessage(err, "selecting new block hash")
	}
	err = idx.store.Stmt("selectBlockHashByHeightStable").QueryRowContext(ctx, h).Scan(&hash)
	if err == sql.ErrNoRows {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.WithMessage(err, "selecting stable block hash")
	}
	return hash, true, nil
}

// GetMissingTxIds lists every pending missing_transactions placeholder.
func (idx *Index) GetMissingTxIds(ctx context.Context) ([][]byte, error) {
	var rows, err = idx.store.Stmt("selectMissingTransactionIds").QueryContext(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "selecting missing transaction ids")
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var id []byte
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// GetTxIdsMissingOffsets lists transaction ids present in the index with
// no tx_offsets row, per the supplemented ChainOffsetIndex of SPEC_FULL.md.
func (idx *Index) GetTxIdsMissingOffsets(ctx context.Context) ([][]byte, error) {
	var rows, err = idx.store.Stmt("selectTxIdsMissingOffsets").QueryContext(ctx)
	if err != nil {
		return nil, errors.WithMessage(err, "selecting tx ids missing offsets")
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var id []byte
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SaveTxOffset records a transaction's absolute weave offset and size.
func (idx *Index) SaveTxOffset(ctx context.Context, id []byte, offset, size int64) error {
	var _, err = idx.store.Stmt("upsertTxOffset").ExecContext(ctx, id, offset, size)
	if err != nil {
		return errors.WithMessage(err, "saving transaction offset")
	}
	return nil
}

// GetTransactionDataRoot resolves a transaction's own chain-level data_root
// (model.Transaction.DataRoot), checking new_transactions then
// stable_transactions. This is distinct from the data store's content-hash
// index: data_root is the Merkle root a client needs to validate the chunks
// it streams back, not a resolved content hash.
func (idx *Index) GetTransactionDataRoot(ctx context.Context, id []byte) ([]byte, bool, error) {
	var root []byte
	var err = idx.store.Stmt("selectTransactionDataRoot").QueryRowContext(ctx, id, id).Scan(&root)
	if err == sql.ErrNoRows {
		return nil, false, nil
	} else if err != nil {
		return nil, false, errors.WithMessage(err, "selecting transaction data root")
	}
	return root, true, nil
}

// GetTxOffset reads back a transaction's absolute weave offset and size, as
// recorded by SaveTxOffset. This is the ordinary top-level-transaction case
// of spec.md §4.5's getTxData; a bundled data item instead resolves its
// range via the data store's nested-range index (dataindex.GetDataParent),
// since it has no tx_offsets row of its own.
func (idx *Index) GetTxOffset(ctx context.Context, id []byte) (int64, int64, bool, error) {
	var offset, size int64
	var err = idx.store.Stmt("selectTxOffset").QueryRowContext(ctx, id).Scan(&offset, &size)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	} else if err != nil {
		return 0, 0, false, errors.WithMessage(err, "selecting transaction offset")
	}
	return offset, size, true, nil
}

// DebugCounts aggregates the core-store half of spec.md §4.7's debug info.
type DebugCounts struct {
	StableBlockCount            int64
	StableBlockMinHeight        sql.NullInt64
	StableBlockMaxHeight        sql.NullInt64
	StableTransactionCount      int64
	StableBlockTransactionCount int64
	OrphanedStableTxCount       int64
	Errors                      []string
}

// GetDebugCounts implements the core store's contribution to getDebugInfo
// (spec.md §4.7), including the two invariant checks it names.
func (idx *Index) GetDebugCounts(ctx context.Context) (DebugCounts, error) {
	var c DebugCounts

	if err := idx.store.Stmt("selectStableBlockCount").QueryRowContext(ctx).Scan(&c.StableBlockCount); err != nil {
		return c, err
	}
	if err := idx.store.Stmt("selectStableBlockHeightRange").QueryRowContext(ctx).
		Scan(&c.StableBlockMinHeight, &c.StableBlockMaxHeight); err != nil {
		return c, err
	}
	if err := idx.store.Stmt("selectStableTransactionCount").QueryRowContext(ctx).Scan(&c.StableTransactionCount); err != nil {
		return c, err
	}
	if err := idx.store.Stmt("selectStableBlockTransactionCount").QueryRowContext(ctx).
		Scan(&c.StableBlockTransactionCount); err != nil {
		return c, err
	}
	if err := idx.store.Stmt("selectOrphanedStableTxCount").QueryRowContext(ctx).Scan(&c.OrphanedStableTxCount); err != nil {
		return c, err
	}

	if c.StableBlockMinHeight.Valid && c.StableBlockMaxHeight.Valid {
		var want = c.StableBlockMaxHeight.Int64 - c.StableBlockMinHeight.Int64 + 1
		if want != c.StableBlockCount {
			c.Errors = append(c.Errors, "stable block count does not match stable height range")
		}
	}
	if c.OrphanedStableTxCount > 0 {
		c.Errors = append(c.Errors, "stable transactions reference no stable_block_transactions row")
	}
	return c, nil
}

func nullInt64(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

// nonEmpty maps a nil/zero-length byte slice to nil so it binds as SQL
// NULL rather than an empty BLOB, matching spec.md §3 ("reward address
// (empty when 'unclaimed')").
func nonEmpty(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
