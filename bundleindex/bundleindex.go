// Package bundleindex implements the BundleIndex capability set of
// spec.md §6 over the bundles store: data items, bundle lifecycle records,
// and the filter/format dimension tables, plus the staging/promotion model
// shared with coreindex.
package bundleindex

import (
	"context"
	"database/sql"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"

	"go.chainindex.dev/core/chainstore"
	"go.chainindex.dev/core/config"
	"go.chainindex.dev/core/hashutil"
	"go.chainindex.dev/core/model"
	"go.chainindex.dev/core/schema"
)

const dimensionCacheSize = 4096

// Index implements BundleIndex over one bundles store.
type Index struct {
	store *chainstore.Store
	now   func() int64

	// filterIds and formatIds are the per-worker hot caches of spec.md §5
	// ("The filterIds and bundleFormatIds caches are per-worker, populated
	// on first use, never invalidated"). golang-lru, not a plain map, so a
	// pathological filter/format cardinality cannot grow the cache
	// unbounded across the process lifetime.
	filterIds *lru.Cache
	formatIds *lru.Cache
	mu        sync.Mutex
}

// New wraps an already-open bundles store.
func New(store *chainstore.Store) *Index {
	var filterIds, _ = lru.New(dimensionCacheSize)
	var formatIds, _ = lru.New(dimensionCacheSize)
	return &Index{
		store:     store,
		now:       func() int64 { return time.Now().Unix() },
		filterIds: filterIds,
		formatIds: formatIds,
	}
}

// Open opens the bundles store at path and ATTACHes the core store at
// corePath under alias "core", per spec.md §4.1.
func Open(ctx context.Context, path, corePath string) (*Index, error) {
	// insertOrIgnoreStableDataItems reads core.stable_block_transactions, so
	// it is prepared after the Attach below.
	var statements = make(map[string]string, len(schema.BundlesStatements))
	for name, text := range schema.BundlesStatements {
		if name != "insertOrIgnoreStableDataItems" {
			statements[name] = text
		}
	}
	var store, err = chainstore.Open("bundles", path, schema.BundlesBootstrap, statements)
	if err != nil {
		return nil, err
	}
	if err := store.Attach(ctx, "core", corePath); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.Prepare("selectTransactionHeightViaCore", schema.SelectTransactionHeightViaCore); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.Prepare("insertOrIgnoreStableDataItems", schema.BundlesStatements["insertOrIgnoreStableDataItems"]); err != nil {
		store.Close()
		return nil, err
	}
	return New(store), nil
}

// Close releases the underlying store.
func (idx *Index) Close() error { return idx.store.Close() }

// SaveDataItem upserts a data item's owner wallet, tags, filter
// dimension row, and row, resolving its height via the root transaction's
// recorded height when the item itself has none yet, per spec.md §4.2.
func (idx *Index) SaveDataItem(ctx context.Context, item model.DataItem) error {
	var now = idx.now()

	var filterID int64
	var err error
	if item.Filter != "" {
		if filterID, err = idx.filterID(ctx, item.Filter); err != nil {
			return err
		}
	}

	return idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		if item.Height == nil {
			var h sql.NullInt64
			var err = tx.StmtContext(ctx, idx.store.Stmt("selectTransactionHeightViaCore")).
				QueryRowContext(ctx, item.RootTxID, item.RootTxID).Scan(&h)
			if err != nil && err != sql.ErrNoRows {
				return errors.WithMessage(err, "resolving root transaction height")
			}
			if h.Valid {
				item.Height = &h.Int64
			}
		}

		if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreWallet")).
			ExecContext(ctx, item.OwnerAddress, nil); err != nil {
			return errors.WithMessage(err, "inserting owner wallet")
		}

		for i, tag := range item.Tags {
			var nameHash, valueHash = hashutil.TagHash(tag.Name), hashutil.TagHash(tag.Value)
			if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreTagName")).
				ExecContext(ctx, nameHash, tag.Name); err != nil {
				return errors.WithMessage(err, "inserting tag name")
			}
			if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreTagValue")).
				ExecContext(ctx, valueHash, tag.Value); err != nil {
				return errors.WithMessage(err, "inserting tag value")
			}
			if _, err := tx.StmtContext(ctx, idx.store.Stmt("upsertNewDataItemTag")).
				ExecContext(ctx, nameHash, valueHash, item.ID, i, now, nullInt64(item.Height)); err != nil {
				return errors.WithMessage(err, "upserting tag occurrence")
			}
		}

		var filterIDVal interface{}
		if item.Filter != "" {
			filterIDVal = filterID
		}
		if _, err := tx.StmtContext(ctx, idx.store.Stmt("upsertNewDataItem")).ExecContext(ctx,
			item.ID, item.ParentID, item.RootTxID, item.OwnerAddress, nonEmpty(item.Anchor),
			nonEmpty(item.Signature), nonEmpty(item.Target), item.DataOffset, item.DataSize,
			item.TagCount, item.ContentType, nullInt64(item.Height), now, filterIDVal,
		); err != nil {
			return errors.WithMessage(err, "upserting data item")
		}
		return nil
	})
}

// SaveBundle upserts a bundle lifecycle record, resolving its format and
// filter ids through the hot dimension caches, per spec.md §4.2.
func (idx *Index) SaveBundle(ctx context.Context, rec model.BundleRecord) error {
	var formatID, unbundleFilterID, indexFilterID int64
	var err error

	if rec.Format != "" {
		if formatID, err = idx.formatID(ctx, rec.Format); err != nil {
			return err
		}
	}
	if rec.UnbundleFilter != "" {
		if unbundleFilterID, err = idx.filterID(ctx, rec.UnbundleFilter); err != nil {
			return err
		}
	}
	if rec.IndexFilter != "" {
		if indexFilterID, err = idx.filterID(ctx, rec.IndexFilter); err != nil {
			return err
		}
	}

	var _, execErr = idx.store.Stmt("upsertBundleRecord").ExecContext(ctx,
		rec.ID, rec.RootTxID, nullableID(rec.Format, formatID), nullableID(rec.UnbundleFilter, unbundleFilterID),
		nullableID(rec.IndexFilter, indexFilterID), rec.DataItemCount, rec.MatchedDataItemCount,
		rec.QueuedAt, rec.SkippedAt, rec.UnbundledAt, rec.FullyIndexedAt,
	)
	if execErr != nil {
		return errors.WithMessage(execErr, "upserting bundle record")
	}
	return nil
}

// GetFailedBundleIds returns bundles skipped more than BUNDLE_REPROCESS_WAIT
// ago that were never unbundled or fully indexed, per SPEC_FULL.md.
func (idx *Index) GetFailedBundleIds(ctx context.Context) ([][]byte, error) {
	var cutoff = idx.now() - int64(config.BundleReprocessWait.Seconds())
	var rows, err = idx.store.Stmt("selectFailedBundleIds").QueryContext(ctx, cutoff)
	if err != nil {
		return nil, errors.WithMessage(err, "selecting failed bundle ids")
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

// BackfillBundles clears skipped_at on the named bundle records so they
// are reconsidered for unbundling.
func (idx *Index) BackfillBundles(ctx context.Context, ids [][]byte) error {
	return idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range ids {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt("clearBundleSkippedAt")).
				ExecContext(ctx, id); err != nil {
				return errors.WithMessage(err, "backfilling bundle")
			}
		}
		return nil
	})
}

// UpdateBundlesFullyIndexedAt records that a bundle's matched data items
// are now all indexed. Per SPEC_FULL.md's resolution of the §9 Open
// Question, this is dispatched on the write queue by callers (workerpool),
// not the read queue.
func (idx *Index) UpdateBundlesFullyIndexedAt(ctx context.Context, id []byte, at int64) error {
	var _, err = idx.store.Stmt("updateBundleFullyIndexedAt").ExecContext(ctx, at, id)
	if err != nil {
		return errors.WithMessage(err, "updating bundle fully-indexed-at")
	}
	return nil
}

// UpdateBundlesForFilterChange updates a bundle record's filter ids when
// the gateway's configured filter set changes, clearing fully_indexed_at
// so the bundle is reconsidered.
func (idx *Index) UpdateBundlesForFilterChange(ctx context.Context, id []byte, unbundleFilter, indexFilter string) error {
	var unbundleID, err = idx.filterID(ctx, unbundleFilter)
	if err != nil {
		return err
	}
	var indexID int64
	if indexID, err = idx.filterID(ctx, indexFilter); err != nil {
		return err
	}
	if _, err := idx.store.Stmt("updateBundleFilterIds").ExecContext(ctx, unbundleID, indexID, id); err != nil {
		return errors.WithMessage(err, "updating bundle filter ids")
	}
	return nil
}

// PromoteAndClean implements coreindex.BundleCoordinator: it promotes the
// bundles store's stable prefix up to endHeight and garbage-collects stale
// new_* rows, mirroring coreindex's own promotion, per spec.md §4.2.
func (idx *Index) PromoteAndClean(ctx context.Context, endHeight int64, maxStableBlockTimestamp int64) error {
	if err := idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, name := range []string{"insertOrIgnoreStableDataItems", "insertOrIgnoreStableDataItemTags"} {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt(name)).ExecContext(ctx, endHeight); err != nil {
				return errors.WithMessagef(err, "promoting bundles: %s", name)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	var cutoff = maxStableBlockTimestamp - int64(config.NewDataItemCleanupWait.Seconds())
	return idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, name := range []string{"deleteStaleNewDataItems", "deleteStaleNewDataItemTags"} {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt(name)).ExecContext(ctx, endHeight, cutoff); err != nil {
				return errors.WithMessagef(err, "bundles gc: %s", name)
			}
		}
		return nil
	})
}

// ResetToHeight implements coreindex.BundleCoordinator's rollback half of
// spec.md §4.2.
func (idx *Index) ResetToHeight(ctx context.Context, h int64) error {
	return idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		for _, name := range []string{
			"clearHeightOnNewDataItemsAboveHeight",
			"clearHeightOnNewDataItemTagsAboveHeight",
		} {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt(name)).ExecContext(ctx, h); err != nil {
				return errors.WithMessagef(err, "bundles reset: %s", name)
			}
		}
		return nil
	})
}

// GetLastFullyIndexedAt supports the debug-info warning of spec.md §4.7
// ("last-fully-indexed bundle older than 24 hours").
func (idx *Index) GetLastFullyIndexedAt(ctx context.Context) (int64, bool, error) {
	var v sql.NullInt64
	if err := idx.store.Stmt("selectLastFullyIndexedAt").QueryRowContext(ctx).Scan(&v); err != nil {
		return 0, false, err
	}
	return v.Int64, v.Valid, nil
}

// filterID resolves filter text to its dimension-table id via the hot
// cache, inserting the row on first use.
func (idx *Index) filterID(ctx context.Context, filter string) (int64, error) {
	return idx.dimensionID(ctx, idx.filterIds, filter, "insertOrIgnoreFilter", "selectFilterId")
}

func (idx *Index) formatID(ctx context.Context, format string) (int64, error) {
	return idx.dimensionID(ctx, idx.formatIds, format, "insertOrIgnoreFormat", "selectFormatId")
}

func (idx *Index) dimensionID(ctx context.Context, cache *lru.Cache, key, insertStmt, selectStmt string) (int64, error) {
	if v, ok := cache.Get(key); ok {
		return v.(int64), nil
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if v, ok := cache.Get(key); ok {
		return v.(int64), nil
	}

	if _, err := idx.store.Stmt(insertStmt).ExecContext(ctx, key); err != nil {
		return 0, errors.WithMessagef(err, "inserting dimension row %q", key)
	}
	var id int64
	if err := idx.store.Stmt(selectStmt).QueryRowContext(ctx, key).Scan(&id); err != nil {
		return 0, errors.WithMessagef(err, "resolving dimension id %q", key)
	}
	cache.Add(key, id)
	return id, nil
}

func nullInt64(p *int64) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func nullableID(text string, id int64) interface{} {
	if text == "" {
		return nil
	}
	return id
}

func nonEmpty(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
