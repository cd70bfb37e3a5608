// Package dataindex implements the ContiguousDataIndex and
// NestedDataIndexWriter capability sets of spec.md §6 over the data store:
// the content-hash index that resolves a tx or data item id to its
// canonical content hash, and the nested-range index describing
// sub-ranges within a parent's payload.
package dataindex

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"go.chainindex.dev/core/chainstore"
	"go.chainindex.dev/core/model"
	"go.chainindex.dev/core/schema"
)

// Index implements ContiguousDataIndex and NestedDataIndexWriter over one
// data store.
type Index struct {
	store *chainstore.Store
}

// New wraps an already-open data store.
func New(store *chainstore.Store) *Index { return &Index{store: store} }

// Open opens the data store at path.
func Open(path string) (*Index, error) {
	var store, err = chainstore.Open("data", path, schema.DataBootstrap, schema.DataStatements)
	if err != nil {
		return nil, err
	}
	return New(store), nil
}

// Close releases the underlying store.
func (idx *Index) Close() error { return idx.store.Close() }

// SaveDataContentAttributes inserts the resolved content hash attributes
// of an id (and, if provided, its data root), per spec.md §4.2.
func (idx *Index) SaveDataContentAttributes(ctx context.Context, attrs model.DataContentAttributes) error {
	return idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.StmtContext(ctx, idx.store.Stmt("upsertDataHash")).ExecContext(ctx,
			attrs.Hash, attrs.DataSize, attrs.OriginalSourceContentType, attrs.CachedAt, attrs.IndexedAt,
		); err != nil {
			return errors.WithMessage(err, "upserting data hash")
		}
		if len(attrs.ID) > 0 {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreDataId")).
				ExecContext(ctx, attrs.ID, attrs.Hash); err != nil {
				return errors.WithMessage(err, "inserting data id")
			}
		}
		if len(attrs.DataRoot) > 0 {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreDataRoot")).
				ExecContext(ctx, attrs.DataRoot, attrs.Hash); err != nil {
				return errors.WithMessage(err, "inserting data root")
			}
		}
		return nil
	})
}

// SaveNestedDataId inserts a nested_data_ids row: id's range within parentID.
func (idx *Index) SaveNestedDataId(ctx context.Context, id, parentID []byte, dataOffset, dataSize int64) error {
	var _, err = idx.store.Stmt("insertOrIgnoreNestedDataId").ExecContext(ctx, id, parentID, dataOffset, dataSize)
	if err != nil {
		return errors.WithMessage(err, "inserting nested data id")
	}
	return nil
}

// SaveNestedDataHash inserts a nested_data_hashes row: hash's range within
// parentID.
func (idx *Index) SaveNestedDataHash(ctx context.Context, hash, parentID []byte, dataOffset int64) error {
	var _, err = idx.store.Stmt("insertOrIgnoreNestedDataHash").ExecContext(ctx, hash, parentID, dataOffset)
	if err != nil {
		return errors.WithMessage(err, "inserting nested data hash")
	}
	return nil
}

// GetDataAttributes resolves id to its content attributes, checking
// data_ids then data_roots. Returns ok=false, err=nil when not found --
// this is the "not-found" normal result of spec.md §7, distinct from the
// "unknown" circuit-open result the breaker package layers on top.
func (idx *Index) GetDataAttributes(ctx context.Context, id []byte) (model.DataContentAttributes, bool, error) {
	var a, ok, err = idx.scanAttributes(ctx, "selectDataAttributesById", id)
	if ok || err != nil {
		return a, ok, err
	}
	return idx.scanAttributes(ctx, "selectDataAttributesByRoot", id)
}

func (idx *Index) scanAttributes(ctx context.Context, stmtName string, key []byte) (model.DataContentAttributes, bool, error) {
	var a model.DataContentAttributes
	var cachedAt sql.NullInt64
	var err = idx.store.Stmt(stmtName).QueryRowContext(ctx, key).
		Scan(&a.Hash, &a.DataSize, &a.OriginalSourceContentType, &cachedAt, &a.IndexedAt)
	if err == sql.ErrNoRows {
		return model.DataContentAttributes{}, false, nil
	} else if err != nil {
		return model.DataContentAttributes{}, false, errors.WithMessage(err, "selecting data attributes")
	}
	if cachedAt.Valid {
		a.CachedAt = &cachedAt.Int64
	}
	return a, true, nil
}

// GetDataParent resolves id or hash to its enclosing parent range,
// checking nested_data_ids then nested_data_hashes.
func (idx *Index) GetDataParent(ctx context.Context, idOrHash []byte) (model.DataParent, bool, error) {
	var p, ok, err = idx.scanParent(ctx, "selectDataParentById", idOrHash)
	if ok || err != nil {
		return p, ok, err
	}
	return idx.scanParent(ctx, "selectDataParentByHash", idOrHash)
}

func (idx *Index) scanParent(ctx context.Context, stmtName string, key []byte) (model.DataParent, bool, error) {
	var p model.DataParent
	var err = idx.store.Stmt(stmtName).QueryRowContext(ctx, key).Scan(&p.ParentID, &p.DataOffset, &p.DataSize)
	if err == sql.ErrNoRows {
		return model.DataParent{}, false, nil
	} else if err != nil {
		return model.DataParent{}, false, errors.WithMessage(err, "selecting data parent")
	}
	return p, true, nil
}
