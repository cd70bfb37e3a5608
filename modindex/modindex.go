// Package modindex implements the BlockListValidator capability set of
// spec.md §6 over the moderation store: blocked-id and blocked-hash
// lookups and inserts, per spec.md §4.6.
package modindex

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"go.chainindex.dev/core/chainstore"
	"go.chainindex.dev/core/schema"
)

// Index implements BlockListValidator over one moderation store.
type Index struct {
	store *chainstore.Store
}

// New wraps an already-open moderation store.
func New(store *chainstore.Store) *Index { return &Index{store: store} }

// Open opens the moderation store at path.
func Open(path string) (*Index, error) {
	var store, err = chainstore.Open("moderation", path, schema.ModerationBootstrap, schema.ModerationStatements)
	if err != nil {
		return nil, err
	}
	return New(store), nil
}

// Close releases the underlying store.
func (idx *Index) Close() error { return idx.store.Close() }

// IsIdBlocked reports whether id is on the blocklist. Empty or nil input
// returns false, per spec.md §4.6 ("empty / missing inputs return false").
func (idx *Index) IsIdBlocked(ctx context.Context, id []byte) (bool, error) {
	if len(id) == 0 {
		return false, nil
	}
	var one int
	var err = idx.store.Stmt("selectIsIdBlocked").QueryRowContext(ctx, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, errors.WithMessage(err, "checking id blocklist")
	}
	return true, nil
}

// IsHashBlocked reports whether hash is on the blocklist. Empty or nil
// input returns false.
func (idx *Index) IsHashBlocked(ctx context.Context, hash []byte) (bool, error) {
	if len(hash) == 0 {
		return false, nil
	}
	var one int
	var err = idx.store.Stmt("selectIsHashBlocked").QueryRowContext(ctx, hash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	} else if err != nil {
		return false, errors.WithMessage(err, "checking hash blocklist")
	}
	return true, nil
}

// BlockRequest is the input to BlockData, spec.md §4.6.
type BlockRequest struct {
	ID     []byte
	Hash   []byte
	Source string
	Notes  string
}

// BlockData records a blocked id or hash, resolving (inserting if needed)
// its source id for audit when Source is set.
func (idx *Index) BlockData(ctx context.Context, req BlockRequest) error {
	var sourceID interface{}
	if req.Source != "" {
		var id, err = idx.sourceID(ctx, req.Source)
		if err != nil {
			return err
		}
		sourceID = id
	}

	var notes interface{}
	if req.Notes != "" {
		notes = req.Notes
	}

	return idx.store.WithTx(ctx, func(tx *sql.Tx) error {
		if len(req.ID) > 0 {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreBlockedId")).
				ExecContext(ctx, req.ID, sourceID, notes); err != nil {
				return errors.WithMessage(err, "blocking id")
			}
		}
		if len(req.Hash) > 0 {
			if _, err := tx.StmtContext(ctx, idx.store.Stmt("insertOrIgnoreBlockedHash")).
				ExecContext(ctx, req.Hash, sourceID, notes); err != nil {
				return errors.WithMessage(err, "blocking hash")
			}
		}
		return nil
	})
}

func (idx *Index) sourceID(ctx context.Context, name string) (int64, error) {
	if _, err := idx.store.Stmt("insertOrIgnoreBlockSource").ExecContext(ctx, name); err != nil {
		return 0, errors.WithMessage(err, "inserting block source")
	}
	var id int64
	if err := idx.store.Stmt("selectBlockSourceId").QueryRowContext(ctx, name).Scan(&id); err != nil {
		return 0, errors.WithMessage(err, "resolving block source id")
	}
	return id, nil
}
