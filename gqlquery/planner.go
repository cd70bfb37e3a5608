package gqlquery

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"go.chainindex.dev/core/chainstore"
	"go.chainindex.dev/core/model"
	"go.chainindex.dev/core/wireid"
)

// ErrCursorInvalid is returned when a caller-supplied cursor does not
// decode, spec.md §7's *cursor-invalid* taxonomy entry.
var ErrCursorInvalid = wireid.ErrCursorInvalid

// ErrInvalidQuery is returned when a request is malformed in a way no
// cursor is involved in, e.g. GetSearchByTags called with no candidate
// values for a fuzzy/wildcard match. Not itself a spec.md §7 taxonomy
// entry; treated the same as *cursor-invalid* ("ill-formed input; fail the
// request") since no closer-fitting category exists.
var ErrInvalidQuery = errors.New("gqlquery: invalid-query")

// Planner answers GqlQueryable requests against the core store, which
// ATTACHes the bundles store (alias "bundles"), per spec.md §4.1/§9
// ("the planner MUST continue to reference bundles.* tables from
// core-opened connections").
type Planner struct {
	core *chainstore.Store
}

// New builds a Planner over the core store (bundles already attached by
// the caller, mirroring coreindex.Open's own Attach call).
func New(core *chainstore.Store) *Planner { return &Planner{core: core} }

// GetTransactions implements spec.md §4.4's getGqlTransactions.
func (p *Planner) GetTransactions(ctx context.Context, q TransactionsQuery) (Page, error) {
	if q.PageSize <= 0 {
		q.PageSize = 100
	}
	var cursor *wireid.Cursor
	if q.Cursor != "" {
		var c, err = wireid.ParseCursor(q.Cursor)
		if err != nil {
			return Page{}, errors.WithMessage(ErrCursorInvalid, err.Error())
		}
		cursor = &c
	}

	var desc = q.SortOrder == model.HeightDesc
	var primaryAge, secondaryAge age
	if desc {
		primaryAge, secondaryAge = ageNew, ageStable
	} else {
		primaryAge, secondaryAge = ageStable, ageNew
	}

	var primaryMax, primaryMin = q.MaxHeight, q.MinHeight
	if primaryAge == ageStable {
		if clamped, err := p.clampToStableMaxHeight(ctx, q.MaxHeight); err != nil {
			return Page{}, err
		} else {
			primaryMax = clamped
		}
	}

	var primaryQ = q
	primaryQ.MaxHeight, primaryQ.MinHeight = primaryMax, primaryMin
	var primaryRows, err = p.queryAge(ctx, primaryAge, primaryQ, cursor, desc, q.PageSize+1)
	if err != nil {
		return Page{}, err
	}

	var rows = primaryRows
	if len(rows) < q.PageSize+1 {
		var secondaryQ = q
		secondaryQ.MaxHeight, secondaryQ.MinHeight = q.MaxHeight, q.MinHeight
		if len(primaryRows) > 0 && primaryRows[len(primaryRows)-1].Height != nil {
			var boundary = *primaryRows[len(primaryRows)-1].Height
			if desc {
				var v = boundary - 1
				secondaryQ.MaxHeight = &v
			} else {
				var v = boundary + 1
				secondaryQ.MinHeight = &v
			}
		}
		if secondaryAge == ageStable {
			if clamped, err := p.clampToStableMaxHeight(ctx, secondaryQ.MaxHeight); err != nil {
				return Page{}, err
			} else {
				secondaryQ.MaxHeight = clamped
			}
		}

		// Passing cursor (not nil) matters when every row the caller is
		// paging through lives in one age tier: with no primary rows this
		// request, the boundary clamp above never narrows secondaryQ, and
		// the external cursor is the only thing excluding already-seen
		// rows. When primaryRows is non-empty the boundary clamp already
		// implies anything cursor would exclude, so this is redundant but
		// harmless there.
		var secondaryRows, err = p.queryAge(ctx, secondaryAge, secondaryQ, cursor, desc, q.PageSize+1-len(rows))
		if err != nil {
			return Page{}, err
		}
		rows = append(rows, secondaryRows...)
	}

	var hasNext = len(rows) > q.PageSize
	if hasNext {
		rows = rows[:q.PageSize]
	}

	var edges = make([]Edge, len(rows))
	for i, n := range rows {
		edges[i] = Edge{Cursor: wireid.EncodeCursor(cursorFromNode(n)), Node: n}
	}
	return Page{HasNextPage: hasNext, Edges: edges}, nil
}

// GetTransaction implements spec.md §4.4's getGqlTransaction point lookup.
// It matches either a bare transaction or a data item, per the uniform
// projection of §4.4.
func (p *Planner) GetTransaction(ctx context.Context, id []byte) (Node, bool, error) {
	var page, err = p.GetTransactions(ctx, TransactionsQuery{PageSize: 1, IDs: [][]byte{id}})
	if err != nil {
		return Node{}, false, err
	}
	if len(page.Edges) == 0 {
		return Node{}, false, nil
	}
	return page.Edges[0].Node, true, nil
}

func (p *Planner) clampToStableMaxHeight(ctx context.Context, requested *int64) (*int64, error) {
	var v sql.NullInt64
	if err := p.core.Stmt("selectMaxStableBlockHeight").QueryRowContext(ctx).Scan(&v); err != nil {
		return nil, errors.WithMessage(err, "resolving stable max height")
	}
	if !v.Valid {
		return requested, nil
	}
	if requested == nil || *requested > v.Int64 {
		return &v.Int64, nil
	}
	return requested, nil
}

func (p *Planner) queryAge(ctx context.Context, a age, q TransactionsQuery, cursor *wireid.Cursor, desc bool, limit int) ([]Node, error) {
	var includeTxs = q.BundledIn == nil || q.BundledIn.Null
	var includeItems = q.BundledIn == nil || !q.BundledIn.Null
	if !includeTxs && !includeItems {
		return nil, nil
	}

	var cursorPred, cursorArgs = cursorPredicate(cursor, a, desc)

	var parts []string
	var args []interface{}
	if includeTxs {
		var text, a2 = sourceSQL(a, sourceTxs, q, cursorPred, cursorArgs)
		parts = append(parts, "SELECT * FROM ("+text+")")
		args = append(args, a2...)
	}
	if includeItems {
		var text, a2 = sourceSQL(a, sourceItems, q, cursorPred, cursorArgs)
		parts = append(parts, "SELECT * FROM ("+text+")")
		args = append(args, a2...)
	}

	var text = "SELECT * FROM (" + strings.Join(parts, " UNION ALL ") + ") ORDER BY " + orderByClause(desc) + " LIMIT ?"
	args = append(args, limit)

	log.WithFields(log.Fields{"age": a, "args": len(args)}).Debug("gqlquery: planner source query")

	var sources = "both"
	switch {
	case includeTxs && !includeItems:
		sources = "txs"
	case includeItems && !includeTxs:
		sources = "items"
	}
	var started = time.Now()
	var rows, err = p.core.DB.QueryContext(ctx, text, args...)
	if err != nil {
		queryErrorsTotal.WithLabelValues(sources, ageLabel(a)).Inc()
		return nil, errors.WithMessage(err, "querying gql source")
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var n, err = scanNode(rows)
		if err != nil {
			queryErrorsTotal.WithLabelValues(sources, ageLabel(a)).Inc()
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		queryErrorsTotal.WithLabelValues(sources, ageLabel(a)).Inc()
		return nil, err
	}
	queryDurationSeconds.WithLabelValues(sources, ageLabel(a)).Observe(time.Since(started).Seconds())
	queryRowsReturned.WithLabelValues(sources, ageLabel(a)).Observe(float64(len(out)))
	return out, nil
}

func scanNode(rows *sql.Rows) (Node, error) {
	var n Node
	var height, blockTxIndex, blockTimestamp sql.NullInt64
	var reward, quantity sql.NullString

	if err := rows.Scan(
		&height, &blockTxIndex, &n.DataItemID, &n.IndexedAt, &n.ID,
		&n.Anchor, &n.Signature, &n.Target, &reward, &quantity,
		&n.DataSize, &n.ContentType, &n.OwnerAddress, &n.PublicModulus,
		&n.BlockIndepHash, &blockTimestamp, &n.BlockPreviousBlock, &n.ParentID,
	); err != nil {
		return Node{}, errors.WithMessage(err, "scanning gql node")
	}

	if height.Valid {
		n.Height = &height.Int64
	}
	if blockTxIndex.Valid {
		n.BlockTransactionIndex = &blockTxIndex.Int64
	}
	if blockTimestamp.Valid {
		n.BlockTimestamp = &blockTimestamp.Int64
	}
	n.Reward = reward.String
	n.Quantity = quantity.String
	n.IsDataItem = !isBareTransaction(n.DataItemID)
	return n, nil
}
