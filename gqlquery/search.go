package gqlquery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"go.chainindex.dev/core/hashutil"
	"go.chainindex.dev/core/model"
	"go.chainindex.dev/core/wireid"
)

// SearchQuery is the input of GetSearchByTags: a single tag name, a set of
// candidate values, and a MatchMode deciding how a row's tag value must
// relate to those candidates. Per SPEC_FULL.md's resolution of spec.md
// §9's open question ("getGqlSearchByTags... bypasses the cursor-ordered
// planner, hits a non-existent view... the port should either implement it
// against the same planner path with a MATCH-mode parameter... or omit
// it"), this is implemented against the same cursor-ordered planner path
// GetTransactions uses, rather than against a separate, unfinished view.
type SearchQuery struct {
	PageSize  int
	Cursor    string
	SortOrder model.SortOrder
	TagName   []byte
	Values    [][]byte
	Mode      model.MatchMode
	MinHeight *int64
	MaxHeight *int64
}

// GetSearchByTags implements spec.md §9's getGqlSearchByTags against the
// same cursor-ordered planner path as GetTransactions, parameterized by
// Mode: EXACT reduces to the ordinary hash-equality tag join
// GetTransactions already performs; WILDCARD compiles to a single `GLOB`
// predicate against the tag's decoded value; FUZZY_AND/FUZZY_OR compile to
// hash-equality membership checks -- AND of per-value EXISTS, OR via a
// single IN-list join -- since a row's tag join binds only one occurrence
// of the tag name, and distinct candidate values commonly live on distinct
// occurrences (e.g. a multi-valued tag).
func (p *Planner) GetSearchByTags(ctx context.Context, q SearchQuery) (Page, error) {
	if q.Mode != model.MatchExact && len(q.Values) == 0 {
		return Page{}, errors.WithMessage(ErrInvalidQuery, "search requires at least one value")
	}

	if q.Mode == model.MatchExact {
		return p.GetTransactions(ctx, TransactionsQuery{
			PageSize: q.PageSize, Cursor: q.Cursor, SortOrder: q.SortOrder,
			MinHeight: q.MinHeight, MaxHeight: q.MaxHeight,
			Tags: []TagFilter{{Name: q.TagName, Values: q.Values}},
		})
	}

	if q.PageSize <= 0 {
		q.PageSize = 100
	}
	var desc = q.SortOrder == model.HeightDesc

	var cursor *wireid.Cursor
	if q.Cursor != "" {
		var c, err = wireid.ParseCursor(q.Cursor)
		if err != nil {
			return Page{}, errors.WithMessage(ErrCursorInvalid, err.Error())
		}
		cursor = &c
	}

	var txRows, err = p.searchSource(ctx, ageStable, sourceTxs, q, cursor, desc)
	if err != nil {
		return Page{}, err
	}
	var newTxRows, err2 = p.searchSource(ctx, ageNew, sourceTxs, q, cursor, desc)
	if err2 != nil {
		return Page{}, err2
	}
	var itemRows, err3 = p.searchSource(ctx, ageStable, sourceItems, q, cursor, desc)
	if err3 != nil {
		return Page{}, err3
	}
	var newItemRows, err4 = p.searchSource(ctx, ageNew, sourceItems, q, cursor, desc)
	if err4 != nil {
		return Page{}, err4
	}

	var all = append(append(append(txRows, newTxRows...), itemRows...), newItemRows...)
	sortNodes(all, desc)

	var hasNext = len(all) > q.PageSize
	if hasNext {
		all = all[:q.PageSize]
	}

	var edges = make([]Edge, len(all))
	for i, n := range all {
		edges[i] = Edge{Cursor: wireid.EncodeCursor(cursorFromNode(n)), Node: n}
	}
	return Page{HasNextPage: hasNext, Edges: edges}, nil
}

func (p *Planner) searchSource(ctx context.Context, a age, k sourceKind, q SearchQuery, cursor *wireid.Cursor, desc bool) ([]Node, error) {
	var tagTable, ownerCol string
	switch {
	case k == sourceTxs && a == ageStable:
		tagTable, ownerCol = "stable_transaction_tags", "transaction_id"
	case k == sourceTxs && a == ageNew:
		tagTable, ownerCol = "new_transaction_tags", "transaction_id"
	case k == sourceItems && a == ageStable:
		tagTable, ownerCol = "bundles.stable_data_item_tags", "data_item_id"
	default:
		tagTable, ownerCol = "bundles.new_data_item_tags", "data_item_id"
	}
	var valueTable = "tag_values"
	if k == sourceItems {
		valueTable = "bundles.tag_values"
	}

	var cursorPred, cursorArgs = cursorPredicate(cursor, a, desc)
	var base, baseArgs = sourceSQL(a, k, TransactionsQuery{MinHeight: q.MinHeight, MaxHeight: q.MaxHeight}, cursorPred, cursorArgs)

	var text string
	var args []interface{}
	switch q.Mode {
	case model.MatchWildcard:
		text = fmt.Sprintf(
			"SELECT s.* FROM (%s) s JOIN %s tg ON tg.%s = s.id AND tg.tag_name_hash = ? "+
				"JOIN %s tv ON tv.hash = tg.tag_value_hash AND tv.value GLOB ? "+
				"ORDER BY %s LIMIT ?",
			base, tagTable, ownerCol, valueTable, orderByClause(desc))
		args = append(baseArgs, hashutil.TagHash(q.TagName), globPattern(q.Values[0]))

	case model.MatchFuzzyOr:
		var placeholders = make([]string, len(q.Values))
		var hashArgs = make([]interface{}, len(q.Values))
		for i, v := range q.Values {
			placeholders[i] = "?"
			hashArgs[i] = hashutil.TagHash(v)
		}
		text = fmt.Sprintf(
			"SELECT s.* FROM (%s) s JOIN %s tg ON tg.%s = s.id AND tg.tag_name_hash = ? AND tg.tag_value_hash IN (%s) "+
				"ORDER BY %s LIMIT ?",
			base, tagTable, ownerCol, strings.Join(placeholders, ", "), orderByClause(desc))
		args = append(baseArgs, hashutil.TagHash(q.TagName))
		args = append(args, hashArgs...)

	case model.MatchFuzzyAnd:
		var existsClauses = make([]string, len(q.Values))
		var existsArgs []interface{}
		for i, v := range q.Values {
			existsClauses[i] = fmt.Sprintf(
				"EXISTS (SELECT 1 FROM %s e%d WHERE e%d.%s = s.id AND e%d.tag_name_hash = ? AND e%d.tag_value_hash = ?)",
				tagTable, i, i, ownerCol, i, i)
			existsArgs = append(existsArgs, hashutil.TagHash(q.TagName), hashutil.TagHash(v))
		}
		text = fmt.Sprintf("SELECT s.* FROM (%s) s WHERE %s ORDER BY %s LIMIT ?",
			base, strings.Join(existsClauses, " AND "), orderByClause(desc))
		args = append(baseArgs, existsArgs...)

	default:
		return nil, errors.Errorf("gqlquery: unsupported search mode %d", q.Mode)
	}
	args = append(args, q.PageSize+1)

	var started = time.Now()
	var rows, err = p.core.DB.QueryContext(ctx, text, args...)
	if err != nil {
		queryErrorsTotal.WithLabelValues(sourceLabel(k), ageLabel(a)).Inc()
		return nil, errors.WithMessage(err, "querying tag search source")
	}
	defer rows.Close()

	var out []Node
	for rows.Next() {
		var n, err = scanNode(rows)
		if err != nil {
			queryErrorsTotal.WithLabelValues(sourceLabel(k), ageLabel(a)).Inc()
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		queryErrorsTotal.WithLabelValues(sourceLabel(k), ageLabel(a)).Inc()
		return nil, err
	}
	queryDurationSeconds.WithLabelValues(sourceLabel(k), ageLabel(a)).Observe(time.Since(started).Seconds())
	queryRowsReturned.WithLabelValues(sourceLabel(k), ageLabel(a)).Observe(float64(len(out)))
	return out, nil
}

// globPattern wraps v as a substring GLOB pattern. GLOB (not LIKE) is
// spec.md's chosen WILDCARD operator; unlike LIKE, it is case-sensitive and
// uses `*`/`?` rather than `%`/`_`.
func globPattern(v []byte) string {
	return "*" + string(v) + "*"
}

func sortNodes(nodes []Node, desc bool) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return lessNode(nodes[i], nodes[j], desc)
	})
}

func lessNode(a, b Node, desc bool) bool {
	var ah, bh int64 = -1, -1
	var aNull, bNull = a.Height == nil, b.Height == nil
	if a.Height != nil {
		ah = *a.Height
	}
	if b.Height != nil {
		bh = *b.Height
	}
	if aNull != bNull {
		if desc {
			return aNull
		}
		return bNull
	}
	if ah != bh {
		if desc {
			return ah > bh
		}
		return ah < bh
	}
	if a.IndexedAt != b.IndexedAt {
		if desc {
			return a.IndexedAt > b.IndexedAt
		}
		return a.IndexedAt < b.IndexedAt
	}
	return string(a.ID) < string(b.ID)
}
