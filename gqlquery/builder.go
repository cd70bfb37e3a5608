package gqlquery

import (
	"fmt"
	"sort"
	"strings"

	"go.chainindex.dev/core/config"
	"go.chainindex.dev/core/hashutil"
	"go.chainindex.dev/core/wireid"
)

type age int

const (
	ageNew age = iota
	ageStable
)

type sourceKind int

const (
	sourceTxs sourceKind = iota
	sourceItems
)

// sourceSQL builds one source's SELECT (without ORDER BY/LIMIT -- those are
// applied once to the outer UNION), given the caller's filters, tag
// filters, and a pre-resolved cursor predicate for this source.
func sourceSQL(a age, k sourceKind, q TransactionsQuery, cursorPred string, cursorArgs []interface{}) (string, []interface{}) {
	var (
		table, alias, ownerCol, idCol, heightJoin, blockTxIndexExpr, anchorExpr, rewardExpr, quantityExpr, parentExpr string
		walletsTable                                                                                                 string
	)

	switch k {
	case sourceTxs:
		alias, ownerCol, idCol = "tx", "tx.owner_address", "tx.id"
		anchorExpr, rewardExpr, quantityExpr, parentExpr = "NULL", "tx.reward", "tx.quantity", "X''"
		if a == ageStable {
			table, walletsTable = "stable_transactions", "wallets"
			heightJoin = "JOIN stable_block_transactions bt ON bt.transaction_id = tx.id AND bt.height = tx.height " +
				"JOIN stable_blocks b ON b.height = tx.height"
			blockTxIndexExpr = "bt.block_transaction_index"
		} else {
			table, walletsTable = "new_transactions", "wallets"
			heightJoin = "LEFT JOIN new_block_transactions bt ON bt.transaction_id = tx.id AND bt.height = tx.height " +
				"LEFT JOIN new_blocks b ON b.height = tx.height"
			blockTxIndexExpr = "bt.block_transaction_index"
		}
	case sourceItems:
		alias, ownerCol, idCol = "di", "di.owner_address", "di.id"
		anchorExpr, rewardExpr, quantityExpr, parentExpr = "di.anchor", "NULL", "NULL", "di.parent_id"
		if a == ageStable {
			table, walletsTable = "bundles.stable_data_items", "bundles.wallets"
			heightJoin = "JOIN stable_blocks b ON b.height = di.height"
			blockTxIndexExpr = "di.block_transaction_index"
		} else {
			table, walletsTable = "bundles.new_data_items", "bundles.wallets"
			heightJoin = "LEFT JOIN new_blocks b ON b.height = di.height " +
				"LEFT JOIN new_block_transactions bt ON bt.transaction_id = di.root_transaction_id AND bt.height = di.height"
			blockTxIndexExpr = "bt.block_transaction_index"
		}
	}

	var dataItemIDExpr = "X'00'"
	if k == sourceItems {
		dataItemIDExpr = "di.id"
	}

	var sb strings.Builder
	var args []interface{}

	sb.WriteString("SELECT ")
	var cols = []string{
		alias + ".height", blockTxIndexExpr, dataItemIDExpr + " AS data_item_id", alias + ".indexed_at", idCol,
		anchorExpr, alias + ".signature", alias + ".target", rewardExpr, quantityExpr,
		alias + ".data_size", alias + ".content_type", ownerCol, "w.public_modulus",
		"b.indep_hash", "b.block_timestamp", "b.previous_block", parentExpr,
	}
	sb.WriteString(strings.Join(cols, ", "))
	fmt.Fprintf(&sb, " FROM %s %s %s LEFT JOIN %s w ON w.address = %s", table, alias, heightJoin, walletsTable, ownerCol)

	var joinIdx int
	var where []string

	var tags = sortedTags(q.Tags)
	var prevAlias = idCol
	for i, tf := range tags {
		var tagTable string
		switch {
		case k == sourceTxs && a == ageStable:
			tagTable = "stable_transaction_tags"
		case k == sourceTxs && a == ageNew:
			tagTable = "new_transaction_tags"
		case k == sourceItems && a == ageStable:
			tagTable = "bundles.stable_data_item_tags"
		default:
			tagTable = "bundles.new_data_item_tags"
		}
		var tagOwnerCol string
		if k == sourceTxs {
			tagOwnerCol = "transaction_id"
		} else {
			tagOwnerCol = "data_item_id"
		}

		var tAlias = fmt.Sprintf("t%d", joinIdx)
		joinIdx++

		var valuePlaceholders = make([]string, len(tf.Values))
		for j := range tf.Values {
			valuePlaceholders[j] = "?"
		}

		if a == ageStable && i > 0 {
			// Cross-joined against an explicit index hint, correlated to the
			// previous tag join's owner column, per spec.md §4.4 and §9.
			var idxName = "stable_transaction_tags_tx_id_idx"
			if k == sourceItems {
				idxName = "stable_data_item_tags_item_id_idx"
			}
			fmt.Fprintf(&sb, " CROSS JOIN %s AS %s INDEXED BY %s ON (%s.%s = %s AND %s.tag_name_hash = ? AND %s.tag_value_hash IN (%s))",
				tagTable, tAlias, idxName, tAlias, tagOwnerCol, prevAlias, tAlias, tAlias, strings.Join(valuePlaceholders, ", "))
		} else {
			fmt.Fprintf(&sb, " JOIN %s AS %s ON (%s.%s = %s AND %s.tag_name_hash = ? AND %s.tag_value_hash IN (%s))",
				tagTable, tAlias, tAlias, tagOwnerCol, idCol, tAlias, tAlias, strings.Join(valuePlaceholders, ", "))
		}
		args = append(args, hashutil.TagHash(tf.Name))
		args = append(args, func() []interface{} {
			var vs = make([]interface{}, len(tf.Values))
			for j, v := range tf.Values {
				vs[j] = hashutil.TagHash(v)
			}
			return vs
		}()...)
		prevAlias = tAlias + "." + tagOwnerCol
	}

	if len(q.IDs) > 0 {
		where = append(where, inClause(idCol, len(q.IDs)))
		args = append(args, bytesToArgs(q.IDs)...)
	}
	if len(q.Recipients) > 0 && k == sourceTxs {
		where = append(where, inClause("tx.target", len(q.Recipients)))
		args = append(args, bytesToArgs(q.Recipients)...)
	}
	if len(q.Owners) > 0 {
		where = append(where, inClause(ownerCol, len(q.Owners)))
		args = append(args, bytesToArgs(q.Owners)...)
	}
	if q.MinHeight != nil {
		where = append(where, alias+".height >= ?")
		args = append(args, *q.MinHeight)
	}
	if q.MaxHeight != nil {
		where = append(where, alias+".height <= ?")
		args = append(args, *q.MaxHeight)
	}
	if k == sourceItems && q.BundledIn != nil && !q.BundledIn.Null && len(q.BundledIn.IDs) > 0 {
		where = append(where, inClause("di.parent_id", len(q.BundledIn.IDs)))
		args = append(args, bytesToArgs(q.BundledIn.IDs)...)
	}
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}

	if cursorPred == "" {
		return sb.String(), args
	}
	// The cursor predicate names projected columns (height, id, ...), which
	// are ambiguous across the joins above, so it filters the projection.
	return "SELECT * FROM (" + sb.String() + ") WHERE " + cursorPred, append(args, cursorArgs...)
}

// sortedTags returns tags with LOW_SELECTIVITY_TAG_NAMES sorted last,
// preserving relative order otherwise, per spec.md §4.4.
func sortedTags(tags []TagFilter) []TagFilter {
	var out = make([]TagFilter, len(tags))
	copy(out, tags)
	sort.SliceStable(out, func(i, j int) bool {
		var li, lj = config.LowSelectivityTagNames[string(out[i].Name)], config.LowSelectivityTagNames[string(out[j].Name)]
		return !li && lj
	})
	return out
}

func inClause(col string, n int) string {
	var ps = make([]string, n)
	for i := range ps {
		ps[i] = "?"
	}
	return col + " IN (" + strings.Join(ps, ", ") + ")"
}

func bytesToArgs(bs [][]byte) []interface{} {
	var out = make([]interface{}, len(bs))
	for i, b := range bs {
		out[i] = b
	}
	return out
}

// orderByClause mirrors the cursor tuple with NULLS FIRST/LAST matching
// sort direction, per spec.md §4.4.
func orderByClause(desc bool) string {
	var dir, nulls = "ASC", "NULLS LAST"
	if desc {
		dir, nulls = "DESC", "NULLS FIRST"
	}
	return fmt.Sprintf(
		"height %s %s, block_transaction_index %s, data_item_id %s, indexed_at %s, id %s",
		dir, nulls, dir, dir, dir, dir,
	)
}

// cursorPredicate builds the WHERE fragment and bind args for continuing
// past c in the given direction, per spec.md §4.4's two branches. Applies
// only to sources of age a -- the null-height branch is only ever relevant
// to "new" sources, since stable rows always carry a height.
func cursorPredicate(c *wireid.Cursor, a age, desc bool) (string, []interface{}) {
	if c == nil {
		return "", nil
	}
	if c.Height == nil {
		if a != ageNew {
			// Stable rows never have a null height; this branch yields none.
			return "1 = 0", nil
		}
		var indexedAt int64
		if c.IndexedAt != nil {
			indexedAt = *c.IndexedAt
		}
		if desc {
			return "height IS NULL AND (indexed_at < ? OR (indexed_at = ? AND id < ?))",
				[]interface{}{indexedAt, indexedAt, c.ID}
		}
		return "height IS NULL AND (indexed_at > ? OR (indexed_at = ? AND id > ?))",
			[]interface{}{indexedAt, indexedAt, c.ID}
	}

	var h = *c.Height
	var dataItemID = c.DataItemID
	if len(dataItemID) == 0 {
		dataItemID = []byte{0x00}
	}

	// block_transaction_index carries no explicit NULLS FIRST/LAST in
	// orderByClause, so it follows SQLite's default: NULL sorts as the
	// smallest value, i.e. first in ASC and last in DESC. A NULL here is
	// not "index zero" -- SaveTx can adopt a transaction's height from a
	// missing_transactions placeholder without a matching
	// new_block_transactions row, leaving it permanently NULL, and
	// coercing that to 0 would misplace it against a real index-0 row at
	// a page boundary.
	var btiLess, btiEq string
	var btiLessArgs, btiEqArgs []interface{}
	if c.BlockTransactionIndex != nil {
		var bti = *c.BlockTransactionIndex
		if desc {
			btiLess = "(block_transaction_index IS NULL OR block_transaction_index < ?)"
		} else {
			btiLess = "block_transaction_index > ?"
		}
		btiLessArgs = []interface{}{bti}
		btiEq = "block_transaction_index = ?"
		btiEqArgs = []interface{}{bti}
	} else if desc {
		// c's own row already occupies the last (NULL) tier; nothing
		// sorts strictly after it on this column alone.
		btiLess = "1 = 0"
		btiEq = "block_transaction_index IS NULL"
	} else {
		btiLess = "block_transaction_index IS NOT NULL"
		btiEq = "block_transaction_index IS NULL"
	}

	var cmp = ">"
	if desc {
		cmp = "<"
	}

	var text = fmt.Sprintf("(height %s ? OR (height = ? AND %s) OR (height = ? AND %s AND data_item_id %s ?))",
		cmp, btiLess, btiEq, cmp)
	var args = []interface{}{h, h}
	args = append(args, btiLessArgs...)
	args = append(args, h)
	args = append(args, btiEqArgs...)
	args = append(args, dataItemID)
	return text, args
}

func cursorFromNode(n Node) wireid.Cursor {
	return wireid.Cursor{
		Height:                n.Height,
		BlockTransactionIndex: n.BlockTransactionIndex,
		DataItemID:            n.DataItemID,
		IndexedAt:             &n.IndexedAt,
		ID:                    n.ID,
	}
}
