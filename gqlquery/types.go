// Package gqlquery implements the cursor-paginated, tag-filtered query
// planner of spec.md §4.4: it merges the four sources (stable/new
// transactions and data items) under one total ordering, applies tag joins
// in selectivity order, and re-encodes the continuation cursor.
//
// No example repo in the pack implements anything like this; the planner is
// built by hand in the teacher's SQL-as-string-constants idiom
// (schema/core.go, schema/bundles.go), except that here the statement text
// is assembled per-request with strings.Builder rather than loaded once at
// boot, since the shape of the query depends on which filters the caller
// supplied.
package gqlquery

import "go.chainindex.dev/core/model"

// TagFilter is one `tags[]` entry of spec.md §4.4: a tag name and the set
// of values a row must carry at least one of.
type TagFilter struct {
	Name   []byte
	Values [][]byte
}

// BundledIn captures the three-state `bundledIn` filter of spec.md §4.4:
// a nil *BundledIn means the filter was absent (both txs and items are
// queried); Null=true means it was explicitly null (only bare txs); a
// non-nil, Null=false value restricts to items whose parent is one of IDs.
type BundledIn struct {
	Null bool
	IDs  [][]byte
}

// TransactionsQuery is the input of GetTransactions, spec.md §4.4.
type TransactionsQuery struct {
	PageSize   int
	Cursor     string
	SortOrder  model.SortOrder
	IDs        [][]byte
	Recipients [][]byte
	Owners     [][]byte
	MinHeight  *int64
	MaxHeight  *int64
	BundledIn  *BundledIn
	Tags       []TagFilter
}

// Node is the uniform projection of a row from any of the four sources,
// spec.md §4.4 ("This uniform projection lets the planner UNION and sort
// across sources").
type Node struct {
	Height                *int64
	BlockTransactionIndex *int64
	DataItemID            []byte // 0x00 for bare transactions
	IndexedAt             int64
	ID                    []byte
	Anchor                []byte
	Signature             []byte
	Target                []byte
	Reward                string
	Quantity              string
	DataSize              int64
	ContentType           string
	OwnerAddress          []byte
	PublicModulus         []byte
	BlockIndepHash        []byte
	BlockTimestamp        *int64
	BlockPreviousBlock    []byte
	ParentID              []byte

	IsDataItem bool
	Tags       []model.Tag
}

// Edge pairs a Node with the opaque cursor of that same row; passing it as
// the next query's cursor continues after this row in the requested sort
// order.
type Edge struct {
	Cursor string
	Node   Node
}

// Page is the result of GetTransactions/GetSearchByTags, spec.md §4.4.
type Page struct {
	HasNextPage bool
	Edges       []Edge
}

func isBareTransaction(dataItemID []byte) bool {
	return len(dataItemID) == 1 && dataItemID[0] == 0x00
}
