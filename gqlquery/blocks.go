package gqlquery

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"go.chainindex.dev/core/model"
	"go.chainindex.dev/core/wireid"
)

// BlockNode is the uniform projection of a block row, analogous to Node
// but over the simpler (height, id) ordering plane blocks use -- blocks
// have no bundled/data-item counterpart and no tag filter, per spec.md
// §4.4 ("Analogous getGqlBlocks").
type BlockNode struct {
	Height         int64
	IndepHash      []byte
	PreviousBlock  []byte
	Timestamp      int64
	Diff           string
	CumulativeDiff string
	TxCount        int64
}

// BlocksQuery is the input of GetBlocks.
type BlocksQuery struct {
	PageSize  int
	Cursor    string
	SortOrder model.SortOrder
	IDs       [][]byte
	MinHeight *int64
	MaxHeight *int64
}

// BlockEdge pairs a BlockNode with the cursor of that same row.
type BlockEdge struct {
	Cursor string
	Node   BlockNode
}

// BlockPage is the result of GetBlocks.
type BlockPage struct {
	HasNextPage bool
	Edges       []BlockEdge
}

// blockCursorOf carries just the height for a block page's continuation,
// encoded through the same opaque wireid.Cursor envelope as transaction
// pages (with every other field left nil) so callers use one cursor type.
func blockCursorOf(height int64) wireid.Cursor {
	var h = height
	return wireid.Cursor{Height: &h}
}

// GetBlocks implements spec.md §4.4's getGqlBlocks: a paginated query over
// blocks ordered by height, with no tag joins and no data-item union. Like
// GetTransactions it queries a primary age tier (new_blocks for descending,
// stable_blocks for ascending) and then the other tier.
func (p *Planner) GetBlocks(ctx context.Context, q BlocksQuery) (BlockPage, error) {
	if q.PageSize <= 0 {
		q.PageSize = 100
	}
	var desc = q.SortOrder == model.HeightDesc

	var cursor *wireid.Cursor
	if q.Cursor != "" {
		var c, perr = wireid.ParseCursor(q.Cursor)
		if perr != nil {
			return BlockPage{}, errors.WithMessage(ErrCursorInvalid, perr.Error())
		}
		cursor = &c
	}

	// Height-descending walks new blocks (the highest heights) down toward
	// stable; height-ascending walks stable blocks up toward new, matching
	// GetTransactions' primary/secondary age-tier split.
	var primaryAge, secondaryAge age
	if desc {
		primaryAge, secondaryAge = ageNew, ageStable
	} else {
		primaryAge, secondaryAge = ageStable, ageNew
	}

	var primaryMax = q.MaxHeight
	if primaryAge == ageStable {
		if clamped, cerr := p.clampToStableMaxHeight(ctx, q.MaxHeight); cerr != nil {
			return BlockPage{}, cerr
		} else {
			primaryMax = clamped
		}
	}
	var primaryQ = q
	primaryQ.MaxHeight = primaryMax

	var rows, rerr = p.queryBlocks(ctx, primaryAge, primaryQ, cursor, desc, q.PageSize+1)
	if rerr != nil {
		return BlockPage{}, rerr
	}
	if len(rows) < q.PageSize+1 {
		var secondaryQ = q
		if len(rows) > 0 {
			var boundary = rows[len(rows)-1].Height
			if desc {
				var v = boundary - 1
				secondaryQ.MaxHeight = &v
			} else {
				var v = boundary + 1
				secondaryQ.MinHeight = &v
			}
		}
		if secondaryAge == ageStable {
			if clamped, cerr := p.clampToStableMaxHeight(ctx, secondaryQ.MaxHeight); cerr != nil {
				return BlockPage{}, cerr
			} else {
				secondaryQ.MaxHeight = clamped
			}
		}
		var more, merr = p.queryBlocks(ctx, secondaryAge, secondaryQ, cursor, desc, q.PageSize+1-len(rows))
		if merr != nil {
			return BlockPage{}, merr
		}
		rows = append(rows, more...)
	}

	var page BlockPage
	page.HasNextPage = len(rows) > q.PageSize
	if page.HasNextPage {
		rows = rows[:q.PageSize]
	}
	for _, b := range rows {
		page.Edges = append(page.Edges, BlockEdge{Cursor: wireid.EncodeCursor(blockCursorOf(b.Height)), Node: b})
	}
	return page, nil
}

// GetBlock looks up a single block by its independent hash.
func (p *Planner) GetBlock(ctx context.Context, indepHash []byte) (BlockNode, bool, error) {
	var page, err = p.GetBlocks(ctx, BlocksQuery{PageSize: 1, IDs: [][]byte{indepHash}})
	if err != nil {
		return BlockNode{}, false, err
	}
	if len(page.Edges) == 0 {
		return BlockNode{}, false, nil
	}
	return page.Edges[0].Node, true, nil
}

func (p *Planner) queryBlocks(ctx context.Context, a age, q BlocksQuery, cursor *wireid.Cursor, desc bool, limit int) ([]BlockNode, error) {
	var table = "new_blocks"
	if a == ageStable {
		table = "stable_blocks"
	}

	var where []string
	var args []interface{}
	if len(q.IDs) > 0 {
		where = append(where, inClause("indep_hash", len(q.IDs)))
		args = append(args, bytesToArgs(q.IDs)...)
	}
	if q.MinHeight != nil {
		where = append(where, "height >= ?")
		args = append(args, *q.MinHeight)
	}
	if q.MaxHeight != nil {
		where = append(where, "height <= ?")
		args = append(args, *q.MaxHeight)
	}
	if cursor != nil && cursor.Height != nil {
		if desc {
			where = append(where, "height < ?")
		} else {
			where = append(where, "height > ?")
		}
		args = append(args, *cursor.Height)
	}

	var dir = "ASC"
	if desc {
		dir = "DESC"
	}
	var text = fmt.Sprintf("SELECT height, indep_hash, previous_block, block_timestamp, diff, cumulative_diff, tx_count FROM %s", table)
	if len(where) > 0 {
		text += " WHERE " + strings.Join(where, " AND ")
	}
	text += fmt.Sprintf(" ORDER BY height %s LIMIT ?", dir)
	args = append(args, limit)

	var rows, err = p.core.DB.QueryContext(ctx, text, args...)
	if err != nil {
		return nil, errors.WithMessage(err, "querying gql blocks")
	}
	defer rows.Close()

	var out []BlockNode
	for rows.Next() {
		var b BlockNode
		var diff, cumulativeDiff sql.NullString
		if err := rows.Scan(&b.Height, &b.IndepHash, &b.PreviousBlock, &b.Timestamp, &diff, &cumulativeDiff, &b.TxCount); err != nil {
			return nil, errors.WithMessage(err, "scanning gql block")
		}
		b.Diff, b.CumulativeDiff = diff.String, cumulativeDiff.String
		out = append(out, b)
	}
	return out, rows.Err()
}
