package gqlquery

import (
	"context"

	"github.com/pkg/errors"

	"go.chainindex.dev/core/model"
)

// LoadTags lazily fetches n's tag array, selecting the tag table by
// n.DataItemID's presence (a data item's id is non-empty and not the 0x00
// sentinel), per spec.md §4.4 ("decoded by id-per-row via either
// *NewTransactionTags / *NewDataItemTags / *Stable...Tags").
func (p *Planner) LoadTags(ctx context.Context, n Node) ([]model.Tag, error) {
	var nameTable, valueTable = "tag_names", "tag_values"
	var ownerTable, ownerCol string
	if n.IsDataItem {
		if n.Height != nil {
			ownerTable = "bundles.stable_data_item_tags"
		} else {
			ownerTable = "bundles.new_data_item_tags"
		}
		nameTable, valueTable = "bundles.tag_names", "bundles.tag_values"
		ownerCol = "data_item_id"
	} else {
		if n.Height != nil {
			ownerTable = "stable_transaction_tags"
		} else {
			ownerTable = "new_transaction_tags"
		}
		ownerCol = "transaction_id"
	}

	var text = "SELECT tn.name, tv.value FROM " + ownerTable + " t " +
		"JOIN " + nameTable + " tn ON tn.hash = t.tag_name_hash " +
		"JOIN " + valueTable + " tv ON tv.hash = t.tag_value_hash " +
		"WHERE t." + ownerCol + " = ? ORDER BY t.tag_index"

	var rows, err = p.core.DB.QueryContext(ctx, text, n.ID)
	if err != nil {
		return nil, errors.WithMessage(err, "loading tags")
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		var t model.Tag
		if err := rows.Scan(&t.Name, &t.Value); err != nil {
			return nil, errors.WithMessage(err, "scanning tag")
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
