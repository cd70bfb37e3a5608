package schema

// BundlesBootstrap creates every table of the bundles store (data-item
// index, bundle records, filter/format dimension tables), per spec.md §3.
const BundlesBootstrap = `
CREATE TABLE IF NOT EXISTS filters (
	id INTEGER PRIMARY KEY,
	filter TEXT UNIQUE NOT NULL
);
CREATE TABLE IF NOT EXISTS bundle_formats (
	id INTEGER PRIMARY KEY,
	format TEXT UNIQUE NOT NULL
);
CREATE TABLE IF NOT EXISTS new_data_items (
	id BLOB PRIMARY KEY,
	parent_id BLOB NOT NULL,
	root_transaction_id BLOB NOT NULL,
	owner_address BLOB NOT NULL,
	anchor BLOB,
	signature BLOB,
	target BLOB,
	data_offset INTEGER,
	data_size INTEGER,
	tag_count INTEGER,
	content_type TEXT,
	height INTEGER,
	indexed_at INTEGER NOT NULL,
	filter_id INTEGER
);
CREATE INDEX IF NOT EXISTS new_data_items_height_idx ON new_data_items (height);
CREATE INDEX IF NOT EXISTS new_data_items_parent_idx ON new_data_items (parent_id);
CREATE INDEX IF NOT EXISTS new_data_items_root_tx_idx ON new_data_items (root_transaction_id);
CREATE TABLE IF NOT EXISTS stable_data_items (
	id BLOB PRIMARY KEY,
	parent_id BLOB NOT NULL,
	root_transaction_id BLOB NOT NULL,
	owner_address BLOB NOT NULL,
	anchor BLOB,
	signature BLOB,
	target BLOB,
	data_offset INTEGER,
	data_size INTEGER,
	tag_count INTEGER,
	content_type TEXT,
	height INTEGER NOT NULL,
	indexed_at INTEGER NOT NULL,
	filter_id INTEGER,
	block_transaction_index INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS stable_data_items_height_idx ON stable_data_items (height);
CREATE INDEX IF NOT EXISTS stable_data_items_parent_idx ON stable_data_items (parent_id);
CREATE TABLE IF NOT EXISTS new_data_item_tags (
	tag_name_hash BLOB NOT NULL,
	tag_value_hash BLOB NOT NULL,
	data_item_id BLOB NOT NULL,
	tag_index INTEGER NOT NULL,
	indexed_at INTEGER NOT NULL,
	height INTEGER,
	PRIMARY KEY (tag_name_hash, tag_value_hash, data_item_id, tag_index)
);
CREATE INDEX IF NOT EXISTS new_data_item_tags_item_idx ON new_data_item_tags (data_item_id);
CREATE TABLE IF NOT EXISTS stable_data_item_tags (
	tag_name_hash BLOB NOT NULL,
	tag_value_hash BLOB NOT NULL,
	data_item_id BLOB NOT NULL,
	tag_index INTEGER NOT NULL,
	indexed_at INTEGER NOT NULL,
	height INTEGER NOT NULL,
	PRIMARY KEY (tag_name_hash, tag_value_hash, data_item_id, tag_index)
);
CREATE INDEX IF NOT EXISTS stable_data_item_tags_item_id_idx ON stable_data_item_tags (data_item_id, tag_name_hash, tag_value_hash);
CREATE TABLE IF NOT EXISTS bundle_records (
	id BLOB PRIMARY KEY,
	root_transaction_id BLOB NOT NULL,
	format_id INTEGER,
	unbundle_filter_id INTEGER,
	index_filter_id INTEGER,
	data_item_count INTEGER,
	matched_data_item_count INTEGER,
	queued_at INTEGER,
	skipped_at INTEGER,
	unbundled_at INTEGER,
	fully_indexed_at INTEGER
);
CREATE INDEX IF NOT EXISTS bundle_records_skipped_idx ON bundle_records (skipped_at);
CREATE INDEX IF NOT EXISTS bundle_records_fully_indexed_idx ON bundle_records (fully_indexed_at);
CREATE TABLE IF NOT EXISTS wallets (
	address BLOB PRIMARY KEY,
	public_modulus BLOB
);
CREATE TABLE IF NOT EXISTS tag_names (
	hash BLOB PRIMARY KEY,
	name BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS tag_values (
	hash BLOB PRIMARY KEY,
	value BLOB NOT NULL
);
`

// SelectTransactionHeightViaCore must be prepared after the bundles store
// ATTACHes the core store (alias "core"), since it reaches across the
// attach boundary to resolve a data item's height from its root
// transaction's recorded height (spec.md §4.2).
const SelectTransactionHeightViaCore = `
	SELECT height FROM core.new_transactions WHERE id = ?
	UNION ALL
	SELECT height FROM core.stable_transactions WHERE id = ?`

// BundlesStatements are the named prepared statements of the bundles
// store. Names are the domain verbs used by bundleindex.
var BundlesStatements = map[string]string{
	"insertOrIgnoreFilter":  `INSERT OR IGNORE INTO filters (filter) VALUES (?)`,
	"selectFilterId":        `SELECT id FROM filters WHERE filter = ?`,
	"insertOrIgnoreFormat":  `INSERT OR IGNORE INTO bundle_formats (format) VALUES (?)`,
	"selectFormatId":        `SELECT id FROM bundle_formats WHERE format = ?`,
	"insertOrIgnoreWallet":  `INSERT OR IGNORE INTO wallets (address, public_modulus) VALUES (?, ?)`,
	"insertOrIgnoreTagName":  `INSERT OR IGNORE INTO tag_names (hash, name) VALUES (?, ?)`,
	"insertOrIgnoreTagValue": `INSERT OR IGNORE INTO tag_values (hash, value) VALUES (?, ?)`,

	"upsertNewDataItem": `
		INSERT INTO new_data_items (
			id, parent_id, root_transaction_id, owner_address, anchor, signature, target,
			data_offset, data_size, tag_count, content_type, height, indexed_at, filter_id
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			parent_id=excluded.parent_id, root_transaction_id=excluded.root_transaction_id,
			owner_address=excluded.owner_address, anchor=excluded.anchor, signature=excluded.signature,
			target=excluded.target, data_offset=excluded.data_offset, data_size=excluded.data_size,
			tag_count=excluded.tag_count, content_type=excluded.content_type, height=excluded.height,
			filter_id=excluded.filter_id`,

	"upsertNewDataItemTag": `
		INSERT INTO new_data_item_tags (tag_name_hash, tag_value_hash, data_item_id, tag_index, indexed_at, height)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (tag_name_hash, tag_value_hash, data_item_id, tag_index)
		DO UPDATE SET height = excluded.height, indexed_at = excluded.indexed_at`,

	"updateNewDataItemTagsHeight": `UPDATE new_data_item_tags SET height = ? WHERE data_item_id = ?`,

	"upsertBundleRecord": `
		INSERT INTO bundle_records (
			id, root_transaction_id, format_id, unbundle_filter_id, index_filter_id,
			data_item_count, matched_data_item_count, queued_at, skipped_at, unbundled_at, fully_indexed_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			root_transaction_id=excluded.root_transaction_id, format_id=excluded.format_id,
			unbundle_filter_id=excluded.unbundle_filter_id, index_filter_id=excluded.index_filter_id,
			data_item_count=excluded.data_item_count, matched_data_item_count=excluded.matched_data_item_count,
			queued_at=COALESCE(excluded.queued_at, bundle_records.queued_at),
			skipped_at=excluded.skipped_at, unbundled_at=excluded.unbundled_at,
			fully_indexed_at=excluded.fully_indexed_at`,

	"updateBundleFullyIndexedAt": `UPDATE bundle_records SET fully_indexed_at = ? WHERE id = ?`,

	"updateBundleFilterIds": `
		UPDATE bundle_records SET unbundle_filter_id = ?, index_filter_id = ?, fully_indexed_at = NULL
		WHERE id = ?`,

	"clearBundleSkippedAt": `UPDATE bundle_records SET skipped_at = NULL WHERE id = ?`,

	"selectFailedBundleIds": `
		SELECT id FROM bundle_records
		WHERE skipped_at IS NOT NULL AND unbundled_at IS NULL AND fully_indexed_at IS NULL
		  AND skipped_at < ?`,

	// resetToHeight on the bundles store.
	"clearHeightOnNewDataItemsAboveHeight":     `UPDATE new_data_items SET height = NULL WHERE height > ?`,
	"clearHeightOnNewDataItemTagsAboveHeight":  `UPDATE new_data_item_tags SET height = NULL WHERE height > ?`,

	// Stable promotion.
	"insertOrIgnoreStableDataItems": `
		INSERT OR IGNORE INTO stable_data_items
			(id, parent_id, root_transaction_id, owner_address, anchor, signature, target,
			 data_offset, data_size, tag_count, content_type, height, indexed_at, filter_id, block_transaction_index)
		SELECT di.id, di.parent_id, di.root_transaction_id, di.owner_address, di.anchor, di.signature, di.target,
			di.data_offset, di.data_size, di.tag_count, di.content_type, di.height, di.indexed_at, di.filter_id,
			COALESCE((
				SELECT bt.block_transaction_index FROM core.stable_block_transactions bt
				WHERE bt.transaction_id = di.root_transaction_id AND bt.height = di.height
			), 0)
		FROM new_data_items di WHERE di.height IS NOT NULL AND di.height <= ?`,
	"insertOrIgnoreStableDataItemTags": `
		INSERT OR IGNORE INTO stable_data_item_tags
			(tag_name_hash, tag_value_hash, data_item_id, tag_index, indexed_at, height)
		SELECT tag_name_hash, tag_value_hash, data_item_id, tag_index, indexed_at, height
		FROM new_data_item_tags WHERE height IS NOT NULL AND height <= ?`,

	// Garbage collection.
	"deleteStaleNewDataItems":    `DELETE FROM new_data_items WHERE height <= ? OR indexed_at < ?`,
	"deleteStaleNewDataItemTags": `DELETE FROM new_data_item_tags WHERE height <= ? OR indexed_at < ?`,

	"selectLastFullyIndexedAt": `SELECT MAX(fully_indexed_at) FROM bundle_records`,
}
