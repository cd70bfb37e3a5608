// Package schema holds the named, per-store SQL fragments loaded once at
// worker boot (spec.md §4.1, "a schema-level repository of SQL
// fragments... statement names are domain verbs"). Each store's bootstrap
// DDL and statement map live in their own file: core.go, bundles.go,
// data.go, moderation.go.
package schema

// CoreBootstrap creates every table of the core store (chain + tx index)
// if it does not already exist, per spec.md §3/§4.2. new_* tables carry
// recent, possibly-forked content; stable_* tables carry the promoted,
// final prefix.
const CoreBootstrap = `
CREATE TABLE IF NOT EXISTS new_blocks (
	height INTEGER PRIMARY KEY,
	indep_hash BLOB UNIQUE NOT NULL,
	previous_block BLOB,
	nonce BLOB,
	mining_hash BLOB,
	block_timestamp INTEGER NOT NULL,
	diff TEXT,
	cumulative_diff TEXT,
	last_retarget INTEGER,
	reward_addr BLOB,
	reward_pool TEXT,
	block_size INTEGER,
	weave_size INTEGER,
	usd_to_ar_rate_dividend INTEGER,
	usd_to_ar_rate_divisor INTEGER,
	scheduled_usd_to_ar_rate_dividend INTEGER,
	scheduled_usd_to_ar_rate_divisor INTEGER,
	hash_list_merkle BLOB,
	wallet_list_hash BLOB,
	tx_root BLOB,
	tx_count INTEGER,
	missing_tx_count INTEGER
);
CREATE TABLE IF NOT EXISTS stable_blocks (
	height INTEGER PRIMARY KEY,
	indep_hash BLOB UNIQUE NOT NULL,
	previous_block BLOB,
	nonce BLOB,
	mining_hash BLOB,
	block_timestamp INTEGER NOT NULL,
	diff TEXT,
	cumulative_diff TEXT,
	last_retarget INTEGER,
	reward_addr BLOB,
	reward_pool TEXT,
	block_size INTEGER,
	weave_size INTEGER,
	usd_to_ar_rate_dividend INTEGER,
	usd_to_ar_rate_divisor INTEGER,
	scheduled_usd_to_ar_rate_dividend INTEGER,
	scheduled_usd_to_ar_rate_divisor INTEGER,
	hash_list_merkle BLOB,
	wallet_list_hash BLOB,
	tx_root BLOB,
	tx_count INTEGER,
	missing_tx_count INTEGER
);
CREATE TABLE IF NOT EXISTS new_block_transactions (
	height INTEGER NOT NULL,
	transaction_id BLOB NOT NULL,
	block_transaction_index INTEGER NOT NULL,
	PRIMARY KEY (height, transaction_id)
);
CREATE INDEX IF NOT EXISTS new_block_transactions_tx_idx ON new_block_transactions (transaction_id);
CREATE TABLE IF NOT EXISTS stable_block_transactions (
	height INTEGER NOT NULL,
	transaction_id BLOB NOT NULL,
	block_transaction_index INTEGER NOT NULL,
	PRIMARY KEY (height, transaction_id)
);
CREATE INDEX IF NOT EXISTS stable_block_transactions_tx_idx ON stable_block_transactions (transaction_id);
CREATE TABLE IF NOT EXISTS missing_transactions (
	height INTEGER NOT NULL,
	transaction_id BLOB PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS new_transactions (
	id BLOB PRIMARY KEY,
	signature BLOB,
	format INTEGER,
	last_tx BLOB,
	owner_address BLOB NOT NULL,
	target BLOB,
	quantity TEXT,
	reward TEXT,
	data_size INTEGER,
	data_root BLOB,
	tag_count INTEGER,
	content_type TEXT,
	created_at INTEGER,
	indexed_at INTEGER NOT NULL,
	height INTEGER
);
CREATE INDEX IF NOT EXISTS new_transactions_height_idx ON new_transactions (height);
CREATE TABLE IF NOT EXISTS stable_transactions (
	id BLOB PRIMARY KEY,
	signature BLOB,
	format INTEGER,
	last_tx BLOB,
	owner_address BLOB NOT NULL,
	target BLOB,
	quantity TEXT,
	reward TEXT,
	data_size INTEGER,
	data_root BLOB,
	tag_count INTEGER,
	content_type TEXT,
	created_at INTEGER,
	indexed_at INTEGER NOT NULL,
	height INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS stable_transactions_height_idx ON stable_transactions (height);
CREATE TABLE IF NOT EXISTS tag_names (
	hash BLOB PRIMARY KEY,
	name BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS tag_values (
	hash BLOB PRIMARY KEY,
	value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS new_transaction_tags (
	tag_name_hash BLOB NOT NULL,
	tag_value_hash BLOB NOT NULL,
	transaction_id BLOB NOT NULL,
	tag_index INTEGER NOT NULL,
	indexed_at INTEGER NOT NULL,
	height INTEGER,
	PRIMARY KEY (tag_name_hash, tag_value_hash, transaction_id, tag_index)
);
CREATE INDEX IF NOT EXISTS new_transaction_tags_tx_idx ON new_transaction_tags (transaction_id);
CREATE TABLE IF NOT EXISTS stable_transaction_tags (
	tag_name_hash BLOB NOT NULL,
	tag_value_hash BLOB NOT NULL,
	transaction_id BLOB NOT NULL,
	tag_index INTEGER NOT NULL,
	indexed_at INTEGER NOT NULL,
	height INTEGER NOT NULL,
	block_transaction_index INTEGER NOT NULL,
	PRIMARY KEY (tag_name_hash, tag_value_hash, transaction_id, tag_index)
);
CREATE INDEX IF NOT EXISTS stable_transaction_tags_tx_id_idx ON stable_transaction_tags (transaction_id, tag_name_hash, tag_value_hash);
CREATE TABLE IF NOT EXISTS wallets (
	address BLOB PRIMARY KEY,
	public_modulus BLOB
);
CREATE TABLE IF NOT EXISTS tx_offsets (
	id BLOB PRIMARY KEY,
	tx_offset INTEGER NOT NULL,
	tx_size INTEGER NOT NULL
);
`

// PropagateHeightToDataItemsForTx must be prepared after the core store
// ATTACHes the bundles store (alias "bundles"), since it reaches across
// the attach boundary (spec.md §4.1, §4.2 "propagate the block's height
// onto existing data-item rows for that tx").
const PropagateHeightToDataItemsForTx = `UPDATE bundles.new_data_items SET height = ? WHERE root_transaction_id = ?`

// CoreStatements are the named prepared statements of the core store.
// Names are the domain verbs used by coreindex; see spec.md §4.1.
var CoreStatements = map[string]string{
	"insertOrIgnoreNewBlock": `
		INSERT OR IGNORE INTO new_blocks (
			height, indep_hash, previous_block, nonce, mining_hash, block_timestamp,
			diff, cumulative_diff, last_retarget, reward_addr, reward_pool, block_size,
			weave_size, usd_to_ar_rate_dividend, usd_to_ar_rate_divisor,
			scheduled_usd_to_ar_rate_dividend, scheduled_usd_to_ar_rate_divisor,
			hash_list_merkle, wallet_list_hash, tx_root, tx_count, missing_tx_count
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,

	"insertOrIgnoreNewBlockTransaction": `
		INSERT OR IGNORE INTO new_block_transactions (height, transaction_id, block_transaction_index)
		VALUES (?, ?, ?)`,

	"insertMissingTransaction": `
		INSERT OR IGNORE INTO missing_transactions (height, transaction_id) VALUES (?, ?)`,

	"deleteMissingTransaction": `DELETE FROM missing_transactions WHERE transaction_id = ?`,

	"selectMissingTransactionHeight": `SELECT height FROM missing_transactions WHERE transaction_id = ?`,

	"selectMissingTransactionIds": `SELECT transaction_id FROM missing_transactions`,

	"insertOrIgnoreWallet": `INSERT OR IGNORE INTO wallets (address, public_modulus) VALUES (?, ?)`,

	"insertOrIgnoreTagName": `INSERT OR IGNORE INTO tag_names (hash, name) VALUES (?, ?)`,

	"insertOrIgnoreTagValue": `INSERT OR IGNORE INTO tag_values (hash, value) VALUES (?, ?)`,

	"upsertNewTransactionTag": `
		INSERT INTO new_transaction_tags (tag_name_hash, tag_value_hash, transaction_id, tag_index, indexed_at, height)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT (tag_name_hash, tag_value_hash, transaction_id, tag_index)
		DO UPDATE SET height = excluded.height, indexed_at = excluded.indexed_at`,

	"updateNewTransactionTagsHeight": `UPDATE new_transaction_tags SET height = ? WHERE transaction_id = ?`,

	"upsertNewTransaction": `
		INSERT INTO new_transactions (
			id, signature, format, last_tx, owner_address, target, quantity, reward,
			data_size, data_root, tag_count, content_type, created_at, indexed_at, height
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT (id) DO UPDATE SET
			signature=excluded.signature, format=excluded.format, last_tx=excluded.last_tx,
			owner_address=excluded.owner_address, target=excluded.target, quantity=excluded.quantity,
			reward=excluded.reward, data_size=excluded.data_size, data_root=excluded.data_root,
			tag_count=excluded.tag_count, content_type=excluded.content_type,
			height=excluded.height`,

	"selectMaxNewBlockHeight":    `SELECT MAX(height) FROM new_blocks`,
	"selectMaxStableBlockHeight": `SELECT MAX(height) FROM stable_blocks`,

	"selectMaxStableBlockTimestamp": `SELECT MAX(block_timestamp) FROM stable_blocks`,

	"selectBlockHashByHeightNew":    `SELECT indep_hash FROM new_blocks WHERE height = ?`,
	"selectBlockHashByHeightStable": `SELECT indep_hash FROM stable_blocks WHERE height = ?`,

	"selectTransactionHeight": `
		SELECT height FROM new_transactions WHERE id = ?
		UNION ALL
		SELECT height FROM stable_transactions WHERE id = ?`,

	"selectTransactionDataRoot": `
		SELECT data_root FROM new_transactions WHERE id = ? AND data_root IS NOT NULL
		UNION ALL
		SELECT data_root FROM stable_transactions WHERE id = ? AND data_root IS NOT NULL`,

	"selectTxOffset": `SELECT tx_offset, tx_size FROM tx_offsets WHERE id = ?`,

	// resetToHeight (spec.md §4.2): clear height on new_* rows above h, then
	// truncate new_blocks/new_block_transactions/missing_transactions above h.
	"clearHeightOnNewTransactionsAboveHeight": `UPDATE new_transactions SET height = NULL WHERE height > ?`,
	"clearHeightOnNewTransactionTagsAboveHeight": `UPDATE new_transaction_tags SET height = NULL WHERE height > ?`,
	"deleteNewBlocksAboveHeight":                 `DELETE FROM new_blocks WHERE height > ?`,
	"deleteNewBlockTransactionsAboveHeight":       `DELETE FROM new_block_transactions WHERE height > ?`,
	"deleteMissingTransactionsAboveHeight":        `DELETE FROM missing_transactions WHERE height > ?`,

	// Stable promotion (spec.md §4.2): move rows at or below end_height from
	// new_* to stable_*, idempotently.
	"insertOrIgnoreStableBlocks": `
		INSERT OR IGNORE INTO stable_blocks
		SELECT * FROM new_blocks WHERE height <= ?`,
	"insertOrIgnoreStableBlockTransactions": `
		INSERT OR IGNORE INTO stable_block_transactions
		SELECT * FROM new_block_transactions WHERE height <= ?`,
	"insertOrIgnoreStableTransactions": `
		INSERT OR IGNORE INTO stable_transactions
		SELECT * FROM new_transactions WHERE height IS NOT NULL AND height <= ?`,
	"insertOrIgnoreStableTransactionTags": `
		INSERT OR IGNORE INTO stable_transaction_tags
			(tag_name_hash, tag_value_hash, transaction_id, tag_index, indexed_at, height, block_transaction_index)
		SELECT t.tag_name_hash, t.tag_value_hash, t.transaction_id, t.tag_index, t.indexed_at, t.height,
			COALESCE(bt.block_transaction_index, 0)
		FROM new_transaction_tags t
		LEFT JOIN new_block_transactions bt ON bt.transaction_id = t.transaction_id AND bt.height = t.height
		WHERE t.height IS NOT NULL AND t.height <= ?`,

	// Garbage collection of stale new_* rows after promotion (spec.md §4.2).
	"deleteStaleNewBlocks":          `DELETE FROM new_blocks WHERE height <= ?`,
	"deleteStaleNewBlockTxs":        `DELETE FROM new_block_transactions WHERE height <= ?`,
	"deleteStaleNewTransactions":    `DELETE FROM new_transactions WHERE height <= ? OR indexed_at < ?`,
	"deleteStaleNewTransactionTags": `DELETE FROM new_transaction_tags WHERE height <= ? OR indexed_at < ?`,

	// ChainOffsetIndex.
	"upsertTxOffset": `
		INSERT INTO tx_offsets (id, tx_offset, tx_size) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET tx_offset = excluded.tx_offset, tx_size = excluded.tx_size`,
	"selectTxIdsMissingOffsets": `
		SELECT id FROM new_transactions WHERE id NOT IN (SELECT id FROM tx_offsets)
		UNION
		SELECT id FROM stable_transactions WHERE id NOT IN (SELECT id FROM tx_offsets)`,

	// Debug / health (spec.md §4.7).
	"selectStableBlockCount":            `SELECT COUNT(*) FROM stable_blocks`,
	"selectStableBlockHeightRange":      `SELECT MIN(height), MAX(height) FROM stable_blocks`,
	"selectStableTransactionCount":      `SELECT COUNT(*) FROM stable_transactions`,
	"selectStableBlockTransactionCount": `SELECT COUNT(*) FROM stable_block_transactions`,
	"selectOrphanedStableTxCount": `
		SELECT COUNT(*) FROM stable_transactions st
		WHERE NOT EXISTS (
			SELECT 1 FROM stable_block_transactions bt WHERE bt.transaction_id = st.id
		)`,
}
