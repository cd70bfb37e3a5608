package schema

// ModerationBootstrap creates the moderation store's blocklists, per
// spec.md §3 ("Moderation entities").
const ModerationBootstrap = `
CREATE TABLE IF NOT EXISTS block_sources (
	id INTEGER PRIMARY KEY,
	name TEXT UNIQUE NOT NULL
);
CREATE TABLE IF NOT EXISTS blocked_ids (
	id BLOB PRIMARY KEY,
	source_id INTEGER,
	notes TEXT
);
CREATE TABLE IF NOT EXISTS blocked_hashes (
	hash BLOB PRIMARY KEY,
	source_id INTEGER,
	notes TEXT
);
`

// ModerationStatements are the named prepared statements of the
// moderation store.
var ModerationStatements = map[string]string{
	"insertOrIgnoreBlockSource": `INSERT OR IGNORE INTO block_sources (name) VALUES (?)`,
	"selectBlockSourceId":       `SELECT id FROM block_sources WHERE name = ?`,

	"insertOrIgnoreBlockedId":   `INSERT OR IGNORE INTO blocked_ids (id, source_id, notes) VALUES (?, ?, ?)`,
	"insertOrIgnoreBlockedHash": `INSERT OR IGNORE INTO blocked_hashes (hash, source_id, notes) VALUES (?, ?, ?)`,

	"selectIsIdBlocked":   `SELECT 1 FROM blocked_ids WHERE id = ?`,
	"selectIsHashBlocked": `SELECT 1 FROM blocked_hashes WHERE hash = ?`,
}
