package schema

// DataBootstrap creates the content-hash index of spec.md §3
// ("Data-index entities (in `data` store)").
const DataBootstrap = `
CREATE TABLE IF NOT EXISTS data_hashes (
	hash BLOB PRIMARY KEY,
	data_size INTEGER,
	original_source_content_type TEXT,
	cached_at INTEGER,
	indexed_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS data_ids (
	id BLOB PRIMARY KEY,
	hash BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS data_ids_hash_idx ON data_ids (hash);
CREATE TABLE IF NOT EXISTS data_roots (
	data_root BLOB PRIMARY KEY,
	hash BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS data_roots_hash_idx ON data_roots (hash);
CREATE TABLE IF NOT EXISTS nested_data_ids (
	id BLOB PRIMARY KEY,
	parent_id BLOB NOT NULL,
	data_offset INTEGER NOT NULL,
	data_size INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS nested_data_hashes (
	hash BLOB PRIMARY KEY,
	parent_id BLOB NOT NULL,
	data_offset INTEGER NOT NULL
);
`

// DataStatements are the named prepared statements of the data store.
var DataStatements = map[string]string{
	"upsertDataHash": `
		INSERT INTO data_hashes (hash, data_size, original_source_content_type, cached_at, indexed_at)
		VALUES (?,?,?,?,?)
		ON CONFLICT (hash) DO UPDATE SET
			data_size=excluded.data_size,
			original_source_content_type=excluded.original_source_content_type,
			cached_at=COALESCE(excluded.cached_at, data_hashes.cached_at)`,

	"insertOrIgnoreDataId":   `INSERT OR IGNORE INTO data_ids (id, hash) VALUES (?, ?)`,
	"insertOrIgnoreDataRoot": `INSERT OR IGNORE INTO data_roots (data_root, hash) VALUES (?, ?)`,

	"insertOrIgnoreNestedDataId":   `INSERT OR IGNORE INTO nested_data_ids (id, parent_id, data_offset, data_size) VALUES (?,?,?,?)`,
	"insertOrIgnoreNestedDataHash": `INSERT OR IGNORE INTO nested_data_hashes (hash, parent_id, data_offset) VALUES (?,?,?)`,

	"selectDataAttributesById": `
		SELECT h.hash, h.data_size, h.original_source_content_type, h.cached_at, h.indexed_at
		FROM data_ids i JOIN data_hashes h ON h.hash = i.hash WHERE i.id = ?`,
	"selectDataAttributesByRoot": `
		SELECT h.hash, h.data_size, h.original_source_content_type, h.cached_at, h.indexed_at
		FROM data_roots r JOIN data_hashes h ON h.hash = r.hash WHERE r.data_root = ?`,
	"selectDataAttributesByHash": `
		SELECT hash, data_size, original_source_content_type, cached_at, indexed_at
		FROM data_hashes WHERE hash = ?`,

	"selectDataParentById": `
		SELECT parent_id, data_offset, data_size FROM nested_data_ids WHERE id = ?`,
	"selectDataParentByHash": `
		SELECT n.parent_id, n.data_offset, h.data_size
		FROM nested_data_hashes n JOIN data_hashes h ON h.hash = n.hash WHERE n.hash = ?`,
}
