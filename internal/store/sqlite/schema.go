// Package sqlite implements store.Store on modernc.org/sqlite, the
// pure-Go embedded fallback backend for single-process deployments.
package sqlite

const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	tier TEXT NOT NULL DEFAULT 'working',
	status TEXT NOT NULL DEFAULT 'active',

	importance_score REAL NOT NULL DEFAULT 0.5,
	recency_score REAL NOT NULL DEFAULT 1.0,
	relevance_score REAL NOT NULL DEFAULT 0.0,

	access_count INTEGER NOT NULL DEFAULT 0,

	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	last_accessed_at DATETIME,
	expires_at DATETIME,

	parent_id TEXT,
	metadata TEXT
);

CREATE INDEX IF NOT EXISTS idx_memories_tier ON memories(tier);
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_parent_id ON memories(parent_id);

CREATE TABLE IF NOT EXISTS embeddings (
	memory_id TEXT PRIMARY KEY REFERENCES memories(id) ON DELETE CASCADE,
	embedding BLOB NOT NULL,
	dimension INTEGER NOT NULL
);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	id UNINDEXED, content, content='memories', content_rowid='rowid'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, id, content) VALUES (new.rowid, new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE OF content ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, id, content) VALUES('delete', old.rowid, old.id, old.content);
	INSERT INTO memories_fts(rowid, id, content) VALUES (new.rowid, new.id, new.content);
END;

CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, id, content) VALUES('delete', old.rowid, old.id, old.content);
END;
`
