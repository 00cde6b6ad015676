// Package postgres implements store.Store on PostgreSQL with pgvector.
package postgres

// Schema is the idempotent DDL applied on every New call. All
// statements use IF NOT EXISTS so repeated application is a no-op,
// following the teacher's postgres schema convention.
const Schema = `
CREATE TABLE IF NOT EXISTS memories (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	tier TEXT NOT NULL DEFAULT 'working',
	status TEXT NOT NULL DEFAULT 'active',

	importance_score DOUBLE PRECISION NOT NULL DEFAULT 0.5,
	recency_score DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	relevance_score DOUBLE PRECISION NOT NULL DEFAULT 0.0,

	access_count INTEGER NOT NULL DEFAULT 0,

	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	last_accessed_at TIMESTAMPTZ,
	expires_at TIMESTAMPTZ,

	parent_id TEXT,
	metadata JSONB
);

CREATE INDEX IF NOT EXISTS idx_memories_tier ON memories(tier) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_memories_created_at ON memories(created_at);
CREATE INDEX IF NOT EXISTS idx_memories_parent_id ON memories(parent_id);

ALTER TABLE memories ADD COLUMN IF NOT EXISTS content_tsv tsvector
	GENERATED ALWAYS AS (to_tsvector('english', content)) STORED;
CREATE INDEX IF NOT EXISTS idx_memories_content_tsv ON memories USING GIN(content_tsv);
`

// MigrationPgvector adds the embedding_vec column once the pgvector
// extension is confirmed available. Run separately from Schema because it
// depends on the extension having been created first.
const MigrationPgvector = `
DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM information_schema.columns
		WHERE table_name = 'memories' AND column_name = 'embedding_vec'
	) THEN
		ALTER TABLE memories ADD COLUMN embedding_vec vector;
	END IF;
END $$;
`
