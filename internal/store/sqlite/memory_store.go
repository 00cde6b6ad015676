package sqlite

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/google/uuid"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/store"
	"github.com/scrypster/arbor/pkg/types"
)

// Store implements store.Store on SQLite. A single open connection
// serializes every read and write (SQLite supports exactly one concurrent
// writer); WAL mode is enabled, matching the teacher's sqlite.MemoryStore
// connection setup.
type Store struct {
	db *sql.DB
}

// New opens dsn (a file path, or ":memory:") and applies the schema.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "open sqlite", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, apperr.Wrap(apperr.KindBackend, "configure sqlite: "+pragma, err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindBackend, "apply schema", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

const selectColumns = `
	id, content, tier, status,
	importance_score, recency_score, relevance_score,
	access_count, created_at, updated_at, last_accessed_at, expires_at,
	parent_id, metadata
`

type scanTarget interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanTarget) (*types.Memory, error) {
	return scanMemoryPlusExtra(row)
}

// scanMemoryPlusExtra scans the canonical selectColumns list followed by any
// extra trailing columns (e.g. an FTS rank) into the caller's destinations.
func scanMemoryPlusExtra(row scanTarget, extra ...interface{}) (*types.Memory, error) {
	var m types.Memory
	var createdAt, updatedAt string
	var lastAccessed, expiresAt sql.NullString
	var parentID sql.NullString
	var metadataRaw sql.NullString

	dest := []interface{}{
		&m.ID, &m.Content, &m.Tier, &m.Status,
		&m.ImportanceScore, &m.RecencyScore, &m.RelevanceScore,
		&m.AccessCount, &createdAt, &updatedAt, &lastAccessed, &expiresAt,
		&parentID, &metadataRaw,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	m.CreatedAt = parseTime(createdAt)
	m.UpdatedAt = parseTime(updatedAt)
	if lastAccessed.Valid {
		t := parseTime(lastAccessed.String)
		m.LastAccessedAt = &t
	}
	if expiresAt.Valid {
		t := parseTime(expiresAt.String)
		m.ExpiresAt = &t
	}
	if parentID.Valid {
		m.ParentID = parentID.String
	}
	if metadataRaw.Valid && metadataRaw.String != "" {
		if err := json.Unmarshal([]byte(metadataRaw.String), &m.Metadata); err != nil {
			return nil, fmt.Errorf("sqlite: unmarshal metadata: %w", err)
		}
	}
	return &m, nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse("2006-01-02 15:04:05.999999999-07:00", s)
		if err != nil {
			return time.Time{}
		}
	}
	return t
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339Nano), Valid: true}
}

func (s *Store) Create(ctx context.Context, req types.CreateRequest) (*types.Memory, error) {
	if req.Content == "" {
		return nil, apperr.New(apperr.KindInvalid, "content is required")
	}

	tier := req.Tier
	if tier == "" {
		tier = types.TierWorking
	}
	if !tier.Valid() {
		return nil, apperr.New(apperr.KindInvalid, "invalid tier")
	}

	importance := 0.5
	if req.ImportanceScore != nil {
		importance = *req.ImportanceScore
	}

	now := time.Now()
	m := &types.Memory{
		ID:              uuid.NewString(),
		Content:         req.Content,
		Embedding:       req.Embedding,
		Tier:            tier,
		Status:          types.StatusActive,
		ImportanceScore: importance,
		RecencyScore:    1.0,
		CreatedAt:       now,
		UpdatedAt:       now,
		ParentID:        req.ParentID,
		Metadata:        req.Metadata,
		ExpiresAt:       req.ExpiresAt,
	}

	metadataJSON, err := marshalMetadata(m.Metadata)
	if err != nil {
		return nil, err
	}

	const q = `
		INSERT INTO memories (
			id, content, tier, status, importance_score, recency_score,
			relevance_score, access_count, created_at, updated_at,
			last_accessed_at, expires_at, parent_id, metadata
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
	`
	_, err = s.db.ExecContext(ctx, q,
		m.ID, m.Content, string(m.Tier), string(m.Status),
		m.ImportanceScore, m.RecencyScore, m.RelevanceScore, m.AccessCount,
		m.CreatedAt.Format(time.RFC3339Nano), m.UpdatedAt.Format(time.RFC3339Nano),
		nullTime(m.LastAccessedAt), nullTime(m.ExpiresAt), nullString(m.ParentID), metadataJSON,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "insert memory", err)
	}

	if len(req.Embedding) > 0 {
		if err := s.storeEmbedding(ctx, m.ID, req.Embedding); err != nil {
			return nil, apperr.Wrap(apperr.KindBackend, "store embedding", err)
		}
	}

	return m, nil
}

func marshalMetadata(md map[string]any) (sql.NullString, error) {
	if md == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return sql.NullString{}, apperr.Wrap(apperr.KindInvalid, "marshal metadata", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM memories WHERE id = ?`, id)
	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "get memory", err)
	}
	if m.EffectiveStatus(time.Now()) == types.StatusDeleted {
		return nil, apperr.ErrNotFound
	}
	return m, nil
}

func (s *Store) List(ctx context.Context, opts store.ListOptions) (*store.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	where := `status = 'active'`
	var args []interface{}
	if !opts.IncludeDeleted {
		if opts.Tier != "" {
			where += " AND tier = ?"
			args = append(args, string(opts.Tier))
		}
		if opts.ParentID != "" {
			where += " AND parent_id = ?"
			args = append(args, opts.ParentID)
		}
		if !opts.CreatedAfter.IsZero() {
			where += " AND created_at > ?"
			args = append(args, opts.CreatedAfter.Format(time.RFC3339Nano))
		}
		if !opts.CreatedBefore.IsZero() {
			where += " AND created_at < ?"
			args = append(args, opts.CreatedBefore.Format(time.RFC3339Nano))
		}
		if opts.MinImportance > 0 {
			where += " AND importance_score >= ?"
			args = append(args, opts.MinImportance)
		}
	} else {
		where = "1=1"
	}

	q := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY %s %s LIMIT ? OFFSET ?`,
		selectColumns, where, opts.SortBy, opts.SortOrder)
	queryArgs := append(append([]interface{}{}, args...), opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, q, queryArgs...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "list memories", err)
	}
	defer rows.Close()

	var items []types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindBackend, "scan memory row", err)
		}
		items = append(items, *m)
	}

	var total int
	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM memories WHERE %s`, where)
	if err := s.db.QueryRowContext(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "count memories", err)
	}

	return &store.PaginatedResult[types.Memory]{
		Items:    items,
		Total:    total,
		Page:     opts.Page,
		PageSize: opts.Limit,
		HasMore:  opts.Offset()+len(items) < total,
	}, nil
}

func (s *Store) Update(ctx context.Context, id string, patch types.UpdatePatch) (*types.Memory, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.Content != nil {
		existing.Content = *patch.Content
	}
	if patch.EmbeddingSet {
		existing.Embedding = patch.Embedding
	}
	if patch.Tier != nil {
		if !existing.Tier.CanTransition(*patch.Tier) {
			return nil, apperr.New(apperr.KindInvalid, "illegal tier transition")
		}
		existing.Tier = *patch.Tier
	}
	if patch.ImportanceScore != nil {
		existing.ImportanceScore = *patch.ImportanceScore
	}
	if patch.MetadataSet {
		existing.Metadata = patch.Metadata
	}
	if patch.ExpiresAtSet {
		existing.ExpiresAt = patch.ExpiresAt
	}
	existing.UpdatedAt = time.Now()

	metadataJSON, err := marshalMetadata(existing.Metadata)
	if err != nil {
		return nil, err
	}

	const q = `
		UPDATE memories SET content=?, tier=?, importance_score=?,
			metadata=?, expires_at=?, updated_at=?
		WHERE id=?
	`
	if _, err := s.db.ExecContext(ctx, q,
		existing.Content, string(existing.Tier), existing.ImportanceScore,
		metadataJSON, nullTime(existing.ExpiresAt), existing.UpdatedAt.Format(time.RFC3339Nano), id,
	); err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "update memory", err)
	}

	if patch.EmbeddingSet {
		if err := s.storeEmbedding(ctx, id, existing.Embedding); err != nil {
			return nil, apperr.Wrap(apperr.KindBackend, "update embedding", err)
		}
	}

	return existing, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET status='deleted', updated_at=? WHERE id=? AND status='active'`,
		time.Now().Format(time.RFC3339Nano), id)
	if err != nil {
		return apperr.Wrap(apperr.KindBackend, "delete memory", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *Store) Restore(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET status='active', updated_at=? WHERE id=? AND status='deleted'`,
		time.Now().Format(time.RFC3339Nano), id)
	if err != nil {
		return apperr.Wrap(apperr.KindBackend, "restore memory", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *Store) SetTier(ctx context.Context, id string, tier types.Tier) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !m.Tier.CanTransition(tier) {
		return apperr.New(apperr.KindInvalid, fmt.Sprintf("cannot transition from %s to %s", m.Tier, tier))
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE memories SET tier=?, updated_at=? WHERE id=?`,
		string(tier), time.Now().Format(time.RFC3339Nano), id); err != nil {
		return apperr.Wrap(apperr.KindBackend, "set tier", err)
	}
	return nil
}

func (s *Store) RecordAccess(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at=? WHERE id=? AND status='active'`,
		now.Format(time.RFC3339Nano), id)
	if err != nil {
		return apperr.Wrap(apperr.KindBackend, "record access", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

func (s *Store) ListByTier(ctx context.Context, tier types.Tier) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM memories WHERE status='active' AND tier=?`, string(tier))
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "list by tier", err)
	}
	defer rows.Close()

	var out []*types.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindBackend, "scan memory row", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// serializeEmbedding packs a []float32 into a little-endian byte blob,
// matching the teacher's sqlite embedding storage convention.
func serializeEmbedding(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeEmbedding(blob []byte, dim int) ([]float32, error) {
	if len(blob) != dim*4 {
		return nil, fmt.Errorf("sqlite: embedding blob length %d does not match dimension %d", len(blob), dim)
	}
	out := make([]float32, dim)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return out, nil
}

func (s *Store) storeEmbedding(ctx context.Context, memoryID string, vec []float32) error {
	if len(vec) == 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM embeddings WHERE memory_id = ?`, memoryID)
		return err
	}
	blob := serializeEmbedding(vec)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO embeddings (memory_id, embedding, dimension) VALUES (?,?,?)
		ON CONFLICT(memory_id) DO UPDATE SET embedding=excluded.embedding, dimension=excluded.dimension
	`, memoryID, blob, len(vec))
	return err
}
