package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // postgres driver

	"github.com/google/uuid"

	"github.com/scrypster/arbor/internal/apperr"
	"github.com/scrypster/arbor/internal/store"
	"github.com/scrypster/arbor/pkg/types"
)

// Store implements store.Store on PostgreSQL, using pgvector for the
// embedding column when the extension is available and falling back to
// recency-ordered results otherwise.
type Store struct {
	db                *sql.DB
	pgvectorAvailable bool
}

// New opens dsn, applies the schema, and probes for the pgvector extension.
func New(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "open postgres", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindBackend, "ping postgres", err)
	}

	s := &Store{db: db}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, apperr.Wrap(apperr.KindBackend, "apply schema", err)
	}

	if _, err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		log.Printf("postgres: pgvector extension not available, vector search disabled: %v", err)
		s.pgvectorAvailable = false
	} else {
		s.pgvectorAvailable = true
		if _, err := db.Exec(MigrationPgvector); err != nil {
			log.Printf("postgres: failed to apply pgvector migration, vector search disabled: %v", err)
			s.pgvectorAvailable = false
		}
	}

	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func nullableTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullableString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

const selectColumns = `
	id, content, tier, status,
	importance_score, recency_score, relevance_score,
	access_count, created_at, updated_at, last_accessed_at, expires_at,
	parent_id, metadata
`

// scanTarget is satisfied by both *sql.Row and *sql.Rows.
type scanTarget interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanTarget) (*types.Memory, error) {
	return scanMemoryPlusExtra(row)
}

// scanMemoryPlusExtra scans the canonical selectColumns list followed by any
// extra trailing columns (e.g. a rank or similarity score) directly into
// the caller-supplied destinations.
func scanMemoryPlusExtra(row scanTarget, extra ...interface{}) (*types.Memory, error) {
	var m types.Memory
	var lastAccessed, expiresAt sql.NullTime
	var parentID sql.NullString
	var metadataRaw []byte

	dest := []interface{}{
		&m.ID, &m.Content, &m.Tier, &m.Status,
		&m.ImportanceScore, &m.RecencyScore, &m.RelevanceScore,
		&m.AccessCount, &m.CreatedAt, &m.UpdatedAt, &lastAccessed, &expiresAt,
		&parentID, &metadataRaw,
	}
	dest = append(dest, extra...)

	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	if lastAccessed.Valid {
		m.LastAccessedAt = &lastAccessed.Time
	}
	if expiresAt.Valid {
		m.ExpiresAt = &expiresAt.Time
	}
	if parentID.Valid {
		m.ParentID = parentID.String
	}
	if len(metadataRaw) > 0 {
		if err := json.Unmarshal(metadataRaw, &m.Metadata); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal metadata: %w", err)
		}
	}
	return &m, nil
}

// Create inserts a new memory, assigning a UUID and defaults per
// spec.md §2 (importance 0.5, tier Working unless specified).
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
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`
	_, err = s.db.ExecContext(ctx, q,
		m.ID, m.Content, string(m.Tier), string(m.Status),
		m.ImportanceScore, m.RecencyScore, m.RelevanceScore, m.AccessCount,
		m.CreatedAt, m.UpdatedAt, nullableTime(m.LastAccessedAt), nullableTime(m.ExpiresAt),
		nullableString(m.ParentID), metadataJSON,
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "insert memory", err)
	}

	if len(req.Embedding) > 0 {
		if err := s.storeEmbedding(ctx, m.ID, req.Embedding); err != nil {
			log.Printf("postgres: store embedding for %s: %v", m.ID, err)
		}
	}

	return m, nil
}

func marshalMetadata(md map[string]any) ([]byte, error) {
	if md == nil {
		return nil, nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInvalid, "marshal metadata", err)
	}
	return b, nil
}

// Get retrieves a memory by ID, returning apperr.KindNotFound when absent
// or soft-deleted/expired.
func (s *Store) Get(ctx context.Context, id string) (*types.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM memories WHERE id = $1`, id)
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

// List returns a page of memories matching opts.
func (s *Store) List(ctx context.Context, opts store.ListOptions) (*store.PaginatedResult[types.Memory], error) {
	opts.Normalize()

	where := `status = 'active'`
	args := []interface{}{}
	argN := 1
	add := func(clause string, val interface{}) {
		where += fmt.Sprintf(" AND %s $%d", clause, argN)
		args = append(args, val)
		argN++
	}
	if opts.Tier != "" {
		add("tier =", string(opts.Tier))
	}
	if opts.ParentID != "" {
		add("parent_id =", opts.ParentID)
	}
	if !opts.CreatedAfter.IsZero() {
		add("created_at >", opts.CreatedAfter)
	}
	if !opts.CreatedBefore.IsZero() {
		add("created_at <", opts.CreatedBefore)
	}
	if opts.MinImportance > 0 {
		add("importance_score >=", opts.MinImportance)
	}
	if opts.IncludeDeleted {
		where = `1=1`
		args = nil
		argN = 1
	}

	q := fmt.Sprintf(`SELECT %s FROM memories WHERE %s ORDER BY %s %s LIMIT $%d OFFSET $%d`,
		selectColumns, where, opts.SortBy, opts.SortOrder, argN, argN+1)
	args = append(args, opts.Limit, opts.Offset())

	rows, err := s.db.QueryContext(ctx, q, args...)
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

	countQ := fmt.Sprintf(`SELECT COUNT(*) FROM memories WHERE %s`, where)
	var total int
	if err := s.db.QueryRowContext(ctx, countQ, args[:argN-1]...).Scan(&total); err != nil {
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

// Update applies a partial patch to an existing memory.
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
		UPDATE memories SET content=$1, tier=$2, importance_score=$3,
			metadata=$4, expires_at=$5, updated_at=$6
		WHERE id=$7
	`
	if _, err := s.db.ExecContext(ctx, q,
		existing.Content, string(existing.Tier), existing.ImportanceScore,
		metadataJSON, nullableTime(existing.ExpiresAt), existing.UpdatedAt, id,
	); err != nil {
		return nil, apperr.Wrap(apperr.KindBackend, "update memory", err)
	}

	if patch.EmbeddingSet {
		if err := s.storeEmbedding(ctx, id, existing.Embedding); err != nil {
			log.Printf("postgres: update embedding for %s: %v", id, err)
		}
	}

	return existing, nil
}

// Delete soft-deletes a memory.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET status='deleted', updated_at=now() WHERE id=$1 AND status='active'`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindBackend, "delete memory", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Restore clears the deleted status on a previously soft-deleted memory.
func (s *Store) Restore(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE memories SET status='active', updated_at=now() WHERE id=$1 AND status='deleted'`, id)
	if err != nil {
		return apperr.Wrap(apperr.KindBackend, "restore memory", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// SetTier performs a validated tier transition.
func (s *Store) SetTier(ctx context.Context, id string, tier types.Tier) error {
	m, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !m.Tier.CanTransition(tier) {
		return apperr.New(apperr.KindInvalid, fmt.Sprintf("cannot transition from %s to %s", m.Tier, tier))
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE memories SET tier=$1, updated_at=now() WHERE id=$2`, string(tier), id); err != nil {
		return apperr.Wrap(apperr.KindBackend, "set tier", err)
	}
	return nil
}

// RecordAccess increments access_count and bumps last_accessed_at.
func (s *Store) RecordAccess(ctx context.Context, id string, now time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed_at=$1 WHERE id=$2 AND status='active'`,
		now, id)
	if err != nil {
		return apperr.Wrap(apperr.KindBackend, "record access", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// ListByTier returns every live memory in tier.
func (s *Store) ListByTier(ctx context.Context, tier types.Tier) ([]*types.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM memories WHERE status='active' AND tier=$1`, string(tier))
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
