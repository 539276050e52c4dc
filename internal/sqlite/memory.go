package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// MemoryStore implements store.MemoryStore against episodic_memory and its
// episodic_memory_fts external-content FTS5 index.
type MemoryStore struct {
	db *DB
}

func NewMemoryStore(db *DB) *MemoryStore {
	return &MemoryStore{db: db}
}

const episodicCols = `id, owner_user_id, event_type, content, outcome, importance, access_count, created_at, last_accessed_at`

func scanEpisodic(row interface{ Scan(dest ...any) error }) (*store.EpisodicRecordData, error) {
	var r store.EpisodicRecordData
	err := row.Scan(&r.ID, &r.OwnerUserID, &r.EventType, &r.Content, &r.Outcome, &r.Importance, &r.AccessCount, &r.CreatedAt, &r.LastAccessedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("memory record not found")
		}
		return nil, err
	}
	return &r, nil
}

func (s *MemoryStore) RecordEvent(ctx context.Context, r *store.EpisodicRecordData) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episodic_memory (`+episodicCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.OwnerUserID, r.EventType, r.Content, r.Outcome, r.Importance, r.AccessCount, r.CreatedAt, r.LastAccessedAt)
	return err
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*store.EpisodicRecordData, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+episodicCols+` FROM episodic_memory WHERE id = ?`, id)
	return scanEpisodic(row)
}

// Search runs the FTS5 MATCH query and returns hits ordered by bm25 rank,
// best first, with Score = -bm25 (higher = more relevant); callers blend in
// recency/importance themselves.
func (s *MemoryStore) Search(ctx context.Context, ownerUserID, query string, limit int) ([]store.MemorySearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.owner_user_id, m.event_type, m.content, m.outcome, m.importance, m.access_count, m.created_at, m.last_accessed_at,
			bm25(episodic_memory_fts) AS rank
		FROM episodic_memory_fts
		JOIN episodic_memory m ON m.rowid = episodic_memory_fts.rowid
		WHERE episodic_memory_fts MATCH ? AND m.owner_user_id = ?
		ORDER BY rank
		LIMIT ?
	`, query, ownerUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.MemorySearchHit
	for rows.Next() {
		var r store.EpisodicRecordData
		var rank float64
		if err := rows.Scan(&r.ID, &r.OwnerUserID, &r.EventType, &r.Content, &r.Outcome, &r.Importance, &r.AccessCount, &r.CreatedAt, &r.LastAccessedAt, &rank); err != nil {
			return nil, err
		}
		// bm25 is negative-is-better in sqlite; invert so higher Score is better.
		out = append(out, store.MemorySearchHit{Record: &r, Score: -rank})
	}
	return out, rows.Err()
}

func (s *MemoryStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*store.EpisodicRecordData, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+episodicCols+` FROM episodic_memory WHERE owner_user_id = ? ORDER BY created_at DESC`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.EpisodicRecordData
	for rows.Next() {
		var r store.EpisodicRecordData
		if err := rows.Scan(&r.ID, &r.OwnerUserID, &r.EventType, &r.Content, &r.Outcome, &r.Importance, &r.AccessCount, &r.CreatedAt, &r.LastAccessedAt); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *MemoryStore) Reinforce(ctx context.Context, id string, lastAccessedAt int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE episodic_memory SET access_count = access_count + 1, last_accessed_at = ? WHERE id = ?`, lastAccessedAt, id)
	return err
}

func (s *MemoryStore) Update(ctx context.Context, r *store.EpisodicRecordData) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE episodic_memory SET content=?, outcome=?, importance=?, access_count=?, last_accessed_at=?
		WHERE id = ?
	`, r.Content, r.Outcome, r.Importance, r.AccessCount, r.LastAccessedAt, r.ID)
	return err
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM episodic_memory WHERE id = ?`, id)
	return err
}

// Merge folds removeIDs into keepID: removed records are deleted and keepID's
// access_count/importance are updated to the caller-computed blended values.
func (s *MemoryStore) Merge(ctx context.Context, keepID string, removeIDs []string, accessCount int, importance float64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`UPDATE episodic_memory SET access_count=?, importance=? WHERE id=?`, accessCount, importance, keepID); err != nil {
		return err
	}
	for _, id := range removeIDs {
		if id == keepID {
			continue
		}
		if _, err := tx.Exec(`DELETE FROM episodic_memory WHERE id=?`, id); err != nil {
			return err
		}
	}
	return tx.Commit()
}
