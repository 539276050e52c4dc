package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// BackgroundTaskStore implements store.BackgroundTaskStore against the
// background_tasks table.
type BackgroundTaskStore struct {
	db *DB
}

func NewBackgroundTaskStore(db *DB) *BackgroundTaskStore {
	return &BackgroundTaskStore{db: db}
}

const backgroundTaskCols = `id, owner_user_id, agent_id, description, status, result, started_at, completed_at, delivered_at`

func scanBackgroundTask(row interface{ Scan(dest ...any) error }) (*store.BackgroundTaskData, error) {
	var t store.BackgroundTaskData
	err := row.Scan(&t.ID, &t.OwnerUserID, &t.AgentID, &t.Description, &t.Status, &t.Result, &t.StartedAt, &t.CompletedAt, &t.DeliveredAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("background task not found")
		}
		return nil, err
	}
	return &t, nil
}

func (s *BackgroundTaskStore) Create(ctx context.Context, t *store.BackgroundTaskData) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO background_tasks (`+backgroundTaskCols+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OwnerUserID, t.AgentID, t.Description, t.Status, t.Result, t.StartedAt, t.CompletedAt, t.DeliveredAt)
	return err
}

func (s *BackgroundTaskStore) Get(ctx context.Context, id string) (*store.BackgroundTaskData, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+backgroundTaskCols+` FROM background_tasks WHERE id = ?`, id)
	return scanBackgroundTask(row)
}

func (s *BackgroundTaskStore) Update(ctx context.Context, t *store.BackgroundTaskData) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE background_tasks SET description=?, status=?, result=?, completed_at=?, delivered_at=?
		WHERE id = ?
	`, t.Description, t.Status, t.Result, t.CompletedAt, t.DeliveredAt, t.ID)
	return err
}

func (s *BackgroundTaskStore) queryList(ctx context.Context, query string, args ...any) ([]*store.BackgroundTaskData, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.BackgroundTaskData
	for rows.Next() {
		var t store.BackgroundTaskData
		if err := rows.Scan(&t.ID, &t.OwnerUserID, &t.AgentID, &t.Description, &t.Status, &t.Result, &t.StartedAt, &t.CompletedAt, &t.DeliveredAt); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *BackgroundTaskStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*store.BackgroundTaskData, error) {
	return s.queryList(ctx, `SELECT `+backgroundTaskCols+` FROM background_tasks WHERE owner_user_id = ? ORDER BY started_at DESC`, ownerUserID)
}

func (s *BackgroundTaskStore) Undelivered(ctx context.Context, ownerUserID string) ([]*store.BackgroundTaskData, error) {
	return s.queryList(ctx, `
		SELECT `+backgroundTaskCols+` FROM background_tasks
		WHERE owner_user_id = ? AND status IN ('completed', 'failed') AND delivered_at = 0
		ORDER BY completed_at ASC
	`, ownerUserID)
}

func (s *BackgroundTaskStore) MarkDelivered(ctx context.Context, id string, deliveredAt int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE background_tasks SET status='delivered', delivered_at=? WHERE id = ?`, deliveredAt, id)
	return err
}

func (s *BackgroundTaskStore) StaleRunning(ctx context.Context, olderThan int64) ([]*store.BackgroundTaskData, error) {
	return s.queryList(ctx, `
		SELECT `+backgroundTaskCols+` FROM background_tasks
		WHERE status = 'running' AND started_at < ?
		ORDER BY started_at ASC
	`, olderThan)
}
