package sqlite

import (
	"context"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// TimeoutMetricStore implements store.TimeoutMetricStore against the
// task_metrics table.
type TimeoutMetricStore struct {
	db *DB
}

func NewTimeoutMetricStore(db *DB) *TimeoutMetricStore {
	return &TimeoutMetricStore{db: db}
}

func (s *TimeoutMetricStore) Record(ctx context.Context, m *store.TaskMetricData) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO task_metrics (id, owner_user_id, task_type, tier, duration_ms, iterations, success, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, m.OwnerUserID, m.TaskType, m.Tier, m.DurationMs, m.Iterations, m.Success, m.CreatedAt)
	return err
}

func (s *TimeoutMetricStore) Recent(ctx context.Context, taskType, tier string, sinceMs int64) ([]*store.TaskMetricData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_user_id, task_type, tier, duration_ms, iterations, success, created_at
		FROM task_metrics
		WHERE task_type = ? AND tier = ? AND created_at >= ?
		ORDER BY created_at ASC
	`, taskType, tier, sinceMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.TaskMetricData
	for rows.Next() {
		var m store.TaskMetricData
		if err := rows.Scan(&m.ID, &m.OwnerUserID, &m.TaskType, &m.Tier, &m.DurationMs, &m.Iterations, &m.Success, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
