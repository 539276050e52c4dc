package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// PulseStore implements store.PulseStore against the pulse_jobs table.
type PulseStore struct {
	db *DB
}

func NewPulseStore(db *DB) *PulseStore {
	return &PulseStore{db: db}
}

func (s *PulseStore) Upsert(ctx context.Context, j *store.PulseJobData) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pulse_jobs (id, schedule, run_on_start, last_run_at, last_error)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET schedule=excluded.schedule, run_on_start=excluded.run_on_start
	`, j.ID, j.Schedule, j.RunOnStart, j.LastRunAt, j.LastError)
	return err
}

func (s *PulseStore) Get(ctx context.Context, id string) (*store.PulseJobData, error) {
	var j store.PulseJobData
	err := s.db.QueryRowContext(ctx, `SELECT id, schedule, run_on_start, last_run_at, last_error FROM pulse_jobs WHERE id = ?`, id).
		Scan(&j.ID, &j.Schedule, &j.RunOnStart, &j.LastRunAt, &j.LastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("pulse job not found")
		}
		return nil, err
	}
	return &j, nil
}

func (s *PulseStore) List(ctx context.Context) ([]*store.PulseJobData, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, schedule, run_on_start, last_run_at, last_error FROM pulse_jobs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.PulseJobData
	for rows.Next() {
		var j store.PulseJobData
		if err := rows.Scan(&j.ID, &j.Schedule, &j.RunOnStart, &j.LastRunAt, &j.LastError); err != nil {
			return nil, err
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}

func (s *PulseStore) RecordRun(ctx context.Context, id string, ranAt int64, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE pulse_jobs SET last_run_at=?, last_error=? WHERE id=?`, ranAt, errMsg, id)
	return err
}
