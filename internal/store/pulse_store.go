package store

import "context"

// PulseJobData is a persisted Pulse Scheduler job record, tracking only the
// scheduling bookkeeping — the handler itself is registered in-process at
// startup.
type PulseJobData struct {
	ID         string
	Schedule   string // "<N><m|h|d>" interval or a cron expression
	RunOnStart bool
	LastRunAt  int64
	LastError  string
}

// PulseStore persists Pulse Scheduler job bookkeeping across restarts.
type PulseStore interface {
	Upsert(ctx context.Context, j *PulseJobData) error
	Get(ctx context.Context, id string) (*PulseJobData, error)
	List(ctx context.Context) ([]*PulseJobData, error)
	RecordRun(ctx context.Context, id string, ranAt int64, errMsg string) error
}
