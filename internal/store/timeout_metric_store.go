package store

import "context"

// TaskMetricData is a persisted task execution sample feeding the timeout
// estimator.
type TaskMetricData struct {
	ID          string
	OwnerUserID string
	TaskType    string
	Tier        string
	DurationMs  int64
	Iterations  int
	Success     bool
	CreatedAt   int64
}

// TimeoutMetricStore persists TaskMetric rows and serves the percentile
// queries the Timeout Estimator needs.
type TimeoutMetricStore interface {
	Record(ctx context.Context, m *TaskMetricData) error
	// Recent returns samples for (taskType, tier) created after sinceMs,
	// newest last.
	Recent(ctx context.Context, taskType, tier string, sinceMs int64) ([]*TaskMetricData, error)
}
