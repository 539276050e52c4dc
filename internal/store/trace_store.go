package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type TraceStatus string

const (
	TraceStatusRunning   TraceStatus = "running"
	TraceStatusCompleted TraceStatus = "completed"
	TraceStatusError     TraceStatus = "error"
	TraceStatusCancelled TraceStatus = "cancelled"
)

// TraceData is one recorded agent run: the parent record every LLM-call and
// tool-call span emitted during that run nests under via TraceID.
type TraceData struct {
	ID            uuid.UUID
	RunID         string
	SessionKey    string
	UserID        string
	Channel       string
	AgentID       *uuid.UUID
	ParentTraceID *uuid.UUID // set for delegated/announce runs that share a parent's trace
	Name          string
	Status        TraceStatus
	InputPreview  string
	OutputPreview string
	Error         string
	Tags          []string
	StartTime     time.Time
	EndTime       *time.Time
	CreatedAt     time.Time
}

// TraceStore persists agent-run traces. Implemented by internal/sqlite;
// consumed by internal/tracing.Collector so a run's full span tree can be
// replayed later.
type TraceStore interface {
	CreateTrace(ctx context.Context, trace *TraceData) error
	FinishTrace(ctx context.Context, id uuid.UUID, status TraceStatus, errMsg, outputPreview string) error
}
