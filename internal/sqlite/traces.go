package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/tracing"
)

// TraceStore implements tracing.Store (traces + spans) against the traces
// and spans tables.
type TraceStore struct {
	db *DB
}

func NewTraceStore(db *DB) *TraceStore {
	return &TraceStore{db: db}
}

func (s *TraceStore) CreateTrace(ctx context.Context, t *store.TraceData) error {
	var agentID, parentTraceID string
	if t.AgentID != nil {
		agentID = t.AgentID.String()
	}
	if t.ParentTraceID != nil {
		parentTraceID = t.ParentTraceID.String()
	}
	tags, _ := json.Marshal(t.Tags)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO traces (id, run_id, session_key, owner_user_id, channel, agent_id,
			parent_trace_id, name, status, input_preview, tags, start_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID.String(), t.RunID, t.SessionKey, t.UserID, t.Channel, agentID, parentTraceID,
		t.Name, string(t.Status), t.InputPreview, string(tags), t.StartTime.UnixMilli(), t.CreatedAt.UnixMilli())
	return err
}

func (s *TraceStore) FinishTrace(ctx context.Context, id uuid.UUID, status store.TraceStatus, errMsg, outputPreview string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE traces SET status=?, error=?, output_preview=?, end_time=? WHERE id=?
	`, string(status), errMsg, outputPreview, time.Now().UnixMilli(), id.String())
	return err
}

func (s *TraceStore) InsertSpan(ctx context.Context, span tracing.SpanData) error {
	var parentSpanID, agentID string
	if span.ParentSpanID != nil {
		parentSpanID = span.ParentSpanID.String()
	}
	if span.AgentID != nil {
		agentID = span.AgentID.String()
	}
	var endTime int64
	if span.EndTime != nil {
		endTime = span.EndTime.UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO spans (id, trace_id, parent_span_id, agent_id, span_type, name,
			start_time, end_time, duration_ms, model, provider, tool_name, tool_call_id,
			status, level, error, finish_reason, input_preview, output_preview,
			input_tokens, output_tokens, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, span.ID.String(), span.TraceID.String(), parentSpanID, agentID, string(span.SpanType), span.Name,
		span.StartTime.UnixMilli(), endTime, span.DurationMS, span.Model, span.Provider,
		span.ToolName, span.ToolCallID, string(span.Status), string(span.Level), span.Error,
		span.FinishReason, span.InputPreview, span.OutputPreview, span.InputTokens,
		span.OutputTokens, string(span.Metadata), span.CreatedAt.UnixMilli())
	return err
}
