// Package tracing records per-turn spans (LLM calls, tool calls, agent runs)
// to the embedded store so a run can be replayed after the fact.
package tracing

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

type SpanType string

const (
	SpanTypeAgent    SpanType = "agent"
	SpanTypeLLMCall  SpanType = "llm_call"
	SpanTypeToolCall SpanType = "tool_call"
)

type SpanStatus string

const (
	SpanStatusCompleted SpanStatus = "completed"
	SpanStatusError     SpanStatus = "error"
)

type SpanLevel string

const SpanLevelDefault SpanLevel = "DEFAULT"

// SpanData is one recorded span. Spans nest via ParentSpanID and share a TraceID
// per turn.
type SpanData struct {
	ID            uuid.UUID
	TraceID       uuid.UUID
	ParentSpanID  *uuid.UUID
	AgentID       *uuid.UUID
	SpanType      SpanType
	Name          string
	StartTime     time.Time
	EndTime       *time.Time
	DurationMS    int
	Model         string
	Provider      string
	ToolName      string
	ToolCallID    string
	Status        SpanStatus
	Level         SpanLevel
	Error         string
	FinishReason  string
	InputPreview  string
	OutputPreview string
	InputTokens   int
	OutputTokens  int
	Metadata      []byte
	CreatedAt     time.Time
}

// Store persists spans and the traces they nest under. Implemented by
// internal/sqlite.
type Store interface {
	InsertSpan(ctx context.Context, span SpanData) error
	store.TraceStore
}

// Collector batches spans and writes them to the store without blocking the
// turn that produced them. When an OTel tracer is set, every span is also
// exported through it, so the same replay data lands in an external
// backend in addition to sqlite.
type Collector struct {
	store   Store
	verbose bool
	spans   chan SpanData
	done    chan struct{}
	otel    oteltrace.Tracer
}

// NewCollector builds a Collector. otelTracer may be nil (telemetry.Init
// returns the global no-op tracer when telemetry is disabled, so callers
// can pass it unconditionally).
func NewCollector(store Store, verbose bool, otelTracer oteltrace.Tracer) *Collector {
	return &Collector{
		store:   store,
		verbose: verbose,
		spans:   make(chan SpanData, 256),
		done:    make(chan struct{}),
		otel:    otelTracer,
	}
}

func (c *Collector) Verbose() bool { return c.verbose }

// CreateTrace persists the root record for a new agent run, synchronously —
// unlike spans, a trace's creation must succeed before the run proceeds so
// FinishTrace has something to update.
func (c *Collector) CreateTrace(ctx context.Context, trace *store.TraceData) error {
	return c.store.CreateTrace(ctx, trace)
}

// FinishTrace marks a trace complete, errored, or cancelled.
func (c *Collector) FinishTrace(ctx context.Context, id uuid.UUID, status store.TraceStatus, errMsg, outputPreview string) error {
	return c.store.FinishTrace(ctx, id, status, errMsg, outputPreview)
}

// Start launches the background writer. Call Stop to drain and shut down.
func (c *Collector) Start() {
	go func() {
		for {
			select {
			case span, ok := <-c.spans:
				if !ok {
					close(c.done)
					return
				}
				if err := c.store.InsertSpan(context.Background(), span); err != nil {
					slog.Warn("tracing: failed to persist span", "error", err, "span_type", span.SpanType)
				}
			}
		}
	}()
}

func (c *Collector) Stop() {
	close(c.spans)
	<-c.done
}

// EmitSpan enqueues a span for async persistence, and — when an OTel tracer
// is configured — immediately records it as an OTel span too. Never blocks
// the caller for more than the channel send; a full buffer drops the sqlite
// copy rather than stall the turn (the OTel copy is unaffected, since the
// SDK's own batch exporter buffers independently).
func (c *Collector) EmitSpan(span SpanData) {
	if span.ID == uuid.Nil {
		span.ID = uuid.New()
	}
	c.emitOtelSpan(span)
	select {
	case c.spans <- span:
	default:
		slog.Warn("tracing: span buffer full, dropping span", "span_type", span.SpanType)
	}
}

// emitOtelSpan replays an already-completed span into the OTel SDK with its
// original start/end timestamps, since spans here are recorded after the
// fact rather than built up via a live context.Context chain.
func (c *Collector) emitOtelSpan(span SpanData) {
	if c.otel == nil {
		return
	}
	end := span.EndTime
	if end == nil {
		now := time.Now()
		end = &now
	}
	_, otelSpan := c.otel.Start(context.Background(), string(span.SpanType)+":"+span.Name,
		oteltrace.WithTimestamp(span.StartTime),
		oteltrace.WithAttributes(
			attribute.String("goclaw.trace_id", span.TraceID.String()),
			attribute.String("goclaw.span_type", string(span.SpanType)),
			attribute.String("goclaw.model", span.Model),
			attribute.String("goclaw.provider", span.Provider),
			attribute.String("goclaw.tool_name", span.ToolName),
			attribute.Int("goclaw.input_tokens", span.InputTokens),
			attribute.Int("goclaw.output_tokens", span.OutputTokens),
		),
	)
	if span.Status == SpanStatusError {
		otelSpan.SetStatus(codes.Error, span.Error)
	}
	otelSpan.End(oteltrace.WithTimestamp(*end))
}

type ctxKey int

const (
	ctxTraceID ctxKey = iota
	ctxCollector
	ctxParentSpanID
	ctxAnnounceParentSpanID
	ctxDelegateParentTraceID
)

func WithTraceID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxTraceID, id)
}

func TraceIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxTraceID).(uuid.UUID)
	return id
}

func WithCollector(ctx context.Context, c *Collector) context.Context {
	return context.WithValue(ctx, ctxCollector, c)
}

func CollectorFromContext(ctx context.Context) *Collector {
	c, _ := ctx.Value(ctxCollector).(*Collector)
	return c
}

func WithParentSpanID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxParentSpanID, id)
}

func ParentSpanIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxParentSpanID).(uuid.UUID)
	return id
}

func WithAnnounceParentSpanID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxAnnounceParentSpanID, id)
}

func AnnounceParentSpanIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxAnnounceParentSpanID).(uuid.UUID)
	return id
}

func WithDelegateParentTraceID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxDelegateParentTraceID, id)
}

func DelegateParentTraceIDFromContext(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxDelegateParentTraceID).(uuid.UUID)
	return id
}
