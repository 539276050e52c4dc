package store

import (
	"context"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxAgentType ctxKey = iota
	ctxAgentID
	ctxUserID
	ctxSenderID
)

// WithAgentType attaches the calling agent's type ("open" or "predefined")
// to ctx so storage-layer calls made deeper in the request (memory writes,
// session lookups) can tag records with it without threading it through
// every function signature.
func WithAgentType(ctx context.Context, agentType string) context.Context {
	return context.WithValue(ctx, ctxAgentType, agentType)
}

// AgentTypeFromCtx returns the agent type attached by WithAgentType, or ""
// if none was set.
func AgentTypeFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxAgentType).(string)
	return v
}

// WithAgentID attaches the running agent's UUID to ctx for tool routing.
func WithAgentID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, ctxAgentID, id)
}

// AgentIDFromCtx returns the agent UUID attached by WithAgentID, or uuid.Nil
// if none was set.
func AgentIDFromCtx(ctx context.Context) uuid.UUID {
	id, _ := ctx.Value(ctxAgentID).(uuid.UUID)
	return id
}

// WithUserID attaches the conversation's owner/guest user id to ctx so
// per-user scoping (memory search, context files) doesn't need it threaded
// through every call.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

// UserIDFromCtx returns the user id attached by WithUserID, or "" if none
// was set.
func UserIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxUserID).(string)
	return v
}

// WithSenderID attaches the original message sender's id to ctx, distinct
// from UserID in group contexts where the conversation owner differs from
// whoever sent the triggering message — used by permission checks that care
// who specifically asked.
func WithSenderID(ctx context.Context, senderID string) context.Context {
	return context.WithValue(ctx, ctxSenderID, senderID)
}

// SenderIDFromCtx returns the sender id attached by WithSenderID, or "" if
// none was set.
func SenderIDFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxSenderID).(string)
	return v
}
