package agent

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// resolvePendingApproval classifies the user's
// reply to a queued require_approval tool call and act on it. APPROVED
// dispatches the tool (authority already checked when it was queued;
// shield is not re-evaluated). DENIED returns a polite refusal. UNCLEAR
// re-queues at head with a refreshed timestamp and re-prompts.
func (l *Loop) resolvePendingApproval(ctx context.Context, req RunRequest, pending *PendingApproval) (*RunResult, error) {
	verdict := l.classifyApprovalReply(ctx, req.Message)

	var reply string
	switch verdict {
	case verdictApproved:
		l.approvals.Clear(req.UserID)
		result := l.tools.ExecuteWithContext(ctx, pending.ToolName, pending.Arguments, req.Channel, req.ChatID, req.PeerKind, req.SessionKey, nil)
		if result.IsError {
			reply = "That didn't go through: " + truncateStr(result.ForLLM, 300)
		} else if isNarratedResultTool(pending.ToolName) {
			reply = truncateStr(result.ForLLM, 500)
		} else {
			reply = summarizeToolResult(pending.ToolName)
		}
	case verdictDenied:
		l.approvals.Clear(req.UserID)
		reply = "Okay, I won't do that."
	default:
		l.approvals.Refresh(req.UserID)
		reply = "Sorry, I didn't catch whether that's a yes or no — should I go ahead with " + pending.ToolName + "?"
	}

	l.sessions.AddMessage(req.SessionKey, providers.Message{Role: "user", Content: req.Message})
	l.sessions.AddMessage(req.SessionKey, providers.Message{Role: "assistant", Content: reply})
	l.sessions.Save(req.SessionKey)

	return &RunResult{Content: reply, RunID: req.RunID, Iterations: 0}, nil
}

// pendingApprovalTTL bounds how long a queued tool call waits for the
// principal to approve or deny it before it's treated as abandoned.
const pendingApprovalTTL = 10 * time.Minute

// PendingApproval is a tool call the Shield Engine flagged
// require_approval, queued until the principal confirms it.
type PendingApproval struct {
	ToolName   string
	Arguments  map[string]interface{}
	ToolCallID string
	CreatedAt  time.Time
}

func (p *PendingApproval) expired(now time.Time) bool {
	return now.Sub(p.CreatedAt) > pendingApprovalTTL
}

// approvalVerdict is the outcome of classifying a reply to a pending
// approval prompt.
type approvalVerdict string

const (
	verdictApproved approvalVerdict = "APPROVED"
	verdictDenied   approvalVerdict = "DENIED"
	verdictUnclear  approvalVerdict = "UNCLEAR"
)

const approvalClassifierPrompt = `You are classifying a user's reply to a pending action confirmation.
Respond with exactly one word: APPROVED, DENIED, or UNCLEAR.
APPROVED means the user clearly agreed to proceed.
DENIED means the user clearly refused.
UNCLEAR means the reply does neither (a question, a tangent, ambiguous wording).`

// classifyApprovalReply makes a constrained provider call to classify text
// as a reply to a pending approval. Falls back to UNCLEAR on any error so
// the caller re-prompts rather than silently acting.
func (l *Loop) classifyApprovalReply(ctx context.Context, text string) approvalVerdict {
	resp, err := l.provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{
			{Role: "system", Content: approvalClassifierPrompt},
			{Role: "user", Content: text},
		},
		Model: l.model,
		Options: map[string]interface{}{
			providers.OptMaxTokens:   16,
			providers.OptTemperature: 0,
		},
	})
	if err != nil {
		return verdictUnclear
	}
	switch strings.ToUpper(strings.TrimSpace(resp.Content)) {
	case string(verdictApproved):
		return verdictApproved
	case string(verdictDenied):
		return verdictDenied
	default:
		return verdictUnclear
	}
}

// pendingApprovals tracks at most one queued tool call per principal.
type pendingApprovalStore struct {
	mu    sync.Mutex
	byKey map[string]*PendingApproval
}

func newPendingApprovalStore() *pendingApprovalStore {
	return &pendingApprovalStore{byKey: make(map[string]*PendingApproval)}
}

func (s *pendingApprovalStore) Get(key string) *PendingApproval {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byKey[key]
	if !ok {
		return nil
	}
	if p.expired(time.Now()) {
		delete(s.byKey, key)
		return nil
	}
	return p
}

func (s *pendingApprovalStore) Set(key string, p *PendingApproval) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byKey[key] = p
}

func (s *pendingApprovalStore) Clear(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byKey, key)
}

func (s *pendingApprovalStore) Refresh(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.byKey[key]; ok {
		p.CreatedAt = time.Now()
	}
}
