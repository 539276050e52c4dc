package tools

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/config"
)

// ApprovalDecision is the outcome of a conversational exec approval prompt.
type ApprovalDecision int

const (
	ApprovalApprove ApprovalDecision = iota
	ApprovalDeny
)

// pendingApproval is an in-memory,
// per-agent queue entry that expires silently after 5 minutes.
type pendingApproval struct {
	command   string
	createdAt time.Time
	decision  chan ApprovalDecision
}

const approvalTTL = 5 * time.Minute

// ExecApprovalManager gates shell commands per config.ExecApprovalCfg:
// "deny" security rejects everything outright, "allowlist" only allows
// commands matching a glob pattern, "full" allows everything (subject to
// the "ask" policy layered on top). Matches the TS exec-approval pipeline
// this module's sibling tools were ported from.
type ExecApprovalManager struct {
	cfg config.ExecApprovalCfg

	mu      sync.Mutex
	pending map[string]*pendingApproval // agentID -> oldest non-expired entry
}

func NewExecApprovalManager(cfg config.ExecApprovalCfg) *ExecApprovalManager {
	return &ExecApprovalManager{cfg: cfg, pending: make(map[string]*pendingApproval)}
}

// CheckCommand returns "deny", "ask", or "allow" for command under the
// manager's security + ask policy.
func (m *ExecApprovalManager) CheckCommand(command string) string {
	switch m.cfg.Security {
	case "deny":
		return "deny"
	case "allowlist":
		if !m.matchesAllowlist(command) {
			if m.cfg.Ask == "on-miss" || m.cfg.Ask == "always" {
				return "ask"
			}
			return "deny"
		}
	}

	if m.cfg.Ask == "always" {
		return "ask"
	}
	return "allow"
}

func (m *ExecApprovalManager) matchesAllowlist(command string) bool {
	trimmed := strings.TrimSpace(command)
	for _, pattern := range m.cfg.Allowlist {
		if ok, _ := filepath.Match(pattern, trimmed); ok {
			return true
		}
	}
	return false
}

// RequestApproval enqueues command as a PendingApproval for agentID and
// blocks until the orchestrator resolves it (via Resolve) or timeout
// elapses, in which case it denies by default.
func (m *ExecApprovalManager) RequestApproval(command, agentID string, timeout time.Duration) (ApprovalDecision, error) {
	m.mu.Lock()
	m.evictExpired(agentID)
	if _, exists := m.pending[agentID]; exists {
		m.mu.Unlock()
		return ApprovalDeny, fmt.Errorf("an approval is already pending for agent %s", agentID)
	}
	entry := &pendingApproval{command: command, createdAt: time.Now(), decision: make(chan ApprovalDecision, 1)}
	m.pending[agentID] = entry
	m.mu.Unlock()

	select {
	case d := <-entry.decision:
		return d, nil
	case <-time.After(timeout):
		m.mu.Lock()
		delete(m.pending, agentID)
		m.mu.Unlock()
		return ApprovalDeny, fmt.Errorf("approval request timed out")
	}
}

// Resolve delivers the classified user reply (APPROVED/DENIED) for
// agentID's oldest pending approval.
func (m *ExecApprovalManager) Resolve(agentID string, decision ApprovalDecision) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.pending[agentID]
	if !ok {
		return false
	}
	delete(m.pending, agentID)
	entry.decision <- decision
	return true
}

// Pending returns the command text of agentID's oldest non-expired pending
// approval, or "" if none.
func (m *ExecApprovalManager) Pending(agentID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictExpired(agentID)
	if entry, ok := m.pending[agentID]; ok {
		return entry.command
	}
	return ""
}

func (m *ExecApprovalManager) evictExpired(agentID string) {
	if entry, ok := m.pending[agentID]; ok && time.Since(entry.createdAt) > approvalTTL {
		delete(m.pending, agentID)
	}
}
