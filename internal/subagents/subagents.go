// Package subagents implements the Sub-agent Lifecycle state machine:
// create, findReusable, recordTaskResult, suspend/dismiss/revive/kill,
// and retention-driven cleanup.
package subagents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// ErrCapacityExceeded is returned by Create when the owner already has
// MaxActivePerUser active sub-agents.
var ErrCapacityExceeded = errors.New("subagents: capacity exceeded")

// ErrNotFound is returned when an id doesn't resolve to a record.
var ErrNotFound = errors.New("subagents: not found")

const defaultMaxActivePerUser = 10
const findReusableThreshold = 0.6
const defaultSuspendedRetention = 7 * 24 * time.Hour

// Config controls capacity and retention.
type Config struct {
	MaxActivePerUser   int
	SuspendedRetention time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxActivePerUser <= 0 {
		c.MaxActivePerUser = defaultMaxActivePerUser
	}
	if c.SuspendedRetention <= 0 {
		c.SuspendedRetention = defaultSuspendedRetention
	}
	return c
}

// Manager wraps store.SubagentStore with the lifecycle rules.
type Manager struct {
	store store.SubagentStore
	cfg   Config
	// PurgeMessages, if set, is called by Kill to purge the sub-agent's
	// conversation transcript (keyed "subagent:<id>").
	PurgeMessages func(ctx context.Context, sessionKey string) error
	now           func() time.Time
}

// New creates a Manager.
func New(s store.SubagentStore, cfg Config) *Manager {
	return &Manager{store: s, cfg: cfg.withDefaults(), now: time.Now}
}

// CreateRequest describes a new sub-agent.
type CreateRequest struct {
	OwnerUserID    string
	Role           string
	RoleDescription string
	ToolsGranted   []string
	TierPreference string
	TemplateID     string
	Orientation    string // fixed orientation block prepended to every sub-agent's system prompt
}

// Create enforces the active-per-owner cap and builds the sub-agent's
// system prompt from an orientation block plus the role description.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*store.SubAgentData, error) {
	active, err := m.store.CountActive(ctx, req.OwnerUserID)
	if err != nil {
		return nil, fmt.Errorf("subagents: count active: %w", err)
	}
	if active >= m.cfg.MaxActivePerUser {
		return nil, ErrCapacityExceeded
	}

	now := m.now().UnixMilli()
	a := &store.SubAgentData{
		ID:             uuid.NewString(),
		OwnerUserID:    req.OwnerUserID,
		Role:           req.Role,
		SystemPrompt:   buildSystemPrompt(req.Orientation, req.RoleDescription),
		ToolsGranted:   req.ToolsGranted,
		TierPreference: req.TierPreference,
		Status:         store.SubAgentActive,
		TemplateID:     req.TemplateID,
		CreatedAt:      now,
		LastActiveAt:   now,
	}
	if err := m.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("subagents: create: %w", err)
	}
	return a, nil
}

func buildSystemPrompt(orientation, roleDescription string) string {
	if orientation == "" {
		return roleDescription
	}
	return orientation + "\n\n" + roleDescription
}

// FindReusable searches active, suspended, and soft-deleted agents for the
// best keyword-overlap match against roleText, returning it iff the score
// is >= 0.6.
func (m *Manager) FindReusable(ctx context.Context, ownerUserID, roleText string) (*store.SubAgentData, error) {
	candidates, err := m.store.ListByOwner(ctx, ownerUserID, true)
	if err != nil {
		return nil, fmt.Errorf("subagents: list: %w", err)
	}
	targetWords := contentWords(roleText)
	if len(targetWords) == 0 {
		return nil, nil
	}

	var best *store.SubAgentData
	bestScore := 0.0
	for _, c := range candidates {
		score := keywordOverlap(targetWords, contentWords(c.Role+" "+c.SystemPrompt))
		if score > bestScore {
			bestScore = score
			best = c
		}
	}
	if best == nil || bestScore < findReusableThreshold {
		return nil, nil
	}
	return best, nil
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "for": true, "with": true, "on": true, "is": true,
	"are": true, "that": true, "this": true, "be": true, "as": true, "at": true,
}

func contentWords(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if w == "" || stopwords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func keywordOverlap(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	matches := 0
	for w := range a {
		if b[w] {
			matches++
		}
	}
	minLen := len(a)
	if len(b) < minLen {
		minLen = len(b)
	}
	if minLen == 0 {
		return 0
	}
	return float64(matches) / float64(minLen)
}

// RecordTaskResult atomically updates totalTasks/successfulTasks/
// performanceScore/lastActiveAt.
func (m *Manager) RecordTaskResult(ctx context.Context, id string, success bool) error {
	a, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("subagents: get: %w", err)
	}
	if a == nil {
		return ErrNotFound
	}
	a.TotalTasks++
	if success {
		a.SuccessfulTasks++
	}
	if a.TotalTasks > 0 {
		a.PerformanceScore = float64(a.SuccessfulTasks) / float64(a.TotalTasks)
	}
	a.LastActiveAt = m.now().UnixMilli()
	if err := m.store.Update(ctx, a); err != nil {
		return fmt.Errorf("subagents: update: %w", err)
	}
	return nil
}

// Suspend marks a sub-agent suspended, keeping its data.
func (m *Manager) Suspend(ctx context.Context, id string) error {
	return m.transition(ctx, id, store.SubAgentSuspended, false)
}

// Dismiss marks a sub-agent soft_deleted with deletedAt = now.
func (m *Manager) Dismiss(ctx context.Context, id string) error {
	return m.transition(ctx, id, store.SubAgentSoftDeleted, true)
}

// Revive restores a suspended or soft-deleted sub-agent to active.
func (m *Manager) Revive(ctx context.Context, id string) error {
	a, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("subagents: get: %w", err)
	}
	if a == nil {
		return ErrNotFound
	}
	a.Status = store.SubAgentActive
	a.DeletedAt = 0
	a.LastActiveAt = m.now().UnixMilli()
	if err := m.store.Update(ctx, a); err != nil {
		return fmt.Errorf("subagents: update: %w", err)
	}
	return nil
}

func (m *Manager) transition(ctx context.Context, id string, status store.SubAgentStatus, setDeleted bool) error {
	a, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("subagents: get: %w", err)
	}
	if a == nil {
		return ErrNotFound
	}
	a.Status = status
	if setDeleted {
		a.DeletedAt = m.now().UnixMilli()
	}
	if err := m.store.Update(ctx, a); err != nil {
		return fmt.Errorf("subagents: update: %w", err)
	}
	return nil
}

// Kill purges the sub-agent's transcript and record synchronously.
func (m *Manager) Kill(ctx context.Context, id string) error {
	if m.PurgeMessages != nil {
		if err := m.PurgeMessages(ctx, "subagent:"+id); err != nil {
			return fmt.Errorf("subagents: purge messages: %w", err)
		}
	}
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("subagents: delete: %w", err)
	}
	return nil
}

// CleanupResult reports a cleanup pass's effect.
type CleanupResult struct {
	Archived int
	Deleted  int
}

// Cleanup archives suspended agents idle beyond the suspended retention to
// soft_deleted, and deletes soft_deleted agents past the retention window.
func (m *Manager) Cleanup(ctx context.Context, ownerUserID string) (CleanupResult, error) {
	agents, err := m.store.ListByOwner(ctx, ownerUserID, true)
	if err != nil {
		return CleanupResult{}, fmt.Errorf("subagents: list: %w", err)
	}
	now := m.now()
	retentionCutoff := now.Add(-m.cfg.SuspendedRetention).UnixMilli()

	var result CleanupResult
	for _, a := range agents {
		switch a.Status {
		case store.SubAgentSuspended:
			if a.LastActiveAt < retentionCutoff {
				a.Status = store.SubAgentSoftDeleted
				a.DeletedAt = now.UnixMilli()
				if err := m.store.Update(ctx, a); err != nil {
					return result, fmt.Errorf("subagents: archive: %w", err)
				}
				result.Archived++
			}
		case store.SubAgentSoftDeleted:
			if a.DeletedAt < retentionCutoff {
				if err := m.Kill(ctx, a.ID); err != nil {
					return result, err
				}
				result.Deleted++
			}
		}
	}
	return result, nil
}

// ListByOwner returns ownerUserID's sub-agents, optionally including
// soft-deleted ones. Thin passthrough for the HTTP listing endpoint.
func (m *Manager) ListByOwner(ctx context.Context, ownerUserID string, includeSoftDeleted bool) ([]*store.SubAgentData, error) {
	return m.store.ListByOwner(ctx, ownerUserID, includeSoftDeleted)
}
