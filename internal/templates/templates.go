// Package templates implements the Template Store engine: reusable
// sub-agent role templates with usage tracking and best-match lookup.
package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// ErrLimitReached is a non-fatal error returned by Create once the owner
// has hit their template cap.
var ErrLimitReached = errors.New("templates: per-user template limit reached")

// ErrNotFound is returned when an id doesn't resolve to a record.
var ErrNotFound = errors.New("templates: not found")

const defaultCap = 50
const findBestMatchThreshold = 0.5

// Config controls the per-owner template cap.
type Config struct {
	MaxPerOwner int
}

func (c Config) withDefaults() Config {
	if c.MaxPerOwner <= 0 {
		c.MaxPerOwner = defaultCap
	}
	return c
}

// Manager wraps store.TemplateStore with cap enforcement and matching.
type Manager struct {
	store store.TemplateStore
	cfg   Config
	now   func() time.Time
}

// New creates a Manager.
func New(s store.TemplateStore, cfg Config) *Manager {
	return &Manager{store: s, cfg: cfg.withDefaults(), now: time.Now}
}

// CreateRequest describes a new template.
type CreateRequest struct {
	OwnerUserID     string
	Name            string
	RoleDescription string
	DefaultTools    []string
	DefaultTier     string
	Tags            []string
}

// Create enforces the per-owner cap at create time.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (*store.RoleTemplateData, error) {
	count, err := m.store.CountByOwner(ctx, req.OwnerUserID)
	if err != nil {
		return nil, fmt.Errorf("templates: count: %w", err)
	}
	if count >= m.cfg.MaxPerOwner {
		return nil, ErrLimitReached
	}

	now := m.now().UnixMilli()
	t := &store.RoleTemplateData{
		ID:              uuid.NewString(),
		OwnerUserID:     req.OwnerUserID,
		Name:            req.Name,
		RoleDescription: req.RoleDescription,
		DefaultTools:    req.DefaultTools,
		DefaultTier:     req.DefaultTier,
		Tags:            req.Tags,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := m.store.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("templates: create: %w", err)
	}
	return t, nil
}

// List returns all templates owned by ownerUserID.
func (m *Manager) List(ctx context.Context, ownerUserID string) ([]*store.RoleTemplateData, error) {
	ts, err := m.store.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("templates: list: %w", err)
	}
	return ts, nil
}

// Update persists changes to an existing template.
func (m *Manager) Update(ctx context.Context, t *store.RoleTemplateData) error {
	t.UpdatedAt = m.now().UnixMilli()
	if err := m.store.Update(ctx, t); err != nil {
		return fmt.Errorf("templates: update: %w", err)
	}
	return nil
}

// Delete removes a template.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("templates: delete: %w", err)
	}
	return nil
}

// RecordUsage updates timesUsed and the rolling average performance.
func (m *Manager) RecordUsage(ctx context.Context, id string, score float64) error {
	t, err := m.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("templates: get: %w", err)
	}
	if t == nil {
		return ErrNotFound
	}
	n := t.TimesUsed
	t.AvgPerformance = (t.AvgPerformance*float64(n) + score) / float64(n+1)
	t.TimesUsed = n + 1
	t.UpdatedAt = m.now().UnixMilli()
	if err := m.store.Update(ctx, t); err != nil {
		return fmt.Errorf("templates: update: %w", err)
	}
	return nil
}

// FindBestMatch returns the template whose name/description has the
// highest keyword overlap with text (above a minimum threshold), preferring
// higher avgPerformance on ties.
func (m *Manager) FindBestMatch(ctx context.Context, ownerUserID, text string) (*store.RoleTemplateData, error) {
	candidates, err := m.store.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return nil, fmt.Errorf("templates: list: %w", err)
	}
	targetWords := words(text)
	if len(targetWords) == 0 {
		return nil, nil
	}

	var best *store.RoleTemplateData
	bestScore := -1.0
	for _, c := range candidates {
		score := overlap(targetWords, words(c.Name+" "+c.RoleDescription+" "+strings.Join(c.Tags, " ")))
		if score < findBestMatchThreshold {
			continue
		}
		if best == nil || score > bestScore || (score == bestScore && c.AvgPerformance > best.AvgPerformance) {
			best = c
			bestScore = score
		}
	}
	return best, nil
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "for": true, "with": true, "on": true, "is": true,
}

func words(s string) map[string]bool {
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

func overlap(a, b map[string]bool) float64 {
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
