// Package nudge implements the outbound Nudge Engine: a
// priority-ordered pending-notification queue gated by quiet hours and a
// per-user sliding rate limit, urgent nudges bypassing both.
package nudge

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Priority orders delivery within a flush.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{PriorityUrgent: 0, PriorityNormal: 1, PriorityLow: 2}

func (p Priority) String() string { return string(p) }

// Nudge is a pending outbound notification.
type Nudge struct {
	ID          string
	UserID      string
	Category    string
	Content     string
	Priority    Priority
	DeliverAfter time.Time
	Metadata    map[string]string
	Delivered   bool
	CreatedAt   time.Time
}

// Deliverer actually sends a nudge to the user (e.g. over the HTTP/SSE
// channel). Returning an error leaves the nudge queued for the next flush.
type Deliverer func(ctx context.Context, n *Nudge) error

// Config controls quiet hours and the per-user rate cap.
type Config struct {
	MaxPerHour      int
	QuietHoursStart string // "HH:MM"
	QuietHoursEnd   string // "HH:MM"
	QueueCapacity   int
}

func (c Config) withDefaults() Config {
	if c.MaxPerHour <= 0 {
		c.MaxPerHour = 6
	}
	if c.QuietHoursStart == "" {
		c.QuietHoursStart = "22:00"
	}
	if c.QuietHoursEnd == "" {
		c.QuietHoursEnd = "08:00"
	}
	if c.QueueCapacity <= 0 {
		c.QueueCapacity = 100
	}
	return c
}

// Engine manages per-user nudge queues.
type Engine struct {
	cfg       Config
	deliverer Deliverer
	now       func() time.Time

	mu       sync.Mutex
	queues   map[string][]*Nudge
	limiters map[string]*rate.Limiter
}

// New creates an Engine.
func New(cfg Config, deliverer Deliverer) *Engine {
	return &Engine{
		cfg:       cfg.withDefaults(),
		deliverer: deliverer,
		now:       time.Now,
		queues:    make(map[string][]*Nudge),
		limiters:  make(map[string]*rate.Limiter),
	}
}

func (e *Engine) limiterFor(userID string) *rate.Limiter {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Every(time.Hour/time.Duration(e.cfg.MaxPerHour)), e.cfg.MaxPerHour)
		e.limiters[userID] = l
	}
	return l
}

// Schedule enqueues a nudge. Urgent nudges auto-flush within 500ms.
func (e *Engine) Schedule(ctx context.Context, userID, category, content string, priority Priority, deliverAfter time.Time, metadata map[string]string) (*Nudge, error) {
	n := &Nudge{
		ID:           uuid.NewString(),
		UserID:       userID,
		Category:     category,
		Content:      content,
		Priority:     priority,
		DeliverAfter: deliverAfter,
		Metadata:     metadata,
		CreatedAt:    e.now(),
	}

	e.mu.Lock()
	q := e.queues[userID]
	if len(q) >= e.cfg.QueueCapacity {
		e.mu.Unlock()
		return nil, fmt.Errorf("nudge: queue capacity exceeded for user %s", userID)
	}
	e.queues[userID] = append(q, n)
	e.mu.Unlock()

	if priority == PriorityUrgent {
		go func() {
			time.Sleep(500 * time.Millisecond)
			_ = e.FlushUser(context.Background(), userID)
		}()
	}

	return n, nil
}

// Flush processes due, non-suppressed nudges for every user with a pending
// queue, in priority order (urgent, normal, low; ties by createdAt).
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	userIDs := make([]string, 0, len(e.queues))
	for uid := range e.queues {
		userIDs = append(userIDs, uid)
	}
	e.mu.Unlock()

	var firstErr error
	for _, uid := range userIDs {
		if err := e.FlushUser(ctx, uid); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// FlushUser processes one user's due nudges, honoring quiet hours and the
// per-user rate limit (urgent nudges bypass both).
func (e *Engine) FlushUser(ctx context.Context, userID string) error {
	now := e.now()

	e.mu.Lock()
	q := append([]*Nudge(nil), e.queues[userID]...)
	e.mu.Unlock()

	sort.SliceStable(q, func(i, j int) bool {
		if priorityRank[q[i].Priority] != priorityRank[q[j].Priority] {
			return priorityRank[q[i].Priority] < priorityRank[q[j].Priority]
		}
		return q[i].CreatedAt.Before(q[j].CreatedAt)
	})

	limiter := e.limiterFor(userID)
	quiet := e.inQuietHours(now)

	var remaining []*Nudge
	var firstErr error
	for _, n := range q {
		if n.Delivered {
			continue
		}
		if now.Before(n.DeliverAfter) {
			remaining = append(remaining, n)
			continue
		}
		if n.Priority != PriorityUrgent {
			if quiet {
				remaining = append(remaining, n)
				continue
			}
			if !limiter.Allow() {
				remaining = append(remaining, n)
				continue
			}
		}

		if e.deliverer == nil {
			remaining = append(remaining, n)
			continue
		}
		if err := e.deliverer(ctx, n); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			remaining = append(remaining, n) // stays queued for next flush
			continue
		}
		n.Delivered = true
	}

	e.mu.Lock()
	e.queues[userID] = remaining
	e.mu.Unlock()

	return firstErr
}

func (e *Engine) inQuietHours(t time.Time) bool {
	start, ok1 := parseHHMM(e.cfg.QuietHoursStart)
	end, ok2 := parseHHMM(e.cfg.QuietHoursEnd)
	if !ok1 || !ok2 {
		return false
	}
	cur := t.Hour()*60 + t.Minute()
	if start <= end {
		return cur >= start && cur < end
	}
	// Wraps past midnight (e.g. 22:00 -> 08:00).
	return cur >= start || cur < end
}

func parseHHMM(s string) (int, bool) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return 0, false
	}
	return h*60 + m, true
}
