// Package pulse implements the Pulse Scheduler: simple
// interval jobs ("<N><m|h|d>") dispatched with jitter, plus cron-expression
// jobs evaluated each tick via gronx, using a register/execute/stop shape.
package pulse

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// Handler runs a job's body. Errors are logged and do not affect other jobs.
type Handler func(ctx context.Context) error

// Job is a registered Pulse job.
type Job struct {
	ID         string
	Schedule   string // "<N><m|h|d>" interval, or a standard 5-field cron expression
	Handler    Handler
	RunOnStart bool
}

var intervalPattern = regexp.MustCompile(`^(\d+)([mhd])$`)

func parseInterval(schedule string) (time.Duration, bool) {
	m := intervalPattern.FindStringSubmatch(schedule)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "m":
		return time.Duration(n) * time.Minute, true
	case "h":
		return time.Duration(n) * time.Hour, true
	case "d":
		return time.Duration(n) * 24 * time.Hour, true
	}
	return 0, false
}

// Config controls dispatch jitter.
type Config struct {
	// JitterPct applies +/- this percent of jitter to each interval tick,
	// spreading load when many jobs share a schedule.
	JitterPct int
}

func (c Config) withDefaults() Config {
	if c.JitterPct <= 0 {
		c.JitterPct = 10
	}
	return c
}

// Scheduler dispatches registered jobs by interval or cron expression.
type Scheduler struct {
	cfg   Config
	store store.PulseStore
	gron  gronx.Gronx

	mu      sync.Mutex
	jobs    map[string]*Job
	stop    chan struct{}
	wg      sync.WaitGroup
	running bool
}

// New creates a Scheduler. store may be nil (bookkeeping becomes a no-op).
func New(cfg Config, s store.PulseStore) *Scheduler {
	return &Scheduler{
		cfg:   cfg.withDefaults(),
		store: s,
		gron:  gronx.New(),
		jobs:  make(map[string]*Job),
		stop:  make(chan struct{}),
	}
}

// Register adds a job. Safe to call before or after Start.
func (s *Scheduler) Register(j *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[j.ID] = j
	if s.running {
		s.wg.Add(1)
		go s.dispatchLoop(j)
	}
}

// Start dispatches runOnStart jobs immediately, then begins each job's
// interval/cron dispatch loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.running = true
	jobs := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()

	for _, j := range jobs {
		if j.RunOnStart {
			s.wg.Add(1)
			go func(j *Job) {
				defer s.wg.Done()
				s.runOnce(ctx, j)
			}(j)
		}
		s.wg.Add(1)
		go s.dispatchLoop(j)
	}
}

// Stop is cooperative: in-flight handlers run to completion; no new
// dispatches occur.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stop)
	s.wg.Wait()
}

func (s *Scheduler) dispatchLoop(j *Job) {
	defer s.wg.Done()

	if interval, ok := parseInterval(j.Schedule); ok {
		s.intervalLoop(j, interval)
		return
	}
	s.cronLoop(j)
}

func (s *Scheduler) intervalLoop(j *Job, interval time.Duration) {
	t := time.NewTimer(s.jitter(interval))
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.runOnce(context.Background(), j)
			t.Reset(s.jitter(interval))
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) cronLoop(j *Job) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			due, err := s.gron.IsDue(j.Schedule)
			if err != nil {
				slog.Error("pulse: invalid cron expression", "job", j.ID, "schedule", j.Schedule, "error", err)
				continue
			}
			if due {
				s.runOnce(context.Background(), j)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *Scheduler) jitter(base time.Duration) time.Duration {
	if s.cfg.JitterPct <= 0 {
		return base
	}
	spread := float64(base) * float64(s.cfg.JitterPct) / 100.0
	delta := (rand.Float64()*2 - 1) * spread
	result := time.Duration(float64(base) + delta)
	if result <= 0 {
		return base
	}
	return result
}

func (s *Scheduler) runOnce(ctx context.Context, j *Job) {
	now := time.Now()
	err := j.Handler(ctx)

	var errMsg string
	if err != nil {
		errMsg = err.Error()
		slog.Error("pulse: job failed", "job", j.ID, "error", err)
	}

	if s.store != nil {
		if bgErr := s.store.RecordRun(context.Background(), j.ID, now.UnixMilli(), errMsg); bgErr != nil {
			slog.Error("pulse: failed to record run", "job", j.ID, "error", bgErr)
		}
	}
}

// ValidateSchedule reports whether schedule is a recognized interval or
// cron expression.
func ValidateSchedule(schedule string) error {
	if _, ok := parseInterval(schedule); ok {
		return nil
	}
	g := gronx.New()
	if g.IsValid(schedule) {
		return nil
	}
	return fmt.Errorf("pulse: invalid schedule %q (expected \"<N><m|h|d>\" or a cron expression)", schedule)
}
