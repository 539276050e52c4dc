// Package timeout implements the Timeout Estimator: a
// keyword-vote task classifier plus historical-percentile timeout/iteration
// estimation with bounded extensions.
package timeout

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// TaskType is the keyword-vote classification of a task description.
type TaskType string

const (
	TaskResearch     TaskType = "research"
	TaskCode         TaskType = "code"
	TaskAnalysis     TaskType = "analysis"
	TaskWriting      TaskType = "writing"
	TaskSimpleLookup TaskType = "simple_lookup"
)

// taskTypePriority breaks keyword-vote ties; earlier wins.
var taskTypePriority = []TaskType{TaskCode, TaskResearch, TaskAnalysis, TaskWriting, TaskSimpleLookup}

var taskTypeKeywords = map[TaskType][]string{
	TaskCode:         {"code", "function", "bug", "implement", "refactor", "compile", "test", "debug"},
	TaskResearch:     {"research", "investigate", "find out", "look up", "compare", "survey"},
	TaskAnalysis:     {"analyze", "analysis", "evaluate", "assess", "review", "summarize"},
	TaskWriting:      {"write", "draft", "compose", "essay", "article", "blog"},
	TaskSimpleLookup: {"what is", "who is", "when is", "lookup", "define"},
}

// ClassifyTask is a keyword vote among the five task types; ties resolved
// by taskTypePriority.
func ClassifyTask(text string) TaskType {
	lower := strings.ToLower(text)
	votes := make(map[TaskType]int)
	for tt, kws := range taskTypeKeywords {
		for _, kw := range kws {
			if strings.Contains(lower, kw) {
				votes[tt]++
			}
		}
	}
	best := TaskType("")
	bestVotes := 0
	for _, tt := range taskTypePriority {
		if votes[tt] > bestVotes {
			bestVotes = votes[tt]
			best = tt
		}
	}
	if best == "" {
		return TaskSimpleLookup
	}
	return best
}

const (
	minSamplesForHistorical = 5
	historyWindow           = 30 * 24 * time.Hour
	minTimeout              = 15 * time.Second
	maxTimeout              = 300 * time.Second

	maxExtensions = 2
)

// tierDefaults gives {timeout, expectedIterations} per tier when there is
// insufficient historical data.
var tierDefaults = map[string]struct {
	timeout    time.Duration
	iterations int
}{
	"simple":    {30 * time.Second, 3},
	"moderate":  {60 * time.Second, 5},
	"complex":   {120 * time.Second, 8},
	"reasoning": {180 * time.Second, 10},
}

const unknownTierTimeout = 60 * time.Second
const unknownTierIterations = 10

// Basis names how an Estimate was produced.
type Basis string

const (
	BasisHistorical Basis = "historical"
	BasisDefault    Basis = "default"
	BasisFallback   Basis = "fallback"
)

// Estimate is the result of Estimate().
type Estimate struct {
	Timeout            time.Duration
	ExpectedIterations int
	Confidence         float64
	Basis              Basis
}

// Estimator wraps store.TimeoutMetricStore with the percentile math.
type Estimator struct {
	store store.TimeoutMetricStore
	now   func() time.Time
}

// New creates an Estimator.
func New(s store.TimeoutMetricStore) *Estimator {
	return &Estimator{store: s, now: time.Now}
}

// Estimate queries historical TaskMetric rows for (taskType, tier) over the
// last 30 days and produces a timeout/iteration estimate.
func (e *Estimator) Estimate(ctx context.Context, text, tier string) (Estimate, error) {
	taskType := ClassifyTask(text)
	sinceMs := e.now().Add(-historyWindow).UnixMilli()

	samples, err := e.store.Recent(ctx, string(taskType), tier, sinceMs)
	if err != nil {
		return Estimate{}, fmt.Errorf("timeout: recent: %w", err)
	}

	if len(samples) >= minSamplesForHistorical {
		durations := make([]float64, len(samples))
		iterations := make([]float64, len(samples))
		for i, s := range samples {
			durations[i] = float64(s.DurationMs)
			iterations[i] = float64(s.Iterations)
		}
		p85Duration := percentile(durations, 85)
		p85Iterations := percentile(iterations, 85)

		timeoutMs := clamp(p85Duration*1.5, float64(minTimeout.Milliseconds()), float64(maxTimeout.Milliseconds()))
		confidence := math.Min(1, float64(len(samples))/20)

		return Estimate{
			Timeout:            time.Duration(timeoutMs) * time.Millisecond,
			ExpectedIterations: int(math.Ceil(p85Iterations * 1.2)),
			Confidence:         confidence,
			Basis:              BasisHistorical,
		}, nil
	}

	if def, ok := tierDefaults[tier]; ok {
		return Estimate{
			Timeout:            def.timeout,
			ExpectedIterations: def.iterations,
			Confidence:         float64(len(samples)) / minSamplesForHistorical,
			Basis:              BasisDefault,
		}, nil
	}

	return Estimate{
		Timeout:            unknownTierTimeout,
		ExpectedIterations: unknownTierIterations,
		Confidence:         0,
		Basis:              BasisFallback,
	}, nil
}

// Record persists a completed task's metric sample.
func (e *Estimator) Record(ctx context.Context, m *store.TaskMetricData) error {
	m.CreatedAt = e.now().UnixMilli()
	if err := e.store.Record(ctx, m); err != nil {
		return fmt.Errorf("timeout: record: %w", err)
	}
	return nil
}

// ShouldExtend decides whether to grant a timeout/iteration extension,
// capped at maxExtensions (2).
//
// Case A — used >= 70% of iterations and elapsed < 80% of timeout: +5 iterations.
// Case B — elapsed >= 90% of timeout and used < 50% of iterations: +30s.
// Otherwise: no extension.
func ShouldExtend(currentIter, maxIter int, elapsed, timeoutDur time.Duration, extensionsGranted int) (extraIterations int, extraTime time.Duration) {
	if extensionsGranted >= maxExtensions || maxIter <= 0 || timeoutDur <= 0 {
		return 0, 0
	}
	iterFrac := float64(currentIter) / float64(maxIter)
	elapsedFrac := float64(elapsed) / float64(timeoutDur)

	if iterFrac >= 0.7 && elapsedFrac < 0.8 {
		return 5, 0
	}
	if elapsedFrac >= 0.9 && iterFrac < 0.5 {
		return 0, 30 * time.Second
	}
	return 0, 0
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	rank := (p / 100) * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
