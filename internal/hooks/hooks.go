// Package hooks evaluates small rule-based quality gates against delegation
// output — e.g. "reject replies shorter than N chars" or "must contain a
// required marker" — before a delegated result is accepted.
package hooks

import (
	"context"
	"strings"
)

// HookConfig describes one quality gate, configurable per source agent.
type HookConfig struct {
	Event          string `json:"event"`
	Type           string `json:"type"` // "min_length" | "contains" | "not_contains"
	Arg            string `json:"arg,omitempty"`
	MinLength      int    `json:"min_length,omitempty"`
	BlockOnFailure bool   `json:"block_on_failure"`
	MaxRetries     int    `json:"max_retries"`
}

// HookContext is the evaluation input for a single gate.
type HookContext struct {
	Event          string
	SourceAgentKey string
	TargetAgentKey string
	UserID         string
	Content        string
	Task           string
}

// HookResult is the evaluator's verdict.
type HookResult struct {
	Passed   bool
	Feedback string
}

// Engine evaluates hook configs against a HookContext.
type Engine struct{}

func NewEngine() *Engine { return &Engine{} }

func (e *Engine) EvaluateSingleHook(_ context.Context, gate HookConfig, hctx HookContext) (HookResult, error) {
	switch gate.Type {
	case "min_length":
		if len(hctx.Content) < gate.MinLength {
			return HookResult{Passed: false, Feedback: "output is shorter than the required minimum length"}, nil
		}
	case "contains":
		if gate.Arg != "" && !strings.Contains(hctx.Content, gate.Arg) {
			return HookResult{Passed: false, Feedback: "output is missing required content: " + gate.Arg}, nil
		}
	case "not_contains":
		if gate.Arg != "" && strings.Contains(hctx.Content, gate.Arg) {
			return HookResult{Passed: false, Feedback: "output contains disallowed content: " + gate.Arg}, nil
		}
	}
	return HookResult{Passed: true}, nil
}

type ctxKey int

const ctxSkipHooks ctxKey = iota

// WithSkipHooks marks a context so delegation runs bypass quality gates —
// used for internal retries to avoid re-evaluating the same gate recursively.
func WithSkipHooks(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxSkipHooks, true)
}

func SkipHooksFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(ctxSkipHooks).(bool)
	return v
}
