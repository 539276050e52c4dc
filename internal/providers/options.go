package providers

import "context"

// Option keys for ChatRequest.Options. Using string constants instead of a
// typed struct keeps the Provider interface stable as new per-provider
// knobs are added without every implementation needing to change.
const (
	OptMaxTokens       = "max_tokens"
	OptTemperature     = "temperature"
	OptThinkingLevel   = "thinking_level"   // "off", "low", "medium", "high"
	OptReasoningEffort = "reasoning_effort" // o-series models: "low", "medium", "high"

	// DashScope-specific thinking controls, set internally when translating
	// OptThinkingLevel for that provider (see dashscope.go).
	OptEnableThinking = "dashscope_enable_thinking"
	OptThinkingBudget = "dashscope_thinking_budget"
)

// ThinkingCapable is implemented by providers that support extended
// thinking/reasoning traces. Checked via a type assertion before
// OptThinkingLevel is set, so providers that don't support it are never
// sent an option they'd silently ignore or reject.
type ThinkingCapable interface {
	SupportsThinking() bool
}

// RetryHook is invoked by a provider's retry loop on every retried
// attempt, letting the caller (e.g. the turn orchestrator) surface a
// "retrying..." notice to the user instead of going silent mid-call.
type RetryHook func(attempt, maxAttempts int, err error)

type retryHookKey struct{}

// WithRetryHook attaches hook to ctx for RetryDo to invoke on each retry.
func WithRetryHook(ctx context.Context, hook RetryHook) context.Context {
	return context.WithValue(ctx, retryHookKey{}, hook)
}

// retryHookFromCtx returns the hook attached by WithRetryHook, or nil.
func retryHookFromCtx(ctx context.Context) RetryHook {
	hook, _ := ctx.Value(retryHookKey{}).(RetryHook)
	return hook
}
