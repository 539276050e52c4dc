package store

// Stores is the top-level container for all storage backends backing a
// single-owner instance. Every field is backed by the one embedded
// relational store (see internal/sqlite) — there is no managed/multi-tenant
// mode and no second, networked database.
type Stores struct {
	Sessions  SessionStore
	Memory    MemoryStore
	Subagents SubagentStore
	Templates TemplateStore
	Tasks     BackgroundTaskStore
	Metrics   TimeoutMetricStore
	Pulse     PulseStore
	Auth      AuthStore
}
