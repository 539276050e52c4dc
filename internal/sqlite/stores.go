package sqlite

import "github.com/nextlevelbuilder/goclaw/internal/store"

// NewStores wires every store.Stores field to its sqlite-backed
// implementation over db; it does not open db itself.
func NewStores(db *DB) *store.Stores {
	return &store.Stores{
		Sessions:  NewSessionStore(db),
		Memory:    NewMemoryStore(db),
		Subagents: NewSubagentStore(db),
		Templates: NewTemplateStore(db),
		Tasks:     NewBackgroundTaskStore(db),
		Metrics:   NewTimeoutMetricStore(db),
		Pulse:     NewPulseStore(db),
		Auth:      NewAuthStore(db),
	}
}
