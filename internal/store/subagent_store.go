package store

import "context"

// SubAgentStatus is the lifecycle state of a SubAgent.
type SubAgentStatus string

const (
	SubAgentActive      SubAgentStatus = "active"
	SubAgentSuspended   SubAgentStatus = "suspended"
	SubAgentSoftDeleted SubAgentStatus = "soft_deleted"
)

// SubAgentData is a persisted sub-agent record. Matches the SubAgent
// entity: performanceScore = successfulTasks/totalTasks when totalTasks > 0,
// deletedAt set iff status = soft_deleted.
type SubAgentData struct {
	ID               string
	OwnerUserID      string
	Role             string
	SystemPrompt     string
	ToolsGranted     []string
	TierPreference   string
	Status           SubAgentStatus
	PerformanceScore float64
	TotalTasks       int
	SuccessfulTasks  int
	TemplateID       string
	CreatedAt        int64
	LastActiveAt     int64
	DeletedAt        int64 // 0 means unset
}

// SubagentStore persists SubAgent records.
type SubagentStore interface {
	Create(ctx context.Context, a *SubAgentData) error
	Get(ctx context.Context, id string) (*SubAgentData, error)
	Update(ctx context.Context, a *SubAgentData) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerUserID string, includeSoftDeleted bool) ([]*SubAgentData, error)
	CountActive(ctx context.Context, ownerUserID string) (int, error)
}
