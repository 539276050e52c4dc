package store

import "context"

// RoleTemplateData is a persisted reusable sub-agent role template.
type RoleTemplateData struct {
	ID              string
	OwnerUserID     string
	Name            string
	RoleDescription string
	DefaultTools    []string
	DefaultTier     string
	TimesUsed       int
	AvgPerformance  float64
	Tags            []string
	CreatedAt       int64
	UpdatedAt       int64
}

// TemplateStore persists RoleTemplate records.
type TemplateStore interface {
	Create(ctx context.Context, t *RoleTemplateData) error
	Get(ctx context.Context, id string) (*RoleTemplateData, error)
	Update(ctx context.Context, t *RoleTemplateData) error
	Delete(ctx context.Context, id string) error
	ListByOwner(ctx context.Context, ownerUserID string) ([]*RoleTemplateData, error)
	CountByOwner(ctx context.Context, ownerUserID string) (int, error)
}
