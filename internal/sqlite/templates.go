package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// TemplateStore implements store.TemplateStore against the role_templates table.
type TemplateStore struct {
	db *DB
}

func NewTemplateStore(db *DB) *TemplateStore {
	return &TemplateStore{db: db}
}

func (s *TemplateStore) Create(ctx context.Context, t *store.RoleTemplateData) error {
	tools, err := json.Marshal(t.DefaultTools)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO role_templates (id, owner_user_id, name, role_description, default_tools, default_tier, times_used, avg_performance, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.ID, t.OwnerUserID, t.Name, t.RoleDescription, string(tools), t.DefaultTier, t.TimesUsed, t.AvgPerformance, string(tags), t.CreatedAt, t.UpdatedAt)
	return err
}

func scanTemplate(row interface {
	Scan(dest ...any) error
}) (*store.RoleTemplateData, error) {
	var t store.RoleTemplateData
	var toolsJSON, tagsJSON string
	err := row.Scan(&t.ID, &t.OwnerUserID, &t.Name, &t.RoleDescription, &toolsJSON, &t.DefaultTier,
		&t.TimesUsed, &t.AvgPerformance, &tagsJSON, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role template not found")
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(toolsJSON), &t.DefaultTools)
	_ = json.Unmarshal([]byte(tagsJSON), &t.Tags)
	return &t, nil
}

func (s *TemplateStore) Get(ctx context.Context, id string) (*store.RoleTemplateData, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, name, role_description, default_tools, default_tier, times_used, avg_performance, tags, created_at, updated_at
		FROM role_templates WHERE id = ?
	`, id)
	return scanTemplate(row)
}

func (s *TemplateStore) Update(ctx context.Context, t *store.RoleTemplateData) error {
	tools, err := json.Marshal(t.DefaultTools)
	if err != nil {
		return err
	}
	tags, err := json.Marshal(t.Tags)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE role_templates SET name=?, role_description=?, default_tools=?, default_tier=?, times_used=?, avg_performance=?, tags=?, updated_at=?
		WHERE id = ?
	`, t.Name, t.RoleDescription, string(tools), t.DefaultTier, t.TimesUsed, t.AvgPerformance, string(tags), t.UpdatedAt, t.ID)
	return err
}

func (s *TemplateStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM role_templates WHERE id = ?`, id)
	return err
}

func (s *TemplateStore) ListByOwner(ctx context.Context, ownerUserID string) ([]*store.RoleTemplateData, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_user_id, name, role_description, default_tools, default_tier, times_used, avg_performance, tags, created_at, updated_at
		FROM role_templates WHERE owner_user_id = ? ORDER BY times_used DESC
	`, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.RoleTemplateData
	for rows.Next() {
		var t store.RoleTemplateData
		var toolsJSON, tagsJSON string
		if err := rows.Scan(&t.ID, &t.OwnerUserID, &t.Name, &t.RoleDescription, &toolsJSON, &t.DefaultTier,
			&t.TimesUsed, &t.AvgPerformance, &tagsJSON, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(toolsJSON), &t.DefaultTools)
		_ = json.Unmarshal([]byte(tagsJSON), &t.Tags)
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (s *TemplateStore) CountByOwner(ctx context.Context, ownerUserID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM role_templates WHERE owner_user_id = ?`, ownerUserID).Scan(&n)
	return n, err
}
