package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// SubagentStore implements store.SubagentStore against the sub_agents table.
type SubagentStore struct {
	db *DB
}

func NewSubagentStore(db *DB) *SubagentStore {
	return &SubagentStore{db: db}
}

func (s *SubagentStore) Create(ctx context.Context, a *store.SubAgentData) error {
	tools, err := json.Marshal(a.ToolsGranted)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sub_agents (id, owner_user_id, role, system_prompt, tools_granted, tier_preference, status, performance_score, total_tasks, successful_tasks, template_id, created_at, last_active_at, deleted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.OwnerUserID, a.Role, a.SystemPrompt, string(tools), a.TierPreference, a.Status,
		a.PerformanceScore, a.TotalTasks, a.SuccessfulTasks, a.TemplateID, a.CreatedAt, a.LastActiveAt, a.DeletedAt)
	return err
}

func (s *SubagentStore) scan(row *sql.Row) (*store.SubAgentData, error) {
	var a store.SubAgentData
	var toolsJSON string
	err := row.Scan(&a.ID, &a.OwnerUserID, &a.Role, &a.SystemPrompt, &toolsJSON, &a.TierPreference,
		&a.Status, &a.PerformanceScore, &a.TotalTasks, &a.SuccessfulTasks, &a.TemplateID,
		&a.CreatedAt, &a.LastActiveAt, &a.DeletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sub-agent not found")
		}
		return nil, err
	}
	_ = json.Unmarshal([]byte(toolsJSON), &a.ToolsGranted)
	return &a, nil
}

func (s *SubagentStore) Get(ctx context.Context, id string) (*store.SubAgentData, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner_user_id, role, system_prompt, tools_granted, tier_preference, status, performance_score, total_tasks, successful_tasks, template_id, created_at, last_active_at, deleted_at
		FROM sub_agents WHERE id = ?
	`, id)
	return s.scan(row)
}

func (s *SubagentStore) Update(ctx context.Context, a *store.SubAgentData) error {
	tools, err := json.Marshal(a.ToolsGranted)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE sub_agents SET role=?, system_prompt=?, tools_granted=?, tier_preference=?, status=?,
			performance_score=?, total_tasks=?, successful_tasks=?, template_id=?, last_active_at=?, deleted_at=?
		WHERE id = ?
	`, a.Role, a.SystemPrompt, string(tools), a.TierPreference, a.Status, a.PerformanceScore,
		a.TotalTasks, a.SuccessfulTasks, a.TemplateID, a.LastActiveAt, a.DeletedAt, a.ID)
	return err
}

func (s *SubagentStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sub_agents WHERE id = ?`, id)
	return err
}

func (s *SubagentStore) ListByOwner(ctx context.Context, ownerUserID string, includeSoftDeleted bool) ([]*store.SubAgentData, error) {
	query := `SELECT id, owner_user_id, role, system_prompt, tools_granted, tier_preference, status, performance_score, total_tasks, successful_tasks, template_id, created_at, last_active_at, deleted_at FROM sub_agents WHERE owner_user_id = ?`
	if !includeSoftDeleted {
		query += ` AND status != 'soft_deleted'`
	}
	query += ` ORDER BY last_active_at DESC`

	rows, err := s.db.QueryContext(ctx, query, ownerUserID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*store.SubAgentData
	for rows.Next() {
		var a store.SubAgentData
		var toolsJSON string
		if err := rows.Scan(&a.ID, &a.OwnerUserID, &a.Role, &a.SystemPrompt, &toolsJSON, &a.TierPreference,
			&a.Status, &a.PerformanceScore, &a.TotalTasks, &a.SuccessfulTasks, &a.TemplateID,
			&a.CreatedAt, &a.LastActiveAt, &a.DeletedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(toolsJSON), &a.ToolsGranted)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SubagentStore) CountActive(ctx context.Context, ownerUserID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sub_agents WHERE owner_user_id = ? AND status = 'active'`, ownerUserID).Scan(&n)
	return n, err
}
