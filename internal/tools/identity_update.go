package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/bootstrap"
)

// ============================================================
// identity_update
// ============================================================

// IdentityUpdateTool rewrites the owner-facing IDENTITY.md heartware file.
// It is owner-only (see policy.go's ownerOnlyTools); the authority gate in
// the turn orchestrator refuses it for any non-owner principal before this
// ever runs.
type IdentityUpdateTool struct{}

func NewIdentityUpdateTool() *IdentityUpdateTool { return &IdentityUpdateTool{} }

func (t *IdentityUpdateTool) Name() string { return "identity_update" }
func (t *IdentityUpdateTool) Description() string {
	return "Update the companion's name and tagline in IDENTITY.md. Owner only."
}

func (t *IdentityUpdateTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"name": map[string]interface{}{
				"type":        "string",
				"description": "The companion's new name",
			},
			"tagline": map[string]interface{}{
				"type":        "string",
				"description": "A short tagline describing the companion",
			},
		},
		"required": []string{"name"},
	}
}

func (t *IdentityUpdateTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	workspace := ToolWorkspaceFromCtx(ctx)
	if workspace == "" {
		return ErrorResult("identity_update: no workspace available")
	}

	name, _ := args["name"].(string)
	tagline, _ := args["tagline"].(string)
	if name == "" {
		return ErrorResult("name is required")
	}

	path := filepath.Join(workspace, bootstrap.IdentityFile)
	if err := backupHeartwareFile(workspace, path, bootstrap.IdentityFile); err != nil {
		return ErrorResult(fmt.Sprintf("identity_update: backup failed: %v", err))
	}

	content := fmt.Sprintf("# Identity\n\nName: %s\n", name)
	if tagline != "" {
		content += fmt.Sprintf("Tagline: %s\n", tagline)
	}

	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return ErrorResult(fmt.Sprintf("identity_update: write failed: %v", err))
	}

	return SilentResult(fmt.Sprintf(`{"status":"updated","name":%q}`, name))
}

// backupHeartwareFile copies an existing heartware file into
// <workspace>/heartware/.backups/ before it's overwritten. Missing source
// files are not an error — there's nothing to back up on first write.
func backupHeartwareFile(workspace, path, name string) error {
	existing, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	backupDir := filepath.Join(workspace, "heartware", ".backups")
	if err := os.MkdirAll(backupDir, 0755); err != nil {
		return err
	}

	stamp := time.Now().UTC().Format("20060102T150405.000000000Z")
	backupPath := filepath.Join(backupDir, fmt.Sprintf("%s.%s.bak", name, stamp))
	return os.WriteFile(backupPath, existing, 0644)
}
