package tools

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/bootstrap"
)

func TestIdentityUpdateToolWritesFile(t *testing.T) {
	dir := t.TempDir()
	tool := NewIdentityUpdateTool()

	ctx := WithToolWorkspace(context.Background(), dir)
	res := tool.Execute(ctx, map[string]interface{}{"name": "Pip", "tagline": "Your small-but-mighty AI companion"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}

	content, err := os.ReadFile(filepath.Join(dir, bootstrap.IdentityFile))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(content), "Pip") {
		t.Fatalf("expected written file to contain the new name, got %s", content)
	}
}

func TestIdentityUpdateToolBacksUpExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, bootstrap.IdentityFile)
	if err := os.WriteFile(path, []byte("# Identity\n\nName: Ant\n"), 0644); err != nil {
		t.Fatal(err)
	}

	tool := NewIdentityUpdateTool()
	ctx := WithToolWorkspace(context.Background(), dir)
	res := tool.Execute(ctx, map[string]interface{}{"name": "Pip"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}

	backupDir := filepath.Join(dir, "heartware", ".backups")
	entries, err := os.ReadDir(backupDir)
	if err != nil {
		t.Fatalf("expected backup dir to exist: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one backup file, got %d", len(entries))
	}
}

