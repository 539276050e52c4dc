package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/sandbox"
)

func TestExecuteCodeToolRunsSnippet(t *testing.T) {
	sb := sandbox.New(sandbox.Config{})
	defer sb.Shutdown()
	tool := NewExecuteCodeTool(sb)

	res := tool.Execute(context.Background(), map[string]interface{}{"code": "1 + 1"})
	if res.IsError {
		t.Fatalf("unexpected error: %s", res.ForLLM)
	}
	if !strings.Contains(res.ForLLM, `"success":true`) {
		t.Fatalf("expected success result, got %s", res.ForLLM)
	}
}

func TestExecuteCodeToolRequiresCode(t *testing.T) {
	sb := sandbox.New(sandbox.Config{})
	defer sb.Shutdown()
	tool := NewExecuteCodeTool(sb)

	res := tool.Execute(context.Background(), map[string]interface{}{})
	if !res.IsError {
		t.Fatal("expected error for missing code")
	}
}
