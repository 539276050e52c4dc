package shield

import (
	"os"
	"path/filepath"
	"testing"
)

const sampleFeed = "```\n" +
	"id: T-001\n" +
	"fingerprint: abc123\n" +
	"category: tool\n" +
	"severity: high\n" +
	"confidence: 0.9\n" +
	"action: block\n" +
	"title: shell rm -rf\n" +
	"description: destructive shell invocation\n" +
	"recommendation_agent:\n" +
	"  BLOCK: tool.call execute_shell with arguments containing (rm -rf)\n" +
	"```\n" +
	"```\n" +
	"id: T-002\n" +
	"category: tool\n" +
	"severity: medium\n" +
	"confidence: 0.6\n" +
	"action: require_approval\n" +
	"title: outbound webhook\n" +
	"recommendation_agent:\n" +
	"  APPROVE: outbound request to evil.example.com\n" +
	"```\n"

func writeFeed(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "threats.md")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEvaluateBlocksOnMatchingArgument(t *testing.T) {
	path := writeFeed(t, sampleFeed)
	e, err := New(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	d := e.Evaluate(Event{
		Scope:     ScopeToolCall,
		ToolName:  "execute_shell",
		Arguments: map[string]string{"command": "rm -rf /tmp/x"},
	})
	if d.Action != ActionBlock {
		t.Fatalf("expected block, got %s", d.Action)
	}
	if d.ThreatID != "T-001" {
		t.Fatalf("expected T-001, got %s", d.ThreatID)
	}
}

func TestEvaluateNoMatchReturnsLog(t *testing.T) {
	path := writeFeed(t, sampleFeed)
	e, err := New(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	d := e.Evaluate(Event{Scope: ScopeToolCall, ToolName: "read_file"})
	if d.Action != ActionLog || d.ThreatID != "" {
		t.Fatalf("expected no-op log decision, got %+v", d)
	}
}

func TestEvaluateDomainSuffixMatch(t *testing.T) {
	path := writeFeed(t, sampleFeed)
	e, err := New(path, false)
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	d := e.Evaluate(Event{Scope: ScopeNetworkEgress, Domain: "api.evil.example.com"})
	if d.Action != ActionRequireApproval {
		t.Fatalf("expected require_approval via suffix match, got %s", d.Action)
	}
}

func TestMissingFeedFileIsNotAnError(t *testing.T) {
	e, err := New(filepath.Join(t.TempDir(), "missing.md"), false)
	if err != nil {
		t.Fatal(err)
	}
	d := e.Evaluate(Event{Scope: ScopeToolCall, ToolName: "anything"})
	if d.Action != ActionLog {
		t.Fatalf("expected log default with no feed, got %s", d.Action)
	}
}
