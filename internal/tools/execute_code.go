package tools

import (
	"context"
	"encoding/json"

	"github.com/nextlevelbuilder/goclaw/internal/sandbox"
)

// ============================================================
// execute_code
// ============================================================

// ExecuteCodeTool runs untrusted JavaScript in the Code Sandbox, with no
// filesystem or network access and a bounded wall-clock timeout.
type ExecuteCodeTool struct {
	sandbox *sandbox.Sandbox
}

func NewExecuteCodeTool(sb *sandbox.Sandbox) *ExecuteCodeTool {
	return &ExecuteCodeTool{sandbox: sb}
}

func (t *ExecuteCodeTool) Name() string { return "execute_code" }
func (t *ExecuteCodeTool) Description() string {
	return "Run a short JavaScript snippet in an isolated sandbox (no filesystem or network access) and return its result."
}

func (t *ExecuteCodeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"code": map[string]interface{}{
				"type":        "string",
				"description": "JavaScript source to evaluate",
			},
			"input": map[string]interface{}{
				"type":        "string",
				"description": "Optional value bound to `input` inside the sandbox",
			},
			"timeout_ms": map[string]interface{}{
				"type":        "integer",
				"description": "Wall-clock timeout in milliseconds (default 5000, max 30000)",
			},
		},
		"required": []string{"code"},
	}
}

func (t *ExecuteCodeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.sandbox == nil {
		return ErrorResult("sandbox not available")
	}

	code, _ := args["code"].(string)
	if code == "" {
		return ErrorResult("code is required")
	}
	input, hasInput := args["input"].(string)

	var timeoutMs int
	switch v := args["timeout_ms"].(type) {
	case float64:
		timeoutMs = int(v)
	case int:
		timeoutMs = v
	}
	opts := sandbox.Options{TimeoutMs: timeoutMs}

	var res sandbox.Result
	if hasInput {
		res = t.sandbox.ExecuteWithInput(ctx, code, input, opts)
	} else {
		res = t.sandbox.Execute(ctx, code, opts)
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return ErrorResult("execute_code: failed to encode result")
	}

	if !res.Success {
		return &Result{ForLLM: string(payload), IsError: true}
	}
	return NewResult(string(payload))
}
