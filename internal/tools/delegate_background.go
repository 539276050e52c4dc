package tools

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/background"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/subagents"
)

// ============================================================
// delegate_background
// ============================================================

// SubagentTaskRunner actually executes a delegated task against a named
// sub-agent and returns its final text. Wired in by cmd/serve.go once an
// agent.Loop exists to run the sub-agent turn; nil during tests.
type SubagentTaskRunner func(ctx context.Context, subAgent *store.SubAgentData, task string) (string, error)

// DelegateBackgroundTool hands a task to a (possibly reused) sub-agent and
// runs it on the Background Runner, returning immediately with a task id so
// the owner can keep chatting while it runs.
type DelegateBackgroundTool struct {
	runner    *background.Runner
	subagents *subagents.Manager
	run       SubagentTaskRunner
}

func NewDelegateBackgroundTool(runner *background.Runner, mgr *subagents.Manager, run SubagentTaskRunner) *DelegateBackgroundTool {
	return &DelegateBackgroundTool{runner: runner, subagents: mgr, run: run}
}

func (t *DelegateBackgroundTool) Name() string { return "delegate_background" }
func (t *DelegateBackgroundTool) Description() string {
	return "Delegate a task to a background sub-agent and return immediately; the result is delivered on your next turn."
}

func (t *DelegateBackgroundTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"task": map[string]interface{}{
				"type":        "string",
				"description": "The task to delegate, in full detail",
			},
			"role": map[string]interface{}{
				"type":        "string",
				"description": "A short role label for the sub-agent, e.g. \"Technical Research Analyst\"",
			},
			"tier": map[string]interface{}{
				"type":        "string",
				"description": "One of: simple, moderate, complex, reasoning",
			},
		},
		"required": []string{"task", "role"},
	}
}

func (t *DelegateBackgroundTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.runner == nil || t.subagents == nil {
		return ErrorResult("background delegation not available")
	}

	task, _ := args["task"].(string)
	role, _ := args["role"].(string)
	tier, _ := args["tier"].(string)
	if task == "" || role == "" {
		return ErrorResult("task and role are required")
	}

	userID := store.UserIDFromCtx(ctx)
	if userID == "" {
		return ErrorResult("no owner context for delegation")
	}

	agent, err := t.subagents.FindReusable(ctx, userID, role)
	if err != nil {
		return ErrorResult(fmt.Sprintf("delegate_background: find reusable: %v", err))
	}
	if agent == nil {
		agent, err = t.subagents.Create(ctx, subagents.CreateRequest{
			OwnerUserID:    userID,
			Role:           role,
			TierPreference: tier,
		})
		if err != nil {
			return ErrorResult(fmt.Sprintf("delegate_background: create sub-agent: %v", err))
		}
	}

	runTask := t.run
	taskID, err := t.runner.Start(ctx, userID, agent.ID, task, func(ctx context.Context, bg *store.BackgroundTaskData) (string, error) {
		if runTask == nil {
			return "", fmt.Errorf("no sub-agent runner configured")
		}
		out, runErr := runTask(ctx, agent, task)
		_ = t.subagents.RecordTaskResult(context.Background(), agent.ID, runErr == nil)
		return out, runErr
	})
	if err != nil {
		return ErrorResult(fmt.Sprintf("delegate_background: start: %v", err))
	}

	return SilentResult(fmt.Sprintf(`{"status":"accepted","taskId":"%s","agentId":"%s"}`, taskID, agent.ID))
}
