package tools

import (
	"context"
	"fmt"

	"github.com/nextlevelbuilder/goclaw/internal/memory"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// ============================================================
// memory_add
// ============================================================

// MemoryAddTool records an episodic memory through the Memory Engine so it
// can later be recalled through the engine's Search or GetContextForAgent.
type MemoryAddTool struct {
	engine *memory.Engine
}

func NewMemoryAddTool(engine *memory.Engine) *MemoryAddTool {
	return &MemoryAddTool{engine: engine}
}

func (t *MemoryAddTool) Name() string { return "memory_add" }
func (t *MemoryAddTool) Description() string {
	return "Record something worth remembering about the owner (a preference, a fact, an outcome) for later recall."
}

func (t *MemoryAddTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"content": map[string]interface{}{
				"type":        "string",
				"description": "What to remember",
			},
			"event_type": map[string]interface{}{
				"type":        "string",
				"description": "One of: preference, fact, task_completed, correction",
			},
			"outcome": map[string]interface{}{
				"type":        "string",
				"description": "Optional outcome/result associated with this memory",
			},
		},
		"required": []string{"content"},
	}
}

func (t *MemoryAddTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	if t.engine == nil {
		return ErrorResult("memory engine not available")
	}

	content, _ := args["content"].(string)
	if content == "" {
		return ErrorResult("content is required")
	}
	eventTypeStr, _ := args["event_type"].(string)
	outcome, _ := args["outcome"].(string)

	userID := store.UserIDFromCtx(ctx)
	if userID == "" {
		return ErrorResult("no owner context for memory write")
	}

	rec, err := t.engine.RecordEvent(ctx, userID, parseEventType(eventTypeStr), content, outcome)
	if err != nil {
		return ErrorResult(fmt.Sprintf("memory_add failed: %v", err))
	}

	return SilentResult(fmt.Sprintf(`{"status":"recorded","id":"%s"}`, rec.ID))
}

func parseEventType(s string) store.EpisodicEventType {
	switch s {
	case "preference":
		return store.EventPreferenceLearned
	case "fact":
		return store.EventFactStored
	case "correction":
		return store.EventCorrection
	default:
		return store.EventTaskCompleted
	}
}
