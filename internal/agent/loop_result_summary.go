package agent

// toolResultPhrases gives a short human-facing phrase for tools whose
// result shouldn't be narrated by the model — a fixed table of
// tool-name-to-phrase mappings. Tools not listed here fall back to a
// generic acknowledgment.
var toolResultPhrases = map[string]string{
	"execute_code":    "Ran that for you.",
	"identity_update": "Updated.",
	"memory_add":      "Got it, I'll remember that.",
	"sessions_send":   "Sent.",
	"create_image":    "Here you go.",
}

// isNarratedResultTool reports whether toolName's result should be fed back
// to the model for narration (read/search/recall/list operations, plus the
// delegation family) rather than summarized with a fixed phrase.
func isNarratedResultTool(toolName string) bool {
	switch toolName {
	case "memory_search", "memory_get", "sessions_list", "sessions_history",
		"session_status", "read_file", "read_image", "web_search", "web_fetch",
		"delegate_background":
		return true
	default:
		return false
	}
}

// summarizeToolResult produces the fixed-phrase summary for a non-narrated
// tool result.
func summarizeToolResult(toolName string) string {
	if phrase, ok := toolResultPhrases[toolName]; ok {
		return phrase
	}
	return "Done."
}
