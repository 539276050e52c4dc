package agent

import "github.com/nextlevelbuilder/goclaw/internal/providers"

// charsPerTokenFallback is the heuristic used until a session has at
// least one real provider usage report to calibrate against.
const charsPerTokenFallback = 3.0

// EstimateTokensWithCalibration estimates the token count of messages.
// If lastPromptTokens/lastMsgCount are available from a prior provider
// response, it derives a per-message average from that real usage figure
// and scales it to the current message count — far more accurate for
// multilingual or code-heavy content than a flat chars/3 heuristic.
func EstimateTokensWithCalibration(messages []providers.Message, lastPromptTokens, lastMsgCount int) int {
	if lastPromptTokens > 0 && lastMsgCount > 0 {
		perMessage := float64(lastPromptTokens) / float64(lastMsgCount)
		return int(perMessage * float64(len(messages)))
	}
	return EstimateTokens(messages)
}
