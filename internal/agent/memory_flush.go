package agent

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

const (
	defaultMemoryFlushSoftThresholdTokens = 4000
	defaultMemoryFlushImportance          = 0.5
)

// memoryFlushSettings is the resolved (defaults-applied) form of
// config.MemoryFlushConfig, so callers never have to nil-check.
type memoryFlushSettings struct {
	enabled             bool
	softThresholdTokens int
}

// ResolveMemoryFlushSettings applies defaults on top of whatever the agent's
// compaction config specifies. Memory flush is on by default; a session
// qualifies once it's within softThresholdTokens of triggering compaction.
func ResolveMemoryFlushSettings(cfg *config.CompactionConfig) memoryFlushSettings {
	settings := memoryFlushSettings{enabled: true, softThresholdTokens: defaultMemoryFlushSoftThresholdTokens}
	if cfg == nil || cfg.MemoryFlush == nil {
		return settings
	}
	mf := cfg.MemoryFlush
	if mf.Enabled != nil {
		settings.enabled = *mf.Enabled
	}
	if mf.SoftThresholdTokens > 0 {
		settings.softThresholdTokens = mf.SoftThresholdTokens
	}
	return settings
}

// shouldRunMemoryFlush reports whether sessionKey's conversation is within
// settings.softThresholdTokens of the compaction threshold (75% of the
// context window), to warrant recording an episodic memory before history
// is summarized away. It does not track whether a flush already ran in the
// current compaction cycle.
func (l *Loop) shouldRunMemoryFlush(sessionKey string, tokenEstimate int, settings memoryFlushSettings) bool {
	if !settings.enabled || l.memory == nil {
		return false
	}
	threshold := int(float64(l.contextWindow) * 0.75)
	return tokenEstimate >= threshold-settings.softThresholdTokens
}

// runMemoryFlush records a single episodic event summarizing the session's
// most recent exchange, so the Memory Engine can recall it later even
// after the history that produced it is compacted away. Best-effort: a
// failure here never blocks the turn.
func (l *Loop) runMemoryFlush(ctx context.Context, sessionKey string, _ memoryFlushSettings) {
	if l.memory == nil {
		return
	}

	history := l.sessions.GetHistory(sessionKey)
	if len(history) == 0 {
		return
	}

	var recent []string
	for i := len(history) - 1; i >= 0 && len(recent) < 6; i-- {
		m := history[i]
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		recent = append([]string{m.Role + ": " + truncateStr(m.Content, 500)}, recent...)
	}
	if len(recent) == 0 {
		return
	}

	ownerID := ""
	if len(l.ownerIDs) > 0 {
		ownerID = l.ownerIDs[0]
	}

	now := time.Now().UTC()
	record := &store.EpisodicRecordData{
		ID:             sessionKey + ":" + now.Format("20060102T150405.000000000Z"),
		OwnerUserID:    ownerID,
		EventType:      store.EventTaskCompleted,
		Content:        strings.Join(recent, "\n"),
		Importance:     defaultMemoryFlushImportance,
		CreatedAt:      now.UnixMilli(),
		LastAccessedAt: now.UnixMilli(),
	}
	if err := l.memory.RecordEvent(ctx, record); err != nil {
		slog.Warn("memory flush failed", "session", sessionKey, "error", err)
	}
}
