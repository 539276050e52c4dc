package agent

import (
	"strings"

	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

const (
	defaultSoftTrimRatio        = 0.3
	defaultHardClearRatio       = 0.5
	defaultKeepLastAssistants   = 3
	defaultMinPrunableToolChars = 50000
	defaultSoftTrimMaxChars     = 4000
	defaultSoftTrimHeadChars    = 1500
	defaultSoftTrimTailChars    = 1500
	defaultHardClearPlaceholder = "[Old tool result content cleared]"
)

// pruneContextMessages trims or clears old tool-result content once the
// estimated context usage crosses the configured soft/hard ratios of the
// model's context window. It never touches the last keepLastAssistants
// assistant turns (and their tool results), so recent tool output stays
// intact for the model to reason over.
func pruneContextMessages(msgs []providers.Message, contextWindow int, cfg *config.ContextPruningConfig) []providers.Message {
	if cfg == nil || cfg.Mode == "" || cfg.Mode == "off" || contextWindow <= 0 {
		return msgs
	}

	estimate := EstimateTokens(msgs)
	softRatio := cfg.SoftTrimRatio
	if softRatio <= 0 {
		softRatio = defaultSoftTrimRatio
	}
	hardRatio := cfg.HardClearRatio
	if hardRatio <= 0 {
		hardRatio = defaultHardClearRatio
	}

	usage := float64(estimate) / float64(contextWindow)
	if usage < softRatio {
		return msgs
	}

	keepLast := cfg.KeepLastAssistants
	if keepLast <= 0 {
		keepLast = defaultKeepLastAssistants
	}
	minChars := cfg.MinPrunableToolChars
	if minChars <= 0 {
		minChars = defaultMinPrunableToolChars
	}
	if totalToolChars(msgs) < minChars {
		return msgs
	}

	protectedFrom := protectedBoundary(msgs, keepLast)
	hardClear := usage >= hardRatio

	out := make([]providers.Message, len(msgs))
	copy(out, msgs)
	for i := range out {
		if i >= protectedFrom || out[i].Role != "tool" {
			continue
		}
		if hardClear {
			out[i].Content = hardClearPlaceholder(cfg)
			continue
		}
		out[i].Content = softTrim(out[i].Content, cfg)
	}
	return out
}

// protectedBoundary returns the index of the first message belonging to
// one of the last keepLast assistant turns; messages before it are
// eligible for pruning.
func protectedBoundary(msgs []providers.Message, keepLast int) int {
	assistantsSeen := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "assistant" {
			assistantsSeen++
			if assistantsSeen > keepLast {
				return i + 1
			}
		}
	}
	return 0
}

func totalToolChars(msgs []providers.Message) int {
	total := 0
	for _, m := range msgs {
		if m.Role == "tool" {
			total += len(m.Content)
		}
	}
	return total
}

func softTrim(content string, cfg *config.ContextPruningConfig) string {
	maxChars, head, tail := defaultSoftTrimMaxChars, defaultSoftTrimHeadChars, defaultSoftTrimTailChars
	if cfg.SoftTrim != nil {
		if cfg.SoftTrim.MaxChars > 0 {
			maxChars = cfg.SoftTrim.MaxChars
		}
		if cfg.SoftTrim.HeadChars > 0 {
			head = cfg.SoftTrim.HeadChars
		}
		if cfg.SoftTrim.TailChars > 0 {
			tail = cfg.SoftTrim.TailChars
		}
	}
	if len(content) <= maxChars {
		return content
	}
	var b strings.Builder
	b.WriteString(content[:head])
	b.WriteString("\n...[trimmed]...\n")
	b.WriteString(content[len(content)-tail:])
	return b.String()
}

func hardClearPlaceholder(cfg *config.ContextPruningConfig) string {
	if cfg.HardClear != nil {
		if cfg.HardClear.Enabled != nil && !*cfg.HardClear.Enabled {
			return defaultHardClearPlaceholder
		}
		if cfg.HardClear.Placeholder != "" {
			return cfg.HardClear.Placeholder
		}
	}
	return defaultHardClearPlaceholder
}
