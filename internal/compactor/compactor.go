// Package compactor implements a three-tier conversation summarizer:
// L0 raw recent turns, L1 coarse rolling summary, L2 archival summary.
// It generalizes the single-tier maybeSummarize/buildMessages pattern in
// internal/agent/loop_history.go into a tiered model.
package compactor

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// Config controls tier budgets and pre-compression behavior.
type Config struct {
	// L0KeepMessages is how many of the most recent raw messages stay
	// untouched in the active window.
	L0KeepMessages int
	// TokenThreshold triggers compaction once the estimated token count of
	// the active window exceeds it.
	TokenThreshold int
	// StripEmoji removes emoji characters during pre-compression.
	StripEmoji bool
	// DedupLines removes exact duplicate lines during pre-compression.
	DedupLines bool
	// DedupSimilarity is the near-identical-sentence threshold (default 0.85).
	DedupSimilarity float64

	SummarizeModel string
}

func (c Config) withDefaults() Config {
	if c.L0KeepMessages <= 0 {
		c.L0KeepMessages = 8
	}
	if c.TokenThreshold <= 0 {
		c.TokenThreshold = 6000
	}
	if c.DedupSimilarity <= 0 {
		c.DedupSimilarity = 0.85
	}
	return c
}

// state is the per-session tiered summary state.
type state struct {
	mu sync.Mutex
	l1 string
	l2 string
}

// Compactor manages tiered summarization across sessions, backed by a
// provider call for the actual summarization text.
type Compactor struct {
	cfg      Config
	provider providers.Provider
	mu       sync.Mutex
	sessions map[string]*state
}

// New creates a Compactor.
func New(cfg Config, provider providers.Provider) *Compactor {
	return &Compactor{
		cfg:      cfg.withDefaults(),
		provider: provider,
		sessions: make(map[string]*state),
	}
}

func (c *Compactor) stateFor(sessionKey string) *state {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[sessionKey]
	if !ok {
		s = &state{}
		c.sessions[sessionKey] = s
	}
	return s
}

// EstimateTokens is a cheap, deterministic proxy for token count (~4
// characters per token) as a calibration fallback.
func EstimateTokens(msgs []providers.Message) int {
	chars := 0
	for _, m := range msgs {
		chars += len(m.Content)
	}
	return chars / 4
}

// CompactIfNeeded summarizes the oldest messages of history into L1 (and
// rolls the previous L1 into L2 unless the new L1 closely restates it) when
// the active window exceeds the token threshold. Returns the retained L0 window. Non-fatal: summary
// failures are logged and the original history returned unchanged.
func (c *Compactor) CompactIfNeeded(ctx context.Context, sessionKey string, history []providers.Message) []providers.Message {
	if EstimateTokens(history) <= c.cfg.TokenThreshold || len(history) <= c.cfg.L0KeepMessages {
		return history
	}

	toSummarize := history[:len(history)-c.cfg.L0KeepMessages]
	retained := history[len(history)-c.cfg.L0KeepMessages:]

	text := preCompress(renderMessages(toSummarize), c.cfg)

	st := c.stateFor(sessionKey)
	st.mu.Lock()
	defer st.mu.Unlock()

	summary, err := c.summarize(ctx, text, st.l1)
	if err != nil {
		slog.Warn("compactor: summarization failed, skipping compaction", "session", sessionKey, "error", err)
		return history
	}

	if st.l1 != "" && similarEnough(st.l1, summary, c.cfg.DedupSimilarity) {
		// New L1 restates the old one closely; just extend rather than
		// rolling to L2 to avoid losing the distinct older facts.
		st.l1 = summary
		return retained
	}

	if st.l1 != "" {
		// Roll the previous L1 into L2 (archival tier).
		l2Summary, err := c.summarize(ctx, st.l1, st.l2)
		if err != nil {
			slog.Warn("compactor: L2 rollup failed", "session", sessionKey, "error", err)
		} else {
			st.l2 = dedupText(st.l2, l2Summary, c.cfg.DedupSimilarity)
		}
	}
	st.l1 = summary
	return retained
}

// GetLatestSummary returns the current L1 (and L2, if present) as a single
// string ready for injection as a system message.
func (c *Compactor) GetLatestSummary(sessionKey string) string {
	st := c.stateFor(sessionKey)
	st.mu.Lock()
	defer st.mu.Unlock()

	var b strings.Builder
	if st.l2 != "" {
		b.WriteString("[Archival summary]\n")
		b.WriteString(st.l2)
		b.WriteString("\n\n")
	}
	if st.l1 != "" {
		b.WriteString("[Recent summary]\n")
		b.WriteString(st.l1)
	}
	return strings.TrimSpace(b.String())
}

func (c *Compactor) summarize(ctx context.Context, text, existing string) (string, error) {
	if c.provider == nil {
		return text, nil
	}
	prompt := "Provide a concise summary of this conversation, preserving key context and facts:\n"
	if existing != "" {
		prompt += "Existing context: " + existing + "\n"
	}
	prompt += "\n" + text

	resp, err := c.provider.Chat(ctx, providers.ChatRequest{
		Messages: []providers.Message{{Role: "user", Content: prompt}},
		Model:    c.cfg.SummarizeModel,
		Options:  map[string]interface{}{"max_tokens": 1024, "temperature": 0.3},
	})
	if err != nil {
		return "", fmt.Errorf("compactor: summarize call: %w", err)
	}
	return strings.TrimSpace(resp.Content), nil
}

func renderMessages(msgs []providers.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role != "user" && m.Role != "assistant" {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return b.String()
}

var emojiPattern = regexp.MustCompile(`[\x{1F000}-\x{1FFFF}\x{2600}-\x{27BF}]`)

// preCompress strips emoji and duplicate lines ahead of summarization,
// as a pre-compression step.
func preCompress(text string, cfg Config) string {
	if cfg.StripEmoji {
		text = emojiPattern.ReplaceAllString(text, "")
	}
	if cfg.DedupLines {
		seen := make(map[string]bool)
		lines := strings.Split(text, "\n")
		var out []string
		for _, l := range lines {
			key := strings.TrimSpace(l)
			if key == "" || !seen[key] {
				out = append(out, l)
				if key != "" {
					seen[key] = true
				}
			}
		}
		text = strings.Join(out, "\n")
	}
	return text
}

// dedupText appends add to base only if it isn't near-identical to it.
func dedupText(base, add string, threshold float64) string {
	if base == "" {
		return add
	}
	if similarEnough(base, add, threshold) {
		return base
	}
	return base + "\n" + add
}

func similarEnough(a, b string, threshold float64) bool {
	ag := trigramSet(a)
	bg := trigramSet(b)
	if len(ag) == 0 || len(bg) == 0 {
		return a == b
	}
	inter := 0
	for g := range ag {
		if bg[g] {
			inter++
		}
	}
	union := len(ag) + len(bg) - inter
	if union == 0 {
		return false
	}
	return float64(inter)/float64(union) >= threshold
}

func trigramSet(s string) map[string]bool {
	s = strings.ToLower(strings.TrimSpace(s))
	out := make(map[string]bool)
	runes := []rune(s)
	if len(runes) < 3 {
		if s != "" {
			out[s] = true
		}
		return out
	}
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = true
	}
	return out
}
