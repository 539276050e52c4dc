// Package memory implements the Memory Engine: episodic-record search with
// a relevance blend of recency, importance, and FTS rank, plus periodic
// consolidation (merge/prune/decay).
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// Relevance blend weights, tuned so the three terms are roughly equal for a
// one-day-old, medium-importance hit.
const (
	weightFTSRank    = 0.4
	weightRecency    = 0.35
	weightImportance = 0.6
	recencyLambda    = 0.15 // exp(-lambda * ageDays)

	defaultImportance = 0.5

	consolidateDuplicateThreshold = 0.85
	consolidatePruneImportance    = 0.2
	consolidatePruneAge           = 7 * 24 * time.Hour
	consolidateDecayAge           = 30 * 24 * time.Hour
	consolidateDecayFactor        = 0.9
)

// Engine wraps a store.MemoryStore with the scoring and consolidation logic
// this engine needs.
type Engine struct {
	store store.MemoryStore
	now   func() time.Time
}

// New creates an Engine backed by s.
func New(s store.MemoryStore) *Engine {
	return &Engine{store: s, now: time.Now}
}

// RecordEvent persists a new episodic record with default importance and
// zero access count.
func (e *Engine) RecordEvent(ctx context.Context, ownerUserID string, eventType store.EpisodicEventType, content, outcome string) (*store.EpisodicRecordData, error) {
	now := e.now().UnixMilli()
	rec := &store.EpisodicRecordData{
		ID:             uuid.NewString(),
		OwnerUserID:    ownerUserID,
		EventType:      eventType,
		Content:        content,
		Outcome:        outcome,
		Importance:     defaultImportance,
		AccessCount:    0,
		CreatedAt:      now,
		LastAccessedAt: now,
	}
	if err := e.store.RecordEvent(ctx, rec); err != nil {
		return nil, fmt.Errorf("memory: record event: %w", err)
	}
	return rec, nil
}

// ScoredRecord pairs a record with its blended relevance score.
type ScoredRecord struct {
	Record *store.EpisodicRecordData
	Score  float64
}

// Search returns the top `limit` records for ownerUserID ranked by the
// weighted blend of FTS rank, recency, and importance.
func (e *Engine) Search(ctx context.Context, ownerUserID, query string, limit int) ([]ScoredRecord, error) {
	hits, err := e.store.Search(ctx, ownerUserID, query, limit*3+10)
	if err != nil {
		return nil, fmt.Errorf("memory: search: %w", err)
	}
	now := e.now()
	scored := make([]ScoredRecord, 0, len(hits))
	for _, h := range hits {
		ageDays := now.Sub(time.UnixMilli(h.Record.CreatedAt)).Hours() / 24
		if ageDays < 0 {
			ageDays = 0
		}
		// h.Score is higher for a better match; map it into [0,1).
		ftsScore := 0.0
		if h.Score > 0 {
			ftsScore = h.Score / (1.0 + h.Score)
		}
		recencyScore := math.Exp(-recencyLambda * ageDays)
		score := weightFTSRank*ftsScore + weightRecency*recencyScore + weightImportance*h.Record.Importance
		scored = append(scored, ScoredRecord{Record: h.Record, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Record.LastAccessedAt > scored[j].Record.LastAccessedAt
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

// Reinforce bumps a record's access count and last-accessed timestamp.
func (e *Engine) Reinforce(ctx context.Context, id string) error {
	if err := e.store.Reinforce(ctx, id, e.now().UnixMilli()); err != nil {
		return fmt.Errorf("memory: reinforce: %w", err)
	}
	return nil
}

// GetContextForAgent returns a short prompt-ready block of the top hits for
// injection into the system prompt (empty string if there is nothing
// relevant).
func (e *Engine) GetContextForAgent(ctx context.Context, ownerUserID, query string) (string, error) {
	const topK = 5
	var (
		hits []ScoredRecord
		err  error
	)
	if strings.TrimSpace(query) != "" {
		hits, err = e.Search(ctx, ownerUserID, query, topK)
	} else {
		var all []*store.EpisodicRecordData
		all, err = e.store.ListByOwner(ctx, ownerUserID)
		if err == nil {
			sort.Slice(all, func(i, j int) bool { return all[i].LastAccessedAt > all[j].LastAccessedAt })
			if len(all) > topK {
				all = all[:topK]
			}
			for _, r := range all {
				hits = append(hits, ScoredRecord{Record: r})
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("memory: get context: %w", err)
	}
	if len(hits) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("Relevant memory:\n")
	for _, h := range hits {
		fmt.Fprintf(&b, "- (%s) %s\n", h.Record.EventType, h.Record.Content)
	}
	return b.String(), nil
}

// ConsolidateResult reports what a consolidation pass did.
type ConsolidateResult struct {
	Merged  int
	Pruned  int
	Decayed int
}

// Consolidate merges near-duplicates, prunes low-value records, and decays
// stale importance.
func (e *Engine) Consolidate(ctx context.Context, ownerUserID string) (ConsolidateResult, error) {
	records, err := e.store.ListByOwner(ctx, ownerUserID)
	if err != nil {
		return ConsolidateResult{}, fmt.Errorf("memory: consolidate list: %w", err)
	}

	var result ConsolidateResult
	now := e.now()

	merged := make(map[string]bool)
	for i := 0; i < len(records); i++ {
		if merged[records[i].ID] {
			continue
		}
		var dups []*store.EpisodicRecordData
		for j := i + 1; j < len(records); j++ {
			if merged[records[j].ID] {
				continue
			}
			if ngramSimilarity(records[i].Content, records[j].Content) >= consolidateDuplicateThreshold {
				dups = append(dups, records[j])
			}
		}
		if len(dups) > 0 {
			keep := records[i]
			accessCount := keep.AccessCount
			importance := keep.Importance
			var removeIDs []string
			for _, d := range dups {
				accessCount += d.AccessCount
				if d.Importance > importance {
					importance = d.Importance
				}
				removeIDs = append(removeIDs, d.ID)
				merged[d.ID] = true
			}
			if err := e.store.Merge(ctx, keep.ID, removeIDs, accessCount, importance); err != nil {
				return result, fmt.Errorf("memory: merge: %w", err)
			}
			result.Merged += len(removeIDs)
		}
	}

	for _, r := range records {
		if merged[r.ID] {
			continue
		}
		age := now.Sub(time.UnixMilli(r.CreatedAt))
		if r.Importance < consolidatePruneImportance && r.AccessCount == 0 && age > consolidatePruneAge {
			if err := e.store.Delete(ctx, r.ID); err != nil {
				return result, fmt.Errorf("memory: prune: %w", err)
			}
			result.Pruned++
			continue
		}
		if age > consolidateDecayAge {
			r.Importance *= consolidateDecayFactor
			if err := e.store.Update(ctx, r); err != nil {
				return result, fmt.Errorf("memory: decay: %w", err)
			}
			result.Decayed++
		}
	}

	return result, nil
}

// ngramSimilarity computes a character trigram Jaccard similarity between a
// and b, used to detect near-duplicate episodic records.
func ngramSimilarity(a, b string) float64 {
	ag := trigrams(a)
	bg := trigrams(b)
	if len(ag) == 0 || len(bg) == 0 {
		if a == b {
			return 1
		}
		return 0
	}
	inter := 0
	for g := range ag {
		if bg[g] {
			inter++
		}
	}
	union := len(ag) + len(bg) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func trigrams(s string) map[string]bool {
	s = strings.ToLower(strings.TrimSpace(s))
	out := make(map[string]bool)
	if len(s) < 3 {
		if s != "" {
			out[s] = true
		}
		return out
	}
	runes := []rune(s)
	for i := 0; i+3 <= len(runes); i++ {
		out[string(runes[i:i+3])] = true
	}
	return out
}
