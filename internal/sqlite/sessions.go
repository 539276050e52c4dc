package sqlite

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// SessionStore implements store.SessionStore against the sessions table.
// Conversation state is small enough per-key that we keep an in-memory
// mirror guarded by a mutex and flush it to sqlite on Save, matching the
// teacher's file-backed sessions.Manager caching idiom.
type SessionStore struct {
	db *DB

	mu  sync.RWMutex
	hot map[string]*store.SessionData
}

func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db, hot: make(map[string]*store.SessionData)}
}

func (s *SessionStore) load(key string) *store.SessionData {
	s.mu.RLock()
	if sd, ok := s.hot[key]; ok {
		s.mu.RUnlock()
		return sd
	}
	s.mu.RUnlock()

	var msgsJSON, summary, model, provider, channel string
	var created, updated, input, output int64
	var compactionCount int
	row := s.db.QueryRow(`SELECT messages_json, summary, model, provider, channel, input_tokens, output_tokens, compaction_count, created_at, updated_at FROM sessions WHERE key = ?`, key)
	err := row.Scan(&msgsJSON, &summary, &model, &provider, &channel, &input, &output, &compactionCount, &created, &updated)

	sd := &store.SessionData{Key: key}
	if err == nil {
		var msgs []providers.Message
		_ = json.Unmarshal([]byte(msgsJSON), &msgs)
		sd.Messages = msgs
		sd.Summary = summary
		sd.Model = model
		sd.Provider = provider
		sd.Channel = channel
		sd.InputTokens = input
		sd.OutputTokens = output
		sd.CompactionCount = compactionCount
		sd.Created = time.UnixMilli(created)
		sd.Updated = time.UnixMilli(updated)
	} else {
		now := time.Now()
		sd.Created = now
		sd.Updated = now
	}

	s.mu.Lock()
	s.hot[key] = sd
	s.mu.Unlock()
	return sd
}

func (s *SessionStore) GetOrCreate(key string) *store.SessionData {
	return s.load(key)
}

func (s *SessionStore) touch(key string, fn func(sd *store.SessionData)) {
	sd := s.load(key)
	s.mu.Lock()
	fn(sd)
	sd.Updated = time.Now()
	s.mu.Unlock()
}

func (s *SessionStore) AddMessage(key string, msg providers.Message) {
	s.touch(key, func(sd *store.SessionData) { sd.Messages = append(sd.Messages, msg) })
}

func (s *SessionStore) GetHistory(key string) []providers.Message {
	sd := s.load(key)
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]providers.Message, len(sd.Messages))
	copy(out, sd.Messages)
	return out
}

func (s *SessionStore) GetSummary(key string) string {
	return s.load(key).Summary
}

func (s *SessionStore) SetSummary(key, summary string) {
	s.touch(key, func(sd *store.SessionData) { sd.Summary = summary })
}

func (s *SessionStore) SetLabel(key, label string) {
	s.touch(key, func(sd *store.SessionData) { sd.Label = label })
}

func (s *SessionStore) SetAgentInfo(key string, agentUUID uuid.UUID, userID string) {
	s.touch(key, func(sd *store.SessionData) { sd.AgentUUID = agentUUID; sd.UserID = userID })
}

func (s *SessionStore) UpdateMetadata(key, model, provider, channel string) {
	s.touch(key, func(sd *store.SessionData) {
		sd.Model, sd.Provider, sd.Channel = model, provider, channel
	})
}

func (s *SessionStore) AccumulateTokens(key string, input, output int64) {
	s.touch(key, func(sd *store.SessionData) { sd.InputTokens += input; sd.OutputTokens += output })
}

func (s *SessionStore) IncrementCompaction(key string) {
	s.touch(key, func(sd *store.SessionData) { sd.CompactionCount++ })
}

func (s *SessionStore) GetCompactionCount(key string) int {
	return s.load(key).CompactionCount
}

func (s *SessionStore) GetMemoryFlushCompactionCount(key string) int {
	return s.load(key).MemoryFlushCompactionCount
}

func (s *SessionStore) SetMemoryFlushDone(key string) {
	s.touch(key, func(sd *store.SessionData) {
		sd.MemoryFlushCompactionCount = sd.CompactionCount
		sd.MemoryFlushAt = time.Now().UnixMilli()
	})
}

func (s *SessionStore) SetSpawnInfo(key, spawnedBy string, depth int) {
	s.touch(key, func(sd *store.SessionData) { sd.SpawnedBy = spawnedBy; sd.SpawnDepth = depth })
}

func (s *SessionStore) SetContextWindow(key string, cw int) {
	s.touch(key, func(sd *store.SessionData) { sd.ContextWindow = cw })
}

func (s *SessionStore) GetContextWindow(key string) int {
	return s.load(key).ContextWindow
}

func (s *SessionStore) SetLastPromptTokens(key string, tokens, msgCount int) {
	s.touch(key, func(sd *store.SessionData) { sd.LastPromptTokens = tokens; sd.LastMessageCount = msgCount })
}

func (s *SessionStore) GetLastPromptTokens(key string) (tokens, msgCount int) {
	sd := s.load(key)
	return sd.LastPromptTokens, sd.LastMessageCount
}

func (s *SessionStore) TruncateHistory(key string, keepLast int) {
	s.touch(key, func(sd *store.SessionData) {
		if keepLast <= 0 || len(sd.Messages) <= keepLast {
			return
		}
		sd.Messages = append([]providers.Message{}, sd.Messages[len(sd.Messages)-keepLast:]...)
	})
}

func (s *SessionStore) Reset(key string) {
	s.mu.Lock()
	delete(s.hot, key)
	s.mu.Unlock()
	s.db.Exec(`DELETE FROM sessions WHERE key = ?`, key)
}

func (s *SessionStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.hot, key)
	s.mu.Unlock()
	_, err := s.db.Exec(`DELETE FROM sessions WHERE key = ?`, key)
	return err
}

func (s *SessionStore) List(agentID string) []store.SessionInfo {
	res := s.ListPaged(store.SessionListOpts{AgentID: agentID, Limit: 1000})
	return res.Sessions
}

func (s *SessionStore) ListPaged(opts store.SessionListOpts) store.SessionListResult {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	where := ""
	var filter []interface{}
	if opts.AgentID != "" {
		where = ` WHERE key LIKE ?`
		filter = append(filter, "agent:"+opts.AgentID+":%")
	}
	rows, err := s.db.Query(`SELECT key, created_at, updated_at, messages_json FROM sessions`+where+` ORDER BY updated_at DESC LIMIT ? OFFSET ?`, append(append([]interface{}{}, filter...), limit, opts.Offset)...)
	if err != nil {
		return store.SessionListResult{}
	}
	defer rows.Close()

	var out []store.SessionInfo
	for rows.Next() {
		var key, msgsJSON string
		var created, updated int64
		if err := rows.Scan(&key, &created, &updated, &msgsJSON); err != nil {
			continue
		}
		var msgs []providers.Message
		_ = json.Unmarshal([]byte(msgsJSON), &msgs)
		out = append(out, store.SessionInfo{
			Key:          key,
			MessageCount: len(msgs),
			Created:      time.UnixMilli(created),
			Updated:      time.UnixMilli(updated),
		})
	}

	var total int
	s.db.QueryRow(`SELECT COUNT(*) FROM sessions`+where, filter...).Scan(&total)
	return store.SessionListResult{Sessions: out, Total: total}
}

// Save flushes the in-memory session for key to sqlite.
func (s *SessionStore) Save(key string) error {
	sd := s.load(key)
	s.mu.RLock()
	msgsJSON, err := json.Marshal(sd.Messages)
	summary, model, provider, channel := sd.Summary, sd.Model, sd.Provider, sd.Channel
	input, output, compactionCount := sd.InputTokens, sd.OutputTokens, sd.CompactionCount
	created, updated := sd.Created.UnixMilli(), sd.Updated.UnixMilli()
	s.mu.RUnlock()
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO sessions (key, owner_user_id, summary, messages_json, model, provider, channel, input_tokens, output_tokens, compaction_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			summary=excluded.summary, messages_json=excluded.messages_json, model=excluded.model,
			provider=excluded.provider, channel=excluded.channel, input_tokens=excluded.input_tokens,
			output_tokens=excluded.output_tokens, compaction_count=excluded.compaction_count, updated_at=excluded.updated_at
	`, key, sd.UserID, summary, string(msgsJSON), model, provider, channel, input, output, compactionCount, created, updated)
	return err
}

func (s *SessionStore) LastUsedChannel(agentID string) (channel, chatID string) {
	row := s.db.QueryRow(`SELECT channel, key FROM sessions WHERE key LIKE ? ORDER BY updated_at DESC LIMIT 1`, "agent:"+agentID+":%")
	var key string
	if err := row.Scan(&channel, &key); err != nil {
		return "", ""
	}
	// Parse: agent:{agentId}:{channel}:{peerKind}:{chatId}
	parts := strings.SplitN(key, ":", 5)
	if len(parts) < 5 {
		return "", ""
	}
	return channel, parts[4]
}
