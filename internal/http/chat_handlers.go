package http

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/goclaw/internal/agent"
	"github.com/nextlevelbuilder/goclaw/internal/store"
)

// heartbeatInterval and maxTurnIdle implement the SSE keepalive
// contract: a `: heartbeat` comment every 8s while a turn is in flight, and
// a hard cap on how long one turn may run before the stream is closed.
const (
	heartbeatInterval = 8 * time.Second
	maxTurnIdle       = 255 * time.Second
)

// maxFriendMessageChars bounds an unauthenticated guest message before the
// companion will even attempt a turn.
const maxFriendMessageChars = 4000

type chatRequest struct {
	Message string `json:"message"`
	Stream  bool   `json:"stream"`
}

// sseEvent is the envelope every streamed frame uses:
// {type, content?, tool?, result?, error?, delegation?}.
type sseEvent struct {
	Type       string      `json:"type"`
	Content    string      `json:"content,omitempty"`
	Tool       string      `json:"tool,omitempty"`
	Result     string      `json:"result,omitempty"`
	Error      string      `json:"error,omitempty"`
	Delegation interface{} `json:"delegation,omitempty"`
}

// handleOwnerChat implements POST /api/chat: an authenticated owner turn,
// with full tool authority subject only to the Shield Engine.
func (s *Server) handleOwnerChat(w http.ResponseWriter, r *http.Request, sess *store.SessionCookieData) {
	var req chatRequest
	if err := readJSON(r, &req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing message")
		return
	}
	runReq := agent.RunRequest{
		SessionKey: fmt.Sprintf("agent:%s:http:direct:%s", s.loop.ID(), sess.UserID),
		Message:    req.Message,
		Channel:    "http",
		ChatID:     sess.UserID,
		PeerKind:   "direct",
		RunID:      uuid.NewString(),
		UserID:     sess.UserID,
		SenderID:   sess.UserID,
		Stream:     req.Stream,
	}
	s.runChat(w, r, runReq, req.Stream)
}

// handleFriendChat implements POST /api/chat/friend: a public, rate
// limited, sanitized guest turn. Guests never carry owner authority — the
// agent.Loop enforces that via checkAuthority on the userID it's given
// here, not via anything this handler does.
func (s *Server) handleFriendChat(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r)
	if !isLoopback(ip) && !s.loginLimiter.Allow(ip) {
		writeError(w, http.StatusTooManyRequests, "too many requests")
		return
	}
	if !isLoopback(ip) {
		s.loginLimiter.Record(ip)
	}

	var req chatRequest
	if err := readJSON(r, &req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing message")
		return
	}
	if len(req.Message) > maxFriendMessageChars {
		req.Message = req.Message[:maxFriendMessageChars]
	}

	guestID := "guest:" + ip
	runReq := agent.RunRequest{
		SessionKey: fmt.Sprintf("agent:%s:http:direct:%s", s.loop.ID(), guestID),
		Message:    req.Message,
		Channel:    "http",
		ChatID:     guestID,
		PeerKind:   "direct",
		RunID:      uuid.NewString(),
		UserID:     guestID,
		SenderID:   guestID,
		Stream:     req.Stream,
	}
	s.runChat(w, r, runReq, req.Stream)
}

func (s *Server) runChat(w http.ResponseWriter, r *http.Request, runReq agent.RunRequest, stream bool) {
	if !stream {
		result, err := s.loop.Run(r.Context(), runReq)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "turn failed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"content": result.Content})
		return
	}
	s.streamChat(w, r, runReq)
}

// streamChat drives one turn over SSE: tool-call/tool-result events arrive
// live via the event broker, a heartbeat comment keeps the connection open
// every 8s, and a final content frame plus {"type":"done"} close the
// stream. maxTurnIdle is a hard backstop against a turn that never returns.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, runReq agent.RunRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	bw := bufio.NewWriter(w)
	writeSSE := func(ev sseEvent) {
		b, _ := json.Marshal(ev)
		fmt.Fprintf(bw, "data: %s\n\n", b)
		bw.Flush()
		flusher.Flush()
	}

	ctx, cancel := context.WithTimeout(r.Context(), maxTurnIdle)
	defer cancel()

	var events <-chan agent.AgentEvent
	if s.events != nil {
		events = s.events.Subscribe(runReq.RunID)
		defer s.events.Unsubscribe(runReq.RunID)
	}

	type runOutcome struct {
		result *agent.RunResult
		err    error
	}
	done := make(chan runOutcome, 1)
	go func() {
		result, err := s.loop.Run(ctx, runReq)
		done <- runOutcome{result, err}
	}()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			forwardAgentEvent(ev, writeSSE)
		case <-heartbeat.C:
			fmt.Fprint(bw, ": heartbeat\n\n")
			bw.Flush()
			flusher.Flush()
		case outcome := <-done:
			if outcome.err != nil {
				writeSSE(sseEvent{Type: "error", Error: "turn failed"})
			} else {
				writeSSE(sseEvent{Type: "content", Content: outcome.result.Content})
			}
			writeSSE(sseEvent{Type: "done"})
			return
		case <-ctx.Done():
			writeSSE(sseEvent{Type: "error", Error: "turn timed out"})
			writeSSE(sseEvent{Type: "done"})
			return
		}
	}
}

// forwardAgentEvent translates an internal agent.AgentEvent into the
// browser-facing SSE envelope, dropping event types the client doesn't need.
func forwardAgentEvent(ev agent.AgentEvent, send func(sseEvent)) {
	switch ev.Type {
	case "tool.call":
		if payload, ok := ev.Payload.(map[string]interface{}); ok {
			if name, ok := payload["name"].(string); ok {
				send(sseEvent{Type: "tool", Tool: name})
				return
			}
		}
		send(sseEvent{Type: "tool"})
	case "tool.result":
		if payload, ok := ev.Payload.(map[string]interface{}); ok {
			name, _ := payload["name"].(string)
			isError, _ := payload["is_error"].(bool)
			status := "ok"
			if isError {
				status = "error"
			}
			send(sseEvent{Type: "result", Tool: name, Result: status})
			return
		}
		send(sseEvent{Type: "result"})
	}
}

// handleBackgroundTasks implements GET /api/background-tasks?userId=.
func (s *Server) handleBackgroundTasks(w http.ResponseWriter, r *http.Request, sess *store.SessionCookieData) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = sess.UserID
	}
	if s.background == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	tasks, err := s.background.GetUndelivered(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

// handleSubAgents implements GET /api/sub-agents?userId=, including
// soft-deleted sub-agents.
func (s *Server) handleSubAgents(w http.ResponseWriter, r *http.Request, sess *store.SessionCookieData) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		userID = sess.UserID
	}
	if s.subagents == nil {
		writeJSON(w, http.StatusOK, []struct{}{})
		return
	}
	agents, err := s.subagents.ListByOwner(r.Context(), userID, true)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	writeJSON(w, http.StatusOK, agents)
}
