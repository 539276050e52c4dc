package http

import (
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/agent"
)

// EventBroker fans a Loop's single OnEvent callback out to per-run
// subscribers, so concurrent SSE streams each see only their own run's
// tool-call/tool-result events. The Loop itself has no notion of multiple
// concurrent streams; this is purely a transport-side concern.
type EventBroker struct {
	mu   sync.Mutex
	subs map[string]chan agent.AgentEvent
}

// NewEventBroker constructs a broker. Create it before building the
// agent.Loop so the same instance's Dispatch method can be wired as
// LoopConfig.OnEvent.
func NewEventBroker() *EventBroker {
	return &EventBroker{subs: make(map[string]chan agent.AgentEvent)}
}

// Subscribe registers a buffered channel for runID. Callers must call
// Unsubscribe when done to avoid leaking the channel.
func (b *EventBroker) Subscribe(runID string) <-chan agent.AgentEvent {
	ch := make(chan agent.AgentEvent, 32)
	b.mu.Lock()
	b.subs[runID] = ch
	b.mu.Unlock()
	return ch
}

func (b *EventBroker) Unsubscribe(runID string) {
	b.mu.Lock()
	ch, ok := b.subs[runID]
	if ok {
		delete(b.subs, runID)
	}
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Dispatch is wired as the Loop's LoopConfig.OnEvent: routes an event to
// its run's subscriber, if any, without blocking the loop when nobody is
// listening (a non-streaming request, or a slow/stuck SSE client).
func (b *EventBroker) Dispatch(ev agent.AgentEvent) {
	b.mu.Lock()
	ch, ok := b.subs[ev.RunID]
	b.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- ev:
	default:
	}
}
