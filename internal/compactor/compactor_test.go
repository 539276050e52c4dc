package compactor

import (
	"context"
	"testing"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

type fakeProvider struct {
	reply string
}

func (f *fakeProvider) Chat(ctx context.Context, req providers.ChatRequest) (*providers.ChatResponse, error) {
	return &providers.ChatResponse{Content: f.reply}, nil
}
func (f *fakeProvider) ChatStream(ctx context.Context, req providers.ChatRequest, onChunk func(providers.StreamChunk)) (*providers.ChatResponse, error) {
	return f.Chat(ctx, req)
}
func (f *fakeProvider) DefaultModel() string { return "fake-model" }
func (f *fakeProvider) Name() string         { return "fake" }

func makeHistory(n int) []providers.Message {
	var msgs []providers.Message
	for i := 0; i < n; i++ {
		msgs = append(msgs, providers.Message{Role: "user", Content: "this is a fairly long user message to pad token estimate up past threshold quickly"})
		msgs = append(msgs, providers.Message{Role: "assistant", Content: "this is a fairly long assistant reply to pad token estimate up past threshold quickly"})
	}
	return msgs
}

func TestCompactIfNeededSkipsBelowThreshold(t *testing.T) {
	c := New(Config{TokenThreshold: 1000000, L0KeepMessages: 4}, &fakeProvider{reply: "summary"})
	history := makeHistory(2)
	out := c.CompactIfNeeded(context.Background(), "s1", history)
	if len(out) != len(history) {
		t.Fatalf("expected unchanged history, got %d messages", len(out))
	}
}

func TestCompactIfNeededSummarizesOverflow(t *testing.T) {
	c := New(Config{TokenThreshold: 10, L0KeepMessages: 2}, &fakeProvider{reply: "concise summary"})
	history := makeHistory(20)
	out := c.CompactIfNeeded(context.Background(), "s1", history)
	if len(out) != 2 {
		t.Fatalf("expected retained window of 2, got %d", len(out))
	}
	summary := c.GetLatestSummary("s1")
	if summary == "" {
		t.Fatal("expected non-empty summary after compaction")
	}
}

func TestGetLatestSummaryEmptyInitially(t *testing.T) {
	c := New(Config{}, &fakeProvider{})
	if s := c.GetLatestSummary("unknown"); s != "" {
		t.Fatalf("expected empty summary, got %q", s)
	}
}
