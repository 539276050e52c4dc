package tools

import (
	"context"
	"sort"
	"sync"

	"github.com/nextlevelbuilder/goclaw/internal/providers"
)

// Tool is the interface every built-in tool implements.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// AsyncCallback lets a tool report progress/completion after returning an
// Async result (e.g. a backgrounded shell command or delegated sub-agent task).
type AsyncCallback func(result *Result)

// Registry holds the set of tools available to the agent loop.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool, overwriting any existing tool with the same name.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[t.Name()] = t
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns every registered tool, sorted by name for deterministic output.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// ProviderDefs returns every registered tool as a provider-facing definition,
// unfiltered. Callers that need policy filtering use PolicyEngine.FilterTools
// instead.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	tools := r.List()
	defs := make([]providers.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, ToProviderDef(t))
	}
	return defs
}

// ToProviderDef converts a Tool into the wire schema sent to the LLM.
func ToProviderDef(t Tool) providers.ToolDefinition {
	return providers.ToolDefinition{
		Type: "function",
		Function: providers.ToolFunctionSchema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		},
	}
}

// ExecuteWithContext runs the named tool, injecting the channel/chatID/peerKind/
// sessionKey/asyncCB into ctx first so tools can read them via the *FromCtx
// helpers without threading them through every Execute signature.
func (r *Registry) ExecuteWithContext(ctx context.Context, name string, args map[string]interface{}, channel, chatID, peerKind, sessionKey string, asyncCB AsyncCallback) *Result {
	t, ok := r.Get(name)
	if !ok {
		return ErrorResult("unknown tool: " + name)
	}

	ctx = WithToolChannel(ctx, channel)
	ctx = WithToolChatID(ctx, chatID)
	ctx = WithToolPeerKind(ctx, peerKind)
	ctx = WithToolSandboxKey(ctx, sessionKey)
	if asyncCB != nil {
		ctx = WithToolAsyncCB(ctx, asyncCB)
	}

	return t.Execute(ctx, args)
}

const ctxAgentKey toolContextKey = "tool_agent_key"

// WithToolAgentKey stashes the owning agent's ID in ctx so tools that need to
// address sessions/sub-agents of their own agent (e.g. sessions_send) can
// read it back without it being passed as an explicit Execute argument.
func WithToolAgentKey(ctx context.Context, agentID string) context.Context {
	return context.WithValue(ctx, ctxAgentKey, agentID)
}

// ToolAgentKeyFromCtx returns the agent ID stashed by WithToolAgentKey.
func ToolAgentKeyFromCtx(ctx context.Context) string {
	v, _ := ctx.Value(ctxAgentKey).(string)
	return v
}
