package tools

import (
	"github.com/nextlevelbuilder/goclaw/internal/background"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	"github.com/nextlevelbuilder/goclaw/internal/memory"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/sandbox"
	"github.com/nextlevelbuilder/goclaw/internal/store"
	"github.com/nextlevelbuilder/goclaw/internal/subagents"
)

// DomainEngines bundles the companion engines that back the domain tool
// group (memory_add, execute_code, delegate_background). A nil Memory,
// Sandbox, or Background/Subagents field disables the corresponding tool's
// registration; a nil RunSubagent still registers delegate_background, whose
// tasks then fail.
type DomainEngines struct {
	Memory      *memory.Engine
	Sandbox     *sandbox.Sandbox
	Background  *background.Runner
	Subagents   *subagents.Manager
	RunSubagent SubagentTaskRunner
}

// BuildRegistry assembles the tool registry for a single-owner instance:
// filesystem, shell, web, memory-adjacent session tools, provider-backed
// vision/image-gen tools, and (when engines is non-nil) the companion
// domain tools that exercise the Memory Engine, Code Sandbox, and
// Background Runner. cfg and sessions may be the same values shared across
// every session in the process; the registry itself is stateless aside
// from the store references its tools hold.
func BuildRegistry(cfg *config.Config, sessions store.SessionStore, providerRegistry *providers.Registry, engines *DomainEngines) *Registry {
	r := NewRegistry()

	workspace := cfg.Agents.Defaults.Workspace
	restrict := cfg.Agents.Defaults.RestrictToWorkspace

	r.Register(NewReadFileTool(workspace, restrict))

	exec := NewExecTool(workspace, restrict)
	if cfg.Tools.ExecApproval.Security != "" || cfg.Tools.ExecApproval.Ask != "" {
		exec.SetApprovalManager(NewExecApprovalManager(cfg.Tools.ExecApproval), config.DefaultAgentID)
	}
	r.Register(exec)

	if web := cfg.Tools.Web; web.Brave.Enabled || web.DuckDuckGo.Enabled {
		if t := NewWebSearchTool(WebSearchConfig{
			BraveAPIKey:     web.Brave.APIKey,
			BraveEnabled:    web.Brave.Enabled,
			BraveMaxResults: web.Brave.MaxResults,
			DDGEnabled:      web.DuckDuckGo.Enabled,
			DDGMaxResults:   web.DuckDuckGo.MaxResults,
		}); t != nil {
			r.Register(t)
		}
	}
	r.Register(NewWebFetchTool(WebFetchConfig{}))

	if providerRegistry != nil {
		r.Register(NewCreateImageTool(providerRegistry))
		r.Register(NewReadImageTool(providerRegistry))
	}

	sessionsList := NewSessionsListTool()
	sessionsList.SetSessionStore(sessions)
	r.Register(sessionsList)

	sessionStatus := NewSessionStatusTool()
	sessionStatus.SetSessionStore(sessions)
	r.Register(sessionStatus)

	sessionsHistory := NewSessionsHistoryTool()
	sessionsHistory.SetSessionStore(sessions)
	r.Register(sessionsHistory)

	sessionsSend := NewSessionsSendTool()
	sessionsSend.SetSessionStore(sessions)
	r.Register(sessionsSend)

	if engines != nil {
		if engines.Memory != nil {
			r.Register(NewMemoryAddTool(engines.Memory))
		}
		if engines.Sandbox != nil {
			r.Register(NewExecuteCodeTool(engines.Sandbox))
		}
		if engines.Background != nil && engines.Subagents != nil {
			r.Register(NewDelegateBackgroundTool(engines.Background, engines.Subagents, engines.RunSubagent))
		}
	}
	r.Register(NewIdentityUpdateTool())

	return r
}
