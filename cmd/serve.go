package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/goclaw/internal/agent"
	"github.com/nextlevelbuilder/goclaw/internal/authn"
	"github.com/nextlevelbuilder/goclaw/internal/background"
	"github.com/nextlevelbuilder/goclaw/internal/bootstrap"
	"github.com/nextlevelbuilder/goclaw/internal/bus"
	"github.com/nextlevelbuilder/goclaw/internal/compactor"
	"github.com/nextlevelbuilder/goclaw/internal/config"
	httpapi "github.com/nextlevelbuilder/goclaw/internal/http"
	"github.com/nextlevelbuilder/goclaw/internal/memory"
	"github.com/nextlevelbuilder/goclaw/internal/nudge"
	"github.com/nextlevelbuilder/goclaw/internal/providers"
	"github.com/nextlevelbuilder/goclaw/internal/pulse"
	"github.com/nextlevelbuilder/goclaw/internal/sandbox"
	"github.com/nextlevelbuilder/goclaw/internal/shield"
	"github.com/nextlevelbuilder/goclaw/internal/skills"
	"github.com/nextlevelbuilder/goclaw/internal/sqlite"
	"github.com/nextlevelbuilder/goclaw/internal/subagents"
	"github.com/nextlevelbuilder/goclaw/internal/telemetry"
	"github.com/nextlevelbuilder/goclaw/internal/tools"
	"github.com/nextlevelbuilder/goclaw/internal/tracing"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the companion's HTTP/SSE server",
		Run: func(cmd *cobra.Command, args []string) {
			runServe()
		},
	}
}

// runServe wires every domain engine into a single agent.Loop and serves
// it over HTTP/SSE until interrupted. There is exactly one owner and one
// Loop per process — no managed mode, no per-tenant fan-out.
func runServe() {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("serve: failed to load config", "error", err)
		os.Exit(1)
	}

	dbPath := config.ExpandHome(cfg.Database.SQLitePath)
	if dbPath == "" {
		dbPath = config.ExpandHome("~/.goclaw/data/agent.db")
	}
	db, err := sqlite.Open(dbPath)
	if err != nil {
		slog.Error("serve: failed to open database", "error", err, "path", dbPath)
		os.Exit(75)
	}
	stores := sqlite.NewStores(db)

	otelTracer, telemetryShutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("serve: telemetry disabled, exporter failed to start", "error", err)
		otelTracer, telemetryShutdown, _ = telemetry.Init(ctx, config.TelemetryConfig{})
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			slog.Warn("serve: telemetry shutdown error", "error", err)
		}
	}()

	traceCollector := tracing.NewCollector(sqlite.NewTraceStore(db), verbose, otelTracer)
	traceCollector.Start()
	defer traceCollector.Stop()

	providerRegistry := providers.NewRegistry(providerConfigs(cfg))
	defaultProvider, err := providerRegistry.Default()
	if err != nil {
		slog.Error("serve: no provider configured", "error", err)
		os.Exit(1)
	}

	workspace := cfg.Agents.Defaults.Workspace
	if workspace == "" {
		workspace = config.ExpandHome("~/.goclaw/workspace")
	}
	if _, err := bootstrap.EnsureWorkspaceFiles(workspace); err != nil {
		slog.Error("serve: failed to seed workspace", "error", err)
		os.Exit(1)
	}
	contextFiles := bootstrap.LoadContextFiles(workspace,
		cfg.Agents.Defaults.BootstrapMaxChars, cfg.Agents.Defaults.BootstrapTotalMaxChars)

	intercom := bus.NewIntercom()

	memEngine := memory.New(stores.Memory)
	bgRunner := background.New(stores.Tasks, intercom)
	sandboxCfg := sandbox.Config{}
	if sc := cfg.Agents.Defaults.Sandbox; sc != nil {
		sandboxCfg = sandbox.Config{
			PoolSize:       sc.PoolSize,
			IdleTimeout:    time.Duration(sc.IdleTimeoutSec) * time.Second,
			DefaultTimeout: time.Duration(sc.ExecTimeoutSec) * time.Second,
		}
	}
	sbx := sandbox.New(sandboxCfg)

	subagentsCfg := subagents.Config{}
	if sc := cfg.Agents.Defaults.Subagents; sc != nil {
		subagentsCfg.MaxActivePerUser = sc.MaxConcurrent
	}
	subagentMgr := subagents.New(stores.Subagents, subagentsCfg)
	// Role templates (internal/templates) back subagent creation from a
	// saved role rather than a fresh prompt each time; no HTTP endpoint
	// exposes them yet, so the manager isn't constructed here.

	shieldFeed := cfg.Shield.FeedPath
	if shieldFeed == "" {
		shieldFeed = workspace + "/threats.md"
	}
	var shieldEngine *shield.Engine
	if cfg.Shield.Enabled == nil || *cfg.Shield.Enabled {
		watch := cfg.Shield.WatchReloads == nil || *cfg.Shield.WatchReloads
		shieldEngine, err = shield.New(shieldFeed, watch)
		if err != nil {
			slog.Warn("serve: shield engine disabled, feed failed to load", "error", err, "path", shieldFeed)
		}
	}

	compactCfg := compactor.Config{SummarizeModel: cfg.Agents.Defaults.Model}
	compact := compactor.New(compactCfg, defaultProvider)

	skillsLoader := skills.NewLoader(workspace, "", "")

	events := httpapi.NewEventBroker()

	toolRegistry := tools.BuildRegistry(cfg, stores.Sessions, providerRegistry, &tools.DomainEngines{
		Memory:     memEngine,
		Sandbox:    sbx,
		Background: bgRunner,
		Subagents:  subagentMgr,
	})

	memoryEnabled := true
	if mc := cfg.Agents.Defaults.Memory; mc != nil && mc.Enabled != nil {
		memoryEnabled = *mc.Enabled
	}

	loop := agent.NewLoop(agent.LoopConfig{
		ID:                config.DefaultAgentID,
		Provider:          defaultProvider,
		Model:             cfg.Agents.Defaults.Model,
		ContextWindow:     cfg.Agents.Defaults.ContextWindow,
		MaxIterations:     cfg.Agents.Defaults.MaxToolIterations,
		Workspace:         workspace,
		Sessions:          stores.Sessions,
		Memory:            stores.Memory,
		Tools:             toolRegistry,
		OnEvent:           events.Dispatch,
		OwnerIDs:          cfg.Gateway.OwnerIDs,
		SkillsLoader:      skillsLoader,
		HasMemory:         memoryEnabled,
		ContextFiles:      contextFiles,
		CompactionCfg:     cfg.Agents.Defaults.Compaction,
		ContextPruningCfg: cfg.Agents.Defaults.ContextPruning,
		InjectionAction:   cfg.Gateway.InjectionAction,
		MaxMessageChars:   cfg.Gateway.MaxMessageChars,
		Shield:            shieldEngine,
		Background:        bgRunner,
		Compactor:         compact,
		TraceCollector:    traceCollector,
	})

	authMgr := authn.NewManager()
	slog.Info("serve: bootstrap secret (one-time, 1hr TTL)", "secret", authMgr.BootstrapSecret())

	pulseSched := pulse.New(pulse.Config{JitterPct: cfg.Pulse.JitterPct}, stores.Pulse)

	nudgeDeliverer := func(ctx context.Context, n *nudge.Nudge) error {
		slog.Info("nudge: delivery skipped, no outbound channel wired for this transport", "user", n.UserID, "category", n.Category)
		return nil
	}
	nudgeEngine := nudge.New(nudge.Config{
		MaxPerHour:      cfg.Nudge.MaxPerHour,
		QuietHoursStart: cfg.Nudge.QuietHoursStart,
		QuietHoursEnd:   cfg.Nudge.QuietHoursEnd,
		QueueCapacity:   cfg.Nudge.QueueCapacity,
	}, nudgeDeliverer)
	_ = nudgeEngine

	server := httpapi.New(httpapi.Deps{
		Config:     cfg,
		Auth:       stores.Auth,
		Authn:      authMgr,
		Loop:       loop,
		Background: bgRunner,
		Subagents:  subagentMgr,
		Events:     events,
	})

	pulseSched.Start(ctx)
	defer pulseSched.Stop()

	if err := server.Start(ctx); err != nil {
		slog.Error("serve: http server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("serve: shutdown complete")
}
