package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	configloader "github.com/spslater/voicetally/external/config"
	"github.com/spslater/voicetally/external/discord"
	ledgerimpl "github.com/spslater/voicetally/external/ledger"
	"github.com/spslater/voicetally/internal/config"
	discordpkg "github.com/spslater/voicetally/internal/discord"
	"github.com/spslater/voicetally/internal/jobs"
	"github.com/spslater/voicetally/internal/report"
	"github.com/spslater/voicetally/internal/tracker"

	"github.com/samber/do/v2"
)

const (
	discordConnectTimeout = 20 * time.Second
	shutdownFlushTimeout  = 10 * time.Second
)

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	slog.Info("startup: launching voice tracker")
	runBot(cfg, injector)
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	ledgerimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	tracker.RegisterDI(injector)
	jobs.RegisterDI(injector)
	report.RegisterDI(injector)

	return injector
}

func runBot(cfg *config.Config, injector do.Injector) {
	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		slog.Error("failed to resolve discord client", "error", err)
		os.Exit(1)
	}
	liveTracker, err := do.Invoke[*tracker.Tracker](injector)
	if err != nil {
		slog.Error("failed to resolve tracker", "error", err)
		os.Exit(1)
	}
	reconciler, err := do.Invoke[*tracker.Reconciler](injector)
	if err != nil {
		slog.Error("failed to resolve reconciler", "error", err)
		os.Exit(1)
	}
	compaction, err := do.Invoke[*jobs.CompactionJob](injector)
	if err != nil {
		slog.Error("failed to resolve compaction job", "error", err)
		os.Exit(1)
	}
	reports, err := do.Invoke[*report.Handler](injector)
	if err != nil {
		slog.Error("failed to resolve report handler", "error", err)
		os.Exit(1)
	}

	connectCtx, cancelConnect := context.WithTimeout(context.Background(), discordConnectTimeout)
	defer cancelConnect()

	slog.Info("startup: connecting to discord gateway")
	if err := dc.Connect(connectCtx); err != nil {
		slog.Error("discord connect failed", "error", err)
		os.Exit(1)
	}
	slog.Info("startup: discord connected")
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	if err := dc.UpsertGuildSlashCommands(cfg.DiscordGuildID, report.SlashCommandDefinitions()); err != nil {
		slog.Error("failed to upsert slash commands", "error", err, "guild_id", cfg.DiscordGuildID)
		os.Exit(1)
	}

	dc.RegisterVoiceStateUpdateHandler(liveTracker.HandleVoiceStateUpdate)
	dc.RegisterSlashCommandHandler(reports.HandleSlashCommand)
	slog.Info("discord handlers registered", "guild_id", cfg.DiscordGuildID, "commands", []string{"voicetime", "voicetop"})

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	runner := jobs.NewRunner(reconciler, compaction)
	jobsDone := make(chan struct{})
	go func() {
		runner.Run(jobCtx)
		close(jobsDone)
	}()

	done := make(chan struct{})
	go func() {
		slog.Info("startup: entering discord run loop")
		if err := dc.Run(); err != nil {
			slog.Error("discord run failed", "error", err)
		}
		close(done)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
		slog.Info("shutting down")
	case <-done:
	}

	cancelJobs()
	<-jobsDone

	flushCtx, cancelFlush := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancelFlush()
	liveTracker.FlushAll(flushCtx, time.Now())
}
