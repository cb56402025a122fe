package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"time"

	configloader "github.com/spslater/voicetally/external/config"
	"github.com/spslater/voicetally/external/discord"
	ledgerimpl "github.com/spslater/voicetally/external/ledger"
	"github.com/spslater/voicetally/external/logparse"
	webhookimpl "github.com/spslater/voicetally/external/webhook"
	"github.com/spslater/voicetally/internal/config"
	discordpkg "github.com/spslater/voicetally/internal/discord"
	"github.com/spslater/voicetally/internal/replay"
	"github.com/spslater/voicetally/internal/webhook"

	"github.com/samber/do/v2"
)

const discordConnectTimeout = 20 * time.Second

func main() {
	filePath := flag.String("file", "", "path to the historical voice log to import")
	flag.Parse()
	if *filePath == "" {
		slog.Error("missing required -file flag")
		os.Exit(2)
	}

	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	initLogger(cfg)

	injector := do.New()
	do.ProvideValue(injector, cfg)
	ledgerimpl.RegisterDI(injector)
	discord.RegisterDI(injector)
	logparse.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	replay.RegisterDI(injector)

	if err := runImport(cfg, injector, *filePath); err != nil {
		slog.Error("import failed", "error", err)
		os.Exit(1)
	}
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func runImport(cfg *config.Config, injector do.Injector, filePath string) error {
	dc, err := do.Invoke[discordpkg.Client](injector)
	if err != nil {
		return err
	}
	replayer, err := do.Invoke[*replay.Replayer](injector)
	if err != nil {
		return err
	}
	sender, err := do.Invoke[webhook.Sender](injector)
	if err != nil {
		return err
	}

	// Channel names in the log resolve against the live guild, so the
	// importer needs a gateway connection too.
	connectCtx, cancel := context.WithTimeout(context.Background(), discordConnectTimeout)
	defer cancel()
	if err := dc.Connect(connectCtx); err != nil {
		return err
	}
	defer func() {
		if err := dc.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}()

	f, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer func() {
		_ = f.Close()
	}()

	summary, err := replayer.Replay(context.Background(), cfg.DiscordGuildID, f)
	if err != nil {
		return err
	}

	payload := webhook.ImportSummaryPayload{
		RunID:            summary.RunID,
		GuildID:          summary.GuildID,
		Source:           filePath,
		Lines:            summary.Lines,
		Parsed:           summary.Parsed,
		Malformed:        summary.Malformed,
		DiscardedOrphans: summary.DiscardedOrphans,
		LookupFailures:   summary.LookupFailures,
		SegmentsWritten:  summary.SegmentsWritten,
		CappedSegments:   summary.CappedSegments,
		StartedAt:        summary.StartedAt,
		FinishedAt:       summary.FinishedAt,
	}
	if err := sender.SendImportSummary(context.Background(), payload); err != nil {
		slog.Error("failed to send import summary webhook", "error", err, "run_id", summary.RunID)
	}
	return nil
}
