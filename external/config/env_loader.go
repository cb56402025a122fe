package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	internalconfig "github.com/spslater/voicetally/internal/config"
)

type envConfig struct {
	Env                    string `env:"ENV" envDefault:"production"`
	DatabaseURL            string `env:"DATABASE_URL,required"`
	DiscordToken           string `env:"DISCORD_TOKEN,required"`
	DiscordGuildID         string `env:"DISCORD_GUILD_ID,required"`
	TrackOtherBots         bool   `env:"TRACK_OTHER_BOTS" envDefault:"false"`
	ReconcileIntervalSec   int    `env:"RECONCILE_INTERVAL_SEC" envDefault:"60"`
	CompactionIntervalDays int    `env:"COMPACTION_INTERVAL_DAYS" envDefault:"12"`
	MaxSegmentHours        int    `env:"MAX_SEGMENT_HOURS" envDefault:"10"`
	ReportWindowDays       int    `env:"REPORT_WINDOW_DAYS" envDefault:"30"`
	ReportTopLimit         int    `env:"REPORT_TOP_LIMIT" envDefault:"10"`
	ImportTimezone         string `env:"IMPORT_TIMEZONE" envDefault:"UTC"`
	ImportWebhookURL       string `env:"IMPORT_WEBHOOK_URL"`
}

func Load() (*internalconfig.Config, error) {
	var raw envConfig
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("environment variables are invalid or missing: %w", err)
	}

	cfg := &internalconfig.Config{
		Env:                    raw.Env,
		DatabaseURL:            raw.DatabaseURL,
		DiscordToken:           raw.DiscordToken,
		DiscordGuildID:         raw.DiscordGuildID,
		TrackOtherBots:         raw.TrackOtherBots,
		ReconcileIntervalSec:   raw.ReconcileIntervalSec,
		CompactionIntervalDays: raw.CompactionIntervalDays,
		MaxSegmentHours:        raw.MaxSegmentHours,
		ReportWindowDays:       raw.ReportWindowDays,
		ReportTopLimit:         raw.ReportTopLimit,
		ImportTimezone:         raw.ImportTimezone,
		ImportWebhookURL:       raw.ImportWebhookURL,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
