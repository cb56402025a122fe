package config

import (
	"fmt"
	"time"
)

type Config struct {
	Env                    string
	DatabaseURL            string
	DiscordToken           string
	DiscordGuildID         string
	TrackOtherBots         bool
	ReconcileIntervalSec   int
	CompactionIntervalDays int
	MaxSegmentHours        int
	ReportWindowDays       int
	ReportTopLimit         int
	ImportTimezone         string
	ImportWebhookURL       string
}

func (c *Config) Validate() error {
	for _, req := range c.requiredFieldChecks() {
		if req.value == "" {
			return fmt.Errorf("%s is required", req.name)
		}
	}
	if c.ReconcileIntervalSec <= 0 {
		return fmt.Errorf("RECONCILE_INTERVAL_SEC must be positive, got %d", c.ReconcileIntervalSec)
	}
	if c.CompactionIntervalDays <= 0 {
		return fmt.Errorf("COMPACTION_INTERVAL_DAYS must be positive, got %d", c.CompactionIntervalDays)
	}
	if c.MaxSegmentHours <= 0 {
		return fmt.Errorf("MAX_SEGMENT_HOURS must be positive, got %d", c.MaxSegmentHours)
	}
	if c.ReportWindowDays <= 0 {
		return fmt.Errorf("REPORT_WINDOW_DAYS must be positive, got %d", c.ReportWindowDays)
	}
	if c.ReportTopLimit <= 0 {
		return fmt.Errorf("REPORT_TOP_LIMIT must be positive, got %d", c.ReportTopLimit)
	}
	if c.ImportTimezone == "" {
		return fmt.Errorf("IMPORT_TIMEZONE is required")
	}
	if _, err := time.LoadLocation(c.ImportTimezone); err != nil {
		return fmt.Errorf("IMPORT_TIMEZONE is invalid: %w", err)
	}
	return nil
}

type requiredEnvField struct {
	name  string
	value string
}

func (c *Config) requiredFieldChecks() []requiredEnvField {
	return []requiredEnvField{
		{name: "DATABASE_URL", value: c.DatabaseURL},
		{name: "DISCORD_TOKEN", value: c.DiscordToken},
		{name: "DISCORD_GUILD_ID", value: c.DiscordGuildID},
	}
}

func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSec) * time.Second
}

// CompactionInterval is the staleness guard: compaction only runs when at
// least this much time has passed since the last persisted run.
func (c *Config) CompactionInterval() time.Duration {
	return time.Duration(c.CompactionIntervalDays) * 24 * time.Hour
}

// MaxSegmentSeconds caps every duration computed during historical replay so
// an unterminated join in an imported log cannot produce an unbounded segment.
func (c *Config) MaxSegmentSeconds() int64 {
	return int64(c.MaxSegmentHours) * 3600
}

func (c *Config) ReportWindow() time.Duration {
	return time.Duration(c.ReportWindowDays) * 24 * time.Hour
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}
