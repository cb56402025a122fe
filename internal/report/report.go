package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spslater/voicetally/internal/config"
	"github.com/spslater/voicetally/internal/discord"
	"github.com/spslater/voicetally/internal/ledger"
	"github.com/spslater/voicetally/internal/presence"
)

// Handler serves the report slash commands. Both reports are plain
// SUM-over-the-ledger queries; all heavy lifting happens in storage.
type Handler struct {
	cfg    *config.Config
	ledger ledger.Ledger
}

func NewHandler(cfg *config.Config, led ledger.Ledger) *Handler {
	return &Handler{cfg: cfg, ledger: led}
}

func SlashCommandDefinitions() []discord.SlashCommandDefinition {
	return []discord.SlashCommandDefinition{
		{Name: commandVoiceTime, Description: slashCommandTimeDescription},
		{Name: commandVoiceTop, Description: slashCommandTopDescription},
	}
}

func (h *Handler) HandleSlashCommand(event discord.SlashCommandEvent) {
	if event.GuildID != h.cfg.DiscordGuildID {
		h.respond(event, messageEphemeralWrongGuild)
		return
	}
	switch event.CommandName {
	case commandVoiceTime:
		h.handleVoiceTime(event)
	case commandVoiceTop:
		h.handleVoiceTop(event)
	default:
		h.respond(event, messageEphemeralUnknownCommand)
	}
}

func (h *Handler) handleVoiceTime(event discord.SlashCommandEvent) {
	ctx := context.Background()
	since := time.Now().Add(-h.cfg.ReportWindow())

	lines := make([]string, 0, len(presence.AllDimensions()))
	total := int64(0)
	for _, dim := range presence.AllDimensions() {
		seconds, err := h.ledger.Aggregate(ctx, event.UserID, event.GuildID, dim, since)
		if err != nil {
			slog.Error("failed to aggregate voice time", "error", err, "user_id", event.UserID, "dimension", string(dim))
			h.respond(event, messageEphemeralLookupFailed)
			return
		}
		if seconds == 0 {
			continue
		}
		total += seconds
		lines = append(lines, fmt.Sprintf("%s: **%s**", dimensionLabels[string(dim)], FormatDuration(seconds)))
	}
	if total == 0 {
		h.respond(event, messageEphemeralNoData)
		return
	}
	header := fmt.Sprintf(":stopwatch: **Your voice time over the last %d days**", h.cfg.ReportWindowDays)
	h.respond(event, header+"\n"+strings.Join(lines, "\n"))
}

func (h *Handler) handleVoiceTop(event discord.SlashCommandEvent) {
	ctx := context.Background()
	since := time.Now().Add(-h.cfg.ReportWindow())

	ranked, err := h.ledger.Top(ctx, event.GuildID, presence.DimensionConnected, since, h.cfg.ReportTopLimit)
	if err != nil {
		slog.Error("failed to rank voice time", "error", err, "guild_id", event.GuildID)
		h.respond(event, messageEphemeralLookupFailed)
		return
	}
	if len(ranked) == 0 {
		h.respond(event, messageEphemeralNoData)
		return
	}
	lines := make([]string, 0, len(ranked)+1)
	lines = append(lines, fmt.Sprintf(":trophy: **Top voice time over the last %d days**", h.cfg.ReportWindowDays))
	for i, row := range ranked {
		lines = append(lines, fmt.Sprintf("%d. <@%s>: %s", i+1, row.UserID, FormatDuration(row.TotalSeconds)))
	}
	h.respond(event, strings.Join(lines, "\n"))
}

func (h *Handler) respond(event discord.SlashCommandEvent, content string) {
	if event.RespondEphemeral == nil {
		return
	}
	if err := event.RespondEphemeral(content); err != nil {
		slog.Error("failed to respond to slash command", "error", err, "command", event.CommandName, "user_id", event.UserID)
	}
}

// FormatDuration renders seconds as "3h42m", "12m", or "42s".
func FormatDuration(seconds int64) string {
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", hours, minutes)
}
