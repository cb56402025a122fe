package discord

import (
	"context"

	"github.com/spslater/voicetally/internal/presence"
)

type SlashCommandDefinition struct {
	Name        string
	Description string
}

type SlashCommandEvent struct {
	GuildID          string
	ChannelID        string
	CommandName      string
	UserID           string
	RespondEphemeral func(content string) error
}

// VoiceStateEvent is one gateway presence change: before/after channel plus
// before/after flag snapshots. An empty channel id means "not connected" on
// that side of the transition.
type VoiceStateEvent struct {
	GuildID         string
	UserID          string
	UserIsBot       bool
	BeforeChannelID string
	AfterChannelID  string
	BeforeFlags     presence.Flags
	AfterFlags      presence.Flags
}

// VoicePresence is one member of the live voice snapshot for a guild.
type VoicePresence struct {
	UserID    string
	ChannelID string
	IsBot     bool
	Flags     presence.Flags
}

type Client interface {
	Connect(ctx context.Context) error
	Close() error
	RegisterVoiceStateUpdateHandler(handler func(VoiceStateEvent))
	RegisterSlashCommandHandler(handler func(SlashCommandEvent))
	UpsertGuildSlashCommands(guildID string, defs []SlashCommandDefinition) error
	ListGuildVoicePresences(guildID string) ([]VoicePresence, error)
	ResolveChannelIDByName(guildID, name string) (string, error)
	GetBotUserID() (string, error)
	Run() error
}
