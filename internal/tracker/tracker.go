package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spslater/voicetally/internal/config"
	"github.com/spslater/voicetally/internal/discord"
	"github.com/spslater/voicetally/internal/ledger"
	"github.com/spslater/voicetally/internal/presence"
)

// Transition is one observed presence change ready to apply: before/after
// channel identity plus the after-flag snapshot, with now passed explicitly so
// the tracker never reads the wall clock itself.
type Transition struct {
	UserID        string
	GuildID       string
	BeforeChannel string
	AfterChannel  string
	AfterFlags    presence.Flags
	Now           time.Time
}

type memberKey struct {
	userID  string
	guildID string
}

type openSession struct {
	channelID string
	state     presence.State
}

// Tracker owns the in-memory table of open sessions and writes the segment
// drafts derived from every transition through the ledger. The table is not
// authoritative across restarts; the ledger is. At most one session is open
// per user and guild.
type Tracker struct {
	cfg    *config.Config
	ledger ledger.Ledger

	mu    sync.Mutex
	table map[memberKey]openSession
}

func New(cfg *config.Config, led ledger.Ledger) *Tracker {
	return &Tracker{
		cfg:    cfg,
		ledger: led,
		table:  make(map[memberKey]openSession),
	}
}

// HandleVoiceStateUpdate adapts a gateway event into a transition. Events for
// other guilds are ignored; bot members are ignored unless configured
// otherwise.
func (t *Tracker) HandleVoiceStateUpdate(event discord.VoiceStateEvent) {
	if event.GuildID != t.cfg.DiscordGuildID {
		slog.Debug("ignoring voice event for different guild", "event_guild_id", event.GuildID, "configured_guild_id", t.cfg.DiscordGuildID)
		return
	}
	if event.UserIsBot && !t.cfg.TrackOtherBots {
		slog.Debug("ignoring voice event for bot user", "user_id", event.UserID)
		return
	}
	if err := t.Apply(context.Background(), Transition{
		UserID:        event.UserID,
		GuildID:       event.GuildID,
		BeforeChannel: event.BeforeChannelID,
		AfterChannel:  event.AfterChannelID,
		AfterFlags:    event.AfterFlags,
		Now:           time.Now(),
	}); err != nil {
		slog.Error("failed to apply voice transition", "error", err, "guild_id", event.GuildID, "user_id", event.UserID)
	}
}

// Apply derives join/leave/move/toggle from the transition, records the
// resulting drafts in one ledger batch, and updates the table only after the
// write succeeds so a failed write is retried by the next event or reconcile
// tick. The in-memory channel wins over the event's before-channel when they
// disagree; a missed event leaves the table as the model to correct from.
func (t *Tracker) Apply(ctx context.Context, tr Transition) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	mk := memberKey{userID: tr.UserID, guildID: tr.GuildID}
	open, exists := t.table[mk]
	if exists && tr.BeforeChannel != "" && tr.BeforeChannel != open.channelID {
		slog.Warn("event before-channel disagrees with tracked session",
			"user_id", tr.UserID, "guild_id", tr.GuildID,
			"event_before", tr.BeforeChannel, "tracked_channel", open.channelID)
	}

	switch {
	case !exists && tr.AfterChannel == "":
		// Leave for a session we never saw open. Nothing to close.
		slog.Debug("leave event without tracked session", "user_id", tr.UserID, "guild_id", tr.GuildID)
		return nil
	case !exists:
		return t.applyJoin(mk, tr)
	case tr.AfterChannel == "":
		return t.applyLeave(ctx, mk, open, tr)
	case tr.AfterChannel == open.channelID:
		return t.applyToggle(ctx, mk, open, tr)
	default:
		return t.applyMove(ctx, mk, open, tr)
	}
}

func (t *Tracker) applyJoin(mk memberKey, tr Transition) error {
	key := presence.Key{UserID: tr.UserID, GuildID: tr.GuildID, ChannelID: tr.AfterChannel}
	_, retained := presence.Diff(key, nil, &tr.AfterFlags, tr.Now)
	t.table[mk] = openSession{channelID: tr.AfterChannel, state: *retained}
	slog.Info("session opened", "user_id", tr.UserID, "guild_id", tr.GuildID, "channel_id", tr.AfterChannel)
	return nil
}

func (t *Tracker) applyLeave(ctx context.Context, mk memberKey, open openSession, tr Transition) error {
	key := presence.Key{UserID: tr.UserID, GuildID: tr.GuildID, ChannelID: open.channelID}
	drafts, _ := presence.Diff(key, &open.state, nil, tr.Now)
	if err := t.record(ctx, drafts); err != nil {
		return fmt.Errorf("record leave segments: %w", err)
	}
	delete(t.table, mk)
	slog.Info("session closed", "user_id", tr.UserID, "guild_id", tr.GuildID, "channel_id", open.channelID, "segments", len(drafts))
	return nil
}

func (t *Tracker) applyToggle(ctx context.Context, mk memberKey, open openSession, tr Transition) error {
	key := presence.Key{UserID: tr.UserID, GuildID: tr.GuildID, ChannelID: open.channelID}
	drafts, retained := presence.Diff(key, &open.state, &tr.AfterFlags, tr.Now)
	if err := t.record(ctx, drafts); err != nil {
		return fmt.Errorf("record toggle segments: %w", err)
	}
	t.table[mk] = openSession{channelID: open.channelID, state: *retained}
	return nil
}

// applyMove closes every active dimension on the old channel and reopens the
// still-active set on the new channel at now. The active set carries across,
// the original start timestamps do not: each dimension gets a fresh segment
// key on the new channel.
func (t *Tracker) applyMove(ctx context.Context, mk memberKey, open openSession, tr Transition) error {
	oldKey := presence.Key{UserID: tr.UserID, GuildID: tr.GuildID, ChannelID: open.channelID}
	newKey := presence.Key{UserID: tr.UserID, GuildID: tr.GuildID, ChannelID: tr.AfterChannel}

	drafts, _ := presence.Diff(oldKey, &open.state, nil, tr.Now)
	_, retained := presence.Diff(newKey, nil, &tr.AfterFlags, tr.Now)
	if err := t.record(ctx, drafts); err != nil {
		return fmt.Errorf("record move segments: %w", err)
	}
	t.table[mk] = openSession{channelID: tr.AfterChannel, state: *retained}
	slog.Info("session moved", "user_id", tr.UserID, "guild_id", tr.GuildID, "from_channel_id", open.channelID, "to_channel_id", tr.AfterChannel)
	return nil
}

func (t *Tracker) record(ctx context.Context, drafts []presence.Draft) error {
	if len(drafts) == 0 {
		return nil
	}
	return t.ledger.Record(ctx, drafts)
}

// TrackedSession is a point-in-time copy of one open session, exposed for
// reconciliation against the live snapshot.
type TrackedSession struct {
	UserID    string
	GuildID   string
	ChannelID string
	Flags     presence.Flags
}

func (t *Tracker) Snapshot() []TrackedSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	sessions := make([]TrackedSession, 0, len(t.table))
	for mk, open := range t.table {
		sessions = append(sessions, TrackedSession{
			UserID:    mk.userID,
			GuildID:   mk.guildID,
			ChannelID: open.channelID,
			Flags:     open.state.ActiveFlags(),
		})
	}
	return sessions
}

// FlushAll closes every open session as a leave at now. Called on graceful
// shutdown so live durations are not silently lost; an abrupt crash still
// loses whatever accrued since the last extend write.
func (t *Tracker) FlushAll(ctx context.Context, now time.Time) int {
	sessions := t.Snapshot()
	flushed := 0
	for _, s := range sessions {
		err := t.Apply(ctx, Transition{
			UserID:        s.UserID,
			GuildID:       s.GuildID,
			BeforeChannel: s.ChannelID,
			AfterChannel:  "",
			Now:           now,
		})
		if err != nil {
			slog.Error("failed to flush open session", "error", err, "user_id", s.UserID, "channel_id", s.ChannelID)
			continue
		}
		flushed++
	}
	if flushed > 0 {
		slog.Info("flushed open sessions on shutdown", "count", flushed)
	}
	return flushed
}
