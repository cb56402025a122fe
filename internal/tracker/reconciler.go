package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spslater/voicetally/internal/config"
	"github.com/spslater/voicetally/internal/discord"
)

// Reconciler periodically compares the tracker table against a fresh voice
// snapshot from the gateway and applies corrective transitions for any drift:
// missed events, and the empty table right after a restart. Synthesized joins
// are stamped at the tick's now, not the true join time; durations accrued
// while the process was fully down are not recovered.
type Reconciler struct {
	cfg     *config.Config
	client  discord.Client
	tracker *Tracker
}

func NewReconciler(cfg *config.Config, client discord.Client, tracker *Tracker) *Reconciler {
	return &Reconciler{cfg: cfg, client: client, tracker: tracker}
}

func (r *Reconciler) Name() string { return "reconcile" }

func (r *Reconciler) Interval() time.Duration { return r.cfg.ReconcileInterval() }

// RunAtStart bootstraps the table after a restart before any live event.
func (r *Reconciler) RunAtStart() bool { return true }

func (r *Reconciler) Tick(ctx context.Context, now time.Time) error {
	snapshot, err := r.client.ListGuildVoicePresences(r.cfg.DiscordGuildID)
	if err != nil {
		return fmt.Errorf("query guild voice snapshot: %w", err)
	}

	live := make(map[string]discord.VoicePresence, len(snapshot))
	for _, p := range snapshot {
		if p.UserID == "" || p.ChannelID == "" {
			continue
		}
		if p.IsBot && !r.cfg.TrackOtherBots {
			continue
		}
		live[p.UserID] = p
	}

	tracked := r.tracker.Snapshot()
	trackedByUser := make(map[string]TrackedSession, len(tracked))
	for _, s := range tracked {
		trackedByUser[s.UserID] = s
	}

	corrected := 0
	// Tracked but gone from the snapshot: synthesize a leave at now.
	for _, s := range tracked {
		if _, ok := live[s.UserID]; ok {
			continue
		}
		err := r.tracker.Apply(ctx, Transition{
			UserID:        s.UserID,
			GuildID:       s.GuildID,
			BeforeChannel: s.ChannelID,
			AfterChannel:  "",
			Now:           now,
		})
		if err != nil {
			slog.Warn("reconcile leave failed; leaving for next tick", "error", err, "user_id", s.UserID, "channel_id", s.ChannelID)
			continue
		}
		corrected++
	}

	// In the snapshot: synthesize join, move, or toggle as needed. The toggle
	// path also extends every open segment, bounding what an abrupt crash can
	// lose to one reconcile interval.
	for _, p := range live {
		prior, wasTracked := trackedByUser[p.UserID]
		before := ""
		if wasTracked {
			before = prior.ChannelID
		}
		err := r.tracker.Apply(ctx, Transition{
			UserID:        p.UserID,
			GuildID:       r.cfg.DiscordGuildID,
			BeforeChannel: before,
			AfterChannel:  p.ChannelID,
			AfterFlags:    p.Flags,
			Now:           now,
		})
		if err != nil {
			slog.Warn("reconcile apply failed; leaving for next tick", "error", err, "user_id", p.UserID, "channel_id", p.ChannelID)
			continue
		}
		if !wasTracked || prior.ChannelID != p.ChannelID {
			corrected++
		}
	}

	if corrected > 0 {
		slog.Info("reconcile corrected drift", "corrections", corrected, "live_members", len(live), "tracked_sessions", len(tracked))
	}
	return nil
}
