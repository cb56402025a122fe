package presence

import (
	"log/slog"
	"time"
)

// Draft is one pending ledger write derived from a state transition. Extend
// marks an update of an already-open segment (same segment key, larger
// duration) rather than a fresh row. Historical marks segments rebuilt from
// imported logs.
type Draft struct {
	Key             Key
	Dimension       Dimension
	StartedAt       time.Time
	DurationSeconds int64
	Extend          bool
	Historical      bool
}

// Diff compares the retained state of a session against a newly observed flag
// snapshot and returns the drafts to persist plus the state to retain.
//
//   - old == nil: the session just opened; no drafts, retained state stamps
//     every active dimension at now.
//   - observed == nil: the session closed; every active dimension (connected
//     included) closes into a draft ending at now, nothing is retained.
//   - both set: per-dimension toggle handling; still-active dimensions and
//     connected emit extend drafts so their open segment keeps growing.
//
// A channel move is two calls: Diff(oldKey, old, nil, now) then
// Diff(newKey, nil, carriedFlags, now). The active set carries over, the
// start timestamps do not.
func Diff(key Key, old *State, observed *Flags, now time.Time) ([]Draft, *State) {
	if old == nil {
		if observed == nil {
			return nil, nil
		}
		opened := NewState(*observed, now)
		return nil, &opened
	}

	if observed == nil {
		var drafts []Draft
		for _, d := range AllDimensions() {
			start, active := old.Start(d)
			if !active {
				continue
			}
			drafts = append(drafts, closeDraft(key, d, start, now))
		}
		return drafts, nil
	}

	retained := *old
	drafts := []Draft{extendDraft(key, DimensionConnected, old.Connected, now)}
	for _, d := range ToggleableDimensions() {
		start, wasActive := old.Start(d)
		isActive := observed.Active(d)
		switch {
		case !wasActive && isActive:
			retained.setStart(d, now)
		case wasActive && !isActive:
			drafts = append(drafts, closeDraft(key, d, start, now))
			retained.clearStart(d)
		case wasActive && isActive:
			drafts = append(drafts, extendDraft(key, d, start, now))
		}
	}
	return drafts, &retained
}

func closeDraft(key Key, d Dimension, start, now time.Time) Draft {
	return Draft{
		Key:             key,
		Dimension:       d,
		StartedAt:       start,
		DurationSeconds: clampSeconds(key, d, start, now),
	}
}

func extendDraft(key Key, d Dimension, start, now time.Time) Draft {
	return Draft{
		Key:             key,
		Dimension:       d,
		StartedAt:       start,
		DurationSeconds: clampSeconds(key, d, start, now),
		Extend:          true,
	}
}

// clampSeconds never returns a negative duration: out-of-order delivery or
// clock skew yields zero, not a corrupt row.
func clampSeconds(key Key, d Dimension, start, now time.Time) int64 {
	secs := int64(now.Sub(start) / time.Second)
	if secs < 0 {
		slog.Warn("negative segment duration clamped to zero",
			"user_id", key.UserID,
			"guild_id", key.GuildID,
			"channel_id", key.ChannelID,
			"dimension", string(d),
			"started_at", start,
			"now", now)
		return 0
	}
	return secs
}
