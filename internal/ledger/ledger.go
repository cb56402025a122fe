package ledger

import (
	"context"
	"time"

	"github.com/spslater/voicetally/internal/presence"
)

// CanonicalStartLayout is the stable textual render of a segment start stored
// alongside the timestamp column. Reports and external tooling key off this
// string, so it is always UTC and never locale dependent.
const CanonicalStartLayout = time.RFC3339

// Segment is one persisted duration row. A segment is uniquely addressed by
// its segment key (user, channel, dimension, started-at); between compaction
// runs more than one row may exist per key and the one with the maximum
// duration is authoritative.
type Segment struct {
	ID              string
	UserID          string
	GuildID         string
	ChannelID       string
	Dimension       presence.Dimension
	StartedAt       time.Time
	DurationSeconds int64
	Historical      bool
	StartedAtCanon  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RankedDuration is one row of a guild ranking.
type RankedDuration struct {
	UserID       string
	TotalSeconds int64
}

// CanonicalStart renders a segment start for the canonical string column.
func CanonicalStart(t time.Time) string {
	return t.UTC().Format(CanonicalStartLayout)
}

// Ledger is the single persistence boundary for duration segments. Every
// writer (live tracker, reconciler, historical importer, compaction job) goes
// through this contract so idempotence is enforced in one place.
//
// Record applies a batch of drafts in one transaction. Extend drafts update
// the duration of the existing rows sharing the segment key, inserting if
// none exists. Close drafts insert when the segment key is absent and
// otherwise only grow the stored duration, so a duplicate-delivered event
// never double-counts.
//
// Compact collapses rows sharing a segment key down to the single row with
// the maximum duration and returns how many rows it removed.
type Ledger interface {
	Record(ctx context.Context, drafts []presence.Draft) error
	Compact(ctx context.Context) (int64, error)
	Aggregate(ctx context.Context, userID, guildID string, dim presence.Dimension, since time.Time) (int64, error)
	Top(ctx context.Context, guildID string, dim presence.Dimension, since time.Time, limit int) ([]RankedDuration, error)
	JobLastRun(ctx context.Context, name string) (time.Time, error)
	SetJobLastRun(ctx context.Context, name string, at time.Time) error
}
