package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spslater/voicetally/internal/ledger"
	"github.com/spslater/voicetally/internal/presence"
)

const uniqueViolationCode = "23505"

type PostgresLedger struct {
	pool *pgxpool.Pool
}

func NewPostgresLedger(pool *pgxpool.Pool) ledger.Ledger {
	return &PostgresLedger{pool: pool}
}

// Record applies the whole batch in one transaction so a partial failure
// never persists some dimensions of a transition and not others.
func (l *PostgresLedger) Record(ctx context.Context, drafts []presence.Draft) error {
	if len(drafts) == 0 {
		return nil
	}
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin segment transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	for _, draft := range drafts {
		if draft.Extend {
			err = l.extendSegment(ctx, tx, draft)
		} else {
			err = l.closeSegment(ctx, tx, draft)
		}
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit segment transaction: %w", err)
	}
	return nil
}

// extendSegment grows the open segment in place. A missing row should not
// happen on an extend but is tolerated by inserting fresh.
func (l *PostgresLedger) extendSegment(ctx context.Context, tx pgx.Tx, draft presence.Draft) error {
	ct, err := tx.Exec(ctx,
		`UPDATE voice_segments
		 SET duration_seconds = $5, updated_at = NOW()
		 WHERE user_id = $1 AND channel_id = $2 AND dimension = $3 AND started_at = $4`,
		draft.Key.UserID, draft.Key.ChannelID, string(draft.Dimension), draft.StartedAt, draft.DurationSeconds)
	if err != nil {
		return fmt.Errorf("extend segment: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}
	return l.insertSegment(ctx, tx, draft)
}

// closeSegment finishes a segment idempotently. A row may already exist for
// the key when the open segment was extended along the way; the close then
// grows it to the final duration. A duplicate-delivered close carries the
// same duration and changes nothing, so it never double-counts.
func (l *PostgresLedger) closeSegment(ctx context.Context, tx pgx.Tx, draft presence.Draft) error {
	ct, err := tx.Exec(ctx,
		`UPDATE voice_segments
		 SET duration_seconds = $5, updated_at = NOW()
		 WHERE user_id = $1 AND channel_id = $2 AND dimension = $3 AND started_at = $4
		   AND duration_seconds < $5`,
		draft.Key.UserID, draft.Key.ChannelID, string(draft.Dimension), draft.StartedAt, draft.DurationSeconds)
	if err != nil {
		return fmt.Errorf("close segment: %w", err)
	}
	if ct.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM voice_segments
		   WHERE user_id = $1 AND channel_id = $2 AND dimension = $3 AND started_at = $4
		 )`,
		draft.Key.UserID, draft.Key.ChannelID, string(draft.Dimension), draft.StartedAt).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check segment existence: %w", err)
	}
	if exists {
		return nil
	}
	return l.insertSegment(ctx, tx, draft)
}

func (l *PostgresLedger) insertSegment(ctx context.Context, tx pgx.Tx, draft presence.Draft) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO voice_segments
		   (user_id, guild_id, channel_id, dimension, started_at, duration_seconds, is_historical, started_at_canonical)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		draft.Key.UserID, draft.Key.GuildID, draft.Key.ChannelID, string(draft.Dimension),
		draft.StartedAt, draft.DurationSeconds, draft.Historical, ledger.CanonicalStart(draft.StartedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			// Concurrent writer got there first: already recorded.
			return nil
		}
		return fmt.Errorf("insert segment: %w", err)
	}
	return nil
}

// Compact deletes every row that shares a segment key with a row of strictly
// greater (duration, id), leaving exactly one canonical row per key.
func (l *PostgresLedger) Compact(ctx context.Context) (int64, error) {
	ct, err := l.pool.Exec(ctx,
		`DELETE FROM voice_segments a
		 USING voice_segments b
		 WHERE a.user_id = b.user_id
		   AND a.channel_id = b.channel_id
		   AND a.dimension = b.dimension
		   AND a.started_at = b.started_at
		   AND (a.duration_seconds, a.id) < (b.duration_seconds, b.id)`)
	if err != nil {
		return 0, fmt.Errorf("compact segments: %w", err)
	}
	return ct.RowsAffected(), nil
}

func (l *PostgresLedger) Aggregate(ctx context.Context, userID, guildID string, dim presence.Dimension, since time.Time) (int64, error) {
	var total int64
	err := l.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(duration_seconds), 0)
		 FROM voice_segments
		 WHERE user_id = $1 AND guild_id = $2 AND dimension = $3 AND started_at >= $4`,
		userID, guildID, string(dim), since).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("aggregate segments: %w", err)
	}
	return total, nil
}

func (l *PostgresLedger) Top(ctx context.Context, guildID string, dim presence.Dimension, since time.Time, limit int) ([]ledger.RankedDuration, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT user_id, SUM(duration_seconds) AS total_seconds
		 FROM voice_segments
		 WHERE guild_id = $1 AND dimension = $2 AND started_at >= $3
		 GROUP BY user_id
		 ORDER BY total_seconds DESC
		 LIMIT $4`,
		guildID, string(dim), since, limit)
	if err != nil {
		return nil, fmt.Errorf("rank segments: %w", err)
	}
	defer rows.Close()
	var ranked []ledger.RankedDuration
	for rows.Next() {
		var r ledger.RankedDuration
		if err := rows.Scan(&r.UserID, &r.TotalSeconds); err != nil {
			return nil, fmt.Errorf("scan ranked row: %w", err)
		}
		ranked = append(ranked, r)
	}
	return ranked, rows.Err()
}

func (l *PostgresLedger) JobLastRun(ctx context.Context, name string) (time.Time, error) {
	var lastRun time.Time
	err := l.pool.QueryRow(ctx,
		`SELECT last_run_at FROM job_state WHERE name = $1`, name).Scan(&lastRun)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil
		}
		return time.Time{}, fmt.Errorf("load job state: %w", err)
	}
	return lastRun, nil
}

func (l *PostgresLedger) SetJobLastRun(ctx context.Context, name string, at time.Time) error {
	_, err := l.pool.Exec(ctx,
		`INSERT INTO job_state (name, last_run_at)
		 VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET last_run_at = EXCLUDED.last_run_at`,
		name, at)
	if err != nil {
		return fmt.Errorf("save job state: %w", err)
	}
	return nil
}
