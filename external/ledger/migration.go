package ledger

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS voice_segments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		user_id TEXT NOT NULL,
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		dimension TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		duration_seconds BIGINT NOT NULL,
		is_historical BOOLEAN NOT NULL DEFAULT FALSE,
		started_at_canonical TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	// Deliberately non-unique: duplicate rows per segment key are legal
	// between compaction runs.
	`CREATE INDEX IF NOT EXISTS idx_voice_segments_key
		ON voice_segments (user_id, channel_id, dimension, started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_voice_segments_report
		ON voice_segments (guild_id, dimension, started_at)`,
	`CREATE TABLE IF NOT EXISTS job_state (
		name TEXT PRIMARY KEY,
		last_run_at TIMESTAMPTZ NOT NULL
	)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
