package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spslater/voicetally/internal/config"
	"github.com/spslater/voicetally/internal/ledger"
)

const compactionJobName = "ledger_compaction"

// checkInterval is how often the guard is evaluated, not how often compaction
// runs; the persisted last-run timestamp decides that.
const compactionCheckInterval = 24 * time.Hour

// CompactionJob deduplicates ledger rows sharing a segment key, keeping the
// maximum-duration row. The staleness guard is persisted, so a restart (or a
// missed run) does not reset the schedule, and back-to-back ticks are no-ops.
type CompactionJob struct {
	cfg    *config.Config
	ledger ledger.Ledger
}

func NewCompactionJob(cfg *config.Config, led ledger.Ledger) *CompactionJob {
	return &CompactionJob{cfg: cfg, ledger: led}
}

func (j *CompactionJob) Name() string { return "compaction" }

func (j *CompactionJob) Interval() time.Duration { return compactionCheckInterval }

func (j *CompactionJob) RunAtStart() bool { return true }

func (j *CompactionJob) Tick(ctx context.Context, now time.Time) error {
	lastRun, err := j.ledger.JobLastRun(ctx, compactionJobName)
	if err != nil {
		return fmt.Errorf("load last compaction time: %w", err)
	}
	if !lastRun.IsZero() && now.Sub(lastRun) < j.cfg.CompactionInterval() {
		slog.Debug("skipping compaction; interval not yet elapsed", "last_run", lastRun, "interval", j.cfg.CompactionInterval().String())
		return nil
	}

	removed, err := j.ledger.Compact(ctx)
	if err != nil {
		return fmt.Errorf("compact ledger: %w", err)
	}
	if err := j.ledger.SetJobLastRun(ctx, compactionJobName, now); err != nil {
		return fmt.Errorf("record compaction time: %w", err)
	}
	slog.Info("ledger compaction completed", "removed_rows", removed, "last_run", lastRun)
	return nil
}
