package webhook

import (
	"context"
	"time"
)

// ImportSummaryPayload is posted after a historical import run completes.
type ImportSummaryPayload struct {
	RunID            string    `json:"run_id"`
	GuildID          string    `json:"guild_id"`
	Source           string    `json:"source"`
	Lines            int       `json:"lines"`
	Parsed           int       `json:"parsed"`
	Malformed        int       `json:"malformed"`
	DiscardedOrphans int       `json:"discarded_orphans"`
	LookupFailures   int       `json:"lookup_failures"`
	SegmentsWritten  int       `json:"segments_written"`
	CappedSegments   int       `json:"capped_segments"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

type Sender interface {
	SendImportSummary(ctx context.Context, payload ImportSummaryPayload) error
}
