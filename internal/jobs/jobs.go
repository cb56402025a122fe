package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Job is one periodic task. Tick receives now explicitly so implementations
// stay testable without wall-clock mocking.
type Job interface {
	Name() string
	Interval() time.Duration
	RunAtStart() bool
	Tick(ctx context.Context, now time.Time) error
}

// Runner drives each job on its own ticker goroutine. Run blocks until the
// context is canceled; an in-flight tick finishes before the goroutine exits,
// and no new tick starts afterward.
type Runner struct {
	jobs []Job
}

func NewRunner(jobs ...Job) *Runner {
	return &Runner{jobs: jobs}
}

func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, job := range r.jobs {
		wg.Add(1)
		go func(j Job) {
			defer wg.Done()
			r.runJob(ctx, j)
		}(job)
	}
	wg.Wait()
}

func (r *Runner) runJob(ctx context.Context, j Job) {
	slog.Info("periodic job started", "job", j.Name(), "interval", j.Interval().String())
	if j.RunAtStart() {
		r.tick(ctx, j)
	}
	ticker := time.NewTicker(j.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("periodic job stopped", "job", j.Name())
			return
		case <-ticker.C:
			r.tick(ctx, j)
		}
	}
}

func (r *Runner) tick(ctx context.Context, j Job) {
	if ctx.Err() != nil {
		return
	}
	if err := j.Tick(ctx, time.Now()); err != nil {
		slog.Error("periodic job tick failed", "error", err, "job", j.Name())
	}
}
