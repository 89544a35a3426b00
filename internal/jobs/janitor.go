package jobs

// janitor.go fails jobs that no process is driving anymore.
//
// A job is orphaned when the process that owned it stopped before the job
// reached a terminal state. The janitor runs once on start and then every
// Interval, failing unfinished jobs this controller is not running that are
// older than Grace. Jobs it is running that started more than SlowAfter ago
// are reported but left alone: processing has no cancellation. It logs
// problems and keeps going; a failed sweep is retried on the next tick.

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/JonMunkholm/factflow/internal/model"
)

// ErrInterrupted is recorded on jobs the janitor fails.
var ErrInterrupted = errors.New("job interrupted: the process running it stopped before it finished")

// JanitorConfig tunes the orphan sweep. Zero values take defaults.
type JanitorConfig struct {
	Interval time.Duration // How often to sweep (default: 5m)
	Grace    time.Duration // Minimum job age before it can be failed (default: 1m)

	// SlowAfter is the advisory processing timeout: running jobs older
	// than this are logged as slow. Zero disables the warning.
	SlowAfter time.Duration
}

func (cfg JanitorConfig) withDefaults() JanitorConfig {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Grace <= 0 {
		cfg.Grace = time.Minute
	}
	return cfg
}

// StartJanitor sweeps for orphaned jobs until ctx is cancelled.
func (c *Controller) StartJanitor(ctx context.Context, cfg JanitorConfig) {
	cfg = cfg.withDefaults()
	slog.Info("job janitor started", "interval", cfg.Interval, "grace", cfg.Grace, "slow_after", cfg.SlowAfter)

	c.sweep(ctx, cfg)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("job janitor stopped")
			return
		case <-ticker.C:
			c.sweep(ctx, cfg)
		}
	}
}

// sweep fails every orphaned job and returns how many it failed.
func (c *Controller) sweep(ctx context.Context, cfg JanitorConfig) int {
	start := time.Now()

	unfinished, err := c.store.ListUnfinishedJobs(ctx)
	if err != nil {
		slog.Error("list unfinished jobs", "error", err)
		return 0
	}

	cutoff := time.Now().Add(-cfg.Grace)
	failed := 0
	for i := range unfinished {
		if c.Running(unfinished[i].ID) {
			c.reportSlow(&unfinished[i], cfg.SlowAfter)
			continue
		}
		if unfinished[i].CreatedAt.After(cutoff) {
			continue
		}
		// A job of this process may have finished since the listing.
		job, err := c.store.GetJob(ctx, unfinished[i].ID)
		if err != nil || job.Status.Terminal() {
			continue
		}
		logger := slog.Default().With("job_id", job.ID.String())
		c.fail(ctx, logger, job, ErrInterrupted)
		failed++
	}

	if failed > 0 {
		slog.Info("failed orphaned jobs",
			"jobs_failed", failed,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	return failed
}

// reportSlow warns about a job running longer than slowAfter.
func (c *Controller) reportSlow(job *model.ProcessingJob, slowAfter time.Duration) bool {
	if slowAfter <= 0 || job.StartedAt == nil {
		return false
	}
	elapsed := time.Since(*job.StartedAt)
	if elapsed <= slowAfter {
		return false
	}
	slog.Warn("job exceeds processing timeout",
		"job_id", job.ID.String(),
		"elapsed", elapsed.Round(time.Second),
		"timeout", slowAfter,
		"records_processed", job.RecordsProcessed,
		"records_total", job.RecordsTotal,
	)
	return true
}
