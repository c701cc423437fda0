package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// RunnerConfig holds configuration for the drain loop.
type RunnerConfig struct {
	Interval  time.Duration // Time between drain runs (default: 4m)
	BatchSize int           // Max entries per run (default: 10)
}

// DefaultRunnerConfig returns default drain configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Interval:  4 * time.Minute,
		BatchSize: DefaultBatchSize,
	}
}

// Runner drains the retry queue on a fixed interval. Runs are not locked
// across processes; if two drains overlap, an entry can be sent twice. The
// small batch size and interval keep that window narrow, and a duplicate
// message beats a dropped one.
type Runner struct {
	cfg     RunnerConfig
	service *Service
	log     *slog.Logger
}

// NewRunner creates a drain runner.
func NewRunner(cfg RunnerConfig, service *Service, logger *slog.Logger) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRunnerConfig().Interval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRunnerConfig().BatchSize
	}
	return &Runner{
		cfg:     cfg,
		service: service,
		log:     logger.With("component", "queue_runner"),
	}
}

// Run starts the drain loop and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("Starting queue drain loop",
		"interval", r.cfg.Interval, "batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.Info("Queue drain loop stopped")
			return nil
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

func (r *Runner) drain(ctx context.Context) {
	runID := uuid.New().String()
	log := r.log.With("run_id", runID)

	start := time.Now()
	res, err := r.service.ProcessPending(ctx, r.cfg.BatchSize)
	if err != nil {
		log.Error("Drain run failed", "error", err)
		return
	}

	if res.Processed == 0 {
		return
	}

	log.Info("Drain run complete",
		"processed", res.Processed,
		"delivered", res.Delivered,
		"failed_permanent", res.FailedPermanent,
		"duration", time.Since(start))
}
