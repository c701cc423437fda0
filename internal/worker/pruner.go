package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/saracrm/courier/internal/infra/storage"
)

// Pruner deletes old webhook delivery records based on retention policy.
// The retry queue itself is never pruned; terminal entries are the audit
// trail for abandoned sends.
type Pruner struct {
	retention  time.Duration
	deliveries storage.DeliveryRepository
	log        *slog.Logger
}

// NewPruner creates a new Pruner worker. A non-positive retention disables it.
func NewPruner(retention time.Duration, deliveries storage.DeliveryRepository, logger *slog.Logger) *Pruner {
	return &Pruner{
		retention:  retention,
		deliveries: deliveries,
		log:        logger.With("component", "pruner"),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	deleted, err := p.deliveries.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error("failed to prune webhook deliveries", "error", err)
		return
	}
	if deleted > 0 {
		p.log.Info("pruned webhook deliveries", "deleted", deleted, "cutoff", cutoff)
	}
}
