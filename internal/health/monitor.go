package health

import (
	"context"
	"sync"
	"time"

	"github.com/saracrm/courier/internal/core/domain"
	"github.com/saracrm/courier/internal/infra/storage"
)

// Pinger checks connectivity to one dependency.
type Pinger interface {
	Health(ctx context.Context) error
}

// Thresholds on the pending backlog: above degradedBacklog the drain is
// falling behind; above criticalBacklog sends are effectively stalled.
const (
	degradedBacklog = 50
	criticalBacklog = 500

	checkInterval = 10 * time.Second
)

// Monitor aggregates health status from the queue's dependencies.
type Monitor struct {
	db        Pinger
	redis     Pinger
	queueRepo storage.RetryQueueRepository

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a new health monitor. redis may be nil.
func NewMonitor(db Pinger, redis Pinger, queueRepo storage.RetryQueueRepository) *Monitor {
	return &Monitor{db: db, redis: redis, queueRepo: queueRepo}
}

// Check performs a health check, cached for checkInterval to keep probe
// traffic off the database.
func (m *Monitor) Check(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	if time.Since(m.lastCheck) < checkInterval && !m.lastCheck.IsZero() {
		return m.lastReport
	}

	report := Report{
		Status:   StatusHealthy,
		Database: ComponentHealth{Status: StatusHealthy},
		Redis:    ComponentHealth{Status: StatusHealthy},
	}

	if err := m.db.Health(ctx); err != nil {
		report.Database = ComponentHealth{Status: StatusCritical, Error: err.Error()}
		report.Status = StatusCritical
	}

	// Redis only carries counters and caches; losing it degrades, the
	// limiter and config cache both fail open.
	if m.redis != nil {
		if err := m.redis.Health(ctx); err != nil {
			report.Redis = ComponentHealth{Status: StatusDegraded, Error: err.Error()}
			if report.Status == StatusHealthy {
				report.Status = StatusDegraded
			}
		}
	}

	if counts, err := m.queueRepo.CountByStatus(ctx); err == nil {
		report.QueuePending = counts[domain.RetryEntryPending]
		report.QueueFailed = counts[domain.RetryEntryFailedPermanent]

		if report.Status == StatusHealthy {
			switch {
			case report.QueuePending > criticalBacklog:
				report.Status = StatusCritical
			case report.QueuePending > degradedBacklog:
				report.Status = StatusDegraded
			}
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
