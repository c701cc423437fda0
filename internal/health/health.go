// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full system health report.
type Report struct {
	Status SystemStatus `json:"status"`

	Database     ComponentHealth `json:"database"`
	Redis        ComponentHealth `json:"redis"`
	QueuePending int             `json:"queue_pending"`
	QueueFailed  int             `json:"queue_failed_permanent"`
}

// ComponentHealth describes one dependency.
type ComponentHealth struct {
	Status SystemStatus `json:"status"`
	Error  string       `json:"error,omitempty"`
}
