// Package health provides worker health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the worker.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Report contains the full worker health report.
type Report struct {
	Status         SystemStatus `json:"status"`
	Database       SystemStatus `json:"database"`
	Mode           string       `json:"mode"`
	UptimeSeconds  int64        `json:"uptime_seconds"`
	CurrentJobID   string       `json:"current_job_id,omitempty"`
	PendingJobs    int          `json:"pending_jobs"`
	ProcessingJobs int          `json:"processing_jobs"`
	CompletedJobs  int          `json:"completed_jobs"`
	FailedJobs     int          `json:"failed_jobs"`
}
