package health

import (
	"context"
	"sync"
	"time"

	"github.com/voxlane/scribe/internal/core/domain"
	"github.com/voxlane/scribe/internal/infra/storage"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Health(ctx context.Context) error
}

// JobTracker reports the job currently being processed, if any.
type JobTracker interface {
	CurrentJobID() string
}

// Monitor aggregates health status from the worker's components.
type Monitor struct {
	db        Pinger
	jobs      storage.JobCounter
	tracker   JobTracker
	mode      string
	startedAt time.Time

	lastCheck  time.Time
	lastReport Report
	mu         sync.RWMutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(db Pinger, jobs storage.JobCounter, tracker JobTracker, mode string) *Monitor {
	return &Monitor{
		db:        db,
		jobs:      jobs,
		tracker:   tracker,
		mode:      mode,
		startedAt: time.Now(),
	}
}

// CheckHealth builds the current health report.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (max once per 10s) to avoid hammering the store
	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport.Status != "" {
		report := m.lastReport
		report.CurrentJobID = m.tracker.CurrentJobID()
		report.UptimeSeconds = int64(time.Since(m.startedAt).Seconds())
		return report
	}

	report := Report{
		Status:        StatusHealthy,
		Database:      StatusHealthy,
		Mode:          m.mode,
		UptimeSeconds: int64(time.Since(m.startedAt).Seconds()),
		CurrentJobID:  m.tracker.CurrentJobID(),
	}

	if err := m.db.Health(ctx); err != nil {
		report.Database = StatusCritical
	}

	counts, err := m.jobs.CountByStatus(ctx)
	if err == nil {
		report.PendingJobs = counts[domain.JobStatusPending]
		report.ProcessingJobs = counts[domain.JobStatusProcessing]
		report.CompletedJobs = counts[domain.JobStatusCompleted]
		report.FailedJobs = counts[domain.JobStatusFailed]
	}

	// Evaluate Status
	if report.Database == StatusCritical || report.PendingJobs > 1000 {
		report.Status = StatusCritical
	} else if report.PendingJobs > 100 || report.FailedJobs > 0 {
		report.Status = StatusDegraded
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
