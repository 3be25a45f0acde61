package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxlane/scribe/internal/infra/storage"
	"github.com/voxlane/scribe/internal/metrics"
)

// Reporter keeps a claimed job's lease fresh while the pipeline runs.
// Heartbeat failures never interrupt the job; they are logged and counted.
type Reporter struct {
	store    storage.JobStore
	jobID    string
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// StartReporter begins heartbeating jobID every interval. The caller must
// stop the reporter when processing ends.
func StartReporter(store storage.JobStore, jobID string, interval time.Duration) *Reporter {
	r := &Reporter{
		store:    store,
		jobID:    jobID,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go r.run()
	return r
}

// Stop halts the reporter and waits for its goroutine to exit, so no
// heartbeat can land after Stop returns. Safe to call more than once.
func (r *Reporter) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	<-r.done
}

func (r *Reporter) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.beat()
		}
	}
}

// beat writes one heartbeat on a detached context so a cancelled job
// context cannot starve the lease.
func (r *Reporter) beat() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := r.store.Heartbeat(ctx, r.jobID)
	switch {
	case err == nil:
		metrics.HeartbeatsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, storage.ErrLeaseLost):
		slog.Warn("Heartbeat found lease no longer held", "job_id", r.jobID)
		metrics.HeartbeatsTotal.WithLabelValues("lease_lost").Inc()
	default:
		slog.Warn("Failed to write heartbeat", "job_id", r.jobID, "error", err)
		metrics.HeartbeatsTotal.WithLabelValues("error").Inc()
	}
}
