package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/voxlane/scribe/internal/core/domain"
	"github.com/voxlane/scribe/internal/infra/broker"
	"github.com/voxlane/scribe/internal/infra/storage"
	"github.com/voxlane/scribe/internal/metrics"
)

// QueueHandler consumes job references pushed through the broker. Return
// values follow asynq's contract: nil acknowledges the message, a plain
// error abandons it for redelivery, and an error wrapping asynq.SkipRetry
// dead-letters it.
type QueueHandler struct {
	store  storage.JobStore
	runner Runner
}

// NewQueueHandler creates the push-based consumption adapter.
func NewQueueHandler(store storage.JobStore, runner Runner) *QueueHandler {
	return &QueueHandler{store: store, runner: runner}
}

// ProcessTask handles one broker delivery.
func (h *QueueHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload broker.TaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		metrics.QueueMessagesTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("malformed payload: %v: %w", err, asynq.SkipRetry)
	}
	if _, err := uuid.Parse(payload.JobID); err != nil {
		metrics.QueueMessagesTotal.WithLabelValues("malformed").Inc()
		return fmt.Errorf("invalid job id %q: %w", payload.JobID, asynq.SkipRetry)
	}

	job, err := h.store.ClaimByID(ctx, payload.JobID)
	if err != nil {
		// Transient store trouble: abandon so the broker redelivers.
		metrics.QueueMessagesTotal.WithLabelValues("abandoned").Inc()
		return fmt.Errorf("claim job %s: %w", payload.JobID, err)
	}
	if job == nil {
		// Duplicate or late delivery: the job is missing, running
		// elsewhere, or already terminal. Ack and drop, no side effects.
		slog.Info("Dropping message for unclaimable job", "job_id", payload.JobID)
		metrics.QueueMessagesTotal.WithLabelValues("dropped").Inc()
		return nil
	}

	if err := h.runner.Run(ctx, job); err != nil {
		return h.disposition(ctx, job.ID, err)
	}
	metrics.QueueMessagesTotal.WithLabelValues("completed").Inc()
	return nil
}

// disposition picks between abandon and dead-letter after a failed run.
// Retry bookkeeping has already been applied; only the message fate is
// still open.
func (h *QueueHandler) disposition(ctx context.Context, jobID string, runErr error) error {
	fresh, err := h.store.Get(ctx, jobID)
	if err != nil {
		metrics.QueueMessagesTotal.WithLabelValues("abandoned").Inc()
		return fmt.Errorf("job %s failed and re-read failed (%v): %w", jobID, err, runErr)
	}
	if fresh != nil && fresh.Status == domain.JobStatusFailed {
		metrics.QueueMessagesTotal.WithLabelValues("dead_lettered").Inc()
		return fmt.Errorf("job %s exhausted retries: %v: %w", jobID, runErr, asynq.SkipRetry)
	}
	metrics.QueueMessagesTotal.WithLabelValues("abandoned").Inc()
	return fmt.Errorf("job %s attempt failed: %w", jobID, runErr)
}
