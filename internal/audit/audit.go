// Package audit records job lifecycle events for usage and billing review.
package audit

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/voxlane/scribe/internal/core/domain"
	"github.com/voxlane/scribe/internal/metrics"
)

// Kind identifies the lifecycle transition an event records.
type Kind string

const (
	KindJobStarted   Kind = "job.started"
	KindJobCompleted Kind = "job.completed"
	KindJobRetried   Kind = "job.retried"
	KindJobFailed    Kind = "job.failed"
)

// Event is a single audit record. Events are advisory: they feed usage
// reporting and never participate in job state decisions.
type Event struct {
	ID           string
	Kind         Kind
	JobID        string
	OrgID        string
	UserID       string
	RetryCount   int
	DurationMS   int64
	AudioSeconds float64
	Error        string
	At           time.Time
}

// NewEvent builds an event for a job with identity fields populated.
func NewEvent(kind Kind, job *domain.Job) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		JobID:      job.ID,
		OrgID:      job.OrgID,
		UserID:     job.UserID,
		RetryCount: job.RetryCount,
		At:         time.Now().UTC(),
	}
}

// Sink receives audit events. Emit is fire-and-forget: implementations
// swallow and log their own failures so a broken sink cannot change a
// job's outcome.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NopSink discards all events. Used when no Redis connection is configured.
type NopSink struct{}

func (NopSink) Emit(ctx context.Context, event Event) {}

// StreamAppender is the slice of the Redis client the sink needs.
type StreamAppender interface {
	AppendStream(ctx context.Context, stream string, values map[string]any) error
}

const auditStream = "scribe:audit"

// RedisSink appends events to a Redis Stream.
type RedisSink struct {
	redis StreamAppender
}

// NewRedisSink creates a sink writing to the scribe:audit stream.
func NewRedisSink(redis StreamAppender) *RedisSink {
	return &RedisSink{redis: redis}
}

// Emit appends the event to the audit stream. The write runs on a detached
// context so a cancelled job context cannot drop the final event.
func (s *RedisSink) Emit(ctx context.Context, event Event) {
	values := map[string]any{
		"id":          event.ID,
		"kind":        string(event.Kind),
		"job_id":      event.JobID,
		"org_id":      event.OrgID,
		"user_id":     event.UserID,
		"retry_count": strconv.Itoa(event.RetryCount),
		"at":          event.At.Format(time.RFC3339Nano),
	}
	if event.DurationMS > 0 {
		values["duration_ms"] = strconv.FormatInt(event.DurationMS, 10)
	}
	if event.AudioSeconds > 0 {
		values["audio_seconds"] = strconv.FormatFloat(event.AudioSeconds, 'f', -1, 64)
	}
	if event.Error != "" {
		values["error"] = event.Error
	}

	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.redis.AppendStream(emitCtx, auditStream, values); err != nil {
		slog.Warn("Failed to emit audit event",
			"kind", event.Kind,
			"job_id", event.JobID,
			"error", err)
		metrics.AuditEventsTotal.WithLabelValues("error").Inc()
		return
	}
	metrics.AuditEventsTotal.WithLabelValues("ok").Inc()
}
