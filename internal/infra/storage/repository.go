package storage

import (
	"context"
	"errors"
	"time"

	"github.com/voxlane/scribe/internal/core/domain"
)

var (
	// ErrLeaseLost is returned when a guarded transition matched no row,
	// meaning the caller no longer owns the job in processing state.
	ErrLeaseLost = errors.New("job lease lost")
)

// JobStore is the narrow persistence contract the worker needs. Claim
// operations must guarantee at-most-one caller receives any given job,
// even under unbounded concurrent callers across processes.
type JobStore interface {
	// ClaimNext atomically selects one claimable job (pending, with
	// next_attempt_at unset or due), marks it processing with a fresh
	// heartbeat, and returns it. Returns (nil, nil) when no job is
	// eligible.
	ClaimNext(ctx context.Context) (*domain.Job, error)

	// ClaimByID claims a specific job if it is currently pending.
	// Returns (nil, nil) when the job is missing or not claimable;
	// redelivered queue messages rely on that for idempotence.
	ClaimByID(ctx context.Context, id string) (*domain.Job, error)

	// Heartbeat touches last_heartbeat_at while the job is processing.
	// Returns ErrLeaseLost when the job is no longer held.
	Heartbeat(ctx context.Context, id string) error

	// Complete transitions processing -> completed and records the
	// output transcript reference.
	Complete(ctx context.Context, id string, transcriptID string) error

	// Reschedule transitions processing -> pending with updated retry
	// bookkeeping. nextAttemptAt gates when ClaimNext may hand the job
	// out again.
	Reschedule(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, errMsg string) error

	// Fail transitions processing -> failed (terminal). retry_count is
	// left untouched.
	Fail(ctx context.Context, id string, errMsg string) error

	// Get reads the current row, used by failure paths that must not
	// trust a stale in-memory copy. Returns (nil, nil) when missing.
	Get(ctx context.Context, id string) (*domain.Job, error)
}

// TranscriptStore persists job output artifacts.
type TranscriptStore interface {
	// Create inserts the transcript and returns its id. A re-run for
	// the same job replaces the earlier text rather than adding a
	// second row.
	Create(ctx context.Context, t *domain.Transcript) (string, error)
}

// JobCounter reports queue depth, used by health checks and tooling.
type JobCounter interface {
	CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error)
}
