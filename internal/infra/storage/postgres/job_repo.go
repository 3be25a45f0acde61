package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/voxlane/scribe/internal/core/domain"
	"github.com/voxlane/scribe/internal/infra/storage"
)

// jobColumns is the canonical select list for transcription_jobs, kept in
// sync with jobRow.
const jobColumns = `id, org_id, user_id, audio_path, status, retry_count, max_retries,
	next_attempt_at, last_heartbeat_at, claimed_by, last_error_message, last_error_at,
	output_transcript_id, completed_at, created_at, updated_at`

type jobRow struct {
	ID                 string         `db:"id"`
	OrgID              string         `db:"org_id"`
	UserID             string         `db:"user_id"`
	AudioPath          sql.NullString `db:"audio_path"`
	Status             string         `db:"status"`
	RetryCount         int            `db:"retry_count"`
	MaxRetries         int            `db:"max_retries"`
	NextAttemptAt      *time.Time     `db:"next_attempt_at"`
	LastHeartbeatAt    *time.Time     `db:"last_heartbeat_at"`
	ClaimedBy          sql.NullString `db:"claimed_by"`
	LastErrorMessage   sql.NullString `db:"last_error_message"`
	LastErrorAt        *time.Time     `db:"last_error_at"`
	OutputTranscriptID sql.NullString `db:"output_transcript_id"`
	CompletedAt        *time.Time     `db:"completed_at"`
	CreatedAt          time.Time      `db:"created_at"`
	UpdatedAt          time.Time      `db:"updated_at"`
}

func (r jobRow) toDomain() *domain.Job {
	return &domain.Job{
		ID:                 r.ID,
		OrgID:              r.OrgID,
		UserID:             r.UserID,
		AudioPath:          r.AudioPath.String,
		Status:             domain.JobStatus(r.Status),
		RetryCount:         r.RetryCount,
		MaxRetries:         r.MaxRetries,
		NextAttemptAt:      r.NextAttemptAt,
		LastHeartbeatAt:    r.LastHeartbeatAt,
		ClaimedBy:          r.ClaimedBy.String,
		LastErrorMessage:   r.LastErrorMessage.String,
		LastErrorAt:        r.LastErrorAt,
		OutputTranscriptID: r.OutputTranscriptID.String,
		CompletedAt:        r.CompletedAt,
		CreatedAt:          r.CreatedAt,
		UpdatedAt:          r.UpdatedAt,
	}
}

// JobRepo implements storage.JobStore using PostgreSQL. Claim mutual
// exclusion rests on FOR UPDATE SKIP LOCKED inside a single statement.
type JobRepo struct {
	db         *DB
	instanceID string
}

// NewJobRepo creates a new PostgreSQL job repository. instanceID is
// recorded in claimed_by so operators can see which worker holds a lease.
func NewJobRepo(db *DB, instanceID string) *JobRepo {
	return &JobRepo{db: db, instanceID: instanceID}
}

// ClaimNext claims the oldest eligible pending job, if any.
func (r *JobRepo) ClaimNext(ctx context.Context) (*domain.Job, error) {
	query := fmt.Sprintf(`
		WITH next_job AS (
			SELECT id FROM transcription_jobs
			WHERE status = 'pending'
			  AND (next_attempt_at IS NULL OR next_attempt_at <= now())
			ORDER BY created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		UPDATE transcription_jobs j
		SET status = 'processing',
		    claimed_by = $1,
		    last_heartbeat_at = now(),
		    updated_at = now()
		FROM next_job
		WHERE j.id = next_job.id
		RETURNING %s`, prefixColumns("j"))

	var dest jobRow
	err := r.db.GetContext(ctx, &dest, query, r.instanceID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No claimable job
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim next job: %w", err)
	}
	return dest.toDomain(), nil
}

// ClaimByID claims a specific pending job. There is deliberately no
// next_attempt_at gate here: a broker redelivery is trusted as the retry
// schedule for queue-delivered jobs.
func (r *JobRepo) ClaimByID(ctx context.Context, id string) (*domain.Job, error) {
	query := fmt.Sprintf(`
		WITH target AS (
			SELECT id FROM transcription_jobs
			WHERE id = $2 AND status = 'pending'
			FOR UPDATE SKIP LOCKED
		)
		UPDATE transcription_jobs j
		SET status = 'processing',
		    claimed_by = $1,
		    last_heartbeat_at = now(),
		    updated_at = now()
		FROM target
		WHERE j.id = target.id
		RETURNING %s`, prefixColumns("j"))

	var dest jobRow
	err := r.db.GetContext(ctx, &dest, query, r.instanceID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Missing, already claimed, or already terminal
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim job %s: %w", id, err)
	}
	return dest.toDomain(), nil
}

// Heartbeat touches the lease while the job is still held.
func (r *JobRepo) Heartbeat(ctx context.Context, id string) error {
	query := `
		UPDATE transcription_jobs
		SET last_heartbeat_at = now(), updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to heartbeat job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrLeaseLost
	}
	return nil
}

// Complete transitions processing -> completed.
func (r *JobRepo) Complete(ctx context.Context, id string, transcriptID string) error {
	query := `
		UPDATE transcription_jobs
		SET status = 'completed',
		    output_transcript_id = $2,
		    completed_at = now(),
		    updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`
	res, err := r.db.ExecContext(ctx, query, id, transcriptID)
	if err != nil {
		return fmt.Errorf("failed to complete job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrLeaseLost
	}
	return nil
}

// Reschedule transitions processing -> pending with retry bookkeeping.
func (r *JobRepo) Reschedule(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, errMsg string) error {
	query := `
		UPDATE transcription_jobs
		SET status = 'pending',
		    retry_count = $2,
		    next_attempt_at = $3,
		    last_error_message = $4,
		    last_error_at = now(),
		    claimed_by = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`
	res, err := r.db.ExecContext(ctx, query, id, retryCount, nextAttemptAt, errMsg)
	if err != nil {
		return fmt.Errorf("failed to reschedule job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrLeaseLost
	}
	return nil
}

// Fail transitions processing -> failed. retry_count stays as-is so the
// record shows how many attempts were actually made.
func (r *JobRepo) Fail(ctx context.Context, id string, errMsg string) error {
	query := `
		UPDATE transcription_jobs
		SET status = 'failed',
		    last_error_message = $2,
		    last_error_at = now(),
		    claimed_by = NULL,
		    updated_at = now()
		WHERE id = $1 AND status = 'processing'
	`
	res, err := r.db.ExecContext(ctx, query, id, errMsg)
	if err != nil {
		return fmt.Errorf("failed to fail job %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return storage.ErrLeaseLost
	}
	return nil
}

// Get reads the current row without locking it.
func (r *JobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	query := fmt.Sprintf(`SELECT %s FROM transcription_jobs WHERE id = $1`, jobColumns)

	var dest jobRow
	err := r.db.GetContext(ctx, &dest, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %s: %w", id, err)
	}
	return dest.toDomain(), nil
}

// CountByStatus returns job counts per lifecycle state.
func (r *JobRepo) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	query := `SELECT status, COUNT(*) AS count FROM transcription_jobs GROUP BY status`

	var rows []struct {
		Status string `db:"status"`
		Count  int    `db:"count"`
	}
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := make(map[domain.JobStatus]int, len(rows))
	for _, row := range rows {
		counts[domain.JobStatus(row.Status)] = row.Count
	}
	return counts, nil
}

// prefixColumns qualifies the job select list with a table alias for use
// in UPDATE ... RETURNING statements.
func prefixColumns(alias string) string {
	return fmt.Sprintf(`%[1]s.id, %[1]s.org_id, %[1]s.user_id, %[1]s.audio_path, %[1]s.status,
	%[1]s.retry_count, %[1]s.max_retries, %[1]s.next_attempt_at, %[1]s.last_heartbeat_at,
	%[1]s.claimed_by, %[1]s.last_error_message, %[1]s.last_error_at,
	%[1]s.output_transcript_id, %[1]s.completed_at, %[1]s.created_at, %[1]s.updated_at`, alias)
}
