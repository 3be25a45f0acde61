// Package memory provides an in-memory store used by tests and local
// experiments. Claim semantics mirror the PostgreSQL implementation,
// with a mutex standing in for row locks.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxlane/scribe/internal/core/domain"
	"github.com/voxlane/scribe/internal/infra/storage"
)

type Store struct {
	jobs        map[string]*domain.Job
	transcripts map[string]*domain.Transcript
	mu          sync.RWMutex
}

func NewStore() *Store {
	return &Store{
		jobs:        make(map[string]*domain.Job),
		transcripts: make(map[string]*domain.Transcript),
	}
}

// AddJob seeds a job row.
func (s *Store) AddJob(job *domain.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	s.jobs[job.ID] = job
}

// TranscriptForJob returns the stored transcript for a job, or nil.
func (s *Store) TranscriptForJob(jobID string) *domain.Transcript {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcripts[jobID]
}

// -----------------------------------------------------------------------------
// Job Repository
// -----------------------------------------------------------------------------

type JobRepo struct {
	store      *Store
	instanceID string
}

func NewJobRepo(store *Store, instanceID string) *JobRepo {
	return &JobRepo{store: store, instanceID: instanceID}
}

func (r *JobRepo) ClaimNext(ctx context.Context) (*domain.Job, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := time.Now()
	var next *domain.Job
	for _, j := range r.store.jobs {
		if j.Status != domain.JobStatusPending {
			continue
		}
		if j.NextAttemptAt != nil && j.NextAttemptAt.After(now) {
			continue
		}
		if next == nil || j.CreatedAt.Before(next.CreatedAt) {
			next = j
		}
	}
	if next == nil {
		return nil, nil
	}
	r.claim(next, now)
	return clone(next), nil
}

func (r *JobRepo) ClaimByID(ctx context.Context, id string) (*domain.Job, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	j, ok := r.store.jobs[id]
	if !ok || j.Status != domain.JobStatusPending {
		return nil, nil
	}
	r.claim(j, time.Now())
	return clone(j), nil
}

// claim flips a pending row to processing. Caller holds the lock.
func (r *JobRepo) claim(j *domain.Job, now time.Time) {
	j.Status = domain.JobStatusProcessing
	j.ClaimedBy = r.instanceID
	j.LastHeartbeatAt = &now
	j.UpdatedAt = now
}

func (r *JobRepo) Heartbeat(ctx context.Context, id string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	j, ok := r.store.jobs[id]
	if !ok || j.Status != domain.JobStatusProcessing {
		return storage.ErrLeaseLost
	}
	now := time.Now()
	j.LastHeartbeatAt = &now
	j.UpdatedAt = now
	return nil
}

func (r *JobRepo) Complete(ctx context.Context, id string, transcriptID string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	j, ok := r.store.jobs[id]
	if !ok || j.Status != domain.JobStatusProcessing {
		return storage.ErrLeaseLost
	}
	now := time.Now()
	j.Status = domain.JobStatusCompleted
	j.OutputTranscriptID = transcriptID
	j.CompletedAt = &now
	j.UpdatedAt = now
	return nil
}

func (r *JobRepo) Reschedule(ctx context.Context, id string, retryCount int, nextAttemptAt time.Time, errMsg string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	j, ok := r.store.jobs[id]
	if !ok || j.Status != domain.JobStatusProcessing {
		return storage.ErrLeaseLost
	}
	now := time.Now()
	j.Status = domain.JobStatusPending
	j.RetryCount = retryCount
	j.NextAttemptAt = &nextAttemptAt
	j.LastErrorMessage = errMsg
	j.LastErrorAt = &now
	j.ClaimedBy = ""
	j.UpdatedAt = now
	return nil
}

func (r *JobRepo) Fail(ctx context.Context, id string, errMsg string) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	j, ok := r.store.jobs[id]
	if !ok || j.Status != domain.JobStatusProcessing {
		return storage.ErrLeaseLost
	}
	now := time.Now()
	j.Status = domain.JobStatusFailed
	j.LastErrorMessage = errMsg
	j.LastErrorAt = &now
	j.ClaimedBy = ""
	j.UpdatedAt = now
	return nil
}

func (r *JobRepo) Get(ctx context.Context, id string) (*domain.Job, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	j, ok := r.store.jobs[id]
	if !ok {
		return nil, nil
	}
	return clone(j), nil
}

func (r *JobRepo) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	counts := make(map[domain.JobStatus]int)
	for _, j := range r.store.jobs {
		counts[j.Status]++
	}
	return counts, nil
}

// -----------------------------------------------------------------------------
// Transcript Repository
// -----------------------------------------------------------------------------

type TranscriptRepo struct {
	store *Store
}

func NewTranscriptRepo(store *Store) *TranscriptRepo {
	return &TranscriptRepo{store: store}
}

func (r *TranscriptRepo) Create(ctx context.Context, t *domain.Transcript) (string, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	// Re-running a job replaces its transcript, keeping the original id.
	if existing, ok := r.store.transcripts[t.JobID]; ok {
		t.ID = existing.ID
		t.CreatedAt = existing.CreatedAt
		r.store.transcripts[t.JobID] = t
		return existing.ID, nil
	}

	t.ID = uuid.NewString()
	t.CreatedAt = time.Now()
	r.store.transcripts[t.JobID] = t
	return t.ID, nil
}

func clone(j *domain.Job) *domain.Job {
	c := *j
	return &c
}
