package worker

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxlane/scribe/internal/audit"
	"github.com/voxlane/scribe/internal/core/domain"
	"github.com/voxlane/scribe/internal/infra/storage/memory"
	"github.com/voxlane/scribe/internal/infra/transcode"
	"github.com/voxlane/scribe/internal/infra/transcribe"
)

const testJobID = "6f1d8a3e-9c47-4b5a-8a21-3f0f6d2c9b10"

// =============================================================================
// Pipeline Fakes
// =============================================================================

type fakeDownloader struct {
	data    []byte
	err     error
	calls   int
	locator string
}

func (f *fakeDownloader) Fetch(ctx context.Context, locator string) ([]byte, error) {
	f.calls++
	f.locator = locator
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fakeTranscoder struct {
	out   []byte
	err   error
	input []byte
}

func (f *fakeTranscoder) Transcode(ctx context.Context, audio []byte) ([]byte, error) {
	f.input = audio
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeTranscriber struct {
	result *domain.TranscriptionResult
	err    error
	wav    []byte
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, wav []byte) (*domain.TranscriptionResult, error) {
	f.wav = wav
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type captureSink struct {
	mu     sync.Mutex
	events []audit.Event
}

func (s *captureSink) Emit(ctx context.Context, event audit.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *captureSink) kinds() []audit.Kind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]audit.Kind, 0, len(s.events))
	for _, e := range s.events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// claimJob seeds one pending job and claims it, as a consumption adapter
// would before handing it to the processor.
func claimJob(t *testing.T, jobs *memory.JobRepo, store *memory.Store, job *domain.Job) *domain.Job {
	t.Helper()
	if job.Status == "" {
		job.Status = domain.JobStatusPending
	}
	store.AddJob(job)
	claimed, err := jobs.ClaimByID(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("ClaimByID failed: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected to claim the seeded job")
	}
	return claimed
}

// =============================================================================
// Success Path
// =============================================================================

func TestProcessor_Run_Success(t *testing.T) {
	store := memory.NewStore()
	jobs := memory.NewJobRepo(store, "worker-1")
	claimed := claimJob(t, jobs, store, &domain.Job{
		ID:         testJobID,
		OrgID:      "org-1",
		UserID:     "user-1",
		AudioPath:  "media/call.mp3",
		MaxRetries: 3,
	})

	dl := &fakeDownloader{data: []byte("raw-audio")}
	tc := &fakeTranscoder{out: []byte("wav-data")}
	tr := &fakeTranscriber{result: &domain.TranscriptionResult{
		Text:            "hello world",
		Language:        "en",
		DurationSeconds: 12.5,
		Segments:        []domain.Segment{{StartSec: 0, EndSec: 12.5, Text: "hello world"}},
	}}
	sink := &captureSink{}

	proc := NewProcessor(jobs, memory.NewTranscriptRepo(store), dl, tc, tr, sink, time.Hour)
	if err := proc.Run(context.Background(), claimed); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	fresh, _ := jobs.Get(context.Background(), testJobID)
	if fresh.Status != domain.JobStatusCompleted {
		t.Errorf("expected status completed, got %s", fresh.Status)
	}
	if fresh.OutputTranscriptID == "" {
		t.Error("expected output transcript id to be set")
	}
	if fresh.CompletedAt == nil {
		t.Error("expected completed_at to be set")
	}

	transcript := store.TranscriptForJob(testJobID)
	if transcript == nil {
		t.Fatal("expected a persisted transcript")
	}
	if transcript.Text != "hello world" {
		t.Errorf("expected transcript text %q, got %q", "hello world", transcript.Text)
	}
	if transcript.OrgID != "org-1" {
		t.Errorf("expected transcript org org-1, got %s", transcript.OrgID)
	}
	if transcript.ID != fresh.OutputTranscriptID {
		t.Error("job should reference the stored transcript")
	}
	if len(transcript.Segments) != 1 {
		t.Fatalf("expected 1 segment, got %d", len(transcript.Segments))
	}

	// Stage plumbing: each stage feeds the next.
	if dl.locator != "media/call.mp3" {
		t.Errorf("expected download of media/call.mp3, got %s", dl.locator)
	}
	if string(tc.input) != "raw-audio" {
		t.Errorf("expected transcoder to receive downloaded bytes, got %q", tc.input)
	}
	if string(tr.wav) != "wav-data" {
		t.Errorf("expected transcriber to receive transcoded bytes, got %q", tr.wav)
	}

	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[0] != audit.KindJobStarted || kinds[1] != audit.KindJobCompleted {
		t.Errorf("expected audit [started, completed], got %v", kinds)
	}
}

// =============================================================================
// Failure Handling
// =============================================================================

func TestProcessor_Run_RetryableFailureReschedules(t *testing.T) {
	store := memory.NewStore()
	jobs := memory.NewJobRepo(store, "worker-1")
	claimed := claimJob(t, jobs, store, &domain.Job{
		ID:         testJobID,
		AudioPath:  "media/call.mp3",
		MaxRetries: 3,
	})

	tr := &fakeTranscriber{err: &transcribe.APIError{
		Kind:       transcribe.KindRateLimited,
		StatusCode: 429,
		Message:    "slow down",
	}}
	sink := &captureSink{}
	proc := NewProcessor(jobs, memory.NewTranscriptRepo(store),
		&fakeDownloader{data: []byte("a")}, &fakeTranscoder{out: []byte("w")}, tr, sink, time.Hour)

	before := time.Now()
	err := proc.Run(context.Background(), claimed)
	if err == nil {
		t.Fatal("expected Run to surface the pipeline error")
	}
	if !strings.Contains(err.Error(), "transcribe") {
		t.Errorf("expected error to name the failing stage, got %v", err)
	}

	fresh, _ := jobs.Get(context.Background(), testJobID)
	if fresh.Status != domain.JobStatusPending {
		t.Fatalf("expected status pending, got %s", fresh.Status)
	}
	if fresh.RetryCount != 1 {
		t.Errorf("expected retry count 1, got %d", fresh.RetryCount)
	}
	if fresh.NextAttemptAt == nil {
		t.Fatal("expected next_attempt_at to be scheduled")
	}
	delay := fresh.NextAttemptAt.Sub(before)
	if delay < 119*time.Second || delay > 121*time.Second {
		t.Errorf("expected ~2m backoff on the first retry, got %v", delay)
	}
	if !strings.Contains(fresh.LastErrorMessage, "slow down") {
		t.Errorf("expected last error to carry the service message, got %q", fresh.LastErrorMessage)
	}
	if fresh.ClaimedBy != "" {
		t.Errorf("expected lease to be released, still claimed by %s", fresh.ClaimedBy)
	}

	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[1] != audit.KindJobRetried {
		t.Errorf("expected audit [started, retried], got %v", kinds)
	}
}

func TestProcessor_Run_FatalFailureFails(t *testing.T) {
	store := memory.NewStore()
	jobs := memory.NewJobRepo(store, "worker-1")
	claimed := claimJob(t, jobs, store, &domain.Job{
		ID:         testJobID,
		AudioPath:  "media/call.mp3",
		MaxRetries: 3,
	})

	tc := &fakeTranscoder{err: &transcode.ExitError{ExitCode: 1, Stderr: "invalid data"}}
	sink := &captureSink{}
	proc := NewProcessor(jobs, memory.NewTranscriptRepo(store),
		&fakeDownloader{data: []byte("a")}, tc, &fakeTranscriber{}, sink, time.Hour)

	if err := proc.Run(context.Background(), claimed); err == nil {
		t.Fatal("expected Run to surface the pipeline error")
	}

	fresh, _ := jobs.Get(context.Background(), testJobID)
	if fresh.Status != domain.JobStatusFailed {
		t.Fatalf("expected status failed, got %s", fresh.Status)
	}
	if fresh.RetryCount != 0 {
		t.Errorf("terminal failure must not consume retry budget, got count %d", fresh.RetryCount)
	}
	if !strings.Contains(fresh.LastErrorMessage, "transcode") {
		t.Errorf("expected last error to name the stage, got %q", fresh.LastErrorMessage)
	}
	if fresh.LastErrorAt == nil {
		t.Error("expected last_error_at to be set")
	}

	kinds := sink.kinds()
	if len(kinds) != 2 || kinds[1] != audit.KindJobFailed {
		t.Errorf("expected audit [started, failed], got %v", kinds)
	}
}

func TestProcessor_Run_BudgetExhausted(t *testing.T) {
	store := memory.NewStore()
	jobs := memory.NewJobRepo(store, "worker-1")
	// Already used the whole budget: the next failure is terminal even
	// though the error kind is retryable.
	claimed := claimJob(t, jobs, store, &domain.Job{
		ID:         testJobID,
		AudioPath:  "media/call.mp3",
		RetryCount: 3,
		MaxRetries: 3,
	})

	tr := &fakeTranscriber{err: &transcribe.APIError{Kind: transcribe.KindTimeout}}
	proc := NewProcessor(jobs, memory.NewTranscriptRepo(store),
		&fakeDownloader{data: []byte("a")}, &fakeTranscoder{out: []byte("w")}, tr, &captureSink{}, time.Hour)

	if err := proc.Run(context.Background(), claimed); err == nil {
		t.Fatal("expected Run to surface the pipeline error")
	}

	fresh, _ := jobs.Get(context.Background(), testJobID)
	if fresh.Status != domain.JobStatusFailed {
		t.Fatalf("expected status failed after the budget is spent, got %s", fresh.Status)
	}
	if fresh.RetryCount != 3 {
		t.Errorf("expected retry count to stay 3, got %d", fresh.RetryCount)
	}
}

func TestProcessor_Run_RefetchesRetryBookkeeping(t *testing.T) {
	store := memory.NewStore()
	jobs := memory.NewJobRepo(store, "worker-1")
	claimed := claimJob(t, jobs, store, &domain.Job{
		ID:         testJobID,
		AudioPath:  "media/call.mp3",
		MaxRetries: 3,
	})

	// The row moves on while this attempt is in flight; the stale copy
	// still says retry_count 0.
	store.AddJob(&domain.Job{
		ID:         testJobID,
		AudioPath:  "media/call.mp3",
		Status:     domain.JobStatusProcessing,
		RetryCount: 3,
		MaxRetries: 3,
	})

	tr := &fakeTranscriber{err: &transcribe.APIError{Kind: transcribe.KindRateLimited}}
	proc := NewProcessor(jobs, memory.NewTranscriptRepo(store),
		&fakeDownloader{data: []byte("a")}, &fakeTranscoder{out: []byte("w")}, tr, &captureSink{}, time.Hour)

	if err := proc.Run(context.Background(), claimed); err == nil {
		t.Fatal("expected Run to surface the pipeline error")
	}

	fresh, _ := jobs.Get(context.Background(), testJobID)
	if fresh.Status != domain.JobStatusFailed {
		t.Errorf("expected the authoritative counters to win: status failed, got %s", fresh.Status)
	}
}

// =============================================================================
// Input Validation
// =============================================================================

func TestProcessor_Run_MissingAudioPath(t *testing.T) {
	store := memory.NewStore()
	jobs := memory.NewJobRepo(store, "worker-1")
	claimed := claimJob(t, jobs, store, &domain.Job{
		ID:         testJobID,
		MaxRetries: 3,
	})

	dl := &fakeDownloader{data: []byte("a")}
	sink := &captureSink{}
	proc := NewProcessor(jobs, memory.NewTranscriptRepo(store),
		dl, &fakeTranscoder{out: []byte("w")}, &fakeTranscriber{}, sink, time.Hour)

	err := proc.Run(context.Background(), claimed)
	if err == nil {
		t.Fatal("expected an error for a job without an audio reference")
	}
	if !strings.Contains(err.Error(), testJobID) {
		t.Errorf("expected the job id in the error, got %v", err)
	}
	if dl.calls != 0 {
		t.Error("expected no download attempt for a job without an audio reference")
	}

	fresh, _ := jobs.Get(context.Background(), testJobID)
	if fresh.Status != domain.JobStatusFailed {
		t.Fatalf("expected status failed, got %s", fresh.Status)
	}
	if fresh.RetryCount != 0 {
		t.Errorf("expected retry count to stay 0, got %d", fresh.RetryCount)
	}

	kinds := sink.kinds()
	if len(kinds) != 1 || kinds[0] != audit.KindJobFailed {
		t.Errorf("expected only a failed audit event, got %v", kinds)
	}
}
