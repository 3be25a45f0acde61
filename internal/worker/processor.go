package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxlane/scribe/internal/audit"
	"github.com/voxlane/scribe/internal/core/domain"
	"github.com/voxlane/scribe/internal/infra/storage"
	"github.com/voxlane/scribe/internal/metrics"
)

// Downloader fetches raw audio bytes from the object store.
type Downloader interface {
	Fetch(ctx context.Context, locator string) ([]byte, error)
}

// Transcoder normalizes audio into the format the transcription service
// accepts.
type Transcoder interface {
	Transcode(ctx context.Context, audio []byte) ([]byte, error)
}

// Transcriber turns normalized audio into a transcription result.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (*domain.TranscriptionResult, error)
}

// Processor drives one claimed job through the full pipeline. Every run
// leaves the job in a terminal bookkeeping state for this attempt:
// completed, rescheduled, or failed.
type Processor struct {
	jobs        storage.JobStore
	transcripts storage.TranscriptStore
	downloader  Downloader
	transcoder  Transcoder
	transcriber Transcriber
	sink        audit.Sink

	heartbeatInterval time.Duration

	mu      sync.Mutex
	current string
}

// NewProcessor wires the pipeline around its collaborators.
func NewProcessor(
	jobs storage.JobStore,
	transcripts storage.TranscriptStore,
	downloader Downloader,
	transcoder Transcoder,
	transcriber Transcriber,
	sink audit.Sink,
	heartbeatInterval time.Duration,
) *Processor {
	return &Processor{
		jobs:              jobs,
		transcripts:       transcripts,
		downloader:        downloader,
		transcoder:        transcoder,
		transcriber:       transcriber,
		sink:              sink,
		heartbeatInterval: heartbeatInterval,
	}
}

// Run processes one claimed job. It returns nil when the job completed and
// the pipeline error otherwise; retry bookkeeping has already been applied
// by the time it returns. Caller cancellation is ignored: a claimed job
// runs to a terminal state even while the worker is shutting down.
func (p *Processor) Run(ctx context.Context, job *domain.Job) error {
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	p.setCurrent(job.ID)
	defer p.setCurrent("")
	metrics.JobsInFlight.Inc()
	defer metrics.JobsInFlight.Dec()
	defer func() {
		metrics.JobDuration.Observe(time.Since(start).Seconds())
	}()

	slog.Info("Processing job",
		"job_id", job.ID,
		"org_id", job.OrgID,
		"retry_count", job.RetryCount)

	// No heartbeat yet: a job without an audio reference fails before any
	// pipeline work starts.
	if job.AudioPath == "" {
		err := fmt.Errorf("job %s has no audio source reference", job.ID)
		p.finalize(ctx, job, err)
		return err
	}

	p.sink.Emit(ctx, audit.NewEvent(audit.KindJobStarted, job))

	hb := StartReporter(p.jobs, job.ID, p.heartbeatInterval)
	defer hb.Stop()

	transcriptID, audioSeconds, err := p.pipeline(ctx, job)
	hb.Stop()
	if err != nil {
		p.finalize(ctx, job, err)
		return err
	}

	duration := time.Since(start)
	metrics.JobsProcessed.WithLabelValues("completed").Inc()
	slog.Info("Job completed",
		"job_id", job.ID,
		"transcript_id", transcriptID,
		"audio_seconds", audioSeconds,
		"duration", duration)

	ev := audit.NewEvent(audit.KindJobCompleted, job)
	ev.DurationMS = duration.Milliseconds()
	ev.AudioSeconds = audioSeconds
	p.sink.Emit(ctx, ev)
	return nil
}

// pipeline runs download -> transcode -> transcribe -> persist in order.
// The first failing stage aborts the rest.
func (p *Processor) pipeline(ctx context.Context, job *domain.Job) (string, float64, error) {
	stageStart := time.Now()
	raw, err := p.downloader.Fetch(ctx, job.AudioPath)
	observeStage("download", stageStart)
	if err != nil {
		return "", 0, fmt.Errorf("download: %w", err)
	}

	stageStart = time.Now()
	wav, err := p.transcoder.Transcode(ctx, raw)
	observeStage("transcode", stageStart)
	if err != nil {
		return "", 0, fmt.Errorf("transcode: %w", err)
	}

	stageStart = time.Now()
	result, err := p.transcriber.Transcribe(ctx, wav)
	observeStage("transcribe", stageStart)
	if err != nil {
		return "", 0, fmt.Errorf("transcribe: %w", err)
	}

	stageStart = time.Now()
	transcriptID, err := p.persist(ctx, job, result)
	observeStage("persist", stageStart)
	if err != nil {
		return "", 0, err
	}
	return transcriptID, result.DurationSeconds, nil
}

func (p *Processor) persist(ctx context.Context, job *domain.Job, result *domain.TranscriptionResult) (string, error) {
	transcript := &domain.Transcript{
		JobID:           job.ID,
		OrgID:           job.OrgID,
		Text:            result.Text,
		Language:        result.Language,
		DurationSeconds: result.DurationSeconds,
		Segments:        result.Segments,
	}
	transcriptID, err := p.transcripts.Create(ctx, transcript)
	if err != nil {
		return "", fmt.Errorf("persist transcript: %w", err)
	}
	if err := p.jobs.Complete(ctx, job.ID, transcriptID); err != nil {
		return "", fmt.Errorf("mark completed: %w", err)
	}
	return transcriptID, nil
}

// finalize applies retry bookkeeping after a failed attempt. Retry
// counters are re-read from the store so a stale in-memory copy cannot
// skew the budget.
func (p *Processor) finalize(ctx context.Context, job *domain.Job, runErr error) {
	fresh, err := p.jobs.Get(ctx, job.ID)
	if err != nil {
		slog.Error("Failed to re-read job for failure bookkeeping", "job_id", job.ID, "error", err)
		fresh = job
	}
	if fresh == nil {
		slog.Error("Job row missing during failure bookkeeping", "job_id", job.ID)
		return
	}

	msg := runErr.Error()
	decision := Decide(fresh.RetryCount, fresh.MaxRetries, Retryable(runErr), time.Now().UTC())

	if decision.Retry {
		if err := p.jobs.Reschedule(ctx, fresh.ID, decision.NextRetryCount, decision.NextAttemptAt, msg); err != nil {
			slog.Error("Failed to reschedule job", "job_id", fresh.ID, "error", err)
			return
		}
		slog.Warn("Job attempt failed, rescheduled",
			"job_id", fresh.ID,
			"retry_count", decision.NextRetryCount,
			"next_attempt_at", decision.NextAttemptAt.Format(time.RFC3339),
			"error", msg)
		metrics.JobsProcessed.WithLabelValues("retried").Inc()

		ev := audit.NewEvent(audit.KindJobRetried, fresh)
		ev.RetryCount = decision.NextRetryCount
		ev.Error = msg
		p.sink.Emit(ctx, ev)
		return
	}

	if err := p.jobs.Fail(ctx, fresh.ID, msg); err != nil {
		slog.Error("Failed to mark job failed", "job_id", fresh.ID, "error", err)
		return
	}
	slog.Error("Job failed permanently",
		"job_id", fresh.ID,
		"retry_count", fresh.RetryCount,
		"error", msg)
	metrics.JobsProcessed.WithLabelValues("failed").Inc()

	ev := audit.NewEvent(audit.KindJobFailed, fresh)
	ev.Error = msg
	p.sink.Emit(ctx, ev)
}

func observeStage(stage string, start time.Time) {
	metrics.PipelineStageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

func (p *Processor) setCurrent(id string) {
	p.mu.Lock()
	p.current = id
	p.mu.Unlock()
}

// CurrentJobID reports the job being processed right now, or "" when the
// worker is idle. Used by the detailed health endpoint.
func (p *Processor) CurrentJobID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}
