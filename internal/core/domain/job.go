package domain

import (
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// Job represents one transcription work item. Rows are created by the
// upstream submission path; the worker only moves them through the
// pending -> processing -> completed/failed lifecycle.
type Job struct {
	ID                 string
	OrgID              string
	UserID             string
	AudioPath          string
	Status             JobStatus
	RetryCount         int
	MaxRetries         int
	NextAttemptAt      *time.Time
	LastHeartbeatAt    *time.Time
	ClaimedBy          string
	LastErrorMessage   string
	LastErrorAt        *time.Time
	OutputTranscriptID string
	CompletedAt        *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}
