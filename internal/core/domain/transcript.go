package domain

import (
	"time"
)

// Segment is one timed span of recognized speech.
type Segment struct {
	StartSec float64 `json:"start_sec"`
	EndSec   float64 `json:"end_sec"`
	Text     string  `json:"text"`
}

// Transcript is the output artifact of a completed job. At most one
// exists per job, enforced by a unique constraint on job_id.
type Transcript struct {
	ID              string
	JobID           string
	OrgID           string
	Text            string
	Language        string
	DurationSeconds float64
	Segments        []Segment
	CreatedAt       time.Time
}

// TranscriptionResult is what the external transcription service returns
// for one audio payload, before it is bound to a job.
type TranscriptionResult struct {
	Text            string
	Language        string
	DurationSeconds float64
	Segments        []Segment
}
