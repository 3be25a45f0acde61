package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/voxlane/scribe/internal/core/domain"
)

// TranscriptRepo implements storage.TranscriptStore using PostgreSQL.
type TranscriptRepo struct {
	db *DB
}

// NewTranscriptRepo creates a new PostgreSQL transcript repository.
func NewTranscriptRepo(db *DB) *TranscriptRepo {
	return &TranscriptRepo{db: db}
}

// Create inserts the transcript for a job. The unique constraint on
// job_id keeps this at-most-once: a retried persist step replaces the
// earlier row's content and gets the same id back.
func (r *TranscriptRepo) Create(ctx context.Context, t *domain.Transcript) (string, error) {
	segments, err := json.Marshal(t.Segments)
	if err != nil {
		return "", fmt.Errorf("failed to marshal segments: %w", err)
	}

	query := `
		INSERT INTO transcripts (job_id, org_id, text, language, duration_seconds, segments, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (job_id) DO UPDATE
		SET text = EXCLUDED.text,
		    language = EXCLUDED.language,
		    duration_seconds = EXCLUDED.duration_seconds,
		    segments = EXCLUDED.segments
		RETURNING id
	`

	var id string
	err = r.db.GetContext(ctx, &id, query,
		t.JobID,
		t.OrgID,
		t.Text,
		t.Language,
		t.DurationSeconds,
		segments,
	)
	if err != nil {
		return "", fmt.Errorf("failed to create transcript for job %s: %w", t.JobID, err)
	}
	return id, nil
}
