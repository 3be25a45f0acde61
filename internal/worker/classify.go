package worker

import (
	"errors"

	"github.com/voxlane/scribe/internal/infra/transcribe"
)

// Retryable reports whether a failed attempt should be scheduled again.
// Only transcription-service throttling and timeouts qualify. Everything
// else (missing input, transcode exits, storage errors, unknown failures)
// is permanent so broken jobs surface instead of cycling through the
// retry budget.
func Retryable(err error) bool {
	var apiErr *transcribe.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case transcribe.KindRateLimited, transcribe.KindTimeout:
		return true
	default:
		return false
	}
}
