package worker

import "time"

// Decision captures what happens to a job after a failed attempt.
type Decision struct {
	Retry          bool
	NextRetryCount int
	NextAttemptAt  time.Time
}

// Decide computes retry bookkeeping from the job's current counters and
// the classifier verdict. The delay for attempt n is 2^n minutes and has
// no upper bound: with the default budget of three retries the longest
// wait is eight minutes, but a raised max_retries grows the tail
// exponentially rather than flattening at a cap.
func Decide(retryCount, maxRetries int, retryable bool, now time.Time) Decision {
	if !retryable {
		return Decision{}
	}
	next := retryCount + 1
	if next > maxRetries {
		return Decision{}
	}
	delay := time.Duration(1<<uint(next)) * time.Minute
	return Decision{
		Retry:          true,
		NextRetryCount: next,
		NextAttemptAt:  now.Add(delay),
	}
}
