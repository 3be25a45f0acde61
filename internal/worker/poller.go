package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/voxlane/scribe/internal/core/domain"
	"github.com/voxlane/scribe/internal/infra/storage"
	"github.com/voxlane/scribe/internal/metrics"
)

// Runner is the slice of the Processor the consumption adapters need.
type Runner interface {
	Run(ctx context.Context, job *domain.Job) error
}

// Poller pulls work by asking the store for the next claimable job in a
// fixed-interval loop. Jobs run one at a time; there is no intra-process
// parallelism.
type Poller struct {
	store    storage.JobStore
	runner   Runner
	interval time.Duration
}

// NewPoller creates the pull-based consumption adapter.
func NewPoller(store storage.JobStore, runner Runner, interval time.Duration) *Poller {
	return &Poller{store: store, runner: runner, interval: interval}
}

// Start runs the claim loop until ctx is cancelled. An in-flight job
// finishes before Start returns.
func (p *Poller) Start(ctx context.Context) {
	slog.Info("Poll loop started", "interval", p.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("Poll loop stopped")
			return
		default:
		}

		job, err := p.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			slog.Error("Failed to claim next job", "error", err)
			metrics.ClaimsTotal.WithLabelValues("error").Inc()
			p.sleep(ctx)
			continue
		}
		if job == nil {
			metrics.ClaimsTotal.WithLabelValues("empty").Inc()
			p.sleep(ctx)
			continue
		}

		metrics.ClaimsTotal.WithLabelValues("claimed").Inc()
		// Outcome bookkeeping and logging happen inside Run.
		_ = p.runner.Run(ctx, job)
	}
}

func (p *Poller) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.interval):
	}
}
