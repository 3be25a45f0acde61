package control

import (
	"context"

	"github.com/voxlane/scribe/internal/infra/broker"
	"github.com/voxlane/scribe/internal/worker"
)

// pollConsumer adapts the pull loop to the Consumer contract.
type pollConsumer struct {
	poller *worker.Poller
	done   chan struct{}
}

func (c *pollConsumer) Start(ctx context.Context) error {
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		c.poller.Start(ctx)
	}()
	return nil
}

// Stop waits for the loop, and the job it may be running, to finish.
func (c *pollConsumer) Stop(ctx context.Context) error {
	if c.done == nil {
		return nil
	}
	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// queueConsumer adapts the asynq server to the Consumer contract.
type queueConsumer struct {
	server *broker.Server
}

func (c *queueConsumer) Start(ctx context.Context) error {
	return c.server.Start()
}

// Stop blocks until the in-flight handler returns or the broker's own
// shutdown timeout elapses, whichever comes first.
func (c *queueConsumer) Stop(ctx context.Context) error {
	c.server.Shutdown()
	return nil
}
