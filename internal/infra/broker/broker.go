// Package broker wraps the asynq transport used in queue mode. Messages
// only name a job id; all job state lives in the store.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hibiken/asynq"
)

// TaskTypeTranscription is the single task kind this worker consumes.
const TaskTypeTranscription = "transcription:process"

const queueName = "transcriptions"

// Config holds broker connection settings.
type Config struct {
	URL      string `yaml:"url"`
	MaxRetry int    `yaml:"max_retry"` // redeliveries before the broker archives a message
}

// TaskPayload is the message body.
type TaskPayload struct {
	JobID string `json:"job_id"`
}

// NewTask builds a transcription task for a job id.
func NewTask(jobID string) (*asynq.Task, error) {
	body, err := json.Marshal(TaskPayload{JobID: jobID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeTranscription, body, asynq.Queue(queueName)), nil
}

// Server consumes transcription tasks.
type Server struct {
	srv *asynq.Server
	mux *asynq.ServeMux
}

// NewServer creates the consuming side of the broker. Concurrency is
// fixed at one: a process owns at most one job lease at a time.
func NewServer(cfg Config, shutdownTimeout time.Duration, handler asynq.HandlerFunc) (*Server, error) {
	opt, err := asynq.ParseRedisURI(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker url: %w", err)
	}

	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency:     1,
		Queues:          map[string]int{queueName: 1},
		ShutdownTimeout: shutdownTimeout,
		Logger:          slogLogger{log: slog.Default().With("component", "broker")},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskTypeTranscription, handler)

	return &Server{srv: srv, mux: mux}, nil
}

// Start begins fetching messages. It does not block.
func (s *Server) Start() error {
	return s.srv.Start(s.mux)
}

// Shutdown stops fetching, waits for the in-flight handler up to the
// configured shutdown timeout, and releases broker resources.
func (s *Server) Shutdown() {
	s.srv.Shutdown()
}

// Client enqueues job references. Used by the submission side and the
// operator enqueue tool, not by the worker itself.
type Client struct {
	client   *asynq.Client
	maxRetry int
}

// NewClient creates the producing side of the broker.
func NewClient(cfg Config) (*Client, error) {
	opt, err := asynq.ParseRedisURI(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse broker url: %w", err)
	}
	maxRetry := cfg.MaxRetry
	if maxRetry <= 0 {
		maxRetry = 10
	}
	return &Client{client: asynq.NewClient(opt), maxRetry: maxRetry}, nil
}

// EnqueueJob pushes a job reference onto the transcription queue.
func (c *Client) EnqueueJob(ctx context.Context, jobID string) error {
	task, err := NewTask(jobID)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.MaxRetry(c.maxRetry)); err != nil {
		return fmt.Errorf("failed to enqueue job %s: %w", jobID, err)
	}
	return nil
}

// Close releases the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// slogLogger adapts slog to the asynq.Logger interface.
type slogLogger struct {
	log *slog.Logger
}

func (l slogLogger) Debug(args ...interface{}) { l.log.Debug(fmt.Sprint(args...)) }
func (l slogLogger) Info(args ...interface{})  { l.log.Info(fmt.Sprint(args...)) }
func (l slogLogger) Warn(args ...interface{})  { l.log.Warn(fmt.Sprint(args...)) }
func (l slogLogger) Error(args ...interface{}) { l.log.Error(fmt.Sprint(args...)) }
func (l slogLogger) Fatal(args ...interface{}) {
	l.log.Error(fmt.Sprint(args...))
	os.Exit(1)
}
