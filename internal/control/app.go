// Package control wires the worker's components together and manages
// their lifecycle.
package control

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/voxlane/scribe/internal/audit"
	"github.com/voxlane/scribe/internal/core/config"
	"github.com/voxlane/scribe/internal/health"
	"github.com/voxlane/scribe/internal/infra/blob"
	"github.com/voxlane/scribe/internal/infra/broker"
	redisclient "github.com/voxlane/scribe/internal/infra/redis"
	"github.com/voxlane/scribe/internal/infra/storage/postgres"
	"github.com/voxlane/scribe/internal/infra/transcode"
	"github.com/voxlane/scribe/internal/infra/transcribe"
	"github.com/voxlane/scribe/internal/worker"
	"github.com/voxlane/scribe/migrations"
)

// Consumer is one consumption adapter driving the processor for the
// process lifetime. Exactly one implementation is active per process,
// chosen from configuration at startup.
type Consumer interface {
	// Start begins consuming claimed jobs. It does not block.
	Start(ctx context.Context) error
	// Stop waits for in-flight work to drain, bounded by ctx.
	Stop(ctx context.Context) error
}

// App is the main application struct that manages the worker lifecycle.
type App struct {
	cfg          *config.AppConfig
	db           *postgres.DB
	redisClient  *redisclient.Client
	processor    *worker.Processor
	consumer     Consumer
	healthServer *health.Server
	log          *slog.Logger
}

// NewApp creates an App with all dependencies initialized. Configuration
// problems surface here, before any job is claimed.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// 1. Initialize Storage
	db, err := postgres.NewDB(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to init db: %w", err)
	}
	if err := db.Migrate(migrations.FS); err != nil {
		return nil, fmt.Errorf("failed to migrate db: %w", err)
	}

	id := instanceID(cfg)
	jobRepo := postgres.NewJobRepo(db, id)
	transcriptRepo := postgres.NewTranscriptRepo(db)
	slog.Info("Using PostgreSQL storage", "instance_id", id)

	// 2. Initialize Pipeline Clients
	blobClient := blob.NewClient(cfg.Pipeline.Blob)
	transcoder := transcode.New(cfg.Pipeline.Transcode)
	transcriber := transcribe.NewClient(cfg.Pipeline.Transcription)

	// 3. Initialize Audit Sink
	var sink audit.Sink = audit.NopSink{}
	var redisClient *redisclient.Client
	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, audit disabled", "error", err)
		} else {
			sink = audit.NewRedisSink(redisClient)
			slog.Info("Audit sink enabled")
		}
	}

	// 4. Initialize Processor
	processor := worker.NewProcessor(
		jobRepo,
		transcriptRepo,
		blobClient,
		transcoder,
		transcriber,
		sink,
		cfg.Worker.HeartbeatInterval,
	)

	// 5. Initialize Consumption Adapter
	var consumer Consumer
	switch cfg.Worker.Mode {
	case config.ModePoll:
		consumer = &pollConsumer{poller: worker.NewPoller(jobRepo, processor, cfg.Worker.PollInterval)}
	case config.ModeQueue:
		handler := worker.NewQueueHandler(jobRepo, processor)
		server, err := broker.NewServer(cfg.Broker, cfg.Worker.ShutdownGrace, handler.ProcessTask)
		if err != nil {
			return nil, fmt.Errorf("failed to init broker server: %w", err)
		}
		consumer = &queueConsumer{server: server}
	}

	// 6. Initialize Health Monitoring
	healthMon := health.NewMonitor(db, jobRepo, processor, cfg.Worker.Mode)
	healthServer := health.NewServer(healthMon, cfg.Server.Port)

	return &App{
		cfg:          cfg,
		db:           db,
		redisClient:  redisClient,
		processor:    processor,
		consumer:     consumer,
		healthServer: healthServer,
		log:          slog.Default(),
	}, nil
}

// Start starts the worker and its supporting services. The consumption
// loop stops claiming when ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	// Start Health Server
	go func() {
		if err := a.healthServer.Start(); err != nil && err != http.ErrServerClosed {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	a.db.StartMetricsCollector(ctx)

	// Start Consumption Adapter
	if err := a.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	a.log.Info("Worker started", "mode", a.cfg.Worker.Mode)

	return nil
}

// Stop shuts the worker down, letting an in-flight job finish within the
// deadline carried by ctx.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping worker...")

	// Drain the consumption adapter
	if a.consumer != nil {
		if err := a.consumer.Stop(ctx); err != nil {
			a.log.Warn("Shutdown grace exceeded with job still in flight", "error", err)
		}
	}

	// Close Redis
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}

	// Stop Health Server
	return a.healthServer.Stop(ctx)
}

// instanceID returns the configured worker identity, or derives one from
// the hostname so claimed_by stays attributable across restarts.
func instanceID(cfg *config.AppConfig) string {
	if cfg.Worker.InstanceID != "" {
		return cfg.Worker.InstanceID
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "scribe"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
