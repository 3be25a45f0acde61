package config

import (
	"fmt"
	"time"

	"github.com/voxlane/scribe/internal/infra/blob"
	"github.com/voxlane/scribe/internal/infra/broker"
	redisclient "github.com/voxlane/scribe/internal/infra/redis"
	"github.com/voxlane/scribe/internal/infra/storage/postgres"
	"github.com/voxlane/scribe/internal/infra/transcode"
	"github.com/voxlane/scribe/internal/infra/transcribe"
)

// Consumption modes. Exactly one is active per process.
const (
	ModePoll  = "poll"
	ModeQueue = "queue"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Worker   WorkerConfig       `yaml:"worker"`
	Pipeline PipelineConfig     `yaml:"pipeline"`
	Broker   broker.Config      `yaml:"broker"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// WorkerConfig holds job consumption settings.
type WorkerConfig struct {
	Mode              string        `yaml:"mode"`               // poll or queue
	InstanceID        string        `yaml:"instance_id"`        // defaults to hostname-suffix
	PollInterval      time.Duration `yaml:"poll_interval"`      // sleep when no job is claimable
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"` // liveness touch period
	ShutdownGrace     time.Duration `yaml:"shutdown_grace"`     // time allowed for the in-flight job on stop
}

// PipelineConfig holds the external collaborator client settings.
type PipelineConfig struct {
	Blob          blob.Config       `yaml:"blob"`
	Transcode     transcode.Config  `yaml:"transcode"`
	Transcription transcribe.Config `yaml:"transcription"`
}

// Validate reports boot-time misconfiguration. The process must exit
// non-zero before claiming any job when this fails.
func (c *AppConfig) Validate() error {
	switch c.Worker.Mode {
	case ModePoll, ModeQueue:
	default:
		return fmt.Errorf("worker.mode must be %q or %q, got %q", ModePoll, ModeQueue, c.Worker.Mode)
	}
	if c.Worker.Mode == ModeQueue && c.Broker.URL == "" {
		return fmt.Errorf("broker.url is required in queue mode")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url is required")
	}
	if c.Pipeline.Transcription.URL == "" {
		return fmt.Errorf("pipeline.transcription.url is required")
	}
	return nil
}
