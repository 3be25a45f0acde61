package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Worker.Mode == "" {
		cfg.Worker.Mode = ModePoll
	}
	if cfg.Worker.PollInterval == 0 {
		cfg.Worker.PollInterval = 3 * time.Second
	}
	if cfg.Worker.HeartbeatInterval == 0 {
		cfg.Worker.HeartbeatInterval = 30 * time.Second
	}
	if cfg.Worker.ShutdownGrace == 0 {
		cfg.Worker.ShutdownGrace = 2 * time.Minute
	}
	if cfg.Pipeline.Blob.Timeout == 0 {
		cfg.Pipeline.Blob.Timeout = 60 * time.Second
	}
	if cfg.Pipeline.Transcode.BinPath == "" {
		cfg.Pipeline.Transcode.BinPath = "ffmpeg"
	}
	if cfg.Pipeline.Transcode.Timeout == 0 {
		cfg.Pipeline.Transcode.Timeout = 5 * time.Minute
	}
	if cfg.Pipeline.Transcription.Timeout == 0 {
		cfg.Pipeline.Transcription.Timeout = 2 * time.Minute
	}

	return &cfg, nil
}
