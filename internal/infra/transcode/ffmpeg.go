// Package transcode normalizes source audio to mono 16 kHz WAV via ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// Config holds transcoder settings.
type Config struct {
	BinPath string        `yaml:"bin_path"`
	Timeout time.Duration `yaml:"timeout"`
}

// ExitError reports a non-zero ffmpeg exit with its diagnostic output.
type ExitError struct {
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("ffmpeg exited %d: %s", e.ExitCode, e.Stderr)
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, stdin []byte, name string, args ...string) (stdout []byte, stderr string, err error)
}

// execRunner executes commands via os/exec.
type execRunner struct{}

func (execRunner) Run(ctx context.Context, stdin []byte, name string, args ...string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.String(), err
}

// FFmpeg invokes the ffmpeg binary with fixed normalization parameters.
type FFmpeg struct {
	cfg    Config
	runner commandRunner
}

// New creates a transcoder using the configured ffmpeg binary.
func New(cfg Config) *FFmpeg {
	return &FFmpeg{cfg: cfg, runner: execRunner{}}
}

// NewWithRunner injects a command runner, for tests.
func NewWithRunner(cfg Config, runner commandRunner) *FFmpeg {
	return &FFmpeg{cfg: cfg, runner: runner}
}

// Transcode converts the source audio bytes to mono 16 kHz PCM WAV.
func (f *FFmpeg) Transcode(ctx context.Context, audio []byte) ([]byte, error) {
	if f.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.cfg.Timeout)
		defer cancel()
	}

	out, stderr, err := f.runner.Run(ctx, audio, f.cfg.BinPath, transcodeArgs()...)
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &ExitError{ExitCode: code, Stderr: tail(stderr, 2048)}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no output: %s", tail(stderr, 2048))
	}
	return out, nil
}

func transcodeArgs() []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		"-f", "wav",
		"pipe:1",
	}
}

// tail keeps the last n bytes of diagnostic output; ffmpeg puts the
// actual failure reason at the end.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
