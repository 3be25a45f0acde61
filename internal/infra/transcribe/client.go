// Package transcribe calls the external speech-to-text HTTP API.
package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/voxlane/scribe/internal/core/domain"
)

// ErrorKind partitions API failures for retry classification.
type ErrorKind string

const (
	KindRateLimited ErrorKind = "rate_limited"
	KindTimeout     ErrorKind = "timeout"
	KindInvalid     ErrorKind = "invalid_request"
	KindServer      ErrorKind = "server"
)

// APIError is the typed failure returned by the transcription service
// client. Callers branch on Kind, never on message text.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	RetryAfter string
}

func (e *APIError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transcription %s (http %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("transcription %s: %s", e.Kind, e.Message)
}

// Config holds transcription service settings.
type Config struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client talks to the transcription endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new transcription client.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Transcribe uploads the WAV payload and returns the recognized text with
// segment timing and the billed audio duration.
func (c *Client) Transcribe(ctx context.Context, wav []byte) (*domain.TranscriptionResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if c.cfg.Model != "" {
		if err := mw.WriteField("model", c.cfg.Model); err != nil {
			return nil, fmt.Errorf("write model field: %w", err)
		}
	}
	part, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wav); err != nil {
		return nil, fmt.Errorf("write audio payload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, &APIError{Kind: KindTimeout, Message: err.Error()}
		}
		return nil, &APIError{Kind: KindServer, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError(resp)
	}

	var payload struct {
		Text            string  `json:"text"`
		Language        string  `json:"language"`
		DurationSeconds float64 `json:"duration_seconds"`
		Segments        []struct {
			StartSec float64 `json:"start_sec"`
			EndSec   float64 `json:"end_sec"`
			Text     string  `json:"text"`
		} `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &APIError{Kind: KindServer, StatusCode: resp.StatusCode, Message: fmt.Sprintf("parse response: %v", err)}
	}

	result := &domain.TranscriptionResult{
		Text:            payload.Text,
		Language:        payload.Language,
		DurationSeconds: payload.DurationSeconds,
	}
	for _, s := range payload.Segments {
		result.Segments = append(result.Segments, domain.Segment{
			StartSec: s.StartSec,
			EndSec:   s.EndSec,
			Text:     s.Text,
		})
	}
	return result, nil
}

// apiError maps a non-200 response to the typed taxonomy.
func (c *Client) apiError(resp *http.Response) *APIError {
	message := readErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &APIError{
			Kind:       KindRateLimited,
			StatusCode: resp.StatusCode,
			Message:    message,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusGatewayTimeout:
		return &APIError{Kind: KindTimeout, StatusCode: resp.StatusCode, Message: message}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return &APIError{Kind: KindInvalid, StatusCode: resp.StatusCode, Message: message}
	default:
		return &APIError{Kind: KindServer, StatusCode: resp.StatusCode, Message: message}
	}
}

// readErrorMessage pulls a human-readable message out of an error body,
// falling back to the raw text.
func readErrorMessage(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(raw) == 0 {
		return "no response body"
	}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && envelope.Error.Message != "" {
		return envelope.Error.Message
	}
	return string(raw)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}
