package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// =============================================================================
// Success Path
// =============================================================================

func TestClient_Transcribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth, got %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart failed: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Errorf("expected model whisper-1, got %q", got)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("expected an audio file part: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		defer file.Close()
		wav, _ := io.ReadAll(file)
		if string(wav) != "wav-bytes" {
			t.Errorf("expected the wav payload, got %q", wav)
		}

		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"text": "hello world",
			"language": "en",
			"duration_seconds": 42.5,
			"segments": [
				{"start_sec": 0, "end_sec": 1.5, "text": "hello"},
				{"start_sec": 1.5, "end_sec": 42.5, "text": "world"}
			]
		}`)
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, APIKey: "test-key", Model: "whisper-1", Timeout: 5 * time.Second})
	result, err := client.Transcribe(context.Background(), []byte("wav-bytes"))
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}

	if result.Text != "hello world" {
		t.Errorf("expected text %q, got %q", "hello world", result.Text)
	}
	if result.Language != "en" {
		t.Errorf("expected language en, got %s", result.Language)
	}
	if result.DurationSeconds != 42.5 {
		t.Errorf("expected duration 42.5, got %f", result.DurationSeconds)
	}
	if len(result.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(result.Segments))
	}
	if result.Segments[1].Text != "world" || result.Segments[1].EndSec != 42.5 {
		t.Errorf("unexpected second segment: %+v", result.Segments[1])
	}
}

// =============================================================================
// Error Taxonomy
// =============================================================================

func TestClient_Transcribe_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error": {"message": "slow down"}}`)
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Timeout: 5 * time.Second})
	_, err := client.Transcribe(context.Background(), []byte("wav"))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected an APIError, got %v", err)
	}
	if apiErr.Kind != KindRateLimited {
		t.Errorf("expected kind rate_limited, got %s", apiErr.Kind)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected status 429, got %d", apiErr.StatusCode)
	}
	if apiErr.RetryAfter != "7" {
		t.Errorf("expected retry-after 7, got %q", apiErr.RetryAfter)
	}
	if apiErr.Message != "slow down" {
		t.Errorf("expected the envelope message, got %q", apiErr.Message)
	}
}

func TestClient_Transcribe_InvalidRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, "unsupported codec")
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Timeout: 5 * time.Second})
	_, err := client.Transcribe(context.Background(), []byte("wav"))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected an APIError, got %v", err)
	}
	if apiErr.Kind != KindInvalid {
		t.Errorf("expected kind invalid_request, got %s", apiErr.Kind)
	}
	if apiErr.Message != "unsupported codec" {
		t.Errorf("expected the raw body as message, got %q", apiErr.Message)
	}
}

func TestClient_Transcribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Timeout: 5 * time.Second})
	_, err := client.Transcribe(context.Background(), []byte("wav"))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected an APIError, got %v", err)
	}
	if apiErr.Kind != KindServer {
		t.Errorf("expected kind server, got %s", apiErr.Kind)
	}
}

func TestClient_Transcribe_GatewayTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Timeout: 5 * time.Second})
	_, err := client.Transcribe(context.Background(), []byte("wav"))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected an APIError, got %v", err)
	}
	if apiErr.Kind != KindTimeout {
		t.Errorf("expected kind timeout, got %s", apiErr.Kind)
	}
}

func TestClient_Transcribe_ClientTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer srv.Close()

	client := NewClient(Config{URL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := client.Transcribe(context.Background(), []byte("wav"))

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected an APIError, got %v", err)
	}
	if apiErr.Kind != KindTimeout {
		t.Errorf("expected kind timeout for a local deadline, got %s", apiErr.Kind)
	}
	if apiErr.StatusCode != 0 {
		t.Errorf("expected no status code before a response, got %d", apiErr.StatusCode)
	}
}
