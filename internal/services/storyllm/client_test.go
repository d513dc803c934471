package storyllm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"storybook/internal/services"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(Config{BaseURL: server.URL},
		WithHTTPClient(server.Client()),
		WithRetryMaxAttempts(3),
		WithRetryBackoff(time.Millisecond, time.Millisecond),
		WithSleeper(func(time.Duration) {}),
	)
	return client, server
}

func TestCompleteReturnsContent(t *testing.T) {
	var gotBody completionRequest
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/completion" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(completionResponse{Content: "hello"})
	})

	content, err := client.Complete(context.Background(), "tell a story")
	if err != nil {
		t.Fatalf("Complete returned error: %v", err)
	}
	if content != "hello" {
		t.Fatalf("content = %q, want %q", content, "hello")
	}
	if gotBody.Stream {
		t.Error("request asked for streaming")
	}
	if gotBody.NPredict != defaultMaxTokens {
		t.Errorf("n_predict = %d, want %d", gotBody.NPredict, defaultMaxTokens)
	}
}

func TestCompleteRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(completionResponse{Content: "recovered"})
	})

	content, err := client.Complete(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Complete returned error after retries: %v", err)
	}
	if content != "recovered" {
		t.Fatalf("content = %q", content)
	}
	if got := calls.Load(); got != 3 {
		t.Fatalf("server called %d times, want 3", got)
	}
}

func TestCompleteDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad prompt", http.StatusBadRequest)
	})

	_, err := client.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrGeneration) {
		t.Fatalf("error = %v, want ErrGeneration", err)
	}
	if got := calls.Load(); got != 1 {
		t.Fatalf("server called %d times, want 1", got)
	}
}

func TestCompleteExhaustedRetriesClassifiedUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()
	client := NewClient(Config{BaseURL: server.URL},
		WithRetryMaxAttempts(2),
		WithRetryBackoff(time.Millisecond, time.Millisecond),
		WithSleeper(func(time.Duration) {}),
	)

	_, err := client.Complete(context.Background(), "prompt")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestCompleteRejectsEmptyPrompt(t *testing.T) {
	client := NewClient(Config{})
	if _, err := client.Complete(context.Background(), "   "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}
