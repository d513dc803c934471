package client

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"storybook/internal/api"
	"storybook/internal/run"
)

func TestCreateRunSendsTokenAndDecodes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"run_id": "20250101_120000_abc123"}`)
	}))
	t.Cleanup(server.Close)

	c := New(server.URL, "secret")
	resp, err := c.CreateRun(context.Background(), api.CreateRunRequest{
		EraKo: "조선", PlaceKo: "서울", CharactersKo: "토끼", TopicKo: "여행",
	})
	if err != nil {
		t.Fatalf("CreateRun returned error: %v", err)
	}
	if resp.RunID != "20250101_120000_abc123" {
		t.Errorf("run_id = %q", resp.RunID)
	}
}

func TestErrorPayloadSurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, `{"error": "another run is in progress"}`)
	}))
	t.Cleanup(server.Close)

	_, err := New(server.URL, "").CreateRun(context.Background(), api.CreateRunRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := err.Error(); got != "another run is in progress (http 503)" {
		t.Errorf("error = %q", got)
	}
}

func TestWatchEventsStreamsUpdates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: update\ndata: {\"status\":\"RUNNING\",\"stage\":\"TEXT\",\"ready_max_page\":-1,\"ready_max_audio_page\":-1}\n\n")
		fmt.Fprint(w, "event: keepalive\ndata: \n\n")
		fmt.Fprint(w, "event: update\ndata: {\"status\":\"DONE\",\"stage\":\"AUDIO\",\"ready_max_page\":4,\"ready_max_audio_page\":4}\n\n")
		fmt.Fprint(w, "event: done\ndata: \n\n")
	}))
	t.Cleanup(server.Close)

	var got []api.RunEvent
	err := New(server.URL, "").WatchEvents(context.Background(), "r1", func(evt api.RunEvent) {
		got = append(got, evt)
	})
	if err != nil {
		t.Fatalf("WatchEvents returned error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("received %d events, want 2", len(got))
	}
	if got[0].Status != run.StatusRunning || got[1].Status != run.StatusDone {
		t.Errorf("events = %+v", got)
	}
	if got[1].ReadyMaxPage != 4 {
		t.Errorf("final ready_max_page = %d", got[1].ReadyMaxPage)
	}
}
