package jobrunner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSchedule(t *testing.T) {
	var gotPath string
	var gotReq scheduleRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, "http://lifecycle-api:8080/internal/jobs/reminder-trigger")
	fireAt := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	if err := client.Schedule(context.Background(), "reminder-abc", fireAt); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	if gotPath != "/v1.0/jobs/reminder-abc" {
		t.Fatalf("unexpected path: %q", gotPath)
	}
	if gotReq.Schedule != "2026-03-01T08:00:00Z" || gotReq.Repeats != 1 {
		t.Fatalf("unexpected schedule request: %+v", gotReq)
	}
	if gotReq.Callback != "http://lifecycle-api:8080/internal/jobs/reminder-trigger" {
		t.Fatalf("unexpected callback: %q", gotReq.Callback)
	}
}

func TestCancel_UnknownJobIsNoOp(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if err := client.Cancel(context.Background(), "reminder-gone"); err != nil {
		t.Fatalf("cancelling an unknown job must be a no-op, got %v", err)
	}
}

func TestCancel_ServerErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(server.URL, "")
	if err := client.Cancel(context.Background(), "reminder-abc"); err == nil {
		t.Fatal("expected error on 500")
	}
}
