package publisher

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tasklife/project/internal/contracts"
)

func TestHandleTaskEvent_QueuesBothTopics(t *testing.T) {
	var mu sync.Mutex
	var subjects []string
	disp := NewDispatcher(func(subject string, _ []byte) error {
		mu.Lock()
		subjects = append(subjects, subject)
		mu.Unlock()
		return nil
	}, 1, 16)
	h := NewHandler(NewService(disp))

	body := `{"event_type":"created","task":{"id":"task-1","user_id":"user-1","title":"write report","priority":"high"}}`
	req := httptest.NewRequest(http.MethodPost, "/internal/events/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	disp.Stop()

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(subjects) != 2 {
		t.Fatalf("expected 2 published messages, got %v", subjects)
	}
	want := map[string]bool{
		"todo.task-events.532.user.user-1":  true,
		"todo.task-updates.532.user.user-1": true,
	}
	for _, s := range subjects {
		if !want[s] {
			t.Fatalf("unexpected subject %q", s)
		}
	}
}

func TestHandleTaskEvent_RejectsBadInput(t *testing.T) {
	disp := NewDispatcher(func(string, []byte) error { return nil }, 1, 16)
	defer disp.Stop()
	h := NewHandler(NewService(disp))

	cases := []struct {
		name string
		body string
	}{
		{"malformed json", `{"event_type":`},
		{"unknown event type", `{"event_type":"archived","task":{"id":"t","user_id":"u","title":"x"}}`},
		{"missing user", `{"event_type":"created","task":{"id":"t","title":"x"}}`},
		{"missing title", `{"event_type":"created","task":{"id":"t","user_id":"u"}}`},
		{"recurring without rule", `{"event_type":"created","task":{"id":"t","user_id":"u","title":"x","is_recurring":true}}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/internal/events/tasks", strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			h.Router().ServeHTTP(rec, req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestHandleTaskEvent_ValidSnapshotRoundTrips(t *testing.T) {
	var mu sync.Mutex
	var payloads [][]byte
	disp := NewDispatcher(func(subject string, payload []byte) error {
		if strings.Contains(subject, "task-events") {
			mu.Lock()
			payloads = append(payloads, payload)
			mu.Unlock()
		}
		return nil
	}, 1, 16)
	h := NewHandler(NewService(disp))

	body := `{"event_type":"completed","task":{"id":"task-1","user_id":"user-1","title":"write report","completed":true,"is_recurring":true,"recurrence_rule":"daily","tags":["work"]}}`
	req := httptest.NewRequest(http.MethodPost, "/internal/events/tasks", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)
	disp.Stop()

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if len(payloads) != 1 {
		t.Fatalf("expected 1 task-events message, got %d", len(payloads))
	}
	env, snap, err := contracts.DecodeTaskEvent(payloads[0])
	if err != nil {
		t.Fatalf("published event must decode: %v", err)
	}
	if env.EventType != contracts.TaskCompleted || snap.RecurrenceRule != contracts.RecurrenceDaily {
		t.Fatalf("unexpected decoded event: %+v %+v", env, snap)
	}
}
