package notify

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"pulseboard/domain"
)

var testActor = domain.Session{
	DistinctID: "jane@example.com",
	Name:       "Jane",
	Email:      "jane@example.com",
}

func captureServer(t *testing.T, status int, reply string) (*httptest.Server, *[]domain.TriggerRequest) {
	t.Helper()
	var captured []domain.TriggerRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/workflow/trigger" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		var req domain.TriggerRequest
		if err := sonic.Unmarshal(body, &req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		captured = append(captured, req)
		w.WriteHeader(status)
		_, _ = io.WriteString(w, reply)
	}))
	t.Cleanup(srv.Close)
	return srv, &captured
}

func newTestDispatcher(baseURL string, gate *Gate) *Dispatcher {
	return NewDispatcher(Config{
		BaseURL: baseURL,
		AppURL:  "https://board.example.com",
		Logger:  log.New(),
	}, testActor, gate)
}

func TestTaskCreatedPayload(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK, `{"success":true,"messageId":"m1"}`)
	d := newTestDispatcher(srv.URL, nil)

	task := domain.Task{
		ID:          "t1",
		Title:       "Write docs",
		Description: "api section",
		Priority:    domain.PriorityHigh,
		DueDate:     "2026-09-30",
		Status:      domain.StatusTodo,
	}
	if err := d.TaskCreated(context.Background(), task); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(*captured) != 1 {
		t.Fatalf("expected 1 request, got %d", len(*captured))
	}
	req := (*captured)[0]
	if req.WorkflowSlug != "task_created" {
		t.Fatalf("unexpected workflow %q", req.WorkflowSlug)
	}
	if req.DistinctID != testActor.DistinctID || req.UserEmail != testActor.Email {
		t.Fatalf("actor identity missing: %#v", req)
	}
	if req.IdempotencyKey == "" {
		t.Fatal("expected a generated idempotency key")
	}

	data := req.EventData
	for _, key := range []string{"task_title", "task_id", "task_priority", "task_description", "task_due_date", "task_status"} {
		if _, ok := data[key]; !ok {
			t.Fatalf("event data missing %q: %#v", key, data)
		}
	}
	if data["task_title"] != "Write docs" || data["task_status"] != "todo" {
		t.Fatalf("unexpected event data: %#v", data)
	}
	if _, err := time.Parse(time.RFC3339, data["timestamp"].(string)); err != nil {
		t.Fatalf("timestamp not RFC3339: %v", err)
	}
	if url, _ := data["task_url"].(string); !strings.HasPrefix(url, "https://board.example.com/tasks/") {
		t.Fatalf("unexpected task url: %q", url)
	}
	if url, _ := data["preferences_url"].(string); !strings.Contains(url, "/preferences") {
		t.Fatalf("unexpected preferences url: %q", url)
	}
}

func TestTaskStatusChangedCarriesTransition(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK, `{"success":true}`)
	d := newTestDispatcher(srv.URL, nil)

	task := domain.Task{ID: "t1", Title: "Move", Status: domain.StatusInReview}
	if err := d.TaskStatusChanged(context.Background(), task, domain.StatusInProgress, domain.StatusInReview); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	req := (*captured)[0]
	if req.WorkflowSlug != "task_status_changed" {
		t.Fatalf("unexpected workflow %q", req.WorkflowSlug)
	}
	if req.EventData["old_status"] != "in-progress" || req.EventData["new_status"] != "in-review" {
		t.Fatalf("transition endpoints missing: %#v", req.EventData)
	}
}

func TestTaskDeletedUsesSnapshot(t *testing.T) {
	srv, captured := captureServer(t, http.StatusOK, `{"success":true}`)
	d := newTestDispatcher(srv.URL, nil)

	task := domain.Task{ID: "t9", Title: "Gone", Priority: domain.PriorityLow, Status: domain.StatusCompleted}
	if err := d.TaskDeleted(context.Background(), task); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	req := (*captured)[0]
	if req.WorkflowSlug != "task_deleted" {
		t.Fatalf("unexpected workflow %q", req.WorkflowSlug)
	}
	if req.EventData["task_title"] != "Gone" || req.EventData["task_status"] != "completed" {
		t.Fatalf("snapshot not carried: %#v", req.EventData)
	}
}

func TestGateSkipMakesNoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	gate := NewGate(stubFetcher{doc: domain.PreferenceDocument{Sections: []domain.PreferenceSection{{
		Subcategories: []domain.PreferenceSubcategory{{
			Category:   "task-updates",
			Preference: domain.OptOut,
		}},
	}}}}, log.New())
	d := newTestDispatcher(srv.URL, gate)

	if err := d.TaskCreated(context.Background(), domain.Task{ID: "t1", Title: "quiet"}); err != nil {
		t.Fatalf("a gated skip is not an error: %v", err)
	}
	if hits.Load() != 0 {
		t.Fatalf("expected no trigger request, got %d", hits.Load())
	}
}

func TestDispatchSurfacesBackendError(t *testing.T) {
	srv, _ := captureServer(t, http.StatusBadGateway, `{"error":"hub unavailable"}`)
	d := newTestDispatcher(srv.URL, nil)

	err := d.TaskCreated(context.Background(), domain.Task{ID: "t1", Title: "x"})
	if err == nil || !strings.Contains(err.Error(), "hub unavailable") {
		t.Fatalf("expected backend error message, got %v", err)
	}
}

func TestDispatchSendsBearerToken(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	d := NewDispatcher(Config{BaseURL: srv.URL, Token: "session-token", Logger: log.New()}, testActor, nil)
	if err := d.TaskCreated(context.Background(), domain.Task{ID: "t1", Title: "x"}); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if got != "Bearer session-token" {
		t.Fatalf("unexpected Authorization header %q", got)
	}
}

func TestSlugDefaults(t *testing.T) {
	s := Slugs{TaskCreated: "custom_created"}.withDefaults()
	if s.TaskCreated != "custom_created" {
		t.Fatalf("explicit slug overwritten: %q", s.TaskCreated)
	}
	if s.TaskStatusChanged != "task_status_changed" || s.TaskDeleted != "task_deleted" {
		t.Fatalf("defaults not applied: %#v", s)
	}
}
