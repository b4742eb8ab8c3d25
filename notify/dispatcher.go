package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"pulseboard/domain"
)

const triggerResponseMaxSize = 64 * 1024

// Slugs names the workflow triggered for each task lifecycle event.
type Slugs struct {
	TaskCreated       string
	TaskStatusChanged string
	TaskDeleted       string
}

// DefaultSlugs returns the fixed fallback workflow identifiers.
func DefaultSlugs() Slugs {
	return Slugs{
		TaskCreated:       "task_created",
		TaskStatusChanged: "task_status_changed",
		TaskDeleted:       "task_deleted",
	}
}

func (s Slugs) withDefaults() Slugs {
	d := DefaultSlugs()
	if s.TaskCreated == "" {
		s.TaskCreated = d.TaskCreated
	}
	if s.TaskStatusChanged == "" {
		s.TaskStatusChanged = d.TaskStatusChanged
	}
	if s.TaskDeleted == "" {
		s.TaskDeleted = d.TaskDeleted
	}
	return s
}

// Config carries the dispatcher wiring.
type Config struct {
	// BaseURL is the backend API root, e.g. http://localhost:8080.
	BaseURL string
	// AppURL is the board frontend root used for deep links. Defaults to
	// BaseURL when empty.
	AppURL     string
	Slugs      Slugs
	Token      string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// Dispatcher posts task lifecycle events to the backend trigger endpoint.
// It consults the preference gate first and stays silent when the user has
// opted out. Dispatch is best effort: the local task mutation it follows has
// already been committed and is never rolled back.
type Dispatcher struct {
	baseURL string
	appURL  string
	slugs   Slugs
	token   string
	httpc   *http.Client
	actor   domain.Session
	gate    *Gate
	logger  *log.Logger
}

func NewDispatcher(cfg Config, actor domain.Session, gate *Gate) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = log.StandardLogger()
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	appURL := cfg.AppURL
	if appURL == "" {
		appURL = cfg.BaseURL
	}
	return &Dispatcher{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		appURL:  strings.TrimRight(appURL, "/"),
		slugs:   cfg.Slugs.withDefaults(),
		token:   cfg.Token,
		httpc:   cfg.HTTPClient,
		actor:   actor,
		gate:    gate,
		logger:  cfg.Logger,
	}
}

// TaskCreated announces a freshly created task.
func (d *Dispatcher) TaskCreated(ctx context.Context, t domain.Task) error {
	return d.dispatch(ctx, d.slugs.TaskCreated, t.ID, map[string]any{
		"task_title":       t.Title,
		"task_id":          t.ID,
		"task_priority":    string(t.Priority),
		"task_description": t.Description,
		"task_due_date":    t.DueDate,
		"task_status":      string(t.Status),
	})
}

// TaskStatusChanged announces a column move with both endpoints of the
// transition.
func (d *Dispatcher) TaskStatusChanged(ctx context.Context, t domain.Task, oldStatus, newStatus domain.Status) error {
	return d.dispatch(ctx, d.slugs.TaskStatusChanged, t.ID, map[string]any{
		"task_title": t.Title,
		"task_id":    t.ID,
		"old_status": string(oldStatus),
		"new_status": string(newStatus),
	})
}

// TaskDeleted announces a deletion using the snapshot captured before the
// task was removed.
func (d *Dispatcher) TaskDeleted(ctx context.Context, t domain.Task) error {
	return d.dispatch(ctx, d.slugs.TaskDeleted, t.ID, map[string]any{
		"task_title":       t.Title,
		"task_id":          t.ID,
		"task_priority":    string(t.Priority),
		"task_description": t.Description,
		"task_due_date":    t.DueDate,
		"task_status":      string(t.Status),
	})
}

func (d *Dispatcher) dispatch(ctx context.Context, slug, taskID string, data map[string]any) error {
	if !d.gate.Allow(ctx, d.actor.DistinctID) {
		d.logger.WithFields(log.Fields{"workflow": slug, "user": d.actor.DistinctID}).Debug("notification skipped by preference gate")
		return nil
	}

	data["user_name"] = d.actor.DisplayName()
	data["user_email"] = d.actor.Email
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["task_url"] = d.taskURL(taskID)
	data["preferences_url"] = d.preferencesURL()

	req := domain.TriggerRequest{
		WorkflowSlug:   slug,
		UserEmail:      d.actor.Email,
		DistinctID:     d.actor.DistinctID,
		UserName:       d.actor.DisplayName(),
		IdempotencyKey: uuid.NewString(),
		EventData:      data,
	}
	body, err := sonic.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/api/workflow/trigger", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.httpc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("trigger %s: %w", slug, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, triggerResponseMaxSize))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var tr domain.TriggerResponse
		if err := sonic.Unmarshal(respBody, &tr); err == nil && tr.Error != "" {
			return fmt.Errorf("trigger %s: %s", slug, tr.Error)
		}
		return fmt.Errorf("trigger %s: unexpected status %d", slug, resp.StatusCode)
	}

	var tr domain.TriggerResponse
	if err := sonic.Unmarshal(respBody, &tr); err == nil && tr.MessageID != "" {
		d.logger.WithFields(log.Fields{"workflow": slug, "message_id": tr.MessageID}).Debug("workflow triggered")
	}
	return nil
}

func (d *Dispatcher) taskURL(taskID string) string {
	return d.appURL + "/tasks/" + url.PathEscape(taskID)
}

func (d *Dispatcher) preferencesURL() string {
	return d.appURL + "/preferences?user=" + url.QueryEscape(d.actor.DistinctID)
}
