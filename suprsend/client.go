// Package suprsend is a minimal REST client for the SuprSend hub: workflow
// triggers, subscriber upserts and preference reads.
package suprsend

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
	log "github.com/sirupsen/logrus"

	"pulseboard/domain"
)

const (
	// DefaultBaseURL is the public hub endpoint.
	DefaultBaseURL = "https://hub.suprsend.com"

	responseMaxSize = 256 * 1024
)

// Recipient addresses a workflow run. Field names follow the hub's wire
// contract ($-prefixed keys are reserved subscriber properties).
type Recipient struct {
	DistinctID  string   `json:"distinct_id"`
	Email       []string `json:"$email,omitempty"`
	Name        string   `json:"name,omitempty"`
	Channels    []string `json:"$channels,omitempty"`
	SkipCreate  bool     `json:"$skip_create"`
	IsTransient bool     `json:"is_transient,omitempty"`
}

// Actor identifies who performed the action behind a trigger.
type Actor struct {
	DistinctID string `json:"distinct_id"`
	Name       string `json:"name,omitempty"`
	SkipCreate bool   `json:"$skip_create"`
}

// TriggerPayload is the body of POST /trigger/.
type TriggerPayload struct {
	Workflow       string         `json:"workflow"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	Actor          *Actor         `json:"actor,omitempty"`
	Recipients     []Recipient    `json:"recipients"`
	Data           map[string]any `json:"data,omitempty"`
}

// UserProfile carries the subscriber properties accepted by the upsert call.
type UserProfile struct {
	Name  string   `json:"name,omitempty"`
	Email []string `json:"$email,omitempty"`
}

// Client talks to one hub workspace.
type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
	logger  *log.Logger
}

// NewClient creates a hub client. An empty baseURL selects the public hub.
func NewClient(baseURL, apiKey string, logger *log.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 15 * time.Second},
		logger:  logger,
	}
}

// TriggerWorkflow starts a workflow run and returns the hub's message id.
func (c *Client) TriggerWorkflow(ctx context.Context, p TriggerPayload) (string, error) {
	var result struct {
		MessageID string `json:"message_id"`
	}
	if err := c.do(ctx, http.MethodPost, "/trigger/", p, &result); err != nil {
		return "", err
	}
	return result.MessageID, nil
}

// UpsertUser creates or updates a subscriber.
func (c *Client) UpsertUser(ctx context.Context, distinctID string, profile UserProfile) error {
	path := "/v1/user/" + url.PathEscape(distinctID) + "/"
	return c.do(ctx, http.MethodPost, path, profile, nil)
}

// FetchPreferences reads the subscriber's full preference document.
func (c *Client) FetchPreferences(ctx context.Context, distinctID string) (domain.PreferenceDocument, error) {
	path := "/v1/subscriber/" + url.PathEscape(distinctID) + "/full_preference/"
	var doc domain.PreferenceDocument
	if err := c.do(ctx, http.MethodGet, path, nil, &doc); err != nil {
		return domain.PreferenceDocument{}, err
	}
	return doc, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(io.LimitReader(resp.Body, responseMaxSize))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data, resp.StatusCode)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	return sonic.Unmarshal(data, out)
}

// APIError is a non-2xx answer from the hub.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("suprsend: %s (status %d)", e.Message, e.StatusCode)
}

func errorMessage(data []byte, status int) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := sonic.Unmarshal(data, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return fmt.Sprintf("request failed: %d", status)
}
