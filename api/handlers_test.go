package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"pulseboard/domain"
	"pulseboard/suprsend"
)

type mockHub struct {
	triggerErr error
	upsertErr  error
	prefs      domain.PreferenceDocument
	prefsErr   error
	messageID  string

	triggers []suprsend.TriggerPayload
	upserts  []string
}

func (m *mockHub) TriggerWorkflow(_ context.Context, p suprsend.TriggerPayload) (string, error) {
	m.triggers = append(m.triggers, p)
	if m.triggerErr != nil {
		return "", m.triggerErr
	}
	return m.messageID, nil
}

func (m *mockHub) UpsertUser(_ context.Context, distinctID string, _ suprsend.UserProfile) error {
	m.upserts = append(m.upserts, distinctID)
	return m.upsertErr
}

func (m *mockHub) FetchPreferences(context.Context, string) (domain.PreferenceDocument, error) {
	return m.prefs, m.prefsErr
}

type mockAuth struct {
	userID string
	err    error
}

func (m mockAuth) UserIDFromAuthHeader(string) (string, error) {
	return m.userID, m.err
}

type mockIssuer struct {
	token string
	err   error
}

func (m mockIssuer) IssueSession(string) (string, error) {
	return m.token, m.err
}

type recordingDeduper struct {
	added   map[string]bool
	removed []string
	addErr  error
}

func newRecordingDeduper() *recordingDeduper {
	return &recordingDeduper{added: map[string]bool{}}
}

func (d *recordingDeduper) Add(_ context.Context, userID, key string) (bool, error) {
	if d.addErr != nil {
		return false, d.addErr
	}
	k := userID + ":" + key
	if d.added[k] {
		return false, nil
	}
	d.added[k] = true
	return true, nil
}

func (d *recordingDeduper) Remove(_ context.Context, userID, key string) error {
	d.removed = append(d.removed, userID+":"+key)
	delete(d.added, userID+":"+key)
	return nil
}

func newTestOTPStore(t *testing.T) *OTPStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewOTPStore(client, time.Minute)
}

type testServer struct {
	e       *echo.Echo
	hub     *mockHub
	deduper *recordingDeduper
	otps    *OTPStore
}

func newTestServer(t *testing.T, hub *mockHub, auth Authenticator, issuer SessionIssuer) *testServer {
	t.Helper()
	e := echo.New()
	deduper := newRecordingDeduper()
	otps := newTestOTPStore(t)
	Register(e, hub, auth, issuer, deduper, otps, "", log.New())
	return &testServer{e: e, hub: hub, deduper: deduper, otps: otps}
}

func (s *testServer) request(method, path, body, authHeader string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if authHeader != "" {
		req.Header.Set(echo.HeaderAuthorization, authHeader)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

const validTriggerBody = `{"workflowSlug":"task_created","userEmail":"jane@example.com","distinctId":"jane@example.com","userName":"Jane","eventData":{"task_title":"Write docs"}}`

func TestTriggerSuccess(t *testing.T) {
	hub := &mockHub{messageID: "msg-1"}
	s := newTestServer(t, hub, mockAuth{userID: "jane@example.com"}, mockIssuer{})

	rec := s.request(http.MethodPost, "/api/workflow/trigger", validTriggerBody, "Bearer token")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}

	var resp domain.TriggerResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.MessageID != "msg-1" {
		t.Fatalf("unexpected response: %#v", resp)
	}

	if len(hub.triggers) != 1 {
		t.Fatalf("expected 1 hub call, got %d", len(hub.triggers))
	}
	p := hub.triggers[0]
	if p.Workflow != "task_created" {
		t.Fatalf("unexpected workflow %q", p.Workflow)
	}
	if p.IdempotencyKey == "" {
		t.Fatal("expected a generated idempotency key")
	}
	if len(p.Recipients) != 1 || p.Recipients[0].DistinctID != "jane@example.com" {
		t.Fatalf("unexpected recipients: %#v", p.Recipients)
	}
	if p.Recipients[0].Name != "Jane" {
		t.Fatalf("unexpected recipient name %q", p.Recipients[0].Name)
	}
	if p.Data["task_title"] != "Write docs" {
		t.Fatalf("event data dropped: %#v", p.Data)
	}
}

func TestTriggerUnauthorized(t *testing.T) {
	hub := &mockHub{}
	s := newTestServer(t, hub, mockAuth{err: errors.New("bad token")}, mockIssuer{})

	rec := s.request(http.MethodPost, "/api/workflow/trigger", validTriggerBody, "Bearer nope")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if len(hub.triggers) != 0 {
		t.Fatal("hub must not be called without auth")
	}
}

func TestTriggerInvalidBody(t *testing.T) {
	s := newTestServer(t, &mockHub{}, mockAuth{userID: "u"}, mockIssuer{})

	rec := s.request(http.MethodPost, "/api/workflow/trigger", `{not json`, "Bearer t")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	rec = s.request(http.MethodPost, "/api/workflow/trigger", `{"workflowSlug":"w","unknown":true}`, "Bearer t")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown fields must be rejected, got %d", rec.Code)
	}
}

func TestTriggerMissingFields(t *testing.T) {
	s := newTestServer(t, &mockHub{}, mockAuth{userID: "u"}, mockIssuer{})

	rec := s.request(http.MethodPost, "/api/workflow/trigger", `{"workflowSlug":"task_created"}`, "Bearer t")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var resp errorResponse
	_ = sonic.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != "missing required fields" {
		t.Fatalf("unexpected error %q", resp.Error)
	}
}

func TestTriggerDuplicateShortCircuits(t *testing.T) {
	hub := &mockHub{messageID: "msg-1"}
	s := newTestServer(t, hub, mockAuth{userID: "jane@example.com"}, mockIssuer{})

	body := `{"workflowSlug":"task_created","userEmail":"jane@example.com","distinctId":"jane@example.com","idempotencyKey":"fixed-key","eventData":{}}`
	rec := s.request(http.MethodPost, "/api/workflow/trigger", body, "Bearer t")
	if rec.Code != http.StatusOK {
		t.Fatalf("first call failed: %d", rec.Code)
	}
	rec = s.request(http.MethodPost, "/api/workflow/trigger", body, "Bearer t")
	if rec.Code != http.StatusOK {
		t.Fatalf("duplicate must answer 200, got %d", rec.Code)
	}

	if len(hub.triggers) != 1 {
		t.Fatalf("duplicate must not reach the hub, got %d calls", len(hub.triggers))
	}
	var resp domain.TriggerResponse
	_ = sonic.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success || resp.MessageID != "" {
		t.Fatalf("unexpected duplicate response: %#v", resp)
	}
}

func TestTriggerDedupeFailsOpen(t *testing.T) {
	hub := &mockHub{messageID: "msg-1"}
	s := newTestServer(t, hub, mockAuth{userID: "u"}, mockIssuer{})
	s.deduper.addErr = errors.New("redis down")

	rec := s.request(http.MethodPost, "/api/workflow/trigger", validTriggerBody, "Bearer t")
	if rec.Code != http.StatusOK {
		t.Fatalf("dedupe outage must not block triggers, got %d", rec.Code)
	}
	if len(hub.triggers) != 1 {
		t.Fatalf("expected the hub call, got %d", len(hub.triggers))
	}
}

func TestTriggerHubFailureRollsBackDedupe(t *testing.T) {
	hub := &mockHub{triggerErr: &suprsend.APIError{StatusCode: http.StatusTooManyRequests, Message: "rate limited"}}
	s := newTestServer(t, hub, mockAuth{userID: "jane@example.com"}, mockIssuer{})

	body := `{"workflowSlug":"task_created","userEmail":"jane@example.com","distinctId":"jane@example.com","idempotencyKey":"fixed-key","eventData":{}}`
	rec := s.request(http.MethodPost, "/api/workflow/trigger", body, "Bearer t")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("hub status must pass through, got %d", rec.Code)
	}
	var resp errorResponse
	_ = sonic.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Error != "rate limited" {
		t.Fatalf("unexpected error %q", resp.Error)
	}

	if len(s.deduper.removed) != 1 || s.deduper.removed[0] != "jane@example.com:fixed-key" {
		t.Fatalf("dedupe entry must be rolled back, got %#v", s.deduper.removed)
	}
}

func TestTriggerHubFailureWithoutStatus(t *testing.T) {
	hub := &mockHub{triggerErr: errors.New("connection refused")}
	s := newTestServer(t, hub, mockAuth{userID: "u"}, mockIssuer{})

	rec := s.request(http.MethodPost, "/api/workflow/trigger", validTriggerBody, "Bearer t")
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("transport failures map to 502, got %d", rec.Code)
	}
}

func TestOTPSendAndVerifyFlow(t *testing.T) {
	hub := &mockHub{messageID: "msg-otp"}
	s := newTestServer(t, hub, mockAuth{userID: "u"}, mockIssuer{token: "session-token"})

	rec := s.request(http.MethodPost, "/api/otp/send", `{"email":"jane@example.com","userName":"Jane"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("send failed: %d %s", rec.Code, rec.Body.String())
	}
	if len(hub.triggers) != 1 {
		t.Fatalf("expected otp trigger, got %d", len(hub.triggers))
	}
	p := hub.triggers[0]
	if p.Workflow != DefaultOTPWorkflow {
		t.Fatalf("unexpected workflow %q", p.Workflow)
	}
	code, ok := p.Data["code"].(string)
	if !ok || len(code) != 6 {
		t.Fatalf("expected a 6-digit code in the payload, got %#v", p.Data["code"])
	}
	if p.Data["otp"] != code {
		t.Fatalf("otp alias mismatch: %#v", p.Data)
	}

	rec = s.request(http.MethodPost, "/api/otp/verify", `{"email":"jane@example.com","code":"`+code+`"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("verify failed: %d %s", rec.Code, rec.Body.String())
	}
	var resp otpVerifyResponse
	if err := sonic.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Token != "session-token" {
		t.Fatalf("unexpected verify response: %#v", resp)
	}

	// The code is consumed; a replay must fail.
	rec = s.request(http.MethodPost, "/api/otp/verify", `{"email":"jane@example.com","code":"`+code+`"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed code must be rejected, got %d", rec.Code)
	}
}

func TestOTPSendRejectsBadEmail(t *testing.T) {
	hub := &mockHub{}
	s := newTestServer(t, hub, mockAuth{}, mockIssuer{})

	rec := s.request(http.MethodPost, "/api/otp/send", `{"email":"not-an-email"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if len(hub.triggers) != 0 {
		t.Fatal("no workflow may fire for an invalid email")
	}
}

func TestOTPVerifyWrongCode(t *testing.T) {
	s := newTestServer(t, &mockHub{messageID: "m"}, mockAuth{}, mockIssuer{token: "tok"})

	rec := s.request(http.MethodPost, "/api/otp/send", `{"email":"jane@example.com"}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("send failed: %d", rec.Code)
	}
	rec = s.request(http.MethodPost, "/api/otp/verify", `{"email":"jane@example.com","code":"000000"}`, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong code must be rejected, got %d", rec.Code)
	}
}

func TestUserUpsert(t *testing.T) {
	hub := &mockHub{}
	s := newTestServer(t, hub, mockAuth{}, mockIssuer{})

	rec := s.request(http.MethodPost, "/api/user/upsert", `{"distinctId":"jane@example.com","userData":{"name":"Jane","$email":["jane@example.com"]}}`, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("upsert failed: %d %s", rec.Code, rec.Body.String())
	}
	if len(hub.upserts) != 1 || hub.upserts[0] != "jane@example.com" {
		t.Fatalf("unexpected upserts: %#v", hub.upserts)
	}

	rec = s.request(http.MethodPost, "/api/user/upsert", `{"distinctId":"jane@example.com"}`, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing email must be rejected, got %d", rec.Code)
	}
}

func TestGetPreferences(t *testing.T) {
	hub := &mockHub{prefs: domain.PreferenceDocument{Sections: []domain.PreferenceSection{{Name: "Product"}}}}
	s := newTestServer(t, hub, mockAuth{userID: "jane@example.com"}, mockIssuer{})

	rec := s.request(http.MethodGet, "/api/preferences", "", "Bearer t")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	var doc domain.PreferenceDocument
	if err := sonic.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Sections) != 1 || doc.Sections[0].Name != "Product" {
		t.Fatalf("unexpected document: %#v", doc)
	}
}

func TestGetPreferencesRequiresAuth(t *testing.T) {
	s := newTestServer(t, &mockHub{}, mockAuth{err: errors.New("bad token")}, mockIssuer{})

	rec := s.request(http.MethodGet, "/api/preferences", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &mockHub{}, mockAuth{}, mockIssuer{})
	rec := s.request(http.MethodGet, "/healthz", "", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}
}
