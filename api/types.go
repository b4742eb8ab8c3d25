package api

import (
	"context"

	"pulseboard/domain"
	"pulseboard/suprsend"
)

// Hub abstracts the notification platform for handlers.
type Hub interface {
	TriggerWorkflow(ctx context.Context, p suprsend.TriggerPayload) (string, error)
	UpsertUser(ctx context.Context, distinctID string, profile suprsend.UserProfile) error
	FetchPreferences(ctx context.Context, distinctID string) (domain.PreferenceDocument, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents re-sending of duplicate workflow triggers.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when the hub call fails.
	Remove(ctx context.Context, userID, key string) error
}

// errorResponse is the failure envelope shared by all endpoints.
type errorResponse struct {
	Error string `json:"error"`
}
