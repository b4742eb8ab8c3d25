package domain

// TriggerRequest is the wire shape of POST /api/workflow/trigger, shared by
// the client-side dispatcher and the backend handler.
type TriggerRequest struct {
	WorkflowSlug   string         `json:"workflowSlug"`
	UserEmail      string         `json:"userEmail"`
	DistinctID     string         `json:"distinctId"`
	UserName       string         `json:"userName,omitempty"`
	IdempotencyKey string         `json:"idempotencyKey,omitempty"`
	EventData      map[string]any `json:"eventData,omitempty"`
}

// TriggerResponse is the success envelope of the trigger endpoint. Failures
// use the same shape with Error set and Success false.
type TriggerResponse struct {
	Success   bool   `json:"success"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}
