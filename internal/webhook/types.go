package webhook

import (
	"context"
	"time"
)

// Enqueuer persists verified deliveries for asynchronous processing.
type Enqueuer interface {
	Enqueue(ctx context.Context, deliveryID, eventType string, payload []byte, receivedAt time.Time) (string, error)
}

// SecretSource resolves the webhook secret by reference name.
type SecretSource interface {
	Get(ctx context.Context, name string) (string, error)
}

// AcceptedResponse is returned for verified deliveries. Status is "queued"
// when the event was persisted and "ignored" when it was filtered out.
type AcceptedResponse struct {
	Status    string `json:"status"`
	MessageID string `json:"message_id,omitempty"`
}

// ErrorResponse is the JSON error body for rejected requests.
type ErrorResponse struct {
	Error string `json:"error"`
}
