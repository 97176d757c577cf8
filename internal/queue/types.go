package queue

import (
	"errors"
	"time"
)

// Message is a webhook delivery persisted in the queue. Payload is the raw
// request body as received; it is never rewritten after enqueue.
type Message struct {
	ID            string
	DeliveryID    string
	EventType     string
	Payload       []byte
	ReceivedAt    time.Time
	DeliveryCount int
}

// DeadLetter is a message that exhausted its deliveries or failed
// permanently, kept for operator inspection and manual requeue.
type DeadLetter struct {
	ID             string
	DeliveryID     string
	EventType      string
	Payload        []byte
	ReceivedAt     time.Time
	FailureReason  string
	Attempts       int
	DeadLetteredAt time.Time
}

// Stats is a point-in-time summary of queue depth for the operator API.
type Stats struct {
	Ready      int `json:"ready"`
	InFlight   int `json:"in_flight"`
	DeadLetter int `json:"dead_letter"`
}

var ErrMessageNotFound = errors.New("message not found")
