// Package delivery implements reliable webhook delivery: a per-attempt
// executor with retry backoff, circuit breaking, secret caching, and request
// signing, plus the worker-pool engine that schedules attempts.
package delivery

import (
	"encoding/json"
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// Status represents the current status of a delivery.
type Status string

const (
	// StatusPending indicates the delivery is awaiting its first attempt.
	StatusPending Status = "pending"

	// StatusDelivering indicates an attempt is in flight.
	StatusDelivering Status = "delivering"

	// StatusSucceeded indicates the delivery completed with a 2xx response.
	// Succeeded is terminal: the record is never mutated afterwards.
	StatusSucceeded Status = "succeeded"

	// StatusFailed indicates the most recent attempt failed. With a non-nil
	// NextAttemptAt the delivery will be retried; with a nil NextAttemptAt it
	// is terminal (retries exhausted or a non-retryable error).
	StatusFailed Status = "failed"
)

// Truncation bounds for stored response and error text, so misbehaving or
// verbose endpoints cannot grow storage without bound.
const (
	// MaxResponseBodyBytes caps the stored response body.
	MaxResponseBodyBytes = 10000

	// MaxErrorMessageBytes caps the stored error message.
	MaxErrorMessageBytes = 1000
)

// Delivery represents one queued event notification bound for one endpoint,
// tracked through retries until terminal success or failure.
type Delivery struct {
	entity.Entity

	// ID is the unique TypeID for this delivery.
	ID id.ID `json:"id"`

	// EndpointID references the target endpoint.
	EndpointID id.ID `json:"endpoint_id"`

	// EventType is the dot-separated event type name (e.g. "invoice.created").
	EventType string `json:"event_type"`

	// ResourceID identifies the resource the event concerns.
	ResourceID string `json:"resource_id"`

	// Payload is the opaque JSON body delivered to the endpoint. The exact
	// bytes sent are the exact bytes signed.
	Payload json.RawMessage `json:"payload"`

	// Attempts is the number of delivery attempts made so far.
	// Never exceeds the executor's maxRetries + 1.
	Attempts int `json:"attempts"`

	// Status is the current delivery status.
	Status Status `json:"status"`

	// ResponseCode is the HTTP status code from the most recent attempt.
	ResponseCode int `json:"response_code,omitempty"`

	// ResponseBody is the response body from the most recent attempt,
	// truncated to MaxResponseBodyBytes.
	ResponseBody string `json:"response_body,omitempty"`

	// ErrorMessage describes the most recent failure, truncated to
	// MaxErrorMessageBytes.
	ErrorMessage string `json:"error_message,omitempty"`

	// LastAttemptAt is when the most recent attempt started.
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`

	// SucceededAt is when the delivery succeeded.
	SucceededAt *time.Time `json:"succeeded_at,omitempty"`

	// NextAttemptAt is when the scheduler should re-present this delivery.
	// Nil means no further retry is scheduled.
	NextAttemptAt *time.Time `json:"next_attempt_at,omitempty"`
}

// Terminal reports whether the delivery has reached a final state: succeeded,
// or failed with no retry scheduled.
func (d *Delivery) Terminal() bool {
	switch d.Status {
	case StatusSucceeded:
		return true
	case StatusFailed:
		return d.NextAttemptAt == nil
	default:
		return false
	}
}

// Truncate clips s to at most maxBytes bytes.
func Truncate(s string, maxBytes int) string {
	if len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes]
}

// ListOpts configures filtering and pagination for delivery listing.
type ListOpts struct {
	Offset int
	Limit  int
	Status *Status
}
