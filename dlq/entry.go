package dlq

import (
	"encoding/json"
	"time"

	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// Entry represents a permanently failed delivery in the dead letter queue.
type Entry struct {
	entity.Entity

	// ID is the unique TypeID for this DLQ entry.
	ID id.ID `json:"id"`

	// DeliveryID references the failed delivery.
	DeliveryID id.ID `json:"delivery_id"`

	// EndpointID references the target endpoint.
	EndpointID id.ID `json:"endpoint_id"`

	// EventType is the event type name for filtering.
	EventType string `json:"event_type"`

	// ResourceID identifies the domain object the event concerns.
	ResourceID string `json:"resource_id,omitempty"`

	// URL is the endpoint URL at the time of failure.
	URL string `json:"url"`

	// Payload is the JSON body that failed to deliver.
	Payload json.RawMessage `json:"payload"`

	// Error is the error message from the final attempt.
	Error string `json:"error"`

	// Attempts is the total number of attempts made.
	Attempts int `json:"attempts"`

	// LastStatusCode is the HTTP status code from the final attempt.
	LastStatusCode int `json:"last_status_code,omitempty"`

	// ReplayedAt is set when the entry has been replayed.
	ReplayedAt *time.Time `json:"replayed_at,omitempty"`

	// FailedAt is when the delivery permanently failed.
	FailedAt time.Time `json:"failed_at"`
}

// ListOpts configures filtering and pagination for DLQ listing.
type ListOpts struct {
	Offset     int
	Limit      int
	EndpointID *id.ID
	EventType  string
	From       *time.Time
	To         *time.Time
}
