// Package endpoint manages webhook delivery targets: their URLs, signing
// secrets, and event type subscriptions.
package endpoint

import (
	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// Endpoint represents a registered webhook delivery target.
type Endpoint struct {
	entity.Entity

	// ID is the unique TypeID for this endpoint.
	ID id.ID `json:"id"`

	// URL is the webhook delivery URL.
	URL string `json:"url"`

	// Description is a human-readable description of this endpoint.
	Description string `json:"description"`

	// Secret is the HMAC signing secret. When a cipher is configured this is
	// ciphertext at rest; plaintext exists only in memory after decryption.
	// Never serialized to JSON.
	Secret string `json:"-"`

	// EventTypes are glob patterns for event type subscriptions.
	EventTypes []string `json:"event_types"`

	// Headers are custom HTTP headers sent with each delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// Enabled indicates whether the endpoint is active for deliveries.
	Enabled bool `json:"enabled"`

	// RateLimit is the maximum deliveries per second. 0 means unlimited.
	RateLimit int `json:"rate_limit"`

	// Metadata holds user-defined key-value pairs.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Subscribed reports whether this endpoint subscribes to the given event type.
func (ep *Endpoint) Subscribed(eventType string) bool {
	return catalog.MatchAny(ep.EventTypes, eventType)
}
