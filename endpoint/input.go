package endpoint

// Input carries the caller-settable endpoint fields for Create and Update.
type Input struct {
	// URL receives the webhook POSTs. Required.
	URL string `json:"url"`

	// Description is free-form operator text.
	Description string `json:"description"`

	// Secret is the plaintext signing secret. Leave empty on create to have
	// one generated.
	Secret string `json:"secret"`

	// EventTypes are the subscription patterns, glob per segment
	// ("invoice.*", "*").
	EventTypes []string `json:"event_types"`

	// Headers are extra HTTP headers added to every delivery.
	Headers map[string]string `json:"headers,omitempty"`

	// RateLimit caps deliveries per second to this endpoint. 0 disables
	// the cap.
	RateLimit int `json:"rate_limit"`

	// Metadata is opaque user data stored with the endpoint.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ListOpts filters and paginates endpoint listings.
type ListOpts struct {
	Offset  int
	Limit   int
	Enabled *bool
}
