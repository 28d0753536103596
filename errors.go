package courier

import "errors"

// Sentinel errors returned by Courier operations.
var (
	// ErrNoStore is returned when a Courier is created without a store.
	ErrNoStore = errors.New("courier: store is required")

	// ErrEndpointNotFound is returned when an endpoint cannot be found.
	ErrEndpointNotFound = errors.New("courier: endpoint not found")

	// ErrEventTypeNotFound is returned when an event type is not registered in the catalog.
	ErrEventTypeNotFound = errors.New("courier: event type not found")

	// ErrEventTypeDeprecated is returned when publishing an event with a deprecated type.
	ErrEventTypeDeprecated = errors.New("courier: event type is deprecated")

	// ErrPayloadValidationFailed is returned when event data fails JSON Schema validation.
	ErrPayloadValidationFailed = errors.New("courier: payload validation failed")

	// ErrStoreClosed is returned when a store operation is attempted after the store is closed.
	ErrStoreClosed = errors.New("courier: store is closed")

	// ErrMigrationFailed is returned when a database migration fails.
	ErrMigrationFailed = errors.New("courier: migration failed")

	// ErrDLQNotFound is returned when a DLQ entry cannot be found.
	ErrDLQNotFound = errors.New("courier: dlq entry not found")

	// ErrDeliveryNotFound is returned when a delivery cannot be found.
	ErrDeliveryNotFound = errors.New("courier: delivery not found")
)
