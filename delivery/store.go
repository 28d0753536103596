package delivery

import (
	"context"

	"github.com/xraph/courier/id"
)

// Store defines the persistence contract for webhook deliveries.
type Store interface {
	// Enqueue creates a pending delivery.
	Enqueue(ctx context.Context, d *Delivery) error

	// EnqueueBatch creates multiple deliveries atomically (fan-out).
	EnqueueBatch(ctx context.Context, ds []*Delivery) error

	// Dequeue claims deliveries that are due for an attempt: pending
	// deliveries, and failed deliveries whose NextAttemptAt has passed.
	// Implementations must ensure no double-delivery (e.g. SKIP LOCKED).
	Dequeue(ctx context.Context, limit int) ([]*Delivery, error)

	// UpdateDelivery persists the mutable attempt fields of a delivery
	// (status, attempts, response, error, timestamps).
	UpdateDelivery(ctx context.Context, d *Delivery) error

	// GetDelivery returns a delivery by ID.
	GetDelivery(ctx context.Context, delID id.ID) (*Delivery, error)

	// ListByEndpoint returns delivery history for an endpoint.
	ListByEndpoint(ctx context.Context, epID id.ID, opts ListOpts) ([]*Delivery, error)

	// CountPending returns the number of deliveries awaiting an attempt.
	CountPending(ctx context.Context) (int64, error)
}
