// Package store defines the composite Store interface for all Courier persistence.
//
// Each subsystem defines its own store interface and the aggregate Store
// composes them all, so drivers implement one interface and callers depend
// only on the slice they need.
package store

import (
	"context"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/endpoint"
)

// Store is the aggregate persistence interface.
type Store interface {
	endpoint.Store
	delivery.Store
	dlq.Store

	// Migrate runs all schema migrations.
	Migrate(ctx context.Context) error

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Close closes the store connection.
	Close() error
}
