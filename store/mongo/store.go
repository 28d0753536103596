// Package mongo implements the courier store on MongoDB.
//
// Deliveries are claimed with FindOneAndUpdate so a due delivery is only
// ever handed to one worker.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/courier/store"
)

// Collection name constants.
const (
	colEndpoints  = "courier_endpoints"
	colDeliveries = "courier_deliveries"
	colDLQ        = "courier_dlq"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB.
type Store struct {
	db *mongod.Database
}

// New creates a new MongoDB store.
func New(db *mongod.Database) *Store {
	return &Store{db: db}
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *mongod.Database { return s.db }

// Migrate creates indexes for all courier collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}

		_, err := s.db.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("courier/mongo: migrate %s indexes: %w", col, err)
		}
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close disconnects the underlying client.
func (s *Store) Close() error {
	return s.db.Client().Disconnect(context.Background())
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all courier collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colEndpoints: {
			{Keys: bson.D{{Key: "enabled", Value: 1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		colDeliveries: {
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "next_attempt_at", Value: 1}}},
			{Keys: bson.D{{Key: "endpoint_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		colDLQ: {
			{Keys: bson.D{{Key: "failed_at", Value: -1}}},
			{Keys: bson.D{{Key: "endpoint_id", Value: 1}}},
			{Keys: bson.D{{Key: "event_type", Value: 1}}},
		},
	}
}

// findOpts applies offset/limit pagination to find options.
func findOpts(sort bson.D, offset, limit int) *options.FindOptionsBuilder {
	o := options.Find().SetSort(sort)
	if offset > 0 {
		o = o.SetSkip(int64(offset))
	}
	if limit > 0 {
		o = o.SetLimit(int64(limit))
	}
	return o
}
