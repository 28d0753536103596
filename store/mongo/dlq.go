package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	courier "github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// Push moves a permanently failed delivery into the DLQ.
func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQEntryModel(entry)

	_, err := s.db.Collection(colDLQ).InsertOne(ctx, m)
	if err != nil {
		return fmt.Errorf("courier/mongo: push dlq: %w", err)
	}

	return nil
}

// ListDLQ returns DLQ entries, optionally filtered.
func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	filter := bson.M{}

	if opts.EndpointID != nil {
		filter["endpoint_id"] = opts.EndpointID.String()
	}

	if opts.EventType != "" {
		filter["event_type"] = opts.EventType
	}

	if opts.From != nil || opts.To != nil {
		dateFilter := bson.M{}
		if opts.From != nil {
			dateFilter["$gte"] = *opts.From
		}

		if opts.To != nil {
			dateFilter["$lte"] = *opts.To
		}

		filter["failed_at"] = dateFilter
	}

	cur, err := s.db.Collection(colDLQ).
		Find(ctx, filter, findOpts(bson.D{{Key: "failed_at", Value: -1}}, opts.Offset, opts.Limit))
	if err != nil {
		return nil, fmt.Errorf("courier/mongo: list dlq: %w", err)
	}

	var models []dlqEntryModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("courier/mongo: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(models))
	for i := range models {
		entry, err := fromDLQEntryModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, entry)
	}

	return result, nil
}

// GetDLQ returns a DLQ entry by ID.
func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var m dlqEntryModel

	err := s.db.Collection(colDLQ).
		FindOne(ctx, bson.M{"_id": dlqID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, courier.ErrDLQNotFound
		}

		return nil, fmt.Errorf("courier/mongo: get dlq: %w", err)
	}

	return fromDLQEntryModel(&m)
}

// replayEntry re-enqueues a fresh pending delivery built from a DLQ entry
// and marks the entry as replayed. The entry stays in the DLQ for audit.
func (s *Store) replayEntry(ctx context.Context, entry *dlq.Entry) error {
	t := now()

	d := &delivery.Delivery{
		Entity:     entity.New(),
		ID:         id.NewDeliveryID(),
		EndpointID: entry.EndpointID,
		EventType:  entry.EventType,
		ResourceID: entry.ResourceID,
		Payload:    entry.Payload,
		Status:     delivery.StatusPending,
	}

	if err := s.Enqueue(ctx, d); err != nil {
		return fmt.Errorf("courier/mongo: replay enqueue: %w", err)
	}

	_, err := s.db.Collection(colDLQ).UpdateOne(ctx,
		bson.M{"_id": entry.ID.String()},
		bson.M{"$set": bson.M{
			"replayed_at": t,
			"updated_at":  t,
		}})
	if err != nil {
		return fmt.Errorf("courier/mongo: replay mark dlq: %w", err)
	}

	return nil
}

// Replay marks a DLQ entry for redelivery and re-enqueues the delivery.
func (s *Store) Replay(ctx context.Context, dlqID id.ID) error {
	entry, err := s.GetDLQ(ctx, dlqID)
	if err != nil {
		return err
	}

	return s.replayEntry(ctx, entry)
}

// ReplayBulk replays all not-yet-replayed DLQ entries in a time window.
func (s *Store) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	cur, err := s.db.Collection(colDLQ).Find(ctx, bson.M{
		"failed_at": bson.M{
			"$gte": from,
			"$lte": to,
		},
		"replayed_at": nil,
	})
	if err != nil {
		return 0, fmt.Errorf("courier/mongo: replay bulk find: %w", err)
	}

	var models []dlqEntryModel
	if err := cur.All(ctx, &models); err != nil {
		return 0, fmt.Errorf("courier/mongo: replay bulk find: %w", err)
	}

	var count int64

	for i := range models {
		entry, err := fromDLQEntryModel(&models[i])
		if err != nil {
			return count, err
		}

		if err := s.replayEntry(ctx, entry); err != nil {
			return count, err
		}

		count++
	}

	return count, nil
}

// Purge deletes DLQ entries older than a threshold.
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.Collection(colDLQ).
		DeleteMany(ctx, bson.M{"failed_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, fmt.Errorf("courier/mongo: purge: %w", err)
	}

	return res.DeletedCount, nil
}

// CountDLQ returns the total number of DLQ entries.
func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.db.Collection(colDLQ).CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("courier/mongo: count dlq: %w", err)
	}

	return count, nil
}
