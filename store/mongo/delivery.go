package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	courier "github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
)

// Enqueue creates a pending delivery.
func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)

	_, err := s.db.Collection(colDeliveries).InsertOne(ctx, m)
	if err != nil {
		return fmt.Errorf("courier/mongo: enqueue: %w", err)
	}

	return nil
}

// EnqueueBatch creates multiple deliveries (fan-out).
func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	docs := make([]any, len(ds))
	for i, d := range ds {
		docs[i] = toDeliveryModel(d)
	}

	_, err := s.db.Collection(colDeliveries).InsertMany(ctx, docs)
	if err != nil {
		return fmt.Errorf("courier/mongo: enqueue batch: %w", err)
	}

	return nil
}

// dueFilter matches deliveries ready for an attempt: pending with no
// scheduled time or a due one, and failed with a due retry scheduled.
func dueFilter(t any) bson.M {
	due := bson.M{"$lte": t}
	return bson.M{"$or": bson.A{
		bson.M{"status": string(delivery.StatusPending), "next_attempt_at": nil},
		bson.M{"status": string(delivery.StatusPending), "next_attempt_at": due},
		bson.M{"status": string(delivery.StatusFailed), "next_attempt_at": due},
	}}
}

// Dequeue claims due deliveries with FindOneAndUpdate so each document is
// only ever handed to one worker.
func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	result := make([]*delivery.Delivery, 0, limit)
	t := now()
	col := s.db.Collection(colDeliveries)

	for range limit {
		update := bson.M{
			"$set": bson.M{
				"status":     string(delivery.StatusDelivering),
				"updated_at": t,
			},
		}

		opts := options.FindOneAndUpdate().
			SetReturnDocument(options.After).
			SetSort(bson.D{{Key: "next_attempt_at", Value: 1}})

		var m deliveryModel

		err := col.FindOneAndUpdate(ctx, dueFilter(t), update, opts).Decode(&m)
		if err != nil {
			if isNoDocuments(err) {
				break
			}

			return nil, fmt.Errorf("courier/mongo: dequeue: %w", err)
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}

		result = append(result, d)
	}

	return result, nil
}

// UpdateDelivery persists the mutable attempt fields of a delivery.
func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()

	res, err := s.db.Collection(colDeliveries).
		ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("courier/mongo: update delivery: %w", err)
	}

	if res.MatchedCount == 0 {
		return courier.ErrDeliveryNotFound
	}

	return nil
}

// Release restores a skipped delivery's pre-claim status so it becomes due
// again. Dequeue marked it delivering; a delivery with prior attempts goes
// back to failed, a fresh one back to pending.
func (s *Store) Release(ctx context.Context, d *delivery.Delivery) error {
	status := string(delivery.StatusPending)
	if d.Attempts > 0 {
		status = string(delivery.StatusFailed)
	}

	_, err := s.db.Collection(colDeliveries).UpdateOne(ctx,
		bson.M{"_id": d.ID.String(), "status": string(delivery.StatusDelivering)},
		bson.M{"$set": bson.M{"status": status, "updated_at": now()}})
	if err != nil {
		return fmt.Errorf("courier/mongo: release delivery: %w", err)
	}
	return nil
}

// GetDelivery returns a delivery by ID.
func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel

	err := s.db.Collection(colDeliveries).
		FindOne(ctx, bson.M{"_id": delID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, courier.ErrDeliveryNotFound
		}

		return nil, fmt.Errorf("courier/mongo: get delivery: %w", err)
	}

	return fromDeliveryModel(&m)
}

// ListByEndpoint returns delivery history for an endpoint.
func (s *Store) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	filter := bson.M{"endpoint_id": epID.String()}
	if opts.Status != nil {
		filter["status"] = string(*opts.Status)
	}

	cur, err := s.db.Collection(colDeliveries).
		Find(ctx, filter, findOpts(bson.D{{Key: "created_at", Value: -1}}, opts.Offset, opts.Limit))
	if err != nil {
		return nil, fmt.Errorf("courier/mongo: list by endpoint: %w", err)
	}

	var models []deliveryModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("courier/mongo: list by endpoint: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(models))
	for i := range models {
		d, err := fromDeliveryModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, d)
	}

	return result, nil
}

// CountPending returns the number of deliveries awaiting attempt.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.db.Collection(colDeliveries).
		CountDocuments(ctx, bson.M{"status": string(delivery.StatusPending)})
	if err != nil {
		return 0, fmt.Errorf("courier/mongo: count pending: %w", err)
	}

	return count, nil
}
