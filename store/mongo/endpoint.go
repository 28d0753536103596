package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	courier "github.com/xraph/courier"
	"github.com/xraph/courier/endpoint"
	"github.com/xraph/courier/id"
)

// CreateEndpoint persists a new endpoint.
func (s *Store) CreateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)

	_, err := s.db.Collection(colEndpoints).InsertOne(ctx, m)
	if err != nil {
		return fmt.Errorf("courier/mongo: create endpoint: %w", err)
	}

	return nil
}

// GetEndpoint returns an endpoint by ID.
func (s *Store) GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error) {
	var m endpointModel

	err := s.db.Collection(colEndpoints).
		FindOne(ctx, bson.M{"_id": epID.String()}).
		Decode(&m)
	if err != nil {
		if isNoDocuments(err) {
			return nil, courier.ErrEndpointNotFound
		}

		return nil, fmt.Errorf("courier/mongo: get endpoint: %w", err)
	}

	return fromEndpointModel(&m)
}

// UpdateEndpoint modifies an existing endpoint.
func (s *Store) UpdateEndpoint(ctx context.Context, ep *endpoint.Endpoint) error {
	m := toEndpointModel(ep)
	m.UpdatedAt = now()

	res, err := s.db.Collection(colEndpoints).
		ReplaceOne(ctx, bson.M{"_id": m.ID}, m)
	if err != nil {
		return fmt.Errorf("courier/mongo: update endpoint: %w", err)
	}

	if res.MatchedCount == 0 {
		return courier.ErrEndpointNotFound
	}

	return nil
}

// DeleteEndpoint removes an endpoint.
func (s *Store) DeleteEndpoint(ctx context.Context, epID id.ID) error {
	res, err := s.db.Collection(colEndpoints).
		DeleteOne(ctx, bson.M{"_id": epID.String()})
	if err != nil {
		return fmt.Errorf("courier/mongo: delete endpoint: %w", err)
	}

	if res.DeletedCount == 0 {
		return courier.ErrEndpointNotFound
	}

	return nil
}

// ListEndpoints returns endpoints, optionally filtered.
func (s *Store) ListEndpoints(ctx context.Context, opts endpoint.ListOpts) ([]*endpoint.Endpoint, error) {
	filter := bson.M{}
	if opts.Enabled != nil {
		filter["enabled"] = *opts.Enabled
	}

	cur, err := s.db.Collection(colEndpoints).
		Find(ctx, filter, findOpts(bson.D{{Key: "created_at", Value: 1}}, opts.Offset, opts.Limit))
	if err != nil {
		return nil, fmt.Errorf("courier/mongo: list endpoints: %w", err)
	}

	var models []endpointModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("courier/mongo: list endpoints: %w", err)
	}

	result := make([]*endpoint.Endpoint, 0, len(models))
	for i := range models {
		ep, err := fromEndpointModel(&models[i])
		if err != nil {
			return nil, err
		}

		result = append(result, ep)
	}

	return result, nil
}

// Resolve finds all enabled endpoints subscribed to an event type.
func (s *Store) Resolve(ctx context.Context, eventType string) ([]*endpoint.Endpoint, error) {
	cur, err := s.db.Collection(colEndpoints).Find(ctx, bson.M{"enabled": true})
	if err != nil {
		return nil, fmt.Errorf("courier/mongo: resolve: %w", err)
	}

	var models []endpointModel
	if err := cur.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("courier/mongo: resolve: %w", err)
	}

	// Subscription patterns are globs, so matching happens here rather than
	// in the query.
	var result []*endpoint.Endpoint
	for i := range models {
		ep, err := fromEndpointModel(&models[i])
		if err != nil {
			return nil, err
		}

		if ep.Subscribed(eventType) {
			result = append(result, ep)
		}
	}

	return result, nil
}

// SetEnabled enables or disables an endpoint.
func (s *Store) SetEnabled(ctx context.Context, epID id.ID, enabled bool) error {
	res, err := s.db.Collection(colEndpoints).UpdateOne(ctx,
		bson.M{"_id": epID.String()},
		bson.M{"$set": bson.M{
			"enabled":    enabled,
			"updated_at": now(),
		}})
	if err != nil {
		return fmt.Errorf("courier/mongo: set enabled: %w", err)
	}

	if res.MatchedCount == 0 {
		return courier.ErrEndpointNotFound
	}

	return nil
}
