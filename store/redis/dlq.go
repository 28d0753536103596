package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// dlqEntryModel is the JSON representation stored in Redis.
type dlqEntryModel struct {
	ID             string          `json:"id"`
	DeliveryID     string          `json:"delivery_id"`
	EndpointID     string          `json:"endpoint_id"`
	EventType      string          `json:"event_type"`
	ResourceID     string          `json:"resource_id,omitempty"`
	URL            string          `json:"url"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	Error          string          `json:"error"`
	Attempts       int             `json:"attempts"`
	LastStatusCode int             `json:"last_status_code"`
	ReplayedAt     *time.Time      `json:"replayed_at,omitempty"`
	FailedAt       time.Time       `json:"failed_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func toDLQEntryModel(e *dlq.Entry) *dlqEntryModel {
	return &dlqEntryModel{
		ID:             e.ID.String(),
		DeliveryID:     e.DeliveryID.String(),
		EndpointID:     e.EndpointID.String(),
		EventType:      e.EventType,
		ResourceID:     e.ResourceID,
		URL:            e.URL,
		Payload:        e.Payload,
		Error:          e.Error,
		Attempts:       e.Attempts,
		LastStatusCode: e.LastStatusCode,
		ReplayedAt:     e.ReplayedAt,
		FailedAt:       e.FailedAt,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func fromDLQEntryModel(m *dlqEntryModel) (*dlq.Entry, error) {
	dlqID, err := id.ParseDLQID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse DLQ ID %q: %w", m.ID, err)
	}
	delID, err := id.ParseDeliveryID(m.DeliveryID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.DeliveryID, err)
	}
	epID, err := id.ParseEndpointID(m.EndpointID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.EndpointID, err)
	}
	return &dlq.Entry{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             dlqID,
		DeliveryID:     delID,
		EndpointID:     epID,
		EventType:      m.EventType,
		ResourceID:     m.ResourceID,
		URL:            m.URL,
		Payload:        m.Payload,
		Error:          m.Error,
		Attempts:       m.Attempts,
		LastStatusCode: m.LastStatusCode,
		ReplayedAt:     m.ReplayedAt,
		FailedAt:       m.FailedAt,
	}, nil
}

func (s *Store) Push(ctx context.Context, entry *dlq.Entry) error {
	m := toDLQEntryModel(entry)
	key := entityKey(prefixDLQ, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("courier/redis: push dlq: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDLQAll, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	if m.EndpointID != "" {
		pipe.ZAdd(ctx, zDLQEndpoint+m.EndpointID, goredis.Z{Score: scoreFromTime(m.FailedAt), Member: m.ID})
	}
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: push dlq indexes: %w", err)
	}
	return nil
}

func (s *Store) ListDLQ(ctx context.Context, opts dlq.ListOpts) ([]*dlq.Entry, error) {
	zKey := zDLQAll
	if opts.EndpointID != nil {
		zKey = zDLQEndpoint + opts.EndpointID.String()
	}

	minScore := math.Inf(-1)
	maxScore := math.Inf(1)
	if opts.From != nil {
		minScore = scoreFromTime(*opts.From)
	}
	if opts.To != nil {
		maxScore = scoreFromTime(*opts.To)
	}

	ids, err := s.zRangeByScoreIDs(ctx, zKey, minScore, maxScore)
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list dlq: %w", err)
	}

	result := make([]*dlq.Entry, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.EventType != "" && m.EventType != opts.EventType {
			continue
		}
		entry, err := fromDLQEntryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, entry)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) GetDLQ(ctx context.Context, dlqID id.ID) (*dlq.Entry, error) {
	var m dlqEntryModel
	if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, courier.ErrDLQNotFound
		}
		return nil, fmt.Errorf("courier/redis: get dlq: %w", err)
	}
	return fromDLQEntryModel(&m)
}

// replayEntry enqueues a fresh delivery for the entry and marks it replayed.
func (s *Store) replayEntry(ctx context.Context, m *dlqEntryModel) error {
	entry, err := fromDLQEntryModel(m)
	if err != nil {
		return err
	}

	d := &delivery.Delivery{
		Entity:     courier.NewEntity(),
		ID:         id.NewDeliveryID(),
		EndpointID: entry.EndpointID,
		EventType:  entry.EventType,
		ResourceID: entry.ResourceID,
		Payload:    entry.Payload,
		Status:     delivery.StatusPending,
	}
	if err := s.Enqueue(ctx, d); err != nil {
		return err
	}

	replayedAt := now()
	m.ReplayedAt = &replayedAt
	m.UpdatedAt = replayedAt
	return s.setEntity(ctx, entityKey(prefixDLQ, m.ID), m)
}

func (s *Store) Replay(ctx context.Context, dlqID id.ID) error {
	var m dlqEntryModel
	if err := s.getEntity(ctx, entityKey(prefixDLQ, dlqID.String()), &m); err != nil {
		if isRedisNil(err) {
			return courier.ErrDLQNotFound
		}
		return fmt.Errorf("courier/redis: replay get: %w", err)
	}
	return s.replayEntry(ctx, &m)
}

func (s *Store) ReplayBulk(ctx context.Context, from, to time.Time) (int64, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zDLQAll, scoreFromTime(from), scoreFromTime(to))
	if err != nil {
		return 0, fmt.Errorf("courier/redis: replay bulk list: %w", err)
	}

	var count int64
	for _, entryID := range ids {
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return count, err
		}
		if m.ReplayedAt != nil {
			continue
		}

		if err := s.replayEntry(ctx, &m); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	ids, err := s.zRangeByScoreIDs(ctx, zDLQAll, math.Inf(-1), scoreFromTime(before))
	if err != nil {
		return 0, fmt.Errorf("courier/redis: purge list: %w", err)
	}

	var count int64
	for _, entryID := range ids {
		var m dlqEntryModel
		if err := s.getEntity(ctx, entityKey(prefixDLQ, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return count, err
		}

		pipe := s.rdb.Pipeline()
		pipe.Del(ctx, entityKey(prefixDLQ, entryID))
		pipe.ZRem(ctx, zDLQAll, entryID)
		if m.EndpointID != "" {
			pipe.ZRem(ctx, zDLQEndpoint+m.EndpointID, entryID)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

func (s *Store) CountDLQ(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDLQAll).Result()
	if err != nil {
		return 0, fmt.Errorf("courier/redis: count dlq: %w", err)
	}
	return count, nil
}
