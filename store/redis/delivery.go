package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// deliveryModel is the JSON representation stored in Redis.
type deliveryModel struct {
	ID            string          `json:"id"`
	EndpointID    string          `json:"endpoint_id"`
	EventType     string          `json:"event_type"`
	ResourceID    string          `json:"resource_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	Attempts      int             `json:"attempts"`
	Status        string          `json:"status"`
	ResponseCode  int             `json:"response_code,omitempty"`
	ResponseBody  string          `json:"response_body,omitempty"`
	ErrorMessage  string          `json:"error_message,omitempty"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
	SucceededAt   *time.Time      `json:"succeeded_at,omitempty"`
	NextAttemptAt *time.Time      `json:"next_attempt_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func toDeliveryModel(d *delivery.Delivery) *deliveryModel {
	return &deliveryModel{
		ID:            d.ID.String(),
		EndpointID:    d.EndpointID.String(),
		EventType:     d.EventType,
		ResourceID:    d.ResourceID,
		Payload:       d.Payload,
		Attempts:      d.Attempts,
		Status:        string(d.Status),
		ResponseCode:  d.ResponseCode,
		ResponseBody:  d.ResponseBody,
		ErrorMessage:  d.ErrorMessage,
		LastAttemptAt: d.LastAttemptAt,
		SucceededAt:   d.SucceededAt,
		NextAttemptAt: d.NextAttemptAt,
		CreatedAt:     d.CreatedAt,
		UpdatedAt:     d.UpdatedAt,
	}
}

func fromDeliveryModel(m *deliveryModel) (*delivery.Delivery, error) {
	delID, err := id.ParseDeliveryID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse delivery ID %q: %w", m.ID, err)
	}
	epID, err := id.ParseEndpointID(m.EndpointID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.EndpointID, err)
	}
	return &delivery.Delivery{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            delID,
		EndpointID:    epID,
		EventType:     m.EventType,
		ResourceID:    m.ResourceID,
		Payload:       m.Payload,
		Attempts:      m.Attempts,
		Status:        delivery.Status(m.Status),
		ResponseCode:  m.ResponseCode,
		ResponseBody:  m.ResponseBody,
		ErrorMessage:  m.ErrorMessage,
		LastAttemptAt: m.LastAttemptAt,
		SucceededAt:   m.SucceededAt,
		NextAttemptAt: m.NextAttemptAt,
	}, nil
}

// dueScore returns the due-queue score for a delivery: its scheduled next
// attempt, or its creation time for first attempts.
func dueScore(m *deliveryModel) float64 {
	if m.NextAttemptAt != nil {
		return scoreFromTime(*m.NextAttemptAt)
	}
	return scoreFromTime(m.CreatedAt)
}

// dequeueScript atomically claims due deliveries from the sorted set.
// Removal from the set is the claim; UpdateDelivery re-adds retryable
// deliveries.
// KEYS[1] = courier:z:del:due
// ARGV[1] = current unix timestamp (score threshold)
// ARGV[2] = limit
var dequeueScript = goredis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
if #ids == 0 then return {} end
for i, id in ipairs(ids) do
    redis.call('ZREM', KEYS[1], id)
end
return ids
`)

func (s *Store) Enqueue(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	key := entityKey(prefixDelivery, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("courier/redis: enqueue delivery: %w", err)
	}

	pipe := s.rdb.Pipeline()
	pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: dueScore(m), Member: m.ID})
	pipe.ZAdd(ctx, zDeliveryEP+m.EndpointID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: enqueue delivery indexes: %w", err)
	}
	return nil
}

func (s *Store) EnqueueBatch(ctx context.Context, ds []*delivery.Delivery) error {
	if len(ds) == 0 {
		return nil
	}

	pipe := s.rdb.Pipeline()
	for _, d := range ds {
		m := toDeliveryModel(d)
		key := entityKey(prefixDelivery, m.ID)

		raw, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("courier/redis: enqueue batch marshal: %w", err)
		}
		pipe.Set(ctx, key, raw, 0)
		pipe.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: dueScore(m), Member: m.ID})
		pipe.ZAdd(ctx, zDeliveryEP+m.EndpointID, goredis.Z{Score: scoreFromTime(m.CreatedAt), Member: m.ID})
	}

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("courier/redis: enqueue batch: %w", err)
	}
	return nil
}

func (s *Store) Dequeue(ctx context.Context, limit int) ([]*delivery.Delivery, error) {
	nowScore := fmt.Sprintf("%f", scoreFromTime(now()))
	result, err := dequeueScript.Run(ctx, s.rdb, []string{zDeliveryDue}, nowScore, limit).StringSlice()
	if err != nil {
		if isRedisNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("courier/redis: dequeue script: %w", err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	deliveries := make([]*delivery.Delivery, 0, len(result))
	for _, entryID := range result {
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, entryID), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, fmt.Errorf("courier/redis: dequeue get: %w", err)
		}

		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		deliveries = append(deliveries, d)
	}

	return deliveries, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	m.UpdatedAt = now()
	key := entityKey(prefixDelivery, m.ID)

	if err := s.setEntity(ctx, key, m); err != nil {
		return fmt.Errorf("courier/redis: update delivery: %w", err)
	}

	// Retryable deliveries go back into the due queue; terminal and in-flight
	// ones stay out.
	retryable := d.Status == delivery.StatusPending ||
		(d.Status == delivery.StatusFailed && d.NextAttemptAt != nil)
	if retryable {
		s.rdb.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: dueScore(m), Member: m.ID})
	}
	return nil
}

// Release puts a skipped delivery back into the due queue. Dequeue removed
// it from the zset, so without this a skipped delivery would be stranded
// until its next UpdateDelivery.
func (s *Store) Release(ctx context.Context, d *delivery.Delivery) error {
	m := toDeliveryModel(d)
	if err := s.rdb.ZAdd(ctx, zDeliveryDue, goredis.Z{Score: dueScore(m), Member: m.ID}).Err(); err != nil {
		return fmt.Errorf("courier/redis: release delivery: %w", err)
	}
	return nil
}

func (s *Store) GetDelivery(ctx context.Context, delID id.ID) (*delivery.Delivery, error) {
	var m deliveryModel
	if err := s.getEntity(ctx, entityKey(prefixDelivery, delID.String()), &m); err != nil {
		if isRedisNil(err) {
			return nil, courier.ErrDeliveryNotFound
		}
		return nil, fmt.Errorf("courier/redis: get delivery: %w", err)
	}
	return fromDeliveryModel(&m)
}

func (s *Store) ListByEndpoint(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	ids, err := s.rdb.ZRange(ctx, zDeliveryEP+epID.String(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("courier/redis: list by endpoint: %w", err)
	}

	result := make([]*delivery.Delivery, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- { // reverse for DESC order
		var m deliveryModel
		if err := s.getEntity(ctx, entityKey(prefixDelivery, ids[i]), &m); err != nil {
			if isRedisNil(err) {
				continue
			}
			return nil, err
		}
		if opts.Status != nil && delivery.Status(m.Status) != *opts.Status {
			continue
		}
		d, err := fromDeliveryModel(&m)
		if err != nil {
			return nil, err
		}
		result = append(result, d)
	}

	return applyPagination(result, opts.Offset, opts.Limit), nil
}

func (s *Store) CountPending(ctx context.Context) (int64, error) {
	count, err := s.rdb.ZCard(ctx, zDeliveryDue).Result()
	if err != nil {
		return 0, fmt.Errorf("courier/redis: count pending: %w", err)
	}
	return count, nil
}
