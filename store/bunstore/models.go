package bunstore

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/endpoint"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// --- Endpoint models ---

type endpointModel struct {
	bun.BaseModel `bun:"table:courier_endpoints,alias:ep"`

	ID          string            `bun:"id,pk"`
	URL         string            `bun:"url,notnull"`
	Description string            `bun:"description"`
	Secret      string            `bun:"secret"`
	EventTypes  []string          `bun:"event_types,type:jsonb"`
	Headers     map[string]string `bun:"headers,type:jsonb"`
	Enabled     bool              `bun:"enabled"`
	RateLimit   int               `bun:"rate_limit"`
	Metadata    map[string]string `bun:"metadata,type:jsonb"`
	CreatedAt   time.Time         `bun:"created_at,notnull"`
	UpdatedAt   time.Time         `bun:"updated_at,notnull"`
}

func toEndpointModel(ep *endpoint.Endpoint) *endpointModel {
	return &endpointModel{
		ID:          ep.ID.String(),
		URL:         ep.URL,
		Description: ep.Description,
		Secret:      ep.Secret,
		EventTypes:  ep.EventTypes,
		Headers:     ep.Headers,
		Enabled:     ep.Enabled,
		RateLimit:   ep.RateLimit,
		Metadata:    ep.Metadata,
		CreatedAt:   ep.CreatedAt,
		UpdatedAt:   ep.UpdatedAt,
	}
}

func fromEndpointModel(m *endpointModel) (*endpoint.Endpoint, error) {
	epID, err := id.ParseEndpointID(m.ID)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint ID %q: %w", m.ID, err)
	}
	return &endpoint.Endpoint{
		Entity: entity.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          epID,
		URL:         m.URL,
		Description: m.Description,
		Secret:      m.Secret,
		EventTypes:  m.EventTypes,
		Headers:     m.Headers,
		Enabled:     m.Enabled,
		RateLimit:   m.RateLimit,
		Metadata:    m.Metadata,
	}, nil
}

// --- Delivery models ---

type deliveryModel struct {
	bun.BaseModel `bun:"table:courier_deliveries,alias:del"`

	ID            string          `bun:"id,pk"`
	EndpointID    string          `bun:"endpoint_id,notnull"`
	EventType     string          `bun:"event_type,notnull"`
	ResourceID    string          `bun:"resource_id"`
	Payload       json.RawMessage `bun:"payload,type:jsonb"`
	Attempts      int             `bun:"attempts"`
	Status        string          `bun:"status,notnull"`
	ResponseCode  int             `bun:"response_code"`
	ResponseBody  string          `bun:"response_body"`
	ErrorMessage  string          `bun:"error_message"`
	LastAttemptAt *time.Time      `bun:"last_attempt_at"`
	SucceededAt   *time.Time      `bun:"succeeded_at"`
	NextAttemptAt *time.Time      `bun:"next_attempt_at"`
	CreatedAt     time.Time       `bun:"created_at,notnull"`
	UpdatedAt     time.Time       `bun:"updated_at,notnull"`
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

// --- DLQ models ---

type dlqEntryModel struct {
	bun.BaseModel `bun:"table:courier_dlq,alias:dlq"`

	ID             string          `bun:"id,pk"`
	DeliveryID     string          `bun:"delivery_id,notnull"`
	EndpointID     string          `bun:"endpoint_id,notnull"`
	EventType      string          `bun:"event_type"`
	ResourceID     string          `bun:"resource_id"`
	URL            string          `bun:"url"`
	Payload        json.RawMessage `bun:"payload,type:jsonb"`
	Error          string          `bun:"error"`
	Attempts       int             `bun:"attempts"`
	LastStatusCode int             `bun:"last_status_code"`
	ReplayedAt     *time.Time      `bun:"replayed_at"`
	FailedAt       time.Time       `bun:"failed_at,notnull"`
	CreatedAt      time.Time       `bun:"created_at,notnull"`
	UpdatedAt      time.Time       `bun:"updated_at,notnull"`
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
		return nil, fmt.Errorf("parse DLQ entry ID %q: %w", m.ID, err)
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
