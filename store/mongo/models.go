package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/endpoint"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

// --- Endpoint models ---

type endpointModel struct {
	ID          string            `bson:"_id"`
	URL         string            `bson:"url"`
	Description string            `bson:"description"`
	Secret      string            `bson:"secret"`
	EventTypes  []string          `bson:"event_types"`
	Headers     map[string]string `bson:"headers,omitempty"`
	Enabled     bool              `bson:"enabled"`
	RateLimit   int               `bson:"rate_limit"`
	Metadata    map[string]string `bson:"metadata,omitempty"`
	CreatedAt   time.Time         `bson:"created_at"`
	UpdatedAt   time.Time         `bson:"updated_at"`
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
	ID            string     `bson:"_id"`
	EndpointID    string     `bson:"endpoint_id"`
	EventType     string     `bson:"event_type"`
	ResourceID    string     `bson:"resource_id,omitempty"`
	Payload       []byte     `bson:"payload,omitempty"`
	Attempts      int        `bson:"attempts"`
	Status        string     `bson:"status"`
	ResponseCode  int        `bson:"response_code,omitempty"`
	ResponseBody  string     `bson:"response_body,omitempty"`
	ErrorMessage  string     `bson:"error_message,omitempty"`
	LastAttemptAt *time.Time `bson:"last_attempt_at,omitempty"`
	SucceededAt   *time.Time `bson:"succeeded_at,omitempty"`
	NextAttemptAt *time.Time `bson:"next_attempt_at,omitempty"`
	CreatedAt     time.Time  `bson:"created_at"`
	UpdatedAt     time.Time  `bson:"updated_at"`
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
		Payload:       json.RawMessage(m.Payload),
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
	ID             string     `bson:"_id"`
	DeliveryID     string     `bson:"delivery_id"`
	EndpointID     string     `bson:"endpoint_id"`
	EventType      string     `bson:"event_type"`
	ResourceID     string     `bson:"resource_id,omitempty"`
	URL            string     `bson:"url"`
	Payload        []byte     `bson:"payload,omitempty"`
	Error          string     `bson:"error"`
	Attempts       int        `bson:"attempts"`
	LastStatusCode int        `bson:"last_status_code,omitempty"`
	ReplayedAt     *time.Time `bson:"replayed_at,omitempty"`
	FailedAt       time.Time  `bson:"failed_at"`
	CreatedAt      time.Time  `bson:"created_at"`
	UpdatedAt      time.Time  `bson:"updated_at"`
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
		Payload:        json.RawMessage(m.Payload),
		Error:          m.Error,
		Attempts:       m.Attempts,
		LastStatusCode: m.LastStatusCode,
		ReplayedAt:     m.ReplayedAt,
		FailedAt:       m.FailedAt,
	}, nil
}
