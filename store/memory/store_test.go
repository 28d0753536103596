package memory

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/xraph/courier"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/endpoint"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
)

func ctx() context.Context { return context.Background() }

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func TestLifecycle(t *testing.T) {
	s := New()

	if err := s.Migrate(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Ping(ctx()); !errors.Is(err, courier.ErrStoreClosed) {
		t.Fatalf("expected ErrStoreClosed, got %v", err)
	}
}

// ──────────────────────────────────────────────────
// endpoint.Store
// ──────────────────────────────────────────────────

func newEndpoint(eventTypes []string) *endpoint.Endpoint {
	return &endpoint.Endpoint{
		Entity:     entity.New(),
		ID:         id.NewEndpointID(),
		URL:        "https://example.com/webhook",
		Secret:     "whsec_test",
		EventTypes: eventTypes,
		Enabled:    true,
	}
}

func TestEndpointCRUD(t *testing.T) {
	s := New()

	ep := newEndpoint([]string{"invoice.*"})

	// Create
	if err := s.CreateEndpoint(ctx(), ep); err != nil {
		t.Fatal(err)
	}

	// Get
	got, err := s.GetEndpoint(ctx(), ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.URL != "https://example.com/webhook" {
		t.Fatalf("got URL %q", got.URL)
	}

	// Get not found
	_, err = s.GetEndpoint(ctx(), id.NewEndpointID())
	if !errors.Is(err, courier.ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}

	// Update
	ep.Description = "Updated"
	err = s.UpdateEndpoint(ctx(), ep)
	if err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetEndpoint(ctx(), ep.ID)
	if got.Description != "Updated" {
		t.Fatalf("expected updated description")
	}

	// Update not found
	fake := newEndpoint(nil)
	err = s.UpdateEndpoint(ctx(), fake)
	if !errors.Is(err, courier.ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}

	// List
	list, err := s.ListEndpoints(ctx(), endpoint.ListOpts{})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1, got %d", len(list))
	}

	// Delete
	err = s.DeleteEndpoint(ctx(), ep.ID)
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.GetEndpoint(ctx(), ep.ID)
	if !errors.Is(err, courier.ErrEndpointNotFound) {
		t.Fatalf("expected deleted")
	}
}

func TestEndpointSetEnabled(t *testing.T) {
	s := New()

	ep := newEndpoint([]string{"*"})
	_ = s.CreateEndpoint(ctx(), ep)

	if err := s.SetEnabled(ctx(), ep.ID, false); err != nil {
		t.Fatal(err)
	}
	got, _ := s.GetEndpoint(ctx(), ep.ID)
	if got.Enabled {
		t.Fatal("expected disabled")
	}

	if err := s.SetEnabled(ctx(), id.NewEndpointID(), true); !errors.Is(err, courier.ErrEndpointNotFound) {
		t.Fatalf("expected ErrEndpointNotFound, got %v", err)
	}
}

func TestEndpointResolve(t *testing.T) {
	s := New()

	ep1 := newEndpoint([]string{"invoice.*"})
	ep2 := newEndpoint([]string{"user.*"})
	ep3 := newEndpoint([]string{"*"})
	epDisabled := newEndpoint([]string{"*"})
	epDisabled.Enabled = false

	for _, ep := range []*endpoint.Endpoint{ep1, ep2, ep3, epDisabled} {
		_ = s.CreateEndpoint(ctx(), ep)
	}

	// invoice.created matches ep1 and ep3 (not ep2, not disabled).
	result, err := s.Resolve(ctx(), "invoice.created")
	if err != nil {
		t.Fatal(err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 resolved, got %d", len(result))
	}
}

func TestEndpointListFilters(t *testing.T) {
	s := New()

	ep1 := newEndpoint([]string{"*"})
	ep2 := newEndpoint([]string{"*"})
	ep2.Enabled = false
	_ = s.CreateEndpoint(ctx(), ep1)
	_ = s.CreateEndpoint(ctx(), ep2)

	enabled := true
	list, _ := s.ListEndpoints(ctx(), endpoint.ListOpts{Enabled: &enabled})
	if len(list) != 1 {
		t.Fatalf("expected 1 enabled, got %d", len(list))
	}
}

// ──────────────────────────────────────────────────
// delivery.Store
// ──────────────────────────────────────────────────

func newDelivery(epID id.ID) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:     entity.New(),
		ID:         id.NewDeliveryID(),
		EndpointID: epID,
		EventType:  "invoice.created",
		Payload:    json.RawMessage(`{"test":true}`),
		Status:     delivery.StatusPending,
	}
}

func TestDeliveryCRUD(t *testing.T) {
	s := New()

	epID := id.NewEndpointID()
	d := newDelivery(epID)

	// Enqueue
	if err := s.Enqueue(ctx(), d); err != nil {
		t.Fatal(err)
	}

	// Get
	got, err := s.GetDelivery(ctx(), d.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != delivery.StatusPending {
		t.Fatalf("expected pending, got %s", got.Status)
	}

	// Update
	d.Status = delivery.StatusSucceeded
	err = s.UpdateDelivery(ctx(), d)
	if err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetDelivery(ctx(), d.ID)
	if got.Status != delivery.StatusSucceeded {
		t.Fatalf("expected succeeded, got %s", got.Status)
	}

	// Get not found
	_, err = s.GetDelivery(ctx(), id.NewDeliveryID())
	if !errors.Is(err, courier.ErrDeliveryNotFound) {
		t.Fatalf("expected ErrDeliveryNotFound, got %v", err)
	}
}

func TestDeliveryEnqueueBatch(t *testing.T) {
	s := New()

	ds := []*delivery.Delivery{
		newDelivery(id.NewEndpointID()),
		newDelivery(id.NewEndpointID()),
		newDelivery(id.NewEndpointID()),
	}

	if err := s.EnqueueBatch(ctx(), ds); err != nil {
		t.Fatal(err)
	}

	count, _ := s.CountPending(ctx())
	if count != 3 {
		t.Fatalf("expected 3 pending, got %d", count)
	}
}

func TestDeliveryDequeue(t *testing.T) {
	s := New()

	for range 5 {
		_ = s.Enqueue(ctx(), newDelivery(id.NewEndpointID()))
	}

	// Dequeue with limit
	batch, err := s.Dequeue(ctx(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3, got %d", len(batch))
	}

	// Second dequeue should get remaining 2 (first 3 are locked)
	batch2, _ := s.Dequeue(ctx(), 10)
	if len(batch2) != 2 {
		t.Fatalf("expected 2, got %d", len(batch2))
	}

	// Third dequeue should get 0 (all locked)
	batch3, _ := s.Dequeue(ctx(), 10)
	if len(batch3) != 0 {
		t.Fatalf("expected 0, got %d", len(batch3))
	}

	// Update (release lock) on first batch item, then dequeue again
	batch[0].Status = delivery.StatusSucceeded
	_ = s.UpdateDelivery(ctx(), batch[0])

	batch4, _ := s.Dequeue(ctx(), 10)
	// The succeeded item shouldn't be dequeued.
	if len(batch4) != 0 {
		t.Fatalf("expected 0 (succeeded items not dequeued), got %d", len(batch4))
	}
}

func TestDeliveryDequeueRespectsNextAttemptAt(t *testing.T) {
	s := New()

	d := newDelivery(id.NewEndpointID())
	future := time.Now().Add(time.Hour)
	d.NextAttemptAt = &future
	_ = s.Enqueue(ctx(), d)

	batch, _ := s.Dequeue(ctx(), 10)
	if len(batch) != 0 {
		t.Fatalf("expected 0 (not ready), got %d", len(batch))
	}
}

func TestDeliveryDequeueRetriesFailed(t *testing.T) {
	s := New()

	// A failed delivery with a due NextAttemptAt is retryable.
	d := newDelivery(id.NewEndpointID())
	d.Status = delivery.StatusFailed
	past := time.Now().Add(-time.Minute)
	d.NextAttemptAt = &past
	_ = s.Enqueue(ctx(), d)

	// A failed delivery with no NextAttemptAt is terminal.
	terminal := newDelivery(id.NewEndpointID())
	terminal.Status = delivery.StatusFailed
	_ = s.Enqueue(ctx(), terminal)

	batch, _ := s.Dequeue(ctx(), 10)
	if len(batch) != 1 {
		t.Fatalf("expected 1, got %d", len(batch))
	}
	if batch[0].ID != d.ID {
		t.Fatal("expected the retryable failed delivery")
	}
}

func TestDeliveryListByEndpoint(t *testing.T) {
	s := New()

	epID := id.NewEndpointID()

	d1 := newDelivery(epID)
	d2 := newDelivery(epID)
	d3 := newDelivery(id.NewEndpointID()) // different endpoint

	_ = s.Enqueue(ctx(), d1)
	_ = s.Enqueue(ctx(), d2)
	_ = s.Enqueue(ctx(), d3)

	list, _ := s.ListByEndpoint(ctx(), epID, delivery.ListOpts{})
	if len(list) != 2 {
		t.Fatalf("expected 2, got %d", len(list))
	}
}

func TestDeliveryCountPending(t *testing.T) {
	s := New()

	d1 := newDelivery(id.NewEndpointID())
	d2 := newDelivery(id.NewEndpointID())
	_ = s.Enqueue(ctx(), d1)
	_ = s.Enqueue(ctx(), d2)

	// Mark one as succeeded
	d1.Status = delivery.StatusSucceeded
	_ = s.UpdateDelivery(ctx(), d1)

	count, _ := s.CountPending(ctx())
	if count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
}

// ──────────────────────────────────────────────────
// dlq.Store
// ──────────────────────────────────────────────────

func newDLQEntry(epID id.ID) *dlq.Entry {
	return &dlq.Entry{
		Entity:         entity.New(),
		ID:             id.NewDLQID(),
		DeliveryID:     id.NewDeliveryID(),
		EndpointID:     epID,
		EventType:      "invoice.created",
		Payload:        []byte(`{"test":true}`),
		Error:          "connection refused",
		LastStatusCode: 500,
		FailedAt:       time.Now().UTC(),
	}
}

func TestDLQCRUD(t *testing.T) {
	s := New()

	epID := id.NewEndpointID()
	entry := newDLQEntry(epID)

	// Push
	if err := s.Push(ctx(), entry); err != nil {
		t.Fatal(err)
	}

	// Get
	got, err := s.GetDLQ(ctx(), entry.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Error != "connection refused" {
		t.Fatalf("got error %q", got.Error)
	}

	// Get not found
	_, err = s.GetDLQ(ctx(), id.NewDLQID())
	if !errors.Is(err, courier.ErrDLQNotFound) {
		t.Fatalf("expected ErrDLQNotFound, got %v", err)
	}

	// Count
	count, _ := s.CountDLQ(ctx())
	if count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
}

func TestDLQList(t *testing.T) {
	s := New()

	epID := id.NewEndpointID()
	_ = s.Push(ctx(), newDLQEntry(epID))
	_ = s.Push(ctx(), newDLQEntry(id.NewEndpointID()))

	// List all
	list, _ := s.ListDLQ(ctx(), dlq.ListOpts{})
	if len(list) != 2 {
		t.Fatalf("expected 2, got %d", len(list))
	}

	// Filter by endpoint
	list, _ = s.ListDLQ(ctx(), dlq.ListOpts{EndpointID: &epID})
	if len(list) != 1 {
		t.Fatalf("expected 1, got %d", len(list))
	}
}

func TestDLQReplay(t *testing.T) {
	s := New()

	entry := newDLQEntry(id.NewEndpointID())
	_ = s.Push(ctx(), entry)

	// Before replay, 0 pending deliveries
	count, _ := s.CountPending(ctx())
	if count != 0 {
		t.Fatalf("expected 0 pending, got %d", count)
	}

	// Replay
	if err := s.Replay(ctx(), entry.ID); err != nil {
		t.Fatal(err)
	}

	// After replay, 1 pending delivery
	count, _ = s.CountPending(ctx())
	if count != 1 {
		t.Fatalf("expected 1 pending, got %d", count)
	}

	// Entry should have ReplayedAt set
	got, _ := s.GetDLQ(ctx(), entry.ID)
	if got.ReplayedAt == nil {
		t.Fatal("expected ReplayedAt to be set")
	}

	// Replay not found
	if err := s.Replay(ctx(), id.NewDLQID()); !errors.Is(err, courier.ErrDLQNotFound) {
		t.Fatalf("expected ErrDLQNotFound, got %v", err)
	}
}

func TestDLQReplayBulk(t *testing.T) {
	s := New()

	_ = s.Push(ctx(), newDLQEntry(id.NewEndpointID()))
	_ = s.Push(ctx(), newDLQEntry(id.NewEndpointID()))

	from := time.Now().Add(-time.Hour)
	to := time.Now().Add(time.Hour)

	count, err := s.ReplayBulk(ctx(), from, to)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}

	// Replaying again should return 0 (already replayed)
	count, _ = s.ReplayBulk(ctx(), from, to)
	if count != 0 {
		t.Fatalf("expected 0 on second replay, got %d", count)
	}
}

func TestDLQPurge(t *testing.T) {
	s := New()

	_ = s.Push(ctx(), newDLQEntry(id.NewEndpointID()))
	_ = s.Push(ctx(), newDLQEntry(id.NewEndpointID()))

	// Purge entries that failed before "far future" removes all.
	count, _ := s.Purge(ctx(), time.Now().Add(time.Hour))
	if count != 2 {
		t.Fatalf("expected 2 purged, got %d", count)
	}

	remaining, _ := s.CountDLQ(ctx())
	if remaining != 0 {
		t.Fatalf("expected 0, got %d", remaining)
	}
}
