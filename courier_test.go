package courier_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	courier "github.com/xraph/courier"
	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/endpoint"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/signature"
	"github.com/xraph/courier/store/memory"
)

func ctx() context.Context { return context.Background() }

func mustJSON(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

func setup(t *testing.T, opts ...courier.Option) (*courier.Courier, *memory.Store) {
	t.Helper()
	s := memory.New()
	c, err := courier.New(append([]courier.Option{courier.WithStore(s)}, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	return c, s
}

func createEndpoint(t *testing.T, c *courier.Courier, url string, patterns []string) *endpoint.Endpoint {
	t.Helper()
	ep, _, err := c.Endpoints().Create(ctx(), endpoint.Input{
		URL:        url,
		EventTypes: patterns,
	})
	if err != nil {
		t.Fatal(err)
	}
	return ep
}

func TestNewRequiresStore(t *testing.T) {
	_, err := courier.New()
	if !errors.Is(err, courier.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestPublishHappyPath(t *testing.T) {
	c, s := setup(t)

	createEndpoint(t, c, "https://example.com/a", []string{"invoice.*"})
	createEndpoint(t, c, "https://example.com/b", []string{"*"})

	err := c.Publish(ctx(), "invoice.created", "inv_1", mustJSON(map[string]any{"amount": 100}))
	if err != nil {
		t.Fatal(err)
	}

	// 2 endpoints matched, one delivery each.
	pending, _ := s.CountPending(ctx())
	if pending != 2 {
		t.Fatalf("expected 2 pending deliveries, got %d", pending)
	}
}

func TestPublishNoMatchingEndpoints(t *testing.T) {
	c, s := setup(t)

	createEndpoint(t, c, "https://example.com/a", []string{"invoice.*"})

	if err := c.Publish(ctx(), "user.created", "usr_1", mustJSON(map[string]any{})); err != nil {
		t.Fatal(err)
	}

	pending, _ := s.CountPending(ctx())
	if pending != 0 {
		t.Fatalf("expected 0 pending deliveries, got %d", pending)
	}
}

func TestPublishOpenWorldWithoutRegistry(t *testing.T) {
	c, _ := setup(t)

	// No registered types: any event type is accepted.
	if err := c.Publish(ctx(), "anything.goes", "", mustJSON(map[string]any{})); err != nil {
		t.Fatal(err)
	}
}

func TestPublishUnknownEventType(t *testing.T) {
	c, _ := setup(t, courier.WithEventType(catalog.Definition{Name: "invoice.created"}))

	err := c.Publish(ctx(), "does.not.exist", "", mustJSON(map[string]any{}))
	if !errors.Is(err, courier.ErrEventTypeNotFound) {
		t.Fatalf("expected ErrEventTypeNotFound, got %v", err)
	}
}

func TestPublishDeprecatedEventType(t *testing.T) {
	c, _ := setup(t, courier.WithEventType(catalog.Definition{
		Name:       "old.event",
		Deprecated: true,
	}))

	err := c.Publish(ctx(), "old.event", "", mustJSON(map[string]any{}))
	if !errors.Is(err, courier.ErrEventTypeDeprecated) {
		t.Fatalf("expected ErrEventTypeDeprecated, got %v", err)
	}
}

func TestPublishSchemaValidation(t *testing.T) {
	c, s := setup(t, courier.WithEventType(catalog.Definition{
		Name: "validated.event",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"amount": map[string]any{"type": "number"},
			},
			"required": []any{"amount"},
		},
	}))

	createEndpoint(t, c, "https://example.com/a", []string{"validated.*"})

	// Missing required field.
	err := c.Publish(ctx(), "validated.event", "", mustJSON(map[string]any{"other": "value"}))
	if !errors.Is(err, courier.ErrPayloadValidationFailed) {
		t.Fatalf("expected ErrPayloadValidationFailed, got %v", err)
	}

	// Conforming payload fans out.
	if err := c.Publish(ctx(), "validated.event", "", mustJSON(map[string]any{"amount": 42})); err != nil {
		t.Fatal(err)
	}

	pending, _ := s.CountPending(ctx())
	if pending != 1 {
		t.Fatalf("expected 1 pending delivery, got %d", pending)
	}
}

func TestEndToEndDelivery(t *testing.T) {
	received := make(chan *http.Request, 1)

	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ = io.ReadAll(r.Body)
		received <- r
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, s := setup(t,
		courier.WithPollInterval(20*time.Millisecond),
		courier.WithConcurrency(2),
	)

	ep, secret, err := c.Endpoints().Create(ctx(), endpoint.Input{
		URL:        srv.URL,
		EventTypes: []string{"invoice.*"},
	})
	if err != nil {
		t.Fatal(err)
	}

	c.Start(ctx())
	defer c.Stop(ctx())

	payload := mustJSON(map[string]any{"invoice_id": "inv_1"})
	if err := c.Publish(ctx(), "invoice.created", "inv_1", payload); err != nil {
		t.Fatal(err)
	}

	var req *http.Request
	select {
	case req = <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for delivery")
	}

	// The request carries a verifiable signature.
	sig := req.Header.Get("X-Webhook-Signature")
	ts, err := strconv.ParseInt(req.Header.Get("X-Webhook-Timestamp"), 10, 64)
	if err != nil {
		t.Fatalf("bad timestamp header: %v", err)
	}
	if !signature.Verify(body, secret, ts, sig) {
		t.Fatal("signature verification failed")
	}

	// The delivery record reaches succeeded.
	waitForSucceeded(t, s, ep.ID)
}

func waitForSucceeded(t *testing.T, s *memory.Store, epID id.ID) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		dels, err := s.ListByEndpoint(ctx(), epID, delivery.ListOpts{})
		if err != nil {
			t.Fatal(err)
		}
		if len(dels) == 1 && dels[0].Status == delivery.StatusSucceeded {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("delivery never reached succeeded")
}
