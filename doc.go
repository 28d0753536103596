// Package courier provides a composable webhook delivery subsystem for Go.
//
// Courier is a library, not a service. Import it into your application to
// get signed webhook deliveries with retry backoff, per-endpoint circuit
// breaking, rate limiting, and a dead letter queue with replay.
//
// Key features:
//   - HMAC-SHA256 signatures on every delivery, with optional at-rest
//     secret encryption and a bounded TTL cache for decrypted secrets
//   - Per-endpoint three-state circuit breaker with doubling cool-down
//   - Ordered backoff schedule with jitter, then dead lettering
//   - Glob-pattern event subscriptions with optional JSON Schema validation
//   - Composable store pattern with multiple backends (Postgres and SQLite
//     via Bun, MongoDB, Redis, in-memory)
//
// Quick start:
//
//	c, err := courier.New(
//	    courier.WithStore(memory.New()),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	ep, secret, err := c.Endpoints().Create(ctx, endpoint.Input{
//	    URL:        "https://example.com/webhook",
//	    EventTypes: []string{"invoice.*"},
//	})
//	// secret is the plaintext signing secret; show it to the receiver once.
//
//	c.Start(ctx)
//	defer c.Stop(context.Background())
//
//	err = c.Publish(ctx, "invoice.created", "inv_123",
//	    json.RawMessage(`{"invoice_id":"inv_123","amount":100}`))
//
// Receivers verify deliveries by recomputing the HMAC over
// "{X-Webhook-Timestamp}.{body}" with the shared secret and comparing it to
// X-Webhook-Signature; the signature package provides Verify for Go
// receivers.
package courier
