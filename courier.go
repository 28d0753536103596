package courier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/dlq"
	"github.com/xraph/courier/endpoint"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/internal/entity"
	"github.com/xraph/courier/observability"
	"github.com/xraph/courier/ratelimit"
	"github.com/xraph/courier/secrets"
	"github.com/xraph/courier/store"
)

// Courier is the root webhook delivery engine.
type Courier struct {
	config       Config
	store        store.Store
	registry     *catalog.Registry
	validator    *catalog.Validator
	endpointSvc  *endpoint.Service
	dlqSvc       *dlq.Service
	executor     *delivery.Executor
	engine       *delivery.Engine
	breaker      *breaker.Breaker
	secretCache  *secrets.Cache
	limiter      *ratelimit.Limiter
	cipher       secrets.Cipher
	urlValidator delivery.URLValidator
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	logger       *slog.Logger
}

// New creates a new Courier with the given options.
func New(opts ...Option) (*Courier, error) {
	c := &Courier{
		config:   DefaultConfig(),
		registry: catalog.NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if c.store == nil {
		return nil, ErrNoStore
	}
	c.wireServices()
	return c, nil
}

// wireServices initializes the internal services after options have been applied.
func (c *Courier) wireServices() {
	c.validator = catalog.NewValidator()
	c.endpointSvc = endpoint.NewService(c.store, c.cipher, c.logger)
	c.dlqSvc = dlq.NewService(c.store, c.logger)

	c.breaker = breaker.New(c.config.Breaker)
	c.secretCache = secrets.NewCache(c.config.SecretCacheTTL, c.config.SecretCacheSize)
	c.limiter = ratelimit.New()

	var decrypter secrets.Decrypter
	if c.cipher != nil {
		decrypter = c.cipher
	}

	c.executor = delivery.NewExecutor(c.store, delivery.Deps{
		Breaker:      c.breaker,
		SecretCache:  c.secretCache,
		Decrypter:    decrypter,
		URLValidator: c.urlValidator,
		RateLimiter:  c.limiter,
		DLQ:          c.dlqSvc,
	}, delivery.ExecutorConfig{
		MaxRetries:     c.config.MaxRetries,
		RetryDelays:    c.config.RetryDelays,
		RequestTimeout: c.config.RequestTimeout,
		UserAgent:      c.config.UserAgent,
		Metrics:        c.metrics,
		Tracer:         c.tracer,
	}, c.logger)

	c.engine = delivery.NewEngine(c.store, c.executor, delivery.EngineConfig{
		Concurrency:  c.config.Concurrency,
		PollInterval: c.config.PollInterval,
		BatchSize:    c.config.BatchSize,
	}, c.logger)
}

// Migrate runs the store's schema migrations.
func (c *Courier) Migrate(ctx context.Context) error {
	if err := c.store.Migrate(ctx); err != nil {
		return fmt.Errorf("%w: %s", ErrMigrationFailed, err.Error())
	}
	return nil
}

// Start begins the delivery engine.
func (c *Courier) Start(ctx context.Context) {
	c.engine.Start(ctx)
}

// Stop gracefully shuts down the delivery engine, waiting up to the
// configured shutdown timeout for in-flight deliveries.
func (c *Courier) Stop(ctx context.Context) {
	if c.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.ShutdownTimeout)
		defer cancel()
	}
	c.engine.Stop(ctx)
}

// Publish fans an event out to every enabled endpoint subscribed to its
// type, enqueueing one delivery per endpoint.
//
// The critical path:
//  1. Validate the event type against the registry. An empty registry
//     accepts any type; a populated one rejects unknown and deprecated
//     types.
//  2. Validate the payload against the type's JSON Schema, if one is set.
//  3. Resolve enabled endpoints whose subscriptions match the type.
//  4. Enqueue one pending delivery per matched endpoint.
func (c *Courier) Publish(ctx context.Context, eventType, resourceID string, payload json.RawMessage) error {
	if !c.registry.Empty() {
		def, ok := c.registry.Get(eventType)
		if !ok {
			return fmt.Errorf("%w: %s", ErrEventTypeNotFound, eventType)
		}
		if def.Deprecated {
			return fmt.Errorf("%w: %s", ErrEventTypeDeprecated, eventType)
		}
		if def.Schema != nil {
			var data any
			if err := json.Unmarshal(payload, &data); err != nil {
				return fmt.Errorf("%w: invalid JSON payload: %s", ErrPayloadValidationFailed, err.Error())
			}
			if err := c.validator.Validate(def.Schema, data); err != nil {
				return fmt.Errorf("%w: %s", ErrPayloadValidationFailed, err.Error())
			}
		}
	}

	endpoints, err := c.store.Resolve(ctx, eventType)
	if err != nil {
		return fmt.Errorf("courier: resolve endpoints: %w", err)
	}

	if len(endpoints) == 0 {
		c.logger.DebugContext(ctx, "no endpoints subscribed", "type", eventType)
		return nil
	}

	deliveries := make([]*delivery.Delivery, 0, len(endpoints))
	for _, ep := range endpoints {
		d := &delivery.Delivery{
			Entity:     entity.New(),
			ID:         id.NewDeliveryID(),
			EndpointID: ep.ID,
			EventType:  eventType,
			ResourceID: resourceID,
			Payload:    payload,
			Status:     delivery.StatusPending,
		}
		deliveries = append(deliveries, d)
	}

	if err := c.store.EnqueueBatch(ctx, deliveries); err != nil {
		return fmt.Errorf("courier: enqueue deliveries: %w", err)
	}

	if c.metrics != nil {
		c.metrics.PendingDeliveries.Add(float64(len(deliveries)))
	}

	c.logger.DebugContext(ctx, "event published",
		"type", eventType,
		"resource_id", resourceID,
		"endpoints", len(endpoints),
	)

	return nil
}

// Deliveries returns the delivery history for an endpoint.
func (c *Courier) Deliveries(ctx context.Context, epID id.ID, opts delivery.ListOpts) ([]*delivery.Delivery, error) {
	return c.store.ListByEndpoint(ctx, epID, opts)
}

// BreakerState returns the circuit state snapshot for an endpoint.
func (c *Courier) BreakerState(epID id.ID) breaker.Snapshot {
	return c.breaker.Snapshot(epID.String())
}

// Endpoints returns the endpoint management service.
func (c *Courier) Endpoints() *endpoint.Service {
	return c.endpointSvc
}

// Registry returns the event type registry.
func (c *Courier) Registry() *catalog.Registry {
	return c.registry
}

// Store returns the underlying store.
func (c *Courier) Store() store.Store {
	return c.store
}

// DLQ returns the DLQ service.
func (c *Courier) DLQ() *dlq.Service {
	return c.dlqSvc
}

// SecretCache returns the decrypted signing secret cache.
func (c *Courier) SecretCache() *secrets.Cache {
	return c.secretCache
}
