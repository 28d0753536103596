package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/endpoint"
	"github.com/xraph/courier/id"
	"github.com/xraph/courier/observability"
	"github.com/xraph/courier/ratelimit"
	"github.com/xraph/courier/secrets"
)

// ExecutorStore is the persistence surface the executor needs: reading the
// target endpoint and writing delivery attempt results.
type ExecutorStore interface {
	GetEndpoint(ctx context.Context, epID id.ID) (*endpoint.Endpoint, error)
	UpdateDelivery(ctx context.Context, d *Delivery) error
}

// DLQPusher pushes permanently failed deliveries to the dead letter queue.
type DLQPusher interface {
	PushFailed(ctx context.Context, d *Delivery, ep *endpoint.Endpoint, lastError string, lastStatusCode int) error
}

// ExecutorConfig holds executor configuration.
type ExecutorConfig struct {
	MaxRetries     int
	RetryDelays    []time.Duration
	RequestTimeout time.Duration
	UserAgent      string
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
}

// Deps are the executor's collaborators. Breaker is required; the rest may
// be nil: a nil Decrypter means secrets are stored in plaintext and the cache
// is bypassed, a nil URLValidator allows every URL, a nil RateLimiter
// disables per-endpoint throttling, and a nil DLQ drops terminal failures
// after persisting them.
type Deps struct {
	Breaker      *breaker.Breaker
	SecretCache  *secrets.Cache
	Decrypter    secrets.Decrypter
	URLValidator URLValidator
	RateLimiter  *ratelimit.Limiter
	DLQ          DLQPusher
}

// Executor performs one webhook delivery attempt at a time.
//
// Deliver is the only entry point and never propagates a failure to its
// caller: every failure path is absorbed into the delivery record plus a
// circuit breaker signal, so a scheduler loop calling it is never broken by
// an individual delivery.
//
// Executors are safe for concurrent use; one Deliver call runs per in-flight
// delivery with no internal parallelism.
type Executor struct {
	store   ExecutorStore
	sender  *Sender
	backoff *Backoff
	deps    Deps
	config  ExecutorConfig
	logger  *slog.Logger
}

// NewExecutor creates a delivery executor.
func NewExecutor(store ExecutorStore, deps Deps, cfg ExecutorConfig, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = DefaultRetryDelays
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if deps.Breaker == nil {
		deps.Breaker = breaker.New(breaker.DefaultConfig())
	}
	return &Executor{
		store:   store,
		sender:  NewSender(cfg.RequestTimeout, cfg.UserAgent),
		backoff: NewBackoff(cfg.RetryDelays),
		deps:    deps,
		config:  cfg,
		logger:  logger,
	}
}

// Deliver performs one delivery attempt, in order:
//
//  1. Circuit breaker gate. An open circuit returns immediately: no HTTP
//     call, no attempt increment, no persistence write; the delivery stays
//     exactly as the scheduler left it.
//  2. Claim the attempt: status delivering, attempts+1, persisted before the
//     network is touched so the counter reflects reality even if the process
//     crashes mid-delivery.
//  3. URL validation (SSRF guard). Failure is non-retryable.
//  4. Secret resolution through the cache. Decryption failure is retryable.
//  5. Sign and POST. 2xx is success; anything else, including transport
//     errors and timeouts, funnels into the backoff calculation.
//
// The return value reports whether an attempt was claimed. False means the
// delivery was skipped with its record untouched, so the scheduler should
// release its claim and re-present the delivery on a later poll.
func (x *Executor) Deliver(ctx context.Context, d *Delivery) bool {
	if d.Terminal() {
		return false
	}

	epID := d.EndpointID.String()

	if !x.deps.Breaker.Allow(epID) {
		if x.config.Metrics != nil {
			x.config.Metrics.BreakerSkips.Inc()
		}
		x.logger.DebugContext(ctx, "delivery skipped, circuit open",
			"delivery_id", d.ID, "endpoint_id", d.EndpointID)
		return false
	}

	ep, err := x.store.GetEndpoint(ctx, d.EndpointID)
	if err != nil {
		// Infrastructure failure, not a delivery failure: leave the record
		// untouched for a future scheduler pass. Allow may have claimed the
		// half-open trial slot, and no request will resolve it.
		x.deps.Breaker.CancelTrial(epID)
		x.logger.ErrorContext(ctx, "get endpoint failed",
			"delivery_id", d.ID, "endpoint_id", d.EndpointID, "error", err)
		return false
	}

	if x.deps.RateLimiter != nil && !x.deps.RateLimiter.Allow(epID, ep.RateLimit) {
		// Internal backpressure is not a delivery failure and does not count
		// an attempt.
		x.deps.Breaker.CancelTrial(epID)
		x.logger.DebugContext(ctx, "delivery deferred, endpoint rate limited",
			"delivery_id", d.ID, "endpoint_id", d.EndpointID)
		return false
	}

	var span trace.Span
	if x.config.Tracer != nil {
		ctx, span = x.config.Tracer.StartDeliverySpan(ctx, d.ID.String(), epID, d.EventType)
	}

	now := time.Now().UTC()
	prevStatus, prevAttempts, prevLastAttempt := d.Status, d.Attempts, d.LastAttemptAt

	d.Status = StatusDelivering
	d.LastAttemptAt = &now
	d.Attempts++
	d.Touch()
	if err := x.store.UpdateDelivery(ctx, d); err != nil {
		// Without a persisted attempt counter the attempt must not run.
		// Roll the in-memory record back so the caller releases an
		// unmodified delivery.
		d.Status, d.Attempts, d.LastAttemptAt = prevStatus, prevAttempts, prevLastAttempt
		x.deps.Breaker.CancelTrial(epID)
		x.logger.ErrorContext(ctx, "claim attempt failed",
			"delivery_id", d.ID, "error", err)
		if span != nil {
			x.config.Tracer.EndDeliverySpan(span, 0, 0, err.Error())
		}
		return false
	}

	if x.deps.URLValidator != nil {
		if verr := x.deps.URLValidator.Validate(ctx, ep.URL); verr != nil {
			x.failTerminal(ctx, d, ep, 0, "", "Invalid URL: "+verr.Error())
			x.recordFailure(ctx, epID)
			if span != nil {
				x.config.Tracer.EndDeliverySpan(span, 0, 0, d.ErrorMessage)
			}
			return true
		}
	}

	secret, serr := x.resolveSecret(ctx, ep)
	if serr != nil {
		x.handleFailure(ctx, d, ep, 0, "", "Secret decryption failed: "+serr.Error())
		x.recordFailure(ctx, epID)
		if span != nil {
			x.config.Tracer.EndDeliverySpan(span, 0, 0, d.ErrorMessage)
		}
		return true
	}

	result := x.sender.Send(ctx, ep, d, secret)
	latencySeconds := float64(result.LatencyMs) / 1000.0

	if result.Success() {
		succeededAt := time.Now().UTC()
		d.Status = StatusSucceeded
		d.SucceededAt = &succeededAt
		d.ResponseCode = result.StatusCode
		d.ResponseBody = Truncate(result.Response, MaxResponseBodyBytes)
		d.ErrorMessage = ""
		d.NextAttemptAt = nil
		d.Touch()
		x.persist(ctx, d)
		x.deps.Breaker.RecordSuccess(epID)

		if x.config.Metrics != nil {
			x.config.Metrics.RecordDelivery("succeeded", latencySeconds)
			x.config.Metrics.PendingDeliveries.Dec()
		}
		x.logger.DebugContext(ctx, "delivered",
			"delivery_id", d.ID, "status", result.StatusCode, "latency_ms", result.LatencyMs)
		if span != nil {
			x.config.Tracer.EndDeliverySpan(span, result.StatusCode, result.LatencyMs, "")
		}
		return true
	}

	errMsg := result.Error
	if errMsg == "" {
		errMsg = fmt.Sprintf("endpoint returned status %d", result.StatusCode)
	}
	x.handleFailure(ctx, d, ep, result.StatusCode, result.Response, errMsg)
	x.recordFailure(ctx, epID)

	if x.config.Metrics != nil {
		status := "retried"
		if d.NextAttemptAt == nil {
			status = "failed"
		}
		x.config.Metrics.RecordDelivery(status, latencySeconds)
	}
	if span != nil {
		x.config.Tracer.EndDeliverySpan(span, result.StatusCode, result.LatencyMs, d.ErrorMessage)
	}
	return true
}

// resolveSecret returns the plaintext signing secret for an endpoint.
// Without a decrypter the deployment stores secrets in plaintext, so the
// stored value is used as-is and the cache is bypassed.
func (x *Executor) resolveSecret(ctx context.Context, ep *endpoint.Endpoint) (string, error) {
	if x.deps.Decrypter == nil {
		return ep.Secret, nil
	}

	if x.deps.SecretCache != nil {
		if plaintext, ok := x.deps.SecretCache.Get(ep.Secret); ok {
			if x.config.Metrics != nil {
				x.config.Metrics.SecretCacheHits.Inc()
			}
			return plaintext, nil
		}
		if x.config.Metrics != nil {
			x.config.Metrics.SecretCacheMisses.Inc()
		}
	}

	plaintext, err := x.deps.Decrypter.Decrypt(ctx, ep.Secret)
	if err != nil {
		return "", err
	}

	if x.deps.SecretCache != nil {
		x.deps.SecretCache.Put(ep.Secret, plaintext)
	}
	return plaintext, nil
}

// handleFailure records a failed attempt: schedules a retry with backoff and
// jitter while attempts remain, and otherwise marks the delivery terminally
// failed and pushes it to the DLQ.
func (x *Executor) handleFailure(ctx context.Context, d *Delivery, ep *endpoint.Endpoint, statusCode int, responseBody, errMsg string) {
	if d.Attempts < x.config.MaxRetries {
		next := x.backoff.NextAttempt(time.Now().UTC(), d.Attempts)
		d.Status = StatusFailed
		d.ResponseCode = statusCode
		d.ResponseBody = Truncate(responseBody, MaxResponseBodyBytes)
		d.ErrorMessage = Truncate(errMsg, MaxErrorMessageBytes)
		d.NextAttemptAt = &next
		d.Touch()
		x.persist(ctx, d)

		x.logger.DebugContext(ctx, "retry scheduled",
			"delivery_id", d.ID, "attempt", d.Attempts, "next_at", next)
		return
	}

	exhausted := fmt.Sprintf("Max retries (%d) exceeded: %s", x.config.MaxRetries, errMsg)
	x.failTerminal(ctx, d, ep, statusCode, responseBody, exhausted)
}

// failTerminal marks a delivery permanently failed, persists it, and pushes
// it to the DLQ.
func (x *Executor) failTerminal(ctx context.Context, d *Delivery, ep *endpoint.Endpoint, statusCode int, responseBody, errMsg string) {
	d.Status = StatusFailed
	d.ResponseCode = statusCode
	d.ResponseBody = Truncate(responseBody, MaxResponseBodyBytes)
	d.ErrorMessage = Truncate(errMsg, MaxErrorMessageBytes)
	d.NextAttemptAt = nil
	d.Touch()
	x.persist(ctx, d)

	if x.deps.DLQ != nil {
		if dlqErr := x.deps.DLQ.PushFailed(ctx, d, ep, d.ErrorMessage, statusCode); dlqErr != nil {
			x.logger.ErrorContext(ctx, "push to DLQ failed",
				"delivery_id", d.ID, "error", dlqErr)
		} else if x.config.Metrics != nil {
			x.config.Metrics.DLQSize.Inc()
		}
	}
	if x.config.Metrics != nil {
		x.config.Metrics.PendingDeliveries.Dec()
	}

	x.logger.WarnContext(ctx, "delivery failed permanently",
		"delivery_id", d.ID, "endpoint_id", d.EndpointID, "error", d.ErrorMessage)
}

// recordFailure signals the breaker and logs when the circuit trips open.
func (x *Executor) recordFailure(ctx context.Context, epID string) {
	if !x.deps.Breaker.RecordFailure(epID) {
		return
	}
	if x.config.Metrics != nil {
		x.config.Metrics.BreakerOpens.Inc()
	}
	x.logger.WarnContext(ctx, "circuit opened", "endpoint_id", epID)
}

// persist writes the delivery record, logging rather than propagating errors.
func (x *Executor) persist(ctx context.Context, d *Delivery) {
	if err := x.store.UpdateDelivery(ctx, d); err != nil {
		x.logger.ErrorContext(ctx, "update delivery failed",
			"delivery_id", d.ID, "error", err)
	}
}
