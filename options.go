package courier

import (
	"log/slog"
	"time"

	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/catalog"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/observability"
	"github.com/xraph/courier/secrets"
	"github.com/xraph/courier/store"
)

// Option configures a Courier instance.
type Option func(*Courier) error

// WithStore sets the persistence backend for the Courier instance.
func WithStore(s store.Store) Option {
	return func(c *Courier) error {
		c.store = s
		return nil
	}
}

// WithLogger sets the structured logger for the Courier instance.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Courier) error {
		c.logger = logger
		return nil
	}
}

// WithEventType registers a publishable event type definition. Registering
// at least one definition switches Publish to a closed world: unknown event
// types are rejected.
func WithEventType(def catalog.Definition) Option {
	return func(c *Courier) error {
		c.registry.Register(def)
		return nil
	}
}

// WithSecretCipher sets the cipher used to encrypt signing secrets at rest
// and decrypt them at delivery time. Without a cipher, secrets are stored
// in plaintext.
func WithSecretCipher(cipher secrets.Cipher) Option {
	return func(c *Courier) error {
		c.cipher = cipher
		return nil
	}
}

// WithURLValidator sets the delivery URL validator (SSRF guard). Without
// one, every URL is allowed.
func WithURLValidator(v delivery.URLValidator) Option {
	return func(c *Courier) error {
		c.urlValidator = v
		return nil
	}
}

// WithMetrics sets the metric instruments recorded by the delivery pipeline.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Courier) error {
		c.metrics = m
		return nil
	}
}

// WithTracer sets the tracer used to span each delivery attempt.
func WithTracer(tr *observability.Tracer) Option {
	return func(c *Courier) error {
		c.tracer = tr
		return nil
	}
}

// WithConcurrency sets the number of delivery worker goroutines.
func WithConcurrency(n int) Option {
	return func(c *Courier) error {
		c.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the delivery engine checks for due deliveries.
func WithPollInterval(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.PollInterval = d
		return nil
	}
}

// WithBatchSize sets the maximum number of deliveries dequeued per poll cycle.
func WithBatchSize(n int) Option {
	return func(c *Courier) error {
		c.config.BatchSize = n
		return nil
	}
}

// WithRequestTimeout sets the HTTP timeout per delivery attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.RequestTimeout = d
		return nil
	}
}

// WithMaxRetries sets the number of retries after which a delivery is dead
// lettered.
func WithMaxRetries(n int) Option {
	return func(c *Courier) error {
		c.config.MaxRetries = n
		return nil
	}
}

// WithRetryDelays sets the backoff intervals between retry attempts.
func WithRetryDelays(delays []time.Duration) Option {
	return func(c *Courier) error {
		c.config.RetryDelays = delays
		return nil
	}
}

// WithShutdownTimeout sets the maximum time to wait for in-flight deliveries
// on shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *Courier) error {
		c.config.ShutdownTimeout = d
		return nil
	}
}

// WithUserAgent sets the User-Agent header sent with each delivery.
func WithUserAgent(ua string) Option {
	return func(c *Courier) error {
		c.config.UserAgent = ua
		return nil
	}
}

// WithSecretCache sets the TTL and size bound of the signing secret cache.
func WithSecretCache(ttl time.Duration, maxSize int) Option {
	return func(c *Courier) error {
		c.config.SecretCacheTTL = ttl
		c.config.SecretCacheSize = maxSize
		return nil
	}
}

// WithBreakerConfig sets the per-endpoint circuit breaker configuration.
func WithBreakerConfig(cfg breaker.Config) Option {
	return func(c *Courier) error {
		c.config.Breaker = cfg
		return nil
	}
}
