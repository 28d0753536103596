package courier

import (
	"time"

	"github.com/xraph/courier/breaker"
	"github.com/xraph/courier/delivery"
	"github.com/xraph/courier/secrets"
)

// Config holds the configuration for a Courier instance.
type Config struct {
	// Concurrency is the number of delivery worker goroutines.
	Concurrency int

	// PollInterval is how often the delivery engine checks for due deliveries.
	PollInterval time.Duration

	// BatchSize is the maximum number of deliveries dequeued per poll cycle.
	BatchSize int

	// RequestTimeout is the HTTP timeout per delivery attempt.
	RequestTimeout time.Duration

	// MaxRetries is the number of retries after which a delivery is dead
	// lettered.
	MaxRetries int

	// RetryDelays defines the backoff intervals between retry attempts.
	// Attempts beyond the schedule reuse the last entry.
	RetryDelays []time.Duration

	// ShutdownTimeout is the maximum time to wait for in-flight deliveries
	// on shutdown.
	ShutdownTimeout time.Duration

	// UserAgent is the User-Agent header sent with each delivery.
	UserAgent string

	// SecretCacheTTL is how long a decrypted signing secret stays cached.
	SecretCacheTTL time.Duration

	// SecretCacheSize bounds the number of cached signing secrets.
	SecretCacheSize int

	// Breaker configures the per-endpoint circuit breaker.
	Breaker breaker.Config
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		BatchSize:       50,
		RequestTimeout:  30 * time.Second,
		MaxRetries:      delivery.DefaultMaxRetries,
		RetryDelays:     delivery.DefaultRetryDelays,
		ShutdownTimeout: 30 * time.Second,
		UserAgent:       delivery.DefaultUserAgent,
		SecretCacheTTL:  secrets.DefaultCacheTTL,
		SecretCacheSize: secrets.DefaultCacheSize,
		Breaker:         breaker.DefaultConfig(),
	}
}
