// Package breaker implements a per-endpoint circuit breaker for webhook
// deliveries.
//
// The breaker keeps the delivery executor from hammering an endpoint that is
// clearly down: after a run of consecutive failures the circuit opens and
// deliveries to that endpoint are skipped until a cool-down elapses, after
// which a single trial delivery probes whether the endpoint has recovered.
//
// State is in-memory and per-process. Horizontally scaled workers each track
// failures independently, which dilutes the trip threshold across replicas;
// externalizing breaker state to a shared store is a deliberate non-feature
// for now.
package breaker

import (
	"sync"
	"time"
)

// State is the circuit state for an endpoint.
type State string

// Circuit states.
const (
	// StateClosed means the endpoint is healthy and deliveries proceed.
	StateClosed State = "closed"

	// StateOpen means deliveries to the endpoint are skipped until the
	// cool-down elapses.
	StateOpen State = "open"

	// StateHalfOpen means the cool-down has elapsed and exactly one trial
	// delivery is allowed through to probe the endpoint.
	StateHalfOpen State = "half_open"
)

// Defaults for breaker configuration.
const (
	// DefaultThreshold is the number of consecutive failures that trips the
	// circuit open.
	DefaultThreshold = 5

	// DefaultCoolDown is the initial open-circuit cool-down.
	DefaultCoolDown = 5 * time.Minute

	// DefaultMaxCoolDown caps the exponential cool-down growth.
	DefaultMaxCoolDown = 2 * time.Hour
)

// Config configures a Breaker.
type Config struct {
	// Threshold is the consecutive-failure count that opens the circuit.
	Threshold int

	// CoolDown is the initial open-circuit duration. It doubles each time a
	// trial delivery fails, up to MaxCoolDown, and resets on success.
	CoolDown time.Duration

	// MaxCoolDown caps the exponential cool-down growth.
	MaxCoolDown time.Duration
}

// DefaultConfig returns the default breaker configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:   DefaultThreshold,
		CoolDown:    DefaultCoolDown,
		MaxCoolDown: DefaultMaxCoolDown,
	}
}

// circuit is the per-endpoint breaker state.
type circuit struct {
	state               State
	consecutiveFailures int
	openedAt            time.Time
	nextTrialAt         time.Time
	coolDown            time.Duration // cool-down to apply on the next trip
	trialInFlight       bool
}

// Breaker tracks circuit state per endpoint ID.
// All methods are safe for concurrent use; the half-open trial slot is
// claimed atomically so concurrent callers cannot both hold it.
type Breaker struct {
	mu       sync.Mutex
	circuits map[string]*circuit
	config   Config

	now func() time.Time // overridable in tests
}

// New creates a Breaker. Zero config fields fall back to defaults.
func New(cfg Config) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultCoolDown
	}
	if cfg.MaxCoolDown <= 0 {
		cfg.MaxCoolDown = DefaultMaxCoolDown
	}
	return &Breaker{
		circuits: make(map[string]*circuit),
		config:   cfg,
		now:      time.Now,
	}
}

// Allow reports whether a delivery to the endpoint may proceed.
//
// Closed circuits always allow. Open circuits deny until the cool-down
// elapses, at which point the circuit moves to half-open and the first caller
// claims the single trial slot; everyone else keeps being denied until the
// trial resolves via RecordSuccess or RecordFailure.
func (b *Breaker) Allow(endpointID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpointID]
	if !ok {
		return true
	}

	switch c.state {
	case StateClosed:
		return true

	case StateOpen:
		if b.now().Before(c.nextTrialAt) {
			return false
		}
		// Cool-down elapsed: move to half-open and claim the trial slot for
		// this caller in the same critical section.
		c.state = StateHalfOpen
		c.trialInFlight = true
		return true

	case StateHalfOpen:
		if c.trialInFlight {
			return false
		}
		c.trialInFlight = true
		return true
	}

	return true
}

// CancelTrial releases the half-open trial slot without recording a result.
// A caller whose Allow claimed the trial but then skipped the attempt (no
// request was made) must cancel, or the slot stays claimed and no future
// Allow can ever probe the endpoint again. Safe to call in any state; outside
// a half-open trial it does nothing.
func (b *Breaker) CancelTrial(endpointID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpointID]
	if !ok {
		return
	}
	if c.state == StateHalfOpen {
		c.trialInFlight = false
	}
}

// RecordSuccess notes a successful delivery to the endpoint.
// A half-open trial success closes the circuit and resets all counters; in
// the closed state it just resets the consecutive-failure count.
func (b *Breaker) RecordSuccess(endpointID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpointID]
	if !ok {
		return
	}

	switch c.state {
	case StateHalfOpen:
		delete(b.circuits, endpointID)
	case StateClosed:
		c.consecutiveFailures = 0
	case StateOpen:
		// A success can land while open when a request that started before
		// the trip completes late. The circuit stays open until its trial.
	}
}

// RecordFailure notes a failed delivery to the endpoint and reports whether
// this failure opened the circuit. The breaker does not distinguish failure
// causes; timeouts, connection errors, and 5xx responses all count
// identically.
func (b *Breaker) RecordFailure(endpointID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpointID]
	if !ok {
		c = &circuit{
			state:    StateClosed,
			coolDown: b.config.CoolDown,
		}
		b.circuits[endpointID] = c
	}

	switch c.state {
	case StateClosed:
		c.consecutiveFailures++
		if c.consecutiveFailures >= b.config.Threshold {
			b.trip(c)
			return true
		}

	case StateHalfOpen:
		// Trial failed: reopen with a longer cool-down.
		c.coolDown = min(c.coolDown*2, b.config.MaxCoolDown)
		b.trip(c)
		return true

	case StateOpen:
		// Late failure from a request that started before the trip.
	}

	return false
}

// trip transitions a circuit to open using its current cool-down.
// Caller holds mu.
func (b *Breaker) trip(c *circuit) {
	now := b.now()
	c.state = StateOpen
	c.openedAt = now
	c.nextTrialAt = now.Add(c.coolDown)
	c.consecutiveFailures = 0
	c.trialInFlight = false
}

// Snapshot is a read-only view of an endpoint's circuit.
type Snapshot struct {
	State               State
	ConsecutiveFailures int
	OpenedAt            *time.Time
	NextTrialAt         *time.Time
}

// Snapshot returns the current circuit state for an endpoint without
// mutating it. Endpoints with no recorded failures report a closed circuit.
func (b *Breaker) Snapshot(endpointID string) Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[endpointID]
	if !ok {
		return Snapshot{State: StateClosed}
	}

	snap := Snapshot{
		State:               c.state,
		ConsecutiveFailures: c.consecutiveFailures,
	}
	if c.state != StateClosed {
		openedAt := c.openedAt
		nextTrialAt := c.nextTrialAt
		snap.OpenedAt = &openedAt
		snap.NextTrialAt = &nextTrialAt
	}
	return snap
}

// Reset clears the circuit state for an endpoint, returning it to closed.
func (b *Breaker) Reset(endpointID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.circuits, endpointID)
}
