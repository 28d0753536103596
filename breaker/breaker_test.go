package breaker

import (
	"sync"
	"testing"
	"time"
)

func newTestBreaker(cfg Config) (*Breaker, func(time.Duration)) {
	b := New(cfg)
	current := time.Unix(1700000000, 0)
	b.now = func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }
	return b, advance
}

func recordFailures(b *Breaker, endpointID string, n int) {
	for range n {
		b.RecordFailure(endpointID)
	}
}

func TestClosedAllowsDeliveries(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	if !b.Allow("ep-1") {
		t.Error("unknown endpoint should be allowed")
	}

	b.RecordFailure("ep-1")
	if !b.Allow("ep-1") {
		t.Error("endpoint below threshold should be allowed")
	}
}

func TestTripsAfterThresholdFailures(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	recordFailures(b, "ep-1", DefaultThreshold-1)
	if !b.Allow("ep-1") {
		t.Fatal("circuit tripped one failure early")
	}

	if !b.RecordFailure("ep-1") {
		t.Error("the tripping failure should report the circuit opened")
	}
	if b.Allow("ep-1") {
		t.Error("circuit should be open after threshold consecutive failures")
	}
	if got := b.Snapshot("ep-1").State; got != StateOpen {
		t.Errorf("state = %q, want %q", got, StateOpen)
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	recordFailures(b, "ep-1", DefaultThreshold-1)
	b.RecordSuccess("ep-1")
	recordFailures(b, "ep-1", DefaultThreshold-1)

	if b.Allow("ep-1") != true {
		t.Error("success should have reset the consecutive failure count")
	}
}

func TestFailuresAreTrackedPerEndpoint(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	recordFailures(b, "ep-1", DefaultThreshold)

	if b.Allow("ep-1") {
		t.Error("ep-1 should be open")
	}
	if !b.Allow("ep-2") {
		t.Error("ep-2 should be unaffected by ep-1 failures")
	}
}

func TestHalfOpenSingleTrial(t *testing.T) {
	b, advance := newTestBreaker(DefaultConfig())

	recordFailures(b, "ep-1", DefaultThreshold)
	advance(DefaultCoolDown + time.Second)

	if !b.Allow("ep-1") {
		t.Fatal("first caller after cool-down should get the trial slot")
	}
	if b.Allow("ep-1") {
		t.Error("second caller should be denied while the trial is in flight")
	}

	b.RecordSuccess("ep-1")

	snap := b.Snapshot("ep-1")
	if snap.State != StateClosed {
		t.Errorf("state after trial success = %q, want %q", snap.State, StateClosed)
	}
	if snap.ConsecutiveFailures != 0 {
		t.Errorf("consecutiveFailures = %d, want 0", snap.ConsecutiveFailures)
	}
	if !b.Allow("ep-1") {
		t.Error("closed circuit should allow deliveries")
	}
}

func TestCancelTrialFreesSlot(t *testing.T) {
	b, advance := newTestBreaker(DefaultConfig())

	recordFailures(b, "ep-1", DefaultThreshold)
	advance(DefaultCoolDown + time.Second)

	if !b.Allow("ep-1") {
		t.Fatal("first caller after cool-down should get the trial slot")
	}

	// The claimed attempt never ran; without a cancel the slot would be
	// held forever and the circuit could never recover.
	b.CancelTrial("ep-1")

	if !b.Allow("ep-1") {
		t.Fatal("cancelled trial slot should be claimable again")
	}
	b.RecordSuccess("ep-1")
	if got := b.Snapshot("ep-1").State; got != StateClosed {
		t.Errorf("state = %q, want %q", got, StateClosed)
	}
}

func TestCancelTrialOutsideHalfOpenIsNoop(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	// Unknown endpoint and closed circuit: nothing to release.
	b.CancelTrial("ep-1")
	b.RecordFailure("ep-1")
	b.CancelTrial("ep-1")
	if !b.Allow("ep-1") {
		t.Error("closed circuit should still allow after CancelTrial")
	}

	// Open circuit, cool-down not elapsed: still denied afterwards.
	recordFailures(b, "ep-1", DefaultThreshold)
	b.CancelTrial("ep-1")
	if b.Allow("ep-1") {
		t.Error("open circuit should stay open after CancelTrial")
	}
}

func TestTrialFailureDoublesCoolDown(t *testing.T) {
	cfg := Config{Threshold: 5, CoolDown: 5 * time.Minute, MaxCoolDown: 2 * time.Hour}
	b, advance := newTestBreaker(cfg)

	recordFailures(b, "ep-1", cfg.Threshold)

	// First trial fails after the initial 5m cool-down.
	advance(5*time.Minute + time.Second)
	if !b.Allow("ep-1") {
		t.Fatal("expected trial slot after first cool-down")
	}
	b.RecordFailure("ep-1")

	// Cool-down doubled to 10m: 9m later the circuit must still be open.
	advance(9 * time.Minute)
	if b.Allow("ep-1") {
		t.Error("circuit reopened before the doubled cool-down elapsed")
	}

	advance(1*time.Minute + time.Second)
	if !b.Allow("ep-1") {
		t.Error("expected trial slot after the doubled cool-down")
	}
}

func TestCoolDownCapped(t *testing.T) {
	cfg := Config{Threshold: 1, CoolDown: time.Hour, MaxCoolDown: 2 * time.Hour}
	b, advance := newTestBreaker(cfg)

	b.RecordFailure("ep-1") // trip, 1h cool-down

	// Fail three consecutive trials: 1h → 2h → capped at 2h.
	for range 3 {
		advance(2*time.Hour + time.Second)
		if !b.Allow("ep-1") {
			t.Fatal("expected trial slot")
		}
		b.RecordFailure("ep-1")
	}

	snap := b.Snapshot("ep-1")
	got := snap.NextTrialAt.Sub(*snap.OpenedAt)
	if got != 2*time.Hour {
		t.Errorf("cool-down = %v, want capped 2h", got)
	}
}

func TestTrialSuccessResetsCoolDown(t *testing.T) {
	cfg := Config{Threshold: 1, CoolDown: 5 * time.Minute, MaxCoolDown: 2 * time.Hour}
	b, advance := newTestBreaker(cfg)

	// Trip, fail a trial (cool-down doubles to 10m), then recover.
	b.RecordFailure("ep-1")
	advance(5*time.Minute + time.Second)
	b.Allow("ep-1")
	b.RecordFailure("ep-1")
	advance(10*time.Minute + time.Second)
	b.Allow("ep-1")
	b.RecordSuccess("ep-1")

	// Next trip starts from the base cool-down again.
	b.RecordFailure("ep-1")
	snap := b.Snapshot("ep-1")
	got := snap.NextTrialAt.Sub(*snap.OpenedAt)
	if got != 5*time.Minute {
		t.Errorf("cool-down after recovery = %v, want base 5m", got)
	}
}

func TestLateResultsWhileOpenAreIgnored(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	recordFailures(b, "ep-1", DefaultThreshold)
	before := b.Snapshot("ep-1")

	// Results from requests that started before the trip.
	b.RecordFailure("ep-1")
	b.RecordSuccess("ep-1")

	after := b.Snapshot("ep-1")
	if after.State != StateOpen {
		t.Errorf("state = %q, want still open", after.State)
	}
	if !after.NextTrialAt.Equal(*before.NextTrialAt) {
		t.Error("late results must not move the trial time")
	}
}

func TestReset(t *testing.T) {
	b, _ := newTestBreaker(DefaultConfig())

	recordFailures(b, "ep-1", DefaultThreshold)
	b.Reset("ep-1")

	if !b.Allow("ep-1") {
		t.Error("reset circuit should allow deliveries")
	}
	if got := b.Snapshot("ep-1").State; got != StateClosed {
		t.Errorf("state = %q, want %q", got, StateClosed)
	}
}

func TestConcurrentTrialClaim(t *testing.T) {
	b, advance := newTestBreaker(DefaultConfig())

	recordFailures(b, "ep-1", DefaultThreshold)
	advance(DefaultCoolDown + time.Second)

	const callers = 32
	var wg sync.WaitGroup
	allowed := make(chan bool, callers)

	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			allowed <- b.Allow("ep-1")
		}()
	}
	wg.Wait()
	close(allowed)

	count := 0
	for ok := range allowed {
		if ok {
			count++
		}
	}
	if count != 1 {
		t.Errorf("%d concurrent callers claimed the trial slot, want exactly 1", count)
	}
}
