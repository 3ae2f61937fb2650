package breaker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Phase is the breaker's current admission policy.
type Phase string

const (
	// PhaseClosed admits all calls.
	PhaseClosed Phase = "closed"

	// PhaseOpen rejects all calls until the open duration elapses.
	PhaseOpen Phase = "open"

	// PhaseHalfOpen admits exactly one probe call at a time.
	PhaseHalfOpen Phase = "half-open"
)

// Config tunes the breaker's state machine.
type Config struct {
	// FailureThreshold is the number of consecutive failures that trips the
	// breaker from closed to open.
	FailureThreshold int

	// OpenDuration is how long the breaker stays open before admitting a
	// recovery probe.
	OpenDuration time.Duration

	// HalfOpenSuccessesToClose is the number of consecutive probe successes
	// required to close the breaker again.
	HalfOpenSuccessesToClose int
}

// DefaultConfig returns the breaker tuning used when configuration leaves a
// field unset.
func DefaultConfig() Config {
	return Config{
		FailureThreshold:         5,
		OpenDuration:             30 * time.Second,
		HalfOpenSuccessesToClose: 2,
	}
}

// withDefaults fills unset fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = d.FailureThreshold
	}
	if c.OpenDuration <= 0 {
		c.OpenDuration = d.OpenDuration
	}
	if c.HalfOpenSuccessesToClose <= 0 {
		c.HalfOpenSuccessesToClose = d.HalfOpenSuccessesToClose
	}
	return c
}

// OpenError is returned by Execute when the breaker rejects a call without
// running the unit of work.
type OpenError struct {
	// Name is the breaker's name (the backend role it guards).
	Name string

	// RetryAfter is how long until the breaker will admit a probe.
	// Zero when a probe is already in flight.
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *OpenError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("circuit breaker %q is open (retry after %s)", e.Name, e.RetryAfter)
	}
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// HealthInfo is a consistent, read-only snapshot of the breaker state.
type HealthInfo struct {
	Phase               Phase
	ConsecutiveFailures int
	LastFailureTime     time.Time
	ProbeInFlight       bool
	HalfOpenSuccesses   int
}

// Breaker is a three-state circuit breaker guarding one backend role.
//
// All state transitions happen under a single mutex; the critical section is
// only the state read/transition, never the guarded call itself. Breakers are
// explicit constructed values owned by the gateway; there is no package-level
// registry.
type Breaker struct {
	name   string
	config Config
	logger *slog.Logger

	// now is the clock, injectable for tests.
	now func() time.Time

	// onTransition, when set, observes every phase change.
	onTransition func(name string, from, to Phase)

	mu                  sync.Mutex
	phase               Phase
	consecutiveFailures int
	lastFailureTime     time.Time
	probeInFlight       bool
	halfOpenSuccesses   int
}

// Option customizes a Breaker.
type Option func(*Breaker)

// WithClock injects the breaker's time source. Used by tests to drive the
// open-duration clock deterministically.
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) { b.now = now }
}

// WithTransitionHook registers an observer for phase changes. The hook runs
// inside the breaker's critical section and must not block.
func WithTransitionHook(hook func(name string, from, to Phase)) Option {
	return func(b *Breaker) { b.onTransition = hook }
}

// New creates a breaker in the closed phase.
func New(name string, config Config, opts ...Option) *Breaker {
	b := &Breaker{
		name:   name,
		config: config.withDefaults(),
		logger: slog.Default().With("component", "breaker", "breaker", name),
		now:    time.Now,
		phase:  PhaseClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Execute runs fn under the breaker's admission policy. It returns fn's
// error on failure, or an *OpenError when the breaker rejects the call
// without running fn. Safe for concurrent use.
func (b *Breaker) Execute(ctx context.Context, label string, fn func(context.Context) error) error {
	probe, rejectErr := b.admit()
	if rejectErr != nil {
		b.logger.Debug("call rejected", "label", label, "error", rejectErr)
		return rejectErr
	}

	err := fn(ctx)
	b.record(probe, err, label)
	return err
}

// admit decides whether a call may proceed. It returns whether the admitted
// call is a half-open probe, or the rejection error.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.phase {
	case PhaseClosed:
		return false, nil

	case PhaseOpen:
		elapsed := b.now().Sub(b.lastFailureTime)
		if elapsed < b.config.OpenDuration {
			return false, &OpenError{
				Name:       b.name,
				RetryAfter: b.config.OpenDuration - elapsed,
			}
		}
		// Open duration elapsed: this call becomes the recovery probe.
		b.transition(PhaseHalfOpen)
		b.probeInFlight = true
		b.halfOpenSuccesses = 0
		return true, nil

	case PhaseHalfOpen:
		if b.probeInFlight {
			// Only one probe at a time; concurrent arrivals are rejected
			// as if the breaker were open.
			return false, &OpenError{Name: b.name}
		}
		b.probeInFlight = true
		return true, nil
	}

	return false, &OpenError{Name: b.name}
}

// record applies the outcome of an admitted call to the state machine.
func (b *Breaker) record(probe bool, err error, label string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probeInFlight = false
		if b.phase != PhaseHalfOpen {
			// An administrative reset raced the probe; its outcome no
			// longer applies.
			return
		}
		if err != nil {
			b.consecutiveFailures++
			b.lastFailureTime = b.now()
			b.halfOpenSuccesses = 0
			b.transition(PhaseOpen)
			b.logger.Warn("probe failed, reopening", "label", label, "error", err)
			return
		}
		b.halfOpenSuccesses++
		if b.halfOpenSuccesses >= b.config.HalfOpenSuccessesToClose {
			b.consecutiveFailures = 0
			b.halfOpenSuccesses = 0
			b.transition(PhaseClosed)
			b.logger.Info("breaker recovered", "label", label)
		}
		return
	}

	// Non-probe outcomes only drive the closed-phase counters. A call that
	// was admitted while closed but finished after the phase changed must
	// not disturb the recovery protocol.
	if b.phase != PhaseClosed {
		return
	}

	if err == nil {
		b.consecutiveFailures = 0
		return
	}

	b.consecutiveFailures++
	b.lastFailureTime = b.now()
	if b.consecutiveFailures >= b.config.FailureThreshold {
		b.transition(PhaseOpen)
		b.logger.Warn("failure threshold reached, opening",
			"label", label,
			"consecutive_failures", b.consecutiveFailures,
			"open_duration", b.config.OpenDuration,
		)
	}
}

// transition changes phase and notifies the hook. Caller holds b.mu.
func (b *Breaker) transition(to Phase) {
	from := b.phase
	if from == to {
		return
	}
	b.phase = to
	if b.onTransition != nil {
		b.onTransition(b.name, from, to)
	}
}

// Reset forces the breaker closed with zero counters, regardless of prior
// state. Administrative operation for recovery tooling and tests.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.transition(PhaseClosed)
	b.consecutiveFailures = 0
	b.halfOpenSuccesses = 0
	b.probeInFlight = false
	b.lastFailureTime = time.Time{}
}

// Health returns a consistent snapshot of the breaker state. It never blocks
// on an in-flight probe: the probe runs outside the critical section.
func (b *Breaker) Health() HealthInfo {
	b.mu.Lock()
	defer b.mu.Unlock()

	return HealthInfo{
		Phase:               b.phase,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailureTime:     b.lastFailureTime,
		ProbeInFlight:       b.probeInFlight,
		HalfOpenSuccesses:   b.halfOpenSuccesses,
	}
}

// Name returns the breaker's name.
func (b *Breaker) Name() string {
	return b.name
}
