package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var errBackend = errors.New("backend failure")

// testClock is a manually advanced time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(clock *testClock) *Breaker {
	return New("test", Config{
		FailureThreshold:         3,
		OpenDuration:             30 * time.Second,
		HalfOpenSuccessesToClose: 2,
	}, WithClock(clock.Now))
}

func failCall(ctx context.Context) error { return errBackend }
func okCall(ctx context.Context) error   { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Execute(ctx, "call", failCall); !errors.Is(err, errBackend) {
			t.Fatalf("call %d: expected backend error, got %v", i, err)
		}
	}

	health := b.Health()
	if health.Phase != PhaseOpen {
		t.Errorf("expected phase open after threshold, got %s", health.Phase)
	}
	if health.ConsecutiveFailures != 3 {
		t.Errorf("expected 3 consecutive failures, got %d", health.ConsecutiveFailures)
	}
}

func TestBreaker_OpenRejectsWithoutCallingBackend(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, "call", failCall)
	}

	var calls int32
	err := b.Execute(ctx, "call", func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	var openErr *OpenError
	if !errors.As(err, &openErr) {
		t.Fatalf("expected *OpenError, got %v", err)
	}
	if openErr.RetryAfter <= 0 {
		t.Errorf("expected positive retry-after, got %s", openErr.RetryAfter)
	}
	if atomic.LoadInt32(&calls) != 0 {
		t.Error("backend was called while breaker open")
	}
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	_ = b.Execute(ctx, "call", failCall)
	_ = b.Execute(ctx, "call", failCall)
	if err := b.Execute(ctx, "call", okCall); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	health := b.Health()
	if health.Phase != PhaseClosed {
		t.Errorf("expected closed, got %s", health.Phase)
	}
	if health.ConsecutiveFailures != 0 {
		t.Errorf("expected failure streak reset, got %d", health.ConsecutiveFailures)
	}
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, "call", failCall)
	}

	clock.Advance(30 * time.Second)

	// First probe is actually dispatched.
	var calls int32
	probe := func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	}

	if err := b.Execute(ctx, "probe", probe); err != nil {
		t.Fatalf("probe rejected: %v", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected probe to reach backend, calls=%d", got)
	}
	if phase := b.Health().Phase; phase != PhaseHalfOpen {
		t.Fatalf("expected half-open after one probe success, got %s", phase)
	}

	// Second consecutive probe success closes the breaker.
	if err := b.Execute(ctx, "probe", probe); err != nil {
		t.Fatalf("second probe rejected: %v", err)
	}

	health := b.Health()
	if health.Phase != PhaseClosed {
		t.Errorf("expected closed after recovery, got %s", health.Phase)
	}
	if health.ConsecutiveFailures != 0 {
		t.Errorf("expected zero failures after recovery, got %d", health.ConsecutiveFailures)
	}
}

func TestBreaker_ProbeFailureReopensAndResetsClock(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, "call", failCall)
	}

	clock.Advance(30 * time.Second)

	if err := b.Execute(ctx, "probe", failCall); !errors.Is(err, errBackend) {
		t.Fatalf("expected backend error from probe, got %v", err)
	}
	if phase := b.Health().Phase; phase != PhaseOpen {
		t.Fatalf("expected open after probe failure, got %s", phase)
	}

	// The open-duration clock restarted at the probe failure: a call
	// before it elapses is rejected, one after is admitted.
	clock.Advance(29 * time.Second)
	var openErr *OpenError
	if err := b.Execute(ctx, "call", okCall); !errors.As(err, &openErr) {
		t.Fatalf("expected rejection before open duration elapsed, got %v", err)
	}

	clock.Advance(1 * time.Second)
	if err := b.Execute(ctx, "call", okCall); err != nil {
		t.Fatalf("expected probe admission after clock reset elapsed, got %v", err)
	}
}

func TestBreaker_SingleProbeInFlight(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, "call", failCall)
	}
	clock.Advance(30 * time.Second)

	probeStarted := make(chan struct{})
	releaseProbe := make(chan struct{})
	probeDone := make(chan error, 1)

	go func() {
		probeDone <- b.Execute(ctx, "probe", func(ctx context.Context) error {
			close(probeStarted)
			<-releaseProbe
			return nil
		})
	}()

	<-probeStarted

	// A caller arriving while the probe is in flight is rejected as if
	// the breaker were open.
	var openErr *OpenError
	if err := b.Execute(ctx, "call", okCall); !errors.As(err, &openErr) {
		t.Fatalf("expected rejection while probe in flight, got %v", err)
	}

	close(releaseProbe)
	if err := <-probeDone; err != nil {
		t.Fatalf("probe failed: %v", err)
	}
}

func TestBreaker_ResetIdempotent(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	states := []func(){
		func() {}, // fresh
		func() { // open
			for i := 0; i < 3; i++ {
				_ = b.Execute(ctx, "call", failCall)
			}
		},
		func() { // half-open
			for i := 0; i < 3; i++ {
				_ = b.Execute(ctx, "call", failCall)
			}
			clock.Advance(30 * time.Second)
			_ = b.Execute(ctx, "probe", okCall)
		},
	}

	for i, setup := range states {
		setup()
		b.Reset()
		health := b.Health()
		if health.Phase != PhaseClosed {
			t.Errorf("state %d: expected closed after reset, got %s", i, health.Phase)
		}
		if health.ConsecutiveFailures != 0 {
			t.Errorf("state %d: expected zero failures after reset, got %d", i, health.ConsecutiveFailures)
		}
		if health.ProbeInFlight {
			t.Errorf("state %d: expected no probe in flight after reset", i)
		}
	}
}

func TestBreaker_ConcurrentFailuresOpenOnce(t *testing.T) {
	clock := newTestClock()
	var transitions int32
	b := New("test", Config{
		FailureThreshold:         3,
		OpenDuration:             30 * time.Second,
		HalfOpenSuccessesToClose: 2,
	}, WithClock(clock.Now), WithTransitionHook(func(_ string, _, to Phase) {
		if to == PhaseOpen {
			atomic.AddInt32(&transitions, 1)
		}
	}))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = b.Execute(context.Background(), "call", failCall)
		}()
	}
	wg.Wait()

	if got := atomic.LoadInt32(&transitions); got != 1 {
		t.Errorf("expected exactly one open transition, got %d", got)
	}
}

func TestBreaker_HealthDoesNotBlockOnProbe(t *testing.T) {
	clock := newTestClock()
	b := newTestBreaker(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = b.Execute(ctx, "call", failCall)
	}
	clock.Advance(30 * time.Second)

	probeStarted := make(chan struct{})
	releaseProbe := make(chan struct{})
	go func() {
		_ = b.Execute(ctx, "probe", func(ctx context.Context) error {
			close(probeStarted)
			<-releaseProbe
			return nil
		})
	}()

	<-probeStarted
	done := make(chan HealthInfo, 1)
	go func() { done <- b.Health() }()

	select {
	case health := <-done:
		if health.Phase != PhaseHalfOpen || !health.ProbeInFlight {
			t.Errorf("unexpected snapshot during probe: %+v", health)
		}
	case <-time.After(time.Second):
		t.Fatal("Health blocked on in-flight probe")
	}
	close(releaseProbe)
}

func TestConfig_Defaults(t *testing.T) {
	b := New("test", Config{})
	if b.config.FailureThreshold != DefaultConfig().FailureThreshold {
		t.Errorf("expected default failure threshold, got %d", b.config.FailureThreshold)
	}
	if b.config.OpenDuration != DefaultConfig().OpenDuration {
		t.Errorf("expected default open duration, got %s", b.config.OpenDuration)
	}
}
