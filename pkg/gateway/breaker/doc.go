// Package breaker implements a three-state circuit breaker (closed, open,
// half-open) guarding calls to an unstable collaborator.
//
// A breaker starts closed. After FailureThreshold consecutive failures it
// opens and rejects every call immediately, bounding the blast radius of a
// failing backend: callers fail fast instead of piling up slow timeouts.
// Once OpenDuration has elapsed, the next call is admitted as a single
// recovery probe (half-open). HalfOpenSuccessesToClose consecutive probe
// successes close the breaker; one probe failure reopens it and restarts
// the open-duration clock.
//
//	b := breaker.New("embedding", breaker.Config{
//	    FailureThreshold:         3,
//	    OpenDuration:             30 * time.Second,
//	    HalfOpenSuccessesToClose: 2,
//	})
//
//	err := b.Execute(ctx, "embed", func(ctx context.Context) error {
//	    return callBackend(ctx)
//	})
//
// Execute returns *OpenError when it rejects a call without running the unit
// of work. All state is serialized behind one mutex; no lock is held across
// the guarded call.
package breaker
