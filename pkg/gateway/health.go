package gateway

import (
	"time"

	"github.com/nimbusworks/modelgate/pkg/backend"
	"github.com/nimbusworks/modelgate/pkg/gateway/breaker"
)

// RoleHealth describes the health of one backend role.
type RoleHealth struct {
	// Healthy is true when the role's breaker is closed.
	Healthy bool `json:"healthy"`

	// Phase is the breaker's current phase.
	Phase breaker.Phase `json:"phase"`

	// ConsecutiveFailures is the breaker's current failure streak.
	ConsecutiveFailures int `json:"consecutive_failures"`

	// TimeSinceLastFailure is zero when no failure has been recorded.
	TimeSinceLastFailure time.Duration `json:"time_since_last_failure"`
}

// HealthSnapshot is a point-in-time view of gateway health.
type HealthSnapshot struct {
	// Healthy is the AND over all roles.
	Healthy bool `json:"healthy"`

	// Roles maps each backend role to its health.
	Roles map[backend.Role]RoleHealth `json:"roles"`

	// Timestamp is when the snapshot was taken.
	Timestamp time.Time `json:"timestamp"`
}

// GetHealth returns a per-role and aggregate health snapshot. It never blocks
// on in-flight backend calls.
func (g *Gateway) GetHealth() HealthSnapshot {
	snapshot := HealthSnapshot{
		Healthy:   true,
		Roles:     make(map[backend.Role]RoleHealth, len(backend.Roles)),
		Timestamp: time.Now(),
	}

	for _, role := range backend.Roles {
		info := g.breakerFor(role).Health()

		var sinceFailure time.Duration
		if !info.LastFailureTime.IsZero() {
			sinceFailure = time.Since(info.LastFailureTime)
		}

		healthy := info.Phase == breaker.PhaseClosed
		snapshot.Roles[role] = RoleHealth{
			Healthy:              healthy,
			Phase:                info.Phase,
			ConsecutiveFailures:  info.ConsecutiveFailures,
			TimeSinceLastFailure: sinceFailure,
		}
		if !healthy {
			snapshot.Healthy = false
		}
	}

	return snapshot
}
