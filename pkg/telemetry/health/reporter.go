package health

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/nimbusworks/modelgate/pkg/gateway"
)

// Source provides health snapshots, implemented by the gateway.
type Source interface {
	GetHealth() gateway.HealthSnapshot
}

// Reporter periodically logs a gateway health snapshot on a cron schedule.
// Operational tooling watches these log lines; the snapshot itself is also
// served on the administrative /healthz endpoint.
type Reporter struct {
	source   Source
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
	mu       sync.Mutex
	running  bool
}

// NewReporter creates a reporter for the given snapshot source.
// schedule is a cron expression ("@every 30s", "0 * * * *"); empty disables
// the reporter.
func NewReporter(source Source, schedule string) *Reporter {
	return &Reporter{
		source:   source,
		schedule: schedule,
		cron:     cron.New(),
		logger:   slog.Default().With("component", "health.reporter"),
	}
}

// Start begins scheduled reporting. Returns an error for an invalid
// schedule; an empty schedule is a no-op.
func (r *Reporter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.schedule == "" {
		r.logger.Info("health report schedule not configured, reporter disabled")
		return nil
	}
	if r.running {
		return nil
	}

	// AddFunc accepts both standard expressions and descriptors ("@every 30s").
	if _, err := r.cron.AddFunc(r.schedule, r.report); err != nil {
		return fmt.Errorf("invalid health report schedule %q: %w", r.schedule, err)
	}

	r.cron.Start()
	r.running = true
	r.logger.Info("health reporter started", "schedule", r.schedule)
	return nil
}

// report emits one snapshot.
func (r *Reporter) report() {
	snapshot := r.source.GetHealth()

	attrs := []any{"healthy", snapshot.Healthy}
	for role, rh := range snapshot.Roles {
		attrs = append(attrs,
			string(role)+"_phase", string(rh.Phase),
			string(role)+"_failures", rh.ConsecutiveFailures,
		)
	}

	if snapshot.Healthy {
		r.logger.Info("gateway health", attrs...)
	} else {
		r.logger.Warn("gateway health degraded", attrs...)
	}
}

// Stop halts scheduled reporting and waits for a running report to finish.
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
	r.logger.Info("health reporter stopped")
}
