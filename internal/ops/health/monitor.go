package health

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Pinger is a dependency with a connectivity check.
type Pinger interface {
	Health(ctx context.Context) error
}

// DeploymentSource reports the health of supervised deployments. The
// supervisor implements it; this package only aggregates.
type DeploymentSource interface {
	DeploymentHealth() []DeploymentHealth
}

// EscalationCounter reports the number of queued escalations.
type EscalationCounter interface {
	Count(ctx context.Context) (int, error)
}

// Monitor aggregates health status from the database, the escalation
// queue and the supervised deployments.
type Monitor struct {
	db          Pinger // nil in ephemeral mode
	queue       Pinger // nil without redis
	escalations EscalationCounter
	source      DeploymentSource

	mu         sync.Mutex
	lastCheck  time.Time
	lastReport Report
}

// NewMonitor creates a health monitor. db and queue may be nil when the
// corresponding backend is not configured.
func NewMonitor(db, queue Pinger, escalations EscalationCounter, source DeploymentSource) *Monitor {
	return &Monitor{
		db:          db,
		queue:       queue,
		escalations: escalations,
		source:      source,
	}
}

// CheckHealth builds a full health report. Results are cached briefly so
// HTTP polling does not hammer the backends.
func (m *Monitor) CheckHealth(ctx context.Context) Report {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks (max once per 10s)
	if time.Since(m.lastCheck) < 10*time.Second && !m.lastCheck.IsZero() {
		return m.lastReport
	}

	report := Report{
		SystemStatus: StatusHealthy,
		Deployments:  make(map[string]DeploymentHealth),
	}

	report.Components = append(report.Components, m.checkComponent(ctx, "database", m.db))
	report.Components = append(report.Components, m.checkComponent(ctx, "redis", m.queue))

	for _, c := range report.Components {
		if c.Status.worse(report.SystemStatus) {
			report.SystemStatus = c.Status
		}
	}

	if m.source != nil {
		for _, d := range m.source.DeploymentHealth() {
			report.Deployments[d.Service] = d
			if d.Status.worse(report.SystemStatus) {
				report.SystemStatus = d.Status
			}
		}
	}

	if m.escalations != nil {
		if count, err := m.escalations.Count(ctx); err == nil {
			report.Escalations = count
			if count > 0 && report.SystemStatus == StatusHealthy {
				report.SystemStatus = StatusDegraded
			}
		}
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}

func (m *Monitor) checkComponent(ctx context.Context, name string, p Pinger) ComponentHealth {
	if p == nil {
		// Not configured: the service runs without it
		return ComponentHealth{Name: name, Status: StatusHealthy}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := p.Health(checkCtx); err != nil {
		return ComponentHealth{Name: name, Status: StatusCritical, Error: err.Error()}
	}
	return ComponentHealth{Name: name, Status: StatusHealthy}
}

// Start runs periodic background checks, logging degradation so an
// operator watching logs sees trouble even without scraping /health.
func (m *Monitor) Start(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report := m.CheckHealth(ctx)
			if report.SystemStatus != StatusHealthy {
				slog.Warn("service health degraded",
					"status", report.SystemStatus,
					"queued_escalations", report.Escalations)
			}
		}
	}
}
