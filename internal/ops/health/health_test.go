package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"
)

type stubPinger struct {
	err error
}

func (s *stubPinger) Health(ctx context.Context) error { return s.err }

type stubSource struct {
	deployments []DeploymentHealth
}

func (s *stubSource) DeploymentHealth() []DeploymentHealth { return s.deployments }

type stubCounter struct {
	count int
}

func (s *stubCounter) Count(ctx context.Context) (int, error) { return s.count, nil }

func TestCheckHealth_AllHealthy(t *testing.T) {
	m := NewMonitor(&stubPinger{}, &stubPinger{}, &stubCounter{}, &stubSource{
		deployments: []DeploymentHealth{
			{Service: "api", Status: StatusHealthy, Lifecycle: "active"},
		},
	})

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("SystemStatus = %v, want healthy", report.SystemStatus)
	}
	if len(report.Deployments) != 1 {
		t.Errorf("got %d deployments, want 1", len(report.Deployments))
	}
}

func TestCheckHealth_WorstCaseWins(t *testing.T) {
	m := NewMonitor(&stubPinger{}, nil, nil, &stubSource{
		deployments: []DeploymentHealth{
			{Service: "api", Status: StatusHealthy, Lifecycle: "active"},
			{Service: "worker", Status: StatusCritical, Lifecycle: "crashed"},
			{Service: "cron", Status: StatusDegraded, Lifecycle: "rolling_back"},
		},
	})

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("SystemStatus = %v, want critical", report.SystemStatus)
	}
}

func TestCheckHealth_DatabaseDown(t *testing.T) {
	m := NewMonitor(&stubPinger{err: errors.New("connection refused")}, nil, nil, &stubSource{})

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusCritical {
		t.Errorf("SystemStatus = %v with database down, want critical", report.SystemStatus)
	}

	var dbComponent *ComponentHealth
	for i := range report.Components {
		if report.Components[i].Name == "database" {
			dbComponent = &report.Components[i]
		}
	}
	if dbComponent == nil || dbComponent.Status != StatusCritical {
		t.Errorf("database component = %+v, want critical", dbComponent)
	}
}

func TestCheckHealth_MissingBackendsAreHealthy(t *testing.T) {
	// Ephemeral mode: no database, no redis.
	m := NewMonitor(nil, nil, nil, &stubSource{})

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("SystemStatus = %v without backends, want healthy", report.SystemStatus)
	}
}

func TestCheckHealth_QueuedEscalationsDegrade(t *testing.T) {
	m := NewMonitor(nil, nil, &stubCounter{count: 2}, &stubSource{})

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusDegraded {
		t.Errorf("SystemStatus = %v with queued escalations, want degraded", report.SystemStatus)
	}
	if report.Escalations != 2 {
		t.Errorf("Escalations = %d, want 2", report.Escalations)
	}
}

func TestCheckHealth_Cached(t *testing.T) {
	source := &stubSource{deployments: []DeploymentHealth{
		{Service: "api", Status: StatusHealthy},
	}}
	m := NewMonitor(nil, nil, nil, source)

	first := m.CheckHealth(context.Background())

	// Mutating the source within the cache window must not change the report.
	source.deployments = []DeploymentHealth{
		{Service: "api", Status: StatusCritical},
	}
	second := m.CheckHealth(context.Background())

	if first.SystemStatus != second.SystemStatus {
		t.Errorf("cached report changed: %v -> %v", first.SystemStatus, second.SystemStatus)
	}
}

func TestServer_HealthEndpoint(t *testing.T) {
	m := NewMonitor(nil, nil, nil, &stubSource{
		deployments: []DeploymentHealth{
			{Service: "api", Status: StatusHealthy, Lifecycle: "active"},
		},
	})
	s := NewServer(m, 0)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != 200 {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["status"] != "healthy" {
		t.Errorf("status = %q, want healthy", body["status"])
	}
}

func TestServer_CriticalReturns503(t *testing.T) {
	m := NewMonitor(&stubPinger{err: errors.New("down")}, nil, nil, &stubSource{})
	s := NewServer(m, 0)

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	if rec.Code != 503 {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestServer_DetailedEndpoint(t *testing.T) {
	m := NewMonitor(nil, nil, &stubCounter{count: 1}, &stubSource{
		deployments: []DeploymentHealth{
			{Service: "api", DeploymentID: "d1", Status: StatusHealthy, Lifecycle: "active"},
		},
	})
	s := NewServer(m, 0)

	req := httptest.NewRequest("GET", "/health/detailed", nil)
	rec := httptest.NewRecorder()
	s.handleDetailed(rec, req)

	var report Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if report.Deployments["api"].DeploymentID != "d1" {
		t.Errorf("deployment missing from detailed report: %+v", report)
	}
	if report.Escalations != 1 {
		t.Errorf("Escalations = %d, want 1", report.Escalations)
	}
}
