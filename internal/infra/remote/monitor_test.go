package remote

import (
	"errors"
	"testing"
	"time"
)

func TestTargetMonitor_HealthyByDefault(t *testing.T) {
	tm := NewTargetMonitor(3)
	if got := tm.Status(); got != TargetHealthy {
		t.Errorf("Status() = %v, want healthy", got)
	}
}

func TestTargetMonitor_DownAfterConsecutiveFailures(t *testing.T) {
	tm := NewTargetMonitor(3)
	probeErr := errors.New("connection refused")

	tm.Record(probeErr, 0)
	tm.Record(probeErr, 0)
	if got := tm.Status(); got == TargetDown {
		t.Fatalf("down after 2 failures, threshold is 3")
	}

	tm.Record(probeErr, 0)
	if got := tm.Status(); got != TargetDown {
		t.Errorf("Status() = %v after 3 consecutive failures, want down", got)
	}
	if got := tm.ConsecutiveFailures(); got != 3 {
		t.Errorf("ConsecutiveFailures() = %d, want 3", got)
	}
}

func TestTargetMonitor_SuccessResetsStreak(t *testing.T) {
	tm := NewTargetMonitor(3)
	probeErr := errors.New("http 503, upstream temporarily unavailable")

	tm.Record(probeErr, 0)
	tm.Record(probeErr, 0)
	tm.Record(nil, 10*time.Millisecond)

	if got := tm.ConsecutiveFailures(); got != 0 {
		t.Errorf("ConsecutiveFailures() = %d after success, want 0", got)
	}
	if got := tm.Status(); got == TargetDown {
		t.Error("target still down after recovery")
	}
}

func TestTargetMonitor_DegradedOnSlowResponses(t *testing.T) {
	tm := NewTargetMonitor(3)

	for i := 0; i < 15; i++ {
		tm.Record(nil, 5*time.Second)
	}

	if got := tm.Status(); got != TargetDegraded {
		t.Errorf("Status() = %v with 5s average latency, want degraded", got)
	}
}

func TestTargetMonitor_DegradedOnErrorRate(t *testing.T) {
	tm := NewTargetMonitor(10)
	probeErr := errors.New("timeout")

	// Alternate so no streak forms, but the overall rate is 50%.
	for i := 0; i < 10; i++ {
		tm.Record(probeErr, 0)
		tm.Record(nil, 5*time.Millisecond)
	}

	if got := tm.Status(); got != TargetDegraded {
		t.Errorf("Status() = %v with 50%% error rate, want degraded", got)
	}
}

func TestTargetMonitor_Stats(t *testing.T) {
	tm := NewTargetMonitor(3)
	tm.Record(nil, 20*time.Millisecond)
	tm.Record(nil, 40*time.Millisecond)
	tm.Record(errors.New("timeout"), 0)

	stats := tm.GetStats()
	if stats.TotalChecks != 3 {
		t.Errorf("TotalChecks = %d, want 3", stats.TotalChecks)
	}
	if stats.TotalFailures != 1 {
		t.Errorf("TotalFailures = %d, want 1", stats.TotalFailures)
	}
	if stats.AverageLatency != 30*time.Millisecond {
		t.Errorf("AverageLatency = %v, want 30ms", stats.AverageLatency)
	}
	if stats.LastError != "timeout" {
		t.Errorf("LastError = %q, want timeout", stats.LastError)
	}
}

func TestTargetMonitor_Reset(t *testing.T) {
	tm := NewTargetMonitor(2)
	tm.Record(errors.New("timeout"), 0)
	tm.Record(errors.New("timeout"), 0)

	if got := tm.Status(); got != TargetDown {
		t.Fatalf("Status() = %v, want down before reset", got)
	}

	tm.Reset()
	if got := tm.Status(); got != TargetHealthy {
		t.Errorf("Status() = %v after reset, want healthy", got)
	}
	if stats := tm.GetStats(); stats.TotalChecks != 0 {
		t.Errorf("TotalChecks = %d after reset, want 0", stats.TotalChecks)
	}
}
