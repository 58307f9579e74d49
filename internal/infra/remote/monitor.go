package remote

import (
	"sync"
	"time"
)

// TargetStatus represents the observed state of a probed target.
type TargetStatus int

const (
	TargetHealthy  TargetStatus = iota // Target is responding normally
	TargetDegraded                     // Target is slow or flaky
	TargetDown                         // Target has failed repeatedly
)

func (s TargetStatus) String() string {
	switch s {
	case TargetHealthy:
		return "healthy"
	case TargetDegraded:
		return "degraded"
	case TargetDown:
		return "down"
	default:
		return "unknown"
	}
}

// TargetStats holds monitoring statistics for one target.
type TargetStats struct {
	Status              TargetStatus
	AverageLatency      time.Duration
	ConsecutiveFailures int
	TotalChecks         int
	TotalFailures       int
	LastError           string
	LastSuccessAt       time.Time
	LastFailureAt       time.Time
}

// TargetMonitor tracks probe outcomes for one deploy target. The
// supervisor reads ConsecutiveFailures to decide when an active
// deployment should be marked crashed.
type TargetMonitor struct {
	mu sync.RWMutex

	// Response time tracking
	recentLatencies  []time.Duration
	maxLatencyWindow int

	// Failure tracking
	consecutiveFailures int
	totalChecks         int
	totalFailures       int
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time

	// Thresholds
	downThreshold         int
	slowResponseThreshold time.Duration
	degradedErrorRate     float64
}

// NewTargetMonitor creates a monitor. downThreshold is the number of
// consecutive failures after which the target counts as down.
func NewTargetMonitor(downThreshold int) *TargetMonitor {
	if downThreshold < 1 {
		downThreshold = 3
	}
	return &TargetMonitor{
		recentLatencies:       make([]time.Duration, 0, 100),
		maxLatencyWindow:      100,
		downThreshold:         downThreshold,
		slowResponseThreshold: 3 * time.Second,
		degradedErrorRate:     0.3,
	}
}

// Record registers one probe outcome.
func (tm *TargetMonitor) Record(err error, latency time.Duration) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	now := time.Now()
	tm.totalChecks++

	if err != nil {
		tm.totalFailures++
		tm.consecutiveFailures++
		tm.lastError = err.Error()
		tm.lastFailureAt = now
		return
	}

	tm.consecutiveFailures = 0
	tm.lastError = ""
	tm.lastSuccessAt = now

	tm.recentLatencies = append(tm.recentLatencies, latency)
	if len(tm.recentLatencies) > tm.maxLatencyWindow {
		tm.recentLatencies = tm.recentLatencies[1:]
	}
}

// Status returns the current target status.
func (tm *TargetMonitor) Status() TargetStatus {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if tm.consecutiveFailures >= tm.downThreshold {
		return TargetDown
	}

	if len(tm.recentLatencies) > 10 {
		var total time.Duration
		for _, lat := range tm.recentLatencies {
			total += lat
		}
		avg := total / time.Duration(len(tm.recentLatencies))
		if avg > tm.slowResponseThreshold {
			return TargetDegraded
		}
	}

	if tm.totalChecks > 0 {
		rate := float64(tm.totalFailures) / float64(tm.totalChecks)
		if rate > tm.degradedErrorRate {
			return TargetDegraded
		}
	}

	return TargetHealthy
}

// ConsecutiveFailures returns the current unbroken failure streak.
func (tm *TargetMonitor) ConsecutiveFailures() int {
	tm.mu.RLock()
	defer tm.mu.RUnlock()
	return tm.consecutiveFailures
}

// AverageLatency returns the mean latency of recent successful probes.
func (tm *TargetMonitor) AverageLatency() time.Duration {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	if len(tm.recentLatencies) == 0 {
		return 0
	}

	var total time.Duration
	for _, lat := range tm.recentLatencies {
		total += lat
	}
	return total / time.Duration(len(tm.recentLatencies))
}

// GetStats returns a snapshot of current statistics.
func (tm *TargetMonitor) GetStats() TargetStats {
	status := tm.Status()
	avg := tm.AverageLatency()

	tm.mu.RLock()
	defer tm.mu.RUnlock()

	return TargetStats{
		Status:              status,
		AverageLatency:      avg,
		ConsecutiveFailures: tm.consecutiveFailures,
		TotalChecks:         tm.totalChecks,
		TotalFailures:       tm.totalFailures,
		LastError:           tm.lastError,
		LastSuccessAt:       tm.lastSuccessAt,
		LastFailureAt:       tm.lastFailureAt,
	}
}

// Reset clears the monitor, e.g. when a deployment is replaced.
func (tm *TargetMonitor) Reset() {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	tm.recentLatencies = tm.recentLatencies[:0]
	tm.consecutiveFailures = 0
	tm.totalChecks = 0
	tm.totalFailures = 0
	tm.lastError = ""
	tm.lastSuccessAt = time.Time{}
	tm.lastFailureAt = time.Time{}
}
