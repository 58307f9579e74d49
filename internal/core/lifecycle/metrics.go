package lifecycle

import (
	"sync"
	"time"

	"github.com/vietddude/shepherd/internal/core/domain"
)

// TransitionEvent ties a transition record to the deployment it belongs to.
type TransitionEvent struct {
	DeploymentID string
	Record       domain.TransitionRecord
}

// Metrics holds lifecycle activity data across deployments.
type Metrics struct {
	TotalTransitions int
	EnteredCount     map[domain.DeploymentStatus]int
	DwellByStatus    map[domain.DeploymentStatus]time.Duration
	LastFailureAt    *time.Time
	LastRollbackAt   *time.Time
	RecentEvents     []TransitionEvent
}

type dwellMark struct {
	status domain.DeploymentStatus
	at     time.Time
}

// MetricsCollector tracks transition activity over time. Safe for
// concurrent use; machines from multiple deployments feed one collector.
type MetricsCollector struct {
	mu             sync.Mutex
	recentWindow   int
	total          int
	entered        map[domain.DeploymentStatus]int
	dwell          map[domain.DeploymentStatus]time.Duration
	lastSeen       map[string]dwellMark // per deployment
	lastFailureAt  *time.Time
	lastRollbackAt *time.Time
	recent         []TransitionEvent
}

// NewMetricsCollector creates a collector keeping the given number of
// recent events. Window values below 1 fall back to 10.
func NewMetricsCollector(recentWindow int) *MetricsCollector {
	if recentWindow < 1 {
		recentWindow = 10
	}
	return &MetricsCollector{
		recentWindow: recentWindow,
		entered:      make(map[domain.DeploymentStatus]int),
		dwell:        make(map[domain.DeploymentStatus]time.Duration),
		lastSeen:     make(map[string]dwellMark),
	}
}

// RecordTransition records one successful transition.
func (mc *MetricsCollector) RecordTransition(deploymentID string, rec domain.TransitionRecord) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.total++
	mc.entered[rec.To]++

	// Attribute time spent in the previous status.
	if mark, ok := mc.lastSeen[deploymentID]; ok && rec.At.After(mark.at) {
		mc.dwell[mark.status] += rec.At.Sub(mark.at)
	}
	mc.lastSeen[deploymentID] = dwellMark{status: rec.To, at: rec.At}

	switch rec.To {
	case domain.StatusFailed, domain.StatusCrashed:
		at := rec.At
		mc.lastFailureAt = &at
	case domain.StatusRolledBack:
		at := rec.At
		mc.lastRollbackAt = &at
	}

	event := TransitionEvent{DeploymentID: deploymentID, Record: rec}
	if len(mc.recent) >= mc.recentWindow {
		// Shift elements left, drop oldest
		copy(mc.recent, mc.recent[1:])
		mc.recent[len(mc.recent)-1] = event
	} else {
		mc.recent = append(mc.recent, event)
	}
}

// Forget drops per-deployment dwell tracking, e.g. after a deployment
// reaches a terminal status and is unregistered.
func (mc *MetricsCollector) Forget(deploymentID string) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	delete(mc.lastSeen, deploymentID)
}

// GetMetrics returns current metrics. Maps and slices are copies.
func (mc *MetricsCollector) GetMetrics() Metrics {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	m := Metrics{
		TotalTransitions: mc.total,
		EnteredCount:     make(map[domain.DeploymentStatus]int, len(mc.entered)),
		DwellByStatus:    make(map[domain.DeploymentStatus]time.Duration, len(mc.dwell)),
		LastFailureAt:    mc.lastFailureAt,
		LastRollbackAt:   mc.lastRollbackAt,
		RecentEvents:     make([]TransitionEvent, len(mc.recent)),
	}
	for k, v := range mc.entered {
		m.EnteredCount[k] = v
	}
	for k, v := range mc.dwell {
		m.DwellByStatus[k] = v
	}
	copy(m.RecentEvents, mc.recent)
	return m
}

// Reset clears all collected metrics.
func (mc *MetricsCollector) Reset() {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.total = 0
	mc.entered = make(map[domain.DeploymentStatus]int)
	mc.dwell = make(map[domain.DeploymentStatus]time.Duration)
	mc.lastSeen = make(map[string]dwellMark)
	mc.lastFailureAt = nil
	mc.lastRollbackAt = nil
	mc.recent = mc.recent[:0]
}
