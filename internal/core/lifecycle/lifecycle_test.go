package lifecycle

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/shepherd/internal/core/domain"
)

// =============================================================================
// State Transition Tests
// =============================================================================

func TestCanTransition_AllPairs(t *testing.T) {
	allowed := map[string]bool{
		"pending->building":         true,
		"building->deploying":       true,
		"building->failed":          true,
		"deploying->active":         true,
		"deploying->failed":         true,
		"active->crashed":           true,
		"failed->rolling_back":      true,
		"crashed->rolling_back":     true,
		"rolling_back->rolled_back": true,
		"rolling_back->failed":      true,
	}

	// Every ordered pair, including self-loops, must match the table above.
	for _, from := range domain.AllStatuses {
		for _, to := range domain.AllStatuses {
			key := string(from) + "->" + string(to)
			want := allowed[key]
			if got := CanTransition(from, to); got != want {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestCanTransition_UnknownStatus(t *testing.T) {
	if CanTransition("bogus", domain.StatusBuilding) {
		t.Error("expected transition from unknown status to be rejected")
	}
	if CanTransition(domain.StatusPending, "bogus") {
		t.Error("expected transition to unknown status to be rejected")
	}
}

func TestRolledBackIsTerminal(t *testing.T) {
	for _, to := range domain.AllStatuses {
		if CanTransition(domain.StatusRolledBack, to) {
			t.Errorf("rolled_back must have no outgoing edges, but rolled_back->%s allowed", to)
		}
	}
	if got := LegalTargets(domain.StatusRolledBack); len(got) != 0 {
		t.Errorf("expected no legal targets from rolled_back, got %v", got)
	}
}

func TestLegalTargetsReturnsCopy(t *testing.T) {
	targets := LegalTargets(domain.StatusBuilding)
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets from building, got %v", targets)
	}
	targets[0] = domain.StatusRolledBack

	again := LegalTargets(domain.StatusBuilding)
	if again[0] != domain.StatusDeploying {
		t.Errorf("mutating returned slice leaked into the table: %v", again)
	}
}

// =============================================================================
// Machine Tests
// =============================================================================

func TestMachineStartsPending(t *testing.T) {
	m := NewMachine("d1")

	if m.Status() != domain.StatusPending {
		t.Errorf("expected pending, got %s", m.Status())
	}
	if len(m.HistorySnapshot()) != 0 {
		t.Error("expected empty history for new machine")
	}
	if m.DeploymentID() != "d1" {
		t.Errorf("expected deployment id d1, got %s", m.DeploymentID())
	}
}

func TestMachineTransition(t *testing.T) {
	m := NewMachine("d1")

	rec, err := m.Transition(domain.StatusBuilding, "build requested", map[string]string{"image": "api:v2"})
	if err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if m.Status() != domain.StatusBuilding {
		t.Errorf("expected building, got %s", m.Status())
	}
	if rec.From != domain.StatusPending || rec.To != domain.StatusBuilding {
		t.Errorf("record has wrong endpoints: %s -> %s", rec.From, rec.To)
	}
	if rec.Reason != "build requested" {
		t.Errorf("expected reason to be kept, got %q", rec.Reason)
	}
	if rec.Metadata["image"] != "api:v2" {
		t.Errorf("expected metadata to be kept, got %v", rec.Metadata)
	}
	if rec.At.IsZero() {
		t.Error("expected record timestamp to be set")
	}

	history := m.HistorySnapshot()
	if len(history) != 1 {
		t.Fatalf("expected 1 record, got %d", len(history))
	}
	if history[0].To != domain.StatusBuilding {
		t.Errorf("expected history to hold the transition, got %v", history[0])
	}
}

func TestMachineTransition_Invalid(t *testing.T) {
	m := NewMachine("d1")

	_, err := m.Transition(domain.StatusActive, "skip ahead", nil)
	if err == nil {
		t.Fatal("expected error for pending->active")
	}
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got: %v", err)
	}

	var ite *InvalidTransitionError
	if !errors.As(err, &ite) {
		t.Fatalf("expected *InvalidTransitionError, got %T", err)
	}
	if ite.From != domain.StatusPending || ite.To != domain.StatusActive {
		t.Errorf("error has wrong endpoints: %s -> %s", ite.From, ite.To)
	}
	if len(ite.Legal) != 1 || ite.Legal[0] != domain.StatusBuilding {
		t.Errorf("expected legal targets [building], got %v", ite.Legal)
	}
	if !strings.Contains(err.Error(), "building") {
		t.Errorf("expected message to name legal targets, got: %v", err)
	}
}

func TestMachineTransition_FailureLeavesMachineUntouched(t *testing.T) {
	m := NewMachine("d1")
	if _, err := m.Transition(domain.StatusBuilding, "start", nil); err != nil {
		t.Fatalf("setup transition failed: %v", err)
	}

	var callbacks int
	m.SetTransitionCallback(func(string, domain.TransitionRecord) { callbacks++ })

	_, err := m.Transition(domain.StatusRolledBack, "illegal", nil)
	if err == nil {
		t.Fatal("expected error for building->rolled_back")
	}
	if m.Status() != domain.StatusBuilding {
		t.Errorf("status changed on failed transition: %s", m.Status())
	}
	if got := len(m.HistorySnapshot()); got != 1 {
		t.Errorf("history grew on failed transition: %d records", got)
	}
	if callbacks != 0 {
		t.Errorf("callback fired on failed transition %d times", callbacks)
	}
}

func TestMachineTransition_UnknownTarget(t *testing.T) {
	m := NewMachine("d1")

	_, err := m.Transition("warming_up", "made up", nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition for unknown target, got: %v", err)
	}
	if m.Status() != domain.StatusPending {
		t.Errorf("status changed: %s", m.Status())
	}
}

func TestMachineCanRollback(t *testing.T) {
	// CanRollback must hold exactly in failed and crashed.
	type step struct {
		to     domain.DeploymentStatus
		reason string
	}
	tests := []struct {
		name     string
		steps    []step
		expected bool
	}{
		{"pending", nil, false},
		{"building", []step{{domain.StatusBuilding, "start"}}, false},
		{"failed after build", []step{
			{domain.StatusBuilding, "start"},
			{domain.StatusFailed, "compile error"},
		}, true},
		{"active", []step{
			{domain.StatusBuilding, "start"},
			{domain.StatusDeploying, "built"},
			{domain.StatusActive, "healthy"},
		}, false},
		{"crashed", []step{
			{domain.StatusBuilding, "start"},
			{domain.StatusDeploying, "built"},
			{domain.StatusActive, "healthy"},
			{domain.StatusCrashed, "probe failures"},
		}, true},
		{"rolling back", []step{
			{domain.StatusBuilding, "start"},
			{domain.StatusFailed, "compile error"},
			{domain.StatusRollingBack, "auto"},
		}, false},
		{"rolled back", []step{
			{domain.StatusBuilding, "start"},
			{domain.StatusFailed, "compile error"},
			{domain.StatusRollingBack, "auto"},
			{domain.StatusRolledBack, "restored"},
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMachine("d1")
			for _, s := range tt.steps {
				if _, err := m.Transition(s.to, s.reason, nil); err != nil {
					t.Fatalf("setup transition to %s failed: %v", s.to, err)
				}
			}
			if got := m.CanRollback(); got != tt.expected {
				t.Errorf("CanRollback() in %s = %v, want %v", m.Status(), got, tt.expected)
			}
		})
	}
}

func TestMachineMixedSequence(t *testing.T) {
	m := NewMachine("d1")

	if _, err := m.Transition(domain.StatusBuilding, "start", nil); err != nil {
		t.Fatalf("pending->building failed: %v", err)
	}
	if _, err := m.Transition(domain.StatusActive, "skip deploy", nil); err == nil {
		t.Fatal("building->active should be rejected")
	}
	if _, err := m.Transition(domain.StatusDeploying, "built", nil); err != nil {
		t.Fatalf("building->deploying failed after rejected attempt: %v", err)
	}
	if _, err := m.Transition(domain.StatusActive, "healthy", nil); err != nil {
		t.Fatalf("deploying->active failed: %v", err)
	}

	if m.Status() != domain.StatusActive {
		t.Errorf("expected active, got %s", m.Status())
	}

	history := m.HistorySnapshot()
	if len(history) != 3 {
		t.Fatalf("expected exactly 3 records (rejected attempt excluded), got %d", len(history))
	}
	wantTo := []domain.DeploymentStatus{domain.StatusBuilding, domain.StatusDeploying, domain.StatusActive}
	for i, rec := range history {
		if rec.To != wantTo[i] {
			t.Errorf("record %d: expected to=%s, got %s", i, wantTo[i], rec.To)
		}
	}
}

func TestMachineHistorySnapshotIsolation(t *testing.T) {
	m := NewMachine("d1")
	if _, err := m.Transition(domain.StatusBuilding, "start", map[string]string{"image": "api:v2"}); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	snap := m.HistorySnapshot()
	snap[0].Reason = "tampered"
	snap[0].Metadata["image"] = "tampered"

	again := m.HistorySnapshot()
	if again[0].Reason != "start" {
		t.Errorf("reason mutated through snapshot: %q", again[0].Reason)
	}
	if again[0].Metadata["image"] != "api:v2" {
		t.Errorf("metadata mutated through snapshot: %v", again[0].Metadata)
	}
}

func TestMachineMetadataCopiedFromCaller(t *testing.T) {
	m := NewMachine("d1")
	md := map[string]string{"attempt": "1"}
	if _, err := m.Transition(domain.StatusBuilding, "start", md); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	md["attempt"] = "99"

	history := m.HistorySnapshot()
	if history[0].Metadata["attempt"] != "1" {
		t.Errorf("caller mutation leaked into history: %v", history[0].Metadata)
	}
}

func TestMachineTransitionCallback(t *testing.T) {
	m := NewMachine("d1")

	var mu sync.Mutex
	var got []domain.TransitionRecord
	m.SetTransitionCallback(func(id string, rec domain.TransitionRecord) {
		mu.Lock()
		defer mu.Unlock()
		if id != "d1" {
			t.Errorf("callback received deployment %s", id)
		}
		got = append(got, rec)
	})

	if _, err := m.Transition(domain.StatusBuilding, "start", nil); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if _, err := m.Transition(domain.StatusFailed, "compile error", nil); err != nil {
		t.Fatalf("transition failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("expected 2 callbacks, got %d", len(got))
	}
	if got[1].To != domain.StatusFailed {
		t.Errorf("expected second callback for failed, got %s", got[1].To)
	}
}

func TestMachineCallbackMayReadMachine(t *testing.T) {
	m := NewMachine("d1")

	var seen domain.DeploymentStatus
	m.SetTransitionCallback(func(string, domain.TransitionRecord) {
		// Must not deadlock.
		seen = m.Status()
	})

	if _, err := m.Transition(domain.StatusBuilding, "start", nil); err != nil {
		t.Fatalf("transition failed: %v", err)
	}
	if seen != domain.StatusBuilding {
		t.Errorf("callback observed %s, want building", seen)
	}
}

func TestResume(t *testing.T) {
	history := []domain.TransitionRecord{
		domain.NewTransition(domain.StatusPending, domain.StatusBuilding, "start"),
		domain.NewTransition(domain.StatusBuilding, domain.StatusFailed, "compile error"),
	}

	m, err := Resume("d1", domain.StatusFailed, history)
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if m.Status() != domain.StatusFailed {
		t.Errorf("expected failed, got %s", m.Status())
	}
	if !m.CanRollback() {
		t.Error("resumed failed deployment should permit rollback")
	}
	if len(m.HistorySnapshot()) != 2 {
		t.Errorf("expected history preserved, got %d records", len(m.HistorySnapshot()))
	}

	if _, err := m.Transition(domain.StatusRollingBack, "operator", nil); err != nil {
		t.Errorf("failed->rolling_back after resume: %v", err)
	}
}

func TestResume_UnknownStatus(t *testing.T) {
	if _, err := Resume("d1", "warming_up", nil); err == nil {
		t.Error("expected error for unknown status")
	}
}

// =============================================================================
// Metrics Tests
// =============================================================================

func TestMetricsCollector_Counts(t *testing.T) {
	mc := NewMetricsCollector(10)

	base := time.Now().UTC()
	recs := []domain.TransitionRecord{
		{From: domain.StatusPending, To: domain.StatusBuilding, At: base},
		{From: domain.StatusBuilding, To: domain.StatusDeploying, At: base.Add(2 * time.Second)},
		{From: domain.StatusDeploying, To: domain.StatusFailed, At: base.Add(3 * time.Second)},
	}
	for _, rec := range recs {
		mc.RecordTransition("d1", rec)
	}

	m := mc.GetMetrics()
	if m.TotalTransitions != 3 {
		t.Errorf("expected 3 transitions, got %d", m.TotalTransitions)
	}
	if m.EnteredCount[domain.StatusFailed] != 1 {
		t.Errorf("expected 1 entry into failed, got %d", m.EnteredCount[domain.StatusFailed])
	}
	if m.LastFailureAt == nil {
		t.Fatal("expected LastFailureAt to be set")
	}
	if !m.LastFailureAt.Equal(base.Add(3 * time.Second)) {
		t.Errorf("wrong LastFailureAt: %v", m.LastFailureAt)
	}
	if m.DwellByStatus[domain.StatusBuilding] != 2*time.Second {
		t.Errorf("expected 2s dwell in building, got %v", m.DwellByStatus[domain.StatusBuilding])
	}
}

func TestMetricsCollector_RecentWindow(t *testing.T) {
	mc := NewMetricsCollector(2)

	base := time.Now().UTC()
	mc.RecordTransition("d1", domain.TransitionRecord{From: domain.StatusPending, To: domain.StatusBuilding, At: base})
	mc.RecordTransition("d1", domain.TransitionRecord{From: domain.StatusBuilding, To: domain.StatusDeploying, At: base.Add(time.Second)})
	mc.RecordTransition("d1", domain.TransitionRecord{From: domain.StatusDeploying, To: domain.StatusActive, At: base.Add(2 * time.Second)})

	m := mc.GetMetrics()
	if len(m.RecentEvents) != 2 {
		t.Fatalf("expected window of 2, got %d", len(m.RecentEvents))
	}
	if m.RecentEvents[1].Record.To != domain.StatusActive {
		t.Errorf("expected newest event last, got %s", m.RecentEvents[1].Record.To)
	}
	if m.RecentEvents[0].Record.To != domain.StatusDeploying {
		t.Errorf("expected oldest surviving event first, got %s", m.RecentEvents[0].Record.To)
	}
}

func TestMetricsCollector_Reset(t *testing.T) {
	mc := NewMetricsCollector(10)
	mc.RecordTransition("d1", domain.NewTransition(domain.StatusPending, domain.StatusBuilding, "start"))
	mc.Reset()

	m := mc.GetMetrics()
	if m.TotalTransitions != 0 || len(m.RecentEvents) != 0 {
		t.Errorf("expected empty metrics after reset, got %+v", m)
	}
}
