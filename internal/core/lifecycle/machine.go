package lifecycle

import (
	"fmt"
	"sync"

	"github.com/vietddude/shepherd/internal/core/domain"
)

// InvalidTransitionError reports a rejected transition together with the
// targets that would have been legal from the current status.
type InvalidTransitionError struct {
	DeploymentID string
	From         domain.DeploymentStatus
	To           domain.DeploymentStatus
	Legal        []domain.DeploymentStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("deployment %s: cannot transition from %s to %s (legal targets: %v)",
		e.DeploymentID, e.From, e.To, e.Legal)
}

func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// TransitionCallback is invoked after every successful transition.
// Callbacks run outside the machine lock, so they may call back into
// the machine (e.g. Status or HistorySnapshot).
type TransitionCallback func(deploymentID string, rec domain.TransitionRecord)

// Machine tracks the lifecycle of a single deployment. All methods are
// safe for concurrent use. A failed transition leaves the machine
// completely unchanged.
type Machine struct {
	mu           sync.Mutex
	deploymentID string
	status       domain.DeploymentStatus
	history      []domain.TransitionRecord
	onTransition TransitionCallback
}

// NewMachine creates a machine for the given deployment, starting at pending.
func NewMachine(deploymentID string) *Machine {
	return &Machine{
		deploymentID: deploymentID,
		status:       domain.StatusPending,
	}
}

// Resume reconstructs a machine at a known status, e.g. when rehydrating
// from storage after a restart. The history holds previously recorded
// transitions and is copied.
func Resume(deploymentID string, status domain.DeploymentStatus, history []domain.TransitionRecord) (*Machine, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("resume deployment %s: unknown status %q", deploymentID, status)
	}

	m := &Machine{
		deploymentID: deploymentID,
		status:       status,
	}
	if len(history) > 0 {
		m.history = copyHistory(history)
	}
	return m, nil
}

// DeploymentID returns the deployment this machine tracks.
func (m *Machine) DeploymentID() string {
	return m.deploymentID
}

// Status returns the current lifecycle status.
func (m *Machine) Status() domain.DeploymentStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// CanTransition checks whether the machine may move to the given status.
func (m *Machine) CanTransition(to domain.DeploymentStatus) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return CanTransition(m.status, to)
}

// CanRollback reports whether the deployment is in a state that permits
// starting a rollback (failed or crashed).
func (m *Machine) CanRollback() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status == domain.StatusFailed || m.status == domain.StatusCrashed
}

// SetTransitionCallback registers a callback invoked on every successful
// transition. Pass nil to clear.
func (m *Machine) SetTransitionCallback(fn TransitionCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onTransition = fn
}

// Transition moves the machine to a new status, recording the reason and
// optional metadata. On success it returns the appended record. If the
// target is not reachable from the current status it returns an
// *InvalidTransitionError wrapping ErrInvalidTransition and the machine
// is left untouched.
func (m *Machine) Transition(to domain.DeploymentStatus, reason string, metadata map[string]string) (domain.TransitionRecord, error) {
	m.mu.Lock()

	if !CanTransition(m.status, to) {
		err := &InvalidTransitionError{
			DeploymentID: m.deploymentID,
			From:         m.status,
			To:           to,
			Legal:        LegalTargets(m.status),
		}
		m.mu.Unlock()
		return domain.TransitionRecord{}, err
	}

	rec := domain.NewTransition(m.status, to, reason).WithMetadata(metadata)
	m.status = to
	m.history = append(m.history, rec)
	callback := m.onTransition
	m.mu.Unlock()

	if callback != nil {
		callback(m.deploymentID, rec)
	}
	return rec, nil
}

// HistorySnapshot returns a copy of all recorded transitions in order.
// Mutating the returned slice or its metadata does not affect the machine.
func (m *Machine) HistorySnapshot() []domain.TransitionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copyHistory(m.history)
}

func copyHistory(history []domain.TransitionRecord) []domain.TransitionRecord {
	out := make([]domain.TransitionRecord, len(history))
	for i, rec := range history {
		out[i] = rec
		if rec.Metadata != nil {
			md := make(map[string]string, len(rec.Metadata))
			for k, v := range rec.Metadata {
				md[k] = v
			}
			out[i].Metadata = md
		}
	}
	return out
}
