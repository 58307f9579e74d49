package lifecycle

import (
	"errors"

	"github.com/vietddude/shepherd/internal/core/domain"
)

// ErrInvalidTransition is returned when an illegal state transition is attempted.
var ErrInvalidTransition = errors.New("invalid lifecycle transition")

// validTransitions defines the allowed lifecycle edges.
// Key is the current status, value is the list of legal next statuses.
// Any pair not listed here is illegal; rolled_back has no outgoing edges.
var validTransitions = map[domain.DeploymentStatus][]domain.DeploymentStatus{
	domain.StatusPending:     {domain.StatusBuilding},
	domain.StatusBuilding:    {domain.StatusDeploying, domain.StatusFailed},
	domain.StatusDeploying:   {domain.StatusActive, domain.StatusFailed},
	domain.StatusActive:      {domain.StatusCrashed},
	domain.StatusFailed:      {domain.StatusRollingBack},
	domain.StatusCrashed:     {domain.StatusRollingBack},
	domain.StatusRollingBack: {domain.StatusRolledBack, domain.StatusFailed},
	domain.StatusRolledBack:  {},
}

// CanTransition checks if a transition from one status to another is legal.
func CanTransition(from, to domain.DeploymentStatus) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}

	for _, target := range targets {
		if target == to {
			return true
		}
	}
	return false
}

// LegalTargets returns the statuses reachable from the given status,
// in declaration order. The returned slice is a copy.
func LegalTargets(from domain.DeploymentStatus) []domain.DeploymentStatus {
	targets := validTransitions[from]
	out := make([]domain.DeploymentStatus, len(targets))
	copy(out, targets)
	return out
}
