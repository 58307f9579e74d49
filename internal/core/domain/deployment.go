package domain

import (
	"fmt"
	"time"
)

// DeploymentStatus represents the lifecycle state of a deployment.
type DeploymentStatus string

const (
	StatusPending     DeploymentStatus = "pending"
	StatusBuilding    DeploymentStatus = "building"
	StatusDeploying   DeploymentStatus = "deploying"
	StatusActive      DeploymentStatus = "active"
	StatusFailed      DeploymentStatus = "failed"
	StatusCrashed     DeploymentStatus = "crashed"
	StatusRollingBack DeploymentStatus = "rolling_back"
	StatusRolledBack  DeploymentStatus = "rolled_back"
)

// AllStatuses lists every lifecycle state in declaration order.
var AllStatuses = []DeploymentStatus{
	StatusPending,
	StatusBuilding,
	StatusDeploying,
	StatusActive,
	StatusFailed,
	StatusCrashed,
	StatusRollingBack,
	StatusRolledBack,
}

// Valid reports whether s is a known lifecycle state.
func (s DeploymentStatus) Valid() bool {
	switch s {
	case StatusPending, StatusBuilding, StatusDeploying, StatusActive,
		StatusFailed, StatusCrashed, StatusRollingBack, StatusRolledBack:
		return true
	default:
		return false
	}
}

// Terminal reports whether the state has no outgoing transitions.
// Only rolled_back is terminal; active can still crash.
func (s DeploymentStatus) Terminal() bool {
	return s == StatusRolledBack
}

// ParseStatus converts a stored string into a DeploymentStatus.
func ParseStatus(raw string) (DeploymentStatus, error) {
	s := DeploymentStatus(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown deployment status %q", raw)
	}
	return s, nil
}

// Description returns a human-readable description of a state.
func (s DeploymentStatus) Description() string {
	switch s {
	case StatusPending:
		return "Pending - deployment registered, nothing started"
	case StatusBuilding:
		return "Building - build triggered on the remote platform"
	case StatusDeploying:
		return "Deploying - artifact is being rolled out"
	case StatusActive:
		return "Active - deployment serving traffic"
	case StatusFailed:
		return "Failed - build or deploy step failed"
	case StatusCrashed:
		return "Crashed - previously active deployment stopped responding"
	case StatusRollingBack:
		return "Rolling back - reverting to the previous release"
	case StatusRolledBack:
		return "Rolled back - previous release restored, lifecycle closed"
	default:
		return "Unknown state"
	}
}

// Deployment is the persisted projection of one tracked deployment.
type Deployment struct {
	ID          string
	Service     string
	Image       string
	Environment string
	Status      DeploymentStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
