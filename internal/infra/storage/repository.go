package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/shepherd/internal/core/domain"
)

var (
	// ErrDeploymentNotFound is returned when a deployment doesn't exist
	ErrDeploymentNotFound = errors.New("deployment not found")
)

// DeploymentRepository handles deployment storage operations
type DeploymentRepository interface {
	// Save inserts or updates a deployment
	Save(ctx context.Context, d *domain.Deployment) error

	// Get retrieves a deployment by ID
	Get(ctx context.Context, id string) (*domain.Deployment, error)

	// GetByService retrieves the newest deployment for a service
	GetByService(ctx context.Context, service string) (*domain.Deployment, error)

	// List retrieves deployments, newest first. A limit of 0 means all.
	List(ctx context.Context, limit int) ([]*domain.Deployment, error)

	// UpdateStatus updates the stored status of a deployment
	UpdateStatus(ctx context.Context, id string, status domain.DeploymentStatus) error
}

// TransitionLogRepository handles the transition audit log
type TransitionLogRepository interface {
	// Append records a single transition
	Append(ctx context.Context, deploymentID string, rec domain.TransitionRecord) error

	// History retrieves all transitions for a deployment in record order
	History(ctx context.Context, deploymentID string) ([]domain.TransitionRecord, error)

	// DeleteOlderThan prunes log entries recorded before the cutoff,
	// returning the number of rows removed
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
