package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/shepherd/internal/core/domain"
	"github.com/vietddude/shepherd/internal/infra/storage"
)

// DeploymentRepo implements storage.DeploymentRepository using PostgreSQL.
type DeploymentRepo struct {
	db *DB
}

// NewDeploymentRepo creates a new PostgreSQL deployment repository.
func NewDeploymentRepo(db *DB) *DeploymentRepo {
	return &DeploymentRepo{db: db}
}

type deploymentRow struct {
	ID          string    `db:"id"`
	Service     string    `db:"service"`
	Image       string    `db:"image"`
	Environment string    `db:"environment"`
	Status      string    `db:"status"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (row deploymentRow) toDomain() *domain.Deployment {
	return &domain.Deployment{
		ID:          row.ID,
		Service:     row.Service,
		Image:       row.Image,
		Environment: row.Environment,
		Status:      domain.DeploymentStatus(row.Status),
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
}

// Save inserts or updates a deployment.
func (r *DeploymentRepo) Save(ctx context.Context, d *domain.Deployment) error {
	query := `
		INSERT INTO deployments (id, service, image, environment, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE
		SET image = EXCLUDED.image,
		    environment = EXCLUDED.environment,
		    status = EXCLUDED.status,
		    updated_at = NOW()
	`
	_, err := r.db.ExecContext(ctx, query, d.ID, d.Service, d.Image, d.Environment, string(d.Status))
	if err != nil {
		return fmt.Errorf("failed to save deployment: %w", err)
	}
	return nil
}

// Get retrieves a deployment by ID.
func (r *DeploymentRepo) Get(ctx context.Context, id string) (*domain.Deployment, error) {
	query := `
		SELECT id, service, image, environment, status, created_at, updated_at
		FROM deployments
		WHERE id = $1
	`

	var row deploymentRow
	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrDeploymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment: %w", err)
	}
	return row.toDomain(), nil
}

// GetByService retrieves the newest deployment for a service.
func (r *DeploymentRepo) GetByService(ctx context.Context, service string) (*domain.Deployment, error) {
	query := `
		SELECT id, service, image, environment, status, created_at, updated_at
		FROM deployments
		WHERE service = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	var row deploymentRow
	err := r.db.GetContext(ctx, &row, query, service)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrDeploymentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get deployment for service: %w", err)
	}
	return row.toDomain(), nil
}

// List retrieves deployments, newest first.
func (r *DeploymentRepo) List(ctx context.Context, limit int) ([]*domain.Deployment, error) {
	query := `
		SELECT id, service, image, environment, status, created_at, updated_at
		FROM deployments
		ORDER BY created_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	var rows []deploymentRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list deployments: %w", err)
	}

	out := make([]*domain.Deployment, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

// UpdateStatus updates the stored status of a deployment.
func (r *DeploymentRepo) UpdateStatus(ctx context.Context, id string, status domain.DeploymentStatus) error {
	query := `
		UPDATE deployments
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`
	res, err := r.db.ExecContext(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update deployment status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check update result: %w", err)
	}
	if affected == 0 {
		return storage.ErrDeploymentNotFound
	}
	return nil
}
