package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/vietddude/shepherd/internal/core/domain"
	"github.com/vietddude/shepherd/internal/infra/storage"
	"github.com/vietddude/shepherd/internal/ops/metrics"
)

// UnitOfWork bundles all persistence operations into a single database transaction,
// ensuring atomicity (all succeed or all fail).
type UnitOfWork struct {
	db *DB
	tx *sqlx.Tx
}

// NewUnitOfWork creates a new unit of work with an active transaction.
func (db *DB) NewUnitOfWork(ctx context.Context) (*UnitOfWork, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &UnitOfWork{
		db: db,
		tx: tx,
	}, nil
}

// Commit commits the transaction.
func (u *UnitOfWork) Commit() error {
	if u.tx == nil {
		return fmt.Errorf("transaction already completed")
	}
	err := u.tx.Commit()
	u.tx = nil
	return err
}

// Rollback rolls back the transaction. Safe to call multiple times.
func (u *UnitOfWork) Rollback() error {
	if u.tx == nil {
		return nil // Already committed or rolled back
	}
	err := u.tx.Rollback()
	u.tx = nil
	return err
}

// SetDeploymentStatus updates the deployment's stored status within the transaction.
func (u *UnitOfWork) SetDeploymentStatus(ctx context.Context, id string, status domain.DeploymentStatus) error {
	query := `
		UPDATE deployments
		SET status = $1, updated_at = NOW()
		WHERE id = $2
	`
	res, err := u.tx.ExecContext(ctx, query, string(status), id)
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

// RecordTransition appends one transition within the transaction.
func (u *UnitOfWork) RecordTransition(ctx context.Context, deploymentID string, rec domain.TransitionRecord) error {
	metadata, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO deployment_transitions (deployment_id, from_status, to_status, reason, metadata, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = u.tx.ExecContext(ctx, query,
		deploymentID, string(rec.From), string(rec.To), rec.Reason, metadata, rec.At)
	if err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

// AppendTransitions appends a batch of transitions with a multi-row INSERT,
// e.g. when flushing a machine's full history snapshot.
func (u *UnitOfWork) AppendTransitions(ctx context.Context, deploymentID string, recs []domain.TransitionRecord) error {
	if len(recs) == 0 {
		return nil
	}

	query := `
		INSERT INTO deployment_transitions (deployment_id, from_status, to_status, reason, metadata, recorded_at)
		VALUES
	`
	args := make([]any, 0, len(recs)*6)
	for i, rec := range recs {
		metadata, err := marshalMetadata(rec.Metadata)
		if err != nil {
			return err
		}

		if i > 0 {
			query += ","
		}
		base := i * 6
		query += fmt.Sprintf(" ($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6)
		args = append(args, deploymentID, string(rec.From), string(rec.To), rec.Reason, metadata, rec.At)
	}

	// Record batch size metric
	metrics.DBBatchSize.WithLabelValues("append_transitions").Observe(float64(len(recs)))

	if _, err := u.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to append transitions batch: %w", err)
	}
	return nil
}
