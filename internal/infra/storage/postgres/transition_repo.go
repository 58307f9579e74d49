package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vietddude/shepherd/internal/core/domain"
)

// TransitionRepo implements storage.TransitionLogRepository using PostgreSQL.
type TransitionRepo struct {
	db *DB
}

// NewTransitionRepo creates a new PostgreSQL transition log repository.
func NewTransitionRepo(db *DB) *TransitionRepo {
	return &TransitionRepo{db: db}
}

// Append records a single transition.
func (r *TransitionRepo) Append(ctx context.Context, deploymentID string, rec domain.TransitionRecord) error {
	metadata, err := marshalMetadata(rec.Metadata)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO deployment_transitions (deployment_id, from_status, to_status, reason, metadata, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = r.db.ExecContext(ctx, query,
		deploymentID, string(rec.From), string(rec.To), rec.Reason, metadata, rec.At)
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

// History retrieves all transitions for a deployment in record order.
func (r *TransitionRepo) History(ctx context.Context, deploymentID string) ([]domain.TransitionRecord, error) {
	query := `
		SELECT from_status, to_status, reason, metadata, recorded_at
		FROM deployment_transitions
		WHERE deployment_id = $1
		ORDER BY recorded_at ASC, id ASC
	`

	var rows []struct {
		FromStatus string    `db:"from_status"`
		ToStatus   string    `db:"to_status"`
		Reason     string    `db:"reason"`
		Metadata   []byte    `db:"metadata"`
		RecordedAt time.Time `db:"recorded_at"`
	}

	if err := r.db.SelectContext(ctx, &rows, query, deploymentID); err != nil {
		return nil, fmt.Errorf("failed to get transition history: %w", err)
	}

	history := make([]domain.TransitionRecord, 0, len(rows))
	for _, row := range rows {
		rec := domain.TransitionRecord{
			From:   domain.DeploymentStatus(row.FromStatus),
			To:     domain.DeploymentStatus(row.ToStatus),
			Reason: row.Reason,
			At:     row.RecordedAt,
		}
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode transition metadata: %w", err)
			}
		}
		history = append(history, rec)
	}
	return history, nil
}

// DeleteOlderThan prunes log entries recorded before the cutoff.
func (r *TransitionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM deployment_transitions WHERE recorded_at < $1`

	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transitions: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check prune result: %w", err)
	}
	return affected, nil
}

func marshalMetadata(md map[string]string) ([]byte, error) {
	if len(md) == 0 {
		return nil, nil
	}

	out, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("failed to encode transition metadata: %w", err)
	}
	return out, nil
}
