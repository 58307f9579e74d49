package control

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/shepherd/internal/core/domain"
	"github.com/vietddude/shepherd/internal/core/lifecycle"
	"github.com/vietddude/shepherd/internal/infra/storage"
	"github.com/vietddude/shepherd/internal/infra/storage/postgres"
	"github.com/vietddude/shepherd/internal/ops/metrics"
)

// Recorder fans every successful transition out to storage, prometheus
// and the shared metrics collector. Persistence uses a unit of work when
// a database is available so the status column can never diverge from
// the audit log.
type Recorder struct {
	db          *postgres.DB // nil on memory storage
	deployments storage.DeploymentRepository
	transitions storage.TransitionLogRepository
	collector   *lifecycle.MetricsCollector
	log         *slog.Logger
	timeout     time.Duration
}

// NewRecorder creates a recorder over the given storage backends.
func NewRecorder(
	db *postgres.DB,
	deployments storage.DeploymentRepository,
	transitions storage.TransitionLogRepository,
	collector *lifecycle.MetricsCollector,
) *Recorder {
	return &Recorder{
		db:          db,
		deployments: deployments,
		transitions: transitions,
		collector:   collector,
		log:         slog.Default(),
		timeout:     10 * time.Second,
	}
}

// Callback returns a machine callback for one deployment's machine.
// It runs outside the machine lock, so it may take its time persisting.
func (r *Recorder) Callback(service string) lifecycle.TransitionCallback {
	return func(deploymentID string, rec domain.TransitionRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()

		if err := r.persist(ctx, deploymentID, rec); err != nil {
			r.log.Error("failed to persist transition",
				"service", service,
				"deployment", deploymentID,
				"to", rec.To,
				"error", err)
		}

		r.collector.RecordTransition(deploymentID, rec)
		metrics.TransitionsTotal.WithLabelValues(service, string(rec.To)).Inc()
		metrics.DeploymentStatus.WithLabelValues(service, string(rec.From)).Set(0)
		metrics.DeploymentStatus.WithLabelValues(service, string(rec.To)).Set(1)

		r.log.Info("deployment transitioned",
			"service", service,
			"deployment", deploymentID,
			"from", rec.From,
			"to", rec.To,
			"reason", rec.Reason)
	}
}

func (r *Recorder) persist(ctx context.Context, deploymentID string, rec domain.TransitionRecord) error {
	if r.db != nil {
		uow, err := r.db.NewUnitOfWork(ctx)
		if err != nil {
			return err
		}
		defer func() {
			_ = uow.Rollback()
		}()

		if err := uow.SetDeploymentStatus(ctx, deploymentID, rec.To); err != nil {
			return err
		}
		if err := uow.RecordTransition(ctx, deploymentID, rec); err != nil {
			return err
		}
		return uow.Commit()
	}

	if err := r.deployments.UpdateStatus(ctx, deploymentID, rec.To); err != nil {
		return err
	}
	return r.transitions.Append(ctx, deploymentID, rec)
}
