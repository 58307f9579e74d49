package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/shepherd/internal/core/domain"
	"github.com/vietddude/shepherd/internal/infra/storage"
)

// MemoryStorage backs the repositories with plain maps. Used by tests
// and by service mode when no database is configured.
type MemoryStorage struct {
	deployments map[string]*domain.Deployment
	transitions map[string][]domain.TransitionRecord
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		deployments: make(map[string]*domain.Deployment),
		transitions: make(map[string][]domain.TransitionRecord),
	}
}

// -----------------------------------------------------------------------------
// Deployment Repository
// -----------------------------------------------------------------------------

type DeploymentRepo struct {
	store *MemoryStorage
}

func NewDeploymentRepo(store *MemoryStorage) *DeploymentRepo {
	return &DeploymentRepo{store: store}
}

func (r *DeploymentRepo) Save(ctx context.Context, d *domain.Deployment) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	cp := *d
	now := time.Now().UTC()
	if existing, ok := r.store.deployments[d.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.store.deployments[d.ID] = &cp
	return nil
}

func (r *DeploymentRepo) Get(ctx context.Context, id string) (*domain.Deployment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	d, ok := r.store.deployments[id]
	if !ok {
		return nil, storage.ErrDeploymentNotFound
	}
	// Return a copy
	cp := *d
	return &cp, nil
}

func (r *DeploymentRepo) GetByService(ctx context.Context, service string) (*domain.Deployment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var newest *domain.Deployment
	for _, d := range r.store.deployments {
		if d.Service != service {
			continue
		}
		if newest == nil || d.CreatedAt.After(newest.CreatedAt) {
			newest = d
		}
	}
	if newest == nil {
		return nil, storage.ErrDeploymentNotFound
	}
	cp := *newest
	return &cp, nil
}

func (r *DeploymentRepo) List(ctx context.Context, limit int) ([]*domain.Deployment, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.Deployment, 0, len(r.store.deployments))
	for _, d := range r.store.deployments {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *DeploymentRepo) UpdateStatus(ctx context.Context, id string, status domain.DeploymentStatus) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	d, ok := r.store.deployments[id]
	if !ok {
		return storage.ErrDeploymentNotFound
	}
	d.Status = status
	d.UpdatedAt = time.Now().UTC()
	return nil
}

// -----------------------------------------------------------------------------
// Transition Log Repository
// -----------------------------------------------------------------------------

type TransitionRepo struct {
	store *MemoryStorage
}

func NewTransitionRepo(store *MemoryStorage) *TransitionRepo {
	return &TransitionRepo{store: store}
}

func (r *TransitionRepo) Append(ctx context.Context, deploymentID string, rec domain.TransitionRecord) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.transitions[deploymentID] = append(r.store.transitions[deploymentID], copyRecord(rec))
	return nil
}

func (r *TransitionRepo) History(ctx context.Context, deploymentID string) ([]domain.TransitionRecord, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	recs := r.store.transitions[deploymentID]
	out := make([]domain.TransitionRecord, len(recs))
	for i, rec := range recs {
		out[i] = copyRecord(rec)
	}
	return out, nil
}

func (r *TransitionRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var removed int64
	for id, recs := range r.store.transitions {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.At.Before(cutoff) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(r.store.transitions, id)
		} else {
			r.store.transitions[id] = kept
		}
	}
	return removed, nil
}

func copyRecord(rec domain.TransitionRecord) domain.TransitionRecord {
	out := rec
	if rec.Metadata != nil {
		md := make(map[string]string, len(rec.Metadata))
		for k, v := range rec.Metadata {
			md[k] = v
		}
		out.Metadata = md
	}
	return out
}
