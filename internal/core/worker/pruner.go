package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/shepherd/internal/infra/storage"
)

// Pruner deletes transition log entries older than the retention period.
// The state machine itself never forgets history; retention applies only
// to the persisted audit log.
type Pruner struct {
	ttl         time.Duration
	interval    time.Duration
	transitions storage.TransitionLogRepository
	log         *slog.Logger
}

// NewPruner creates a pruner. A zero interval derives one from the TTL.
func NewPruner(ttl, interval time.Duration, transitions storage.TransitionLogRepository) *Pruner {
	if interval <= 0 {
		// Check at 10% of the retention period, clamped to [1m, 1h]
		interval = min(ttl/10, time.Hour)
		interval = max(interval, time.Minute)
	}
	return &Pruner{
		ttl:         ttl,
		interval:    interval,
		transitions: transitions,
		log:         slog.Default(),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.ttl <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// Initial prune
	p.prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.prune(ctx)
		}
	}
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.ttl)

	removed, err := p.transitions.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.log.Error("failed to prune transition log", "error", err)
		return
	}
	if removed > 0 {
		p.log.Info("pruned transition log", "removed", removed, "cutoff", cutoff)
	}
}
