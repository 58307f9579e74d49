package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/shepherd/internal/core/domain"
)

// escalationTTL bounds how long an undrained escalation is kept.
const escalationTTL = 7 * 24 * time.Hour

// EscalationQueue holds failures the healing loop gave up on, ordered
// oldest first, for operators to drain.
type EscalationQueue struct {
	rdb *redis.Client
}

// NewEscalationQueue creates a Redis-backed escalation queue. A nil
// client yields a nil queue, which degrades every operation to a no-op.
func NewEscalationQueue(client *Client) *EscalationQueue {
	if client == nil {
		return nil
	}
	return &EscalationQueue{rdb: client.rdb}
}

func queueKey() string {
	return "escalations"
}

func escalationKey(id string) string {
	return fmt.Sprintf("escalation:%s", id)
}

// Push adds an escalation to the queue.
func (q *EscalationQueue) Push(ctx context.Context, esc *domain.Escalation) error {
	if q == nil {
		return nil
	}

	data, err := json.Marshal(esc)
	if err != nil {
		return fmt.Errorf("failed to marshal escalation: %w", err)
	}

	// Store the data
	if err := q.rdb.Set(ctx, escalationKey(esc.ID), data, escalationTTL).Err(); err != nil {
		return fmt.Errorf("failed to set escalation: %w", err)
	}

	// Add to sorted set (score = escalation time, lower = drain first)
	if err := q.rdb.ZAdd(ctx, queueKey(), redis.Z{
		Score:  float64(esc.EscalatedAt.UnixMilli()),
		Member: esc.ID,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add to queue: %w", err)
	}

	return nil
}

// PopOldest removes and returns the oldest escalation, or nil when the
// queue is empty. Entries whose data has expired are skipped and cleaned.
func (q *EscalationQueue) PopOldest(ctx context.Context) (*domain.Escalation, error) {
	if q == nil {
		return nil, nil
	}

	for {
		results, err := q.rdb.ZRange(ctx, queueKey(), 0, 0).Result()
		if err != nil {
			return nil, fmt.Errorf("zrange failed: %w", err)
		}
		if len(results) == 0 {
			return nil, nil
		}

		id := results[0]
		data, err := q.rdb.Get(ctx, escalationKey(id)).Bytes()
		if err == redis.Nil {
			// Data expired but ID still in queue, remove and keep looking
			q.rdb.ZRem(ctx, queueKey(), id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get escalation: %w", err)
		}

		if err := q.rdb.ZRem(ctx, queueKey(), id).Err(); err != nil {
			return nil, fmt.Errorf("failed to remove from queue: %w", err)
		}
		if err := q.rdb.Del(ctx, escalationKey(id)).Err(); err != nil {
			return nil, fmt.Errorf("failed to delete escalation: %w", err)
		}

		var esc domain.Escalation
		if err := json.Unmarshal(data, &esc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal escalation: %w", err)
		}
		return &esc, nil
	}
}

// All returns every queued escalation, oldest first.
func (q *EscalationQueue) All(ctx context.Context) ([]*domain.Escalation, error) {
	if q == nil {
		return nil, nil
	}

	ids, err := q.rdb.ZRange(ctx, queueKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("zrange failed: %w", err)
	}

	out := make([]*domain.Escalation, 0, len(ids))
	for _, id := range ids {
		data, err := q.rdb.Get(ctx, escalationKey(id)).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get escalation: %w", err)
		}

		var esc domain.Escalation
		if err := json.Unmarshal(data, &esc); err != nil {
			continue
		}
		out = append(out, &esc)
	}

	return out, nil
}

// Count returns the number of queued escalations.
func (q *EscalationQueue) Count(ctx context.Context) (int, error) {
	if q == nil {
		return 0, nil
	}

	count, err := q.rdb.ZCard(ctx, queueKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(count), nil
}
