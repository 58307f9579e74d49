package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the escalation queue and rate-limit
// hints. The service degrades to in-process behavior when Redis is not
// configured; callers hold a nil *Client in that case.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks redis connectivity.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func hintKey(target string) string {
	return fmt.Sprintf("rate_limit:%s", target)
}

// SetRetryAfterHint stores a minimum-wait hint for a target after a
// rate-limited response. The hint expires on its own once the wait has
// elapsed, so a stale hint never outlives the limit that produced it.
func (c *Client) SetRetryAfterHint(ctx context.Context, target string, wait time.Duration) error {
	if c == nil || wait <= 0 {
		return nil
	}

	if err := c.rdb.Set(ctx, hintKey(target), wait.String(), wait).Err(); err != nil {
		return fmt.Errorf("failed to set retry-after hint: %w", err)
	}
	return nil
}

// RetryAfterHint returns the stored minimum wait for a target, or zero
// when no hint is active.
func (c *Client) RetryAfterHint(ctx context.Context, target string) (time.Duration, error) {
	if c == nil {
		return 0, nil
	}

	val, err := c.rdb.Get(ctx, hintKey(target)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get retry-after hint: %w", err)
	}

	wait, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid retry-after hint %q: %w", val, err)
	}
	return wait, nil
}
