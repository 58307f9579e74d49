package healing

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"
)

// Config defines healing loop behavior.
type Config struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration

	// JitterFraction is the maximum jitter as a fraction of the computed
	// backoff (0-1), applied only to transient network failures.
	JitterFraction float64

	// MinRateLimitWait is a floor on the wait after a rate-limited
	// attempt, e.g. from a Retry-After hint the caller observed.
	MinRateLimitWait time.Duration
}

// DefaultConfig provides sensible defaults.
var DefaultConfig = Config{
	MaxRetries:     3,
	BaseDelay:      2 * time.Second,
	MaxDelay:       60 * time.Second,
	JitterFraction: 0.2,
}

// Loop retries a fallible operation according to the fixed per-error-type
// strategy mapping. It never returns an error for a classified operation
// failure; callers inspect Result.Succeeded. The returned error is
// reserved for misuse, e.g. an operation with no run function.
type Loop struct {
	cfg Config

	// Injection points for tests.
	sleep     func(ctx context.Context, d time.Duration) error
	randFloat func() float64
}

// New creates a healing loop. Zero config fields take defaults; negative
// or inconsistent values are rejected.
func New(cfg Config) (*Loop, error) {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultConfig.BaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	if cfg.JitterFraction == 0 {
		cfg.JitterFraction = DefaultConfig.JitterFraction
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("healing: max retries must be positive, got %d", cfg.MaxRetries)
	}
	if cfg.BaseDelay < 0 || cfg.MaxDelay < 0 || cfg.MinRateLimitWait < 0 {
		return nil, fmt.Errorf("healing: delays must not be negative")
	}
	if cfg.MaxDelay < cfg.BaseDelay {
		return nil, fmt.Errorf("healing: max delay %v below base delay %v", cfg.MaxDelay, cfg.BaseDelay)
	}
	if cfg.JitterFraction < 0 || cfg.JitterFraction > 1 {
		return nil, fmt.Errorf("healing: jitter fraction must be in [0, 1], got %v", cfg.JitterFraction)
	}

	return &Loop{
		cfg:       cfg,
		sleep:     sleepContext,
		randFloat: rand.Float64,
	}, nil
}

// WithMinRateLimitWait returns a loop whose rate-limited waits are
// floored at the given duration, e.g. from a stored Retry-After hint.
// The receiver is unchanged; shorter floors are ignored.
func (l *Loop) WithMinRateLimitWait(d time.Duration) *Loop {
	if d <= l.cfg.MinRateLimitWait {
		return l
	}
	cp := *l
	cp.cfg.MinRateLimitWait = d
	return &cp
}

// Execute runs the operation, classifying each failure and retrying per
// strategy until success, escalation, budget exhaustion, or cancellation.
// Attempts are strictly sequential; cancellation is honored between
// attempts and during backoff waits, never mid-operation.
func (l *Loop) Execute(ctx context.Context, op Operation) (Result, error) {
	if op.Run == nil {
		return Result{}, fmt.Errorf("healing: operation %q has no run function", op.Name)
	}

	maxRetries := op.MaxRetries
	if maxRetries <= 0 {
		maxRetries = l.cfg.MaxRetries
	}

	start := time.Now()
	result := Result{OperationName: op.Name}
	unknownRetried := false

	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			result.FinalError = err
			break
		}

		err := op.Run(ctx)
		if err == nil {
			result.Attempts = append(result.Attempts, Attempt{Number: attempt, At: time.Now().UTC()})
			result.Succeeded = true
			break
		}

		errType := Classify(err)
		strategy := StrategyFor(errType)
		if errType == ErrorUnknown && unknownRetried {
			strategy = StrategyEscalate
		}

		rec := Attempt{
			Number:    attempt,
			ErrorType: errType,
			Strategy:  strategy,
			At:        time.Now().UTC(),
			Err:       err.Error(),
		}

		if !strategy.Retryable() || attempt >= maxRetries {
			result.Attempts = append(result.Attempts, rec)
			result.FinalError = err
			break
		}

		rec.Wait = l.waitFor(strategy, errType, attempt)
		result.Attempts = append(result.Attempts, rec)
		if errType == ErrorUnknown {
			unknownRetried = true
		}

		if serr := l.sleep(ctx, rec.Wait); serr != nil {
			result.Cancelled = true
			result.FinalError = serr
			break
		}
	}

	result.TotalDuration = time.Since(start)
	return result, nil
}

// SelfHeal wraps a callable in an Operation and executes it. A
// maxRetries of 0 uses the loop default.
func (l *Loop) SelfHeal(ctx context.Context, name string, maxRetries int, fn func(ctx context.Context) error) (Result, error) {
	return l.Execute(ctx, Operation{Name: name, Run: fn, MaxRetries: maxRetries})
}

// SelfHealShell runs a command with healing retries, treating a non-zero
// exit as failure and the command output as the failure text.
func (l *Loop) SelfHealShell(ctx context.Context, argv []string, maxRetries int) (Result, error) {
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("healing: empty command")
	}

	op := ShellOperation(strings.Join(argv, " "), argv)
	op.MaxRetries = maxRetries
	return l.Execute(ctx, op)
}

// waitFor computes the post-failure wait for the given strategy.
func (l *Loop) waitFor(strategy FixStrategy, errType ErrorType, attempt int) time.Duration {
	switch strategy {
	case StrategyRetryBackoff:
		delay := backoffDelay(attempt, l.cfg.BaseDelay, l.cfg.MaxDelay)
		if errType == ErrorRateLimit && delay < l.cfg.MinRateLimitWait {
			delay = l.cfg.MinRateLimitWait
		}
		return delay
	case StrategyRetryBackoffJitter:
		delay := backoffDelay(attempt, l.cfg.BaseDelay, l.cfg.MaxDelay)
		return applyJitter(delay, l.cfg.JitterFraction, l.randFloat)
	default:
		return 0
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
