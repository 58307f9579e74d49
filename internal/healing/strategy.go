package healing

import (
	"math"
	"time"
)

// FixStrategy determines how the loop reacts to a classified failure.
type FixStrategy int

const (
	StrategyRetryImmediate FixStrategy = iota
	StrategyRetryBackoff
	StrategyRetryBackoffJitter
	StrategyEscalate
	StrategyNoFix
)

func (s FixStrategy) String() string {
	switch s {
	case StrategyRetryImmediate:
		return "retry_immediate"
	case StrategyRetryBackoff:
		return "retry_with_backoff"
	case StrategyRetryBackoffJitter:
		return "retry_with_backoff_and_jitter"
	case StrategyEscalate:
		return "escalate"
	case StrategyNoFix:
		return "no_fix"
	default:
		return "unknown"
	}
}

// Retryable reports whether the strategy permits another attempt.
func (s FixStrategy) Retryable() bool {
	switch s {
	case StrategyRetryImmediate, StrategyRetryBackoff, StrategyRetryBackoffJitter:
		return true
	default:
		return false
	}
}

// StrategyFor returns the fixed strategy for an error type. The mapping
// is not configurable: auth failures are never retried (credentials will
// not fix themselves) and build failures always escalate (retrying a
// broken build wastes budget). Unknown failures get one immediate retry;
// the loop escalates them after that.
func StrategyFor(t ErrorType) FixStrategy {
	switch t {
	case ErrorTransientNetwork:
		return StrategyRetryBackoffJitter
	case ErrorRateLimit:
		return StrategyRetryBackoff
	case ErrorBuildFailure:
		return StrategyEscalate
	case ErrorAuthFailure:
		return StrategyNoFix
	case ErrorResourceExhausted:
		return StrategyRetryBackoff
	default:
		return StrategyRetryImmediate
	}
}

// backoffDelay calculates the wait after failed attempt n (1-based):
// base * 2^(n-1), capped at max.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(base) * math.Pow(2, float64(attempt-1))
	if delay > float64(max) {
		return max
	}
	return time.Duration(delay)
}

// applyJitter perturbs a delay into [delay*(1-f), delay*(1+f)] using the
// supplied uniform random source. The result is never negative.
func applyJitter(delay time.Duration, fraction float64, randFloat func() float64) time.Duration {
	if fraction <= 0 || randFloat == nil {
		return delay
	}

	jitter := (randFloat()*2 - 1) * fraction
	out := time.Duration(float64(delay) * (1.0 + jitter))
	if out < 0 {
		return 0
	}
	return out
}
