package resilience

import (
	"math/rand/v2"
	"time"
)

// Config sizes the retry loop and the circuit breaker of an Executor.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64
	// RetryJitter spreads each wait by up to this fraction so parallel
	// classification workers do not retry in lockstep. 0 disables it.
	RetryJitter float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 100 * time.Millisecond,
		RetryMaxBackoff:     400 * time.Millisecond,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      10,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 2,
	}
}

// ForRemoteCalls is the policy for model endpoints: one call plus maxRetries
// retries, with longer jittered waits than the default. It has no breaker;
// every photo gets its full attempt budget however many photos failed before it.
func ForRemoteCalls(maxRetries int) Config {
	cfg := DefaultConfig()
	cfg.RetryMaxAttempts = max(maxRetries, 0) + 1
	cfg.RetryInitialBackoff = 500 * time.Millisecond
	cfg.RetryMaxBackoff = 4 * time.Second
	cfg.RetryJitter = 0.2
	cfg.BreakerEnabled = false
	return cfg
}

func (c Config) normalize() Config {
	def := DefaultConfig()
	out := c
	out.RetryMaxAttempts = positiveOr(out.RetryMaxAttempts, def.RetryMaxAttempts)
	out.RetryInitialBackoff = positiveOr(out.RetryInitialBackoff, def.RetryInitialBackoff)
	out.RetryMaxBackoff = max(positiveOr(out.RetryMaxBackoff, def.RetryMaxBackoff), out.RetryInitialBackoff)
	if out.RetryMultiplier < 1 {
		out.RetryMultiplier = def.RetryMultiplier
	}
	out.RetryJitter = min(max(out.RetryJitter, 0), 1)

	out.BreakerMinRequests = positiveOr(out.BreakerMinRequests, def.BreakerMinRequests)
	if out.BreakerFailureRatio <= 0 || out.BreakerFailureRatio > 1 {
		out.BreakerFailureRatio = def.BreakerFailureRatio
	}
	out.BreakerOpenTimeout = positiveOr(out.BreakerOpenTimeout, def.BreakerOpenTimeout)
	out.BreakerHalfOpenMaxCalls = positiveOr(out.BreakerHalfOpenMaxCalls, def.BreakerHalfOpenMaxCalls)
	return out
}

// backoff is the wait after the given failed attempt (1-based): exponential
// from RetryInitialBackoff, capped at RetryMaxBackoff, then jittered.
func (c Config) backoff(attempt int) time.Duration {
	wait := float64(c.RetryInitialBackoff)
	for i := 1; i < attempt; i++ {
		wait *= c.RetryMultiplier
		if wait >= float64(c.RetryMaxBackoff) {
			break
		}
	}
	wait = min(wait, float64(c.RetryMaxBackoff))
	if c.RetryJitter > 0 {
		wait *= 1 - c.RetryJitter + 2*c.RetryJitter*rand.Float64()
	}
	return time.Duration(wait)
}

func positiveOr[T int | uint32 | time.Duration](v, fallback T) T {
	if v <= 0 {
		return fallback
	}
	return v
}
