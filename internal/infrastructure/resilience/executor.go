package resilience

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
)

type ErrorClassification struct {
	Retryable     bool
	RecordFailure bool
}

type ErrorClassifier func(err error) ErrorClassification

// Attempt is one invocation of a guarded call; attempt numbers start at 1.
type Attempt func(ctx context.Context, attempt int) error

// Executor runs remote calls with bounded retry and a per-operation circuit breaker.
type Executor struct {
	cfg Config

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[int]
}

func NewExecutor(cfg Config) *Executor {
	return &Executor{
		cfg:      cfg.normalize(),
		breakers: make(map[string]*gobreaker.CircuitBreaker[int]),
	}
}

func (e *Executor) Config() Config {
	return e.cfg
}

// Execute runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is spent. It reports how many attempts were made.
func (e *Executor) Execute(
	ctx context.Context,
	operation string,
	fn Attempt,
	classifier ErrorClassifier,
) (int, error) {
	if fn == nil {
		return 0, errors.New("resilience: operation callback is nil")
	}
	op := cmp.Or(strings.TrimSpace(operation), "unknown")
	if classifier == nil {
		classifier = defaultClassifier
	}

	if !e.cfg.BreakerEnabled {
		return e.executeWithRetry(ctx, op, fn, classifier)
	}

	var attempts int
	_, err := e.breakerFor(op, classifier).Execute(func() (int, error) {
		n, err := e.executeWithRetry(ctx, op, fn, classifier)
		attempts = n
		return n, err
	})
	if IsCircuitOpen(err) {
		return attempts, domain.WrapError(domain.ErrTemporary, op, err)
	}
	return attempts, err
}

func (e *Executor) executeWithRetry(
	ctx context.Context,
	operation string,
	fn Attempt,
	classifier ErrorClassifier,
) (int, error) {
	maxAttempts := e.cfg.RetryMaxAttempts

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, cmp.Or(lastErr, err)
		}

		lastErr = fn(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if attempt == maxAttempts || !classifier(lastErr).Retryable {
			return attempt, lastErr
		}

		wait := e.cfg.backoff(attempt)
		slog.Warn("retry_attempt",
			"operation", operation,
			"attempt", attempt,
			"max_attempts", maxAttempts,
			"backoff_ms", wait.Milliseconds(),
			"error", lastErr,
		)
		if !sleep(ctx, wait) {
			return attempt, lastErr
		}
	}
	return maxAttempts, lastErr
}

// sleep waits for d and reports false when ctx ends first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// breakerFor returns the breaker owning operation. The classifier of the
// first call for an operation decides what counts as a failure.
func (e *Executor) breakerFor(operation string, classifier ErrorClassifier) *gobreaker.CircuitBreaker[int] {
	e.mu.Lock()
	defer e.mu.Unlock()

	cb, ok := e.breakers[operation]
	if !ok {
		cb = gobreaker.NewCircuitBreaker[int](e.cfg.breakerSettings(operation, classifier))
		e.breakers[operation] = cb
	}
	return cb
}

func (c Config) breakerSettings(name string, classifier ErrorClassifier) gobreaker.Settings {
	return gobreaker.Settings{
		Name:        name,
		MaxRequests: c.BreakerHalfOpenMaxCalls,
		Timeout:     c.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= c.BreakerMinRequests &&
				float64(counts.TotalFailures) >= c.BreakerFailureRatio*float64(counts.Requests)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !classifier(err).RecordFailure
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("circuit_breaker_state_change", "operation", name, "from", from.String(), "to", to.String())
		},
	}
}

func IsCircuitOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}

// defaultClassifier never retries and counts every error against the breaker.
func defaultClassifier(error) ErrorClassification {
	return ErrorClassification{RecordFailure: true}
}

// ClassifyRemoteError maps domain error kinds of a vision/text endpoint call.
// Transport failures and malformed payloads are retried; only transport
// failures count against the breaker.
func ClassifyRemoteError(err error) ErrorClassification {
	switch {
	case err == nil:
		return ErrorClassification{}
	case errors.Is(err, context.Canceled):
		return ErrorClassification{}
	case domain.IsKind(err, domain.ErrRemoteTransport), domain.IsKind(err, domain.ErrTemporary):
		return ErrorClassification{Retryable: true, RecordFailure: true}
	case domain.IsKind(err, domain.ErrRemoteFormat):
		return ErrorClassification{Retryable: true}
	default:
		return ErrorClassification{}
	}
}
