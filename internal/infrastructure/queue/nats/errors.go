package nats

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/sd-photo-assistant/internal/core/domain"
	"github.com/kirillkom/sd-photo-assistant/internal/infrastructure/resilience"
)

// transientErrors clear up once the connection recovers.
var transientErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrReconnectBufExceeded,
	nats.ErrSlowConsumer,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
}

func isTransient(err error) bool {
	for _, target := range transientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// publishPolicy tells the executor how to treat a failed publish attempt.
// Cancellation and an open breaker are neither retried nor counted.
func publishPolicy(err error) resilience.ErrorClassification {
	switch {
	case err == nil:
		return resilience.ErrorClassification{}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded), resilience.IsCircuitOpen(err):
		return resilience.ErrorClassification{}
	case isTransient(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

// publishError maps a final publish failure onto a domain kind.
func publishError(photoID int64, err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	kind := domain.ErrIO
	if isTransient(err) || resilience.IsCircuitOpen(err) {
		kind = domain.ErrTemporary
	}
	return domain.WrapError(kind, "publish photo event", fmt.Errorf("photo %d: %w", photoID, err))
}
