package notifier

import (
	"time"

	"tvbridge/internal/logger"
	"tvbridge/internal/pkg/circuit"
)

// Resilient makes any TextNotifier truly fire-and-forget: failures are
// logged and counted against a circuit breaker, never returned. While the
// breaker is open, messages are dropped instead of burning retries against a
// dead endpoint.
type Resilient struct {
	inner   TextNotifier
	breaker *circuit.CircuitBreaker
}

func NewResilient(inner TextNotifier) *Resilient {
	return &Resilient{
		inner:   inner,
		breaker: circuit.NewCircuitBreaker("notifier", 5, 2*time.Minute),
	}
}

func (r *Resilient) SendText(text string) error {
	if !r.breaker.Allow() {
		logger.Debugf("notifier breaker open, dropping message (%d chars)", len(text))
		return nil
	}
	if err := r.inner.SendText(text); err != nil {
		r.breaker.RecordFailure()
		logger.Warnf("notification delivery failed: %v", err)
		return nil
	}
	r.breaker.RecordSuccess()
	return nil
}
