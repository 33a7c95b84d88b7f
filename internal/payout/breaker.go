package payout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"

	"github.com/poolkeeper/poolkeeper/internal/domain"
	"github.com/poolkeeper/poolkeeper/internal/metrics"
)

// BreakerConfig tunes the payout circuit breaker.
type BreakerConfig struct {
	FailureThreshold uint          // consecutive failures before opening, defaults to 5
	Delay            time.Duration // open to half-open delay, defaults to 30s
	SuccessThreshold uint          // half-open successes required to close, defaults to 1
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.Delay == 0 {
		c.Delay = 30 * time.Second
	}
	if c.SuccessThreshold == 0 {
		c.SuccessThreshold = 1
	}
	return c
}

// BreakerSink wraps a sink with a circuit breaker, so a dead payout rail
// fails fast instead of being hammered on every deposit.
type BreakerSink struct {
	next domain.PayoutSink
	cb   circuitbreaker.CircuitBreaker[any]
}

func NewBreakerSink(next domain.PayoutSink, cfg BreakerConfig) *BreakerSink {
	cfg = cfg.withDefaults()

	cb := circuitbreaker.NewBuilder[any]().
		WithFailureThreshold(cfg.FailureThreshold).
		WithDelay(cfg.Delay).
		WithSuccessThreshold(cfg.SuccessThreshold).
		OnStateChanged(func(e circuitbreaker.StateChangedEvent) {
			slog.Warn("Circuit breaker state changed",
				"component", "payout",
				"from", e.OldState.String(),
				"to", e.NewState.String(),
			)

			// Update metrics
			metrics.CircuitBreakerStateChanges.WithLabelValues("payout", e.NewState.String()).Inc()
			metrics.CircuitBreakerState.WithLabelValues("payout").Set(stateToFloat(e.NewState))
		}).
		Build()

	return &BreakerSink{next: next, cb: cb}
}

func stateToFloat(state circuitbreaker.State) float64 {
	switch state {
	case circuitbreaker.ClosedState:
		return 0
	case circuitbreaker.HalfOpenState:
		return 1
	case circuitbreaker.OpenState:
		return 2
	default:
		return -1
	}
}

func (s *BreakerSink) Pay(ctx context.Context, recipient string, amount uint64) error {
	if !s.cb.TryAcquirePermit() {
		return fmt.Errorf("payout circuit breaker open: %w", circuitbreaker.ErrOpen)
	}

	if err := s.next.Pay(ctx, recipient, amount); err != nil {
		s.cb.RecordError(err)
		return err
	}

	s.cb.RecordSuccess()
	return nil
}

// State returns the current breaker state (for testing/monitoring).
func (s *BreakerSink) State() circuitbreaker.State {
	return s.cb.State()
}
