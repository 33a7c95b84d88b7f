package payout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go/circuitbreaker"
	"github.com/jonboulle/clockwork"

	"github.com/poolkeeper/poolkeeper/internal/domain"
	"github.com/poolkeeper/poolkeeper/internal/metrics"
	"github.com/poolkeeper/poolkeeper/internal/retry"
)

// RetrySink retries transient payout failures with doubling backoff. The
// wrapped sink transfers all-or-nothing per attempt, so a retry can never
// double-pay. Compose it outside BreakerSink: an open breaker is classified
// permanent, so retries stop hammering a rail the breaker has given up on.
type RetrySink struct {
	next   domain.PayoutSink
	policy retry.Policy
	clock  clockwork.Clock
}

func NewRetrySink(next domain.PayoutSink, maxAttempts int, initialBackoff time.Duration, clock clockwork.Clock) *RetrySink {
	return &RetrySink{
		next: next,
		policy: retry.Policy{
			MaxAttempts:    maxAttempts,
			InitialBackoff: initialBackoff,
			OnRetry: func(attempt int, err error, backoff time.Duration) {
				metrics.PayoutRetries.Inc()
				slog.Warn("Payout attempt failed, retrying",
					"attempt", attempt,
					"backoff", backoff,
					"error", err,
				)
			},
		},
		clock: clock,
	}
}

func (s *RetrySink) Pay(ctx context.Context, recipient string, amount uint64) error {
	return retry.Do(ctx, s.policy, s.clock, classifyPayout, func() error {
		return s.next.Pay(ctx, recipient, amount)
	})
}

// classifyPayout treats a rejected recipient and an open breaker as
// permanent; everything else is worth another attempt.
func classifyPayout(err error) retry.Action {
	if errors.Is(err, domain.ErrInvalidRecipient) || errors.Is(err, circuitbreaker.ErrOpen) {
		return retry.Stop
	}
	return retry.Retry
}
