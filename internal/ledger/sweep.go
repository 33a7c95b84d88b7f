package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poolkeeper/poolkeeper/internal/domain"
	"github.com/poolkeeper/poolkeeper/internal/metrics"
)

// Trigger labels recorded as the actor on sweep events.
const (
	triggerDeposit = "deposit"
	triggerRemote  = "trigger"
	triggerManual  = "manual"
)

// TriggerSweep runs the sweep check against current policy. Anyone may call
// it: when the gates do not pass it is a no-op reported in the result, never
// an error, so redundant calls are harmless.
func (l *Ledger) TriggerSweep(ctx context.Context) domain.SweepResult {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.autoSweep(ctx, triggerRemote)
}

// ManualSweep is the owner-gated variant of TriggerSweep. The sweep gates
// still apply; ownership buys no bypass of policy.
func (l *Ledger) ManualSweep(ctx context.Context, caller string) (domain.SweepResult, error) {
	if caller != l.owner {
		return domain.SweepResult{}, fmt.Errorf("manual sweep by %q: %w", caller, domain.ErrUnauthorized)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.autoSweep(ctx, triggerManual), nil
}

// autoSweep evaluates the sweep gates in order and pays out half the pool,
// floored, when every gate passes. Repeated sweeps therefore decay the pool
// instead of draining it. Callers must hold l.mu.
func (l *Ledger) autoSweep(ctx context.Context, trigger string) domain.SweepResult {
	if !l.enabled || l.target == "" {
		return l.skipSweep(ctx, trigger, domain.SkipDisabled)
	}
	now := l.clock.Now()
	if l.cooldown > 0 && now.Before(l.lastSweep.Add(l.cooldown)) {
		return l.skipSweep(ctx, trigger, domain.SkipCooldown)
	}
	if l.pooled < l.threshold {
		return l.skipSweep(ctx, trigger, domain.SkipBelowThreshold)
	}

	amount := l.pooled / 2
	if amount < l.minimum {
		return l.skipSweep(ctx, trigger, domain.SkipBelowMinimum)
	}

	// Debit before the payout call, same discipline as Withdraw. Restored on
	// failure; under l.mu nobody observes the interim state.
	l.pooled -= amount
	if err := l.sink.Pay(ctx, l.target, amount); err != nil {
		l.pooled += amount
		metrics.SweepsTotal.WithLabelValues("failed", "").Inc()
		metrics.PayoutFailures.Inc()
		result := domain.SweepResult{
			Outcome:   domain.OutcomeFailed,
			Reason:    err.Error(),
			Amount:    amount,
			Recipient: l.target,
		}
		l.record(ctx, domain.Event{
			Kind:    domain.EventSweep,
			Actor:   trigger,
			Target:  l.target,
			Amount:  amount,
			Outcome: domain.OutcomeFailed,
			Reason:  result.Reason,
		})
		slog.WarnContext(ctx, "Sweep payout failed", "target", l.target, "amount", amount, "error", err)
		return result
	}

	// lastSweep moves only on success, so a failed attempt never burns the
	// cooldown window.
	l.lastSweep = now
	metrics.SweepsTotal.WithLabelValues("success", "").Inc()
	metrics.SweptAmount.Add(float64(amount))
	metrics.PooledFunds.Set(float64(l.pooled))
	l.record(ctx, domain.Event{
		Kind:    domain.EventSweep,
		Actor:   trigger,
		Target:  l.target,
		Amount:  amount,
		Outcome: domain.OutcomeSuccess,
	})
	slog.InfoContext(ctx, "Sweep complete", "target", l.target, "amount", amount, "pooled_funds", l.pooled, "trigger", trigger)
	return domain.SweepResult{
		Outcome:   domain.OutcomeSuccess,
		Amount:    amount,
		Recipient: l.target,
	}
}

func (l *Ledger) skipSweep(ctx context.Context, trigger, reason string) domain.SweepResult {
	metrics.SweepsTotal.WithLabelValues("skipped", reason).Inc()
	l.record(ctx, domain.Event{
		Kind:    domain.EventSweep,
		Actor:   trigger,
		Target:  l.target,
		Outcome: domain.OutcomeSkipped,
		Reason:  reason,
	})
	return domain.SweepResult{
		Outcome:   domain.OutcomeSkipped,
		Reason:    reason,
		Recipient: l.target,
	}
}
