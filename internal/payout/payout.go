// Package payout provides PayoutSink implementations and decorators.
//
// Sinks hold the all-or-nothing contract from domain.PayoutSink; the
// decorators (retry, circuit breaker) preserve it because every underlying
// attempt either fully transfers or fully fails.
package payout

import (
	"context"
	"log/slog"
)

// LogSink acknowledges payouts with a structured log line and always
// succeeds. It is the default rail while no real custody backend is attached.
type LogSink struct{}

func (LogSink) Pay(ctx context.Context, recipient string, amount uint64) error {
	slog.InfoContext(ctx, "Payout", "recipient", recipient, "amount", amount)
	return nil
}
