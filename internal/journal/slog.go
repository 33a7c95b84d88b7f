package journal

import (
	"context"
	"log/slog"

	"github.com/poolkeeper/poolkeeper/internal/domain"
)

// Slog writes each event as a structured log line on the default logger.
type Slog struct{}

func (Slog) Record(ctx context.Context, event domain.Event) error {
	slog.InfoContext(ctx, "Ledger event",
		"id", event.ID,
		"kind", string(event.Kind),
		"actor", event.Actor,
		"account", event.Account,
		"target", event.Target,
		"amount", event.Amount,
		"outcome", string(event.Outcome),
		"reason", event.Reason,
	)
	return nil
}
