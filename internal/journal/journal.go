// Package journal records ledger events for audit and observability.
//
// Journals are advisory: emitters log and swallow Record failures, and no
// control decision ever reads an event back.
package journal

import (
	"context"

	"github.com/poolkeeper/poolkeeper/internal/domain"
)

// Noop discards every event.
type Noop struct{}

func (Noop) Record(_ context.Context, _ domain.Event) error {
	return nil
}

// Multi fans an event out to several journals. Every journal sees the event;
// the first error is returned.
type Multi []domain.Journal

func (m Multi) Record(ctx context.Context, event domain.Event) error {
	var firstErr error
	for _, j := range m {
		if err := j.Record(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
