package domain

import (
	"context"
	"time"
)

// EventKind names the operation that produced an event.
type EventKind string

const (
	EventDeposit           EventKind = "deposit"
	EventWithdraw          EventKind = "withdraw"
	EventTransfer          EventKind = "transfer"
	EventSweep             EventKind = "sweep"
	EventEmergencyWithdraw EventKind = "emergency_withdraw"
	EventUpkeep            EventKind = "upkeep"
)

// Event is the structured record emitted by state-changing operations.
// Events are advisory observability output; control logic never reads them back.
type Event struct {
	ID      string    `json:"id"`
	Time    time.Time `json:"time"`
	Kind    EventKind `json:"kind"`
	Actor   string    `json:"actor,omitempty"`
	Account string    `json:"account,omitempty"`
	Target  string    `json:"target,omitempty"`
	Amount  uint64    `json:"amount"`
	Outcome Outcome   `json:"outcome"`
	Reason  string    `json:"reason,omitempty"`
}

// Journal records emitted events. Implementations must tolerate high volume;
// callers treat a failed Record as a logging problem, not an operation failure.
type Journal interface {
	Record(ctx context.Context, event Event) error
}
