package domain

import (
	"context"
	"time"
)

// SweepPolicy is a point-in-time snapshot of a ledger's sweep configuration.
type SweepPolicy struct {
	Threshold uint64
	Target    string
	Enabled   bool
	Minimum   uint64
	Cooldown  time.Duration
	LastSweep time.Time
}

// Outcome classifies the result of an operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Reasons reported on skipped sweeps.
const (
	SkipDisabled       = "disabled"
	SkipCooldown       = "cooldown"
	SkipBelowThreshold = "below threshold"
	SkipBelowMinimum   = "amount below minimum"
)

// SweepResult describes a single sweep attempt. Skipped attempts carry the
// gate that refused them in Reason; failed attempts carry the sink error.
type SweepResult struct {
	Outcome   Outcome `json:"outcome"`
	Reason    string  `json:"reason,omitempty"`
	Amount    uint64  `json:"amount"`
	Recipient string  `json:"recipient,omitempty"`
}

// Swept reports whether the attempt actually moved funds.
func (r SweepResult) Swept() bool {
	return r.Outcome == OutcomeSuccess
}

// --- Interfaces ---

// SweepLedger is the ledger surface an automation driver needs: live state
// reads plus the idempotent sweep entry point.
type SweepLedger interface {
	PooledFunds() uint64
	Policy() SweepPolicy
	TriggerSweep(ctx context.Context) SweepResult
}
