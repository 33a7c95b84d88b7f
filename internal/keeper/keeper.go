// Package keeper decides when a ledger sweep is due and performs it.
//
// The keeper wraps exactly one ledger. It owns its own poll clock: lastPoll
// advances only inside Perform, never from the ledger side, so the keeper's
// cadence gate is independent of the ledger's sweep cooldown. Every due
// decision is re-derived from live ledger state; nothing is cached between
// checks.
package keeper

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/poolkeeper/poolkeeper/internal/domain"
	"github.com/poolkeeper/poolkeeper/internal/metrics"
)

// Keeper drives sweep upkeep for a single ledger.
type Keeper struct {
	ledger  domain.SweepLedger
	owner   string
	clock   clockwork.Clock
	journal domain.Journal

	mu           sync.Mutex
	pollInterval time.Duration
	lastPoll     time.Time
}

// Diagnostic carries the live numbers behind a due decision.
type Diagnostic struct {
	PooledFunds     uint64
	Threshold       uint64
	PotentialAmount uint64
}

// Cycle is the outcome of one perform cycle. Moved is derived from the pool
// level before and after the sweep; Sweep is the ledger's own report.
type Cycle struct {
	Moved uint64
	Sweep domain.SweepResult
}

// New returns a keeper for ledger. lastPoll starts at the zero time, so the
// first due check never waits out a poll interval.
func New(ledger domain.SweepLedger, owner string, pollInterval time.Duration, clock clockwork.Clock, journal domain.Journal) (*Keeper, error) {
	if owner == "" {
		return nil, fmt.Errorf("keeper owner: %w", domain.ErrInvalidRecipient)
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval %s: %w", pollInterval, domain.ErrInvalidInterval)
	}
	return &Keeper{
		ledger:       ledger,
		owner:        owner,
		clock:        clock,
		journal:      journal,
		pollInterval: pollInterval,
	}, nil
}

// CheckDue reports whether a sweep cycle may run now, with the numbers the
// decision was based on. Checking never mutates anything: lastPoll moves only
// when Perform runs.
func (k *Keeper) CheckDue() (bool, Diagnostic) {
	k.mu.Lock()
	defer k.mu.Unlock()
	due, diag := k.evaluate()
	metrics.UpkeepChecksTotal.WithLabelValues(strconv.FormatBool(due)).Inc()
	return due, diag
}

// evaluate computes the due conjunction against live ledger state.
// Callers must hold k.mu.
func (k *Keeper) evaluate() (bool, Diagnostic) {
	pooled := k.ledger.PooledFunds()
	policy := k.ledger.Policy()
	potential := pooled / 2

	diag := Diagnostic{
		PooledFunds:     pooled,
		Threshold:       policy.Threshold,
		PotentialAmount: potential,
	}

	now := k.clock.Now()
	due := now.Sub(k.lastPoll) > k.pollInterval &&
		pooled >= policy.Threshold &&
		policy.Enabled &&
		cooldownElapsed(now, policy) &&
		potential >= policy.Minimum

	return due, diag
}

func cooldownElapsed(now time.Time, policy domain.SweepPolicy) bool {
	if policy.Cooldown <= 0 {
		return true
	}
	return !now.Before(policy.LastSweep.Add(policy.Cooldown))
}

// Perform runs one sweep cycle. The due gate is re-validated under the
// keeper's lock; a caller acting on a stale CheckDue gets ErrUpkeepNotDue
// instead of a silent no-op. lastPoll advances before the sweep call, so a
// failed sweep is rate-limited exactly like a successful one. A sweep that
// fails inside the ledger is contained: Perform still returns nil with the
// failure carried in the Cycle.
func (k *Keeper) Perform(ctx context.Context) (Cycle, error) {
	k.mu.Lock()
	due, _ := k.evaluate()
	if !due {
		k.mu.Unlock()
		metrics.UpkeepCyclesTotal.WithLabelValues("not_due").Inc()
		return Cycle{}, domain.ErrUpkeepNotDue
	}
	k.lastPoll = k.clock.Now()
	k.mu.Unlock()

	cycle := k.sweep(ctx)
	k.record(ctx, "keeper", cycle)
	return cycle, nil
}

// ManualPerform bypasses the due gate for operator-initiated sweeps. The
// ledger's own policy gating still applies, and lastPoll is left alone so
// the scheduled cadence is unaffected. Owner only.
func (k *Keeper) ManualPerform(ctx context.Context, caller string) (Cycle, error) {
	if caller != k.owner {
		return Cycle{}, fmt.Errorf("manual perform by %q: %w", caller, domain.ErrUnauthorized)
	}
	cycle := k.sweep(ctx)
	k.record(ctx, caller, cycle)
	return cycle, nil
}

// sweep triggers the ledger and accounts for the moved amount.
func (k *Keeper) sweep(ctx context.Context) Cycle {
	before := k.ledger.PooledFunds()
	result := k.ledger.TriggerSweep(ctx)
	after := k.ledger.PooledFunds()

	// Deposits can land between the reads; clamp instead of underflowing.
	var moved uint64
	if before > after {
		moved = before - after
	}

	metrics.UpkeepCyclesTotal.WithLabelValues(string(result.Outcome)).Inc()
	return Cycle{Moved: moved, Sweep: result}
}

// SetPollInterval updates the minimum spacing between scheduled cycles.
// Owner only.
func (k *Keeper) SetPollInterval(caller string, interval time.Duration) error {
	if caller != k.owner {
		return fmt.Errorf("set poll interval by %q: %w", caller, domain.ErrUnauthorized)
	}
	if interval <= 0 {
		return fmt.Errorf("poll interval %s: %w", interval, domain.ErrInvalidInterval)
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	k.pollInterval = interval
	return nil
}

// GetNextCheckTime returns when the poll gate opens again. External
// schedulers use it to plan their next call.
func (k *Keeper) GetNextCheckTime() time.Time {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.lastPoll.Add(k.pollInterval)
}

// Owner returns the account allowed to force cycles and change the interval.
func (k *Keeper) Owner() string {
	return k.owner
}

func (k *Keeper) record(ctx context.Context, actor string, cycle Cycle) {
	event := domain.Event{
		ID:      uuid.NewString(),
		Time:    k.clock.Now(),
		Kind:    domain.EventUpkeep,
		Actor:   actor,
		Target:  cycle.Sweep.Recipient,
		Amount:  cycle.Moved,
		Outcome: cycle.Sweep.Outcome,
		Reason:  cycle.Sweep.Reason,
	}
	if err := k.journal.Record(ctx, event); err != nil {
		metrics.JournalErrors.Inc()
		slog.WarnContext(ctx, "Journal record failed", "kind", "upkeep", "error", err)
	}
}
