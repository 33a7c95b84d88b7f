// Package ledger implements the pooled-funds account ledger.
//
// Balances are claims on a shared pool, not a partition of it: deposits raise
// both the depositor's claim and the pool, while sweeps drain only the pool.
// After a sweep the sum of claims can exceed the backing; withdrawals check
// both sides before paying out.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/poolkeeper/poolkeeper/internal/domain"
	"github.com/poolkeeper/poolkeeper/internal/metrics"
)

const defaultMinimum = 1

// Config carries the construction-time identity and sweep policy of a ledger.
type Config struct {
	Owner         string
	Threshold     uint64
	Target        string
	Minimum       uint64        // smallest amount a sweep may move, defaults to 1
	Cooldown      time.Duration // minimum spacing between successful sweeps
	CooldownFloor time.Duration // lower bound enforced on cooldown updates, 0 disables
}

// Ledger owns per-account claims and the pooled funds backing them. Every
// operation, including the payout-sink call it may make, runs under a single
// mutex, so callers never observe a half-applied operation.
type Ledger struct {
	owner   string
	sink    domain.PayoutSink
	journal domain.Journal
	clock   clockwork.Clock

	mu       sync.Mutex
	accounts map[string]uint64
	pooled   uint64

	threshold     uint64
	target        string
	enabled       bool
	minimum       uint64
	cooldown      time.Duration
	cooldownFloor time.Duration
	lastSweep     time.Time
}

// New validates cfg and returns a ready ledger. Sweeping starts enabled when
// a target is configured and disabled otherwise.
func New(cfg Config, sink domain.PayoutSink, journal domain.Journal, clock clockwork.Clock) (*Ledger, error) {
	if cfg.Owner == "" {
		return nil, fmt.Errorf("owner: %w", domain.ErrInvalidRecipient)
	}
	if cfg.Cooldown < 0 {
		return nil, fmt.Errorf("cooldown %s: %w", cfg.Cooldown, domain.ErrInvalidInterval)
	}
	if cfg.CooldownFloor > 0 && cfg.Cooldown > 0 && cfg.Cooldown < cfg.CooldownFloor {
		return nil, fmt.Errorf("cooldown %s below floor %s: %w", cfg.Cooldown, cfg.CooldownFloor, domain.ErrInvalidInterval)
	}

	minimum := cfg.Minimum
	if minimum == 0 {
		minimum = defaultMinimum
	}

	return &Ledger{
		owner:         cfg.Owner,
		sink:          sink,
		journal:       journal,
		clock:         clock,
		accounts:      make(map[string]uint64),
		threshold:     cfg.Threshold,
		target:        cfg.Target,
		enabled:       cfg.Target != "",
		minimum:       minimum,
		cooldown:      cfg.Cooldown,
		cooldownFloor: cfg.CooldownFloor,
	}, nil
}

// Deposit credits an account and the pool, then re-checks the sweep policy.
// Deposits are the only mutation that can trigger an automatic sweep.
func (l *Ledger) Deposit(ctx context.Context, account string, amount uint64) error {
	if account == "" {
		return fmt.Errorf("deposit account: %w", domain.ErrInvalidRecipient)
	}
	if amount == 0 {
		metrics.DepositsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("deposit amount: %w", domain.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pooled > math.MaxUint64-amount {
		metrics.DepositsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("deposit of %d overflows pool: %w", amount, domain.ErrInvalidAmount)
	}

	l.accounts[account] += amount
	l.pooled += amount
	metrics.DepositsTotal.WithLabelValues("applied").Inc()
	metrics.PooledFunds.Set(float64(l.pooled))
	l.record(ctx, domain.Event{
		Kind:    domain.EventDeposit,
		Actor:   account,
		Account: account,
		Amount:  amount,
		Outcome: domain.OutcomeSuccess,
	})

	l.autoSweep(ctx, triggerDeposit)
	return nil
}

// Withdraw debits an account and pays the holder out through the sink.
// The debit happens before the payout call, so a reentrant or misbehaving
// recipient observes the already-reduced balance; on sink failure the debit
// is restored and ErrTransferFailed returned.
func (l *Ledger) Withdraw(ctx context.Context, account string, amount uint64) error {
	if amount == 0 {
		metrics.WithdrawalsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("withdraw amount: %w", domain.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.accounts[account]
	if amount > balance {
		metrics.WithdrawalsTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("withdraw %d exceeds balance %d: %w", amount, balance, domain.ErrInsufficientFunds)
	}
	// Sweeps drain the pool without shrinking claims, so a valid claim can
	// outgrow its backing. Refuse before mutating anything.
	if amount > l.pooled {
		metrics.WithdrawalsTotal.WithLabelValues("failed").Inc()
		l.record(ctx, domain.Event{
			Kind:    domain.EventWithdraw,
			Actor:   account,
			Account: account,
			Amount:  amount,
			Outcome: domain.OutcomeFailed,
			Reason:  "pool underfunded",
		})
		return fmt.Errorf("pool holds %d of %d requested: %w", l.pooled, amount, domain.ErrTransferFailed)
	}

	l.accounts[account] = balance - amount
	l.pooled -= amount

	if err := l.sink.Pay(ctx, account, amount); err != nil {
		// All-or-nothing: restore the debit.
		l.accounts[account] = balance
		l.pooled += amount
		metrics.WithdrawalsTotal.WithLabelValues("failed").Inc()
		metrics.PayoutFailures.Inc()
		l.record(ctx, domain.Event{
			Kind:    domain.EventWithdraw,
			Actor:   account,
			Account: account,
			Target:  account,
			Amount:  amount,
			Outcome: domain.OutcomeFailed,
			Reason:  err.Error(),
		})
		return fmt.Errorf("%w: %s", domain.ErrTransferFailed, err)
	}

	metrics.WithdrawalsTotal.WithLabelValues("applied").Inc()
	metrics.PooledFunds.Set(float64(l.pooled))
	l.record(ctx, domain.Event{
		Kind:    domain.EventWithdraw,
		Actor:   account,
		Account: account,
		Target:  account,
		Amount:  amount,
		Outcome: domain.OutcomeSuccess,
	})
	return nil
}

// Transfer moves a claim between accounts. Pure bookkeeping: the pool and the
// sink are untouched, and no sweep check runs.
func (l *Ledger) Transfer(ctx context.Context, from, to string, amount uint64) error {
	if to == "" {
		return fmt.Errorf("transfer recipient: %w", domain.ErrInvalidRecipient)
	}
	if to == from {
		return fmt.Errorf("transfer to %s: %w", to, domain.ErrSelfTransfer)
	}
	if amount == 0 {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("transfer amount: %w", domain.ErrInvalidAmount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	balance := l.accounts[from]
	if amount > balance {
		metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return fmt.Errorf("transfer %d exceeds balance %d: %w", amount, balance, domain.ErrInsufficientFunds)
	}

	l.accounts[from] = balance - amount
	l.accounts[to] += amount
	metrics.TransfersTotal.WithLabelValues("applied").Inc()
	l.record(ctx, domain.Event{
		Kind:    domain.EventTransfer,
		Actor:   from,
		Account: from,
		Target:  to,
		Amount:  amount,
		Outcome: domain.OutcomeSuccess,
	})
	return nil
}

// EmergencyWithdraw pays the entire pool out to the owner. Claims are left
// standing; they become unbacked until new deposits arrive. Owner only.
func (l *Ledger) EmergencyWithdraw(ctx context.Context, caller string) (uint64, error) {
	if caller != l.owner {
		return 0, fmt.Errorf("emergency withdraw by %q: %w", caller, domain.ErrUnauthorized)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.pooled == 0 {
		return 0, domain.ErrNoFunds
	}

	amount := l.pooled
	l.pooled = 0
	if err := l.sink.Pay(ctx, l.owner, amount); err != nil {
		l.pooled = amount
		metrics.PayoutFailures.Inc()
		l.record(ctx, domain.Event{
			Kind:    domain.EventEmergencyWithdraw,
			Actor:   caller,
			Target:  l.owner,
			Amount:  amount,
			Outcome: domain.OutcomeFailed,
			Reason:  err.Error(),
		})
		return 0, fmt.Errorf("%w: %s", domain.ErrTransferFailed, err)
	}

	metrics.PooledFunds.Set(0)
	l.record(ctx, domain.Event{
		Kind:    domain.EventEmergencyWithdraw,
		Actor:   caller,
		Target:  l.owner,
		Amount:  amount,
		Outcome: domain.OutcomeSuccess,
	})
	slog.InfoContext(ctx, "Emergency withdrawal", "amount", amount, "owner", l.owner)
	return amount, nil
}

// Owner returns the account allowed to change policy and force payouts.
func (l *Ledger) Owner() string {
	return l.owner
}

// Balance returns the claim held by account. Unknown accounts hold zero.
func (l *Ledger) Balance(account string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accounts[account]
}

// PooledFunds returns the funds currently backing all claims.
func (l *Ledger) PooledFunds() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.pooled
}

// Policy returns a snapshot of the current sweep configuration.
func (l *Ledger) Policy() domain.SweepPolicy {
	l.mu.Lock()
	defer l.mu.Unlock()
	return domain.SweepPolicy{
		Threshold: l.threshold,
		Target:    l.target,
		Enabled:   l.enabled,
		Minimum:   l.minimum,
		Cooldown:  l.cooldown,
		LastSweep: l.lastSweep,
	}
}

// record journals an event, filling in identity and time. Journal failures
// are logged and counted but never fail the operation.
func (l *Ledger) record(ctx context.Context, event domain.Event) {
	event.ID = uuid.NewString()
	event.Time = l.clock.Now()
	if err := l.journal.Record(ctx, event); err != nil {
		metrics.JournalErrors.Inc()
		slog.WarnContext(ctx, "Journal record failed", "kind", string(event.Kind), "error", err)
	}
}
