// Package scheduler drives keeper upkeep cycles on a cadence.
//
// Two modes: a ticker loop polling on a fixed interval from an injected
// clock, and a cron runner for operators who want calendar-style schedules.
// Either way the keeper's own gating stays authoritative; the scheduler only
// decides when to ask.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	"github.com/poolkeeper/poolkeeper/internal/correlation"
	"github.com/poolkeeper/poolkeeper/internal/domain"
	"github.com/poolkeeper/poolkeeper/internal/keeper"
)

// Upkeeper is the keeper surface the runners drive.
type Upkeeper interface {
	CheckDue() (bool, keeper.Diagnostic)
	Perform(ctx context.Context) (keeper.Cycle, error)
	GetNextCheckTime() time.Time
}

// Runner polls the keeper on a fixed interval.
type Runner struct {
	keeper Upkeeper
	every  time.Duration
	clock  clockwork.Clock
}

func NewRunner(k Upkeeper, every time.Duration, clock clockwork.Clock) *Runner {
	return &Runner{keeper: k, every: every, clock: clock}
}

// Run blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	slog.Info("Upkeep runner started", "check_every", r.every)
	ticker := r.clock.NewTicker(r.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Upkeep runner stopped")
			return
		case <-ticker.Chan():
			runCycle(ctx, r.keeper)
		}
	}
}

// CronRunner delegates cadence to a cron expression with a seconds field.
type CronRunner struct {
	cron   *cron.Cron
	keeper Upkeeper
}

func NewCronRunner(k Upkeeper, spec string) (*CronRunner, error) {
	c := cron.New(cron.WithSeconds())
	runner := &CronRunner{cron: c, keeper: k}

	if _, err := c.AddFunc(spec, func() { runCycle(context.Background(), k) }); err != nil {
		return nil, fmt.Errorf("register upkeep schedule: %w", err)
	}
	return runner, nil
}

func (c *CronRunner) Start() {
	slog.Info("Upkeep cron started")
	c.cron.Start()
}

// Stop halts scheduling and waits for a running cycle to finish.
func (c *CronRunner) Stop() {
	<-c.cron.Stop().Done()
	slog.Info("Upkeep cron stopped")
}

// runCycle runs one check-and-perform pass. Losing the due race to another
// performer is a non-event; the next firing checks again.
func runCycle(ctx context.Context, k Upkeeper) {
	ctx, _ = correlation.Ensure(ctx)

	due, diag := k.CheckDue()
	if !due {
		slog.DebugContext(ctx, "Upkeep not due",
			"pooled_funds", diag.PooledFunds,
			"threshold", diag.Threshold,
			"potential_amount", diag.PotentialAmount,
			"next_check", k.GetNextCheckTime(),
		)
		return
	}

	cycle, err := k.Perform(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrUpkeepNotDue) {
			slog.DebugContext(ctx, "Upkeep cycle raced away", "error", err)
			return
		}
		slog.ErrorContext(ctx, "Upkeep cycle failed", "error", err)
		return
	}

	slog.InfoContext(ctx, "Upkeep cycle complete",
		"moved", cycle.Moved,
		"outcome", string(cycle.Sweep.Outcome),
		"reason", cycle.Sweep.Reason,
	)
}
