// Command sweep-rehearsal replays a YAML-scripted deposit/withdraw timeline
// against a fresh in-memory ledger and keeper on a fake clock, so operators
// can preview how a sweep policy behaves before changing production settings.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/jonboulle/clockwork"
	"gopkg.in/yaml.v3"

	"github.com/poolkeeper/poolkeeper/internal/domain"
	"github.com/poolkeeper/poolkeeper/internal/journal"
	"github.com/poolkeeper/poolkeeper/internal/keeper"
	"github.com/poolkeeper/poolkeeper/internal/ledger"
	"github.com/poolkeeper/poolkeeper/internal/payout"
)

type plan struct {
	Owner               string `yaml:"owner"`
	Target              string `yaml:"target"`
	Threshold           uint64 `yaml:"threshold"`
	Minimum             uint64 `yaml:"minimum"`
	CooldownSeconds     int    `yaml:"cooldown_seconds"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	Steps               []step `yaml:"steps"`
}

type step struct {
	AdvanceSeconds int    `yaml:"advance_seconds"`
	Account        string `yaml:"account"`
	Deposit        uint64 `yaml:"deposit"`
	Withdraw       uint64 `yaml:"withdraw"`
	Poll           bool   `yaml:"poll"`
}

func main() {
	var (
		planPath = flag.String("plan", "", "Path to YAML rehearsal plan (required)")
		verbose  = flag.Bool("verbose", false, "Verbose logging")
	)
	flag.Parse()

	if *planPath == "" {
		log.Fatal("Plan file required (--plan)")
	}

	// Configure logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))

	p, err := loadPlan(*planPath)
	if err != nil {
		log.Fatalf("Failed to load plan: %v", err)
	}

	if err := rehearse(context.Background(), p); err != nil {
		log.Fatalf("Rehearsal failed: %v", err)
	}

	slog.Info("Rehearsal complete")
}

func loadPlan(path string) (*plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}

	p := &plan{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}

	if p.Owner == "" {
		return nil, fmt.Errorf("plan is missing owner")
	}
	if len(p.Steps) == 0 {
		return nil, fmt.Errorf("plan has no steps")
	}
	if p.PollIntervalSeconds <= 0 {
		p.PollIntervalSeconds = 30
	}

	return p, nil
}

func rehearse(ctx context.Context, p *plan) error {
	start := time.Now()
	clock := clockwork.NewFakeClock()
	sink := payout.NewMemorySink()

	ldgr, err := ledger.New(ledger.Config{
		Owner:     p.Owner,
		Threshold: p.Threshold,
		Target:    p.Target,
		Minimum:   p.Minimum,
		Cooldown:  time.Duration(p.CooldownSeconds) * time.Second,
	}, sink, journal.Slog{}, clock)
	if err != nil {
		return fmt.Errorf("build ledger: %w", err)
	}

	kpr, err := keeper.New(ldgr, p.Owner, time.Duration(p.PollIntervalSeconds)*time.Second, clock, journal.Slog{})
	if err != nil {
		return fmt.Errorf("build keeper: %w", err)
	}

	slog.Info("Starting rehearsal",
		"steps", len(p.Steps),
		"threshold", p.Threshold,
		"target", p.Target,
		"cooldown_seconds", p.CooldownSeconds,
	)

	var deposited, withdrawn uint64
	var polls, performs int

	for i, st := range p.Steps {
		if st.AdvanceSeconds > 0 {
			clock.Advance(time.Duration(st.AdvanceSeconds) * time.Second)
			slog.Debug("Clock advanced", "step", i+1, "seconds", st.AdvanceSeconds)
		}

		if st.Deposit > 0 {
			if err := ldgr.Deposit(ctx, st.Account, st.Deposit); err != nil {
				return fmt.Errorf("step %d: deposit %d to %q: %w", i+1, st.Deposit, st.Account, err)
			}
			deposited += st.Deposit
		}

		if st.Withdraw > 0 {
			if err := ldgr.Withdraw(ctx, st.Account, st.Withdraw); err != nil {
				return fmt.Errorf("step %d: withdraw %d from %q: %w", i+1, st.Withdraw, st.Account, err)
			}
			withdrawn += st.Withdraw
		}

		if st.Poll {
			polls++
			due, diag := kpr.CheckDue()
			slog.Info("Upkeep check",
				"step", i+1,
				"due", due,
				"pooled_funds", diag.PooledFunds,
				"threshold", diag.Threshold,
				"potential_amount", diag.PotentialAmount,
			)
			if !due {
				continue
			}

			cycle, err := kpr.Perform(ctx)
			if err != nil && !errors.Is(err, domain.ErrUpkeepNotDue) {
				return fmt.Errorf("step %d: perform upkeep: %w", i+1, err)
			}
			performs++
			slog.Info("Upkeep performed",
				"step", i+1,
				"moved", cycle.Moved,
				"outcome", string(cycle.Sweep.Outcome),
				"reason", cycle.Sweep.Reason,
			)
		}
	}

	duration := time.Since(start)
	slog.Info("Rehearsal summary",
		"deposited", deposited,
		"withdrawn", withdrawn,
		"swept_to_target", sink.Credited(p.Target),
		"pooled_funds", ldgr.PooledFunds(),
		"polls", polls,
		"performs", performs,
		"duration_ms", duration.Milliseconds())

	return nil
}
