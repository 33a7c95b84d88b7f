package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"github.com/poolkeeper/poolkeeper/internal/config"
	"github.com/poolkeeper/poolkeeper/internal/correlation"
	"github.com/poolkeeper/poolkeeper/internal/domain"
	"github.com/poolkeeper/poolkeeper/internal/journal"
	"github.com/poolkeeper/poolkeeper/internal/keeper"
	"github.com/poolkeeper/poolkeeper/internal/ledger"
	"github.com/poolkeeper/poolkeeper/internal/logging"
	"github.com/poolkeeper/poolkeeper/internal/metrics"
	"github.com/poolkeeper/poolkeeper/internal/payout"
	"github.com/poolkeeper/poolkeeper/internal/scheduler"
	"github.com/poolkeeper/poolkeeper/internal/server"
	"github.com/poolkeeper/poolkeeper/internal/version"
)

func setupConfig() *config.Config {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}
	return cfg
}

// setupJournal builds the configured journal. The *journal.SQLite return is
// nil unless the sqlite backend is active; it feeds the recent-events API.
func setupJournal(cfg *config.Config) (domain.Journal, *journal.SQLite, func()) {
	switch cfg.Journal.Backend {
	case "noop":
		return journal.Noop{}, nil, func() {}
	case "sqlite":
		store, err := journal.NewSQLite(cfg.Journal.SQLitePath)
		if err != nil {
			slog.Error("Failed to open sqlite journal", "error", err, "path", cfg.Journal.SQLitePath)
			os.Exit(1)
		}
		closeStore := func() {
			if err := store.Close(); err != nil {
				slog.Error("Failed to close sqlite journal", "error", err)
			}
		}
		return journal.Multi{journal.Slog{}, store}, store, closeStore
	default:
		return journal.Slog{}, nil, func() {}
	}
}

func setupPayout(cfg *config.Config, clock clockwork.Clock) domain.PayoutSink {
	var sink domain.PayoutSink
	switch cfg.Payout.Backend {
	case "memory":
		sink = payout.NewMemorySink()
	default:
		sink = payout.LogSink{}
	}

	if cfg.Payout.Breaker.Enabled {
		sink = payout.NewBreakerSink(sink, payout.BreakerConfig{
			FailureThreshold: cfg.Payout.Breaker.FailureThreshold,
			Delay:            time.Duration(cfg.Payout.Breaker.DelaySeconds) * time.Second,
			SuccessThreshold: cfg.Payout.Breaker.SuccessThreshold,
		})
	}
	if cfg.Payout.Retry.Enabled {
		backoff := time.Duration(cfg.Payout.Retry.BackoffMS) * time.Millisecond
		sink = payout.NewRetrySink(sink, cfg.Payout.Retry.MaxAttempts, backoff, clock)
	}

	return sink
}

func setupLedger(cfg *config.Config, sink domain.PayoutSink, jnl domain.Journal, clock clockwork.Clock) *ledger.Ledger {
	l, err := ledger.New(ledger.Config{
		Owner:         cfg.Owner,
		Threshold:     cfg.Ledger.Threshold,
		Target:        cfg.Ledger.Target,
		Minimum:       cfg.Ledger.Minimum,
		Cooldown:      time.Duration(cfg.Ledger.CooldownSeconds) * time.Second,
		CooldownFloor: time.Duration(cfg.Ledger.CooldownFloorSeconds) * time.Second,
	}, sink, jnl, clock)
	if err != nil {
		slog.Error("Failed to create ledger", "error", err)
		os.Exit(1)
	}
	return l
}

func setupKeeper(cfg *config.Config, l *ledger.Ledger, jnl domain.Journal, clock clockwork.Clock) *keeper.Keeper {
	pollInterval := time.Duration(cfg.Keeper.PollIntervalSeconds) * time.Second
	k, err := keeper.New(l, cfg.Owner, pollInterval, clock, jnl)
	if err != nil {
		slog.Error("Failed to create keeper", "error", err)
		os.Exit(1)
	}
	return k
}

// startScheduler runs the configured upkeep cadence until ctx is cancelled.
// The returned channel closes once the scheduler has fully stopped.
func startScheduler(ctx context.Context, cfg *config.Config, kpr *keeper.Keeper, clock clockwork.Clock) <-chan struct{} {
	done := make(chan struct{})

	if cfg.Scheduler.Mode == "cron" {
		runner, err := scheduler.NewCronRunner(kpr, cfg.Scheduler.CronSpec)
		if err != nil {
			slog.Error("Failed to create cron runner", "error", err)
			os.Exit(1)
		}
		runner.Start()
		go func() {
			<-ctx.Done()
			runner.Stop()
			close(done)
		}()
		return done
	}

	checkEvery := time.Duration(cfg.Scheduler.CheckEverySeconds) * time.Second
	runner := scheduler.NewRunner(kpr, checkEvery, clock)
	go func() {
		runner.Run(ctx)
		close(done)
	}()
	return done
}

// watchManualTrigger performs an owner-forced upkeep cycle on SIGUSR1.
func watchManualTrigger(ctx context.Context, kpr *keeper.Keeper, owner string) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGUSR1)

	go func() {
		for {
			select {
			case <-ctx.Done():
				signal.Stop(sigChan)
				return
			case <-sigChan:
				cycleCtx := correlation.WithID(ctx, correlation.NewID())
				slog.InfoContext(cycleCtx, "Manual upkeep requested")
				cycle, err := kpr.ManualPerform(cycleCtx, owner)
				if err != nil {
					slog.ErrorContext(cycleCtx, "Manual upkeep failed", "error", err)
					continue
				}
				slog.InfoContext(cycleCtx, "Manual upkeep complete",
					"moved", cycle.Moved,
					"outcome", string(cycle.Sweep.Outcome),
					"reason", cycle.Sweep.Reason,
				)
			}
		}
	}()
}

func runGracefulShutdown(srv *server.Server, cancelRunner context.CancelFunc, runnerDone <-chan struct{}, closeJournal func()) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		cancelRunner()
		select {
		case <-runnerDone:
		case <-time.After(5 * time.Second):
			slog.Warn("Scheduler did not stop in time")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		closeJournal()
		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	_ = godotenv.Load()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	info := version.Get()
	metrics.BuildInfo.WithLabelValues(info.Version, info.Commit, info.GoVersion).Set(1)

	jnl, store, closeJournal := setupJournal(cfg)
	sink := setupPayout(cfg, clock)
	ldgr := setupLedger(cfg, sink, jnl, clock)
	kpr := setupKeeper(cfg, ldgr, jnl, clock)

	runnerCtx, cancelRunner := context.WithCancel(context.Background())
	runnerDone := startScheduler(runnerCtx, cfg, kpr, clock)
	watchManualTrigger(runnerCtx, kpr, cfg.Owner)

	// Pass the store only when it exists to avoid a typed-nil interface
	var opts []server.Option
	if store != nil {
		opts = append(opts,
			server.WithEventSource(store),
			server.WithHealthCheck("journal", store.Ping),
		)
	}
	srv := server.NewServer(cfg.Port, ldgr, kpr, opts...)

	done := runGracefulShutdown(srv, cancelRunner, runnerDone, closeJournal)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
