package ledger

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/poolkeeper/poolkeeper/internal/domain"
)

// SetThreshold updates the pool size at which sweeps become eligible.
// Owner only. Takes effect on the next trigger; no retroactive sweep runs.
func (l *Ledger) SetThreshold(caller string, threshold uint64) error {
	if caller != l.owner {
		return fmt.Errorf("set threshold by %q: %w", caller, domain.ErrUnauthorized)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.threshold = threshold
	return nil
}

// SetTarget updates the sweep recipient. Owner only. The target cannot be
// cleared; disable sweeping instead.
func (l *Ledger) SetTarget(caller, target string) error {
	if caller != l.owner {
		return fmt.Errorf("set target by %q: %w", caller, domain.ErrUnauthorized)
	}
	if target == "" {
		return fmt.Errorf("set target: %w", domain.ErrInvalidRecipient)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.target = target
	slog.Info("Sweep target updated", "target", target)
	return nil
}

// SetEnabled toggles sweeping. Enabling requires a configured target.
func (l *Ledger) SetEnabled(caller string, enabled bool) error {
	if caller != l.owner {
		return fmt.Errorf("set enabled by %q: %w", caller, domain.ErrUnauthorized)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if enabled && l.target == "" {
		return fmt.Errorf("enable sweeping with no target: %w", domain.ErrInvalidRecipient)
	}
	l.enabled = enabled
	slog.Info("Sweeping toggled", "enabled", enabled)
	return nil
}

// SetMinimum updates the smallest amount a sweep may move. Zero is rejected;
// a zero minimum would allow sweeps that move nothing.
func (l *Ledger) SetMinimum(caller string, minimum uint64) error {
	if caller != l.owner {
		return fmt.Errorf("set minimum by %q: %w", caller, domain.ErrUnauthorized)
	}
	if minimum == 0 {
		return fmt.Errorf("set minimum: %w", domain.ErrInvalidAmount)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minimum = minimum
	return nil
}

// SetCooldown updates the minimum spacing between successful sweeps. Zero
// disables the cooldown gate; a configured floor rejects nonzero values
// below it.
func (l *Ledger) SetCooldown(caller string, cooldown time.Duration) error {
	if caller != l.owner {
		return fmt.Errorf("set cooldown by %q: %w", caller, domain.ErrUnauthorized)
	}
	if cooldown < 0 {
		return fmt.Errorf("cooldown %s: %w", cooldown, domain.ErrInvalidInterval)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cooldownFloor > 0 && cooldown > 0 && cooldown < l.cooldownFloor {
		return fmt.Errorf("cooldown %s below floor %s: %w", cooldown, l.cooldownFloor, domain.ErrInvalidInterval)
	}
	l.cooldown = cooldown
	return nil
}
