package server

import (
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	apperrors "github.com/poolkeeper/poolkeeper/internal/errors"
)

const (
	recentEventsLimit = 50
	maxEventsLimit    = 500
)

type statusResponse struct {
	PooledFunds     uint64     `json:"pooled_funds"`
	Threshold       uint64     `json:"threshold"`
	Target          string     `json:"target"`
	Enabled         bool       `json:"enabled"`
	Minimum         uint64     `json:"minimum"`
	CooldownSeconds int64      `json:"cooldown_seconds"`
	LastSweep       *time.Time `json:"last_sweep,omitempty"`
	Due             bool       `json:"due"`
	PotentialAmount uint64     `json:"potential_amount"`
	NextCheck       time.Time  `json:"next_check"`
}

func (s *Server) handleStatus(c echo.Context) error {
	policy := s.ledger.Policy()
	due, diag := s.keeper.CheckDue()

	resp := statusResponse{
		PooledFunds:     diag.PooledFunds,
		Threshold:       policy.Threshold,
		Target:          policy.Target,
		Enabled:         policy.Enabled,
		Minimum:         policy.Minimum,
		CooldownSeconds: int64(policy.Cooldown / time.Second),
		Due:             due,
		PotentialAmount: diag.PotentialAmount,
		NextCheck:       s.keeper.GetNextCheckTime(),
	}
	if !policy.LastSweep.IsZero() {
		resp.LastSweep = &policy.LastSweep
	}

	if err := c.JSON(200, resp); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleRecentEvents(c echo.Context) error {
	if s.events == nil {
		return apperrors.NotFoundError("event history requires the sqlite journal backend")
	}

	limit := recentEventsLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > maxEventsLimit {
			return apperrors.ValidationError(fmt.Sprintf("limit must be an integer between 1 and %d", maxEventsLimit)).
				WithField("limit", raw)
		}
		limit = parsed
	}

	events, err := s.events.Recent(c.Request().Context(), limit)
	if err != nil {
		return apperrors.InternalError("failed to load recent events", err)
	}

	if err := c.JSON(200, map[string]any{
		"events": events,
		"count":  len(events),
	}); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
