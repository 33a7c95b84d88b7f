package server

import (
	"context"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/poolkeeper/poolkeeper/internal/domain"
	apperrors "github.com/poolkeeper/poolkeeper/internal/errors"
	"github.com/poolkeeper/poolkeeper/internal/keeper"
)

// --- Mock implementations ---

type mockStatusSource struct {
	pooled uint64
	policy domain.SweepPolicy
}

func (m *mockStatusSource) PooledFunds() uint64 {
	return m.pooled
}

func (m *mockStatusSource) Policy() domain.SweepPolicy {
	return m.policy
}

type mockKeeperSource struct {
	due  bool
	diag keeper.Diagnostic
	next time.Time
}

func (m *mockKeeperSource) CheckDue() (bool, keeper.Diagnostic) {
	return m.due, m.diag
}

func (m *mockKeeperSource) GetNextCheckTime() time.Time {
	return m.next
}

type mockEventSource struct {
	events   []domain.Event
	err      error
	gotLimit int
}

func (m *mockEventSource) Recent(_ context.Context, limit int) ([]domain.Event, error) {
	m.gotLimit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.events, nil
}

// --- Test helpers ---

func testPolicy() domain.SweepPolicy {
	return domain.SweepPolicy{Threshold: 100, Target: "treasury", Enabled: true, Minimum: 1}
}

func newTestServer(t *testing.T, ledger StatusSource, kpr KeeperSource, opts ...Option) *Server {
	t.Helper()
	return NewServer("8080", ledger, kpr, opts...)
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return apperrors.Middleware()(handler)(c)
}
