package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/poolkeeper/poolkeeper/internal/domain"
	"github.com/poolkeeper/poolkeeper/internal/keeper"
)

// StatusSource is the ledger surface the status endpoint reads.
type StatusSource interface {
	PooledFunds() uint64
	Policy() domain.SweepPolicy
}

// KeeperSource is the keeper surface the status endpoint reads.
type KeeperSource interface {
	CheckDue() (bool, keeper.Diagnostic)
	GetNextCheckTime() time.Time
}

// EventSource serves the recent-events endpoint. Only journal backends
// with a queryable store provide one.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]domain.Event, error)
}

// HealthCheck is a named readiness probe.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Server struct {
	echo      *echo.Echo
	port      string
	ledger    StatusSource
	keeper    KeeperSource
	events    EventSource
	checks    []HealthCheck
	limiter   *RequestRateLimiter
	startTime time.Time
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithEventSource wires the recent-events endpoint to a journal store.
func WithEventSource(events EventSource) Option {
	return func(s *Server) {
		s.events = events
	}
}

// WithHealthCheck adds a named readiness probe.
func WithHealthCheck(name string, check func(ctx context.Context) error) Option {
	return func(s *Server) {
		s.checks = append(s.checks, HealthCheck{Name: name, Check: check})
	}
}

func NewServer(port string, ledger StatusSource, kpr KeeperSource, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:      e,
		port:      port,
		ledger:    ledger,
		keeper:    kpr,
		limiter:   NewRequestRateLimiter(apiRequestsPerSecond, apiBurst),
		startTime: time.Now(),
	}

	for _, opt := range opts {
		opt(srv)
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting ops server", "port", s.port)
	return s.echo.Start(fmt.Sprintf(":%s", s.port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
