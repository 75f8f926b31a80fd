// Package server exposes derived Greeks series to the browser dashboard over
// JSON, CSV and a websocket push stream.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"greeks-dashboard/internal/cache"
	"greeks-dashboard/internal/config"
	"greeks-dashboard/internal/dashboard"
	"greeks-dashboard/internal/metrics"
	"greeks-dashboard/internal/models"
	"greeks-dashboard/internal/resilience"
	"greeks-dashboard/internal/security"
)

// ExpiryLister lists the expiries published for an index. *api.Client implements it.
type ExpiryLister interface {
	ListExpiries(ctx context.Context, index models.Index) ([]string, error)
}

// Deps are the collaborators the HTTP service needs. Loader is required.
type Deps struct {
	Loader   dashboard.Loader
	Streams  *dashboard.Streams
	Expiries ExpiryLister
	Cache    cache.Service
	Metrics  *metrics.Recorder
	Health   *resilience.Checker
	Audit    *security.AuditLogger
	Logger   zerolog.Logger
	Now      func() time.Time
}

// Options are the settings taken from config.
type Options struct {
	Server      config.ServerConfig
	Dashboard   config.DashboardConfig
	LiveTTL     time.Duration
	ClosedTTL   time.Duration
	RequireAuth bool
}

// Server wraps the echo instance.
type Server struct {
	echo *echo.Echo
	deps Deps
	opts Options
}

// New builds the server and registers every route.
func New(deps Deps, opts Options) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(deps.Logger)

	e.Use(Recover(deps.Logger))
	e.Use(RequestID(deps.Logger))
	e.Use(RequestLogging())
	e.Use(Metrics(deps.Metrics))
	e.Use(BearerToken())

	s := &Server{echo: e, deps: deps, opts: opts}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	h := &handler{deps: s.deps, opts: s.opts}

	api := s.echo.Group("/api")
	if s.opts.RequireAuth {
		api.Use(RequireToken())
	}
	api.GET("/series", h.Series)
	api.GET("/series/export.csv", h.ExportCSV)
	if s.deps.Streams != nil {
		api.GET("/series/stream", h.Stream)
	}
	if s.deps.Expiries != nil {
		api.GET("/expiries", h.Expiries)
	}

	s.echo.GET("/healthz", h.Health)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.deps.Metrics.Gatherer(), promhttp.HandlerOpts{})))
}

// ServeHTTP lets the server be mounted in tests and other muxes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.opts.Server.Addr(),
		Handler:      s.echo,
		ReadTimeout:  s.opts.Server.ReadTimeout,
		WriteTimeout: s.opts.Server.WriteTimeout,
	}
	s.echo.Server = srv

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := s.echo.StartServer(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.opts.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if s.deps.Streams != nil {
		s.deps.Streams.Close()
	}
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	s.deps.Logger.Info().Msg("HTTP server stopped")
	return nil
}

// Echo returns the underlying echo instance.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
