// Package server provides the HTTP server for the order lifecycle system.
//
// The server exposes a REST API to start order executions, deliver signals,
// and inspect execution state, events and captured logs.
//
// # Endpoints
//
//   - GET /health - Simple health check, returns "ok"
//   - POST /orders - Starts a new order execution
//   - POST /orders/{id}/signals - Delivers a signal to a running execution
//   - GET /orders/{id} - Returns the current execution snapshot
//   - GET /orders/{id}/result - Blocks until the execution is terminal
//   - GET /orders/{id}/events - Returns the execution's event log
//   - GET /orders/{id}/logs - Returns the execution's captured logs
//   - GET /history - Returns terminal executions, most recent first
//   - GET /metrics - Prometheus scrape endpoint (scrape mode only)
//
// # Example
//
//	srv, err := server.New(":8080", eng, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/SebampitakoDuncan/order-lifecycle-system/engine"
	"github.com/SebampitakoDuncan/order-lifecycle-system/server/cron"
	"github.com/SebampitakoDuncan/order-lifecycle-system/server/handlers"
)

const (
	defaultReadTimeout     = 10 * time.Second
	defaultShutdownTimeout = 5 * time.Second
)

// Server is the HTTP front door of the order lifecycle engine.
type Server struct {
	addr   string
	logger *slog.Logger
	eng    *engine.Engine

	metricsHandler http.Handler
	cronTrigger    *cron.CronTrigger
	httpServer     *http.Server
}

// Option configures a Server.
type Option func(*Server) error

// WithMetricsHandler exposes a scrape handler at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) error {
		s.metricsHandler = h
		return nil
	}
}

// WithRetention schedules a periodic sweep that purges terminal executions
// older than maxAge. The spec follows standard cron format or a descriptor
// such as "@every 5m".
func WithRetention(spec string, maxAge time.Duration) Option {
	return func(s *Server) error {
		trigger, err := cron.NewCronTrigger(spec, &sweeper{eng: s.eng, maxAge: maxAge}, s.logger)
		if err != nil {
			return fmt.Errorf("creating retention trigger: %w", err)
		}
		s.cronTrigger = trigger
		return nil
	}
}

// New creates a Server fronting the given engine.
func New(addr string, eng *engine.Engine, logger *slog.Logger, opts ...Option) (*Server, error) {
	s := &Server{
		addr:   addr,
		logger: logger.With("component", "server"),
		eng:    eng,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Run starts the HTTP server and blocks until the context is cancelled.
// It performs a graceful shutdown when the context is done.
// If a retention trigger is configured, it is started automatically.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.httpServer = &http.Server{
		Addr:        s.addr,
		Handler:     mux,
		ReadTimeout: defaultReadTimeout,
	}

	if s.cronTrigger != nil {
		s.logger.Info("starting retention trigger",
			"next_run", s.cronTrigger.NextRun(),
		)
		s.cronTrigger.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting server", "addr", s.addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", handlers.HandleHealth)
	mux.Handle("POST /orders", handlers.NewOrdersHandler(s.eng))
	mux.Handle("POST /orders/{id}/signals", handlers.NewSignalsHandler(s.eng))
	mux.Handle("GET /orders/{id}", handlers.NewStatusHandler(s.eng))
	mux.Handle("GET /orders/{id}/result", handlers.NewResultHandler(s.eng))
	mux.Handle("GET /orders/{id}/events", handlers.NewEventsHandler(s.eng))
	mux.Handle("GET /orders/{id}/logs", handlers.NewLogsHandler(s.eng))
	mux.Handle("GET /history", handlers.NewHistoryHandler(s.eng))

	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}
}

// sweeper adapts the engine's retention sweep to cron.Runnable.
type sweeper struct {
	eng    *engine.Engine
	maxAge time.Duration
}

func (s *sweeper) Run() error {
	_, err := s.eng.SweepRetention(s.maxAge)
	return err
}
