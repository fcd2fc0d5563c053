/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package opsserver provides the HTTP server with operational endpoints of admission controllers:
// Prometheus metrics, per-client status and, optionally, pprof.
package opsserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/atomic"

	"github.com/acronis/go-admission/log"
	"github.com/acronis/go-admission/scheduler"
	"github.com/acronis/go-admission/service"
)

// Endpoint paths.
const (
	PathMetrics = "/metrics"
	PathStatus  = "/status"
	PathHealthz = "/healthz"
	PathDebug   = "/debug"
)

// StatusProvider reports the current state of admission controllers.
type StatusProvider interface {
	Statuses() []scheduler.Status
}

// Opts contains optional parameters for constructing Server.
type Opts struct {
	// Gatherer is used for the metrics endpoint. prometheus.DefaultGatherer is used if nil.
	Gatherer prometheus.Gatherer
}

// Server is the operations HTTP server. It implements service.Unit interface.
type Server struct {
	HTTPServer      *http.Server
	Logger          log.FieldLogger
	shutdownTimeout time.Duration
	httpServerDone  chan struct{}
	started         atomic.Bool
}

var _ service.Unit = (*Server)(nil)

// New creates a new operations HTTP server.
func New(cfg *Config, statuses StatusProvider, logger log.FieldLogger) *Server {
	return NewWithOpts(cfg, statuses, logger, Opts{})
}

// NewWithOpts is a more configurable version of New.
func NewWithOpts(cfg *Config, statuses StatusProvider, logger log.FieldLogger, opts Opts) *Server {
	httpServer := &http.Server{
		Addr:              cfg.Address,
		Handler:           NewRouter(cfg, statuses, logger, opts),
		ReadHeaderTimeout: time.Second * 5,
	}
	return &Server{
		HTTPServer:      httpServer,
		Logger:          logger.With(log.String("address", cfg.Address)),
		shutdownTimeout: cfg.ShutdownTimeout,
		httpServerDone:  make(chan struct{}),
	}
}

// NewRouter creates the handler with all operational endpoints.
func NewRouter(cfg *Config, statuses StatusProvider, logger log.FieldLogger, opts Opts) chi.Router {
	gatherer := opts.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID, chimiddleware.Recoverer)
	router.Method(http.MethodGet, PathMetrics, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	router.Get(PathHealthz, func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
	})
	router.Get(PathStatus, func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(rw).Encode(statuses.Statuses()); err != nil {
			logger.Error("failed to write status response", log.Error(err),
				log.String("request_id", chimiddleware.GetReqID(r.Context())))
		}
	})
	if cfg.Pprof {
		router.Mount(PathDebug, chimiddleware.Profiler())
	}
	return router
}

// Start starts the server in a blocking way. Supposed this method will be called in a separate goroutine.
// If a fatal error occurs, it's sent into passed fatalError channel.
// A second call, or a call after Stop, returns immediately.
func (s *Server) Start(fatalError chan<- error) {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	defer close(s.httpServerDone)

	s.Logger.Info("starting operations HTTP server...")
	if err := s.HTTPServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.Logger.Info("operations HTTP server closed")
			return
		}
		s.Logger.Error("operations HTTP server error", log.Error(err))
		fatalError <- err
	}
}

// Stop stops the server. If gracefully is true, in-flight scrapes are given ShutdownTimeout to complete.
func (s *Server) Stop(gracefully bool) error {
	s.Logger.Info("stopping operations HTTP server...", log.Bool("gracefully", gracefully))
	var err error
	if gracefully && s.shutdownTimeout > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		err = s.HTTPServer.Shutdown(ctx)
	} else {
		err = s.HTTPServer.Close()
	}
	if err != nil {
		s.Logger.Error("operations HTTP server closing error", log.Error(err))
		return err
	}
	// Start was never called, nothing to wait for.
	if s.started.CompareAndSwap(false, true) {
		close(s.httpServerDone)
	}
	<-s.httpServerDone // Wait closing of listener.
	return nil
}
