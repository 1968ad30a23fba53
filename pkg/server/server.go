// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package server exposes discovery over HTTP.
//
// Routes:
//
//	POST /v1/discoveries      run a discovery ({"url": ..., "session_id": ...})
//	GET  /v1/reports          list reports (?host=&limit=)
//	GET  /v1/reports/{id}     fetch one report
//	GET  /v1/schema           JSON Schema of an observation
//	GET  /health              liveness
//
// Discoveries drive a real browser, so they are limited both per client IP
// and in how many may run at once.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/semaphore"

	"github.com/kadirpekel/scout/pkg/config"
	"github.com/kadirpekel/scout/pkg/observability"
	"github.com/kadirpekel/scout/pkg/pipeline"
	"github.com/kadirpekel/scout/pkg/report"
)

// Discoverer runs discoveries and owns the reports they produce.
type Discoverer interface {
	Discover(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
	Reports() report.Store
}

// Server is the scout HTTP API.
type Server struct {
	cfg    config.ServerConfig
	svc    Discoverer
	obs    *observability.Manager
	slots  *semaphore.Weighted
	server *http.Server
}

// New creates a server. obs may be nil.
func New(cfg config.ServerConfig, svc Discoverer, obs *observability.Manager) *Server {
	if cfg.Host == "" {
		cfg.Host = config.DefaultServerHost
	}
	if cfg.Port == 0 {
		cfg.Port = config.DefaultServerPort
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = config.DefaultMaxConcurrent
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = config.DefaultRateLimit
	}
	if obs == nil {
		obs = observability.NoopManager()
	}
	return &Server{
		cfg:   cfg,
		svc:   svc,
		obs:   obs,
		slots: semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}
}

// Handler builds the router with its middleware chain.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(observability.HTTPMiddleware(s.obs.Tracer(), s.obs.Metrics()))
	r.Use(loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	if s.obs.MetricsEnabled() {
		r.Handle(s.obs.MetricsPath(), s.obs.MetricsHandler())
		slog.Info("Metrics endpoint enabled", "path", s.obs.MetricsPath())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/schema", s.handleSchema)
		r.Get("/reports", s.handleListReports)
		r.Get("/reports/{id}", s.handleGetReport)
		r.With(rateLimit(s.cfg.RateLimit, time.Minute)).
			Post("/discoveries", s.handleDiscover)
	})
	return r
}

// Start serves until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	// A discovery holds the response open for the whole agent run.
	s.server = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("HTTP server starting", "address", s.cfg.Address(),
		"max_concurrent", s.cfg.MaxConcurrent, "rate_limit", s.cfg.RateLimit)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown stops accepting requests and waits briefly for running ones.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	slog.Info("HTTP server shutting down")
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP shutdown error: %w", err)
	}
	return nil
}

// Address returns the listen address.
func (s *Server) Address() string {
	return s.cfg.Address()
}
