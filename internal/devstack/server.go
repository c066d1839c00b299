// Coachess - Chess Coaching Platform Client
// Copyright 2026 Coachess Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/coachess/coachess

package devstack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/coachess/coachess/internal/config"
	"github.com/coachess/coachess/internal/logging"
)

// Server is the local development backend.
type Server struct {
	cfg   config.DevstackConfig
	store *Store
	hub   *Hub
	http  *http.Server
}

// NewServer builds the server with its routes. Call Serve to run it.
func NewServer(cfg config.DevstackConfig) *Server {
	s := &Server{
		cfg:   cfg,
		store: NewStore(),
		hub:   NewHub(),
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogging)

	// Identity surface. Rate limited so throttled-signin behavior is
	// reproducible locally; the limiter answers 429.
	r.Route("/auth/v1", func(r chi.Router) {
		r.Use(httprate.LimitByIP(cfg.RateLimitReqs, cfg.RateLimitWindow))
		r.Post("/signup", s.handleSignUp)
		r.Post("/token", s.handleToken)
		r.Post("/recover", s.handleRecover)
		r.Put("/user", s.handleUpdateUser)
	})

	// REST surface over the collections.
	r.Route("/rest/v1/{collection}", func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Get("/", s.handleRestGet)
		r.Post("/", s.handleRestPost)
		r.Patch("/", s.handleRestPatch)
		r.Delete("/", s.handleRestDelete)
	})

	r.Get("/realtime/v1/websocket", s.handleRealtime)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Handler exposes the router, e.g. for an httptest server.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Serve runs the server until the context is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.http.Addr).Msg("devstack listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("devstack shutdown: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// requireAPIKey rejects REST calls missing the application key header.
// Bearer tokens are additionally verified on non-anonymous collections by
// the hosted platform's row policies; locally, presence of a valid JWT is
// checked when one is supplied.
func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") == "" {
			writeRestError(w, http.StatusUnauthorized, "No API key found in request")
			return
		}
		if auth := r.Header.Get("Authorization"); auth != "" {
			if _, ok := s.requireBearer(w, r); !ok {
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// requestLogging logs one line per request.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logging.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("devstack request")
	})
}
