// SPDX-FileCopyrightText: 2025 SAP SE or an SAP affiliate company and IronCore contributors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes the operator-facing HTTP surface: health probes,
// prometheus metrics and read-only JSON views over the resource manager.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ironcore-dev/opennaas-am/internal/geni"
	"github.com/ironcore-dev/opennaas-am/internal/onserr"
)

// ResourceViews is the subset of the manager the server reads from.
type ResourceViews interface {
	GetResources(ctx context.Context) ([]geni.Resource, error)
	GetSliceResources(ctx context.Context, sliceURN string) ([]geni.Resource, error)
}

// Ready reports whether the process is able to serve, typically a store ping.
type Ready func(ctx context.Context) error

type Server struct {
	addr  string
	views ResourceViews
	ready Ready
	log   logr.Logger
}

func New(addr string, views ResourceViews, ready Ready, log logr.Logger) *Server {
	return &Server{addr: addr, views: views, ready: ready, log: log}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return onserr.Wrap(err, "ops server failed")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return onserr.Wrap(err, "ops server shutdown failed")
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return onserr.Wrap(err, "ops server failed")
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/readyz", s.handleReadyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/v1/resources", s.handleResources)
	r.Get("/v1/slices/{urn}", s.handleSlice)
	return r
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.ready(r.Context()); err != nil {
		s.log.Error(err, "readiness check failed")
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleResources(w http.ResponseWriter, r *http.Request) {
	resources, err := s.views.GetResources(r.Context())
	if err != nil {
		s.fail(w, err)
		return
	}
	s.writeJSON(w, resources)
}

func (s *Server) handleSlice(w http.ResponseWriter, r *http.Request) {
	urn, err := url.PathUnescape(chi.URLParam(r, "urn"))
	if err != nil {
		http.Error(w, "bad slice urn", http.StatusBadRequest)
		return
	}
	manifest, err := s.views.GetSliceResources(r.Context(), urn)
	if err != nil {
		s.fail(w, err)
		return
	}
	if len(manifest) == 0 {
		http.Error(w, "slice not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, manifest)
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	s.log.Error(err, "request failed")
	status := http.StatusInternalServerError
	if onserr.IsNotFound(err) {
		status = http.StatusNotFound
	}
	http.Error(w, err.Error(), status)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error(err, "failed to encode response")
	}
}
