// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

// Package server exposes the tracker's HTTP API: the dashboard
// snapshot, sync status, manual refresh, health, and metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alrimii/AlKharj/internal/config"
	"github.com/alrimii/AlKharj/internal/logging"
	"github.com/alrimii/AlKharj/internal/metrics"
	"github.com/alrimii/AlKharj/internal/models"
	syncpkg "github.com/alrimii/AlKharj/internal/sync"
)

// Refresher is the subset of the sync manager the API drives.
type Refresher interface {
	TriggerRefresh(ctx context.Context) (*syncpkg.Result, error)
	SnapshotView(ctx context.Context) (*syncpkg.Snapshot, error)
	DayView(ctx context.Context, mode models.ClassMode, date string) (*syncpkg.DayView, error)
}

// Server is the tracker HTTP API.
type Server struct {
	httpServer *http.Server
	refresher  Refresher
	coord      *syncpkg.Coordinator
}

// New builds the server and its routes.
func New(cfg *config.ServerConfig, refresher Refresher, coord *syncpkg.Coordinator) *Server {
	s := &Server{refresher: refresher, coord: coord}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(instrument)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/api", func(r chi.Router) {
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/status", s.handleStatus)
		r.Get("/view/{mode}/{date}", s.handleDayView)
		r.Post("/refresh", s.handleRefresh)
	})

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Handler returns the route tree, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown or a listener error.
func (s *Server) Start() error {
	logging.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server starting")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.refresher.SnapshotView(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Snapshot assembly failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load snapshot"})
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.coord.Status(r.Context())
	if err != nil {
		logging.Error().Err(err).Msg("Status read failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read status"})
		return
	}
	if status == nil {
		status = &models.SyncStatus{}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDayView(w http.ResponseWriter, r *http.Request) {
	mode := models.ClassMode(chi.URLParam(r, "mode"))
	if mode != models.ModeEncounter && mode != models.ModeComplementary {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "mode must be encounter or cc"})
		return
	}
	date := chi.URLParam(r, "date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "date must be YYYY-MM-DD"})
		return
	}

	view, err := s.refresher.DayView(r.Context(), mode, date)
	if err != nil {
		logging.Error().Err(err).Str("mode", string(mode)).Str("date", date).Msg("Day view assembly failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to build view"})
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.refresher.TriggerRefresh(r.Context())
	if errors.Is(err, syncpkg.ErrRefreshInProgress) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "refresh already in progress"})
		return
	}
	if err != nil {
		logging.Error().Err(err).Msg("Manual refresh failed")
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "refresh failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"classes":       result.ClassCount,
		"students":      result.StudentCount,
		"dates":         result.Dates,
		"stageFailures": result.StageFailures,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error().Err(err).Msg("Failed to encode response")
	}
}

// instrument records request duration per method, path, and status.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		metrics.HTTPRequestDuration.
			WithLabelValues(r.Method, r.URL.Path, strconv.Itoa(ww.Status())).
			Observe(time.Since(start).Seconds())
	})
}
