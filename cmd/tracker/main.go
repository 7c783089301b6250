// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

// Command tracker runs the AlKharj dashboard service: it keeps the
// shared schedule and student progress documents fresh against the WSE
// portal and serves them over HTTP.
package main

import (
	"context"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alrimii/AlKharj/internal/config"
	"github.com/alrimii/AlKharj/internal/docstore"
	"github.com/alrimii/AlKharj/internal/logging"
	"github.com/alrimii/AlKharj/internal/server"
	syncpkg "github.com/alrimii/AlKharj/internal/sync"
	"github.com/alrimii/AlKharj/internal/token"
	"github.com/alrimii/AlKharj/internal/wse"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Configuration error")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	logging.Info().Str("center_id", cfg.Portal.CenterID).Msg("AlKharj tracker starting")

	store, err := docstore.NewBadgerStore(filepath.Join(cfg.Store.Path, "db"))
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open document store")
	}
	defer func() {
		if err := store.Close(); err != nil {
			logging.Error().Err(err).Msg("Document store close failed")
		}
	}()

	docs := docstore.NewDocuments(store, cfg.Store.ScheduleTTL, cfg.Store.SummariesTTL)
	tokens := token.NewSource(&cfg.Portal, docs)

	client := wse.NewClient(&cfg.Portal, tokens)
	defer client.Close()
	portal := wse.NewCircuitBreakerClient(client)

	deviceID := syncpkg.LoadDeviceID(cfg.Sync.DeviceIDPath)
	coordinator := syncpkg.NewCoordinator(docs, deviceID, cfg.Sync.LockExpiry)
	pipeline := syncpkg.NewPipeline(portal, docs, cfg.Sync.Concurrency, cfg.Sync.DaysBehind, cfg.Sync.DaysAhead, func(stage string, completed, total int) {
		logging.Debug().
			Str("stage", stage).
			Int("completed", completed).
			Int("total", total).
			Msg("Refresh progress")
	})
	manager := syncpkg.NewManager(pipeline, coordinator, docs, client, cfg.Sync)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager.Start(ctx)
	defer manager.Stop()

	srv := server.New(&cfg.Server, manager, coordinator)
	go func() {
		if err := srv.Start(); err != nil {
			logging.Error().Err(err).Msg("HTTP server error")
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("HTTP shutdown error")
	}
}
