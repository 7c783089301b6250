// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"github.com/alrimii/AlKharj/internal/config"
	"github.com/alrimii/AlKharj/internal/docstore"
	"github.com/alrimii/AlKharj/internal/logging"
	"github.com/alrimii/AlKharj/internal/metrics"
	"github.com/alrimii/AlKharj/internal/models"
	"github.com/alrimii/AlKharj/internal/report"
)

// Refresh triggers, used as metric labels and log fields.
const (
	TriggerStartup    = "startup"
	TriggerBackground = "background"
	TriggerManual     = "manual"
)

// MemoClearer drops memoized portal responses before a manual refresh.
type MemoClearer interface {
	ClearMemo()
}

// Snapshot is the current view served to dashboard clients.
type Snapshot struct {
	Dates      []string                          `json:"dates"`
	Schedules  map[string][]models.ScheduleEntry `json:"schedules"`
	LastUpdate time.Time                         `json:"lastUpdate,omitempty"`
	Updating   bool                              `json:"updating"`
	UpdatedBy  string                            `json:"updatedBy,omitempty"`
	Settings   *models.Settings                  `json:"settings,omitempty"`
}

// Manager owns the refresh lifecycle: a staleness-driven refresh on
// startup, a polling loop that refreshes stale shared data in the
// background, and manual refreshes on demand. At most one refresh runs
// per process; cross-device exclusion goes through the Coordinator.
type Manager struct {
	pipeline    *Pipeline
	coordinator *Coordinator
	docs        *docstore.Documents
	memo        MemoClearer
	cfg         config.SyncConfig

	refreshMu stdsync.Mutex
	stopChan  chan struct{}
	stopOnce  stdsync.Once
	wg        stdsync.WaitGroup
}

// NewManager wires the refresh lifecycle together. memo may be nil.
func NewManager(pipeline *Pipeline, coordinator *Coordinator, docs *docstore.Documents, memo MemoClearer, cfg config.SyncConfig) *Manager {
	return &Manager{
		pipeline:    pipeline,
		coordinator: coordinator,
		docs:        docs,
		memo:        memo,
		cfg:         cfg,
		stopChan:    make(chan struct{}),
	}
}

// Start launches the background refresh loop. The startup refresh uses
// the generous first-load staleness threshold; the polling loop uses
// the tighter background threshold.
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		if m.cfg.RefreshOnStartup {
			m.refreshIfStale(ctx, TriggerStartup, m.cfg.StaleFirstLoad)
		}

		ticker := time.NewTicker(m.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stopChan:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.refreshIfStale(ctx, TriggerBackground, m.cfg.StaleBackground)
			}
		}
	}()
	logging.Info().
		Dur("poll_interval", m.cfg.PollInterval).
		Str("device_id", m.coordinator.DeviceID()).
		Msg("Sync manager started")
}

// Stop halts the background loop and waits for any in-flight iteration.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
	logging.Info().Msg("Sync manager stopped")
}

// TriggerRefresh runs a manual refresh immediately, bypassing staleness
// checks. Memoized portal responses are dropped first so the user sees
// live data. Returns ErrRefreshInProgress when another device holds the
// lock or this process is already refreshing.
func (m *Manager) TriggerRefresh(ctx context.Context) (*Result, error) {
	if m.memo != nil {
		m.memo.ClearMemo()
	}
	return m.refresh(ctx, TriggerManual)
}

// SnapshotView assembles the current dashboard view from the store.
func (m *Manager) SnapshotView(ctx context.Context) (*Snapshot, error) {
	dates := m.pipeline.Dates()
	schedules, err := m.docs.LoadSchedules(ctx,
		[]models.ClassMode{models.ModeEncounter, models.ModeComplementary}, dates)
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}

	snapshot := &Snapshot{
		Dates:     dates,
		Schedules: schedules,
	}
	if status, err := m.coordinator.Status(ctx); err == nil && status != nil {
		snapshot.LastUpdate = status.LastUpdateTime
		snapshot.Updating = status.IsUpdating
		snapshot.UpdatedBy = status.UpdatedBy
	}
	if settings, err := m.docs.LoadSettings(ctx); err == nil {
		snapshot.Settings = settings
	}
	return snapshot, nil
}

// DayView is one day's rendered dashboard tables for a single class
// mode.
type DayView struct {
	Mode          models.ClassMode            `json:"mode"`
	Date          string                      `json:"date"`
	Encounters    []report.EncounterGroup     `json:"encounters,omitempty"`
	Complementary []report.ComplementaryGroup `json:"complementary,omitempty"`
}

// DayView renders the display tables for one mode and date from the
// cached schedule documents. Encounter tables pull each student's
// level summaries for results and scores.
func (m *Manager) DayView(ctx context.Context, mode models.ClassMode, date string) (*DayView, error) {
	schedules, err := m.docs.LoadSchedules(ctx, []models.ClassMode{mode}, []string{date})
	if err != nil {
		return nil, fmt.Errorf("load schedules: %w", err)
	}
	entries := schedules[docstore.ScheduleKey(mode, date)]

	view := &DayView{Mode: mode, Date: date}
	now := m.pipeline.now()
	if mode == models.ModeEncounter {
		students := DedupStudents(entries)
		userIDs := make([]string, len(students))
		for i, s := range students {
			userIDs[i] = s.UserID
		}
		summaries, err := m.docs.LoadLevelSummaries(ctx, userIDs)
		if err != nil {
			logging.Warn().Err(err).Msg("Level summaries unavailable for day view")
			summaries = map[string]*models.LevelSummaries{}
		}
		view.Encounters = report.EncounterGroups(entries, summaries, now)
	} else {
		view.Complementary = report.ComplementaryGroups(entries, now)
	}
	return view, nil
}

func (m *Manager) refreshIfStale(ctx context.Context, trigger string, threshold time.Duration) {
	stale, err := m.coordinator.IsStale(ctx, threshold)
	if err != nil {
		logging.Error().Err(err).Msg("Staleness check failed")
		return
	}
	if !stale {
		return
	}
	if _, err := m.refresh(ctx, trigger); err != nil && !errors.Is(err, ErrRefreshInProgress) {
		logging.Error().Err(err).Str("trigger", trigger).Msg("Refresh failed")
	}
}

// refresh runs one coordinated refresh cycle. The lock is released on
// every exit path.
func (m *Manager) refresh(ctx context.Context, trigger string) (*Result, error) {
	if !m.refreshMu.TryLock() {
		metrics.RefreshTotal.WithLabelValues(trigger, "skipped").Inc()
		return nil, ErrRefreshInProgress
	}
	defer m.refreshMu.Unlock()

	if err := m.coordinator.Acquire(ctx); err != nil {
		if errors.Is(err, ErrRefreshInProgress) {
			metrics.RefreshTotal.WithLabelValues(trigger, "skipped").Inc()
			logging.Debug().Str("trigger", trigger).Msg("Refresh skipped, lock held elsewhere")
		}
		return nil, err
	}

	start := time.Now()
	logging.Info().Str("trigger", trigger).Msg("Refresh starting")

	result, err := m.pipeline.Run(ctx)
	success := err == nil
	m.coordinator.Release(success)

	duration := time.Since(start)
	metrics.RefreshDuration.Observe(duration.Seconds())
	if !success {
		metrics.RefreshTotal.WithLabelValues(trigger, "failure").Inc()
		return nil, fmt.Errorf("refresh (%s): %w", trigger, err)
	}

	metrics.RefreshTotal.WithLabelValues(trigger, "success").Inc()
	metrics.DataAge.Set(0)
	logging.Info().
		Str("trigger", trigger).
		Dur("duration", duration).
		Int("classes", result.ClassCount).
		Int("students", result.StudentCount).
		Msg("Refresh finished")
	return result, nil
}
