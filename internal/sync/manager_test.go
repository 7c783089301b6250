// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alrimii/AlKharj/internal/config"
	"github.com/alrimii/AlKharj/internal/docstore"
	"github.com/alrimii/AlKharj/internal/models"
)

func newTestManager(portal *fakePortal) (*Manager, *docstore.Documents) {
	docs := docstore.NewDocuments(docstore.NewMemoryStore(), time.Hour, time.Hour)
	pipeline := NewPipeline(portal, docs, 4, 0, 2, nil)
	pipeline.now = fixedClock("2024-01-10T08:00:00Z")
	coordinator := NewCoordinator(docs, "dev-test", 20*time.Second)
	cfg := config.SyncConfig{
		PollInterval:     time.Hour,
		StaleFirstLoad:   3 * time.Hour,
		StaleBackground:  10 * time.Minute,
		LockExpiry:       20 * time.Second,
		RefreshOnStartup: false,
	}
	return NewManager(pipeline, coordinator, docs, nil, cfg), docs
}

func TestTriggerRefreshSuccess(t *testing.T) {
	portal := newFakePortal()
	seedEncounterScenario(portal)
	manager, docs := newTestManager(portal)
	ctx := context.Background()

	result, err := manager.TriggerRefresh(ctx)
	if err != nil {
		t.Fatalf("TriggerRefresh: %v", err)
	}
	if result.ClassCount != 1 {
		t.Errorf("result = %+v", result)
	}

	status, err := docs.LoadSyncStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.IsUpdating {
		t.Error("lock must be released after the refresh")
	}
	if status.LastUpdateTime.IsZero() {
		t.Error("successful refresh must advance LastUpdateTime")
	}
}

func TestTriggerRefreshContention(t *testing.T) {
	portal := newFakePortal()
	seedEncounterScenario(portal)
	manager, docs := newTestManager(portal)
	ctx := context.Background()

	// Another device holds a live lock.
	if err := docs.SaveSyncStatus(ctx, &models.SyncStatus{
		IsUpdating:      true,
		UpdatedBy:       "other-device",
		UpdateStartedAt: time.Now(),
	}); err != nil {
		t.Fatal(err)
	}

	_, err := manager.TriggerRefresh(ctx)
	if !errors.Is(err, ErrRefreshInProgress) {
		t.Errorf("TriggerRefresh = %v, want ErrRefreshInProgress", err)
	}
	if portal.calls["schedule"] != 0 {
		t.Error("no fetch may run while the lock is held elsewhere")
	}
}

func TestRefreshFailureReleasesLock(t *testing.T) {
	portal := newFakePortal()
	portal.scheduleErr = errors.New("portal down")
	manager, docs := newTestManager(portal)
	ctx := context.Background()

	if _, err := manager.TriggerRefresh(ctx); err == nil {
		t.Fatal("expected refresh failure")
	}

	status, err := docs.LoadSyncStatus(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if status.IsUpdating {
		t.Error("lock must be released on the failure path")
	}
	if !status.LastUpdateTime.IsZero() {
		t.Error("failed refresh must not advance LastUpdateTime")
	}

	// A retry is possible immediately.
	portal.mu.Lock()
	portal.scheduleErr = nil
	seedEncounterScenario(portal)
	portal.mu.Unlock()
	if _, err := manager.TriggerRefresh(ctx); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestSnapshotView(t *testing.T) {
	portal := newFakePortal()
	seedEncounterScenario(portal)
	manager, docs := newTestManager(portal)
	ctx := context.Background()

	if err := docs.SaveSettings(ctx, &models.Settings{CenterName: "AlKharj"}); err != nil {
		t.Fatal(err)
	}
	if _, err := manager.TriggerRefresh(ctx); err != nil {
		t.Fatal(err)
	}

	snapshot, err := manager.SnapshotView(ctx)
	if err != nil {
		t.Fatalf("SnapshotView: %v", err)
	}
	if len(snapshot.Dates) != 2 || snapshot.Dates[0] != "2024-01-10" {
		t.Errorf("dates = %v", snapshot.Dates)
	}
	if len(snapshot.Schedules["encounter_2024-01-10"]) != 1 {
		t.Errorf("schedules = %+v", snapshot.Schedules)
	}
	if snapshot.Updating {
		t.Error("snapshot must show the released lock")
	}
	if snapshot.Settings == nil || snapshot.Settings.CenterName != "AlKharj" {
		t.Errorf("settings = %+v", snapshot.Settings)
	}
}

func TestManagerStartStop(t *testing.T) {
	portal := newFakePortal()
	seedEncounterScenario(portal)
	manager, _ := newTestManager(portal)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	manager.Start(ctx)
	manager.Stop()
}

func TestDayView(t *testing.T) {
	portal := newFakePortal()
	seedEncounterScenario(portal)
	manager, _ := newTestManager(portal)
	ctx := context.Background()

	if _, err := manager.TriggerRefresh(ctx); err != nil {
		t.Fatalf("TriggerRefresh: %v", err)
	}

	view, err := manager.DayView(ctx, models.ModeEncounter, "2024-01-10")
	if err != nil {
		t.Fatalf("DayView: %v", err)
	}
	if len(view.Encounters) != 1 {
		t.Fatalf("encounter groups = %+v", view.Encounters)
	}
	group := view.Encounters[0]
	if group.Unit != "Unit 4" || group.Teacher != "Sara" {
		t.Errorf("group = %+v", group)
	}
	if len(group.Students) != 1 || group.Students[0].Result != "Continue" {
		t.Errorf("students = %+v", group.Students)
	}

	// A day with no cached complementary classes renders empty tables.
	ccView, err := manager.DayView(ctx, models.ModeComplementary, "2024-01-11")
	if err != nil {
		t.Fatalf("DayView cc: %v", err)
	}
	if len(ccView.Complementary) != 0 {
		t.Errorf("cc groups = %+v", ccView.Complementary)
	}
}
