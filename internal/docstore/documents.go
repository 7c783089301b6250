// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/alrimii/AlKharj/internal/models"
)

// Collection names.
const (
	CollectionSchedules = "schedules"
	CollectionStudents  = "students"
	CollectionSync      = "sync"
	CollectionConfig    = "config"
)

// Well-known document keys.
const (
	KeySyncStatus = "status"
	KeyToken      = "wseToken"
	KeySettings   = "settings"
)

// ScheduleKey builds the document key for one class mode on one date,
// e.g. "encounter_2024-01-10".
func ScheduleKey(mode models.ClassMode, date string) string {
	return fmt.Sprintf("%s_%s", mode, date)
}

// Documents layers typed accessors for the tracker's document shapes on
// top of a Store.
type Documents struct {
	store        Store
	scheduleTTL  time.Duration
	summariesTTL time.Duration
}

// NewDocuments wraps store with the configured TTLs for schedule and
// student summary documents.
func NewDocuments(store Store, scheduleTTL, summariesTTL time.Duration) *Documents {
	return &Documents{store: store, scheduleTTL: scheduleTTL, summariesTTL: summariesTTL}
}

// Store exposes the underlying store for raw access.
func (d *Documents) Store() Store {
	return d.store
}

// SaveSchedules groups entries by mode and date and writes one document
// per group. Every entry in a group's document shares its key's mode
// and date.
func (d *Documents) SaveSchedules(ctx context.Context, grouped map[string][]models.ScheduleEntry) error {
	if len(grouped) == 0 {
		return nil
	}
	docs := make(map[string]any, len(grouped))
	for key, entries := range grouped {
		docs[key] = entries
	}
	return d.store.SaveDocuments(ctx, CollectionSchedules, docs, d.scheduleTTL)
}

// LoadSchedules reads the schedule documents for every mode and date
// combination and returns the decoded entries grouped by document key.
// Missing documents are simply absent from the result.
func (d *Documents) LoadSchedules(ctx context.Context, modes []models.ClassMode, dates []string) (map[string][]models.ScheduleEntry, error) {
	keys := make([]string, 0, len(modes)*len(dates))
	for _, mode := range modes {
		for _, date := range dates {
			keys = append(keys, ScheduleKey(mode, date))
		}
	}

	envelopes, err := d.store.GetByKeys(ctx, CollectionSchedules, keys)
	if err != nil {
		return nil, err
	}

	grouped := make(map[string][]models.ScheduleEntry, len(envelopes))
	for key, envelope := range envelopes {
		var entries []models.ScheduleEntry
		if err := json.Unmarshal(envelope.Data, &entries); err != nil {
			return nil, fmt.Errorf("decode schedule document %s: %w", key, err)
		}
		grouped[key] = entries
	}
	return grouped, nil
}

// OldestScheduleUpdate returns the earliest UpdatedAt among the given
// schedule documents, or the zero time when none exist. Data age is
// judged by the stalest document, not the freshest.
func (d *Documents) OldestScheduleUpdate(ctx context.Context, modes []models.ClassMode, dates []string) (time.Time, error) {
	keys := make([]string, 0, len(modes)*len(dates))
	for _, mode := range modes {
		for _, date := range dates {
			keys = append(keys, ScheduleKey(mode, date))
		}
	}
	envelopes, err := d.store.GetByKeys(ctx, CollectionSchedules, keys)
	if err != nil {
		return time.Time{}, err
	}
	var oldest time.Time
	for _, envelope := range envelopes {
		if oldest.IsZero() || envelope.UpdatedAt.Before(oldest) {
			oldest = envelope.UpdatedAt
		}
	}
	return oldest, nil
}

// SaveLevelSummaries writes one document per student keyed by user ID.
func (d *Documents) SaveLevelSummaries(ctx context.Context, byUser map[string]*models.LevelSummaries) error {
	if len(byUser) == 0 {
		return nil
	}
	docs := make(map[string]any, len(byUser))
	for userID, summaries := range byUser {
		docs[userID] = summaries
	}
	return d.store.SaveDocuments(ctx, CollectionStudents, docs, d.summariesTTL)
}

// LoadLevelSummaries reads the cached level summaries for the given
// students. Students with no cached document are absent from the result.
func (d *Documents) LoadLevelSummaries(ctx context.Context, userIDs []string) (map[string]*models.LevelSummaries, error) {
	envelopes, err := d.store.GetByKeys(ctx, CollectionStudents, userIDs)
	if err != nil {
		return nil, err
	}
	byUser := make(map[string]*models.LevelSummaries, len(envelopes))
	for userID, envelope := range envelopes {
		summaries := &models.LevelSummaries{}
		if err := json.Unmarshal(envelope.Data, summaries); err != nil {
			return nil, fmt.Errorf("decode level summaries for %s: %w", userID, err)
		}
		byUser[userID] = summaries
	}
	return byUser, nil
}

// LoadSyncStatus reads the advisory lock document. Returns nil with no
// error when the document does not exist.
func (d *Documents) LoadSyncStatus(ctx context.Context) (*models.SyncStatus, error) {
	status := &models.SyncStatus{}
	err := d.store.GetDocument(ctx, CollectionSync, KeySyncStatus, status)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return status, nil
}

// SaveSyncStatus writes the advisory lock document. The document never
// expires; its lifetime is managed explicitly by the coordinator.
func (d *Documents) SaveSyncStatus(ctx context.Context, status *models.SyncStatus) error {
	return d.store.SaveDocuments(ctx, CollectionSync, map[string]any{KeySyncStatus: status}, 0)
}

// ClearSyncStatus deletes the advisory lock document.
func (d *Documents) ClearSyncStatus(ctx context.Context) error {
	return d.store.DeleteDocument(ctx, CollectionSync, KeySyncStatus)
}

// LoadToken reads the shared portal token document. Returns nil with no
// error when the document does not exist.
func (d *Documents) LoadToken(ctx context.Context) (*models.TokenDocument, error) {
	token := &models.TokenDocument{}
	err := d.store.GetDocument(ctx, CollectionConfig, KeyToken, token)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return token, nil
}

// SaveToken writes the shared portal token document without expiry;
// token age is judged from its own timestamps.
func (d *Documents) SaveToken(ctx context.Context, token *models.TokenDocument) error {
	return d.store.SaveDocuments(ctx, CollectionConfig, map[string]any{KeyToken: token}, 0)
}

// LoadSettings reads the shared settings document. Returns nil with no
// error when the document does not exist.
func (d *Documents) LoadSettings(ctx context.Context) (*models.Settings, error) {
	settings := &models.Settings{}
	err := d.store.GetDocument(ctx, CollectionConfig, KeySettings, settings)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return settings, nil
}

// SaveSettings writes the shared settings document without expiry.
func (d *Documents) SaveSettings(ctx context.Context, settings *models.Settings) error {
	return d.store.SaveDocuments(ctx, CollectionConfig, map[string]any{KeySettings: settings}, 0)
}
