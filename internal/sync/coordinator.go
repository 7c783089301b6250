// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package sync

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	stdsync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/alrimii/AlKharj/internal/docstore"
	"github.com/alrimii/AlKharj/internal/logging"
	"github.com/alrimii/AlKharj/internal/metrics"
	"github.com/alrimii/AlKharj/internal/models"
)

// ErrRefreshInProgress means another device holds the refresh lock.
var ErrRefreshInProgress = errors.New("refresh already in progress on another device")

// Coordinator serializes refreshes across devices through the shared
// sync status document. The lock is advisory: the store offers no
// transactions, so two devices racing the same idle lock may both
// proceed. That is tolerated because merges are idempotent and
// last-write-wins on the same fresh data is harmless.
type Coordinator struct {
	docs       *docstore.Documents
	deviceID   string
	lockExpiry time.Duration

	// localMu guards localLastUpdate, this process's own record of its
	// last successful refresh, used when the shared status document
	// cannot be read.
	localMu         stdsync.Mutex
	localLastUpdate time.Time

	// now is injectable for deterministic lock tests.
	now func() time.Time
}

// NewCoordinator creates a coordinator identified by deviceID. Locks
// older than lockExpiry are treated as abandoned by a crashed device
// and may be reclaimed.
func NewCoordinator(docs *docstore.Documents, deviceID string, lockExpiry time.Duration) *Coordinator {
	return &Coordinator{
		docs:       docs,
		deviceID:   deviceID,
		lockExpiry: lockExpiry,
		now:        time.Now,
	}
}

// DeviceID returns this coordinator's device identity.
func (c *Coordinator) DeviceID() string {
	return c.deviceID
}

// Acquire takes the refresh lock. Returns ErrRefreshInProgress when a
// live lock is held elsewhere; an abandoned lock is reclaimed.
func (c *Coordinator) Acquire(ctx context.Context) error {
	status, err := c.docs.LoadSyncStatus(ctx)
	if err != nil {
		return fmt.Errorf("load sync status: %w", err)
	}

	now := c.now()
	outcome := "acquired"
	if status != nil && status.IsUpdating {
		held := now.Sub(status.UpdateStartedAt)
		if held <= c.lockExpiry {
			metrics.LockAcquisitions.WithLabelValues("contended").Inc()
			logging.Debug().
				Str("holder", status.UpdatedBy).
				Dur("held", held).
				Msg("Refresh lock held elsewhere")
			return ErrRefreshInProgress
		}
		outcome = "reclaimed"
		logging.Warn().
			Str("holder", status.UpdatedBy).
			Dur("held", held).
			Msg("Reclaiming abandoned refresh lock")
	}

	next := &models.SyncStatus{
		IsUpdating:      true,
		UpdatedBy:       c.deviceID,
		UpdateStartedAt: now,
	}
	if status != nil {
		next.LastUpdateTime = status.LastUpdateTime
	}
	if err := c.docs.SaveSyncStatus(ctx, next); err != nil {
		return fmt.Errorf("write sync status: %w", err)
	}
	metrics.LockAcquisitions.WithLabelValues(outcome).Inc()
	return nil
}

// Release drops the refresh lock. It must run on every exit path of a
// refresh, success or not. LastUpdateTime advances only on success so
// a failed refresh stays eligible for an immediate retry.
//
// Release uses a fresh context so a cancelled refresh still clears the
// lock rather than stranding it until expiry.
func (c *Coordinator) Release(success bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := c.docs.LoadSyncStatus(ctx)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to load sync status during release")
		status = nil
	}

	next := &models.SyncStatus{
		IsUpdating: false,
		UpdatedBy:  c.deviceID,
	}
	if status != nil {
		next.LastUpdateTime = status.LastUpdateTime
	}
	if success {
		now := c.now()
		next.LastUpdateTime = now
		c.localMu.Lock()
		c.localLastUpdate = now
		c.localMu.Unlock()
	}
	if err := c.docs.SaveSyncStatus(ctx, next); err != nil {
		logging.Error().Err(err).Msg("Failed to release refresh lock")
	}
}

// LastUpdate returns the recorded completion time of the last
// successful refresh, or the zero time when none has completed.
func (c *Coordinator) LastUpdate(ctx context.Context) (time.Time, error) {
	status, err := c.docs.LoadSyncStatus(ctx)
	if err != nil {
		return time.Time{}, err
	}
	if status == nil {
		return time.Time{}, nil
	}
	return status.LastUpdateTime, nil
}

// IsStale reports whether the shared data is older than threshold.
// When the shared status document cannot be read, the check falls back
// to this process's own last successful refresh so an unreachable
// record never suppresses refreshes. Data that has never been
// refreshed is always stale.
func (c *Coordinator) IsStale(ctx context.Context, threshold time.Duration) (bool, error) {
	last, err := c.LastUpdate(ctx)
	if err != nil {
		c.localMu.Lock()
		last = c.localLastUpdate
		c.localMu.Unlock()
		logging.Warn().Err(err).
			Time("local_last_update", last).
			Msg("Sync status unreadable, using local refresh time")
	}
	if last.IsZero() {
		return true, nil
	}
	return c.now().Sub(last) > threshold, nil
}

// Status returns the raw sync status document, which may be nil.
func (c *Coordinator) Status(ctx context.Context) (*models.SyncStatus, error) {
	return c.docs.LoadSyncStatus(ctx)
}

// LoadDeviceID reads the persistent device identity from path, minting
// and persisting a new UUID on first run. A device that cannot persist
// its identity still gets an ephemeral one.
func LoadDeviceID(path string) string {
	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if id != "" {
			return id
		}
	}

	id := uuid.NewString()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
		if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
			logging.Warn().Err(err).Str("path", path).Msg("Failed to persist device ID")
		}
	} else {
		logging.Warn().Err(err).Str("path", path).Msg("Failed to create device ID directory")
	}
	return id
}
