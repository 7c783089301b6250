// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

// Package token reads the shared portal bearer token from the document
// store and triggers the external refresh automation when the token is
// aging out. The tracker never mints tokens itself; a scraping webhook
// owned by the operator writes fresh tokens into the store.
package token

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/alrimii/AlKharj/internal/config"
	"github.com/alrimii/AlKharj/internal/docstore"
	"github.com/alrimii/AlKharj/internal/logging"
	"github.com/alrimii/AlKharj/internal/metrics"
)

var (
	// ErrNoToken means the token document has never been written.
	ErrNoToken = errors.New("token document not found")

	// ErrTokenExpired means the stored token is too old to use.
	ErrTokenExpired = errors.New("stored token has expired")
)

// refreshDebounce is the minimum gap between refresh webhook triggers.
// The scraping automation takes on the order of a minute to produce a
// new token; hammering it does not speed that up.
const refreshDebounce = time.Minute

// Source reads tokens from the document store. Safe for concurrent use.
type Source struct {
	docs         *docstore.Documents
	refreshURL   string
	needsRefresh time.Duration
	expired      time.Duration
	httpClient   *http.Client

	mu          sync.Mutex
	lastRefresh time.Time

	// now is injectable for deterministic age tests.
	now func() time.Time
}

// NewSource creates a token source over docs using the portal config's
// age thresholds and refresh webhook.
func NewSource(cfg *config.PortalConfig, docs *docstore.Documents) *Source {
	return &Source{
		docs:         docs,
		refreshURL:   cfg.TokenRefreshURL,
		needsRefresh: cfg.TokenNeedsRefresh,
		expired:      cfg.TokenExpired,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		now:          time.Now,
	}
}

// Token returns the current bearer token. A token past the refresh
// threshold is still returned but a refresh is triggered in the
// background; a token past the expiry threshold is an error.
func (s *Source) Token(ctx context.Context) (string, error) {
	doc, err := s.docs.LoadToken(ctx)
	if err != nil {
		return "", fmt.Errorf("load token document: %w", err)
	}
	if doc == nil || doc.Token == "" {
		return "", ErrNoToken
	}

	age := s.now().Sub(doc.UpdatedAt)
	if age > s.expired {
		return "", fmt.Errorf("%w: age %s exceeds %s", ErrTokenExpired, age.Round(time.Minute), s.expired)
	}
	if age > s.needsRefresh {
		logging.Debug().Dur("age", age).Msg("Token aging, requesting refresh")
		if err := s.RequestRefresh(ctx); err != nil {
			logging.Warn().Err(err).Msg("Token refresh request failed")
		}
	}
	return doc.Token, nil
}

// Age returns how old the stored token is, or an error when none exists.
func (s *Source) Age(ctx context.Context) (time.Duration, error) {
	doc, err := s.docs.LoadToken(ctx)
	if err != nil {
		return 0, err
	}
	if doc == nil {
		return 0, ErrNoToken
	}
	return s.now().Sub(doc.UpdatedAt), nil
}

// RequestRefresh asks the external automation for a fresh token by
// POSTing to the refresh webhook. Requests within the debounce window
// are dropped silently; the automation writes the new token into the
// store on its own schedule.
func (s *Source) RequestRefresh(ctx context.Context) error {
	if s.refreshURL == "" {
		return nil
	}

	s.mu.Lock()
	if s.now().Sub(s.lastRefresh) < refreshDebounce {
		s.mu.Unlock()
		return nil
	}
	s.lastRefresh = s.now()
	s.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, nil)
	if err != nil {
		return fmt.Errorf("build refresh request: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("trigger token refresh: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("token refresh webhook returned status %d", resp.StatusCode)
	}

	metrics.TokenRefreshRequests.Inc()
	logging.Info().Msg("Token refresh requested")
	return nil
}
