// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

// Package wse talks to the WSE schedule/grade portal API. The client
// authenticates with a shared bearer token read from the document store,
// retries transient failures with configurable backoff, rate limits its
// requests, and memoizes raw responses within a session.
package wse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/alrimii/AlKharj/internal/cache"
	"github.com/alrimii/AlKharj/internal/config"
	"github.com/alrimii/AlKharj/internal/logging"
	"github.com/alrimii/AlKharj/internal/metrics"
	"github.com/alrimii/AlKharj/internal/models"
)

// maxErrorBodySize limits how much of an error response body is read
// for diagnostics.
const maxErrorBodySize = 64 * 1024

var (
	// ErrUnauthorized means the portal rejected the bearer token on
	// every attempt. A token refresh has already been requested.
	ErrUnauthorized = errors.New("portal rejected the bearer token")

	// ErrTokenUnavailable means no usable token could be read from the
	// shared token document.
	ErrTokenUnavailable = errors.New("no portal token available")
)

// TokenSource supplies the shared portal bearer token. Token is called
// on every request attempt so that a token refreshed by the external
// automation mid-retry is picked up without restarting the request.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	RequestRefresh(ctx context.Context) error
}

// PortalAPI is the set of portal operations the fetch pipeline uses.
// Implemented by Client and by CircuitBreakerClient.
type PortalAPI interface {
	Ping(ctx context.Context) error
	FetchSchedule(ctx context.Context, startDate string) ([]models.ScheduledClass, error)
	FetchClassDetails(ctx context.Context, classID string) (*models.ClassDetails, error)
	FetchLevelSummaries(ctx context.Context, userID string) (*models.LevelSummaries, error)
	FetchLessonSummaries(ctx context.Context, userID, unitID string) ([]models.LessonSummary, error)
}

// Client is the direct portal API client.
//
// Thread safety: all methods are safe for concurrent use.
type Client struct {
	baseURL    string
	centerID   string
	httpClient *http.Client
	tokens     TokenSource
	backoff    Backoff
	maxRetries int
	limiter    *rate.Limiter
	memo       *cache.Cache
}

// NewClient creates a portal client from config. The memoization cache
// belongs to the client; call Close to release it.
func NewClient(cfg *config.PortalConfig, tokens TokenSource) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		centerID:   cfg.CenterID,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		tokens:     tokens,
		backoff:    Backoff{Shape: Linear, Base: cfg.RetryDelay},
		maxRetries: cfg.MaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimitPerSec), 1),
		memo:       cache.New(cfg.MemoTTL),
	}
}

// ClearMemo drops all memoized responses. Called before a manual
// refresh so the user sees live data.
func (c *Client) ClearMemo() {
	c.memo.Clear()
}

// Close releases the memoization cache.
func (c *Client) Close() {
	c.memo.Close()
}

// Ping verifies connectivity and authentication by requesting the
// schedule for a single day.
func (c *Client) Ping(ctx context.Context) error {
	today := time.Now().UTC().Format("2006-01-02")
	_, err := c.FetchSchedule(ctx, today)
	return err
}

// FetchSchedule lists the scheduled classes for the center from the
// given date (YYYY-MM-DD) onward. The portal takes only the start of
// the window; the caller trims the far end.
func (c *Client) FetchSchedule(ctx context.Context, startDate string) ([]models.ScheduledClass, error) {
	params := url.Values{}
	params.Set("startDate", startDate)
	path := fmt.Sprintf("/api/centers/%s/schedule", url.PathEscape(c.centerID))

	body, err := c.get(ctx, "schedule", path, params)
	if err != nil {
		return nil, err
	}
	var classes []models.ScheduledClass
	if err := json.Unmarshal(body, &classes); err != nil {
		metrics.PortalRequestErrors.WithLabelValues("schedule", "decode").Inc()
		return nil, fmt.Errorf("decode schedule response: %w", err)
	}
	return classes, nil
}

// FetchClassDetails retrieves the roster and category tree for one class.
func (c *Client) FetchClassDetails(ctx context.Context, classID string) (*models.ClassDetails, error) {
	path := fmt.Sprintf("/api/classes/%s/details", url.PathEscape(classID))

	body, err := c.get(ctx, "class_details", path, url.Values{})
	if err != nil {
		return nil, err
	}
	details := &models.ClassDetails{}
	if err := json.Unmarshal(body, details); err != nil {
		metrics.PortalRequestErrors.WithLabelValues("class_details", "decode").Inc()
		return nil, fmt.Errorf("decode class details for %s: %w", classID, err)
	}
	return details, nil
}

// FetchLevelSummaries retrieves a student's curriculum progress. The
// portal pages levels; four covers a full contract.
func (c *Client) FetchLevelSummaries(ctx context.Context, userID string) (*models.LevelSummaries, error) {
	params := url.Values{}
	params.Set("count", "4")
	params.Set("offset", "0")
	path := fmt.Sprintf("/api/students/%s/levelSummaries", url.PathEscape(userID))

	body, err := c.get(ctx, "level_summaries", path, params)
	if err != nil {
		return nil, err
	}
	summaries := &models.LevelSummaries{}
	if err := json.Unmarshal(body, summaries); err != nil {
		metrics.PortalRequestErrors.WithLabelValues("level_summaries", "decode").Inc()
		return nil, fmt.Errorf("decode level summaries for %s: %w", userID, err)
	}
	return summaries, nil
}

// FetchLessonSummaries retrieves per-lesson progress for one student in
// one unit.
func (c *Client) FetchLessonSummaries(ctx context.Context, userID, unitID string) ([]models.LessonSummary, error) {
	path := fmt.Sprintf("/api/students/%s/units/%s/lessonssummaries",
		url.PathEscape(userID), url.PathEscape(unitID))

	body, err := c.get(ctx, "lesson_summaries", path, url.Values{})
	if err != nil {
		return nil, err
	}
	var resp models.LessonSummariesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		metrics.PortalRequestErrors.WithLabelValues("lesson_summaries", "decode").Inc()
		return nil, fmt.Errorf("decode lesson summaries for %s/%s: %w", userID, unitID, err)
	}
	return resp.LessonsSummaries, nil
}

// get performs a memoized, rate-limited, retried GET. The token is
// re-read from the source on every attempt; a 401 triggers a refresh
// request before the next attempt.
func (c *Client) get(ctx context.Context, endpoint, path string, params url.Values) ([]byte, error) {
	key := cache.RequestKey(path, params)
	if body, ok := c.memo.Get(key); ok {
		metrics.MemoCacheHits.Inc()
		return body, nil
	}
	metrics.MemoCacheMisses.Inc()

	start := time.Now()
	defer metrics.ObservePortalRequest(endpoint, start)

	requestURL := c.baseURL + path
	if encoded := params.Encode(); encoded != "" {
		requestURL += "?" + encoded
	}

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.PortalRetries.WithLabelValues(endpoint).Inc()
			if err := c.backoff.Wait(ctx, attempt-1); err != nil {
				return nil, err
			}
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		token, err := c.tokens.Token(ctx)
		if err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
			metrics.PortalRequestErrors.WithLabelValues(endpoint, "auth").Inc()
			continue
		}

		body, err := c.doRequest(ctx, requestURL, token)
		if err == nil {
			c.memo.Set(key, body)
			return body, nil
		}
		lastErr = err

		if errors.Is(err, ErrUnauthorized) {
			metrics.PortalRequestErrors.WithLabelValues(endpoint, "auth").Inc()
			if refreshErr := c.tokens.RequestRefresh(ctx); refreshErr != nil {
				logging.Warn().Err(refreshErr).Msg("Token refresh request failed")
			}
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.PortalRequestErrors.WithLabelValues(endpoint, errorReason(err)).Inc()
		logging.Debug().Err(err).
			Str("endpoint", endpoint).
			Int("attempt", attempt+1).
			Msg("Portal request failed")
	}
	return nil, fmt.Errorf("portal %s failed after %d attempts: %w", endpoint, c.maxRetries, lastErr)
}

func (c *Client) doRequest(ctx context.Context, requestURL, token string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body := readBodyForError(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return body, nil
}

// readBodyForError reads at most maxErrorBodySize of a response body
// for error reporting.
func readBodyForError(r io.Reader) []byte {
	body, err := io.ReadAll(io.LimitReader(r, maxErrorBodySize))
	if err != nil {
		return []byte("(failed to read response body)")
	}
	if len(body) == maxErrorBodySize {
		body = append(body, []byte("... (truncated)")...)
	}
	return body
}

func errorReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "auth"
	case strings.Contains(err.Error(), "unexpected status"):
		return "http_error"
	default:
		return "network"
	}
}
