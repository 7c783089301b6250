// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package wse

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alrimii/AlKharj/internal/config"
)

type stubTokens struct {
	tokens          []string
	calls           atomic.Int32
	refreshRequests atomic.Int32
	err             error
}

func (s *stubTokens) Token(ctx context.Context) (string, error) {
	n := int(s.calls.Add(1)) - 1
	if s.err != nil {
		return "", s.err
	}
	if n >= len(s.tokens) {
		return s.tokens[len(s.tokens)-1], nil
	}
	return s.tokens[n], nil
}

func (s *stubTokens) RequestRefresh(ctx context.Context) error {
	s.refreshRequests.Add(1)
	return nil
}

func testClient(t *testing.T, serverURL string, tokens TokenSource) *Client {
	t.Helper()
	cfg := &config.PortalConfig{
		BaseURL:         serverURL,
		CenterID:        "c-1",
		RequestTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryDelay:      time.Millisecond,
		RateLimitPerSec: 10000,
		MemoTTL:         time.Minute,
	}
	c := NewClient(cfg, tokens)
	t.Cleanup(c.Close)
	return c
}

func TestFetchScheduleSendsAuthAndParams(t *testing.T) {
	var gotAuth, gotPath, gotQuery string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`[{"classId":"c1","startDate":"2024-01-10T10:00:00Z","categoriesAbbreviations":"A2"}]`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, &stubTokens{tokens: []string{"tok-1"}})
	classes, err := client.FetchSchedule(context.Background(), "2024-01-08")
	if err != nil {
		t.Fatalf("FetchSchedule: %v", err)
	}
	if len(classes) != 1 || classes[0].ClassID != "c1" {
		t.Errorf("classes = %+v", classes)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotPath != "/api/centers/c-1/schedule" {
		t.Errorf("path = %q", gotPath)
	}
	if gotQuery != "startDate=2024-01-08" {
		t.Errorf("query = %q", gotQuery)
	}
}

func TestEndpointPaths(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, &stubTokens{tokens: []string{"tok"}})
	ctx := context.Background()
	if _, err := client.FetchClassDetails(ctx, "c1"); err != nil {
		t.Fatalf("FetchClassDetails: %v", err)
	}
	if _, err := client.FetchLevelSummaries(ctx, "u1"); err != nil {
		t.Fatalf("FetchLevelSummaries: %v", err)
	}

	want := []string{"/api/classes/c1/details", "/api/students/u1/levelSummaries"}
	for i, path := range want {
		if paths[i] != path {
			t.Errorf("path[%d] = %q, want %q", i, paths[i], path)
		}
	}
}

func TestGetRetriesTransientFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"classId":"c1","startDate":"2024-01-10T10:00:00Z"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, &stubTokens{tokens: []string{"tok"}})
	details, err := client.FetchClassDetails(context.Background(), "c1")
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if details.ClassID != "c1" {
		t.Errorf("details = %+v", details)
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
}

func TestGetExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := testClient(t, server.URL, &stubTokens{tokens: []string{"tok"}})
	_, err := client.FetchClassDetails(context.Background(), "c1")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
}

func TestUnauthorizedTriggersRefreshAndRereadsToken(t *testing.T) {
	var authHeaders []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth := r.Header.Get("Authorization")
		authHeaders = append(authHeaders, auth)
		if auth != "Bearer fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"classId":"c1"}`))
	}))
	defer server.Close()

	tokens := &stubTokens{tokens: []string{"stale", "fresh"}}
	client := testClient(t, server.URL, tokens)

	_, err := client.FetchClassDetails(context.Background(), "c1")
	if err != nil {
		t.Fatalf("expected success with refreshed token, got %v", err)
	}
	if tokens.refreshRequests.Load() != 1 {
		t.Errorf("refresh requests = %d, want 1", tokens.refreshRequests.Load())
	}
	if len(authHeaders) != 2 || authHeaders[0] != "Bearer stale" || authHeaders[1] != "Bearer fresh" {
		t.Errorf("auth headers = %v, token must be re-read per attempt", authHeaders)
	}
}

func TestUnauthorizedOnEveryAttempt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	tokens := &stubTokens{tokens: []string{"bad"}}
	client := testClient(t, server.URL, tokens)

	_, err := client.FetchClassDetails(context.Background(), "c1")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("error = %v, want ErrUnauthorized", err)
	}
	if tokens.refreshRequests.Load() != 3 {
		t.Errorf("refresh requests = %d, want one per attempt", tokens.refreshRequests.Load())
	}
}

func TestTokenUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request should reach the server without a token")
	}))
	defer server.Close()

	tokens := &stubTokens{err: errors.New("store empty")}
	client := testClient(t, server.URL, tokens)

	_, err := client.FetchClassDetails(context.Background(), "c1")
	if !errors.Is(err, ErrTokenUnavailable) {
		t.Errorf("error = %v, want ErrTokenUnavailable", err)
	}
}

func TestMemoizationSkipsSecondRequest(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`{"classId":"c1"}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, &stubTokens{tokens: []string{"tok"}})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := client.FetchClassDetails(ctx, "c1"); err != nil {
			t.Fatal(err)
		}
	}
	if hits.Load() != 1 {
		t.Errorf("server hits = %d, want 1 with memoization", hits.Load())
	}

	client.ClearMemo()
	if _, err := client.FetchClassDetails(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if hits.Load() != 2 {
		t.Errorf("server hits = %d after ClearMemo, want 2", hits.Load())
	}
}

func TestFetchLessonSummariesUnwrapsEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/students/u1/units/unit-9/lessonssummaries" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Write([]byte(`{"lessonsSummaries":[{"lessonNumber":1,"activitiesSummary":{"progress":50}}]}`))
	}))
	defer server.Close()

	client := testClient(t, server.URL, &stubTokens{tokens: []string{"tok"}})
	lessons, err := client.FetchLessonSummaries(context.Background(), "u1", "unit-9")
	if err != nil {
		t.Fatal(err)
	}
	if len(lessons) != 1 || lessons[0].LessonNumber.String() != "1" {
		t.Errorf("lessons = %+v", lessons)
	}
	if lessons[0].ActivitiesSummary == nil || lessons[0].ActivitiesSummary.Progress != 50 {
		t.Errorf("activities = %+v", lessons[0].ActivitiesSummary)
	}
}

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		name    string
		backoff Backoff
		attempt int
		want    time.Duration
	}{
		{"linear first", Backoff{Shape: Linear, Base: time.Second}, 0, time.Second},
		{"linear third", Backoff{Shape: Linear, Base: time.Second}, 2, 3 * time.Second},
		{"exponential first", Backoff{Shape: Exponential, Base: 2 * time.Second}, 0, 2 * time.Second},
		{"exponential third", Backoff{Shape: Exponential, Base: 2 * time.Second}, 2, 8 * time.Second},
		{"zero base defaults", Backoff{}, 0, time.Second},
		{"negative attempt clamps", Backoff{Shape: Linear, Base: time.Second}, -1, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.backoff.Delay(tt.attempt); got != tt.want {
				t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
			}
		})
	}
}

func TestBackoffWaitHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := Backoff{Shape: Linear, Base: time.Hour}
	if err := b.Wait(ctx, 0); !errors.Is(err, context.Canceled) {
		t.Errorf("Wait error = %v, want context.Canceled", err)
	}
}
