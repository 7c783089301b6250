// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package wse

import (
	"context"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/alrimii/AlKharj/internal/logging"
	"github.com/alrimii/AlKharj/internal/metrics"
	"github.com/alrimii/AlKharj/internal/models"
)

// CircuitBreakerClient wraps a PortalAPI with a circuit breaker so a
// degraded portal does not absorb the whole refresh budget in timeouts.
//
// The breaker uses real time for its interval and timeout calculations;
// tests should exercise the wrapped client directly.
type CircuitBreakerClient struct {
	client PortalAPI
	cb     *gobreaker.CircuitBreaker[any]
	name   string
}

// NewCircuitBreakerClient wraps client with a breaker that opens at a
// 60% failure rate over at least 10 requests, allows 3 requests in
// half-open state, and waits 2 minutes before probing an open circuit.
func NewCircuitBreakerClient(client PortalAPI) *CircuitBreakerClient {
	cbName := "wse-portal"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0)

	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().
					Uint32("failures", counts.TotalFailures).
					Float64("failure_rate", failureRatio*100).
					Msg("[CIRCUIT BREAKER] Opening circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			fromStr := stateToString(from)
			toStr := stateToString(to)
			logging.Info().Str("from", fromStr).Str("to", toStr).Msg("[CIRCUIT BREAKER] State transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
			metrics.CircuitBreakerTransitions.WithLabelValues(name, fromStr, toStr).Inc()
		},
	})

	return &CircuitBreakerClient{client: client, cb: cb, name: cbName}
}

// Ping checks portal connectivity through the breaker.
func (c *CircuitBreakerClient) Ping(ctx context.Context) error {
	_, err := c.cb.Execute(func() (any, error) {
		return nil, c.client.Ping(ctx)
	})
	if err != nil {
		return fmt.Errorf("circuit breaker ping: %w", err)
	}
	return nil
}

// FetchSchedule lists scheduled classes through the breaker.
func (c *CircuitBreakerClient) FetchSchedule(ctx context.Context, startDate string) ([]models.ScheduledClass, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.client.FetchSchedule(ctx, startDate)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.ScheduledClass), nil
}

// FetchClassDetails retrieves class details through the breaker.
func (c *CircuitBreakerClient) FetchClassDetails(ctx context.Context, classID string) (*models.ClassDetails, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.client.FetchClassDetails(ctx, classID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.ClassDetails), nil
}

// FetchLevelSummaries retrieves level summaries through the breaker.
func (c *CircuitBreakerClient) FetchLevelSummaries(ctx context.Context, userID string) (*models.LevelSummaries, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.client.FetchLevelSummaries(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return result.(*models.LevelSummaries), nil
}

// FetchLessonSummaries retrieves lesson summaries through the breaker.
func (c *CircuitBreakerClient) FetchLessonSummaries(ctx context.Context, userID, unitID string) ([]models.LessonSummary, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.client.FetchLessonSummaries(ctx, userID, unitID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]models.LessonSummary), nil
}

// State returns the breaker's current state.
func (c *CircuitBreakerClient) State() gobreaker.State {
	return c.cb.State()
}

func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
