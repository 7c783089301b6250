// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

package wse

import (
	"context"
	"time"
)

// Shape selects how retry delays grow with the attempt number.
type Shape int

const (
	// Linear grows the delay as base * (attempt + 1): base, 2*base, 3*base.
	Linear Shape = iota
	// Exponential doubles the delay each attempt: base, 2*base, 4*base.
	Exponential
)

// Backoff computes retry delays. The zero value is a linear backoff
// with a one second base.
type Backoff struct {
	Shape Shape
	Base  time.Duration
}

// defaultBase applies when Base is unset.
const defaultBase = time.Second

// Delay returns the wait before retry number attempt (zero-based).
func (b Backoff) Delay(attempt int) time.Duration {
	base := b.Base
	if base <= 0 {
		base = defaultBase
	}
	if attempt < 0 {
		attempt = 0
	}
	switch b.Shape {
	case Exponential:
		// Cap the shift so the delay cannot overflow.
		if attempt > 16 {
			attempt = 16
		}
		return base << uint(attempt)
	default:
		return base * time.Duration(attempt+1)
	}
}

// Wait sleeps for the attempt's delay, returning early with the context
// error if ctx is cancelled first.
func (b Backoff) Wait(ctx context.Context, attempt int) error {
	timer := time.NewTimer(b.Delay(attempt))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
