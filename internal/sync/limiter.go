// AlKharj Tracker - WSE Schedule and Student Progress Dashboard
// Copyright 2026 Alrimii
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/alrimii/AlKharj

// Package sync implements the tracker's refresh machinery: the bounded
// task runner, class mode classification, the gap-fill merge, the
// cross-device refresh coordinator, the five-stage fetch pipeline, and
// the background manager that drives them.
package sync

import (
	"context"
	"sync"
)

// RunLimited executes tasks with at most limit running concurrently.
// Results and errors are returned in task order; one task failing never
// affects the others. A limit below one runs tasks one at a time.
//
// When ctx is cancelled, tasks not yet started fail with ctx.Err()
// without running; tasks already started are left to observe ctx
// themselves.
func RunLimited[T any](ctx context.Context, limit int, tasks []func(ctx context.Context) (T, error)) ([]T, []error) {
	results := make([]T, len(tasks))
	errs := make([]error, len(tasks))
	if len(tasks) == 0 {
		return results, errs
	}
	if limit < 1 {
		limit = 1
	}

	sem := make(chan struct{}, limit)
	var wg sync.WaitGroup
	for i, task := range tasks {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(tasks); j++ {
				errs[j] = err
			}
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(i int, task func(ctx context.Context) (T, error)) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i], errs[i] = task(ctx)
		}(i, task)
	}
	wg.Wait()
	return results, errs
}
