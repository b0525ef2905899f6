// Listingsync - Business Listing Synchronization Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/listingsync

package sync

import (
	"context"
	"sync"
	"sync/atomic"
)

// DefaultMaxConcurrentLocations is the worker count when none is configured.
const DefaultMaxConcurrentLocations = 5

// runPool processes items 0..n-1 with at most concurrency workers. Workers
// claim the next index from a shared cursor until the items run out, ctx is
// canceled, or process returns an error. The first error cancels the
// remaining work and is returned.
func runPool(ctx context.Context, n, concurrency int, process func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = DefaultMaxConcurrentLocations
	}
	if concurrency > n {
		concurrency = n
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		cursor   atomic.Int64
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	wg.Add(concurrency)
	for w := 0; w < concurrency; w++ {
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				i := int(cursor.Add(1) - 1)
				if i >= n {
					return
				}
				if err := process(ctx, i); err != nil {
					errOnce.Do(func() {
						firstErr = err
						cancel()
					})
					return
				}
			}
		}()
	}
	wg.Wait()
	return firstErr
}
