package utils

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ParallelForEach calls fn for every item with at most workers calls in
// flight and returns each item's error at the item's index. Once ctx is
// done no further items start; their slots stay nil.
func ParallelForEach[T any](ctx context.Context, items []T, workers int, fn func(context.Context, T) error) []error {
	errs := make([]error, len(items))

	// item errors are collected, not propagated, so one failure never
	// cancels its siblings
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))

	for i, item := range items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			errs[i] = fn(gctx, item)
			return nil
		})
	}

	_ = g.Wait()
	return errs
}
