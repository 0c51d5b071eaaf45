// Package coalesce collapses concurrent identical calls into one execution.
package coalesce

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Group coalesces calls by key. The zero value is ready to use. Keys are
// forgotten as soon as the shared call completes, so a later call always
// runs fresh.
type Group[T any] struct {
	g singleflight.Group
}

// Do runs fn once for every set of overlapping callers of key. fn runs with a
// context detached from the caller's cancellation so one impatient caller
// cannot fail the others; each caller still stops waiting when its own ctx is
// done. shared reports whether the result was handed to more than one caller.
func (g *Group[T]) Do(ctx context.Context, key string, fn func(ctx context.Context) (T, error)) (v T, shared bool, err error) {
	detached := context.WithoutCancel(ctx)

	ch := g.g.DoChan(key, func() (any, error) {
		return fn(detached)
	})

	select {
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero T
			return zero, res.Shared, res.Err
		}
		out, ok := res.Val.(T)
		if !ok {
			var zero T
			return zero, res.Shared, fmt.Errorf("coalesce: unexpected result type %T for key %s", res.Val, key)
		}
		return out, res.Shared, nil
	}
}

// Forget drops key so the next call does not join an in-flight execution.
func (g *Group[T]) Forget(key string) {
	g.g.Forget(key)
}
