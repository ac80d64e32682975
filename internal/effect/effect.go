// Package effect provides the minimal asynchronous capability the executor
// needs from its host: produce a ready value, raise an error, chain a
// continuation, and run several independent tasks in parallel collecting
// their results in submission order.
//
// Rather than emulating an arbitrary monad, Task is specialized directly to
// goroutines plus errgroup, per the narrow four-method contract a systems
// language needs (of/fail/then/parallel) instead of a higher-kinded effect
// abstraction.
package effect

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Task represents a deferred computation that yields an A or an error.
// Each call to Run executes the underlying work anew and blocks the calling
// goroutine until that work returns; whether it stops early once ctx is
// done depends on the work itself.
type Task[A any] struct {
	run func(ctx context.Context) (A, error)
}

// Of returns a Task that resolves immediately to value.
func Of[A any](value A) Task[A] {
	return Task[A]{run: func(ctx context.Context) (A, error) { return value, nil }}
}

// Fail returns a Task that resolves immediately to err.
func Fail[A any](err error) Task[A] {
	return Task[A]{run: func(ctx context.Context) (A, error) {
		var zero A
		return zero, err
	}}
}

// FromFunc wraps an arbitrary function as a Task, the escape hatch data
// sources use to describe a backend call.
func FromFunc[A any](fn func(ctx context.Context) (A, error)) Task[A] {
	return Task[A]{run: fn}
}

// Run executes the task and returns its result.
func (t Task[A]) Run(ctx context.Context) (A, error) {
	return t.run(ctx)
}

// Then chains a continuation onto t: if t fails, the failure short-circuits
// and k is never invoked.
func Then[A, B any](t Task[A], k func(A) Task[B]) Task[B] {
	return Task[B]{run: func(ctx context.Context) (B, error) {
		a, err := t.Run(ctx)
		if err != nil {
			var zero B
			return zero, err
		}
		return k(a).Run(ctx)
	}}
}

// Parallel runs every task in tasks concurrently and collects their results
// in the same order as the input slice. If any task fails, Parallel returns
// the first error observed (by completion order, not submission order) and
// no partial results; callers MUST NOT act on a partial result slice.
func Parallel[A any](tasks []Task[A]) Task[[]A] {
	return Task[[]A]{run: func(ctx context.Context) ([]A, error) {
		results := make([]A, len(tasks))
		if len(tasks) == 0 {
			return results, nil
		}
		g, gctx := errgroup.WithContext(ctx)
		for i, task := range tasks {
			i, task := i, task
			g.Go(func() error {
				a, err := task.Run(gctx)
				if err != nil {
					return err
				}
				results[i] = a
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return results, nil
	}}
}
