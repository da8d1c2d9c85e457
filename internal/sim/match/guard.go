package match

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mineopoly.ai/internal/sim/strategy"
)

type guarded[T any] struct {
	v   T
	err error
}

// guard runs fn with a deadline and converts errors, panics, and overruns into *strategy.Fault.
// A strategy that ignores its context keeps its goroutine, but the turn loop moves on.
func guard[T any](ctx context.Context, budget time.Duration, name, op string, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	done := make(chan guarded[T], 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- guarded[T]{err: &strategy.Fault{Strategy: name, Op: op, Panic: r}}
			}
		}()
		v, err := fn(cctx)
		done <- guarded[T]{v: v, err: err}
	}()

	var zero T
	select {
	case r := <-done:
		if r.err == nil {
			return r.v, nil
		}
		var f *strategy.Fault
		if errors.As(r.err, &f) {
			return zero, f
		}
		err := r.err
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %v", strategy.ErrTimeout, budget, r.err)
		}
		return zero, &strategy.Fault{Strategy: name, Op: op, Err: err}
	case <-cctx.Done():
		err := cctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", strategy.ErrTimeout, budget)
		}
		return zero, &strategy.Fault{Strategy: name, Op: op, Err: err}
	}
}
