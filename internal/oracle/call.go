package oracle

import (
	"context"
	"fmt"
	"time"

	"harvestlink/internal/metrics"
)

// DefaultTimeout bounds one scoring call when the caller sets none.
const DefaultTimeout = 3 * time.Second

// Call runs fn with a deadline and gives up when the deadline passes even if
// fn ignores its context. A panic in fn is returned as an error. call labels
// the latency histogram.
func Call[T any](ctx context.Context, timeout time.Duration, call string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := time.Now()
	defer func() { metrics.ObserveOracle(call, time.Since(start)) }()

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("oracle %s panicked: %v", call, r)}
			}
		}()
		v, err := fn(ctx)
		done <- result{v: v, err: err}
	}()
	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("oracle %s: %w", call, ctx.Err())
	}
}
