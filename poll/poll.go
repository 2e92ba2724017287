// Package poll provides a deadline-bounded polling loop used by the renderer
// for both per-selector waits and page stabilization.
package poll

import (
	"context"
	"time"
)

// DefaultInterval is used when Until is given a non-positive interval.
const DefaultInterval = 50 * time.Millisecond

// Until calls fn every interval until it reports done, timeout elapses, or
// ctx is cancelled. The first call happens immediately and a non-positive
// interval falls back to DefaultInterval. The last value fn returned is
// handed back together with whether fn ever reported done.
func Until[T any](ctx context.Context, interval, timeout time.Duration, fn func(context.Context) (T, bool)) (T, bool) {
	if timeout <= 0 {
		return fn(ctx)
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last T
	for {
		v, done := fn(ctx)
		if done {
			return v, true
		}
		last = v

		select {
		case <-ctx.Done():
			return last, false
		case <-ticker.C:
		}
	}
}

// Sleep waits for d or until ctx is done, whichever comes first. It returns
// ctx.Err() when the wait was cut short.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
