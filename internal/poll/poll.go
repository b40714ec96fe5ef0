// Package poll samples a condition at a fixed interval until it holds or a
// bounded window elapses.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DefaultInterval is the sampling interval used for hypervisor state checks.
const DefaultInterval = time.Second

// ErrTimeout is returned when the condition did not hold within the window.
var ErrTimeout = errors.New("timed out")

// Condition reports whether the awaited state has been reached. A non-nil
// error aborts polling immediately.
type Condition func(ctx context.Context) (bool, error)

// Poller samples conditions. The zero value uses DefaultInterval and real
// sleeps.
type Poller struct {
	Interval time.Duration

	// Sleep waits between samples. It defaults to a context-aware timer and
	// is replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Samples returns how many times a condition is checked for a timeout:
// once immediately and once after every full interval, so timeout+1 samples
// at 1 Hz.
func (p *Poller) Samples(timeout time.Duration) int {
	interval := p.interval()
	if timeout <= 0 {
		return 1
	}
	return int(timeout/interval) + 1
}

// Until samples cond until it returns true, returns an error, the context is
// cancelled, or Samples(timeout) checks have failed.
func (p *Poller) Until(ctx context.Context, timeout time.Duration, cond Condition) error {
	samples := p.Samples(timeout)
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	for i := 0; i < samples; i++ {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if i == samples-1 {
			break
		}
		if err := sleep(ctx, p.interval()); err != nil {
			return fmt.Errorf("polling cancelled: %w", err)
		}
	}

	return fmt.Errorf("%w after %v", ErrTimeout, timeout)
}

func (p *Poller) interval() time.Duration {
	if p.Interval <= 0 {
		return DefaultInterval
	}
	return p.Interval
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
