package job

import (
	"context"
	"time"
)

// Clock abstracts wall time so polling can be tested without sleeping.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock uses the time package.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// sleep waits for d on clock, returning early when ctx is done.
func sleep(ctx context.Context, clock Clock, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-clock.After(d):
		return nil
	}
}

// clockTimer adapts a Clock to backoff.Timer so retry waits use the same
// time source as polling.
type clockTimer struct {
	clock Clock
	c     <-chan time.Time
}

func (t *clockTimer) Start(d time.Duration) { t.c = t.clock.After(d) }

func (t *clockTimer) Stop() {}

func (t *clockTimer) C() <-chan time.Time { return t.c }
