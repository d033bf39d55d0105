// Package retry resubmits a whole job attempt when it fails transiently.
package retry

import (
	"context"
	"time"

	"github.com/GoCodeAlone/kiejob/config"
	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/cenkalti/backoff/v4"
)

// Policy bounds resubmission of a failed attempt.
type Policy struct {
	Enabled    bool
	MaxRetries int
	Backoff    time.Duration
}

// FromConfig converts the retry config section into a Policy.
func FromConfig(cfg config.RetryConfig) Policy {
	return Policy{Enabled: cfg.Enabled, MaxRetries: cfg.MaxRetries, Backoff: cfg.Backoff}
}

// Attempts is the total number of tries, never less than one.
func (p Policy) Attempts() int {
	if !p.Enabled || p.MaxRetries < 0 {
		return 1
	}
	return p.MaxRetries + 1
}

// Delay is the pause between attempts. Negative values count as zero.
func (p Policy) Delay() time.Duration {
	if p.Backoff < 0 {
		return 0
	}
	return p.Backoff
}

// Notify is called before sleeping ahead of the next attempt.
type Notify func(attempt int, err error, wait time.Duration)

type options struct {
	timer  backoff.Timer
	notify Notify
}

// Option customizes Do.
type Option func(*options)

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(t backoff.Timer) Option {
	return func(o *options) { o.timer = t }
}

// WithNotify registers a hook invoked for each transient failure that will
// be retried.
func WithNotify(fn Notify) Option {
	return func(o *options) { o.notify = fn }
}

// Do runs op until it succeeds, fails fatally or the policy is exhausted.
// Only failure.Transient errors are retried. The error of the final attempt
// is returned unchanged.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context, attempt int) (T, error), opts ...Option) (T, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		res, err := op(ctx, attempt)
		if err != nil && !failure.IsTransient(err) {
			return res, backoff.Permanent(err)
		}
		return res, err
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay())
	b = backoff.WithMaxRetries(b, uint64(p.Attempts()-1))
	b = backoff.WithContext(b, ctx)

	var notify backoff.Notify
	if o.notify != nil {
		notify = func(err error, wait time.Duration) { o.notify(attempt, err, wait) }
	}
	return backoff.RetryNotifyWithTimerAndData(operation, b, notify, o.timer)
}
