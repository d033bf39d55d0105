package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GoCodeAlone/kiejob/failure"
)

// instantTimer fires immediately and records every requested wait.
type instantTimer struct {
	c     chan time.Time
	waits []time.Duration
}

func newInstantTimer() *instantTimer {
	return &instantTimer{c: make(chan time.Time, 1)}
}

func (t *instantTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	t.c <- time.Time{}
}

func (t *instantTimer) Stop() {}

func (t *instantTimer) C() <-chan time.Time { return t.c }

func TestPolicyAttempts(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		want   int
	}{
		{"disabled", Policy{Enabled: false, MaxRetries: 5}, 1},
		{"zero retries", Policy{Enabled: true}, 1},
		{"two retries", Policy{Enabled: true, MaxRetries: 2}, 3},
		{"negative", Policy{Enabled: true, MaxRetries: -3}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.policy.Attempts(); got != tt.want {
				t.Errorf("Attempts() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPolicyDelayClampsNegative(t *testing.T) {
	if d := (Policy{Backoff: -time.Second}).Delay(); d != 0 {
		t.Errorf("expected 0 delay, got %v", d)
	}
}

func TestDoRetriesTransientUntilExhausted(t *testing.T) {
	timer := newInstantTimer()
	p := Policy{Enabled: true, MaxRetries: 2, Backoff: 3 * time.Second}
	calls := 0
	last := failure.Transientf("recordInfo", 503, "attempt %d", 3)

	_, err := Do(context.Background(), p, func(_ context.Context, attempt int) (string, error) {
		calls++
		if attempt == 3 {
			return "", last
		}
		return "", failure.Transientf("recordInfo", 503, "attempt %d", attempt)
	}, WithTimer(timer))

	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	if err != last {
		t.Fatalf("expected last error unchanged, got %v", err)
	}
	if len(timer.waits) != 2 {
		t.Fatalf("expected 2 waits, got %d", len(timer.waits))
	}
	for _, w := range timer.waits {
		if w != 3*time.Second {
			t.Errorf("wait = %v, want 3s", w)
		}
	}
}

func TestDoStopsOnFatal(t *testing.T) {
	timer := newInstantTimer()
	p := Policy{Enabled: true, MaxRetries: 5}
	fatal := failure.Fatalf("createTask", "bad input")
	calls := 0

	_, err := Do(context.Background(), p, func(context.Context, int) (int, error) {
		calls++
		return 0, fatal
	}, WithTimer(timer))

	if calls != 1 {
		t.Fatalf("expected a single attempt, got %d", calls)
	}
	if !errors.Is(err, fatal) {
		t.Fatalf("expected fatal error, got %v", err)
	}
	if len(timer.waits) != 0 {
		t.Errorf("fatal error must not sleep, got %v", timer.waits)
	}
}

func TestDoReturnsFirstSuccess(t *testing.T) {
	timer := newInstantTimer()
	var notified []int
	p := Policy{Enabled: true, MaxRetries: 3}

	got, err := Do(context.Background(), p, func(_ context.Context, attempt int) (string, error) {
		if attempt < 2 {
			return "", failure.Transientf("createTask", 429, "throttled")
		}
		return "task-1", nil
	}, WithTimer(timer), WithNotify(func(attempt int, _ error, _ time.Duration) {
		notified = append(notified, attempt)
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "task-1" {
		t.Errorf("got %q, want task-1", got)
	}
	if len(notified) != 1 || notified[0] != 1 {
		t.Errorf("notify calls = %v, want [1]", notified)
	}
}

func TestDoDisabledRunsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{Enabled: false, MaxRetries: 4}, func(context.Context, int) (int, error) {
		calls++
		return 0, failure.Transientf("createTask", 500, "boom")
	}, WithTimer(newInstantTimer()))
	if calls != 1 {
		t.Fatalf("expected 1 attempt, got %d", calls)
	}
	if !failure.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestDoHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Do(ctx, Policy{Enabled: true, MaxRetries: 3}, func(context.Context, int) (int, error) {
		calls++
		cancel()
		return 0, failure.Transientf("createTask", 500, "boom")
	})
	if calls != 1 {
		t.Fatalf("expected 1 attempt after cancel, got %d", calls)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
