package failure

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"fatal", Fatalf("createTask", "bad model"), Fatal},
		{"transient", Transientf("createTask", 503, "unavailable"), Transient},
		{"timeout", &Error{Kind: Timeout, Op: "poll"}, Timeout},
		{"wrapped transient", fmt.Errorf("attempt 2: %w", Transientf("recordInfo", 429, "slow down")), Transient},
		{"foreign", errors.New("boom"), Fatal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(Fatal, "createTask", ErrTransport, "failed to call endpoint")
	if got := err.Error(); got != "createTask: failed to call endpoint: transport failure" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, ErrTransport) {
		t.Error("expected errors.Is(err, ErrTransport)")
	}

	led := Fatalf("createTask", "createTask endpoint did not return a taskId.")
	if got := led.Error(); got != "createTask endpoint did not return a taskId." {
		t.Errorf("Error() = %q", got)
	}

	plain := Fatalf("", "prompt is required")
	if plain.Error() != "prompt is required" {
		t.Errorf("Error() = %q", plain.Error())
	}
}

func TestStatusCode(t *testing.T) {
	if got := StatusCode(Transientf("upload", 502, "bad gateway")); got != 502 {
		t.Errorf("StatusCode = %d, want 502", got)
	}
	if got := StatusCode(errors.New("x")); got != 0 {
		t.Errorf("StatusCode = %d, want 0", got)
	}
}

func TestPredicates(t *testing.T) {
	if IsTransient(nil) || IsTimeout(nil) {
		t.Error("nil must not be transient or timeout")
	}
	if !IsTransient(Transientf("x", 500, "y")) {
		t.Error("expected transient")
	}
	if !IsTimeout(&Error{Kind: Timeout}) {
		t.Error("expected timeout")
	}
	if Wrap(Fatal, "x", nil, "y") != nil {
		t.Error("Wrap(nil) must be nil")
	}
}
