// Package failure classifies errors raised while talking to the KIE platform.
//
// Every error that leaves the transport, submitter or poller carries a Kind.
// Callers branch on the kind instead of matching concrete types: only
// Transient errors are worth a fresh submission.
package failure

import (
	"errors"
	"fmt"
	"strings"
)

// Kind discriminates how an error should be handled by the caller.
type Kind int

const (
	// Fatal errors are never retried: bad input, malformed responses,
	// non-retryable task failures, decode failures.
	Fatal Kind = iota
	// Transient errors are capacity or availability problems (HTTP 429/5xx,
	// retry-eligible task failures). Blind resubmission may succeed.
	Transient
	// Timeout is the fatal case raised when a task outlives its deadline.
	Timeout
)

func (k Kind) String() string {
	switch k {
	case Fatal:
		return "fatal"
	case Transient:
		return "transient"
	case Timeout:
		return "timeout"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Sentinel causes. They are wrapped by *Error so errors.Is works through it.
var (
	ErrTransport  = errors.New("transport failure")
	ErrDecode     = errors.New("decode failure")
	ErrCredential = errors.New("credential unavailable")
)

// Error is a classified failure of one remote call or local step.
type Error struct {
	Kind Kind
	// Op names the call that failed, e.g. "createTask" or "recordInfo".
	Op string
	// StatusCode is the HTTP status when known, zero otherwise.
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	switch {
	case e.Err == nil:
	case msg == "":
		msg = e.Err.Error()
	default:
		msg = msg + ": " + e.Err.Error()
	}
	// Messages that already lead with the op are not prefixed twice.
	if e.Op == "" || strings.HasPrefix(msg, e.Op) {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Fatalf returns a Fatal error for op.
func Fatalf(op, format string, args ...any) *Error {
	return &Error{Kind: Fatal, Op: op, Message: fmt.Sprintf(format, args...)}
}

// Transientf returns a Transient error for op carrying the HTTP status.
func Transientf(op string, status int, format string, args ...any) *Error {
	return &Error{Kind: Transient, Op: op, StatusCode: status, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under op. A nil err yields nil.
func Wrap(kind Kind, op string, err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf reports the kind of err. Unclassified errors are Fatal.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Fatal
}

// IsTransient reports whether err should trigger a retry.
func IsTransient(err error) bool {
	return err != nil && KindOf(err) == Transient
}

// IsTimeout reports whether err is a task deadline failure.
func IsTimeout(err error) bool {
	return err != nil && KindOf(err) == Timeout
}

// StatusCode returns the HTTP status carried by err, or zero.
func StatusCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
