package job

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/GoCodeAlone/kiejob/internal/logger"
	"github.com/GoCodeAlone/kiejob/transport"
	"golang.org/x/text/cases"
)

const (
	minPollInterval = time.Second
	// progressEvery bounds the silence between progress lines while a task
	// sits in one state.
	progressEvery = 30 * time.Second
)

// PollOptions controls PollUntilTerminal.
type PollOptions struct {
	// Interval between recordInfo calls; values <= 0 mean one second.
	Interval time.Duration
	// Timeout is the requested deadline measured from Start.
	Timeout time.Duration
	// TimeoutFloor raises Timeout when it is smaller.
	TimeoutFloor time.Duration
	// Start is when the attempt began. Zero means now.
	Start time.Time
}

// EffectiveTimeout is max(Timeout, TimeoutFloor).
func (o PollOptions) EffectiveTimeout() time.Duration {
	if o.Timeout < o.TimeoutFloor {
		return o.TimeoutFloor
	}
	return o.Timeout
}

// Poller observes remote tasks through recordInfo.
type Poller struct {
	http      *transport.Client
	endpoints Endpoints
	clock     Clock
	log       *logger.Logger
}

// NewPoller creates a Poller. A nil clock selects RealClock.
func NewPoller(http *transport.Client, endpoints Endpoints, clock Clock, log *logger.Logger) *Poller {
	if clock == nil {
		clock = RealClock{}
	}
	return &Poller{http: http, endpoints: endpoints, clock: clock, log: log.OrNop()}
}

// Fetch returns the current record of taskID.
func (p *Poller) Fetch(ctx context.Context, token, taskID string) (*Record, error) {
	query := url.Values{"taskId": []string{taskID}}
	resp, err := p.http.Get(ctx, opRecordInfo, p.endpoints.RecordInfo, token, query, requestTimeout)
	if err != nil {
		return nil, err
	}
	if err := resp.Transient(); err != nil {
		return nil, err
	}

	var env envelope
	if err := resp.DecodeJSON(&env); err != nil {
		return nil, err
	}
	if !env.ok() {
		return nil, failure.Fatalf(opRecordInfo, "recordInfo endpoint returned error code %s: %s", env.code(), env.text())
	}
	if !env.hasData() {
		return nil, failure.Fatalf(opRecordInfo, "recordInfo endpoint returned no data field.")
	}

	var rec Record
	if err := json.Unmarshal(env.Data, &rec); err != nil {
		return nil, failure.Wrap(failure.Fatal, opRecordInfo, err, "recordInfo endpoint returned malformed data")
	}
	if rec.TaskID == "" {
		rec.TaskID = taskID
	}
	rec.Message = env.text()
	rec.Raw = resp.Text()
	return &rec, nil
}

// PollUntilTerminal polls taskID until it reaches success or fail, or until
// the effective timeout elapses. The deadline is checked before every call,
// so the worst-case duration is the timeout plus one interval plus one
// request.
func (p *Poller) PollUntilTerminal(ctx context.Context, token, taskID string, opts PollOptions) (*Record, error) {
	interval := opts.Interval
	if interval <= 0 {
		interval = minPollInterval
	}
	start := opts.Start
	if start.IsZero() {
		start = p.clock.Now()
	}
	timeout := opts.EffectiveTimeout()

	log := p.log.With("task_id", taskID)
	var lastState State
	lastLog := start

	for {
		now := p.clock.Now()
		elapsed := now.Sub(start)
		if elapsed > timeout {
			msg := fmt.Sprintf("Task %s timed out after %ss (last state=%s, elapsed=%.1fs). Try increasing timeout or retry.",
				taskID, formatSeconds(timeout), lastState, elapsed.Seconds())
			return nil, &failure.Error{Kind: failure.Timeout, Message: msg}
		}

		rec, err := p.Fetch(ctx, token, taskID)
		if err != nil {
			return nil, err
		}

		state := rec.State
		progress := state != lastState || now.Sub(lastLog) >= progressEvery
		if progress {
			log.Infow("task state", "state", state.String(), "elapsed", fmt.Sprintf("%.1fs", elapsed.Seconds()))
			lastLog = now
		}
		lastState = state

		switch state {
		case StateSuccess:
			log.Infow("task completed", "elapsed", fmt.Sprintf("%.1fs", elapsed.Seconds()))
			return rec, nil
		case StateFail:
			return rec, failError(taskID, rec)
		}

		if progress {
			log.Debugw("polling again", "interval", interval)
		}
		if err := sleep(ctx, p.clock, interval); err != nil {
			return nil, failure.Wrap(failure.Fatal, opRecordInfo, err, "polling task %s interrupted", taskID)
		}
	}
}

// failError builds the error for a task in the fail state, transient when
// ShouldRetry says so.
func failError(taskID string, rec *Record) error {
	parts := []string{fmt.Sprintf("Task %s failed", taskID)}
	if rec.FailCode.Set {
		parts = append(parts, "failCode="+rec.FailCode.Raw)
	}
	failMsg := rec.FailureMessage()
	if failMsg != "" {
		parts = append(parts, "failMsg="+failMsg)
	}
	if rec.Message != "" {
		parts = append(parts, "message="+rec.Message)
	}

	kind := failure.Fatal
	if ShouldRetry(rec.FailCode, failMsg, rec.Message) {
		kind = failure.Transient
	}
	return &failure.Error{Kind: kind, Message: strings.Join(parts, "; ")}
}

// ShouldRetry reports whether a failed task looks transient: a 5xx failCode,
// or failure text mentioning "internal error" or "try again later".
func ShouldRetry(code Code, failMsg, message string) bool {
	if n, ok := code.Int(); ok && n >= 500 && n <= 599 {
		return true
	}

	var texts []string
	for _, s := range []string{failMsg, message} {
		if s != "" {
			texts = append(texts, s)
		}
	}
	// Casers are stateful, so each call gets its own.
	combined := cases.Fold().String(strings.Join(texts, " "))
	return strings.Contains(combined, "internal error") || strings.Contains(combined, "try again later")
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
