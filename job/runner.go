package job

import (
	"context"
	"time"

	"github.com/GoCodeAlone/kiejob/catalog"
	"github.com/GoCodeAlone/kiejob/credential"
	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/GoCodeAlone/kiejob/history"
	"github.com/GoCodeAlone/kiejob/internal/logger"
	"github.com/GoCodeAlone/kiejob/media"
	"github.com/GoCodeAlone/kiejob/retry"
	"github.com/google/uuid"
)

// DefaultTimeout is the per-attempt deadline when neither the request nor
// the catalog supplies one.
const DefaultTimeout = 300 * time.Second

// Recorder receives one history entry per attempt. Implemented by
// history.SQLiteStore.
type Recorder interface {
	Create(e *history.Entry) (string, error)
	Update(e *history.Entry) error
}

// Materializer turns result locators into artifacts.
type Materializer interface {
	Materialize(ctx context.Context, locators []string) ([]media.Artifact, error)
}

// RunnerConfig wires a Runner. Credits, Catalog and Recorder are optional.
type RunnerConfig struct {
	Submitter   *Submitter
	Poller      *Poller
	Credits     *CreditsProbe
	Credentials credential.Provider
	Catalog     *catalog.Catalog
	Recorder    Recorder
	Clock       Clock
	Logger      *logger.Logger
}

// Runner executes jobs end to end: submit, poll, extract and optionally
// materialize, retrying whole attempts on transient failures.
type Runner struct {
	submitter *Submitter
	poller    *Poller
	credits   *CreditsProbe
	creds     credential.Provider
	catalog   *catalog.Catalog
	recorder  Recorder
	clock     Clock
	log       *logger.Logger
}

// NewRunner creates a Runner from cfg.
func NewRunner(cfg RunnerConfig) *Runner {
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}
	return &Runner{
		submitter: cfg.Submitter,
		poller:    cfg.Poller,
		credits:   cfg.Credits,
		creds:     cfg.Credentials,
		catalog:   cfg.Catalog,
		recorder:  cfg.Recorder,
		clock:     clock,
		log:       cfg.Logger.OrNop(),
	}
}

// JobRequest describes one logical job.
type JobRequest struct {
	Model string
	// Input is forwarded to createTask untouched.
	Input        map[string]any
	PollInterval time.Duration
	// Timeout is the requested per-attempt deadline. Zero selects the
	// model's default, or DefaultTimeout for models the catalog does not
	// know. The catalog floor still applies.
	Timeout time.Duration
	Retry   retry.Policy
	// Materialize, when set, runs inside the retried attempt.
	Materialize Materializer
}

// Result is the outcome of a successful job.
type Result struct {
	RunID     string
	TaskID    string
	Attempts  int
	Record    *Record
	Locators  []string
	Artifacts []media.Artifact
}

// Run executes req. The returned error is the final attempt's error,
// classified by failure.Kind.
func (r *Runner) Run(ctx context.Context, req JobRequest) (*Result, error) {
	if r.catalog != nil {
		if err := r.catalog.Validate(req.Model, req.Input); err != nil {
			return nil, err
		}
	}

	runID := uuid.NewString()
	log := r.log.With("run_id", runID, "model", req.Model)

	opts := PollOptions{Interval: req.PollInterval, Timeout: req.Timeout}
	if m, ok := r.lookup(req.Model); ok {
		opts.TimeoutFloor = m.TimeoutFloor
		if opts.Timeout <= 0 {
			opts.Timeout = m.DefaultTimeout
		}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	attempts := req.Retry.Attempts()
	notify := func(attempt int, err error, wait time.Duration) {
		log.Warnw("transient failure, resubmitting",
			"attempt", attempt,
			"attempts", attempts,
			"wait", wait,
			"error", err,
		)
	}
	return retry.Do(ctx, req.Retry, func(ctx context.Context, attempt int) (*Result, error) {
		return r.attempt(ctx, runID, attempt, req, opts, log.With("attempt", attempt))
	}, retry.WithTimer(&clockTimer{clock: r.clock}), retry.WithNotify(notify))
}

func (r *Runner) lookup(model string) (catalog.Model, bool) {
	if r.catalog == nil {
		return catalog.Model{}, false
	}
	return r.catalog.Lookup(model)
}

// attempt is one fresh submission followed by polling to a terminal state.
func (r *Runner) attempt(ctx context.Context, runID string, attempt int, req JobRequest, opts PollOptions, log *logger.Logger) (*Result, error) {
	opts.Start = r.clock.Now()

	token, err := r.creds.Credential(ctx)
	if err != nil {
		return nil, err
	}

	entry := &history.Entry{
		RunID:   runID,
		Attempt: attempt,
		Model:   req.Model,
		Status:  history.StatusSubmitted,
		Input:   req.Input,
	}
	r.create(entry, log)

	sub, err := r.submitter.Submit(ctx, token, req.Model, req.Input)
	if err != nil {
		r.finish(entry, nil, nil, err, log)
		return nil, err
	}
	entry.TaskID = sub.TaskID
	r.update(entry, log)

	rec, err := r.poller.PollUntilTerminal(ctx, token, sub.TaskID, opts)
	if err != nil {
		r.finish(entry, rec, nil, err, log)
		return nil, err
	}

	locators, err := ExtractResultLocators(rec)
	if err != nil {
		r.finish(entry, rec, nil, err, log)
		return nil, err
	}
	log.Infow("result urls", "task_id", sub.TaskID, "urls", locators)

	res := &Result{
		RunID:    runID,
		TaskID:   sub.TaskID,
		Attempts: attempt,
		Record:   rec,
		Locators: locators,
	}
	if req.Materialize != nil {
		artifacts, err := req.Materialize.Materialize(ctx, locators)
		if err != nil {
			r.finish(entry, rec, locators, err, log)
			return nil, err
		}
		res.Artifacts = artifacts
	}

	if r.credits != nil {
		r.credits.LogRemaining(ctx, token, rec)
	}
	r.finish(entry, rec, locators, nil, log)
	return res, nil
}

func (r *Runner) create(e *history.Entry, log *logger.Logger) {
	if r.recorder == nil {
		return
	}
	if _, err := r.recorder.Create(e); err != nil {
		log.Warnw("history create failed", "error", err)
	}
}

func (r *Runner) update(e *history.Entry, log *logger.Logger) {
	if r.recorder == nil || e.ID == "" {
		return
	}
	if err := r.recorder.Update(e); err != nil {
		log.Warnw("history update failed", "error", err)
	}
}

// finish stamps the terminal outcome of an attempt on its entry.
func (r *Runner) finish(e *history.Entry, rec *Record, locators []string, err error, log *logger.Logger) {
	now := r.clock.Now().UTC()
	e.CompletedAt = &now
	if rec != nil {
		e.State = rec.State.String()
	}
	e.ResultURLs = locators
	if err != nil {
		e.Status = history.StatusFailed
		e.Error = err.Error()
		e.ErrorKind = failure.KindOf(err).String()
	} else {
		e.Status = history.StatusSucceeded
	}
	r.update(e, log)
}
