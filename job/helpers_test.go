package job

import (
	"sync"
	"testing"
	"time"

	"github.com/GoCodeAlone/kiejob/credential"
	"github.com/GoCodeAlone/kiejob/internal/kiefake"
	"github.com/GoCodeAlone/kiejob/internal/logger"
	"github.com/GoCodeAlone/kiejob/transport"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeClock advances instantly whenever something waits on it.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	c.sleeps = append(c.sleeps, d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type harness struct {
	srv       *kiefake.Server
	clock     *fakeClock
	logs      *observer.ObservedLogs
	log       *logger.Logger
	endpoints Endpoints
	http      *transport.Client
	submitter *Submitter
	poller    *Poller
	credits   *CreditsProbe
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	log := logger.FromZap(zap.New(core))

	srv := kiefake.New(t)
	clock := newFakeClock()
	endpoints := NewEndpoints(srv.URL)
	http := transport.New(transport.Config{Logger: log})
	return &harness{
		srv:       srv,
		clock:     clock,
		logs:      logs,
		log:       log,
		endpoints: endpoints,
		http:      http,
		submitter: NewSubmitter(http, endpoints, log),
		poller:    NewPoller(http, endpoints, clock, log),
		credits:   NewCreditsProbe(http, endpoints, log),
	}
}

func (h *harness) runner(cfg RunnerConfig) *Runner {
	cfg.Submitter = h.submitter
	cfg.Poller = h.poller
	cfg.Clock = h.clock
	cfg.Logger = h.log
	if cfg.Credentials == nil {
		cfg.Credentials = credential.Static("test-key")
	}
	return NewRunner(cfg)
}
