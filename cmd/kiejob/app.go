package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/GoCodeAlone/kiejob/catalog"
	"github.com/GoCodeAlone/kiejob/chat"
	"github.com/GoCodeAlone/kiejob/config"
	"github.com/GoCodeAlone/kiejob/credential"
	"github.com/GoCodeAlone/kiejob/history"
	"github.com/GoCodeAlone/kiejob/internal/logger"
	"github.com/GoCodeAlone/kiejob/internal/version"
	"github.com/GoCodeAlone/kiejob/job"
	"github.com/GoCodeAlone/kiejob/media"
	"github.com/GoCodeAlone/kiejob/transport"
	"github.com/GoCodeAlone/kiejob/upload"
)

// app holds the components shared by every command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	out     io.Writer
	creds   credential.Provider
	catalog *catalog.Catalog

	http      *transport.Client
	submitter *job.Submitter
	poller    *job.Poller
	credits   *job.CreditsProbe
	runner    *job.Runner
	uploader  *upload.Client
	chat      *chat.Client
	download  *media.Downloader

	// store is nil when history is disabled.
	store *history.SQLiteStore
}

func newApp(configPath string, quiet bool, out io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if quiet {
		cfg.Logger.Verbose = false
	}
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		out:     out,
		catalog: catalog.Default(cfg.Models),
		creds: credential.Chain{
			credential.Env{Name: cfg.Credential.EnvVar},
			credential.File{Path: cfg.Credential.File},
		},
	}

	a.http = transport.New(transport.Config{
		HTTPClient:        &http.Client{},
		Timeout:           cfg.API.RequestTimeout,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		Burst:             cfg.API.Burst,
		UserAgent:         version.UserAgent(),
		Logger:            log,
	})

	endpoints := job.NewEndpoints(cfg.API.BaseURL)
	clock := job.RealClock{}
	a.submitter = job.NewSubmitter(a.http, endpoints, log)
	a.poller = job.NewPoller(a.http, endpoints, clock, log)
	a.credits = job.NewCreditsProbe(a.http, endpoints, log)
	a.download = media.NewDownloader(a.http, cfg.API.UploadTimeout, log)
	a.chat = chat.New(a.http, cfg.API.BaseURL, log)
	a.uploader = upload.New(a.http, upload.Config{
		URL:     cfg.API.UploadURL,
		Path:    cfg.API.UploadPath,
		Timeout: cfg.API.UploadTimeout,
		Logger:  log,
	})

	rc := job.RunnerConfig{
		Submitter:   a.submitter,
		Poller:      a.poller,
		Credits:     a.credits,
		Credentials: a.creds,
		Catalog:     a.catalog,
		Clock:       clock,
		Logger:      log,
	}
	if cfg.History.Enabled {
		store, err := history.NewSQLiteStore(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("open history: %w", err)
		}
		a.store = store
		rc.Recorder = store
	}
	a.runner = job.NewRunner(rc)
	return a, nil
}

// Close releases the history database and flushes the logger.
func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warnw("close history", "error", err)
		}
	}
	_ = a.log.Sync()
}

func (a *app) requireStore() (*history.SQLiteStore, error) {
	if a.store == nil {
		return nil, fmt.Errorf("history is disabled (set history.enabled)")
	}
	return a.store, nil
}
