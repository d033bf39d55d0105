package main

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/GoCodeAlone/kiejob/catalog"
	"github.com/GoCodeAlone/kiejob/config"
	"github.com/GoCodeAlone/kiejob/job"
	"github.com/GoCodeAlone/kiejob/media"
	"github.com/GoCodeAlone/kiejob/retry"
	"gopkg.in/yaml.v3"
)

// manifest is a YAML job description for `kiejob run`.
//
//	model: kling-2.6/text-to-video
//	input:
//	  prompt: a fox in the snow
//	  duration: "5"
//	timeout: 20m
//	retry:
//	  max_retries: 1
//	output:
//	  download: true
//	  ext: mp4
type manifest struct {
	Model        string         `yaml:"model"`
	Input        map[string]any `yaml:"input"`
	PollInterval time.Duration  `yaml:"poll_interval"`
	Timeout      time.Duration  `yaml:"timeout"`
	Retry        *retryManifest `yaml:"retry"`
	Output       outputManifest `yaml:"output"`
}

type retryManifest struct {
	Enabled    *bool          `yaml:"enabled"`
	MaxRetries *int           `yaml:"max_retries"`
	Backoff    *time.Duration `yaml:"backoff"`
}

type outputManifest struct {
	Download bool   `yaml:"download"`
	Dir      string `yaml:"dir"`
	// Ext selects a file decoder; empty means the model kind decides.
	Ext string `yaml:"ext"`
	// Bonus also downloads every locator after the first.
	Bonus bool `yaml:"bonus"`
}

func loadManifest(path string) (*manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return parseManifest(data)
}

func parseManifest(data []byte) (*manifest, error) {
	var m manifest
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Model == "" {
		return nil, fmt.Errorf("manifest: model is required")
	}
	if m.Input == nil {
		m.Input = map[string]any{}
	}
	return &m, nil
}

// policy overlays the manifest's retry block on the configured default.
func (m *manifest) policy(def config.RetryConfig) retry.Policy {
	if r := m.Retry; r != nil {
		if r.Enabled != nil {
			def.Enabled = *r.Enabled
		}
		if r.MaxRetries != nil {
			def.MaxRetries = *r.MaxRetries
		}
		if r.Backoff != nil {
			def.Backoff = *r.Backoff
		}
	}
	return retry.FromConfig(def)
}

// jobRequest builds the runner request. Zero poll settings fall back to cfg.
func (m *manifest) jobRequest(cfg *config.Config, cat *catalog.Catalog, dl *media.Downloader) job.JobRequest {
	req := job.JobRequest{
		Model:        m.Model,
		Input:        m.Input,
		PollInterval: m.PollInterval,
		Timeout:      m.Timeout,
		Retry:        m.policy(cfg.Retry),
	}
	if req.PollInterval <= 0 {
		req.PollInterval = cfg.Poll.Interval
	}
	if req.Timeout <= 0 {
		if model, _ := cat.Lookup(m.Model); model.DefaultTimeout <= 0 {
			req.Timeout = cfg.Poll.Timeout
		}
	}
	if m.Output.Download {
		req.Materialize = m.materializer(cfg, cat, dl)
	}
	return req
}

func (m *manifest) materializer(cfg *config.Config, cat *catalog.Catalog, dl *media.Downloader) *media.Materializer {
	dir := m.Output.Dir
	if dir == "" {
		dir = cfg.Output.Dir
	}
	var dec media.Decoder = media.ImageDecoder{Dir: dir}
	ext := m.Output.Ext
	if ext == "" {
		if model, ok := cat.Lookup(m.Model); ok {
			switch model.Kind {
			case catalog.KindVideo:
				ext = "mp4"
			case catalog.KindMusic:
				ext = "mp3"
			}
		}
	}
	if ext != "" {
		dec = media.FileDecoder{Dir: dir, Ext: ext}
	}
	return &media.Materializer{Downloader: dl, Decoder: dec, Bonus: m.Output.Bonus}
}
