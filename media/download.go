package media

import (
	"context"
	"time"

	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/GoCodeAlone/kiejob/internal/logger"
	"github.com/GoCodeAlone/kiejob/transport"
)

const (
	opDownload      = "download"
	downloadTimeout = 180 * time.Second
)

// Downloader fetches result locators. Result hosts are public, so no
// credential is sent.
type Downloader struct {
	http    *transport.Client
	timeout time.Duration
	log     *logger.Logger
}

// NewDownloader creates a Downloader. A zero timeout selects 180s.
func NewDownloader(http *transport.Client, timeout time.Duration, log *logger.Logger) *Downloader {
	if timeout <= 0 {
		timeout = downloadTimeout
	}
	return &Downloader{http: http, timeout: timeout, log: log.OrNop()}
}

// Fetch downloads url. 429 and 5xx are transient; any other non-200 status
// is fatal.
func (d *Downloader) Fetch(ctx context.Context, url string) ([]byte, error) {
	resp, err := d.http.Get(ctx, opDownload, url, "", nil, d.timeout)
	if err != nil {
		return nil, err
	}
	if err := resp.Transient(); err != nil {
		return nil, err
	}
	if resp.StatusCode != 200 {
		return nil, failure.Fatalf(opDownload, "Failed to download result (status code %d).", resp.StatusCode)
	}
	d.log.Debugw("downloaded result", "url", url, "bytes", len(resp.Body))
	return resp.Body, nil
}

// Materializer downloads and decodes result locators.
type Materializer struct {
	Downloader *Downloader
	Decoder    Decoder
	// BonusDecoder handles locators after the first. Nil means Decoder.
	BonusDecoder Decoder
	// Bonus also materializes every locator after the first.
	Bonus bool
}

// Materialize returns the artifact of the first locator followed, when
// Bonus is set, by one artifact per remaining locator in order.
func (m *Materializer) Materialize(ctx context.Context, locators []string) ([]Artifact, error) {
	if len(locators) == 0 {
		return nil, failure.Fatalf("", "no result locators to materialize")
	}
	n := 1
	if m.Bonus {
		n = len(locators)
	}
	out := make([]Artifact, 0, n)
	for i, url := range locators[:n] {
		dec := m.Decoder
		if i > 0 && m.BonusDecoder != nil {
			dec = m.BonusDecoder
		}
		data, err := m.Downloader.Fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		a, err := dec.Decode(data)
		if err != nil {
			return nil, err
		}
		a.URL = url
		a.Bonus = i > 0
		out = append(out, a)
	}
	return out, nil
}
