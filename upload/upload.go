// Package upload pushes local media to the KIE file store so it can be
// referenced by URL in task inputs.
package upload

import (
	"context"
	"strings"
	"time"

	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/GoCodeAlone/kiejob/internal/logger"
	"github.com/GoCodeAlone/kiejob/transport"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultURL is the production stream-upload endpoint.
	DefaultURL = "https://kieai.redpandaai.co/api/file-stream-upload"
	// DefaultPath is the remote folder for user uploads.
	DefaultPath = "images/user-uploads"

	op             = "upload"
	defaultTimeout = 180 * time.Second
	defaultWorkers = 4
)

// File is one local payload.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Config configures a Client.
type Config struct {
	URL     string
	Path    string
	Timeout time.Duration
	// Workers caps concurrent uploads in UploadAll.
	Workers int
	Logger  *logger.Logger
}

// Client uploads files.
type Client struct {
	http    *transport.Client
	url     string
	path    string
	timeout time.Duration
	workers int
	log     *logger.Logger
}

// New creates a Client.
func New(http *transport.Client, cfg Config) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	return &Client{
		http:    http,
		url:     cfg.URL,
		path:    cfg.Path,
		timeout: cfg.Timeout,
		workers: cfg.Workers,
		log:     cfg.Logger.OrNop(),
	}
}

// Upload sends f and returns its download URL. Images go up without a
// fileName field; every other type sends one.
func (c *Client) Upload(ctx context.Context, token string, f File) (string, error) {
	if f.Name == "" {
		return "", failure.Fatalf(op, "file name is required for uploads")
	}
	fields := map[string]string{"uploadPath": c.path}
	if !strings.HasPrefix(f.ContentType, "image/") {
		fields["fileName"] = f.Name
	}

	part := transport.FilePart{Field: "file", Name: f.Name, ContentType: f.ContentType, Data: f.Data}
	resp, err := c.http.PostMultipart(ctx, op, c.url, token, fields, part, c.timeout)
	if err != nil {
		return "", err
	}
	if err := resp.Transient(); err != nil {
		return "", err
	}
	if !gjson.ValidBytes(resp.Body) {
		return "", failure.Fatalf(op, "Upload endpoint did not return valid JSON.")
	}

	res := gjson.ParseBytes(resp.Body)
	code := res.Get("code")
	if !res.Get("success").Bool() || code.Raw != "200" {
		return "", failure.Fatalf(op, "Upload failed (code=%s): %s", code.Raw, res.Get("msg").String())
	}
	url := res.Get("data.downloadUrl").String()
	if url == "" {
		return "", failure.Fatalf(op, "Upload response missing downloadUrl.")
	}
	c.log.Infow("uploaded file", "name", f.Name, "bytes", len(f.Data), "url", truncate(url, 80))
	return url, nil
}

// UploadAll uploads files concurrently and returns their URLs in input
// order. The first failure cancels the remaining uploads.
func (c *Client) UploadAll(ctx context.Context, token string, files []File) ([]string, error) {
	urls := make([]string, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.workers)
	for i, f := range files {
		g.Go(func() error {
			url, err := c.Upload(ctx, token, f)
			if err != nil {
				return err
			}
			urls[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
