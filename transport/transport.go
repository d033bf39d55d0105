// Package transport executes HTTP calls against the KIE platform.
//
// It never retries. Connection-level problems surface as fatal errors
// wrapping failure.ErrTransport; HTTP responses are returned as-is and the
// caller decides, via Response.Transient, whether a status is retryable.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"time"

	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/GoCodeAlone/kiejob/internal/logger"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 30 * time.Second
	defaultMaxBytes = 512 << 20 // large enough for result videos
)

// Config holds transport settings.
type Config struct {
	HTTPClient *http.Client
	// Timeout bounds a single request when Request.Timeout is zero.
	Timeout time.Duration
	// RequestsPerSecond paces all calls through this client; zero disables.
	RequestsPerSecond float64
	Burst             int
	MaxBodyBytes      int64
	UserAgent         string
	Logger            *logger.Logger
}

// Client performs HTTP requests. It is safe for concurrent use.
type Client struct {
	http     *http.Client
	timeout  time.Duration
	maxBytes int64
	agent    string
	limiter  *rate.Limiter
	log      *logger.Logger
}

// New creates a Client from cfg.
func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBytes
	}
	c := &Client{
		http:     cfg.HTTPClient,
		timeout:  cfg.Timeout,
		maxBytes: cfg.MaxBodyBytes,
		agent:    cfg.UserAgent,
		log:      cfg.Logger.OrNop(),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return c
}

// Request describes one HTTP call.
type Request struct {
	// Op names the remote call in error messages, e.g. "createTask".
	Op          string
	Method      string
	URL         string
	Token       string
	Query       url.Values
	Body        []byte
	ContentType string
	Timeout     time.Duration
}

// Response is a fully read HTTP response.
type Response struct {
	Op         string
	StatusCode int
	Body       []byte
}

// Text returns the body as a string for diagnostics.
func (r *Response) Text() string { return string(r.Body) }

// Retryable reports whether the status is 429 or 5xx.
func (r *Response) Retryable() bool {
	return r.StatusCode == http.StatusTooManyRequests || r.StatusCode >= 500
}

// Transient returns a transient error for 429/5xx responses and nil
// otherwise. The body is kept as raw text; it may not be JSON.
func (r *Response) Transient() error {
	if !r.Retryable() {
		return nil
	}
	return failure.Transientf(r.Op, r.StatusCode, "%s returned HTTP %d: %s", r.Op, r.StatusCode, r.Text())
}

// DecodeJSON unmarshals the body into v, returning a fatal error when the
// body is not valid JSON.
func (r *Response) DecodeJSON(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return failure.Wrap(failure.Fatal, r.Op, err, "%s endpoint did not return valid JSON", r.Op)
	}
	return nil
}

// Do executes req and reads the whole body.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	s, err := c.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	resp, err := s.ReadAll()
	if err != nil {
		return nil, err
	}
	c.log.Debugw("http call",
		"op", req.Op,
		"method", s.method,
		"status", resp.StatusCode,
		"bytes", len(resp.Body),
		"elapsed", time.Since(start),
	)
	return resp, nil
}

// Stream is an open response whose body has not been read yet. The caller
// must Close it.
type Stream struct {
	Op         string
	StatusCode int

	method   string
	body     io.ReadCloser
	cancel   context.CancelFunc
	maxBytes int64
}

func (s *Stream) Read(p []byte) (int, error) { return s.body.Read(p) }

// Close releases the connection and the request context.
func (s *Stream) Close() error {
	err := s.body.Close()
	s.cancel()
	return err
}

// ReadAll drains and closes the stream, enforcing the client's size limit.
func (s *Stream) ReadAll() (*Response, error) {
	defer func() { _ = s.Close() }()
	data, err := io.ReadAll(io.LimitReader(s.body, s.maxBytes+1))
	if err != nil {
		return nil, &failure.Error{
			Kind:    failure.Fatal,
			Op:      s.Op,
			Message: fmt.Sprintf("read %s response: %v", s.Op, err),
			Err:     failure.ErrTransport,
		}
	}
	if int64(len(data)) > s.maxBytes {
		return nil, failure.Fatalf(s.Op, "%s response larger than %d bytes", s.Op, s.maxBytes)
	}
	return &Response{Op: s.Op, StatusCode: s.StatusCode, Body: data}, nil
}

// Open executes req and returns the unread response. The request timeout
// keeps running until the stream is closed.
func (c *Client) Open(ctx context.Context, req Request) (*Stream, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, failure.Wrap(failure.Fatal, req.Op, err, "rate limiter wait")
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)

	target := req.URL
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		cancel()
		return nil, failure.Wrap(failure.Fatal, req.Op, err, "create request")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	if c.agent != "" {
		httpReq.Header.Set("User-Agent", c.agent)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		cancel()
		return nil, &failure.Error{
			Kind:    failure.Fatal,
			Op:      req.Op,
			Message: fmt.Sprintf("failed to call %s endpoint: %v", req.Op, err),
			Err:     failure.ErrTransport,
		}
	}
	return &Stream{
		Op:         req.Op,
		StatusCode: resp.StatusCode,
		method:     method,
		body:       resp.Body,
		cancel:     cancel,
		maxBytes:   c.maxBytes,
	}, nil
}

// Get issues an authenticated GET with query parameters.
func (c *Client) Get(ctx context.Context, op, target, token string, query url.Values, timeout time.Duration) (*Response, error) {
	return c.Do(ctx, Request{
		Op:      op,
		Method:  http.MethodGet,
		URL:     target,
		Token:   token,
		Query:   query,
		Timeout: timeout,
	})
}

// PostJSON marshals body and POSTs it as application/json.
func (c *Client) PostJSON(ctx context.Context, op, target, token string, body any, timeout time.Duration) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, failure.Wrap(failure.Fatal, op, err, "marshal request")
	}
	return c.Do(ctx, Request{
		Op:          op,
		Method:      http.MethodPost,
		URL:         target,
		Token:       token,
		Body:        data,
		ContentType: "application/json",
		Timeout:     timeout,
	})
}

// FilePart is a single file in a multipart form.
type FilePart struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// PostMultipart POSTs fields plus one file as multipart/form-data.
func (c *Client) PostMultipart(ctx context.Context, op, target, token string, fields map[string]string, file FilePart, timeout time.Duration) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	field := file.Field
	if field == "" {
		field = "file"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.Name))
	if file.ContentType != "" {
		h.Set("Content-Type", file.ContentType)
	} else {
		h.Set("Content-Type", "application/octet-stream")
	}
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, failure.Wrap(failure.Fatal, op, err, "create multipart file part")
	}
	if _, err := part.Write(file.Data); err != nil {
		return nil, failure.Wrap(failure.Fatal, op, err, "write multipart file part")
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, failure.Wrap(failure.Fatal, op, err, "write multipart field %s", k)
		}
	}
	if err := w.Close(); err != nil {
		return nil, failure.Wrap(failure.Fatal, op, err, "close multipart writer")
	}

	return c.Do(ctx, Request{
		Op:          op,
		Method:      http.MethodPost,
		URL:         target,
		Token:       token,
		Body:        buf.Bytes(),
		ContentType: w.FormDataContentType(),
		Timeout:     timeout,
	})
}
