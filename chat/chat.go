// Package chat calls the Gemini chat completions endpoints hosted by KIE.
package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/GoCodeAlone/kiejob/internal/logger"
	"github.com/GoCodeAlone/kiejob/transport"
	"github.com/tidwall/gjson"
)

const (
	defaultBaseURL = "https://api.kie.ai"
	// DefaultModel is used when Request.Model is empty.
	DefaultModel = "gemini-3-pro"

	op             = "chat completions"
	requestTimeout = 60 * time.Second
	streamTimeout  = 10 * time.Minute
	maxLine        = 1 << 20
)

var (
	// Models lists the chat models the endpoint serves.
	Models = []string{"gemini-3-pro", "gemini-3-flash", "gemini-2.5-pro", "gemini-2.5-flash"}
	// ReasoningEfforts are the accepted reasoning_effort values.
	ReasoningEfforts = []string{"low", "high"}
	// Roles are the accepted message roles.
	Roles = []string{"developer", "system", "user", "assistant", "tool"}
)

// Part is one piece of multimodal message content.
type Part struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references uploaded media. Video and audio travel the same way.
type ImageURL struct {
	URL string `json:"url"`
}

// Message is a single turn in a conversation.
type Message struct {
	Role    string `json:"role"`
	Content []Part `json:"content"`
}

// Request is one completion call.
type Request struct {
	Model  string
	Prompt string
	// Role of the prompt-built message; empty means "user".
	Role      string
	ImageURLs []string
	// MediaURLs are uploaded video or audio files.
	MediaURLs []string
	// Messages replaces the prompt-built conversation verbatim. It must be a
	// JSON array and cannot be combined with media.
	Messages        json.RawMessage
	IncludeThoughts bool
	// ReasoningEffort is "low" or "high"; empty means "high". It is not
	// sent to gemini-2.5-flash.
	ReasoningEffort string
	GoogleSearch    bool
	ResponseFormat  json.RawMessage
}

// Response is a completed chat response.
type Response struct {
	Content   string
	Reasoning string
	// Raw is the last JSON payload received.
	Raw string
}

// StreamEvent is emitted during streaming responses.
type StreamEvent struct {
	Type  string // "text", "reasoning", "done", "error"
	Text  string
	Error string
	// Raw is the final chunk, set on "done".
	Raw string
}

// Client talks to the chat completions endpoints.
type Client struct {
	http *transport.Client
	base string
	log  *logger.Logger
}

// New creates a Client. An empty base selects the production host.
func New(http *transport.Client, base string, log *logger.Logger) *Client {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = defaultBaseURL
	}
	return &Client{http: http, base: base, log: log.OrNop()}
}

// Endpoint returns the completions URL for model.
func (c *Client) Endpoint(model string) string {
	return c.base + "/" + model + "/v1/chat/completions"
}

type tool struct {
	Type     string       `json:"type"`
	Function toolFunction `json:"function"`
}

type toolFunction struct {
	Name string `json:"name"`
}

type payload struct {
	Messages        any             `json:"messages"`
	Stream          bool            `json:"stream"`
	IncludeThoughts bool            `json:"include_thoughts"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
	Tools           []tool          `json:"tools,omitempty"`
	ResponseFormat  json.RawMessage `json:"response_format,omitempty"`
}

// normalize fills defaults and validates req.
func normalize(req *Request) error {
	if req.Model == "" {
		req.Model = DefaultModel
	}
	if req.Role == "" {
		req.Role = "user"
	}
	if req.ReasoningEffort == "" {
		req.ReasoningEffort = "high"
	}
	if !slices.Contains(Models, req.Model) {
		return failure.Fatalf(op, "Invalid model. Use the pinned enum options.")
	}
	if !slices.Contains(ReasoningEfforts, req.ReasoningEffort) {
		return failure.Fatalf(op, "Invalid reasoning_effort. Use the pinned enum options.")
	}
	if len(req.ResponseFormat) > 0 {
		if !json.Valid(req.ResponseFormat) {
			return failure.Fatalf(op, "response_format is not valid JSON.")
		}
		if req.GoogleSearch {
			return failure.Fatalf(op, "response_format cannot be used with tools.")
		}
		if req.Model == "gemini-3-flash" {
			return failure.Fatalf(op, "response_format is not supported for gemini-3-flash.")
		}
	}

	if len(req.Messages) > 0 {
		if len(req.ImageURLs) > 0 || len(req.MediaURLs) > 0 {
			return failure.Fatalf(op, "media inputs cannot be used with messages.")
		}
		if !gjson.ValidBytes(req.Messages) || !gjson.ParseBytes(req.Messages).IsArray() {
			return failure.Fatalf(op, "messages must be a JSON array of message objects.")
		}
		return nil
	}
	if !slices.Contains(Roles, req.Role) {
		return failure.Fatalf(op, "Invalid role. Use the pinned enum options.")
	}
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" && len(req.ImageURLs) == 0 && len(req.MediaURLs) == 0 {
		return failure.Fatalf(op, "prompt or media input is required when messages are not provided.")
	}
	return nil
}

func (c *Client) buildPayload(req Request, stream bool) payload {
	p := payload{Stream: stream, IncludeThoughts: req.IncludeThoughts, ResponseFormat: req.ResponseFormat}
	if len(req.Messages) > 0 {
		p.Messages = req.Messages
	} else {
		var content []Part
		if req.Prompt != "" {
			content = append(content, Part{Type: "text", Text: req.Prompt})
		}
		for _, u := range append(slices.Clone(req.ImageURLs), req.MediaURLs...) {
			content = append(content, Part{Type: "image_url", ImageURL: &ImageURL{URL: u}})
		}
		p.Messages = []Message{{Role: req.Role, Content: content}}
	}

	if req.Model != "gemini-2.5-flash" {
		p.ReasoningEffort = req.ReasoningEffort
	} else {
		c.log.Infow("reasoning_effort is not supported for gemini-2.5-flash; skipping")
	}
	if req.GoogleSearch {
		p.Tools = []tool{{Type: "function", Function: toolFunction{Name: "googleSearch"}}}
	}
	return p
}

// Complete sends a non-streaming request.
func (c *Client) Complete(ctx context.Context, token string, req Request) (*Response, error) {
	if err := normalize(&req); err != nil {
		return nil, err
	}
	c.log.Infow("gemini model selected", "model", req.Model)

	resp, err := c.http.PostJSON(ctx, op, c.Endpoint(req.Model), token, c.buildPayload(req, false), requestTimeout)
	if err != nil {
		return nil, err
	}
	if err := resp.Transient(); err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(resp.Body) {
		return nil, failure.Fatalf(op, "chat completions endpoint did not return valid JSON.")
	}

	res := gjson.ParseBytes(resp.Body)
	choices := res.Get("choices")
	if !choices.IsArray() || len(choices.Array()) == 0 {
		if msg := res.Get("msg").String(); msg != "" {
			return nil, failure.Fatalf(op, "chat completions response did not include choices: %s", msg)
		}
		return nil, failure.Fatalf(op, "chat completions response did not include choices.")
	}
	first := choices.Array()[0]
	return &Response{
		Content:   first.Get("message.content").String(),
		Reasoning: first.Get("message.reasoning_content").String(),
		Raw:       resp.Text(),
	}, nil
}

// Stream sends a streaming request. Events are delivered on the returned
// channel, which is closed after "done" or "error".
func (c *Client) Stream(ctx context.Context, token string, req Request) (<-chan StreamEvent, error) {
	if err := normalize(&req); err != nil {
		return nil, err
	}
	c.log.Infow("gemini model selected", "model", req.Model)

	body, err := json.Marshal(c.buildPayload(req, true))
	if err != nil {
		return nil, failure.Wrap(failure.Fatal, op, err, "marshal request")
	}
	s, err := c.http.Open(ctx, transport.Request{
		Op:          op,
		Method:      http.MethodPost,
		URL:         c.Endpoint(req.Model),
		Token:       token,
		Body:        body,
		ContentType: "application/json",
		Timeout:     streamTimeout,
	})
	if err != nil {
		return nil, err
	}
	if s.StatusCode != http.StatusOK {
		resp, err := s.ReadAll()
		if err != nil {
			return nil, err
		}
		if err := resp.Transient(); err != nil {
			return nil, err
		}
		return nil, failure.Fatalf(op, "chat completions returned HTTP %d: %s", resp.StatusCode, resp.Text())
	}

	ch := make(chan StreamEvent, 16)
	go readSSE(ctx, s, ch)
	return ch, nil
}

// readSSE parses "data:" lines until [DONE], emitting content and reasoning
// deltas of every choice. It stops once ctx is done, even when nobody is
// draining ch.
func readSSE(ctx context.Context, body io.ReadCloser, ch chan<- StreamEvent) {
	defer func() { _ = body.Close() }()
	defer close(ch)

	emit := func(ev StreamEvent) bool {
		select {
		case ch <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)

	var last string
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			emit(StreamEvent{Type: "done", Raw: last})
			return
		}
		if !gjson.Valid(data) {
			emit(StreamEvent{Type: "error", Error: "Streaming chunk did not contain valid JSON."})
			return
		}
		last = data

		open := true
		gjson.Get(data, "choices").ForEach(func(_, choice gjson.Result) bool {
			if v := choice.Get("delta.content"); v.Type == gjson.String {
				open = emit(StreamEvent{Type: "text", Text: v.Str})
			}
			if v := choice.Get("delta.reasoning_content"); open && v.Type == gjson.String {
				open = emit(StreamEvent{Type: "reasoning", Text: v.Str})
			}
			return open
		})
		if !open {
			return
		}
	}

	if err := scanner.Err(); err != nil {
		emit(StreamEvent{Type: "error", Error: err.Error()})
		return
	}
	// The server closed the stream without [DONE].
	emit(StreamEvent{Type: "done", Raw: last})
}

// Collect drains a stream into a Response.
func Collect(ch <-chan StreamEvent) (*Response, error) {
	var content, reasoning strings.Builder
	resp := &Response{}
	for ev := range ch {
		switch ev.Type {
		case "text":
			content.WriteString(ev.Text)
		case "reasoning":
			reasoning.WriteString(ev.Text)
		case "error":
			return nil, failure.Fatalf(op, "%s", ev.Error)
		case "done":
			resp.Raw = ev.Raw
		}
	}
	resp.Content = content.String()
	resp.Reasoning = reasoning.String()
	return resp, nil
}
