package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/GoCodeAlone/kiejob/transport"
)

func newTestClient(url string) *Client {
	return New(transport.New(transport.Config{}), url, nil)
}

func TestCompleteBuildsPayload(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gemini-3-pro/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("missing bearer token")
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("request body: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"hello","reasoning_content":"thinking"}}]}`)
	}))
	defer srv.Close()

	resp, err := newTestClient(srv.URL).Complete(context.Background(), "key", Request{
		Prompt:          "  describe this  ",
		ImageURLs:       []string{"https://files.example/a.png"},
		IncludeThoughts: true,
		GoogleSearch:    true,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Content != "hello" || resp.Reasoning != "thinking" {
		t.Errorf("response = %+v", resp)
	}

	if got["stream"] != false || got["include_thoughts"] != true {
		t.Errorf("flags = %v %v", got["stream"], got["include_thoughts"])
	}
	if got["reasoning_effort"] != "high" {
		t.Errorf("reasoning_effort = %v, want high", got["reasoning_effort"])
	}
	msgs := got["messages"].([]any)
	first := msgs[0].(map[string]any)
	if first["role"] != "user" {
		t.Errorf("role = %v", first["role"])
	}
	content := first["content"].([]any)
	if len(content) != 2 {
		t.Fatalf("content parts = %d, want 2", len(content))
	}
	if text := content[0].(map[string]any)["text"]; text != "describe this" {
		t.Errorf("text = %v", text)
	}
	tools := got["tools"].([]any)
	if name := tools[0].(map[string]any)["function"].(map[string]any)["name"]; name != "googleSearch" {
		t.Errorf("tool = %v", name)
	}
}

func TestFlashOmitsReasoningEffort(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), "k", Request{Model: "gemini-2.5-flash", Prompt: "hi"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if _, ok := got["reasoning_effort"]; ok {
		t.Error("reasoning_effort must be omitted for gemini-2.5-flash")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr string
	}{
		{"bad model", Request{Model: "gpt-4o", Prompt: "x"}, "Invalid model"},
		{"bad effort", Request{Prompt: "x", ReasoningEffort: "medium"}, "Invalid reasoning_effort"},
		{"bad role", Request{Prompt: "x", Role: "robot"}, "Invalid role"},
		{"empty prompt", Request{Prompt: "   "}, "prompt or media input is required"},
		{"format with search", Request{Prompt: "x", GoogleSearch: true, ResponseFormat: json.RawMessage(`{"type":"json_object"}`)}, "cannot be used with tools"},
		{"format on flash", Request{Model: "gemini-3-flash", Prompt: "x", ResponseFormat: json.RawMessage(`{}`)}, "not supported for gemini-3-flash"},
		{"messages not array", Request{Messages: json.RawMessage(`{"role":"user"}`)}, "must be a JSON array"},
		{"messages with media", Request{Messages: json.RawMessage(`[]`), ImageURLs: []string{"u"}}, "cannot be used with messages"},
	}
	c := newTestClient("http://127.0.0.1:1")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Complete(context.Background(), "k", tt.req)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want %q", err, tt.wantErr)
			}
			if failure.KindOf(err) != failure.Fatal {
				t.Errorf("validation errors must be fatal")
			}
		})
	}
}

func TestCompleteErrors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		transient bool
	}{
		{"throttled", http.StatusTooManyRequests, "busy", true},
		{"unavailable", http.StatusServiceUnavailable, "down", true},
		{"not json", http.StatusOK, "oops", false},
		{"no choices", http.StatusOK, `{"code":401,"msg":"bad key"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			_, err := newTestClient(srv.URL).Complete(context.Background(), "k", Request{Prompt: "x"})
			if err == nil {
				t.Fatal("expected error")
			}
			if failure.IsTransient(err) != tt.transient {
				t.Errorf("transient = %v, want %v: %v", failure.IsTransient(err), tt.transient, err)
			}
		})
	}
}

func TestStreamConcatenatesDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		if body["stream"] != true {
			t.Errorf("stream flag = %v", body["stream"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keep-alive\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"reasoning_content":"let me "}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"reasoning_content":"think"}}]}`+"\n\n")
		fmt.Fprint(w, `data:{"choices":[{"delta":{"content":"Hel"}}]}`+"\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"lo"}}],"id":"last"}`+"\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
		fmt.Fprint(w, `data: {"choices":[{"delta":{"content":"ignored"}}]}`+"\n\n")
	}))
	defer srv.Close()

	ch, err := newTestClient(srv.URL).Stream(context.Background(), "k", Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	resp, err := Collect(ch)
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if resp.Content != "Hello" {
		t.Errorf("Content = %q, want Hello", resp.Content)
	}
	if resp.Reasoning != "let me think" {
		t.Errorf("Reasoning = %q", resp.Reasoning)
	}
	if !strings.Contains(resp.Raw, `"id":"last"`) {
		t.Errorf("Raw = %q, want last chunk", resp.Raw)
	}
}

func TestStreamInvalidChunk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {not json\n\n")
	}))
	defer srv.Close()

	ch, err := newTestClient(srv.URL).Stream(context.Background(), "k", Request{Prompt: "hi"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if _, err := Collect(ch); err == nil || !strings.Contains(err.Error(), "valid JSON") {
		t.Fatalf("expected invalid chunk error, got %v", err)
	}
}

func TestStreamTransientStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Stream(context.Background(), "k", Request{Prompt: "hi"})
	if !failure.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
}

type trackedBody struct {
	io.Reader
	closed chan struct{}
}

func (b *trackedBody) Close() error {
	close(b.closed)
	return nil
}

func TestStreamStopsWhenCallerGoesAway(t *testing.T) {
	var sse strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&sse, "data: {\"choices\":[{\"delta\":{\"content\":\"%d\"}}]}\n", i)
	}
	body := &trackedBody{Reader: strings.NewReader(sse.String()), closed: make(chan struct{})}

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan StreamEvent, 1)
	go readSSE(ctx, body, ch)
	cancel()

	select {
	case <-body.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("body not closed after cancel with an undrained channel")
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event channel not closed")
		}
	}
}
