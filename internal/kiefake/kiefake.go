// Package kiefake is a scripted in-process KIE API for tests.
package kiefake

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Reply is one canned HTTP response.
type Reply struct {
	Status int
	Body   string
}

// JSON marshals v as a 200 reply.
func JSON(v any) Reply {
	data, _ := json.Marshal(v)
	return Reply{Status: http.StatusOK, Body: string(data)}
}

// HTTP returns a raw reply with status.
func HTTP(status int, body string) Reply {
	return Reply{Status: status, Body: body}
}

// Created is a successful createTask reply.
func Created(taskID string) Reply {
	return JSON(map[string]any{"code": 200, "msg": "success", "data": map[string]any{"taskId": taskID}})
}

// Rejected is a createTask reply with a non-200 code.
func Rejected(code int, message string) Reply {
	return JSON(map[string]any{"code": code, "message": message})
}

// State is a recordInfo reply for a non-terminal state.
func State(state string) Reply {
	return JSON(map[string]any{"code": 200, "msg": "success", "data": map[string]any{"state": state}})
}

// Succeeded is a recordInfo success reply with resultJson encoded as a
// string, the way the platform sends it.
func Succeeded(urls ...string) Reply {
	result, _ := json.Marshal(map[string]any{"resultUrls": urls})
	return JSON(map[string]any{
		"code": 200,
		"msg":  "success",
		"data": map[string]any{"state": "success", "resultJson": string(result)},
	})
}

// Failed is a recordInfo fail reply. failCode may be nil, a number or a
// string.
func Failed(failCode any, failMsg string) Reply {
	return JSON(map[string]any{
		"code": 200,
		"msg":  "success",
		"data": map[string]any{"state": "fail", "failCode": failCode, "failMsg": failMsg},
	})
}

// Submission is one createTask request received by the server.
type Submission struct {
	Model         string
	Input         map[string]any
	Authorization string
}

// Server is the fake API. Queued replies are served in order; the last one
// repeats.
type Server struct {
	*httptest.Server

	mu          sync.Mutex
	submits     []Reply
	records     map[string][]Reply
	credits     []Reply
	generate    []Reply
	submissions []Submission
	recordCalls map[string]int
	creditCalls int
	nextTask    int
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB) *Server {
	s := &Server{
		records:     map[string][]Reply{},
		recordCalls: map[string]int{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/jobs/createTask", s.handleCreate)
	mux.HandleFunc("GET /api/v1/jobs/recordInfo", s.handleRecord)
	mux.HandleFunc("GET /api/v1/chat/credit", s.handleCredit)
	mux.HandleFunc("POST /api/v1/generate", s.handleGenerate)
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// QueueSubmit scripts createTask replies. Without any, every submission
// gets a fresh task id task-1, task-2, ...
func (s *Server) QueueSubmit(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submits = append(s.submits, replies...)
}

// QueueRecord scripts recordInfo replies for taskID. Without any, the task
// reports "waiting" forever.
func (s *Server) QueueRecord(taskID string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[taskID] = append(s.records[taskID], replies...)
}

// QueueCredits scripts credit replies. The default balance is 100.
func (s *Server) QueueCredits(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credits = append(s.credits, replies...)
}

// QueueGenerate scripts Suno generate replies.
func (s *Server) QueueGenerate(replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generate = append(s.generate, replies...)
}

// Submissions returns the createTask requests seen so far.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Submission(nil), s.submissions...)
}

// RecordCalls is the number of recordInfo calls for taskID.
func (s *Server) RecordCalls(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recordCalls[taskID]
}

// CreditCalls is the number of credit endpoint calls.
func (s *Server) CreditCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creditCalls
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Model string         `json:"model"`
		Input map[string]any `json:"input"`
	}
	data, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(data, &body)

	s.mu.Lock()
	s.submissions = append(s.submissions, Submission{
		Model:         body.Model,
		Input:         body.Input,
		Authorization: r.Header.Get("Authorization"),
	})
	var reply Reply
	if len(s.submits) == 0 {
		s.nextTask++
		reply = Created(fmt.Sprintf("task-%d", s.nextTask))
	} else {
		reply = pop(&s.submits)
	}
	s.mu.Unlock()
	write(w, reply)
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("taskId")
	s.mu.Lock()
	s.recordCalls[id]++
	reply := State("waiting")
	if q := s.records[id]; len(q) > 0 {
		reply = pop(&q)
		s.records[id] = q
	}
	s.mu.Unlock()
	write(w, reply)
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.creditCalls++
	reply := JSON(map[string]any{"code": 200, "msg": "success", "data": 100})
	if len(s.credits) > 0 {
		reply = pop(&s.credits)
	}
	s.mu.Unlock()
	write(w, reply)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reply := Created("suno-1")
	if len(s.generate) > 0 {
		reply = pop(&s.generate)
	}
	s.mu.Unlock()
	write(w, reply)
}

// pop removes the head of q unless it is the last reply.
func pop(q *[]Reply) Reply {
	r := (*q)[0]
	if len(*q) > 1 {
		*q = (*q)[1:]
	}
	return r
}

func write(w http.ResponseWriter, r Reply) {
	if strings.HasPrefix(strings.TrimSpace(r.Body), "{") {
		w.Header().Set("Content-Type", "application/json")
	}
	status := r.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = io.WriteString(w, r.Body)
}
