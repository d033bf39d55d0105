package job

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/GoCodeAlone/kiejob/failure"
	"github.com/GoCodeAlone/kiejob/internal/logger"
	"github.com/GoCodeAlone/kiejob/transport"
)

// DefaultBaseURL is the production KIE API host.
const DefaultBaseURL = "https://api.kie.ai"

const (
	opCreateTask = "createTask"
	opRecordInfo = "recordInfo"
	opGenerate   = "generate"
	opCredits    = "Remaining credits"

	requestTimeout  = 30 * time.Second
	generateTimeout = 60 * time.Second
)

// Endpoints are the absolute URLs of the job API.
type Endpoints struct {
	CreateTask string
	RecordInfo string
	Credit     string
	Generate   string
}

// NewEndpoints derives every endpoint from base. An empty base selects
// DefaultBaseURL.
func NewEndpoints(base string) Endpoints {
	base = strings.TrimRight(base, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return Endpoints{
		CreateTask: base + "/api/v1/jobs/createTask",
		RecordInfo: base + "/api/v1/jobs/recordInfo",
		Credit:     base + "/api/v1/chat/credit",
		Generate:   base + "/api/v1/generate",
	}
}

// Target names a task-creating call.
type Target struct {
	Op      string
	URL     string
	Timeout time.Duration
	// PreferMsg reports msg ahead of message when the call returns an
	// error code. The Suno endpoint fills msg.
	PreferMsg bool
}

// Submission is the accepted result of a createTask call.
type Submission struct {
	TaskID string
	// Raw is the response text, kept for logging.
	Raw string
}

// Submitter creates remote tasks.
type Submitter struct {
	http      *transport.Client
	endpoints Endpoints
	log       *logger.Logger
}

// NewSubmitter creates a Submitter.
func NewSubmitter(http *transport.Client, endpoints Endpoints, log *logger.Logger) *Submitter {
	return &Submitter{http: http, endpoints: endpoints, log: log.OrNop()}
}

// Submit posts {model, input} to createTask. The input map is forwarded
// untouched.
func (s *Submitter) Submit(ctx context.Context, token, model string, input map[string]any) (*Submission, error) {
	if strings.TrimSpace(model) == "" {
		return nil, failure.Fatalf(opCreateTask, "model is required")
	}
	if input == nil {
		input = map[string]any{}
	}
	body := map[string]any{"model": model, "input": input}
	sub, err := s.SubmitTo(ctx, token, Target{Op: opCreateTask, URL: s.endpoints.CreateTask}, body)
	if err != nil {
		return nil, err
	}
	s.log.Infow("task created", "task_id", sub.TaskID, "model", model)
	return sub, nil
}

// SubmitTo posts body to an arbitrary task-creating endpoint and applies the
// createTask response contract.
func (s *Submitter) SubmitTo(ctx context.Context, token string, target Target, body any) (*Submission, error) {
	timeout := target.Timeout
	if timeout <= 0 {
		timeout = requestTimeout
	}
	resp, err := s.http.PostJSON(ctx, target.Op, target.URL, token, body, timeout)
	if err != nil {
		return nil, err
	}
	if err := resp.Transient(); err != nil {
		return nil, err
	}

	var env envelope
	if err := resp.DecodeJSON(&env); err != nil {
		return nil, err
	}
	if !env.ok() {
		msg := env.text()
		if target.PreferMsg && env.Msg != "" {
			msg = env.Msg
		}
		return nil, failure.Fatalf(target.Op, "%s endpoint returned error code %s: %s", target.Op, env.code(), msg)
	}

	var data struct {
		TaskID string `json:"taskId"`
	}
	if env.hasData() {
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return nil, failure.Wrap(failure.Fatal, target.Op, err, "%s endpoint returned malformed data", target.Op)
		}
	}
	if data.TaskID == "" {
		return nil, failure.Fatalf(target.Op, "%s endpoint did not return a taskId.", target.Op)
	}
	return &Submission{TaskID: data.TaskID, Raw: resp.Text()}, nil
}
