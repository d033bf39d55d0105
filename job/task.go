// Package job drives the asynchronous KIE task lifecycle: submit a task,
// poll it to a terminal state, extract result locators and hand them to a
// materializer.
package job

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// State is the server-reported task state. Only success and fail are
// terminal; any other value (waiting, queuing, generating, ...) keeps the
// poller looping.
type State string

const (
	StateUnknown State = "unknown"
	StatePending State = "pending"
	StateSuccess State = "success"
	StateFail    State = "fail"
)

// Terminal reports whether polling must stop.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateFail
}

func (s State) String() string {
	if s == "" {
		return string(StateUnknown)
	}
	return string(s)
}

// Task is one remote job as seen by the client.
type Task struct {
	TaskID string
	Model  string
	// Input is passed through to createTask untouched.
	Input          map[string]any
	State          State
	FailCode       Code
	FailMessage    string
	ResultLocators []string
}

// Code is a loosely typed numeric code. The platform sends failCode as a
// number, a numeric string, an empty string or null.
type Code struct {
	Raw string
	Set bool
}

// UnmarshalJSON accepts numbers, strings and null.
func (c *Code) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = Code{}
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Code{Raw: s, Set: true}
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*c = Code{Raw: n.String(), Set: true}
	return nil
}

// Int returns the code as an integer when it parses as one.
func (c Code) Int() (int, bool) {
	if !c.Set {
		return 0, false
	}
	s := strings.TrimSpace(c.Raw)
	if n, err := strconv.Atoi(s); err == nil {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int(f)) {
		return int(f), true
	}
	return 0, false
}

func (c Code) String() string { return c.Raw }

// NestedJSON holds a JSON document that the platform usually ships as a
// string (resultJson). An inline object is accepted too.
type NestedJSON string

// UnmarshalJSON unquotes string payloads and keeps raw objects verbatim.
func (n *NestedJSON) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*n = ""
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*n = NestedJSON(s)
	default:
		*n = NestedJSON(data)
	}
	return nil
}

// Record is the data object returned by recordInfo.
type Record struct {
	TaskID          string       `json:"taskId"`
	Model           string       `json:"model"`
	State           State        `json:"state"`
	FailCode        Code         `json:"failCode"`
	FailMsg         string       `json:"failMsg"`
	Msg             string       `json:"msg"`
	ResultJSON      NestedJSON   `json:"resultJson"`
	RemainedCredits *json.Number `json:"remainedCredits"`
	CostTime        *json.Number `json:"costTime"`
	CreateTime      *json.Number `json:"createTime"`
	CompleteTime    *json.Number `json:"completeTime"`

	// Message is the top-level message of the envelope that carried the
	// record; it takes part in retry classification.
	Message string `json:"-"`
	// Raw is the full response text, kept for traceability.
	Raw string `json:"-"`
}

// FailureMessage returns failMsg, falling back to msg.
func (r *Record) FailureMessage() string {
	if r.FailMsg != "" {
		return r.FailMsg
	}
	return r.Msg
}

// envelope is the common {code, message|msg, data} response wrapper.
type envelope struct {
	Code    *json.Number    `json:"code"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

// ok reports whether code is numerically 200, so 200.0 also counts.
func (e *envelope) ok() bool {
	if e.Code == nil {
		return false
	}
	f, err := e.Code.Float64()
	return err == nil && f == 200
}

func (e *envelope) code() string {
	if e.Code == nil {
		return "<none>"
	}
	return e.Code.String()
}

// text returns message, falling back to msg.
func (e *envelope) text() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Msg
}

func (e *envelope) hasData() bool {
	d := bytes.TrimSpace(e.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}
