// Package history keeps a local ledger of submitted KIE tasks so runs can be
// inspected after the process exits.
package history

import "time"

// Status is the client-side outcome of one attempt.
type Status string

const (
	StatusSubmitted Status = "submitted"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Entry is one attempt of a job run.
type Entry struct {
	ID      string `json:"id"`
	RunID   string `json:"run_id"`
	Attempt int    `json:"attempt"`
	TaskID  string `json:"task_id,omitempty"`
	Model   string `json:"model"`
	Status  Status `json:"status"`
	// State is the last server-reported task state.
	State       string         `json:"state,omitempty"`
	Input       map[string]any `json:"input,omitempty"`
	ResultURLs  []string       `json:"result_urls,omitempty"`
	Error       string         `json:"error,omitempty"`
	ErrorKind   string         `json:"error_kind,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// Store persists and retrieves entries.
type Store interface {
	// Create persists a new entry and returns its assigned ID.
	Create(e *Entry) (string, error)

	// Get retrieves an entry by ID.
	Get(id string) (*Entry, error)

	// GetByTask retrieves the entry for a remote task id.
	GetByTask(taskID string) (*Entry, error)

	// Update saves changes to an existing entry.
	Update(e *Entry) error

	// List returns entries matching the given filter, newest first.
	List(filter Filter) ([]*Entry, error)

	// Delete removes an entry by ID.
	Delete(id string) error
}

// Filter controls which entries are returned by List.
type Filter struct {
	Status *Status `json:"status,omitempty"`
	Model  string  `json:"model,omitempty"`
	RunID  string  `json:"run_id,omitempty"`
	Limit  int     `json:"limit,omitempty"`
	Offset int     `json:"offset,omitempty"`
}
