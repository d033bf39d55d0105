package history

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id           TEXT PRIMARY KEY,
	run_id       TEXT NOT NULL,
	attempt      INTEGER NOT NULL DEFAULT 1,
	task_id      TEXT NOT NULL DEFAULT '',
	model        TEXT NOT NULL,
	status       TEXT NOT NULL,
	state        TEXT NOT NULL DEFAULT '',
	input        TEXT NOT NULL DEFAULT '{}',
	result_urls  TEXT NOT NULL DEFAULT '[]',
	error        TEXT NOT NULL DEFAULT '',
	error_kind   TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL,
	updated_at   DATETIME NOT NULL,
	completed_at DATETIME
);
CREATE INDEX IF NOT EXISTS entries_task_id ON entries(task_id);
CREATE INDEX IF NOT EXISTS entries_run_id ON entries(run_id);
`

const columns = `id, run_id, attempt, task_id, model, status, state, input, result_urls,
	error, error_kind, created_at, updated_at, completed_at`

// ErrNotFound is returned when no entry matches.
var ErrNotFound = errors.New("history entry not found")

// SQLiteStore persists entries in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and ensures
// the entries table exists. Missing parent directories are created. The
// caller is responsible for calling Close.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dbPath != ":memory:" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	db.SetMaxOpenConns(1) // prevent SQLITE_BUSY
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create persists a new entry and sets its ID, CreatedAt and UpdatedAt.
func (s *SQLiteStore) Create(e *Entry) (string, error) {
	e.ID = uuid.NewString()
	now := time.Now().UTC()
	e.CreatedAt = now
	e.UpdatedAt = now
	if e.Attempt <= 0 {
		e.Attempt = 1
	}

	input, _ := json.Marshal(e.Input)
	urls, _ := json.Marshal(e.ResultURLs)

	_, err := s.db.Exec(`
		INSERT INTO entries (`+columns+`)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.RunID, e.Attempt, e.TaskID, e.Model, string(e.Status), e.State,
		string(input), string(urls), e.Error, e.ErrorKind,
		e.CreatedAt, e.UpdatedAt, nullTime(e.CompletedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert entry: %w", err)
	}
	return e.ID, nil
}

// Get retrieves an entry by ID.
func (s *SQLiteStore) Get(id string) (*Entry, error) {
	row := s.db.QueryRow(`SELECT `+columns+` FROM entries WHERE id = ?`, id)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return e, err
}

// GetByTask retrieves the most recent entry for a remote task id.
func (s *SQLiteStore) GetByTask(taskID string) (*Entry, error) {
	row := s.db.QueryRow(`SELECT `+columns+` FROM entries WHERE task_id = ?
		ORDER BY created_at DESC LIMIT 1`, taskID)
	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("task %s: %w", taskID, ErrNotFound)
	}
	return e, err
}

// Update saves changes to an existing entry, updating UpdatedAt automatically.
func (s *SQLiteStore) Update(e *Entry) error {
	e.UpdatedAt = time.Now().UTC()
	input, _ := json.Marshal(e.Input)
	urls, _ := json.Marshal(e.ResultURLs)

	res, err := s.db.Exec(`
		UPDATE entries SET
			run_id=?, attempt=?, task_id=?, model=?, status=?, state=?,
			input=?, result_urls=?, error=?, error_kind=?,
			updated_at=?, completed_at=?
		WHERE id=?`,
		e.RunID, e.Attempt, e.TaskID, e.Model, string(e.Status), e.State,
		string(input), string(urls), e.Error, e.ErrorKind,
		e.UpdatedAt, nullTime(e.CompletedAt),
		e.ID,
	)
	if err != nil {
		return fmt.Errorf("update entry: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("entry %s: %w", e.ID, ErrNotFound)
	}
	return nil
}

// List returns entries matching the filter, newest first.
func (s *SQLiteStore) List(filter Filter) ([]*Entry, error) {
	q := strings.Builder{}
	q.WriteString("SELECT " + columns + " FROM entries WHERE 1=1")
	args := []any{}

	if filter.Status != nil {
		q.WriteString(" AND status=?")
		args = append(args, string(*filter.Status))
	}
	if filter.Model != "" {
		q.WriteString(" AND model=?")
		args = append(args, filter.Model)
	}
	if filter.RunID != "" {
		q.WriteString(" AND run_id=?")
		args = append(args, filter.RunID)
	}
	q.WriteString(" ORDER BY created_at DESC, attempt DESC")
	if filter.Limit > 0 {
		q.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
		if filter.Offset > 0 {
			q.WriteString(fmt.Sprintf(" OFFSET %d", filter.Offset))
		}
	}

	rows, err := s.db.Query(q.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes an entry by ID.
func (s *SQLiteStore) Delete(id string) error {
	res, err := s.db.Exec("DELETE FROM entries WHERE id=?", id)
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("entry %s: %w", id, ErrNotFound)
	}
	return nil
}

// scanner abstracts sql.Row and sql.Rows for scanEntry.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*Entry, error) {
	var e Entry
	var status, inputJSON, urlsJSON string
	var completedAt sql.NullTime

	err := s.Scan(
		&e.ID, &e.RunID, &e.Attempt, &e.TaskID, &e.Model, &status, &e.State,
		&inputJSON, &urlsJSON, &e.Error, &e.ErrorKind,
		&e.CreatedAt, &e.UpdatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = Status(status)
	_ = json.Unmarshal([]byte(inputJSON), &e.Input)
	_ = json.Unmarshal([]byte(urlsJSON), &e.ResultURLs)

	if completedAt.Valid {
		t := completedAt.Time
		e.CompletedAt = &t
	}
	return &e, nil
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
