// Package journal provides an append-only SQLite record of dispatched operations.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"agentcore/pkg/logx"
)

// Call statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// timeFormat is fixed-width so started_at sorts lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrClosed is returned when the journal is used after Close.
var ErrClosed = errors.New("journal is closed")

// Entry is one recorded call.
type Entry struct {
	ID        string        `json:"id"`
	Operation string        `json:"operation"`
	Plane     string        `json:"plane"`
	Service   string        `json:"service"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Status    string        `json:"status"`
	ErrorType string        `json:"error_type,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// Journal stores call entries in a SQLite database.
type Journal struct {
	db     *sql.DB
	path   string
	logger *logx.Logger
}

// Open opens (creating if needed) the journal database at path.
// Use ":memory:" for a private in-memory journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		path,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	// SQLite only supports one writer; a single connection also keeps ":memory:" databases intact.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping journal: %w", err)
	}

	if err := initializeSchemaWithMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	j := &Journal{db: db, path: path, logger: logx.NewLogger("journal")}
	j.logger.Debug("Journal opened: %s", path)
	return j, nil
}

// Path returns the database path the journal was opened with.
func (j *Journal) Path() string {
	return j.path
}

// Record appends an entry. A missing ID is filled with a new UUID and a zero
// StartedAt with the current time.
func (j *Journal) Record(ctx context.Context, e Entry) error {
	if j.db == nil {
		return ErrClosed
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = time.Now()
	}
	if e.Status == "" {
		e.Status = StatusSuccess
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO calls (id, operation, plane, service, started_at, duration_ms, status, error_type, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Operation, e.Plane, e.Service, e.StartedAt.UTC().Format(timeFormat),
		e.Duration.Milliseconds(), e.Status, e.ErrorType, e.Error)
	if err != nil {
		return fmt.Errorf("failed to record call %s: %w", e.Operation, err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. A non-positive limit returns all entries.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if j.db == nil {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, operation, plane, service, started_at, duration_ms, status, error_type, error
		FROM calls
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			startedAt  string
			durationMS int64
		)
		if err := rows.Scan(&e.ID, &e.Operation, &e.Plane, &e.Service, &startedAt, &durationMS,
			&e.Status, &e.ErrorType, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.StartedAt, err = time.Parse(timeFormat, startedAt)
		if err != nil {
			return nil, fmt.Errorf("invalid started_at for entry %s: %w", e.ID, err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate journal: %w", err)
	}
	return entries, nil
}

// Close closes the database connection. Calling Close twice is a no-op.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	err := j.db.Close()
	j.db = nil
	if err != nil {
		return fmt.Errorf("failed to close journal: %w", err)
	}
	return nil
}
