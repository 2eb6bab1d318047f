// Package taskstore is the keyed handoff store for delivery tasks. When a
// payload is too long to embed in a destination URL, the orchestrator parks
// it here under a task id, puts only the id in the URL, and the injector
// resolves and deletes the entry on the far side. Entries are single-use
// and short-lived.
package taskstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tabsend/cli/internal/settings"
)

// TaskParam is the query parameter carrying a task id on destination URLs.
const TaskParam = "ts_task"

// Expiry is how long an unclaimed task survives. Stale entries are purged
// on open.
const Expiry = 10 * time.Minute

// ErrNotFound is returned when a task id has no (unexpired) entry.
var ErrNotFound = errors.New("taskstore: task not found")

// Task is one parked delivery payload.
type Task struct {
	ID            string
	DestinationID string
	FinalText     string
	CreatedAt     time.Time
}

// Store is a sqlite-backed task table.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the task store at dir/tasks.db and
// purges expired entries.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create task store dir: %w", err)
	}

	dsn := filepath.Join(dir, "tasks.db") + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS tasks (
		id          TEXT PRIMARY KEY,
		destination TEXT NOT NULL,
		final_text  TEXT NOT NULL,
		created_at  INTEGER NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tasks table: %w", err)
	}

	s := &Store{db: db}
	if err := s.purgeExpired(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put parks a payload and returns its task id.
func (s *Store) Put(destinationID, finalText string) (string, error) {
	id := settings.NewID()
	_, err := s.db.Exec(
		`INSERT INTO tasks (id, destination, final_text, created_at) VALUES (?, ?, ?, ?)`,
		id, destinationID, finalText, time.Now().Unix(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to park task: %w", err)
	}
	return id, nil
}

// Take resolves a task id and deletes the entry, enforcing single use.
func (s *Store) Take(id string) (*Task, error) {
	row := s.db.QueryRow(`SELECT id, destination, final_text, created_at FROM tasks WHERE id = ?`, id)

	var t Task
	var created int64
	if err := row.Scan(&t.ID, &t.DestinationID, &t.FinalText, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read task: %w", err)
	}
	t.CreatedAt = time.Unix(created, 0)

	if time.Since(t.CreatedAt) > Expiry {
		_, _ = s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id)
		return nil, ErrNotFound
	}

	if _, err := s.db.Exec(`DELETE FROM tasks WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("failed to consume task: %w", err)
	}
	return &t, nil
}

func (s *Store) purgeExpired() error {
	cutoff := time.Now().Add(-Expiry).Unix()
	if _, err := s.db.Exec(`DELETE FROM tasks WHERE created_at < ?`, cutoff); err != nil {
		return fmt.Errorf("failed to purge expired tasks: %w", err)
	}
	return nil
}
