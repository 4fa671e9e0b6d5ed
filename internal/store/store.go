// Package store keeps local client state in SQLite: the client identity and
// the last page read per book.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

const clientIDKey = "client_id"

var errNoDB = errors.New("store: missing database connection")

// Store is the local state database.
type Store struct {
	db *sql.DB
}

// Position is the last page read in a book.
type Position struct {
	BookID    string
	Page      int
	UpdatedAt time.Time
}

// Open opens or creates the database at path. ":memory:" opens a private
// in-memory database.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout=5000"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL", "PRAGMA synchronous=NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: %s: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.EnsureSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// EnsureSchema creates missing tables.
func (s *Store) EnsureSchema() error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS settings (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS positions (
			book_id    TEXT PRIMARY KEY,
			page       INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ClientID returns the persistent client identity, generating a UUID on
// first use.
func (s *Store) ClientID(ctx context.Context) (string, error) {
	id, ok, err := s.Setting(ctx, clientIDKey)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}

	id = uuid.NewString()
	// Another process may have raced us; keep whichever landed first.
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO NOTHING`,
		clientIDKey, id); err != nil {
		return "", err
	}
	id, _, err = s.Setting(ctx, clientIDKey)
	return id, err
}

// Setting returns a stored setting.
func (s *Store) Setting(ctx context.Context, key string) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, errNoDB
	}
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetSetting stores a setting.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// SavePosition records the page last read in a book.
func (s *Store) SavePosition(ctx context.Context, bookID string, page int) error {
	if s == nil || s.db == nil {
		return errNoDB
	}
	if bookID == "" || page < 1 {
		return fmt.Errorf("store: invalid position %q/%d", bookID, page)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO positions (book_id, page, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
			page = excluded.page,
			updated_at = excluded.updated_at
	`, bookID, page, time.Now().UnixNano())
	return err
}

// Position returns the saved page for a book.
func (s *Store) Position(ctx context.Context, bookID string) (Position, bool, error) {
	if s == nil || s.db == nil {
		return Position{}, false, errNoDB
	}
	var (
		page    int
		updated int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT page, updated_at FROM positions WHERE book_id = ?`, bookID).Scan(&page, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, err
	}
	return Position{BookID: bookID, Page: page, UpdatedAt: time.Unix(0, updated)}, true, nil
}

// Positions returns saved positions, most recently updated first.
func (s *Store) Positions(ctx context.Context, limit int) ([]Position, error) {
	if s == nil || s.db == nil {
		return nil, errNoDB
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT book_id, page, updated_at
		FROM positions
		ORDER BY updated_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Position
	for rows.Next() {
		var (
			p       Position
			updated int64
		)
		if err := rows.Scan(&p.BookID, &p.Page, &updated); err != nil {
			return nil, err
		}
		p.UpdatedAt = time.Unix(0, updated)
		out = append(out, p)
	}
	return out, rows.Err()
}
