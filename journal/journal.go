// Package journal records describe requests in SQLite so recent results can
// be listed without re-running the pipeline.
package journal

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaFS embed.FS

// DefaultLimit is the number of entries Recent returns when limit is not positive.
const DefaultLimit = 20

// MaxLimit caps Recent.
const MaxLimit = 200

// Entry is one completed or failed describe request.
type Entry struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Description    string    `json:"description,omitempty"`
	HazardDetected bool      `json:"hazard_detected"`
	HazardType     string    `json:"hazard_type,omitempty"`
	HazardPriority int       `json:"hazard_priority"`
	MatchedKeyword string    `json:"matched_keyword,omitempty"`
	AudioFile      string    `json:"audio_file,omitempty"`
	DurationMS     int64     `json:"duration_ms"`
	ErrorKind      string    `json:"error_kind,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// Journal stores entries in a SQLite database.
type Journal struct {
	db     *sql.DB
	owned  bool
	logger *slog.Logger
}

// New applies the schema to db and returns a journal over it. The caller
// keeps ownership of db.
func New(db *sql.DB, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		return nil, fmt.Errorf("failed to execute schema: %w", err)
	}

	return &Journal{db: db, logger: logger}, nil
}

// Open opens or creates the database file at path and returns a journal that
// owns it.
func Open(path string, logger *slog.Logger) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure journal dir %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal pragmas: %w", err)
	}

	j, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	j.owned = true
	return j, nil
}

// Close closes the database if the journal opened it.
func (j *Journal) Close() error {
	if !j.owned {
		return nil
	}
	return j.db.Close()
}

// Record inserts e, assigning an ID and timestamp when missing, and returns
// the stored entry.
func (j *Journal) Record(ctx context.Context, e Entry) (Entry, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO describe_requests (
			id, created_at, description, hazard_detected, hazard_type,
			hazard_priority, matched_keyword, audio_file, duration_ms,
			error_kind, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UnixMilli(), e.Description, e.HazardDetected, e.HazardType,
		e.HazardPriority, e.MatchedKeyword, e.AudioFile, e.DurationMS,
		e.ErrorKind, e.ErrorMessage,
	)
	if err != nil {
		return Entry{}, fmt.Errorf("insert describe request: %w", err)
	}

	j.logger.Debug("Journaled describe request", "id", e.ID, "error_kind", e.ErrorKind)
	return e, nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	rows, err := j.db.QueryContext(ctx, `
		SELECT id, created_at, description, hazard_detected, hazard_type,
		       hazard_priority, matched_keyword, audio_file, duration_ms,
		       error_kind, error_message
		FROM describe_requests
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query describe requests: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var (
			e       Entry
			created int64
		)
		if err := rows.Scan(&e.ID, &created, &e.Description, &e.HazardDetected, &e.HazardType,
			&e.HazardPriority, &e.MatchedKeyword, &e.AudioFile, &e.DurationMS,
			&e.ErrorKind, &e.ErrorMessage); err != nil {
			return nil, fmt.Errorf("scan describe request: %w", err)
		}
		e.CreatedAt = time.UnixMilli(created)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
