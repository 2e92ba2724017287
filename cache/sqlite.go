package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/egor6820/price-tracker-server/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS last_good (
	url       TEXT PRIMARY KEY,
	result    TEXT NOT NULL,
	snapshot  TEXT NOT NULL DEFAULT '',
	stored_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_last_good_stored_at ON last_good(stored_at);
`

// SQLiteStore persists last-known-good entries in an SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path with WAL
// journaling and applies the schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("cache: mkdir: %w", err)
		}
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(10000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Save upserts e.
func (s *SQLiteStore) Save(ctx context.Context, e Entry) error {
	result, err := json.Marshal(e.Result)
	if err != nil {
		return fmt.Errorf("cache: encode result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO last_good (url, result, snapshot, stored_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			result = excluded.result,
			snapshot = excluded.snapshot,
			stored_at = excluded.stored_at`,
		e.URL, string(result), e.Snapshot, e.StoredAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("cache: save %s: %w", e.URL, err)
	}
	return nil
}

// LoadSince returns every entry stored at or after since.
func (s *SQLiteStore) LoadSince(ctx context.Context, since time.Time) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT url, result, snapshot, stored_at FROM last_good WHERE stored_at >= ?`,
		since.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("cache: load: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e        Entry
			result   string
			storedAt int64
		)
		if err := rows.Scan(&e.URL, &result, &e.Snapshot, &storedAt); err != nil {
			return nil, fmt.Errorf("cache: scan: %w", err)
		}
		var r models.ExtractedResult
		if err := json.Unmarshal([]byte(result), &r); err != nil {
			continue
		}
		e.Result = r
		e.StoredAt = time.UnixMilli(storedAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteBefore removes entries stored before cutoff.
func (s *SQLiteStore) DeleteBefore(ctx context.Context, cutoff time.Time) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM last_good WHERE stored_at < ?`, cutoff.UnixMilli()); err != nil {
		return fmt.Errorf("cache: prune: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
