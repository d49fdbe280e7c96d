package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	expires_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires_at ON sessions(expires_at);
`

// SQLiteSnapshots keeps one row per session in a SQLite database
type SQLiteSnapshots struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the snapshot database at path
func OpenSQLite(path string) (*SQLiteSnapshots, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	cleanPath := filepath.Clean(path)
	if cleanPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cleanPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// a single connection keeps :memory: databases shared and writes serialized
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}
	return &SQLiteSnapshots{db: db}, nil
}

func (q *SQLiteSnapshots) Save(ctx context.Context, s *Session) error {
	data, err := encode(s)
	if err != nil {
		return err
	}
	_, err = q.db.ExecContext(ctx, `
		INSERT INTO sessions (id, data, expires_at, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			data = excluded.data,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		s.ID, string(data), s.ExpiresAt.UTC().UnixMilli(), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("save session %s: %w", s.ID, err)
	}
	return nil
}

func (q *SQLiteSnapshots) Load(ctx context.Context, id string) (*Session, error) {
	var data string
	err := q.db.QueryRowContext(ctx, `SELECT data FROM sessions WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	return decode(id, []byte(data))
}

func (q *SQLiteSnapshots) Delete(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (q *SQLiteSnapshots) LoadAll(ctx context.Context) ([]Entry, error) {
	rows, err := q.db.QueryContext(ctx, `SELECT id, data FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		s, err := decode(id, []byte(data))
		entries = append(entries, Entry{ID: id, Session: s, Err: err})
	}
	return entries, rows.Err()
}

func (q *SQLiteSnapshots) Close() error {
	if q == nil || q.db == nil {
		return nil
	}
	return q.db.Close()
}
