package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS analysis_results (
	result_key TEXT PRIMARY KEY,
	raw        BLOB NOT NULL,
	updated_at INTEGER NOT NULL
)`

// SQLiteStore persists results in a SQLite database so they survive restarts
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLite opens or creates the database at path. Rows older than ttl are
// treated as missing and purged on open.
func OpenSQLite(ctx context.Context, path string, ttl time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s := &SQLiteStore{db: db, ttl: ttl, now: time.Now}
	if _, err := s.Purge(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) cutoff() int64 {
	return s.now().Add(-s.ttl).UnixNano()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	var updated int64
	err := s.db.QueryRowContext(ctx,
		"SELECT raw, updated_at FROM analysis_results WHERE result_key = ?", key,
	).Scan(&raw, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get result: %w", err)
	}

	if s.ttl > 0 && updated < s.cutoff() {
		if err := s.Delete(ctx, key); err != nil {
			return nil, err
		}
		return nil, ErrNotFound
	}
	return raw, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, raw []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_results (result_key, raw, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(result_key) DO UPDATE SET raw = excluded.raw, updated_at = excluded.updated_at`,
		key, raw, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("put result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM analysis_results WHERE result_key = ?", key); err != nil {
		return fmt.Errorf("delete result: %w", err)
	}
	return nil
}

// Purge removes expired rows and reports how many were deleted
func (s *SQLiteStore) Purge(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM analysis_results WHERE updated_at < ?", s.cutoff())
	if err != nil {
		return 0, fmt.Errorf("purge results: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
