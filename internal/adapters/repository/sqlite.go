package repository

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

const luckSchema = `
CREATE TABLE IF NOT EXISTS luck (
	pool       TEXT NOT NULL,
	clip       TEXT NOT NULL,
	value      REAL NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (pool, clip)
)`

// SQLiteStore keeps one row per (pool, clip).
type SQLiteStore struct {
	sqlDB *sql.DB
}

// OpenSQLite opens or creates the database at path. ":memory:" is accepted
// for tests.
func OpenSQLite(path string, busyTimeoutMS int) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	if busyTimeoutMS <= 0 {
		busyTimeoutMS = defaultSettings().busyTimeoutMS
	}

	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)", filepath.Clean(path), busyTimeoutMS)
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serialises writers.
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(luckSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create luck table: %w", err)
	}
	return &SQLiteStore{sqlDB: sqlDB}, nil
}

// Load implements Store.
func (s *SQLiteStore) Load(ctx context.Context, pool string) (map[string]float64, error) {
	if err := validPool(pool); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT clip, value FROM luck WHERE pool = ?`, pool)
	if err != nil {
		return nil, fmt.Errorf("query luck: %w", err)
	}
	defer rows.Close()

	luck := make(map[string]float64)
	for rows.Next() {
		var (
			clip  string
			value float64
		)
		if err := rows.Scan(&clip, &value); err != nil {
			return nil, fmt.Errorf("scan luck: %w", err)
		}
		luck[clip] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate luck: %w", err)
	}
	if len(luck) == 0 {
		return nil, ErrNotFound
	}
	return luck, nil
}

// Save implements Store. The pool's previous rows are replaced in one
// transaction.
func (s *SQLiteStore) Save(ctx context.Context, pool string, luck map[string]float64) (err error) {
	if err := validPool(pool); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin luck tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM luck WHERE pool = ?`, pool); err != nil {
		return fmt.Errorf("clear luck: %w", err)
	}
	now := time.Now().UTC().UnixMilli()
	for clip, value := range luck {
		_, err = tx.ExecContext(ctx, `
INSERT INTO luck (pool, clip, value, updated_at) VALUES (?, ?, ?, ?)
ON CONFLICT(pool, clip) DO UPDATE SET
	value = excluded.value,
	updated_at = excluded.updated_at
`, pool, clip, value, now)
		if err != nil {
			return fmt.Errorf("put luck %s/%s: %w", pool, clip, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit luck: %w", err)
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
