package backend

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SqliteBackend stores values and sets in a single SQLite database.
//
// Tables:
//
//	kv(key, value)                  PRIMARY KEY (key)
//	set_members(set_key, member)    PRIMARY KEY (set_key, member)
type SqliteBackend struct {
	db *sql.DB
}

func NewSqliteBackend(dbPath string) (*SqliteBackend, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	// SQLite has a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS set_members (
			set_key TEXT NOT NULL,
			member TEXT NOT NULL,
			PRIMARY KEY (set_key, member)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return &SqliteBackend{db: db}, nil
}

func (s *SqliteBackend) Close() error {
	return s.db.Close()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func sqliteSet(ctx context.Context, e execer, key string, value []byte) error {
	_, err := e.ExecContext(ctx,
		`INSERT INTO kv (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func sqliteAdd(ctx context.Context, e execer, key, member string) error {
	_, err := e.ExecContext(ctx,
		"INSERT OR IGNORE INTO set_members (set_key, member) VALUES (?, ?)",
		key, member,
	)
	return err
}

func (s *SqliteBackend) Set(ctx context.Context, key string, value []byte) error {
	return sqliteSet(ctx, s.db, key, value)
}

func (s *SqliteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, ErrNil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// mgetBatch stays well under SQLITE_MAX_VARIABLE_NUMBER.
const mgetBatch = 500

// MGet reads keys in batches inside one transaction so a large index still
// sees a single snapshot.
func (s *SqliteBackend) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	out := make([][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	for start := 0; start < len(keys); start += mgetBatch {
		end := min(start+mgetBatch, len(keys))
		if err := sqliteMGet(ctx, tx, keys[start:end], out[start:end]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// sqliteMGet fills out[i] with the value of keys[i], leaving nil for
// missing keys.
func sqliteMGet(ctx context.Context, tx *sql.Tx, keys []string, out [][]byte) error {
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	query := "SELECT key, value FROM kv WHERE key IN (?" + strings.Repeat(",?", len(keys)-1) + ")"
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	found := make(map[string][]byte, len(keys))
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		found[key] = value
	}
	if err := rows.Err(); err != nil {
		return err
	}
	for i, k := range keys {
		out[i] = found[k]
	}
	return nil
}

func (s *SqliteBackend) SAdd(ctx context.Context, key, member string) error {
	return sqliteAdd(ctx, s.db, key, member)
}

func (s *SqliteBackend) SMembers(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT member FROM set_members WHERE set_key = ?", key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	members := []string{}
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// SetAndAdd writes the value and the set member in one transaction.
func (s *SqliteBackend) SetAndAdd(ctx context.Context, key string, value []byte, set, member string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := sqliteSet(ctx, tx, key, value); err != nil {
		tx.Rollback()
		return err
	}
	if err := sqliteAdd(ctx, tx, set, member); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
