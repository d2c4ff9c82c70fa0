// Package auditlog records every exchange API call in its own SQLite file,
// outside the main GORM store, so the audit trail survives independently and
// its writes never contend with the execution path's transactions.
package auditlog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tvbridge/internal/logger"
)

type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Entry is one recorded exchange call. Params holds a short human-readable
// summary, not the signed request.
type Entry struct {
	ID         int64  `json:"id"`
	Timestamp  int64  `json:"ts"`
	Endpoint   string `json:"endpoint"`
	Params     string `json:"params"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

func New(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS api_calls (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts INTEGER NOT NULL,
			endpoint TEXT NOT NULL,
			params TEXT,
			ok INTEGER NOT NULL,
			error TEXT,
			duration_ms INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_api_calls_ts ON api_calls(ts DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_api_calls_endpoint ON api_calls(endpoint, ts DESC);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record appends one call entry.
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return fmt.Errorf("audit log store is closed")
	}
	ts := e.Timestamp
	if ts == 0 {
		ts = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO api_calls (ts, endpoint, params, ok, error, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ts, e.Endpoint, e.Params, boolToInt(e.OK), e.Error, e.DurationMS,
	)
	return err
}

// List returns the most recent entries, optionally filtered by endpoint.
func (s *Store) List(ctx context.Context, endpoint string, limit int) ([]Entry, error) {
	s.mu.Lock()
	db := s.db
	s.mu.Unlock()
	if db == nil {
		return nil, fmt.Errorf("audit log store is closed")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query := `SELECT id, ts, endpoint, params, ok, error, duration_ms FROM api_calls`
	args := []interface{}{}
	if endpoint != "" {
		query += ` WHERE endpoint = ?`
		args = append(args, endpoint)
	}
	query += ` ORDER BY ts DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Entry
	for rows.Next() {
		var (
			e      Entry
			ok     int
			params sql.NullString
			errStr sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Endpoint, &params, &ok, &errStr, &e.DurationMS); err != nil {
			return nil, err
		}
		e.Params = params.String
		e.Error = errStr.String
		e.OK = ok != 0
		list = append(list, e)
	}
	return list, rows.Err()
}

// RecordCall adapts Record to the exchange client's recorder contract. It
// runs asynchronously on a short deadline of its own; a cancelled caller
// context must not drop the audit row, and a slow disk must not stall the
// call path.
func (s *Store) RecordCall(_ context.Context, endpoint, params string, callErr error, took time.Duration) {
	entry := Entry{
		Timestamp:  time.Now().UnixMilli(),
		Endpoint:   endpoint,
		Params:     params,
		OK:         callErr == nil,
		DurationMS: took.Milliseconds(),
	}
	if callErr != nil {
		entry.Error = callErr.Error()
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := s.Record(ctx, entry); err != nil {
			logger.Warnf("[audit] record %s failed: %v", endpoint, err)
		}
	}()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
