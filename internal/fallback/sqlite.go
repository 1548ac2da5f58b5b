package fallback

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // CGO-free SQLite
)

// SQLiteLog keeps all keys in one fallback_records table ordered by rowid.
type SQLiteLog struct {
	db *sql.DB
}

func NewSQLiteLog(path string) (*SQLiteLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create fallback dir: %w", err)
		}
	}

	// WAL + busy timeout to avoid "database is locked"
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open fallback database: %w", err)
	}

	if _, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS fallback_records(
	  id          INTEGER PRIMARY KEY,
	  log_key     TEXT    NOT NULL,
	  record_json TEXT    NOT NULL CHECK (json_valid(record_json))
	);
	CREATE INDEX IF NOT EXISTS idx_fallback_key ON fallback_records(log_key, id);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create fallback table: %w", err)
	}

	return &SQLiteLog{db: db}, nil
}

func (l *SQLiteLog) Append(ctx context.Context, key string, record any) error {
	data, err := marshalRecord(record)
	if err != nil {
		return err
	}
	if _, err := l.db.ExecContext(ctx,
		`INSERT INTO fallback_records(log_key, record_json) VALUES(?, json(?))`, key, string(data)); err != nil {
		return fmt.Errorf("failed to insert fallback record: %w", err)
	}
	return nil
}

func (l *SQLiteLog) Records(ctx context.Context, key string) ([]json.RawMessage, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT record_json FROM fallback_records WHERE log_key = ? ORDER BY id`, key)
	if err != nil {
		return nil, fmt.Errorf("failed to query fallback records: %w", err)
	}
	defer rows.Close()

	var records []json.RawMessage
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("failed to scan fallback record: %w", err)
		}
		records = append(records, json.RawMessage(s))
	}
	return records, rows.Err()
}

func (l *SQLiteLog) Close() error {
	return l.db.Close()
}
