// Package storage provides SQLite persistence for the request audit log.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// AuditStore persists request log entries to SQLite. The in-memory metrics
// ring holds only a recent window; the audit store keeps everything.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewAuditStore(dbPath string) (*AuditStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &AuditStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS request_log (
		request_id TEXT PRIMARY KEY,
		timestamp TIMESTAMP NOT NULL,
		question TEXT NOT NULL,
		latency_seconds REAL NOT NULL,
		status TEXT NOT NULL,
		chunks_retrieved INTEGER NOT NULL,
		error_message TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_request_log_timestamp ON request_log(timestamp);
	CREATE INDEX IF NOT EXISTS idx_request_log_status ON request_log(status);
	`
	_, err := db.Exec(schema)
	return err
}

// Append inserts a request log entry.
func (s *AuditStore) Append(ctx context.Context, entry *models.RequestLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_log (request_id, timestamp, question, latency_seconds, status, chunks_retrieved, error_message)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.RequestID, entry.Timestamp, entry.Question, entry.LatencySeconds,
		entry.Status, entry.ChunksRetrieved, entry.ErrorMessage,
	)
	return err
}

// Recent returns the most recent entries, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]models.RequestLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT request_id, timestamp, question, latency_seconds, status, chunks_retrieved, error_message
		 FROM request_log ORDER BY timestamp DESC, request_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []models.RequestLogEntry
	for rows.Next() {
		var e models.RequestLogEntry
		if err := rows.Scan(&e.RequestID, &e.Timestamp, &e.Question, &e.LatencySeconds,
			&e.Status, &e.ChunksRetrieved, &e.ErrorMessage); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByStatus returns the total entries with the given status.
func (s *AuditStore) CountByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM request_log WHERE status = ?`, status).Scan(&count)
	return count, err
}

// Count returns the total number of entries.
func (s *AuditStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM request_log`).Scan(&count)
	return count, err
}

// PruneOlderThan deletes entries with a timestamp before cutoff and returns
// the number removed.
func (s *AuditStore) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM request_log WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// Close closes the database connection.
func (s *AuditStore) Close() error {
	return s.db.Close()
}
