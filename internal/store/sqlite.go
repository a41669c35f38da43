package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/monuments-bot/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed transcript repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS transcript_turns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_transcript_thread ON transcript_turns(thread_id, id);

	CREATE TABLE IF NOT EXISTS verification_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		thread_id TEXT NOT NULL,
		event TEXT NOT NULL,
		email TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_verification_thread ON verification_events(thread_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// AppendTurn records one message for a thread.
func (s *SQLiteStore) AppendTurn(ctx context.Context, threadID, role, content string) error {
	query := `INSERT INTO transcript_turns (thread_id, role, content, created_at) VALUES (?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, query, threadID, role, content, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append transcript turn: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit most recent turns, oldest first.
func (s *SQLiteStore) RecentTurns(ctx context.Context, threadID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT id, thread_id, role, content, created_at
		FROM (
			SELECT id, thread_id, role, content, created_at
			FROM transcript_turns WHERE thread_id = ?
			ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, query, threadID, limit)
	if err != nil {
		return nil, fmt.Errorf("query transcript turns: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close transcript rows", "error", closeErr)
		}
	}()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var createdAt int64
		if err := rows.Scan(&t.Seq, &t.ThreadID, &t.Role, &t.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan transcript row: %w", err)
		}
		t.CreatedAt = time.Unix(createdAt, 0)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transcript rows: %w", err)
	}

	return turns, nil
}

// RecordVerificationEvent appends an audit event.
func (s *SQLiteStore) RecordVerificationEvent(ctx context.Context, threadID, event, email string) error {
	query := `INSERT INTO verification_events (thread_id, event, email, created_at) VALUES (?, ?, ?, ?)`

	var emailValue interface{}
	if email != "" {
		emailValue = email
	}

	_, err := s.db.ExecContext(ctx, query, threadID, event, emailValue, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("record verification event: %w", err)
	}
	return nil
}

// DeleteThread removes all rows for a thread. Retries with exponential
// backoff to handle SQLITE_BUSY while a concurrent turn is still writing.
func (s *SQLiteStore) DeleteThread(ctx context.Context, threadID string) (int64, error) {
	maxRetries := 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		deleted, err := s.deleteThreadOnce(ctx, threadID)
		if err == nil {
			return deleted, nil
		}
		lastErr = err

		if shared.IsSQLiteConflictError(err) && i < maxRetries-1 {
			delay := baseDelay * time.Duration(1<<i)
			slog.Debug("DeleteThread hit SQLITE_BUSY, retrying",
				"thread_id", threadID,
				"attempt", i+1,
				"delay", delay)
			time.Sleep(delay)
			continue
		}
		break
	}

	return 0, fmt.Errorf("delete thread %s: %w", threadID, lastErr)
}

func (s *SQLiteStore) deleteThreadOnce(ctx context.Context, threadID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM transcript_turns WHERE thread_id = ?`, threadID)
	if err != nil {
		return 0, fmt.Errorf("delete transcript turns: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("transcript rows affected: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM verification_events WHERE thread_id = ?`, threadID); err != nil {
		return deleted, fmt.Errorf("delete verification events: %w", err)
	}

	return deleted, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
