// Package audit keeps a SQLite ledger of contained handler failures so that
// operators can inspect them after the fact.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"chatbridge/internal/domain"

	_ "modernc.org/sqlite"
)

// Failure is one recorded handler failure.
type Failure struct {
	ID        int64
	MessageID string
	ChannelID string
	Kind      string
	Message   string
	Trace     string
	CreatedAt time.Time
}

// Store implements bridge.FailureRecorder using SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &Store{db: db, logger: logger, now: time.Now}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS handler_failures (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id  TEXT NOT NULL,
		channel_id  TEXT NOT NULL,
		kind        TEXT NOT NULL,
		message     TEXT,
		trace       TEXT,
		created_at  INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_failures_time ON handler_failures(created_at);
	CREATE INDEX IF NOT EXISTS idx_failures_channel ON handler_failures(channel_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// RecordFailure appends herr to the ledger.
func (s *Store) RecordFailure(ctx context.Context, channelID string, herr *domain.HandlerError) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO handler_failures (message_id, channel_id, kind, message, trace, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		herr.MessageID, channelID, herr.Kind, herr.Message, herr.Trace, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record failure: %w", err)
	}
	return nil
}

// Recent returns up to limit failures, newest first. An empty channelID
// matches every channel.
func (s *Store) Recent(ctx context.Context, channelID string, limit int) ([]Failure, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, message_id, channel_id, kind, message, trace, created_at
		FROM handler_failures`
	args := []any{}
	if channelID != "" {
		query += ` WHERE channel_id = ?`
		args = append(args, channelID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Failure
	for rows.Next() {
		var f Failure
		var createdMs int64
		if err := rows.Scan(&f.ID, &f.MessageID, &f.ChannelID, &f.Kind, &f.Message, &f.Trace, &createdMs); err != nil {
			return nil, err
		}
		f.CreatedAt = time.UnixMilli(createdMs)
		out = append(out, f)
	}
	return out, rows.Err()
}

// Prune deletes failures older than maxAge and returns how many were removed.
func (s *Store) Prune(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx, `DELETE FROM handler_failures WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune failures: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("pruned handler failures", "count", n, "older_than", maxAge)
	}
	return n, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
