// Package audit keeps an opt-in SQLite trail of identifier warnings.
// Rows record where and when an alert fired, never the message text.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Alert is one warning issued by the bot.
type Alert struct {
	ID          string
	Platform    string
	Channel     string
	Author      string
	MessageTS   string
	Identifiers int
	CreatedAt   time.Time
}

// Store persists alerts in SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewStore(dbPath string, logger *slog.Logger) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cannot create database directory %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cannot open database: %w", err)
	}

	// Single connection for SQLite
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := RunMigrations(db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("database migration failed: %w", err)
	}
	return &Store{db: db, logger: logger}, nil
}

// Record stores a. ID and CreatedAt are filled in when empty.
func (s *Store) Record(ctx context.Context, a Alert) (Alert, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, platform, channel, author, message_ts, identifiers, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Platform, a.Channel, a.Author, a.MessageTS, a.Identifiers, a.CreatedAt,
	)
	if err != nil {
		return a, fmt.Errorf("record alert: %w", err)
	}
	return a, nil
}

// Recent returns up to limit alerts, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Alert, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform, channel, author, message_ts, identifiers, created_at
		 FROM alerts ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	var alerts []Alert
	for rows.Next() {
		var a Alert
		var author, ts sql.NullString
		if err := rows.Scan(&a.ID, &a.Platform, &a.Channel, &author, &ts, &a.Identifiers, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		a.Author = author.String
		a.MessageTS = ts.String
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// Count returns the number of stored alerts.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM alerts`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count alerts: %w", err)
	}
	return n, nil
}

// Prune deletes alerts older than the cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM alerts WHERE created_at < ?`, olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("prune alerts: %w", err)
	}
	return res.RowsAffected()
}

// Snapshot writes a consistent, self-contained copy of the database to
// dest, which must not exist yet. The WAL is folded into the copy.
func (s *Store) Snapshot(ctx context.Context, dest string) error {
	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("snapshot %s: file exists", dest)
	}
	if _, err := s.db.ExecContext(ctx, `VACUUM INTO ?`, dest); err != nil {
		return fmt.Errorf("snapshot %s: %w", dest, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
