package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"github.com/teemow/inboxtriage/internal/triage"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Store persists processed emails, extracted tasks and run summaries in
// SQLite.
type Store struct {
	db *sqlx.DB
}

// Open connects to the SQLite database at path, creating it if needed, and
// applies pending migrations. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_foreign_keys=on&_busy_timeout=5000"
	}

	db, err := sqlx.ConnectContext(ctx, "sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	// SQLite allows a single writer; an in-memory database only exists on
	// its one connection.
	db.SetMaxOpenConns(1)

	if path != ":memory:" {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := Migrate(db.DB); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate applies all pending schema migrations.
func Migrate(db *sql.DB) error {
	goose.SetLogger(log.New(io.Discard, "", 0))
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying sqlx.DB.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

const emailColumns = `id, user_email, sender, subject, body, summary, category, priority, thread_id, smart_thread_id, received_at`

// SaveEmail inserts or replaces a processed email.
func (s *Store) SaveEmail(ctx context.Context, e triage.EmailRecord) error {
	if e.ID == "" {
		return errors.New("email has no id")
	}
	if e.ReceivedAt.IsZero() {
		e.ReceivedAt = time.Now()
	}
	// Stored as text; a single zone keeps ORDER BY chronological.
	e.ReceivedAt = e.ReceivedAt.UTC()

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO emails (`+emailColumns+`)
		VALUES (:id, :user_email, :sender, :subject, :body, :summary, :category, :priority, :thread_id, :smart_thread_id, :received_at)
		ON CONFLICT(id) DO UPDATE SET
			summary = excluded.summary,
			category = excluded.category,
			priority = excluded.priority,
			smart_thread_id = excluded.smart_thread_id,
			processed_at = CURRENT_TIMESTAMP
	`, e)
	if err != nil {
		return fmt.Errorf("failed to save email %s: %w", e.ID, err)
	}
	return nil
}

// EmailExists reports whether an email with id has been stored.
func (s *Store) EmailExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM emails WHERE id = ?`, id); err != nil {
		return false, fmt.Errorf("failed to look up email %s: %w", id, err)
	}
	return n > 0, nil
}

// GetEmail returns the stored email with id, or sql.ErrNoRows.
func (s *Store) GetEmail(ctx context.Context, id string) (triage.EmailRecord, error) {
	var e triage.EmailRecord
	err := s.db.GetContext(ctx, &e, `SELECT `+emailColumns+` FROM emails WHERE id = ?`, id)
	if err != nil {
		return triage.EmailRecord{}, fmt.Errorf("failed to get email %s: %w", id, err)
	}
	return e, nil
}

// HistoryForUser returns a user's stored emails, oldest first. A positive
// limit keeps only the most recent limit emails.
func (s *Store) HistoryForUser(ctx context.Context, userEmail string, limit int) ([]triage.EmailRecord, error) {
	query := `SELECT ` + emailColumns + ` FROM emails WHERE user_email = ? ORDER BY received_at DESC, id DESC`
	args := []any{userEmail}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var history []triage.EmailRecord
	if err := s.db.SelectContext(ctx, &history, query, args...); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	// Reverse to chronological order.
	for i, j := 0, len(history)-1; i < j; i, j = i+1, j-1 {
		history[i], history[j] = history[j], history[i]
	}
	return history, nil
}

// ThreadsForUser returns a user's stored emails grouped by smart thread.
// Threads are ordered by their oldest email.
func (s *Store) ThreadsForUser(ctx context.Context, userEmail string) ([]triage.ThreadGroup, error) {
	history, err := s.HistoryForUser(ctx, userEmail, 0)
	if err != nil {
		return nil, err
	}
	return triage.GroupThreads(history), nil
}

// HasTasks reports whether tasks were already stored for an email.
func (s *Store) HasTasks(ctx context.Context, emailID string) (bool, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(1) FROM tasks WHERE email_id = ?`, emailID); err != nil {
		return false, fmt.Errorf("failed to count tasks for %s: %w", emailID, err)
	}
	return n > 0, nil
}

// SaveTasks stores extracted tasks for a user in one transaction. A task
// already stored for the same email with the same text is skipped.
func (s *Store) SaveTasks(ctx context.Context, userEmail string, tasks []triage.ExtractedTask) error {
	if len(tasks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, t := range tasks {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO tasks (email_id, user_email, task_text, deadline)
			VALUES (?, ?, ?, ?)
		`, t.SourceEmailID, userEmail, t.TaskText, t.Deadline)
		if err != nil {
			return fmt.Errorf("failed to save task for %s: %w", t.SourceEmailID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tasks: %w", err)
	}
	return nil
}

// StoredTask is a persisted task with its export state.
type StoredTask struct {
	triage.ExtractedTask
	ID        int64  `db:"id"`
	UserEmail string `db:"user_email"`
	RemoteID  string `db:"remote_id"`
}

// TasksForUser returns a user's tasks, oldest first. With pendingOnly set
// only tasks that have not been exported are returned.
func (s *Store) TasksForUser(ctx context.Context, userEmail string, pendingOnly bool) ([]StoredTask, error) {
	query := `SELECT id, email_id, user_email, task_text, deadline, remote_id FROM tasks WHERE user_email = ?`
	if pendingOnly {
		query += ` AND remote_id = ''`
	}
	query += ` ORDER BY id`

	var tasks []StoredTask
	if err := s.db.SelectContext(ctx, &tasks, query, userEmail); err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}
	return tasks, nil
}

// MarkTaskExported records the remote ID a task was exported under.
func (s *Store) MarkTaskExported(ctx context.Context, taskID int64, remoteID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET remote_id = ? WHERE id = ?`, remoteID, taskID)
	if err != nil {
		return fmt.Errorf("failed to mark task %d exported: %w", taskID, err)
	}
	return nil
}

// SaveUserSummary stores the overall summary produced by a triage run.
func (s *Store) SaveUserSummary(ctx context.Context, userEmail, runID, summary string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_summaries (user_email, run_id, overall_summary) VALUES (?, ?, ?)
	`, userEmail, runID, summary)
	if err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// LatestUserSummary returns the most recent run summary for a user, or ""
// if there is none.
func (s *Store) LatestUserSummary(ctx context.Context, userEmail string) (string, error) {
	var summary string
	err := s.db.GetContext(ctx, &summary, `
		SELECT overall_summary FROM user_summaries WHERE user_email = ? ORDER BY id DESC LIMIT 1
	`, userEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load summary: %w", err)
	}
	return summary, nil
}
