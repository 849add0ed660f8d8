package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("storage: record not found")

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// In-memory databases are per connection
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &SQLiteStorage{db: db}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// NewInMemoryStorage creates an in-memory SQLite storage (for testing)
func NewInMemoryStorage() (*SQLiteStorage, error) {
	return NewSQLiteStorage(":memory:")
}

// migrate runs database migrations
func (s *SQLiteStorage) migrate() error {
	if _, err := s.db.Exec(initialMigration); err != nil {
		return fmt.Errorf("failed to execute migration: %w", err)
	}
	return nil
}

const initialMigration = `
CREATE TABLE IF NOT EXISTS save_attempts (
    id TEXT PRIMARY KEY,
    session_id TEXT NOT NULL,
    prescription_id INTEGER NOT NULL,
    save_trigger TEXT NOT NULL,
    status TEXT NOT NULL,
    started_at TEXT NOT NULL,
    duration_ms INTEGER DEFAULT 0,
    error TEXT,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE TABLE IF NOT EXISTS error_reports (
    id TEXT PRIMARY KEY,
    context TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_save_attempts_session ON save_attempts(session_id);
CREATE INDEX IF NOT EXISTS idx_save_attempts_prescription ON save_attempts(prescription_id);
CREATE INDEX IF NOT EXISTS idx_save_attempts_status ON save_attempts(status);
CREATE INDEX IF NOT EXISTS idx_save_attempts_started_at ON save_attempts(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_error_reports_created_at ON error_reports(created_at DESC);

CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL DEFAULT (datetime('now'))
);

INSERT OR IGNORE INTO schema_version (version) VALUES (1);
`

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveAttempt stores a save attempt, assigning an ID if it has none
func (s *SQLiteStorage) SaveAttempt(ctx context.Context, rec *AttemptRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO save_attempts (id, session_id, prescription_id, save_trigger, status, started_at, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.SessionID,
		rec.PrescriptionID,
		rec.Trigger,
		string(rec.Status),
		formatTime(rec.StartedAt),
		rec.Duration.Milliseconds(),
		nullableString(rec.Error),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert save attempt: %w", err)
	}
	return nil
}

// GetAttempt retrieves a save attempt by ID
func (s *SQLiteStorage) GetAttempt(ctx context.Context, id string) (*AttemptRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session_id, prescription_id, save_trigger, status, started_at, duration_ms, error, created_at
		FROM save_attempts
		WHERE id = ?
	`, id)

	rec, err := scanAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// ListAttempts retrieves attempts matching the filter, newest first
func (s *SQLiteStorage) ListAttempts(ctx context.Context, filter *AttemptFilter) ([]*AttemptRecord, error) {
	if filter == nil {
		filter = &AttemptFilter{}
	}

	query := `
		SELECT id, session_id, prescription_id, save_trigger, status, started_at, duration_ms, error, created_at
		FROM save_attempts
	`
	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY started_at DESC, created_at DESC"

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += fmt.Sprintf(" LIMIT %d OFFSET %d", limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query save attempts: %w", err)
	}
	defer rows.Close()

	var records []*AttemptRecord
	for rows.Next() {
		rec, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// CountAttempts returns the count of attempts matching the filter
func (s *SQLiteStorage) CountAttempts(ctx context.Context, filter *AttemptFilter) (int, error) {
	if filter == nil {
		filter = &AttemptFilter{}
	}

	query := `SELECT COUNT(*) FROM save_attempts`
	where, args := buildWhereClause(filter)
	if where != "" {
		query += " WHERE " + where
	}

	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, err
}

// DeleteAttempt deletes a save attempt
func (s *SQLiteStorage) DeleteAttempt(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM save_attempts WHERE id = ?", id)
	return err
}

// PruneBefore deletes attempts and error reports older than before and
// returns how many attempts were removed
func (s *SQLiteStorage) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cutoff := formatTime(before)
	res, err := tx.ExecContext(ctx, "DELETE FROM save_attempts WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune save attempts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM error_reports WHERE created_at < ?", cutoff); err != nil {
		return 0, fmt.Errorf("failed to prune error reports: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit prune: %w", err)
	}

	return res.RowsAffected()
}

// SaveErrorReport stores a background failure
func (s *SQLiteStorage) SaveErrorReport(ctx context.Context, report *ErrorReport) error {
	if report.ID == "" {
		report.ID = uuid.New().String()
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO error_reports (id, context, message, created_at) VALUES (?, ?, ?, ?)
	`, report.ID, report.Context, report.Message, formatTime(report.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert error report: %w", err)
	}
	return nil
}

// ListErrorReports returns the most recent error reports
func (s *SQLiteStorage) ListErrorReports(ctx context.Context, limit int) ([]*ErrorReport, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, context, message, created_at
		FROM error_reports
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query error reports: %w", err)
	}
	defer rows.Close()

	var reports []*ErrorReport
	for rows.Next() {
		var r ErrorReport
		var createdAt string
		if err := rows.Scan(&r.ID, &r.Context, &r.Message, &createdAt); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(createdAt)
		reports = append(reports, &r)
	}
	return reports, rows.Err()
}

// GetStats returns aggregate statistics
func (s *SQLiteStorage) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	var avgMs float64
	var maxMs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) as total,
			COALESCE(SUM(CASE WHEN status = 'saved' THEN 1 ELSE 0 END), 0) as saved,
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) as failed,
			COALESCE(AVG(duration_ms), 0) as avg_duration,
			COALESCE(MAX(duration_ms), 0) as max_duration
		FROM save_attempts
	`).Scan(
		&stats.TotalAttempts,
		&stats.SavedCount,
		&stats.FailedCount,
		&avgMs,
		&maxMs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get overall stats: %w", err)
	}

	stats.AvgDuration = time.Duration(avgMs) * time.Millisecond
	stats.MaxDuration = time.Duration(maxMs) * time.Millisecond
	if stats.TotalAttempts > 0 {
		stats.SuccessRate = float64(stats.SavedCount) / float64(stats.TotalAttempts) * 100
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM error_reports`).Scan(&stats.ReportedErrors); err != nil {
		return nil, fmt.Errorf("failed to count error reports: %w", err)
	}

	if stats.AttemptsByDay, err = s.attemptsByDay(ctx); err != nil {
		return nil, err
	}
	if stats.AttemptsByPrescription, err = s.attemptsByPrescription(ctx); err != nil {
		return nil, err
	}

	stats.RecentFailures, err = s.ListAttempts(ctx, &AttemptFilter{Status: AttemptFailed, Limit: 10})
	if err != nil {
		return nil, fmt.Errorf("failed to get recent failures: %w", err)
	}

	return stats, nil
}

// attemptsByDay counts attempts per day over the last 30 days
func (s *SQLiteStorage) attemptsByDay(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT substr(started_at, 1, 10) as day, COUNT(*) as count
		FROM save_attempts
		WHERE started_at >= strftime('%Y-%m-%dT%H:%M:%SZ', 'now', '-30 days')
		GROUP BY day
		ORDER BY day DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts by day: %w", err)
	}
	defer rows.Close()

	byDay := make(map[string]int)
	for rows.Next() {
		var day string
		var count int
		if err := rows.Scan(&day, &count); err != nil {
			return nil, err
		}
		byDay[day] = count
	}
	return byDay, rows.Err()
}

func (s *SQLiteStorage) attemptsByPrescription(ctx context.Context) (map[int64]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT prescription_id, COUNT(*) as count
		FROM save_attempts
		GROUP BY prescription_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get attempts by prescription: %w", err)
	}
	defer rows.Close()

	byRx := make(map[int64]int)
	for rows.Next() {
		var id int64
		var count int
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		byRx[id] = count
	}
	return byRx, rows.Err()
}

// GetRecentAttempts returns the most recent attempts
func (s *SQLiteStorage) GetRecentAttempts(ctx context.Context, limit int) ([]*AttemptRecord, error) {
	return s.ListAttempts(ctx, &AttemptFilter{Limit: limit})
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(row scanner) (*AttemptRecord, error) {
	var rec AttemptRecord
	var status, startedAt, createdAt string
	var durationMs int64
	var errMsg sql.NullString

	err := row.Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.PrescriptionID,
		&rec.Trigger,
		&status,
		&startedAt,
		&durationMs,
		&errMsg,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = AttemptStatus(status)
	rec.StartedAt = parseTime(startedAt)
	rec.Duration = time.Duration(durationMs) * time.Millisecond
	rec.Error = errMsg.String
	rec.CreatedAt = parseTime(createdAt)
	return &rec, nil
}

// escapeLikeWildcards escapes SQL LIKE wildcards so user input matches literally
func escapeLikeWildcards(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "%", "\\%")
	s = strings.ReplaceAll(s, "_", "\\_")
	return s
}

func buildWhereClause(filter *AttemptFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.SessionID != "" {
		conditions = append(conditions, "session_id LIKE ? ESCAPE '\\'")
		args = append(args, escapeLikeWildcards(filter.SessionID)+"%")
	}
	if filter.PrescriptionID != 0 {
		conditions = append(conditions, "prescription_id = ?")
		args = append(args, filter.PrescriptionID)
	}
	if filter.Status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.StartAfter != nil {
		conditions = append(conditions, "started_at >= ?")
		args = append(args, formatTime(*filter.StartAfter))
	}
	if filter.StartBefore != nil {
		conditions = append(conditions, "started_at <= ?")
		args = append(args, formatTime(*filter.StartBefore))
	}

	return strings.Join(conditions, " AND "), args
}

// timeLayout is fixed-width UTC so stored times sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// GetDatabasePath returns the default database path
func GetDatabasePath(dataDir string) string {
	return filepath.Join(dataDir, "rxflow.db")
}
