// Package sqlite archives finished runs in a local sqlite database. It is
// the default backend: zero infrastructure, safe across restarts.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/talentsift/research-sdk-go/history"
	"github.com/talentsift/research-sdk-go/types"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBusyTimeout = 5 * time.Second
	defaultListLimit   = 50
)

type Store struct {
	db          *sql.DB
	busyTimeout time.Duration
	enableWAL   bool
	maxOpenConn int
}

var _ history.Store = (*Store)(nil)

type Option func(*Store)

func WithBusyTimeout(timeout time.Duration) Option {
	return func(s *Store) {
		if timeout >= 0 {
			s.busyTimeout = timeout
		}
	}
}

func WithWAL(enabled bool) Option {
	return func(s *Store) {
		s.enableWAL = enabled
	}
}

func WithMaxOpenConns(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxOpenConn = n
		}
	}
}

func New(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	s := &Store{
		busyTimeout: defaultBusyTimeout,
		enableWAL:   true,
		maxOpenConn: 1,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(s.maxOpenConn)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s.db = db
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) initialize(ctx context.Context) error {
	if s.busyTimeout > 0 {
		ms := int(s.busyTimeout / time.Millisecond)
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
			return fmt.Errorf("failed to set busy_timeout: %w", err)
		}
	}
	if s.enableWAL {
		if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			return fmt.Errorf("failed to enable wal: %w", err)
		}
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) Save(ctx context.Context, record history.Record) error {
	if record.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if record.Status == "" {
		return fmt.Errorf("run status is required")
	}
	if record.SubmittedAt.IsZero() {
		record.SubmittedAt = time.Now().UTC()
	}

	const q = `
INSERT INTO runs (
  run_id, linkedin_url, status, progress, error, submitted_at, completed_at
) VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(run_id) DO UPDATE SET
  linkedin_url=excluded.linkedin_url,
  status=excluded.status,
  progress=excluded.progress,
  error=excluded.error,
  submitted_at=excluded.submitted_at,
  completed_at=excluded.completed_at;
`

	_, err := s.db.ExecContext(
		ctx,
		q,
		record.RunID,
		record.LinkedInURL,
		string(record.Status),
		record.Progress,
		record.Error,
		record.SubmittedAt.UTC().Format(time.RFC3339Nano),
		toNullableTime(record.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save run record: %w", err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, runID string) (history.Record, error) {
	if strings.TrimSpace(runID) == "" {
		return history.Record{}, fmt.Errorf("run id is required")
	}

	const q = `
SELECT run_id, linkedin_url, status, progress, error, submitted_at, completed_at
FROM runs
WHERE run_id = ?;
`
	row := s.db.QueryRowContext(ctx, q, runID)
	record, err := scanRecord(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return history.Record{}, history.ErrNotFound
		}
		return history.Record{}, fmt.Errorf("failed to load run record: %w", err)
	}
	return record, nil
}

func (s *Store) List(ctx context.Context, limit int) ([]history.Record, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	const q = `
SELECT run_id, linkedin_url, status, progress, error, submitted_at, completed_at
FROM runs
ORDER BY submitted_at DESC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list run records: %w", err)
	}
	defer rows.Close()

	records := make([]history.Record, 0, limit)
	for rows.Next() {
		record, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run records: %w", err)
	}
	return records, nil
}

func (s *Store) Delete(ctx context.Context, runID string) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM runs WHERE run_id = ?;", runID)
	if err != nil {
		return fmt.Errorf("failed to delete run record: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return history.ErrNotFound
	}
	return nil
}

func (s *Store) Trim(ctx context.Context, keep int) error {
	if keep < 0 {
		keep = 0
	}
	const q = `
DELETE FROM runs
WHERE run_id NOT IN (
  SELECT run_id FROM runs ORDER BY submitted_at DESC LIMIT ?
);
`
	if _, err := s.db.ExecContext(ctx, q, keep); err != nil {
		return fmt.Errorf("failed to trim run records: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanRecord(scan func(dest ...any) error) (history.Record, error) {
	var (
		record       history.Record
		status       string
		submittedRaw string
		completedRaw sql.NullString
	)
	if err := scan(
		&record.RunID,
		&record.LinkedInURL,
		&status,
		&record.Progress,
		&record.Error,
		&submittedRaw,
		&completedRaw,
	); err != nil {
		return history.Record{}, err
	}

	record.Status = types.RunStatus(status)
	submitted, err := parseRequiredTime(submittedRaw)
	if err != nil {
		return history.Record{}, fmt.Errorf("failed to parse submitted_at: %w", err)
	}
	record.SubmittedAt = submitted
	if completedRaw.Valid && strings.TrimSpace(completedRaw.String) != "" {
		completed, err := parseRequiredTime(completedRaw.String)
		if err != nil {
			return history.Record{}, fmt.Errorf("failed to parse completed_at: %w", err)
		}
		record.CompletedAt = &completed
	}
	return record, nil
}

func parseRequiredTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func toNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
