// Package history records one row per analysis run so trends can be
// reported across runs.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	domainerrors "pyanalyzer/internal/core/errors"
)

const (
	driverName  = "sqlite"
	maxAttempts = 5
	defaultKey  = "default"
)

type Store struct {
	path string
	db   *sql.DB
	mu   sync.Mutex
}

func Open(path string) (*Store, error) {
	cleanPath := strings.TrimSpace(path)
	if cleanPath == "" {
		return nil, domainerrors.New(domainerrors.CodeValidationError, "history path must not be empty")
	}
	if info, err := os.Stat(cleanPath); err == nil && info.IsDir() {
		return nil, domainerrors.New(domainerrors.CodeValidationError,
			fmt.Sprintf("history path %q is a directory, expected file", cleanPath))
	}

	dir := filepath.Dir(cleanPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, domainerrors.Wrap(err, domainerrors.CodeIO, fmt.Sprintf("create history directory %q", dir))
		}
	}

	// busy_timeout + WAL reduce lock conflicts while the watcher saves runs.
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(2000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cleanPath)
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history %q: %w", cleanPath, err)
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite history %q: %w", cleanPath, err)
	}
	if err := EnsureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize sqlite schema %q: %w", cleanPath, err)
	}

	return &Store{path: cleanPath, db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return defaultKey
	}
	return key
}

// SaveRun stores run under contextKey. A second run with the same timestamp
// and commit replaces the first.
func (s *Store) SaveRun(contextKey string, run RunSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contextKey = normalizeKey(contextKey)
	if run.Timestamp.IsZero() {
		run.Timestamp = time.Now().UTC()
	}
	if run.SchemaVersion == 0 {
		run.SchemaVersion = SchemaVersion
	}
	if run.SchemaVersion != SchemaVersion {
		return domainerrors.New(domainerrors.CodeValidationError,
			fmt.Sprintf("unsupported run schema version %d", run.SchemaVersion))
	}

	commitTS := ""
	if !run.CommitTimestamp.IsZero() {
		commitTS = run.CommitTimestamp.UTC().Format(time.RFC3339Nano)
	}

	query := `
INSERT INTO runs (
  context_key, schema_version, ts_utc, commit_hash, commit_ts_utc, language_version,
  document_count, failed_count, token_count, parse_error_count, variable_count, rule_count,
  rule_applications, duration_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(context_key, ts_utc, commit_hash) DO UPDATE SET
  schema_version=excluded.schema_version,
  commit_ts_utc=excluded.commit_ts_utc,
  language_version=excluded.language_version,
  document_count=excluded.document_count,
  failed_count=excluded.failed_count,
  token_count=excluded.token_count,
  parse_error_count=excluded.parse_error_count,
  variable_count=excluded.variable_count,
  rule_count=excluded.rule_count,
  rule_applications=excluded.rule_applications,
  duration_ms=excluded.duration_ms
`
	return s.withRetry("save run", func() error {
		_, err := s.db.Exec(
			query,
			contextKey,
			run.SchemaVersion,
			run.Timestamp.UTC().Format(time.RFC3339Nano),
			run.CommitHash,
			commitTS,
			run.LanguageVersion,
			run.DocumentCount,
			run.FailedCount,
			run.TokenCount,
			run.ParseErrorCount,
			run.VariableCount,
			run.RuleCount,
			run.RuleApplications,
			run.Duration.Milliseconds(),
		)
		return err
	})
}

// LoadRuns returns the runs of contextKey at or after since, oldest first.
// A zero since loads everything.
func (s *Store) LoadRuns(contextKey string, since time.Time) ([]RunSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base := `
SELECT
  schema_version, ts_utc, commit_hash, commit_ts_utc, language_version,
  document_count, failed_count, token_count, parse_error_count, variable_count, rule_count,
  rule_applications, duration_ms
FROM runs
WHERE context_key = ?`
	args := []any{normalizeKey(contextKey)}
	if !since.IsZero() {
		base += " AND ts_utc >= ?"
		args = append(args, since.UTC().Format(time.RFC3339Nano))
	}
	base += " ORDER BY ts_utc ASC, commit_hash ASC"

	var rows *sql.Rows
	err := s.withRetry("load runs", func() error {
		var qErr error
		rows, qErr = s.db.Query(base, args...)
		return qErr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]RunSnapshot, 0)
	for rows.Next() {
		var (
			tsRaw       string
			commitTSRaw string
			durationMs  int64
			run         RunSnapshot
		)
		if err := rows.Scan(
			&run.SchemaVersion,
			&tsRaw,
			&run.CommitHash,
			&commitTSRaw,
			&run.LanguageVersion,
			&run.DocumentCount,
			&run.FailedCount,
			&run.TokenCount,
			&run.ParseErrorCount,
			&run.VariableCount,
			&run.RuleCount,
			&run.RuleApplications,
			&durationMs,
		); err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, tsRaw)
		if err != nil {
			return nil, fmt.Errorf("parse run timestamp %q: %w", tsRaw, err)
		}
		run.Timestamp = ts.UTC()
		run.Duration = time.Duration(durationMs) * time.Millisecond

		if commitTSRaw != "" {
			commitTS, err := time.Parse(time.RFC3339Nano, commitTSRaw)
			if err != nil {
				return nil, fmt.Errorf("parse commit timestamp %q: %w", commitTSRaw, err)
			}
			run.CommitTimestamp = commitTS.UTC()
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return runs, nil
}

func (s *Store) withRetry(op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isLockError(err) || attempt == maxAttempts {
			break
		}
		time.Sleep(time.Duration(attempt*25) * time.Millisecond)
	}
	return fmt.Errorf("%s: %w", op, lastErr)
}

func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "busy")
}

func (s *Store) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

func IsCorruptError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "malformed") || strings.Contains(msg, "not a database") || errors.Is(err, os.ErrInvalid)
}
