// Package history keeps a SQLite journal of update checks, updates and
// reverts so the host can show past activity and rate-limit checks.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, WAL-friendly

	"updraft/internal/config"
	apperrors "updraft/internal/errors"
	"updraft/internal/update"
)

// FileName is the default journal file inside the user config directory.
const FileName = "history.db"

// timeLayout is fixed-width UTC so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		kind TEXT NOT NULL,
		from_version TEXT NOT NULL DEFAULT '',
		to_version TEXT NOT NULL DEFAULT '',
		outcome TEXT NOT NULL,
		error_code TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS events_kind_created ON events (kind, created_at);
`

// Event is one journal row.
type Event struct {
	ID          int64     `json:"id" yaml:"id"`
	Kind        string    `json:"kind" yaml:"kind"`
	FromVersion string    `json:"from_version,omitempty" yaml:"from_version,omitempty"`
	ToVersion   string    `json:"to_version,omitempty" yaml:"to_version,omitempty"`
	Outcome     string    `json:"outcome" yaml:"outcome"`
	ErrorCode   string    `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Detail      string    `json:"detail,omitempty" yaml:"detail,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
}

// Store is a journal backed by a single SQLite file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// DefaultPath returns ~/.updraft/history.db.
func DefaultPath() (string, error) {
	dir, err := config.UserDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// buildDSN creates a read-write WAL DSN for the given path.
func buildDSN(dbPath string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(dbPath),
	}
	q := url.Values{}
	q.Set("mode", "rwc")
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(3000)")
	u.RawQuery = q.Encode()
	return u.String()
}

// Open opens (creating if needed) the journal at dbPath.
func Open(ctx context.Context, dbPath string) (*Store, error) {
	trimmed := strings.TrimSpace(dbPath)
	if trimmed == "" {
		return nil, apperrors.New(apperrors.CodeHistoryFailed, "history path is empty", nil)
	}
	//nolint:gosec // G301: User config directory needs standard permissions
	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, apperrors.New(apperrors.CodeHistoryFailed, "create history directory", err)
	}

	db, err := sql.Open("sqlite", buildDSN(trimmed))
	if err != nil {
		return nil, apperrors.New(apperrors.CodeHistoryFailed, "open history db", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, apperrors.New(apperrors.CodeHistoryFailed, fmt.Sprintf("ping history db: %v", err), err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, apperrors.New(apperrors.CodeHistoryFailed, fmt.Sprintf("migrate history db: %v", err), err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record implements update.Recorder.
func (s *Store) Record(ctx context.Context, ev update.Event) error {
	row := Event{
		Kind:        string(ev.Kind),
		FromVersion: ev.FromVersion,
		ToVersion:   ev.ToVersion,
		Outcome:     string(ev.Outcome),
	}
	if ev.Err != nil {
		row.ErrorCode = string(apperrors.CodeOf(ev.Err))
		row.Detail = ev.Err.Error()
	}
	_, err := s.Append(ctx, row)
	return err
}

// Append inserts ev, stamping CreatedAt when unset, and returns the stored row.
func (s *Store) Append(ctx context.Context, ev Event) (Event, error) {
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = s.now()
	}
	ev.CreatedAt = ev.CreatedAt.UTC()

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO events (kind, from_version, to_version, outcome, error_code, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ev.Kind, ev.FromVersion, ev.ToVersion, ev.Outcome, ev.ErrorCode, ev.Detail, ev.CreatedAt.Format(timeLayout))
	if err != nil {
		return Event{}, apperrors.New(apperrors.CodeHistoryFailed, fmt.Sprintf("insert event: %v", err), err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Event{}, apperrors.New(apperrors.CodeHistoryFailed, "read event id", err)
	}
	ev.ID = id
	return ev, nil
}

// Recent returns up to limit events, newest first. A limit <= 0 returns all.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	query := `
		SELECT id, kind, from_version, to_version, outcome, error_code, detail, created_at
		FROM events
		ORDER BY created_at DESC, id DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperrors.New(apperrors.CodeHistoryFailed, fmt.Sprintf("query events: %v", err), err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var events []Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.New(apperrors.CodeHistoryFailed, "iterate events", err)
	}
	return events, nil
}

// LastCheck returns when the last check that reached the source happened.
// Failed checks do not count, so a broken network does not postpone retries.
func (s *Store) LastCheck(ctx context.Context) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT created_at FROM events
		WHERE kind = ? AND outcome != ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, string(update.EventCheck), string(update.OutcomeFailed)).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, apperrors.New(apperrors.CodeHistoryFailed, fmt.Sprintf("query last check: %v", err), err)
	}
	ts, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Time{}, false, apperrors.New(apperrors.CodeHistoryFailed, "parse last check time", err)
	}
	return ts, true, nil
}

// Due reports whether interval has elapsed since the last check.
func (s *Store) Due(ctx context.Context, interval time.Duration) (bool, error) {
	last, ok, err := s.LastCheck(ctx)
	if err != nil || !ok {
		return true, err
	}
	return s.now().Sub(last) >= interval, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (Event, error) {
	var (
		ev  Event
		raw string
	)
	if err := row.Scan(&ev.ID, &ev.Kind, &ev.FromVersion, &ev.ToVersion, &ev.Outcome, &ev.ErrorCode, &ev.Detail, &raw); err != nil {
		return Event{}, apperrors.New(apperrors.CodeHistoryFailed, fmt.Sprintf("scan event: %v", err), err)
	}
	ts, err := time.Parse(timeLayout, raw)
	if err != nil {
		return Event{}, apperrors.New(apperrors.CodeHistoryFailed, fmt.Sprintf("parse event time %q", raw), err)
	}
	ev.CreatedAt = ts
	return ev, nil
}
