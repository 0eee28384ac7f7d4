// Package store persists calls, transcripts, coaching sessions and the raw
// call-control event log in sqlite.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/mrsingh-rishi/callcoach/logger"
	"github.com/mrsingh-rishi/callcoach/model"
	"github.com/mrsingh-rishi/callcoach/trace"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// RequiredTables lists the tables Init creates.
var RequiredTables = []string{"call_logs", "calls", "coaching_sessions", "transcripts"}

const schema = `
CREATE TABLE IF NOT EXISTS calls (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	call_control_id TEXT UNIQUE NOT NULL,
	call_session_id TEXT,
	agent_id TEXT,
	customer_phone TEXT,
	agent_phone TEXT,
	direction TEXT,
	status TEXT NOT NULL DEFAULT 'initiated',
	start_time TEXT,
	end_time TEXT,
	duration INTEGER,
	recording_url TEXT,
	client_state TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_calls_agent ON calls (agent_id, created_at);

CREATE TABLE IF NOT EXISTS transcripts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	call_control_id TEXT NOT NULL,
	transcript_text TEXT NOT NULL,
	confidence REAL,
	language TEXT NOT NULL DEFAULT 'en',
	speaker_labels TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_call ON transcripts (call_control_id);

CREATE TABLE IF NOT EXISTS coaching_sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	call_control_id TEXT NOT NULL,
	agent_id TEXT NOT NULL,
	coaching_content TEXT NOT NULL,
	avatar_script TEXT,
	completed INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_coaching_agent ON coaching_sessions (agent_id, created_at);

CREATE TABLE IF NOT EXISTS call_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	call_control_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_data TEXT,
	timestamp TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_call_logs_call ON call_logs (call_control_id);
`

// Store is a sqlite-backed repository.
type Store struct {
	db     *sql.DB
	now    func() time.Time
	logger *zap.Logger
}

// Open connects to the sqlite database at path. Use ":memory:" for an
// ephemeral database.
func Open(ctx context.Context, path string, l *zap.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open sqlite %s", path)
	}
	// sqlite has a single writer; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping sqlite")
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "set busy timeout")
	}

	return &Store{
		db:     db,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.Or(l).Named("store"),
	}, nil
}

// Init creates missing tables and indexes.
func (s *Store) Init(ctx context.Context) (err error) {
	ctx, span := trace.StartSpan(ctx, "store.init")
	defer func() { trace.End(span, err) }()

	if _, err = s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(err, "create schema")
	}
	s.logger.Info("database tables initialized")
	return nil
}

// Tables reports which required tables exist.
func (s *Store) Tables(ctx context.Context) (model.TableStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name IN (?, ?, ?, ?) ORDER BY name`,
		RequiredTables[0], RequiredTables[1], RequiredTables[2], RequiredTables[3])
	if err != nil {
		return model.TableStatus{}, errors.Wrap(err, "list tables")
	}
	defer rows.Close()

	found := make(map[string]bool)
	status := model.TableStatus{Existing: []string{}, Missing: []string{}}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return model.TableStatus{}, errors.Wrap(err, "scan table name")
		}
		found[name] = true
		status.Existing = append(status.Existing, name)
	}
	if err := rows.Err(); err != nil {
		return model.TableStatus{}, errors.Wrap(err, "list tables")
	}
	for _, name := range RequiredTables {
		if !found[name] {
			status.Missing = append(status.Missing, name)
		}
	}
	return status, nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return errors.Wrap(s.db.PingContext(ctx), "ping sqlite")
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return formatTime(*t)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func parseTime(ns sql.NullString) *time.Time {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, ns.String); err == nil {
			return &t
		}
	}
	return nil
}

func requiredTime(ns sql.NullString) time.Time {
	if t := parseTime(ns); t != nil {
		return *t
	}
	return time.Time{}
}

func nullInt(ni sql.NullInt64) *int {
	if !ni.Valid {
		return nil
	}
	v := int(ni.Int64)
	return &v
}

func nullFloat(nf sql.NullFloat64) *float64 {
	if !nf.Valid {
		return nil
	}
	v := nf.Float64
	return &v
}
