package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/qualifier/internal/model"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC text so that they sort and
// compare correctly inside SQLite.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS lead_sessions (
		user_id TEXT PRIMARY KEY,
		id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'in_progress',
		version TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		updated_at TEXT NOT NULL,
		last_question_id TEXT NOT NULL DEFAULT '',
		question_shown_at TEXT,
		responses TEXT NOT NULL DEFAULT '[]',
		score INTEGER,
		temperature TEXT NOT NULL DEFAULT '',
		breakdown TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_lead_sessions_status ON lead_sessions(status, updated_at);

	CREATE TABLE IF NOT EXISTS store_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

const sessionColumns = `id, user_id, status, version, started_at, completed_at, updated_at,
	last_question_id, question_shown_at, responses, score, breakdown`

// LoadSession returns the session of a user, or model.ErrSessionNotFound.
func (s *Store) LoadSession(ctx context.Context, userID string) (*model.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM lead_sessions WHERE user_id = ?`, userID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session for %s: %w", userID, err)
	}
	return sess, nil
}

// SaveSession inserts or replaces the session of sess.UserID.
func (s *Store) SaveSession(ctx context.Context, sess *model.Session) error {
	responses := sess.Responses
	if responses == nil {
		responses = []model.Response{}
	}
	respJSON, err := json.Marshal(responses)
	if err != nil {
		return fmt.Errorf("encode responses: %w", err)
	}
	var breakdown sql.NullString
	var temperature string
	if sess.ScoreBreakdown != nil {
		b, err := json.Marshal(sess.ScoreBreakdown)
		if err != nil {
			return fmt.Errorf("encode score breakdown: %w", err)
		}
		breakdown = sql.NullString{String: string(b), Valid: true}
		temperature = string(sess.ScoreBreakdown.Temperature)
	}
	var score sql.NullInt64
	if sess.Score != nil {
		score = sql.NullInt64{Int64: int64(*sess.Score), Valid: true}
	}
	updated := sess.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO lead_sessions (user_id, id, status, version, started_at, completed_at, updated_at,
			last_question_id, question_shown_at, responses, score, temperature, breakdown)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
			id = excluded.id,
			status = excluded.status,
			version = excluded.version,
			started_at = excluded.started_at,
			completed_at = excluded.completed_at,
			updated_at = excluded.updated_at,
			last_question_id = excluded.last_question_id,
			question_shown_at = excluded.question_shown_at,
			responses = excluded.responses,
			score = excluded.score,
			temperature = excluded.temperature,
			breakdown = excluded.breakdown`,
		sess.UserID, sess.ID, sess.Status, sess.Version,
		formatTime(sess.StartedAt), formatTimePtr(sess.CompletedAt), formatTime(updated),
		sess.LastQuestionID, formatTimePtr(sess.QuestionShownAt),
		string(respJSON), score, temperature, breakdown,
	)
	if err != nil {
		return fmt.Errorf("save session for %s: %w", sess.UserID, err)
	}
	return nil
}

// ListSessions returns sessions matching the filter, most recently updated first.
func (s *Store) ListSessions(ctx context.Context, f model.SessionFilter) ([]model.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM lead_sessions WHERE 1=1`
	var args []any
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	if f.Temperature != "" {
		query += ` AND temperature = ?`
		args = append(args, f.Temperature)
	}
	query += ` ORDER BY updated_at DESC, user_id`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	return s.querySessions(ctx, query, args...)
}

// ListStale returns in-progress sessions not touched since before.
func (s *Store) ListStale(ctx context.Context, before time.Time) ([]model.Session, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM lead_sessions
		 WHERE status = ? AND updated_at < ? ORDER BY updated_at, user_id`,
		model.StatusInProgress, formatTime(before))
}

// SessionCount returns the number of stored sessions.
func (s *Store) SessionCount(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM lead_sessions`).Scan(&count)
	return count, err
}

func (s *Store) querySessions(ctx context.Context, query string, args ...any) ([]model.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*model.Session, error) {
	var (
		sess             model.Session
		started, updated string
		completed, shown sql.NullString
		respJSON         string
		score            sql.NullInt64
		breakdown        sql.NullString
	)
	err := row.Scan(&sess.ID, &sess.UserID, &sess.Status, &sess.Version, &started, &completed, &updated,
		&sess.LastQuestionID, &shown, &respJSON, &score, &breakdown)
	if err != nil {
		return nil, err
	}
	if sess.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}
	if sess.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	if sess.CompletedAt, err = parseTimePtr(completed); err != nil {
		return nil, err
	}
	if sess.QuestionShownAt, err = parseTimePtr(shown); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(respJSON), &sess.Responses); err != nil {
		return nil, fmt.Errorf("decode responses of %s: %w", sess.UserID, err)
	}
	if score.Valid {
		v := int(score.Int64)
		sess.Score = &v
	}
	if breakdown.Valid {
		var b model.ScoreBreakdown
		if err := json.Unmarshal([]byte(breakdown.String), &b); err != nil {
			return nil, fmt.Errorf("decode score breakdown of %s: %w", sess.UserID, err)
		}
		sess.ScoreBreakdown = &b
	}
	return &sess, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func parseTimePtr(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
