package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aesp-dev/peer-practice/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
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

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS learner_profiles (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		level TEXT,
		goals TEXT,
		total_practice_minutes INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS peer_practice_sessions (
		id TEXT PRIMARY KEY,
		learner1_id TEXT NOT NULL,
		learner2_id TEXT NOT NULL,
		topic TEXT NOT NULL,
		scenario TEXT NOT NULL,
		start_time INTEGER NOT NULL,
		end_time INTEGER,
		duration_minutes INTEGER,
		status TEXT NOT NULL,
		ai_feedback TEXT,
		ai_enabled INTEGER NOT NULL DEFAULT 1,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_learner1 ON peer_practice_sessions(learner1_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_learner2 ON peer_practice_sessions(learner2_id);
	CREATE INDEX IF NOT EXISTS idx_sessions_active ON peer_practice_sessions(status) WHERE status = 'ACTIVE';
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

// GetLearner retrieves a learner profile by ID.
func (s *SQLiteStore) GetLearner(ctx context.Context, learnerID string) (*domain.LearnerProfile, error) {
	query := `
		SELECT id, display_name, level, goals, total_practice_minutes
		FROM learner_profiles WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, learnerID)

	profile, err := scanLearner(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan learner row: %w", err)
	}
	return profile, nil
}

// ListLearners retrieves all learner profiles ordered by ID.
func (s *SQLiteStore) ListLearners(ctx context.Context) ([]*domain.LearnerProfile, error) {
	query := `
		SELECT id, display_name, level, goals, total_practice_minutes
		FROM learner_profiles ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query learners: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close learner rows", "error", closeErr)
		}
	}()

	var profiles []*domain.LearnerProfile
	for rows.Next() {
		profile, err := scanLearner(rows)
		if err != nil {
			return nil, fmt.Errorf("scan learner row: %w", err)
		}
		profiles = append(profiles, profile)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate learners: %w", err)
	}

	return profiles, nil
}

// UpsertLearner creates or updates a learner profile.
func (s *SQLiteStore) UpsertLearner(ctx context.Context, profile *domain.LearnerProfile) error {
	query := `
	INSERT INTO learner_profiles (id, display_name, level, goals, total_practice_minutes, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		display_name = excluded.display_name,
		level = excluded.level,
		goals = excluded.goals,
		updated_at = excluded.updated_at`

	var level interface{}
	if profile.Level != "" {
		level = string(profile.Level)
	}

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, query,
		profile.ID, profile.DisplayName, level, profile.Goals,
		profile.TotalPracticeMinutes, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert learner: %w", err)
	}
	return nil
}

// AddPracticeMinutes credits completed practice time to a learner.
func (s *SQLiteStore) AddPracticeMinutes(ctx context.Context, learnerID string, minutes int) error {
	query := `
		UPDATE learner_profiles
		SET total_practice_minutes = total_practice_minutes + ?, updated_at = ?
		WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, minutes, time.Now().Unix(), learnerID)
	if err != nil {
		return fmt.Errorf("add practice minutes: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("AddPracticeMinutes affected 0 rows", "learner_id", learnerID)
	}

	return nil
}

// CreateSession records a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	query := `
	INSERT INTO peer_practice_sessions (
		id, learner1_id, learner2_id, topic, scenario,
		start_time, end_time, duration_minutes, status, ai_feedback, ai_enabled,
		created_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var endTime, duration interface{}
	if session.EndTime != nil {
		endTime = session.EndTime.Unix()
	}
	if session.DurationMinutes != nil {
		duration = *session.DurationMinutes
	}

	now := time.Now().Unix()
	_, err := s.db.ExecContext(ctx, query,
		session.ID, session.Learner1ID, session.Learner2ID,
		session.Topic, session.Scenario,
		session.StartTime.Unix(), endTime, duration,
		string(session.Status), session.AiFeedback, session.AiEnabled,
		now, now,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, sessionQuery+` WHERE s.id = ?`, sessionID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return session, nil
}

// GetActiveSessionForLearner returns the learner's ACTIVE session, if any.
func (s *SQLiteStore) GetActiveSessionForLearner(ctx context.Context, learnerID string) (*domain.Session, error) {
	query := sessionQuery + `
		WHERE s.status = 'ACTIVE' AND (s.learner1_id = ? OR s.learner2_id = ?)
		LIMIT 1`

	row := s.db.QueryRowContext(ctx, query, learnerID, learnerID)

	session, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan active session row: %w", err)
	}
	return session, nil
}

// ListSessionsForLearner returns all of a learner's sessions, newest first.
func (s *SQLiteStore) ListSessionsForLearner(ctx context.Context, learnerID string) ([]*domain.Session, error) {
	query := sessionQuery + `
		WHERE s.learner1_id = ? OR s.learner2_id = ?
		ORDER BY s.start_time DESC, s.id DESC`

	rows, err := s.db.QueryContext(ctx, query, learnerID, learnerID)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// CompleteSession transitions an ACTIVE session to COMPLETED.
// The status guard in the WHERE clause makes the transition a compare-and-set:
// a second end call after the first one committed affects zero rows.
func (s *SQLiteStore) CompleteSession(ctx context.Context, sessionID string, endTime time.Time, durationMinutes int) error {
	query := `
		UPDATE peer_practice_sessions
		SET status = 'COMPLETED', end_time = ?, duration_minutes = ?, updated_at = ?
		WHERE id = ? AND status = 'ACTIVE'`

	rows, err := s.execWithRetry(ctx, query, endTime.Unix(), durationMinutes, time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("complete session: %w", err)
	}
	if rows == 0 {
		return ErrNotActive
	}

	return nil
}

// CancelSession transitions an ACTIVE session to CANCELLED.
func (s *SQLiteStore) CancelSession(ctx context.Context, sessionID string, endTime time.Time) error {
	query := `
		UPDATE peer_practice_sessions
		SET status = 'CANCELLED', end_time = ?, updated_at = ?
		WHERE id = ? AND status = 'ACTIVE'`

	rows, err := s.execWithRetry(ctx, query, endTime.Unix(), time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	if rows == 0 {
		return ErrNotActive
	}

	return nil
}

// execWithRetry runs a write statement, retrying with exponential backoff on
// SQLITE_BUSY. Both end-session callers may hit the same row at once; the
// retry lets the loser re-run the update and observe zero affected rows.
func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...interface{}) (int64, error) {
	const maxRetries = 3
	baseDelay := 100 * time.Millisecond

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return result.RowsAffected()
		}
		lastErr = err

		if !isSQLiteConflict(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // 100ms, 200ms, 400ms
		slog.Debug("Write failed with SQLITE_BUSY, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	return 0, lastErr
}

// isSQLiteConflict reports whether err is a SQLite concurrency error
// (SQLITE_BUSY or "database is locked"), both of which warrant a retry.
// modernc.org/sqlite surfaces these only through the error text.
func isSQLiteConflict(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// SetSessionFeedback stores the session-level AI summary.
func (s *SQLiteStore) SetSessionFeedback(ctx context.Context, sessionID string, feedback string) error {
	query := `UPDATE peer_practice_sessions SET ai_feedback = ?, updated_at = ? WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, feedback, time.Now().Unix(), sessionID)
	if err != nil {
		return fmt.Errorf("set session feedback: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("SetSessionFeedback affected 0 rows", "session_id", sessionID)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// sessionQuery selects session columns with participant display names joined
// from learner_profiles.
const sessionQuery = `
	SELECT s.id, s.learner1_id, COALESCE(l1.display_name, ''),
	       s.learner2_id, COALESCE(l2.display_name, ''),
	       s.topic, s.scenario, s.start_time, s.end_time, s.duration_minutes,
	       s.status, s.ai_feedback, s.ai_enabled
	FROM peer_practice_sessions s
	LEFT JOIN learner_profiles l1 ON l1.id = s.learner1_id
	LEFT JOIN learner_profiles l2 ON l2.id = s.learner2_id`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLearner(row rowScanner) (*domain.LearnerProfile, error) {
	var profile domain.LearnerProfile
	var level, goals sql.NullString

	if err := row.Scan(&profile.ID, &profile.DisplayName, &level, &goals, &profile.TotalPracticeMinutes); err != nil {
		return nil, err
	}

	profile.Level = domain.Level(level.String)
	profile.Goals = goals.String
	return &profile, nil
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var startTime int64
	var endTime, duration sql.NullInt64
	var status string
	var aiFeedback sql.NullString

	if err := row.Scan(
		&session.ID, &session.Learner1ID, &session.Learner1Name,
		&session.Learner2ID, &session.Learner2Name,
		&session.Topic, &session.Scenario,
		&startTime, &endTime, &duration,
		&status, &aiFeedback, &session.AiEnabled,
	); err != nil {
		return nil, err
	}

	session.StartTime = time.Unix(startTime, 0)
	if endTime.Valid {
		t := time.Unix(endTime.Int64, 0)
		session.EndTime = &t
	}
	if duration.Valid {
		d := int(duration.Int64)
		session.DurationMinutes = &d
	}
	session.Status = domain.SessionStatus(status)
	session.AiFeedback = aiFeedback.String

	return &session, nil
}
