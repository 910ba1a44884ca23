// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/aesp-dev/peer-practice/internal/domain"
)

// ErrNotActive is returned by CompleteSession and CancelSession when the
// session exists but is no longer ACTIVE. It is the idempotency guard for
// concurrent end-session calls: exactly one caller wins the conditional
// update, every later caller observes this error.
var ErrNotActive = errors.New("session is not active")

// Repository defines the interface for persisting learner profiles and
// peer practice sessions. Lookups return (nil, nil) when the record does
// not exist.
type Repository interface {
	// GetLearner retrieves a learner profile by ID.
	GetLearner(ctx context.Context, learnerID string) (*domain.LearnerProfile, error)

	// ListLearners retrieves all learner profiles in stable enumeration order.
	ListLearners(ctx context.Context) ([]*domain.LearnerProfile, error)

	// UpsertLearner creates or updates a learner profile.
	UpsertLearner(ctx context.Context, profile *domain.LearnerProfile) error

	// AddPracticeMinutes credits completed practice time to a learner.
	AddPracticeMinutes(ctx context.Context, learnerID string, minutes int) error

	// CreateSession records a new session. The session keeps its given
	// status; matchmaking always creates sessions as ACTIVE.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// GetActiveSessionForLearner returns the ACTIVE session the learner
	// participates in, as either participant, or nil if none.
	GetActiveSessionForLearner(ctx context.Context, learnerID string) (*domain.Session, error)

	// ListSessionsForLearner returns all sessions the learner participates
	// in, any status, most recent first.
	ListSessionsForLearner(ctx context.Context, learnerID string) ([]*domain.Session, error)

	// CompleteSession transitions an ACTIVE session to COMPLETED with a
	// single conditional update. Returns ErrNotActive if the session was
	// already terminal.
	CompleteSession(ctx context.Context, sessionID string, endTime time.Time, durationMinutes int) error

	// CancelSession transitions an ACTIVE session to CANCELLED. Reserved
	// for partner-disconnect and timeout paths; same guard as CompleteSession.
	CancelSession(ctx context.Context, sessionID string, endTime time.Time) error

	// SetSessionFeedback stores the session-level AI summary.
	SetSessionFeedback(ctx context.Context, sessionID string, feedback string) error

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
