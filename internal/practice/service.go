// Package practice implements peer practice matchmaking and session lifecycle.
package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aesp-dev/peer-practice/internal/domain"
	"github.com/aesp-dev/peer-practice/internal/relay"
	"github.com/aesp-dev/peer-practice/internal/store"
	"github.com/google/uuid"
)

// MatchRequest describes what a learner wants to practice.
type MatchRequest struct {
	Topic            string
	Scenario         string
	PreferredLevel   string // optional; requester's own level when empty
	EnableAiFeedback bool
}

// Service owns matchmaking and session lifecycle.
type Service struct {
	repo           store.Repository
	relay          *relay.Relay
	candidateLimit int
	logger         *slog.Logger

	// matchMu serializes match acceptance. Matchmaking is a check-then-create
	// over the shared idle-learner set; running it single-file keeps two
	// concurrent requests from both reserving the same candidate and upholds
	// the one-ACTIVE-session-per-learner invariant.
	matchMu sync.Mutex

	now func() time.Time
}

// NewService creates the practice service.
func NewService(repo store.Repository, rel *relay.Relay, candidateLimit int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if candidateLimit <= 0 {
		candidateLimit = 10
	}
	return &Service{
		repo:           repo,
		relay:          rel,
		candidateLimit: candidateLimit,
		logger:         logger,
		now:            time.Now,
	}
}

// FindMatch pairs the learner with a compatible idle partner and creates an
// ACTIVE session. Candidates are taken in enumeration order; the first
// eligible one wins (no ranking). Returns ErrNoMatchAvailable when the pool
// is empty; callers retry later.
func (s *Service) FindMatch(ctx context.Context, learnerID string, req MatchRequest) (*domain.Session, error) {
	learner, err := s.repo.GetLearner(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("load requester: %w", err)
	}
	if learner == nil {
		return nil, ErrLearnerNotFound
	}
	if !learner.Matchable() {
		return nil, ErrLearnerUnmatchable
	}

	targetLevel := learner.Level
	if req.PreferredLevel != "" {
		parsed, err := domain.ParseLevel(req.PreferredLevel)
		if err != nil {
			return nil, fmt.Errorf("preferred level: %w", err)
		}
		targetLevel = parsed
	}

	s.matchMu.Lock()
	defer s.matchMu.Unlock()

	// Re-checked under the arbiter lock so the check and the session insert
	// are atomic with respect to every other match request.
	if active, err := s.repo.GetActiveSessionForLearner(ctx, learnerID); err != nil {
		return nil, fmt.Errorf("check requester availability: %w", err)
	} else if active != nil {
		return nil, ErrAlreadyInSession
	}

	partner, err := s.selectPartner(ctx, learnerID, targetLevel)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:           uuid.NewString(),
		Learner1ID:   learner.ID,
		Learner1Name: learner.DisplayName,
		Learner2ID:   partner.ID,
		Learner2Name: partner.DisplayName,
		Topic:        req.Topic,
		Scenario:     req.Scenario,
		StartTime:    s.now(),
		Status:       domain.StatusActive,
		AiEnabled:    req.EnableAiFeedback,
	}

	if err := s.repo.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	s.logger.Info("Session matched",
		"session_id", session.ID,
		"learner1_id", session.Learner1ID,
		"learner2_id", session.Learner2ID,
		"topic", session.Topic)

	return session, nil
}

// selectPartner scans learners in enumeration order, shortlists up to
// candidateLimit level-compatible candidates with no ACTIVE session, and
// returns the first. Busy candidates never count against the limit, so a
// long run of compatible-but-busy learners cannot hide an idle one further
// down the enumeration.
func (s *Service) selectPartner(ctx context.Context, requesterID string, target domain.Level) (*domain.LearnerProfile, error) {
	candidates, err := s.repo.ListLearners(ctx)
	if err != nil {
		return nil, fmt.Errorf("list learners: %w", err)
	}

	shortlist := make([]*domain.LearnerProfile, 0, s.candidateLimit)
	for _, candidate := range candidates {
		if candidate.ID == requesterID || !candidate.Matchable() {
			continue
		}
		if !target.CompatibleWith(candidate.Level) {
			continue
		}

		active, err := s.repo.GetActiveSessionForLearner(ctx, candidate.ID)
		if err != nil {
			return nil, fmt.Errorf("check candidate availability: %w", err)
		}
		if active != nil {
			continue
		}

		shortlist = append(shortlist, candidate)
		if len(shortlist) >= s.candidateLimit {
			break
		}
	}

	if len(shortlist) == 0 {
		return nil, ErrNoMatchAvailable
	}
	return shortlist[0], nil
}

// GetActiveSession returns the session where the learner participates with
// status ACTIVE.
func (s *Service) GetActiveSession(ctx context.Context, learnerID string) (*domain.Session, error) {
	session, err := s.repo.GetActiveSessionForLearner(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("get active session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// GetSession returns a session by ID regardless of status.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// GetSessionHistory returns all of a learner's sessions, newest first.
func (s *Service) GetSessionHistory(ctx context.Context, learnerID string) ([]*domain.Session, error) {
	sessions, err := s.repo.ListSessionsForLearner(ctx, learnerID)
	if err != nil {
		return nil, fmt.Errorf("list session history: %w", err)
	}
	return sessions, nil
}

// EndSession transitions an ACTIVE session to COMPLETED, computes its
// duration, credits practice minutes to both participants and closes the
// session's relay topics. The second of two racing end calls observes
// ErrAlreadyTerminal.
func (s *Service) EndSession(ctx context.Context, sessionID, callerLearnerID string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.HasParticipant(callerLearnerID) {
		return ErrForbidden
	}
	if session.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}

	endTime := s.now()
	minutes := session.Duration(endTime)

	if err := s.repo.CompleteSession(ctx, sessionID, endTime, minutes); err != nil {
		if errors.Is(err, store.ErrNotActive) {
			return ErrAlreadyTerminal
		}
		return fmt.Errorf("complete session: %w", err)
	}

	s.creditPracticeMinutes(ctx, session, minutes)
	s.closeRelay(session, "Session ended by a participant.")

	s.logger.Info("Session completed",
		"session_id", sessionID,
		"ended_by", callerLearnerID,
		"duration_minutes", minutes)

	return nil
}

// CancelSession transitions an ACTIVE session to CANCELLED. Reserved for
// partner-disconnect and timeout handling; no HTTP operation drives it yet.
func (s *Service) CancelSession(ctx context.Context, sessionID string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status.IsTerminal() {
		return ErrAlreadyTerminal
	}

	if err := s.repo.CancelSession(ctx, sessionID, s.now()); err != nil {
		if errors.Is(err, store.ErrNotActive) {
			return ErrAlreadyTerminal
		}
		return fmt.Errorf("cancel session: %w", err)
	}

	s.closeRelay(session, "Session was cancelled.")

	s.logger.Info("Session cancelled", "session_id", sessionID)
	return nil
}

// SetSessionFeedback stores a session-level AI summary. Only participants
// may attach one.
func (s *Service) SetSessionFeedback(ctx context.Context, sessionID, callerLearnerID, feedback string) error {
	session, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.HasParticipant(callerLearnerID) {
		return ErrForbidden
	}

	if err := s.repo.SetSessionFeedback(ctx, sessionID, feedback); err != nil {
		return fmt.Errorf("set session feedback: %w", err)
	}
	return nil
}

func (s *Service) creditPracticeMinutes(ctx context.Context, session *domain.Session, minutes int) {
	if minutes <= 0 {
		return
	}
	for _, learnerID := range []string{session.Learner1ID, session.Learner2ID} {
		if err := s.repo.AddPracticeMinutes(ctx, learnerID, minutes); err != nil {
			s.logger.Warn("Failed to credit practice minutes",
				"learner_id", learnerID, "session_id", session.ID, "error", err)
		}
	}
}

func (s *Service) closeRelay(session *domain.Session, notice string) {
	if s.relay == nil {
		return
	}
	s.relay.Publish(session, domain.NewSystem(session.ID, notice))
	s.relay.CloseSession(session)
}
