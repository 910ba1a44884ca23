package practice

import "errors"

var (
	// ErrNoMatchAvailable means no compatible idle partner exists right now.
	// Transient: callers should retry later, this is not a system error.
	ErrNoMatchAvailable = errors.New("no matching partner available")

	// ErrLearnerNotFound means the learner ID does not resolve to a profile.
	ErrLearnerNotFound = errors.New("learner not found")

	// ErrLearnerUnmatchable means the learner has no proficiency level and
	// cannot participate in matching.
	ErrLearnerUnmatchable = errors.New("learner has no level and cannot be matched")

	// ErrAlreadyInSession means the requester already has an ACTIVE session.
	ErrAlreadyInSession = errors.New("learner already has an active session")

	// ErrSessionNotFound means the session does not exist, or the learner has
	// no active session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrForbidden means the caller is not a participant of the session.
	ErrForbidden = errors.New("caller is not a session participant")

	// ErrAlreadyTerminal means the session already reached COMPLETED or
	// CANCELLED. Repeated end calls observe this instead of re-mutating state.
	ErrAlreadyTerminal = errors.New("session is already terminal")
)
