package domain

import (
	"time"
)

// SessionStatus is the lifecycle state of a peer practice session.
type SessionStatus string

const (
	StatusActive    SessionStatus = "ACTIVE"
	StatusCompleted SessionStatus = "COMPLETED"
	StatusCancelled SessionStatus = "CANCELLED"
)

// IsTerminal reports whether no further status transitions are permitted.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Session is a live or historical peer practice session between two learners.
// Participants are immutable after creation; only status, endTime, duration
// and the AI summary are mutated, and only by the lifecycle manager.
type Session struct {
	ID              string        `json:"id"`
	Learner1ID      string        `json:"learner1Id"`
	Learner1Name    string        `json:"learner1Name"`
	Learner2ID      string        `json:"learner2Id"`
	Learner2Name    string        `json:"learner2Name"`
	Topic           string        `json:"topic"`
	Scenario        string        `json:"scenario"`
	StartTime       time.Time     `json:"startTime"`
	EndTime         *time.Time    `json:"endTime,omitempty"`
	DurationMinutes *int          `json:"durationMinutes,omitempty"`
	Status          SessionStatus `json:"status"`
	AiFeedback      string        `json:"aiFeedback,omitempty"`
	AiEnabled       bool          `json:"aiEnabled"`
}

// HasParticipant reports whether the learner participates in the session.
// Lifecycle operations evaluate this once, up front, as their capability check.
func (s *Session) HasParticipant(learnerID string) bool {
	return learnerID != "" && (s.Learner1ID == learnerID || s.Learner2ID == learnerID)
}

// RelayTopic is the pub/sub topic carrying the session's chat messages.
func (s *Session) RelayTopic() string {
	return "session/" + s.ID
}

// AiTopic is the side-channel topic carrying asynchronous AI feedback,
// kept separate so chat flow never waits on the evaluator.
func (s *Session) AiTopic() string {
	return "session/" + s.ID + "/ai"
}

// Duration returns the elapsed session time in whole minutes, clamped to >= 0.
func (s *Session) Duration(endedAt time.Time) int {
	minutes := int(endedAt.Sub(s.StartTime).Round(time.Minute).Minutes())
	if minutes < 0 {
		return 0
	}
	return minutes
}
