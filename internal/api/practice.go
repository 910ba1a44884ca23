package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aesp-dev/peer-practice/internal/domain"
	"github.com/aesp-dev/peer-practice/internal/identity"
	"github.com/aesp-dev/peer-practice/internal/practice"
	"github.com/go-chi/chi/v5"
)

// PracticeHandler handles peer practice matchmaking and lifecycle endpoints.
type PracticeHandler struct {
	svc       *practice.Service
	aiEnabled bool
}

// NewPracticeHandler creates a new practice handler.
func NewPracticeHandler(svc *practice.Service, aiEnabled bool) *PracticeHandler {
	return &PracticeHandler{svc: svc, aiEnabled: aiEnabled}
}

// RegisterRoutes registers peer practice routes.
func (h *PracticeHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/v1/peer-practice", func(r chi.Router) {
		r.Post("/find-match", h.FindMatch)
		r.Get("/active", h.GetActiveSession)
		r.Post("/{sessionID}/end", h.EndSession)
		r.Get("/history", h.GetHistory)
	})
	r.Get("/api/v1/config", h.GetConfig)
}

// matchRequest is the find-match request body.
type matchRequest struct {
	Topic            string `json:"topic"`
	Scenario         string `json:"scenario"`
	PreferredLevel   string `json:"preferredLevel,omitempty"`
	EnableAiFeedback *bool  `json:"enableAiFeedback,omitempty"`
}

// sessionResponse is the wire shape for a peer practice session.
type sessionResponse struct {
	ID              string     `json:"id"`
	Learner1ID      string     `json:"learner1Id"`
	Learner1Name    string     `json:"learner1Name"`
	Learner2ID      string     `json:"learner2Id"`
	Learner2Name    string     `json:"learner2Name"`
	Topic           string     `json:"topic"`
	Scenario        string     `json:"scenario"`
	StartTime       time.Time  `json:"startTime"`
	EndTime         *time.Time `json:"endTime,omitempty"`
	DurationMinutes *int       `json:"durationMinutes,omitempty"`
	Status          string     `json:"status"`
	AiFeedback      string     `json:"aiFeedback,omitempty"`
	RelayTopic      string     `json:"relayTopic"`
	AiTopic         string     `json:"aiTopic"`
	WebsocketURL    string     `json:"websocketUrl"`
}

func toSessionResponse(s *domain.Session) sessionResponse {
	return sessionResponse{
		ID:              s.ID,
		Learner1ID:      s.Learner1ID,
		Learner1Name:    s.Learner1Name,
		Learner2ID:      s.Learner2ID,
		Learner2Name:    s.Learner2Name,
		Topic:           s.Topic,
		Scenario:        s.Scenario,
		StartTime:       s.StartTime,
		EndTime:         s.EndTime,
		DurationMinutes: s.DurationMinutes,
		Status:          string(s.Status),
		AiFeedback:      s.AiFeedback,
		RelayTopic:      s.RelayTopic(),
		AiTopic:         s.AiTopic(),
		WebsocketURL:    "/ws/peer-practice/" + s.ID,
	}
}

// FindMatch pairs the caller with an idle compatible partner.
// A pool with no eligible candidate is answered with 404 no_match_available;
// that outcome is transient and retry-eligible, not a server fault.
func (h *PracticeHandler) FindMatch(w http.ResponseWriter, r *http.Request) {
	learnerID := identity.LearnerIDFromContext(r.Context())

	var body matchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	enableAi := h.aiEnabled
	if body.EnableAiFeedback != nil {
		enableAi = *body.EnableAiFeedback && h.aiEnabled
	}

	session, err := h.svc.FindMatch(r.Context(), learnerID, practice.MatchRequest{
		Topic:            body.Topic,
		Scenario:         body.Scenario,
		PreferredLevel:   body.PreferredLevel,
		EnableAiFeedback: enableAi,
	})
	if err != nil {
		h.writeServiceError(w, err, learnerID)
		return
	}

	JSON(w, http.StatusOK, toSessionResponse(session))
}

// GetActiveSession returns the caller's current ACTIVE session.
func (h *PracticeHandler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	learnerID := identity.LearnerIDFromContext(r.Context())

	session, err := h.svc.GetActiveSession(r.Context(), learnerID)
	if err != nil {
		h.writeServiceError(w, err, learnerID)
		return
	}

	JSON(w, http.StatusOK, toSessionResponse(session))
}

// EndSession completes the caller's session.
func (h *PracticeHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	learnerID := identity.LearnerIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")

	if err := h.svc.EndSession(r.Context(), sessionID, learnerID); err != nil {
		h.writeServiceError(w, err, learnerID)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetHistory returns all of the caller's sessions, newest first.
func (h *PracticeHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	learnerID := identity.LearnerIDFromContext(r.Context())

	sessions, err := h.svc.GetSessionHistory(r.Context(), learnerID)
	if err != nil {
		h.writeServiceError(w, err, learnerID)
		return
	}

	responses := make([]sessionResponse, 0, len(sessions))
	for _, s := range sessions {
		responses = append(responses, toSessionResponse(s))
	}

	JSON(w, http.StatusOK, responses)
}

// GetConfig returns the server configuration for the frontend.
func (h *PracticeHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"ai_enabled": h.aiEnabled,
	})
}

func (h *PracticeHandler) writeServiceError(w http.ResponseWriter, err error, learnerID string) {
	switch {
	case errors.Is(err, practice.ErrNoMatchAvailable):
		Error(w, http.StatusNotFound, "no_match_available")
	case errors.Is(err, practice.ErrSessionNotFound), errors.Is(err, practice.ErrLearnerNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, practice.ErrForbidden):
		Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, practice.ErrAlreadyTerminal), errors.Is(err, practice.ErrAlreadyInSession):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, practice.ErrLearnerUnmatchable):
		Error(w, http.StatusUnprocessableEntity, err.Error())
	default:
		slog.Error("Practice request failed", "error", err, "learner_id", learnerID)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}
