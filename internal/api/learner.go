package api

import (
	"net/http"

	"github.com/aesp-dev/peer-practice/internal/identity"
	"github.com/aesp-dev/peer-practice/internal/store"
	"github.com/go-chi/chi/v5"
)

// LearnerHandler handles learner profile endpoints.
type LearnerHandler struct {
	repo store.Repository
}

// NewLearnerHandler creates a new learner handler.
func NewLearnerHandler(repo store.Repository) *LearnerHandler {
	return &LearnerHandler{repo: repo}
}

// RegisterRoutes registers learner routes.
func (h *LearnerHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/v1/learners/me", h.GetMe)
}

// GetMe returns the caller's learner profile.
func (h *LearnerHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	learnerID := identity.LearnerIDFromContext(r.Context())
	if learnerID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	learner, err := h.repo.GetLearner(r.Context(), learnerID)
	if err != nil || learner == nil {
		Error(w, http.StatusUnauthorized, "learner not found")
		return
	}

	JSON(w, http.StatusOK, learner)
}
