// Package ws provides the WebSocket endpoint for live peer practice sessions.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/aesp-dev/peer-practice/internal/domain"
	"github.com/aesp-dev/peer-practice/internal/identity"
	"github.com/aesp-dev/peer-practice/internal/practice"
	"github.com/aesp-dev/peer-practice/internal/relay"
	"github.com/aesp-dev/peer-practice/internal/store"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// Handler upgrades participants onto a session's relay topics.
type Handler struct {
	repo          store.Repository
	svc           *practice.Service
	relay         *relay.Relay
	allowedOrigin string
	isDev         bool
}

// NewHandler creates a new WebSocket handler.
func NewHandler(repo store.Repository, svc *practice.Service, rel *relay.Relay, allowedOrigin string, isDev bool) *Handler {
	return &Handler{
		repo:          repo,
		svc:           svc,
		relay:         rel,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// wsEnvelope represents WebSocket message structure from clients.
type wsEnvelope struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
//
//nolint:gocognit // Connection setup must coordinate authorization, relay subscriptions and both pump loops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	learnerID := identity.LearnerIDFromContext(r.Context())
	sessionID := chi.URLParam(r, "sessionID")
	slog.Info("WebSocket connection request", "learner_id", learnerID, "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	session, err := h.svc.GetSession(r.Context(), sessionID)
	if err != nil {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if !session.HasParticipant(learnerID) {
		http.Error(w, "not a session participant", http.StatusForbidden)
		return
	}
	if session.Status.IsTerminal() {
		http.Error(w, "session already ended", http.StatusGone)
		return
	}

	learner, err := h.repo.GetLearner(r.Context(), learnerID)
	if err != nil || learner == nil {
		http.Error(w, "learner not found", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "learner_id", learnerID)
		return
	}
	defer func() {
		if closeErr := conn.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "learner_id", learnerID)
		}
	}()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	chatSub := h.relay.Broker().Subscribe(session.RelayTopic())
	defer chatSub.Close()
	aiSub := h.relay.Broker().Subscribe(session.AiTopic())
	defer aiSub.Close()

	h.relay.Publish(session, domain.NewSystem(session.ID, learner.DisplayName+" joined the session."))
	defer func() {
		// Best effort: the topic may already be gone if the session ended.
		h.relay.Publish(session, domain.NewSystem(session.ID, learner.DisplayName+" left the session."))
	}()

	// Delivery pump: relay topics -> WebSocket.
	go h.deliverLoop(ctx, cancel, conn, chatSub, aiSub, learnerID)

	// Read loop: WebSocket -> relay. Publishing inline from the single read
	// loop preserves FIFO ordering for this sender's messages.
	h.readLoop(ctx, conn, session, learner)
	slog.Info("WebSocket session closed", "learner_id", learnerID, "session_id", sessionID)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

// deliverLoop fans both relay topics out to the socket until the session's
// topics close or the connection drops.
func (h *Handler) deliverLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, chatSub, aiSub *relay.Subscription, learnerID string) {
	defer cancel()

	chat, ai := chatSub.C(), aiSub.C()
	for chat != nil || ai != nil {
		var (
			msg domain.Message
			ok  bool
		)
		select {
		case msg, ok = <-chat:
			if !ok {
				chat = nil
				continue
			}
		case msg, ok = <-ai:
			if !ok {
				ai = nil
				continue
			}
		case <-ctx.Done():
			return
		}

		if err := h.writeJSON(ctx, conn, msg); err != nil {
			slog.Debug("WebSocket write error", "error", err, "learner_id", learnerID)
			return
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, session *domain.Session, learner *domain.LearnerProfile) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed", "learner_id", learner.ID)
			} else {
				slog.Warn("WebSocket read error", "error", err, "learner_id", learner.ID)
			}
			return
		}

		var envelope wsEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			slog.Debug("Ignoring malformed websocket payload", "learner_id", learner.ID)
			continue
		}

		switch envelope.Type {
		case "message":
			h.relay.Publish(session, domain.Message{
				SessionID:  session.ID,
				SenderID:   learner.ID,
				SenderName: learner.DisplayName,
				Content:    envelope.Content,
				Type:       domain.MessageTypeChat,
				Timestamp:  time.Now(),
			})

		case "ai-feedback":
			if !session.AiEnabled {
				slog.Debug("AI feedback requested on session with AI disabled", "session_id", session.ID)
				continue
			}
			// Fire-and-forget: the evaluator round-trip never blocks chat.
			h.relay.RequestAiFeedback(session, domain.Message{
				SessionID:  session.ID,
				SenderID:   learner.ID,
				SenderName: learner.DisplayName,
				Content:    envelope.Content,
				Type:       domain.MessageTypeChat,
				Timestamp:  time.Now(),
			}, learner.Level)

		case "ping":
			if err := h.writeJSON(ctx, conn, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		}
	}
}

func (h *Handler) writeJSON(ctx context.Context, conn *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
