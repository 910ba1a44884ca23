package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/aesp-dev/peer-practice/internal/ai"
	"github.com/aesp-dev/peer-practice/internal/domain"
)

// FallbackFeedback is published on the AI side-channel whenever the
// evaluator fails, so participants always see a reply to a feedback request.
const FallbackFeedback = "AI feedback temporarily unavailable. Please try again."

// Relay couples the broker with the asynchronous AI feedback side-channel.
type Relay struct {
	broker    *Broker
	evaluator ai.Evaluator
	timeout   time.Duration
	logger    *slog.Logger
}

// New creates a relay. evaluator may be nil when AI feedback is disabled;
// feedback requests then publish the fallback text immediately.
func New(broker *Broker, evaluator ai.Evaluator, timeout time.Duration, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Relay{
		broker:    broker,
		evaluator: evaluator,
		timeout:   timeout,
		logger:    logger,
	}
}

// Broker exposes the underlying broker for subscription management.
func (r *Relay) Broker() *Broker {
	return r.broker
}

// Publish fans a chat message out to the session's chat topic.
func (r *Relay) Publish(session *domain.Session, msg domain.Message) {
	r.broker.Publish(session.RelayTopic(), msg)
}

// RequestAiFeedback asks the evaluator for feedback on a message and
// publishes the result on the session's AI side-channel. The call returns
// immediately; the round-trip runs detached with a bounded timeout, and any
// evaluator failure is absorbed into the fallback message. A reply arriving
// after the session's topics were closed is dropped by the broker.
func (r *Relay) RequestAiFeedback(session *domain.Session, msg domain.Message, level domain.Level) {
	sessionID := session.ID
	aiTopic := session.AiTopic()
	topic, scenario := session.Topic, session.Scenario

	go func() {
		content := FallbackFeedback
		if r.evaluator != nil {
			ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
			defer cancel()

			feedback, err := r.evaluator.Evaluate(ctx, msg.Content, topic, scenario, string(level))
			if err != nil {
				r.logger.Warn("AI feedback failed, publishing fallback",
					"session_id", sessionID, "error", err)
			} else {
				content = feedback
			}
		}

		r.broker.Publish(aiTopic, domain.NewAiFeedback(sessionID, content))
	}()
}

// CloseSession tears down both of a session's topics. Called once the
// session reaches a terminal state.
func (r *Relay) CloseSession(session *domain.Session) {
	r.broker.CloseTopic(session.RelayTopic())
	r.broker.CloseTopic(session.AiTopic())
}
