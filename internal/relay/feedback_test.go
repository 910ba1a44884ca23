package relay

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aesp-dev/peer-practice/internal/domain"
)

type stubEvaluator struct {
	feedback string
	err      error
}

func (s *stubEvaluator) Evaluate(ctx context.Context, content, topic, scenario, level string) (string, error) {
	return s.feedback, s.err
}

func testSession() *domain.Session {
	return &domain.Session{
		ID:         "s1",
		Learner1ID: "alice",
		Learner2ID: "bao",
		Topic:      "Travel",
		Scenario:   "At the airport",
		Status:     domain.StatusActive,
		AiEnabled:  true,
	}
}

func TestRequestAiFeedback(t *testing.T) {
	b := NewBroker(4)
	defer b.Close()

	eval := &stubEvaluator{feedback: "Try the past tense here."}
	r := New(b, eval, time.Second, nil)

	session := testSession()
	sub := b.Subscribe(session.AiTopic())

	r.RequestAiFeedback(session, domain.Message{SessionID: "s1", SenderID: "alice", Content: "I goed there"}, domain.LevelBeginner)

	got := recvOne(t, sub)
	if got.Content != "Try the past tense here." {
		t.Errorf("feedback content = %q", got.Content)
	}
	if got.SenderID != domain.AiSenderID || got.SenderName != domain.AiSenderName {
		t.Errorf("feedback sender = %q/%q", got.SenderID, got.SenderName)
	}
	if got.Type != domain.MessageTypeAiFeedback {
		t.Errorf("feedback type = %q", got.Type)
	}
}

func TestRequestAiFeedbackEvaluatorFailure(t *testing.T) {
	b := NewBroker(4)
	defer b.Close()

	eval := &stubEvaluator{err: errors.New("upstream down")}
	r := New(b, eval, time.Second, nil)

	session := testSession()
	sub := b.Subscribe(session.AiTopic())

	r.RequestAiFeedback(session, domain.Message{SessionID: "s1", Content: "hello"}, domain.LevelIntermediate)

	got := recvOne(t, sub)
	if got.Content != FallbackFeedback {
		t.Errorf("expected fallback, got %q", got.Content)
	}

	// Exactly one message per request.
	select {
	case extra := <-sub.C():
		t.Errorf("unexpected second message: %+v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRequestAiFeedbackNilEvaluator(t *testing.T) {
	b := NewBroker(4)
	defer b.Close()

	r := New(b, nil, time.Second, nil)

	session := testSession()
	sub := b.Subscribe(session.AiTopic())

	r.RequestAiFeedback(session, domain.Message{SessionID: "s1", Content: "hello"}, domain.LevelAdvanced)

	if got := recvOne(t, sub); got.Content != FallbackFeedback {
		t.Errorf("expected fallback, got %q", got.Content)
	}
}

func TestCloseSession(t *testing.T) {
	b := NewBroker(4)
	defer b.Close()

	r := New(b, nil, time.Second, nil)
	session := testSession()

	chat := b.Subscribe(session.RelayTopic())
	aiCh := b.Subscribe(session.AiTopic())

	r.CloseSession(session)

	expectClosed(t, chat)
	expectClosed(t, aiCh)

	// A reply landing after teardown vanishes without error.
	b.Publish(session.AiTopic(), domain.NewAiFeedback(session.ID, "late"))
}
