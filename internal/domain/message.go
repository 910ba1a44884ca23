package domain

import (
	"time"
)

// MessageType discriminates relay payloads.
type MessageType string

const (
	MessageTypeChat       MessageType = "message"
	MessageTypeAiFeedback MessageType = "ai-feedback"
	MessageTypeSystem     MessageType = "system"
)

// AiSenderID is the reserved sender identifier for AI-originated messages.
const AiSenderID = "0"

// AiSenderName is the display name attached to AI-originated messages.
const AiSenderName = "AI Assistant"

// SystemSenderID identifies service-originated notices, distinct from the
// AI sender so subscribers can tell the two apart by senderId.
const SystemSenderID = "system"

// SystemSenderName is the display name attached to service notices.
const SystemSenderName = "System"

// Message is a transient chat or feedback payload relayed within a session.
// Messages carry no sequence number; ordering is arrival order per topic,
// FIFO per sender only.
type Message struct {
	SessionID  string      `json:"sessionId"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	Content    string      `json:"content"`
	Type       MessageType `json:"type"`
	Timestamp  time.Time   `json:"timestamp"`
}

// NewAiFeedback builds an AI side-channel message for a session.
func NewAiFeedback(sessionID, content string) Message {
	return Message{
		SessionID:  sessionID,
		SenderID:   AiSenderID,
		SenderName: AiSenderName,
		Content:    content,
		Type:       MessageTypeAiFeedback,
		Timestamp:  time.Now(),
	}
}

// NewSystem builds a system notice for a session's chat topic.
func NewSystem(sessionID, content string) Message {
	return Message{
		SessionID:  sessionID,
		SenderID:   SystemSenderID,
		SenderName: SystemSenderName,
		Content:    content,
		Type:       MessageTypeSystem,
		Timestamp:  time.Now(),
	}
}
