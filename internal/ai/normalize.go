package ai

import (
	"encoding/json"
	"strings"
)

// maxUnstructuredFeedback bounds unstructured evaluator output so oversized
// payloads never reach the relay.
const maxUnstructuredFeedback = 200

// Normalize converts a raw evaluator reply into plain feedback text.
// Structured replies carrying a "feedback" field yield that field verbatim;
// anything else is treated as free text and truncated.
func Normalize(raw string) string {
	text := stripFences(strings.TrimSpace(raw))

	var structured struct {
		Feedback string `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(text), &structured); err == nil && structured.Feedback != "" {
		return strings.TrimSpace(structured.Feedback)
	}

	if runes := []rune(text); len(runes) > maxUnstructuredFeedback {
		return string(runes[:maxUnstructuredFeedback]) + "..."
	}
	return text
}

// stripFences removes a surrounding markdown code fence, which Gemini adds
// around JSON replies despite instructions not to.
func stripFences(text string) string {
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimSpace(strings.TrimPrefix(text, "```json"))
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimSpace(strings.TrimPrefix(text, "```"))
	}
	if strings.HasSuffix(text, "```") {
		text = strings.TrimSpace(strings.TrimSuffix(text, "```"))
	}
	return text
}
