// Package ai provides the language evaluator client used for practice feedback.
package ai

import (
	"context"
	"errors"
)

var (
	// ErrEvaluatorUnavailable wraps transport failures reaching the evaluator.
	ErrEvaluatorUnavailable = errors.New("evaluator unavailable")
	// ErrMalformedResponse wraps responses the client could not interpret.
	ErrMalformedResponse = errors.New("malformed evaluator response")
)

// Evaluator produces free-text feedback for a piece of learner speech or
// writing. Implementations may fail; callers are expected to substitute
// fallback content rather than surface errors to chat participants.
type Evaluator interface {
	Evaluate(ctx context.Context, content, topic, scenario, level string) (string, error)
}
