// Package identity resolves the pre-authenticated learner behind a request.
//
// Authentication and authorization happen upstream; by the time a request
// reaches this service a learner identity has already been established. The
// middleware here only extracts that identity, checks it resolves to a known
// learner profile, and makes it available on the request context.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/aesp-dev/peer-practice/internal/store"
)

const (
	// LearnerHeaderName carries the authenticated learner ID set by the
	// upstream gateway.
	LearnerHeaderName = "X-Learner-ID"
	// LearnerQueryParam is the websocket fallback, since browsers cannot set
	// headers on websocket upgrades.
	LearnerQueryParam = "learner_id"
)

type contextKey int

const learnerIDKey contextKey = iota

var learnerIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// LearnerIDFromContext extracts the learner ID from the request context.
func LearnerIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(learnerIDKey).(string); ok {
		return v
	}
	return ""
}

// WithLearnerID returns a context carrying the learner ID. Exported for tests.
func WithLearnerID(ctx context.Context, learnerID string) context.Context {
	return context.WithValue(ctx, learnerIDKey, learnerID)
}

func learnerIDFromRequest(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(LearnerHeaderName))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get(LearnerQueryParam))
	}
	if !learnerIDPattern.MatchString(id) {
		return ""
	}
	return id
}

// Middleware resolves the learner identity on each request and rejects
// requests whose identity does not map to a known learner profile.
func Middleware(repo store.Repository) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			learnerID := learnerIDFromRequest(r)
			if learnerID == "" {
				http.Error(w, `{"error":"missing learner identity"}`, http.StatusUnauthorized)
				return
			}

			learner, err := repo.GetLearner(r.Context(), learnerID)
			if err != nil {
				http.Error(w, `{"error":"failed to resolve learner identity"}`, http.StatusInternalServerError)
				return
			}
			if learner == nil {
				http.Error(w, `{"error":"unknown learner"}`, http.StatusUnauthorized)
				return
			}

			ctx := WithLearnerID(r.Context(), learnerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
