package identity

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/aesp-dev/peer-practice/internal/domain"
	"github.com/aesp-dev/peer-practice/internal/store"
)

func newTestRepo(t *testing.T) store.Repository {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})

	err = repo.UpsertLearner(context.Background(), &domain.LearnerProfile{
		ID:          "alice",
		DisplayName: "Alice",
		Level:       domain.LevelIntermediate,
	})
	if err != nil {
		t.Fatalf("seeding learner: %v", err)
	}
	return repo
}

func TestMiddleware(t *testing.T) {
	repo := newTestRepo(t)

	var gotLearnerID string
	handler := Middleware(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLearnerID = LearnerIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
		wantID     string
	}{
		{"header identity", "alice", "", http.StatusOK, "alice"},
		{"query fallback", "", "alice", http.StatusOK, "alice"},
		{"missing identity", "", "", http.StatusUnauthorized, ""},
		{"unknown learner", "ghost", "", http.StatusUnauthorized, ""},
		{"malformed identity", "no spaces allowed", "", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		gotLearnerID = ""
		target := "/api/v1/peer-practice/active"
		if tt.query != "" {
			target += "?" + LearnerQueryParam + "=" + tt.query
		}
		req := httptest.NewRequest(http.MethodGet, target, nil)
		if tt.header != "" {
			req.Header.Set(LearnerHeaderName, tt.header)
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != tt.wantStatus {
			t.Errorf("%s: status = %d, want %d", tt.name, rec.Code, tt.wantStatus)
		}
		if gotLearnerID != tt.wantID {
			t.Errorf("%s: learner ID = %q, want %q", tt.name, gotLearnerID, tt.wantID)
		}
	}
}

func TestMiddlewareHeaderTrumpsQuery(t *testing.T) {
	repo := newTestRepo(t)
	if err := repo.UpsertLearner(context.Background(), &domain.LearnerProfile{
		ID: "bao", DisplayName: "Bao", Level: domain.LevelBeginner,
	}); err != nil {
		t.Fatalf("seeding learner: %v", err)
	}

	var gotLearnerID string
	handler := Middleware(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotLearnerID = LearnerIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/x?"+LearnerQueryParam+"=bao", nil)
	req.Header.Set(LearnerHeaderName, "alice")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if gotLearnerID != "alice" {
		t.Errorf("learner ID = %q, want header value alice", gotLearnerID)
	}
}

func TestLearnerIDFromContextMissing(t *testing.T) {
	if got := LearnerIDFromContext(context.Background()); got != "" {
		t.Errorf("LearnerIDFromContext on empty context = %q", got)
	}
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.7:5123"
	if got := IPFromRequest(req); got != "203.0.113.7" {
		t.Errorf("IPFromRequest = %q", got)
	}

	req.RemoteAddr = "bare-host"
	if got := IPFromRequest(req); got != "bare-host" {
		t.Errorf("IPFromRequest without port = %q", got)
	}
}
