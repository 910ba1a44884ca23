package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/aesp-dev/peer-practice/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() {
		if err := repo.Close(); err != nil {
			t.Errorf("closing store: %v", err)
		}
	})
	return repo
}

func seedLearner(t *testing.T, repo Repository, id string, level domain.Level) {
	t.Helper()
	err := repo.UpsertLearner(context.Background(), &domain.LearnerProfile{
		ID:          id,
		DisplayName: "Learner " + id,
		Level:       level,
	})
	if err != nil {
		t.Fatalf("seeding learner %s: %v", id, err)
	}
}

func TestLearnerRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	profile := &domain.LearnerProfile{
		ID:          "alice",
		DisplayName: "Alice",
		Level:       domain.LevelIntermediate,
		Goals:       "conversational fluency",
	}
	if err := repo.UpsertLearner(ctx, profile); err != nil {
		t.Fatalf("UpsertLearner failed: %v", err)
	}

	got, err := repo.GetLearner(ctx, "alice")
	if err != nil {
		t.Fatalf("GetLearner failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected learner, got nil")
	}
	if got.DisplayName != "Alice" || got.Level != domain.LevelIntermediate || got.Goals != "conversational fluency" {
		t.Errorf("unexpected learner: %+v", got)
	}

	// Upsert updates in place.
	profile.DisplayName = "Alice B."
	profile.Level = domain.LevelAdvanced
	if err := repo.UpsertLearner(ctx, profile); err != nil {
		t.Fatalf("second UpsertLearner failed: %v", err)
	}
	got, err = repo.GetLearner(ctx, "alice")
	if err != nil {
		t.Fatalf("GetLearner after update failed: %v", err)
	}
	if got.DisplayName != "Alice B." || got.Level != domain.LevelAdvanced {
		t.Errorf("update not applied: %+v", got)
	}
}

func TestGetLearnerMissing(t *testing.T) {
	repo := newTestStore(t)

	got, err := repo.GetLearner(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetLearner failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing learner, got %+v", got)
	}
}

func TestListLearnersOrder(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedLearner(t, repo, "chi", domain.LevelAdvanced)
	seedLearner(t, repo, "alice", domain.LevelBeginner)
	seedLearner(t, repo, "bao", domain.LevelIntermediate)

	learners, err := repo.ListLearners(ctx)
	if err != nil {
		t.Fatalf("ListLearners failed: %v", err)
	}
	if len(learners) != 3 {
		t.Fatalf("expected 3 learners, got %d", len(learners))
	}
	for i, want := range []string{"alice", "bao", "chi"} {
		if learners[i].ID != want {
			t.Errorf("learners[%d].ID = %q, want %q", i, learners[i].ID, want)
		}
	}
}

func TestAddPracticeMinutes(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedLearner(t, repo, "alice", domain.LevelBeginner)

	if err := repo.AddPracticeMinutes(ctx, "alice", 12); err != nil {
		t.Fatalf("AddPracticeMinutes failed: %v", err)
	}
	if err := repo.AddPracticeMinutes(ctx, "alice", 8); err != nil {
		t.Fatalf("second AddPracticeMinutes failed: %v", err)
	}

	got, err := repo.GetLearner(ctx, "alice")
	if err != nil {
		t.Fatalf("GetLearner failed: %v", err)
	}
	if got.TotalPracticeMinutes != 20 {
		t.Errorf("TotalPracticeMinutes = %d, want 20", got.TotalPracticeMinutes)
	}

	// Crediting an unknown learner is logged, not an error.
	if err := repo.AddPracticeMinutes(ctx, "nobody", 5); err != nil {
		t.Errorf("AddPracticeMinutes for missing learner: %v", err)
	}
}

func newSession(id, l1, l2 string, start time.Time) *domain.Session {
	return &domain.Session{
		ID:         id,
		Learner1ID: l1,
		Learner2ID: l2,
		Topic:      "Travel",
		Scenario:   "At the airport",
		StartTime:  start,
		Status:     domain.StatusActive,
		AiEnabled:  true,
	}
}

func TestSessionRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedLearner(t, repo, "alice", domain.LevelBeginner)
	seedLearner(t, repo, "bao", domain.LevelIntermediate)

	start := time.Now().Truncate(time.Second)
	if err := repo.CreateSession(ctx, newSession("s1", "alice", "bao", start)); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session, got nil")
	}
	if got.Learner1Name != "Learner alice" || got.Learner2Name != "Learner bao" {
		t.Errorf("participant names not joined: %q, %q", got.Learner1Name, got.Learner2Name)
	}
	if got.Status != domain.StatusActive {
		t.Errorf("Status = %q", got.Status)
	}
	if !got.StartTime.Equal(start) {
		t.Errorf("StartTime = %v, want %v", got.StartTime, start)
	}
	if got.EndTime != nil || got.DurationMinutes != nil {
		t.Errorf("new session should have no end time or duration: %+v", got)
	}
	if !got.AiEnabled {
		t.Error("AiEnabled not persisted")
	}
}

func TestGetSessionMissing(t *testing.T) {
	repo := newTestStore(t)

	got, err := repo.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing session, got %+v", got)
	}
}

func TestGetActiveSessionForLearner(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedLearner(t, repo, "alice", domain.LevelBeginner)
	seedLearner(t, repo, "bao", domain.LevelIntermediate)

	if got, err := repo.GetActiveSessionForLearner(ctx, "alice"); err != nil || got != nil {
		t.Fatalf("expected no active session, got %+v, err %v", got, err)
	}

	start := time.Now()
	if err := repo.CreateSession(ctx, newSession("s1", "alice", "bao", start)); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	// Both participants see the same active session.
	for _, id := range []string{"alice", "bao"} {
		got, err := repo.GetActiveSessionForLearner(ctx, id)
		if err != nil {
			t.Fatalf("GetActiveSessionForLearner(%s) failed: %v", id, err)
		}
		if got == nil || got.ID != "s1" {
			t.Errorf("GetActiveSessionForLearner(%s) = %+v", id, got)
		}
	}

	if err := repo.CompleteSession(ctx, "s1", start.Add(10*time.Minute), 10); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	if got, err := repo.GetActiveSessionForLearner(ctx, "alice"); err != nil || got != nil {
		t.Errorf("completed session still reported active: %+v, err %v", got, err)
	}
}

func TestCompleteSessionIdempotencyGuard(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedLearner(t, repo, "alice", domain.LevelBeginner)
	seedLearner(t, repo, "bao", domain.LevelIntermediate)

	start := time.Now()
	if err := repo.CreateSession(ctx, newSession("s1", "alice", "bao", start)); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	end := start.Add(15 * time.Minute)
	if err := repo.CompleteSession(ctx, "s1", end, 15); err != nil {
		t.Fatalf("first CompleteSession failed: %v", err)
	}

	// Second completion loses the conditional update.
	if err := repo.CompleteSession(ctx, "s1", end.Add(time.Minute), 16); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}

	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Errorf("Status = %q", got.Status)
	}
	if got.DurationMinutes == nil || *got.DurationMinutes != 15 {
		t.Errorf("first writer's duration must stand: %+v", got.DurationMinutes)
	}

	// A missing session reports the same guard error.
	if err := repo.CompleteSession(ctx, "absent", end, 1); !errors.Is(err, ErrNotActive) {
		t.Errorf("expected ErrNotActive for missing session, got %v", err)
	}
}

func TestCancelSession(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedLearner(t, repo, "alice", domain.LevelBeginner)
	seedLearner(t, repo, "bao", domain.LevelIntermediate)

	start := time.Now()
	if err := repo.CreateSession(ctx, newSession("s1", "alice", "bao", start)); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := repo.CancelSession(ctx, "s1", start.Add(time.Minute)); err != nil {
		t.Fatalf("CancelSession failed: %v", err)
	}
	if err := repo.CancelSession(ctx, "s1", start.Add(2*time.Minute)); !errors.Is(err, ErrNotActive) {
		t.Fatalf("expected ErrNotActive, got %v", err)
	}

	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.Status != domain.StatusCancelled {
		t.Errorf("Status = %q", got.Status)
	}
}

func TestListSessionsForLearnerOrder(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedLearner(t, repo, "alice", domain.LevelBeginner)
	seedLearner(t, repo, "bao", domain.LevelIntermediate)
	seedLearner(t, repo, "chi", domain.LevelIntermediate)

	base := time.Now().Add(-time.Hour)
	if err := repo.CreateSession(ctx, newSession("old", "alice", "bao", base)); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := repo.CompleteSession(ctx, "old", base.Add(10*time.Minute), 10); err != nil {
		t.Fatalf("CompleteSession failed: %v", err)
	}
	if err := repo.CreateSession(ctx, newSession("new", "chi", "alice", base.Add(30*time.Minute))); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	sessions, err := repo.ListSessionsForLearner(ctx, "alice")
	if err != nil {
		t.Fatalf("ListSessionsForLearner failed: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if sessions[0].ID != "new" || sessions[1].ID != "old" {
		t.Errorf("wrong order: %q, %q", sessions[0].ID, sessions[1].ID)
	}

	// A non-participant sees nothing.
	none, err := repo.ListSessionsForLearner(ctx, "bao-2")
	if err != nil {
		t.Fatalf("ListSessionsForLearner failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("expected empty history, got %d sessions", len(none))
	}
}

func TestSetSessionFeedback(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	seedLearner(t, repo, "alice", domain.LevelBeginner)
	seedLearner(t, repo, "bao", domain.LevelIntermediate)

	if err := repo.CreateSession(ctx, newSession("s1", "alice", "bao", time.Now())); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if err := repo.SetSessionFeedback(ctx, "s1", "Great work on phrasal verbs."); err != nil {
		t.Fatalf("SetSessionFeedback failed: %v", err)
	}

	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got.AiFeedback != "Great work on phrasal verbs." {
		t.Errorf("AiFeedback = %q", got.AiFeedback)
	}
}

func TestIsSQLiteConflict(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("SQLITE_BUSY (5): database table is locked"), true},
		{errors.New("database is locked"), true},
		{errors.New("UNIQUE constraint failed"), false},
	}

	for _, tt := range tests {
		if got := isSQLiteConflict(tt.err); got != tt.want {
			t.Errorf("isSQLiteConflict(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}
