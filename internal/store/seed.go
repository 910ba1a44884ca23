package store

import (
	"context"
	"fmt"

	"github.com/aesp-dev/peer-practice/internal/domain"
)

// SeedDemoLearners inserts a small set of learner profiles when the directory
// is empty. Development convenience only; production deployments are expected
// to sync profiles from the upstream learner directory.
func SeedDemoLearners(ctx context.Context, repo Repository) (int, error) {
	existing, err := repo.ListLearners(ctx)
	if err != nil {
		return 0, fmt.Errorf("check existing learners: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	demo := []*domain.LearnerProfile{
		{ID: "learner-alice", DisplayName: "Alice Nguyen", Level: domain.LevelIntermediate, Goals: "Conversational fluency for work"},
		{ID: "learner-bao", DisplayName: "Bao Tran", Level: domain.LevelBeginner, Goals: "Everyday small talk"},
		{ID: "learner-chi", DisplayName: "Chi Pham", Level: domain.LevelAdvanced, Goals: "Interview preparation"},
		{ID: "learner-duy", DisplayName: "Duy Le", Level: domain.LevelIntermediate, Goals: "Travel conversations"},
	}

	for _, profile := range demo {
		if err := repo.UpsertLearner(ctx, profile); err != nil {
			return 0, fmt.Errorf("seed learner %s: %w", profile.ID, err)
		}
	}

	return len(demo), nil
}
