// Package domain contains core domain types for the peer-practice service.
package domain

import (
	"fmt"
	"strings"
)

// Level is a coarse CEFR-style proficiency band used for matching.
type Level string

const (
	LevelBeginner     Level = "BEGINNER"
	LevelIntermediate Level = "INTERMEDIATE"
	LevelAdvanced     Level = "ADVANCED"
)

// ParseLevel parses a level string, case-insensitively.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelBeginner:
		return LevelBeginner, nil
	case LevelIntermediate:
		return LevelIntermediate, nil
	case LevelAdvanced:
		return LevelAdvanced, nil
	default:
		return "", fmt.Errorf("unknown level %q", s)
	}
}

// CompatibleWith reports whether a candidate at level c is an acceptable
// partner for a target level t. Bands match themselves and their adjacent
// neighbours, so the matching pool stays non-empty under population skew.
func (t Level) CompatibleWith(c Level) bool {
	if c == "" {
		return false
	}
	if t == c {
		return true
	}
	switch t {
	case LevelBeginner:
		return c == LevelIntermediate
	case LevelIntermediate:
		return c == LevelBeginner || c == LevelAdvanced
	case LevelAdvanced:
		return c == LevelIntermediate
	}
	return false
}

// LearnerProfile describes a learner as seen by the matchmaking engine.
type LearnerProfile struct {
	ID                   string `json:"id"`
	DisplayName          string `json:"display_name"`
	Level                Level  `json:"level"`
	Goals                string `json:"goals,omitempty"`
	TotalPracticeMinutes int    `json:"total_practice_minutes"`
}

// Matchable reports whether the learner can participate in matching.
// A learner with no level band is unmatchable.
func (p *LearnerProfile) Matchable() bool {
	return p.Level != ""
}
