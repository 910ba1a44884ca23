// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string

	// Matchmaking
	CandidateLimit int // max candidates examined per match request

	// Realtime relay
	SubscriberBuffer int // per-subscriber channel buffer before drops

	Gemini GeminiConfig
}

// GeminiConfig controls the AI evaluator client. An empty APIKey disables
// AI feedback entirely; sessions still run without it.
type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		FrontendURL:      getEnv("FRONTEND_URL", ""),
		DBPath:           getEnv("DB_PATH", "./data/peer-practice.db"),
		CandidateLimit:   getEnvInt("MATCH_CANDIDATE_LIMIT", 10),
		SubscriberBuffer: getEnvInt("RELAY_SUBSCRIBER_BUFFER", 64),
		Gemini: GeminiConfig{
			APIKey:  getEnv("GEMINI_API_KEY", ""),
			Model:   getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			BaseURL: getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
			Timeout: getEnvDuration("AI_FEEDBACK_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.CandidateLimit <= 0 {
		return fmt.Errorf("MATCH_CANDIDATE_LIMIT must be > 0")
	}
	if c.SubscriberBuffer <= 0 {
		return fmt.Errorf("RELAY_SUBSCRIBER_BUFFER must be > 0")
	}
	if c.Gemini.Timeout <= 0 {
		return fmt.Errorf("AI_FEEDBACK_TIMEOUT must be > 0")
	}
	if c.Gemini.APIKey != "" && c.Gemini.BaseURL == "" {
		return fmt.Errorf("GEMINI_BASE_URL cannot be empty when GEMINI_API_KEY is set")
	}
	return nil
}

// AiEnabled reports whether the AI evaluator is configured.
func (c *Config) AiEnabled() bool {
	return c.Gemini.APIKey != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
