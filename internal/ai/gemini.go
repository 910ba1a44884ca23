package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// GeminiClient calls the Gemini generateContent REST API.
type GeminiClient struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// GeminiConfig holds configuration for the Gemini client.
type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// DefaultGeminiConfig returns default configuration.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		BaseURL: "https://generativelanguage.googleapis.com",
		Model:   "gemini-1.5-flash",
		Timeout: 30 * time.Second,
	}
}

// NewGeminiClient creates a new Gemini evaluator client.
func NewGeminiClient(cfg GeminiConfig, logger *slog.Logger) (*GeminiClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is not configured")
	}

	def := DefaultGeminiConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	logger.Info("Gemini evaluator initialized", "model", cfg.Model)

	return &GeminiClient{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

type geminiRequest struct {
	Contents         []geminiContent  `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopK            int     `json:"topK"`
	TopP            float64 `json:"topP"`
	MaxOutputTokens int     `json:"maxOutputTokens"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Evaluate sends learner content to Gemini and returns normalized feedback text.
func (c *GeminiClient) Evaluate(ctx context.Context, content, topic, scenario, level string) (string, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{
			{Parts: []geminiPart{{Text: buildEvaluationPrompt(content, topic, scenario, level)}}},
		},
		GenerationConfig: generationConfig{
			Temperature:     0.7,
			TopK:            40,
			TopP:            0.95,
			MaxOutputTokens: 3000,
		},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal evaluator request: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s", c.baseURL, c.model, c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build evaluator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("Evaluating content", "topic", topic, "level", level)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEvaluatorUnavailable, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Debug("failed to close evaluator response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrEvaluatorUnavailable, err)
	}

	var parsed geminiResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := "unknown error"
		if parsed.Error != nil && parsed.Error.Message != "" {
			msg = parsed.Error.Message
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrEvaluatorUnavailable, resp.StatusCode, msg)
	}

	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrMalformedResponse)
	}

	text := strings.TrimSpace(parsed.Candidates[0].Content.Parts[0].Text)
	if text == "" {
		return "", fmt.Errorf("%w: empty candidate text", ErrMalformedResponse)
	}

	return Normalize(text), nil
}

func buildEvaluationPrompt(content, topic, scenario, level string) string {
	return fmt.Sprintf(`You are an English speaking coach giving brief, encouraging feedback during a live peer practice conversation.

Level: %s
Topic: %s
Scenario: %s

Learner's message:
%q

Point out one or two concrete improvements (grammar, word choice, or phrasing) and suggest a corrected version. Keep it short and conversational. Respond either with plain text, or with JSON of the form {"feedback": "..."}.`,
		level, topic, scenario, content)
}
