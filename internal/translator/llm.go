package translator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/language"

	"github.com/domus-magna/chinaxiv-english-sub001/internal/papers"
)

// Config holds the settings for the chat-completions backend.
type Config struct {
	APIKey      string
	APIURL      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     int // seconds
	Source      language.Tag
	Target      language.Tag
}

func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("api key is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("api url is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	return nil
}

// LLMTranslator translates papers through an OpenAI-compatible
// chat-completions API. Thread-safe for concurrent use.
type LLMTranslator struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
}

func NewLLMTranslator(config *Config) (*LLMTranslator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 120
	}
	return &LLMTranslator{
		config:  config,
		baseURL: strings.TrimRight(config.APIURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Duration(timeout) * time.Second,
		},
	}, nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type translationPayload struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
}

func (t *LLMTranslator) Translate(ctx context.Context, paper papers.Paper) (*TranslatedPaper, error) {
	source := t.config.Source
	if source == language.Und {
		source = language.Chinese
	}
	target := t.config.Target
	if target == language.Und {
		target = language.English
	}

	systemPrompt := fmt.Sprintf(
		"You are a scientific translator. Translate the title and abstract of a preprint from %s to %s. "+
			"Preserve formulas, citations and technical notation verbatim. "+
			`Respond with only a JSON object: {"title": "...", "abstract": "..."}.`,
		source, target)

	userMessage := fmt.Sprintf("Title: %s\n\nAbstract: %s", paper.Title, paper.Abstract)

	request := chatRequest{
		Model: t.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		MaxTokens:   t.config.MaxTokens,
		Temperature: t.config.Temperature,
	}

	response, err := t.makeRequest(ctx, request)
	if err != nil {
		return nil, err
	}
	if response.Error != nil {
		return nil, fmt.Errorf("api error: %s", response.Error.Message)
	}
	if len(response.Choices) == 0 {
		return nil, fmt.Errorf("empty response from model")
	}

	var payload translationPayload
	content := stripCodeFences(response.Choices[0].Message.Content)
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("parse model output: %w", err)
	}
	if strings.TrimSpace(payload.Title) == "" || strings.TrimSpace(payload.Abstract) == "" {
		return nil, fmt.Errorf("model output missing title or abstract")
	}

	return &TranslatedPaper{
		PaperID:      paper.ID,
		Title:        strings.TrimSpace(payload.Title),
		Abstract:     strings.TrimSpace(payload.Abstract),
		Model:        t.config.Model,
		TranslatedAt: time.Now().UTC(),
	}, nil
}

func (t *LLMTranslator) makeRequest(ctx context.Context, request chatRequest) (*chatResponse, error) {
	body, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.config.APIKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("api returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var response chatResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

// stripCodeFences removes a surrounding markdown code block some models wrap
// JSON output in.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
