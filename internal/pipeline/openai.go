package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pressline/pressline/internal/config"
)

const draftSystemPrompt = `You are a blog writer. Given a topic, write a post about it.
Respond with a JSON object containing exactly two string fields:
"title" and "body". The body is HTML using only p, h2, h3, ul, ol, li,
a, strong and em tags.`

// OpenAIGenerator produces drafts via an OpenAI-compatible chat
// completions endpoint.
type OpenAIGenerator struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

func NewOpenAIGenerator(cfg config.GeneratorConfig) *OpenAIGenerator {
	return &OpenAIGenerator{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), 1),
	}
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (g *OpenAIGenerator) Generate(ctx context.Context, topic string) (*Draft, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	reqBody := chatRequest{
		Model: g.model,
		Messages: []chatMessage{
			{Role: "system", Content: draftSystemPrompt},
			{Role: "user", Content: topic},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling generation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building generation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling generation API: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading generation response: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decoding generation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return nil, fmt.Errorf("generation API returned %d: %s", resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("generation API returned %d", resp.StatusCode)
	}

	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("generation API returned no choices")
	}

	var draft Draft
	content := parsed.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(content), &struct {
		Title *string `json:"title"`
		Body  *string `json:"body"`
	}{&draft.Title, &draft.Body}); err != nil {
		return nil, fmt.Errorf("decoding draft payload: %w", err)
	}

	if draft.Title == "" || draft.Body == "" {
		return nil, fmt.Errorf("generation API returned an incomplete draft for %q", topic)
	}

	return &draft, nil
}
