package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/amishk599/jobradar/internal/retry"
)

// fitScoreSchema is the JSON Schema enforced server-side via OpenAI structured outputs.
var fitScoreSchema = map[string]any{
	"type":                 "object",
	"additionalProperties": false,
	"properties": map[string]any{
		"score": map[string]any{
			"type":    "integer",
			"minimum": 1,
			"maximum": 10,
		},
		"why_me": map[string]any{
			"type":     "array",
			"items":    map[string]any{"type": "string"},
			"maxItems": 3,
		},
	},
	"required": []string{"score", "why_me"},
}

// OpenAIProvider calls an OpenAI-compatible /chat/completions endpoint with
// structured outputs.
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
}

// NewOpenAIProvider creates a provider targeting the OpenAI API.
func NewOpenAIProvider(baseURL, apiKey, model string, httpClient *http.Client) *OpenAIProvider {
	return &OpenAIProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: httpClient,
	}
}

type chatRequest struct {
	Model          string         `json:"model"`
	Messages       []chatMessage  `json:"messages"`
	Temperature    int            `json:"temperature"`
	MaxTokens      int            `json:"max_tokens"`
	ResponseFormat responseFormat `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string         `json:"type"`
	JSONSchema jsonSchemaSpec `json:"json_schema"`
}

type jsonSchemaSpec struct {
	Name   string         `json:"name"`
	Schema map[string]any `json:"schema"`
}

type chatResponse struct {
	Choices []chatChoice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type chatChoice struct {
	Message chatMessage `json:"message"`
}

// Complete sends prompt and returns the JSON text of the first choice.
func (p *OpenAIProvider) Complete(ctx context.Context, prompt string) (string, error) {
	reqBody := chatRequest{
		Model: p.model,
		Messages: []chatMessage{
			{Role: "system", Content: "You are a strict, calibrated technical recruiter."},
			{Role: "user", Content: prompt},
		},
		Temperature: 0,
		MaxTokens:   512,
		ResponseFormat: responseFormat{
			Type: "json_schema",
			JSONSchema: jsonSchemaSpec{
				Name:   "fit_score",
				Schema: fitScoreSchema,
			},
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal llm request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create llm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read llm response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", statusError("openai", resp.StatusCode,
			retry.ParseRetryAfter(resp.Header.Get("Retry-After")), truncateDetail(respBytes))
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBytes, &chatResp); err != nil {
		return "", fmt.Errorf("%w: parse llm response: %w", ErrInvalidResponse, err)
	}
	if chatResp.Error != nil {
		return "", fmt.Errorf("%w: llm error (%s): %s", ErrInvalidResponse, chatResp.Error.Type, chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("%w: llm returned no choices", ErrInvalidResponse)
	}

	content := strings.TrimSpace(chatResp.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("%w: llm returned empty content", ErrInvalidResponse)
	}
	return content, nil
}

func truncateDetail(b []byte) string {
	const limit = 300
	s := strings.TrimSpace(string(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
