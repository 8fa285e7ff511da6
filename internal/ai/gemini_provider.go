package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// generateFunc matches genai's Models.GenerateContent so tests can swap it.
type generateFunc func(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)

// GeminiProvider calls the Gemini API through the GenAI SDK, asking for a
// JSON reply that matches the fit schema.
type GeminiProvider struct {
	generate generateFunc
	model    string
	config   *genai.GenerateContentConfig
}

// NewGeminiProvider creates a provider for the Gemini API backend.
func NewGeminiProvider(ctx context.Context, apiKey, model string) (*GeminiProvider, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return newGeminiProvider(client.Models.GenerateContent, model), nil
}

func newGeminiProvider(generate generateFunc, model string) *GeminiProvider {
	return &GeminiProvider{
		generate: generate,
		model:    model,
		config: &genai.GenerateContentConfig{
			Temperature:      genai.Ptr(float32(0)),
			ResponseMIMEType: "application/json",
			ResponseSchema: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"score":  {Type: genai.TypeInteger},
					"why_me": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				},
				Required: []string{"score", "why_me"},
			},
		},
	}
}

// Complete sends prompt to Gemini and returns the concatenated text parts.
func (p *GeminiProvider) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := p.generate(ctx, p.model, genai.Text(prompt), p.config)
	if err != nil {
		return "", mapGeminiError(err)
	}

	var builder strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil || part.Thought {
					continue
				}
				builder.WriteString(part.Text)
			}
			// Only the first candidate is the answer.
			break
		}
	}

	output := strings.TrimSpace(builder.String())
	if output == "" {
		return "", fmt.Errorf("%w: gemini returned empty response", ErrInvalidResponse)
	}
	return output, nil
}

// mapGeminiError converts SDK API errors to the same taxonomy the OpenAI
// provider uses.
func mapGeminiError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return statusError("gemini", apiErr.Code, 0, apiErr.Message)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return statusError("gemini", apiErrPtr.Code, 0, apiErrPtr.Message)
	}
	return fmt.Errorf("generate content: %w", err)
}
