package provider

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// GeminiClient wraps the official genai SDK for the Gemini API backend.
type GeminiClient struct {
	client       *genai.Client
	defaultModel string
}

func NewGeminiClient(ctx context.Context, apiKey, defaultModel string) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(apiKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = "gemini-2.5-flash"
	}
	return &GeminiClient{client: client, defaultModel: defaultModel}, nil
}

func (c *GeminiClient) model(override string) string {
	if m := strings.TrimSpace(override); m != "" {
		return m
	}
	return c.defaultModel
}

// Generate runs one synchronous content generation.
func (c *GeminiClient) Generate(ctx context.Context, contents, model string) (GenerateResult, error) {
	resp, err := c.client.Models.GenerateContent(ctx, c.model(model), genai.Text(contents), nil)
	if err != nil {
		return GenerateResult{}, err
	}
	result := GenerateResult{Text: resp.Text()}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		result.HasUsage = true
	}
	return result, nil
}

// Stream runs a streaming generation, forwarding thought parts as reasoning
// deltas when thinking is enabled. The accumulated result is returned once
// the upstream iterator is exhausted.
func (c *GeminiClient) Stream(ctx context.Context, contents, model string, thinking bool, emit DeltaFunc) (GenerateResult, error) {
	var cfg *genai.GenerateContentConfig
	if thinking {
		cfg = &genai.GenerateContentConfig{
			ThinkingConfig: &genai.ThinkingConfig{IncludeThoughts: true},
		}
	}
	var result GenerateResult
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.model(model), genai.Text(contents), cfg) {
		if err != nil {
			return result, err
		}
		for _, cand := range resp.Candidates {
			if cand.Content == nil {
				continue
			}
			for _, part := range cand.Content.Parts {
				if part == nil || part.Text == "" {
					continue
				}
				if part.Thought {
					result.Reasoning += part.Text
				} else {
					result.Text += part.Text
				}
				if err := emit(part.Thought, part.Text); err != nil {
					return result, err
				}
			}
		}
		if resp.UsageMetadata != nil {
			result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
			result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			result.HasUsage = true
		}
	}
	return result, nil
}
