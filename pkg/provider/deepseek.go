package provider

import (
	"context"
	"errors"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// DeepSeekClient talks to an OpenAI-compatible chat completion endpoint,
// including the separate reasoning channel DeepSeek-style models expose.
type DeepSeekClient struct {
	client       *openai.Client
	defaultModel string
}

func NewDeepSeekClient(baseURL, apiKey, defaultModel string) *DeepSeekClient {
	cfg := openai.DefaultConfig(strings.TrimSpace(apiKey))
	if u := strings.TrimRight(strings.TrimSpace(baseURL), "/"); u != "" {
		cfg.BaseURL = u
	}
	if strings.TrimSpace(defaultModel) == "" {
		defaultModel = "deepseek-chat"
	}
	return &DeepSeekClient{
		client:       openai.NewClientWithConfig(cfg),
		defaultModel: defaultModel,
	}
}

func (c *DeepSeekClient) model(override string) string {
	if m := strings.TrimSpace(override); m != "" {
		return m
	}
	return c.defaultModel
}

// Generate runs one synchronous chat completion.
func (c *DeepSeekClient) Generate(ctx context.Context, contents, model string) (GenerateResult, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model(model),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: contents},
		},
	})
	if err != nil {
		return GenerateResult{}, err
	}
	var result GenerateResult
	if len(resp.Choices) > 0 {
		result.Text = resp.Choices[0].Message.Content
		result.Reasoning = resp.Choices[0].Message.ReasoningContent
	}
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		result.InputTokens = resp.Usage.PromptTokens
		result.OutputTokens = resp.Usage.CompletionTokens
		result.HasUsage = true
	}
	return result, nil
}

// Stream runs a streaming chat completion. Each chunk's incremental content
// maps to one content delta and each reasoning_content fragment to one
// reasoning delta, in arrival order.
func (c *DeepSeekClient) Stream(ctx context.Context, contents, model string, emit DeltaFunc) (GenerateResult, error) {
	streamReq := openai.ChatCompletionRequest{
		Model: c.model(model),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: contents},
		},
		Stream:        true,
		StreamOptions: &openai.StreamOptions{IncludeUsage: true},
	}
	upstream, err := c.client.CreateChatCompletionStream(ctx, streamReq)
	if err != nil {
		return GenerateResult{}, err
	}
	defer upstream.Close()

	var result GenerateResult
	for {
		resp, err := upstream.Recv()
		if errors.Is(err, io.EOF) {
			return result, nil
		}
		if err != nil {
			return result, err
		}
		if resp.Usage != nil {
			result.InputTokens = resp.Usage.PromptTokens
			result.OutputTokens = resp.Usage.CompletionTokens
			result.HasUsage = true
		}
		if len(resp.Choices) == 0 {
			continue
		}
		delta := resp.Choices[0].Delta
		if delta.ReasoningContent != "" {
			result.Reasoning += delta.ReasoningContent
			if err := emit(true, delta.ReasoningContent); err != nil {
				return result, err
			}
		}
		if delta.Content != "" {
			result.Text += delta.Content
			if err := emit(false, delta.Content); err != nil {
				return result, err
			}
		}
	}
}
