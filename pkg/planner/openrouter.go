package planner

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenRouterClient speaks any OpenAI-compatible chat-completions API
// with vision support (OpenRouter, OpenAI, compatible proxies).
type OpenRouterClient struct {
	client *openai.Client
	model  string
}

// NewOpenRouter builds the remote backend. baseURL may be empty for
// api.openai.com; for OpenRouter pass https://openrouter.ai/api/v1.
func NewOpenRouter(apiKey, baseURL, model string) (*OpenRouterClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("missing planner API key")
	}
	if model == "" {
		return nil, fmt.Errorf("missing planner model name")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenRouterClient{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// Complete runs one chat completion with the request images attached
// as data URLs.
func (c *OpenRouterClient) Complete(ctx context.Context, req Request) (string, error) {
	parts := []openai.ChatMessagePart{
		{Type: openai.ChatMessagePartTypeText, Text: req.User},
	}
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL:    dataURL(img),
				Detail: openai.ImageURLDetailAuto,
			},
		})
	}

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.System},
			{Role: openai.ChatMessageRoleUser, MultiContent: parts},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion response")
	}
	return resp.Choices[0].Message.Content, nil
}

func dataURL(img []byte) string {
	mime := "image/jpeg"
	if len(img) > 8 && string(img[1:4]) == "PNG" {
		mime = "image/png"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img)
}
