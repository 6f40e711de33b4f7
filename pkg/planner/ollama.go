package planner

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"
)

// OllamaClient is the local backend, for running the pipeline against
// an Ollama daemon hosting a vision model instead of a remote API.
type OllamaClient struct {
	client *api.Client
	model  string
}

// NewOllama builds the local backend from a daemon URL such as
// http://localhost:11434. Any path component is ignored.
func NewOllama(rawURL, model string) (*OllamaClient, error) {
	if model == "" {
		return nil, fmt.Errorf("missing ollama model name")
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL: %w", err)
	}
	base := &url.URL{Scheme: parsed.Scheme, Host: parsed.Host}
	return &OllamaClient{
		client: api.NewClient(base, http.DefaultClient),
		model:  model,
	}, nil
}

// Complete runs one non-streaming chat turn with images attached.
func (c *OllamaClient) Complete(ctx context.Context, req Request) (string, error) {
	images := make([]api.ImageData, 0, len(req.Images))
	for _, img := range req.Images {
		images = append(images, api.ImageData(img))
	}

	streamFalse := false
	chatReq := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{Role: "system", Content: req.System},
			{Role: "user", Content: req.User, Images: images},
		},
		Stream: &streamFalse,
		Options: map[string]any{
			"temperature": float64(req.Temperature),
		},
	}

	var content string
	err := c.client.Chat(ctx, chatReq, func(resp api.ChatResponse) error {
		content = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	if content == "" {
		return "", fmt.Errorf("empty response from ollama")
	}
	return content, nil
}
