package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

const (
	openRouterURL          = "https://api.openrouter.ai/v1/chat/completions"
	openRouterDefaultModel = "openrouter/auto"
	systemPrompt           = "You are an AI assistant helping with a personal knowledge base. Be concise."
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// callOpenRouter sends a chat completion request to an OpenRouter-compatible
// endpoint. The context string has already been redacted by the caller.
func (g *Gateway) callOpenRouter(ctx context.Context, key, model, prompt, redacted string) (text, usedModel string, err error) {
	if model == "" {
		model = openRouterDefaultModel
	}
	reqBody, err := json.Marshal(chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt + "\n\n---\n" + redacted},
		},
	})
	if err != nil {
		return "", "", fmt.Errorf("ai: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, openRouterURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", "", fmt.Errorf("ai: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("ai: http: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", "", fmt.Errorf("ai: http status %d", resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", "", fmt.Errorf("ai: decode response: %w", err)
	}
	for _, ch := range out.Choices {
		if ch.Message.Content != "" {
			return ch.Message.Content, model, nil
		}
	}
	return "", "", fmt.Errorf("ai: empty response")
}
