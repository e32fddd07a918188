// ABOUTME: OpenAI-compatible chat-completions adapter
// ABOUTME: Parameterized by name and base URL, shared by OpenAI and OpenRouter

package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/coevo/coevo-node/internal/config"
)

// chatCompatProvider speaks the chat-completions dialect. Two instances are
// registered in practice, "openai" and "openrouter", differing only in
// credentials and endpoint.
type chatCompatProvider struct {
	name    string
	apiKey  string
	baseURL string
	client  *http.Client
}

func newChatCompat(name, defaultBaseURL string, cfg config.ChatCompatConfig) *chatCompatProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &chatCompatProvider{
		name:    name,
		apiKey:  cfg.APIKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  newHTTPClient(),
	}
}

func (p *chatCompatProvider) Name() string { return p.name }

type chatCompatRequest struct {
	Model     string            `json:"model"`
	MaxTokens int               `json:"max_tokens,omitempty"`
	Messages  []chatCompatEntry `json:"messages"`
}

type chatCompatEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (p *chatCompatProvider) Generate(ctx context.Context, req Request) (string, error) {
	messages := []chatCompatEntry{}
	if req.SystemPrompt != "" {
		messages = append(messages, chatCompatEntry{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatCompatEntry{Role: "user", Content: req.UserPrompt})

	body, err := json.Marshal(chatCompatRequest{
		Model:     req.Model,
		MaxTokens: req.MaxTokens,
		Messages:  messages,
	})
	if err != nil {
		return "", fmt.Errorf("encoding %s request: %w", p.name, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building %s request: %w", p.name, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUpstream, p.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("%w: %s returned %d: %s", ErrUpstream, p.name, resp.StatusCode, detail)
	}

	var parsed chatCompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decoding %s response: %v", ErrUpstream, p.name, err)
	}
	// No choices means the backend had nothing to say, same as empty text.
	if len(parsed.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}
