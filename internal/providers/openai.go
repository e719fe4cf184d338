package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"artemis-proxy/internal/models"
)

// DefaultReply is used when an upstream answers without usable text.
const DefaultReply = "I’m here to help."

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewOpenAI(baseURL, apiKey string, client *http.Client) *OpenAI {
	return &OpenAI{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		client:  client,
	}
}

func (c *OpenAI) Configured() bool {
	return c != nil && c.baseURL != "" && c.apiKey != ""
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
}

type openAIResponse struct {
	Choices []struct {
		Message openAIMessage `json:"message"`
	} `json:"choices"`
}

// Chat sends the system prompt followed by the conversation. Roles other
// than assistant are sent as user.
func (c *OpenAI) Chat(ctx context.Context, model, system string, messages []models.Message) (string, error) {
	reqBody := openAIRequest{
		Model:       model,
		Messages:    make([]openAIMessage, 0, len(messages)+1),
		Temperature: 0.3,
		MaxTokens:   400,
	}
	reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: "system", Content: system})
	for _, m := range messages {
		role := "user"
		if m.Role == "assistant" {
			role = "assistant"
		}
		reqBody.Messages = append(reqBody.Messages, openAIMessage{Role: role, Content: m.Content})
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal openai request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build openai request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", &Error{Provider: "openai", Code: CodeOpenAINetwork, Model: model, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &Error{Provider: "openai", Code: CodeOpenAIHTTP, Status: resp.StatusCode, Model: model, Body: string(text)}
	}

	var out openAIResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&out); err != nil {
		return "", &Error{Provider: "openai", Code: CodeOpenAIHTTP, Status: resp.StatusCode, Model: model, Body: "invalid JSON", Err: err}
	}
	if len(out.Choices) == 0 || out.Choices[0].Message.Content == "" {
		return DefaultReply, nil
	}
	return out.Choices[0].Message.Content, nil
}
