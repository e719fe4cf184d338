// Package client calls a running artemis proxy over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"artemis-proxy/internal/api"
	"artemis-proxy/internal/models"
)

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New returns a client for the proxy at baseURL. token is sent as a bearer
// token when non-empty.
func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		http:    httpClient,
	}
}

// Ask sends one chat turn. Missing response fields are filled with the same
// defaults the storefront uses.
func (c *Client) Ask(ctx context.Context, messages []models.Message, pc *models.PageContext, opts *models.Options) (*models.ChatResponse, error) {
	if messages == nil {
		messages = []models.Message{}
	}
	rawMessages, err := json.Marshal(messages)
	if err != nil {
		return nil, err
	}
	var resp models.ChatResponse
	if err := c.post(ctx, api.ChatPath, models.ChatRequest{Messages: rawMessages, Context: pc, Options: opts}, &resp); err != nil {
		return nil, err
	}
	if resp.Provider == "" {
		resp.Provider = "unknown"
	}
	return &resp, nil
}

func (c *Client) EmbedText(ctx context.Context, text, model string) (json.RawMessage, error) {
	return c.embed(ctx, models.EmbedRequest{Type: "text", Text: models.RawString(text), Model: model})
}

// EmbedImage embeds an image given as an http(s) URL or a data: URI.
func (c *Client) EmbedImage(ctx context.Context, src, model string) (json.RawMessage, error) {
	return c.embed(ctx, models.EmbedRequest{Type: "image", Image: models.RawString(src), Model: model})
}

func (c *Client) embed(ctx context.Context, req models.EmbedRequest) (json.RawMessage, error) {
	var resp models.EmbedResponse
	if err := c.post(ctx, api.EmbedPath, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Vector) == 0 {
		return nil, errors.New("response has no vector")
	}
	return resp.Vector, nil
}

func (c *Client) post(ctx context.Context, path string, body, target any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s: %d %s", path, resp.StatusCode, strings.TrimSpace(string(text)))
	}
	return json.NewDecoder(resp.Body).Decode(target)
}
