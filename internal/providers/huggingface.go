package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// HuggingFace is a client for the Hugging Face Inference API.
// maxResponseBody caps upstream bodies; generated images are the largest.
const maxResponseBody = 32 << 20

type HuggingFace struct {
	baseURL string
	token   string
	client  *http.Client
	maxBody int64
}

func NewHuggingFace(baseURL, token string, client *http.Client) *HuggingFace {
	return &HuggingFace{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		client:  client,
		maxBody: maxResponseBody,
	}
}

func (c *HuggingFace) Configured() bool {
	return c != nil && c.token != ""
}

type hfParameters struct {
	MaxNewTokens   int     `json:"max_new_tokens"`
	Temperature    float64 `json:"temperature"`
	ReturnFullText bool    `json:"return_full_text"`
}

type hfOptions struct {
	WaitForModel bool `json:"wait_for_model"`
}

type hfGenerateRequest struct {
	Inputs     string        `json:"inputs"`
	Parameters *hfParameters `json:"parameters,omitempty"`
	Options    hfOptions     `json:"options"`
}

type generatedText struct {
	GeneratedText string `json:"generated_text"`
}

// Generate runs a text-generation model on prompt.
func (c *HuggingFace) Generate(ctx context.Context, model, prompt string) (string, error) {
	payload, err := json.Marshal(hfGenerateRequest{
		Inputs:     prompt,
		Parameters: &hfParameters{MaxNewTokens: 320, Temperature: 0.3, ReturnFullText: false},
		Options:    hfOptions{WaitForModel: true},
	})
	if err != nil {
		return "", fmt.Errorf("marshal huggingface request: %w", err)
	}
	body, _, err := c.post(ctx, "/models/", model, payload, "application/json")
	if err != nil {
		return "", err
	}
	return parseGenerated(body), nil
}

func parseGenerated(body []byte) string {
	var list []generatedText
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) > 0 && list[0].GeneratedText != "" {
			return list[0].GeneratedText
		}
		return DefaultReply
	}
	var single generatedText
	if err := json.Unmarshal(body, &single); err == nil && single.GeneratedText != "" {
		return single.GeneratedText
	}
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}
	return DefaultReply
}

// FeatureExtraction returns the raw JSON output of a feature-extraction
// pipeline. A binary payload is sent as-is without a content type.
func (c *HuggingFace) FeatureExtraction(ctx context.Context, model string, payload []byte, binary bool) (json.RawMessage, error) {
	contentType := "application/json"
	if binary {
		contentType = ""
	}
	body, _, err := c.post(ctx, "/pipeline/feature-extraction/", model, payload, contentType)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, &Error{Provider: "huggingface", Code: CodeBadResponse, Model: model, Body: truncate(body)}
	}
	return json.RawMessage(body), nil
}

// TextToImage runs an image model and returns the picture as a data URI.
func (c *HuggingFace) TextToImage(ctx context.Context, model, prompt string) (string, error) {
	payload, err := json.Marshal(hfGenerateRequest{
		Inputs:  prompt,
		Options: hfOptions{WaitForModel: true},
	})
	if err != nil {
		return "", fmt.Errorf("marshal huggingface request: %w", err)
	}
	body, contentType, err := c.post(ctx, "/models/", model, payload, "application/json")
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(contentType, "image/") {
		var upstream struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &upstream) == nil && upstream.Error != "" {
			return "", &Error{Provider: "huggingface", Code: CodeBadResponse, Model: model, Body: upstream.Error}
		}
		return "", &Error{Provider: "huggingface", Code: CodeBadResponse, Model: model, Body: "unexpected image response"}
	}
	return fmt.Sprintf("data:%s;base64,%s", contentType, base64.StdEncoding.EncodeToString(body)), nil
}

// post sends payload to {base}{path}{model}. An empty contentType leaves the
// header unset.
func (c *HuggingFace) post(ctx context.Context, path, model string, payload []byte, contentType string) ([]byte, string, error) {
	endpoint := c.baseURL + path + url.PathEscape(model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, "", fmt.Errorf("build huggingface request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		code := CodeNetwork
		if isTimeout(err) {
			code = CodeTimeout
		}
		return nil, "", &Error{Provider: "huggingface", Code: code, Model: model, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		code := CodeNetwork
		if isTimeout(err) {
			code = CodeTimeout
		}
		return nil, "", &Error{Provider: "huggingface", Code: code, Model: model, Err: err}
	}
	if int64(len(body)) > c.maxBody {
		return nil, "", &Error{Provider: "huggingface", Code: CodeBadResponse, Model: model, Body: fmt.Sprintf("response larger than %d bytes", c.maxBody)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", &Error{
			Provider: "huggingface",
			Code:     hfStatusCode(resp.StatusCode),
			Status:   resp.StatusCode,
			Model:    model,
			Body:     truncate(body),
		}
	}
	return body, resp.Header.Get("Content-Type"), nil
}
