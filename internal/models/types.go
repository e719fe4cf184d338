package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Message is one chat turn. Clients are loose about content types, so
// decoding accepts any JSON scalar and keeps its text form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m *Message) UnmarshalJSON(data []byte) error {
	if trimmed := bytes.TrimSpace(data); len(trimmed) == 0 || trimmed[0] != '{' {
		*m = Message{}
		return nil
	}
	var raw struct {
		Role    Scalar `json:"role"`
		Content Scalar `json:"content"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	m.Role = string(raw.Role)
	m.Content = string(raw.Content)
	return nil
}

// Scalar holds the text form of a JSON string, number or bool. Null and
// composite values decode to the empty string.
type Scalar string

func (s *Scalar) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")):
		*s = ""
	case data[0] == '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
	case data[0] == '{', data[0] == '[':
		*s = ""
	default:
		*s = Scalar(data)
	}
	return nil
}

type Product struct {
	Name       Scalar   `json:"name"`
	Category   Scalar   `json:"category,omitempty"`
	Price      Scalar   `json:"price,omitempty"`
	Stock      Scalar   `json:"stock,omitempty"`
	Region     Scalar   `json:"region,omitempty"`
	Techniques []string `json:"techniques,omitempty"`
}

// PageContext describes where in the storefront the user is chatting from.
type PageContext struct {
	Path    string   `json:"path,omitempty"`
	Product *Product `json:"product,omitempty"`
	Role    string   `json:"role,omitempty"`
}

type Options struct {
	ForceLocal    bool   `json:"forceLocal,omitempty"`
	ForceProvider string `json:"forceProvider,omitempty"`
	HFModel       string `json:"hfModel,omitempty"`
	HFFallback    string `json:"hfFallback,omitempty"`
	Persona       string `json:"persona,omitempty"`
	GenerateImage bool   `json:"generateImage,omitempty"`
	ImagePrompt   string `json:"imagePrompt,omitempty"`
	ImageModel    string `json:"imageModel,omitempty"`
}

// ChatRequest is the body of POST /api/artemis-chat. Messages stays raw so
// the handler can tell "not an array" apart from "empty".
type ChatRequest struct {
	Messages json.RawMessage `json:"messages"`
	Context  *PageContext    `json:"context,omitempty"`
	Options  *Options        `json:"options,omitempty"`
}

// ErrMessagesNotArray is returned by DecodeMessages for any non-array value.
var ErrMessagesNotArray = errors.New("messages must be an array")

// DecodeMessages validates and decodes the messages field. Null entries are
// dropped.
func (r *ChatRequest) DecodeMessages() ([]Message, error) {
	raw := bytes.TrimSpace(r.Messages)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, ErrMessagesNotArray
	}
	var items []*Message
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMessagesNotArray, err)
	}
	out := make([]Message, 0, len(items))
	for _, m := range items {
		if m != nil {
			out = append(out, *m)
		}
	}
	return out, nil
}

type ChatResponse struct {
	Reply        string `json:"reply"`
	Provider     string `json:"provider"`
	ElapsedMs    int64  `json:"elapsedMs"`
	Note         string `json:"note"`
	TraceID      string `json:"traceId"`
	ModelUsed    string `json:"modelUsed,omitempty"`
	ImageDataURI string `json:"imageDataUri,omitempty"`
}

type EmbedRequest struct {
	Type  string          `json:"type"`
	Text  json.RawMessage `json:"text,omitempty"`
	Image json.RawMessage `json:"image,omitempty"`
	Model string          `json:"model,omitempty"`
}

// StringField returns the value of a raw JSON field if it is a string.
func StringField(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '"' {
		return "", false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// RawString encodes s as a JSON string for use in EmbedRequest fields.
func RawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

type EmbedResponse struct {
	Vector json.RawMessage `json:"vector"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
