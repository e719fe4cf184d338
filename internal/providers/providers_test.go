package providers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"artemis-proxy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAI_Chat_Success(t *testing.T) {
	var got openAIRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Namaste!"}}]}`))
	}))
	defer server.Close()

	client := NewOpenAI(server.URL+"/v1/", "sk-test", server.Client())
	reply, err := client.Chat(context.Background(), "gpt-4o-mini", "be nice", []models.Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "system", Content: "sneaky"},
	})

	require.NoError(t, err)
	assert.Equal(t, "Namaste!", reply)
	assert.Equal(t, "gpt-4o-mini", got.Model)
	assert.Equal(t, 400, got.MaxTokens)
	assert.InDelta(t, 0.3, got.Temperature, 1e-9)
	assert.Equal(t, []openAIMessage{
		{Role: "system", Content: "be nice"},
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
		{Role: "user", Content: "sneaky"},
	}, got.Messages)
}

func TestOpenAI_Chat_EmptyChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	}))
	defer server.Close()

	reply, err := NewOpenAI(server.URL, "k", server.Client()).Chat(context.Background(), "m", "", nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultReply, reply)
}

func TestOpenAI_Chat_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer server.Close()

	_, err := NewOpenAI(server.URL, "k", server.Client()).Chat(context.Background(), "m", "", nil)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeOpenAIHTTP, pe.Code)
	assert.Equal(t, http.StatusPaymentRequired, pe.Status)
	assert.Contains(t, pe.Body, "quota exceeded")
	assert.False(t, IsTransient(err))
}

func TestOpenAI_Configured(t *testing.T) {
	assert.False(t, NewOpenAI("", "k", nil).Configured())
	assert.False(t, NewOpenAI("http://x", "", nil).Configured())
	assert.True(t, NewOpenAI("http://x", "k", nil).Configured())

	var nilClient *OpenAI
	assert.False(t, nilClient.Configured())
}

func TestHuggingFace_Generate_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"list", `[{"generated_text":"from list"}]`, "from list"},
		{"object", `{"generated_text":"from object"}`, "from object"},
		{"string", `"bare string"`, "bare string"},
		{"empty list", `[]`, DefaultReply},
		{"unknown", `{"foo":1}`, DefaultReply},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			reply, err := NewHuggingFace(server.URL, "hf", server.Client()).Generate(context.Background(), "org/model", "prompt")
			require.NoError(t, err)
			assert.Equal(t, tt.want, reply)
		})
	}
}

func TestHuggingFace_Generate_Request(t *testing.T) {
	var got hfGenerateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/org/model", r.URL.Path)
		assert.Equal(t, "/models/org%2Fmodel", r.URL.EscapedPath())
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Write([]byte(`[{"generated_text":"ok"}]`))
	}))
	defer server.Close()

	_, err := NewHuggingFace(server.URL+"/", "hf-token", server.Client()).Generate(context.Background(), "org/model", "hello")
	require.NoError(t, err)

	assert.Equal(t, "hello", got.Inputs)
	require.NotNil(t, got.Parameters)
	assert.Equal(t, 320, got.Parameters.MaxNewTokens)
	assert.False(t, got.Parameters.ReturnFullText)
	assert.True(t, got.Options.WaitForModel)
}

func TestHuggingFace_ErrorClassification(t *testing.T) {
	tests := []struct {
		status    int
		code      string
		transient bool
	}{
		{http.StatusNotFound, CodeNotFound, true},
		{http.StatusServiceUnavailable, CodeLoading, true},
		{http.StatusGatewayTimeout, CodeTimeout, true},
		{http.StatusUnauthorized, CodeUnauthorized, false},
		{http.StatusForbidden, CodeUnauthorized, false},
		{http.StatusTooManyRequests, CodeRateLimit, false},
		{http.StatusInternalServerError, CodeServer, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			_, err := NewHuggingFace(server.URL, "hf", server.Client()).Generate(context.Background(), "m", "p")
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestHuggingFace_ClientTimeoutIsTransient(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := server.Client()
	client.Timeout = 20 * time.Millisecond

	_, err := NewHuggingFace(server.URL, "hf", client).Generate(context.Background(), "m", "p")
	assert.Equal(t, CodeTimeout, CodeOf(err))
	assert.True(t, IsTransient(err))
}

func TestHuggingFace_FeatureExtraction_Binary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pipeline/feature-extraction/clip", r.URL.Path)
		assert.Empty(t, r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, body)
		w.Write([]byte(`[[0.1,0.2]]`))
	}))
	defer server.Close()

	out, err := NewHuggingFace(server.URL, "hf", server.Client()).FeatureExtraction(context.Background(), "clip", []byte{0x89, 'P', 'N', 'G'}, true)
	require.NoError(t, err)
	assert.JSONEq(t, `[[0.1,0.2]]`, string(out))
}

func TestHuggingFace_TextToImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write([]byte("png"))
	}))
	defer server.Close()

	uri, err := NewHuggingFace(server.URL, "hf", server.Client()).TextToImage(context.Background(), "sd", "a vase")
	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,cG5n", uri)
}

func TestHuggingFace_TextToImage_JSONError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"error":"model is busy"}`))
	}))
	defer server.Close()

	_, err := NewHuggingFace(server.URL, "hf", server.Client()).TextToImage(context.Background(), "sd", "a vase")

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeBadResponse, pe.Code)
	assert.Equal(t, "model is busy", pe.Body)
}

func TestHuggingFace_OversizedResponseRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[[0.1,0.2,0.3,0.4,0.5,0.6,0.7,0.8]]`))
	}))
	defer server.Close()

	hf := NewHuggingFace(server.URL, "hf", server.Client())
	hf.maxBody = 16

	_, err := hf.FeatureExtraction(context.Background(), "clip", []byte(`{"inputs":"x"}`), false)

	var pe *Error
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, CodeBadResponse, pe.Code)
	assert.Equal(t, "response larger than 16 bytes", pe.Body)
}
