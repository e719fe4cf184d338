// Command provider-stub serves canned OpenAI-compatible and Hugging Face
// Inference responses so the proxy can be run locally without API keys.
//
//	AI_API_BASE=http://localhost:8090/v1 AI_API_KEY=x HF_API_BASE=http://localhost:8090 HF_TOKEN=x artemis serve
package main

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"strings"
)

type chatCompletion struct {
	Choices []choice `json:"choices"`
}

type choice struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	port := os.Getenv("STUB_PORT")
	if port == "" {
		port = "8090"
	}
	// models listed here answer 503 so the fallback path can be exercised
	loading := modelSet(os.Getenv("STUB_LOADING_MODELS"))
	// models listed here answer text-to-image requests with a PNG
	images := modelSet(os.Getenv("STUB_IMAGE_MODELS"))

	slog.Info("Provider stub listening", "port", port)
	if err := http.ListenAndServe(":"+port, newMux(loading, images)); err != nil {
		slog.Error("Stub stopped", "error", err)
		os.Exit(1)
	}
}

func modelSet(list string) map[string]bool {
	set := map[string]bool{}
	for _, m := range strings.Split(list, ",") {
		if m = strings.TrimSpace(m); m != "" {
			set[m] = true
		}
	}
	return set
}

func newMux(loading, images map[string]bool) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		slog.Info("Chat completion", "model", req.Model, "messages", len(req.Messages))

		var resp chatCompletion
		resp.Choices = make([]choice, 1)
		resp.Choices[0].Message.Role = "assistant"
		resp.Choices[0].Message.Content = "stub reply from " + req.Model

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	mux.HandleFunc("POST /models/{model...}", func(w http.ResponseWriter, r *http.Request) {
		model := r.PathValue("model")
		slog.Info("Text generation", "model", model)

		if loading[model] {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"Model ` + model + ` is currently loading"}`))
			return
		}
		if images[model] {
			w.Header().Set("Content-Type", "image/png")
			w.Write(stubPNG())
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]map[string]string{{"generated_text": "stub reply from " + model}})
	})

	mux.HandleFunc("POST /pipeline/feature-extraction/{model...}", func(w http.ResponseWriter, r *http.Request) {
		slog.Info("Feature extraction", "model", r.PathValue("model"), "content_type", r.Header.Get("Content-Type"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([][]float64{{0.12, -0.08, 0.33, 0.05}})
	})

	return mux
}

// stubPNG renders a 1x1 terracotta pixel.
func stubPNG() []byte {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.RGBA{R: 0xc0, G: 0x5a, B: 0x3c, A: 0xff})
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return buf.Bytes()
}
