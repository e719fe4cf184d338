package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"artemis-proxy/internal/auth"
	"artemis-proxy/internal/embed"
	"artemis-proxy/internal/models"
)

const maxBodyBytes = 8 << 20

// Chatter produces a reply for one chat turn.
type Chatter interface {
	Reply(ctx context.Context, messages []models.Message, pc *models.PageContext, opts *models.Options) models.ChatResponse
}

type Embedder interface {
	Embed(ctx context.Context, req models.EmbedRequest) (json.RawMessage, error)
}

type RateLimiter interface {
	IsRateLimited(ctx context.Context, key string) bool
}

type Handler struct {
	chat    Chatter
	embed   Embedder
	limiter RateLimiter
}

// NewHandler wires the endpoints. limiter may be nil.
func NewHandler(chat Chatter, embed Embedder, limiter RateLimiter) *Handler {
	return &Handler{
		chat:    chat,
		embed:   embed,
		limiter: limiter,
	}
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r) {
		return
	}

	var req models.ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		slog.Debug("Unreadable chat body", "error", err)
	}
	messages, err := req.DecodeMessages()
	if err != nil {
		writeError(w, http.StatusBadRequest, models.ErrMessagesNotArray.Error())
		return
	}

	resp := h.chat.Reply(r.Context(), messages, req.Context, req.Options)
	if userID, ok := auth.UserID(r.Context()); ok {
		slog.Debug("Chat request", "trace_id", resp.TraceID, "user_id", userID)
	}

	w.Header().Set("x-trace-id", resp.TraceID)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) Embed(w http.ResponseWriter, r *http.Request) {
	if !h.admit(w, r) {
		return
	}

	var req models.EmbedRequest
	if err := decodeBody(w, r, &req); err != nil {
		slog.Debug("Unreadable embed body", "error", err)
	}

	vector, err := h.embed.Embed(r.Context(), req)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, models.EmbedResponse{Vector: vector})
	case errors.Is(err, embed.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, embed.InvalidMessage(err))
	default:
		slog.Error("clip-embed error", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// CORS answers preflight and wrong-method requests before auth runs, so
// browsers can read every error the endpoints return.
func CORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORS(w)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
			return
		}
		next(w, r)
	}
}

// admit applies the per-client rate limit. It reports whether the request
// should proceed.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter != nil {
		ip := clientIP(r)
		if h.limiter.IsRateLimited(r.Context(), ip) {
			slog.Warn("Rate limit exceeded", "ip", ip)
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return false
		}
	}
	return true
}

func setCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// decodeBody leaves v untouched when the body is empty or not JSON; callers
// validate the zero value.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("JSON marshal error", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	data, _ := json.Marshal(models.ErrorResponse{Error: msg})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
