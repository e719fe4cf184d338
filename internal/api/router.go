package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"artemis-proxy/internal/auth"
	"artemis-proxy/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	ChatPath  = "/api/artemis-chat"
	EmbedPath = "/api/clip-embed"
)

// NewRouter mounts the proxy endpoints, health check and metrics.
func NewRouter(h *Handler, authMiddleware *auth.Middleware) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", h.Health)

	mux.HandleFunc(ChatPath, telemetry.Middleware(ChatPath, CORS(Recover(authMiddleware.ValidateToken(h.Chat)))))
	mux.HandleFunc(EmbedPath, telemetry.Middleware(EmbedPath, CORS(Recover(authMiddleware.ValidateToken(h.Embed)))))

	return mux
}

// Recover turns a panic into a 500 with the panic message.
func Recover(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if p := recover(); p != nil {
				if p == http.ErrAbortHandler {
					panic(p)
				}
				slog.Error("Handler panic", "path", r.URL.Path, "panic", p)
				writeError(w, http.StatusInternalServerError, fmt.Sprint(p))
			}
		}()
		next(w, r)
	}
}
