package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"artemis-proxy/internal/auth"
	"artemis-proxy/internal/cache"
	"artemis-proxy/internal/chat"
	"artemis-proxy/internal/embed"
	"artemis-proxy/internal/models"
	"artemis-proxy/internal/providers"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// upstream is a fake OpenAI + Hugging Face server that counts calls.
type upstream struct {
	*httptest.Server
	openaiCalls atomic.Int32
	hfCalls     atomic.Int32
	hfModels    []string
	hfStatus    map[string]int
}

func newUpstream(t *testing.T) *upstream {
	u := &upstream{hfStatus: map[string]int{}}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		u.openaiCalls.Add(1)
		w.Write([]byte(`{"choices":[{"message":{"content":"openai says hi"}}]}`))
	})
	mux.HandleFunc("POST /models/", func(w http.ResponseWriter, r *http.Request) {
		u.hfCalls.Add(1)
		model := strings.TrimPrefix(r.URL.Path, "/models/")
		u.hfModels = append(u.hfModels, model)
		if status := u.hfStatus[model]; status != 0 {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"Model is currently loading"}`))
			return
		}
		w.Write([]byte(`[{"generated_text":"hf says hi from ` + model + `"}]`))
	})
	mux.HandleFunc("POST /pipeline/feature-extraction/", func(w http.ResponseWriter, r *http.Request) {
		u.hfCalls.Add(1)
		w.Write([]byte(`[[0.25,0.5]]`))
	})
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

type setup struct {
	openaiKey string
	hfToken   string
	limiter   RateLimiter
	jwtSecret string
}

func newTestRouter(t *testing.T, u *upstream, s setup) http.Handler {
	t.Helper()
	openai := providers.NewOpenAI(u.URL+"/v1", s.openaiKey, u.Client())
	hf := providers.NewHuggingFace(u.URL, s.hfToken, u.Client())
	chain := chat.NewChain(openai, hf, chat.Settings{
		OpenAIModel:     "gpt-4o-mini",
		HFChatModel:     "org/primary",
		HFFallbackModel: "org/fallback",
	})
	embedder := embed.NewService(hf, "clip", nil, time.Minute, u.Client())
	return NewRouter(NewHandler(chain, embedder, s.limiter), auth.NewMiddleware(s.jwtSecret))
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeChat(t *testing.T, rec *httptest.ResponseRecorder) models.ChatResponse {
	t.Helper()
	var resp models.ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestChat_Preflight(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), setup{})

	rec := do(t, h, http.MethodOptions, ChatPath, "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "POST, OPTIONS", rec.Header().Get("Access-Control-Allow-Methods"))
}

func TestChat_MethodNotAllowed(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), setup{})

	rec := do(t, h, http.MethodGet, ChatPath, "")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "POST", rec.Header().Get("Allow"))
	assert.JSONEq(t, `{"error":"Method Not Allowed"}`, rec.Body.String())
}

func TestChat_MessagesMustBeArray(t *testing.T) {
	u := newUpstream(t)
	h := newTestRouter(t, u, setup{openaiKey: "sk", hfToken: "hf"})

	for _, body := range []string{
		`{"messages":"hi","options":{"forceLocal":true}}`,
		`{"messages":{"role":"user"}}`,
		`{"context":{"path":"/"}}`,
		`not json`,
		``,
	} {
		rec := do(t, h, http.MethodPost, ChatPath, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body %q", body)
		assert.JSONEq(t, `{"error":"messages must be an array"}`, rec.Body.String())
	}
	assert.Zero(t, u.openaiCalls.Load()+u.hfCalls.Load())
}

func TestChat_ForceLocalMakesNoUpstreamCalls(t *testing.T) {
	u := newUpstream(t)
	h := newTestRouter(t, u, setup{openaiKey: "sk", hfToken: "hf"})

	rec := do(t, h, http.MethodPost, ChatPath, `{"messages":[{"role":"user","content":"hello"}],"options":{"forceLocal":true}}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeChat(t, rec)
	assert.Equal(t, chat.ProviderLocalOnly, resp.Provider)
	assert.Zero(t, u.openaiCalls.Load()+u.hfCalls.Load())
	assert.Equal(t, resp.TraceID, rec.Header().Get("x-trace-id"))
}

func TestChat_NoCredentialsIsLocalFallback(t *testing.T) {
	u := newUpstream(t)
	h := newTestRouter(t, u, setup{})

	rec := do(t, h, http.MethodPost, ChatPath, `{"messages":[{"role":"user","content":"hello"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeChat(t, rec)
	assert.Equal(t, chat.ProviderLocalFallback, resp.Provider)
	assert.Equal(t, "no-provider", resp.Note)
	assert.Zero(t, u.openaiCalls.Load()+u.hfCalls.Load())
}

func TestChat_OpenAI(t *testing.T) {
	u := newUpstream(t)
	h := newTestRouter(t, u, setup{openaiKey: "sk", hfToken: "hf"})

	rec := do(t, h, http.MethodPost, ChatPath, `{"messages":[{"role":"user","content":"hello"}]}`)

	resp := decodeChat(t, rec)
	assert.Equal(t, chat.ProviderOpenAI, resp.Provider)
	assert.Equal(t, "openai says hi", resp.Reply)
	assert.Equal(t, int32(1), u.openaiCalls.Load())
	assert.Zero(t, u.hfCalls.Load())
}

func TestChat_HuggingFaceLoadingUsesFallbackModel(t *testing.T) {
	u := newUpstream(t)
	u.hfStatus["org/primary"] = http.StatusServiceUnavailable
	h := newTestRouter(t, u, setup{hfToken: "hf"})

	rec := do(t, h, http.MethodPost, ChatPath, `{"messages":[{"role":"user","content":"hello"}]}`)

	resp := decodeChat(t, rec)
	assert.Equal(t, chat.ProviderHuggingFace, resp.Provider)
	assert.Equal(t, "org/fallback", resp.ModelUsed)
	assert.Equal(t, "fallback:HF_LOADING", resp.Note)
	assert.Equal(t, "hf says hi from org/fallback", resp.Reply)
	assert.Equal(t, []string{"org/primary", "org/fallback"}, u.hfModels)
}

func TestEmbed(t *testing.T) {
	u := newUpstream(t)

	t.Run("missing token", func(t *testing.T) {
		h := newTestRouter(t, u, setup{})
		rec := do(t, h, http.MethodPost, EmbedPath, `{"type":"text","text":"vase"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.JSONEq(t, `{"error":"HF_TOKEN not configured"}`, rec.Body.String())
	})

	h := newTestRouter(t, u, setup{hfToken: "hf"})

	t.Run("bad type", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, EmbedPath, `{"type":"video"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.JSONEq(t, `{"error":"type must be \"text\" or \"image\""}`, rec.Body.String())
	})

	t.Run("text", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, EmbedPath, `{"type":"text","text":"vase"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"vector":[0.25,0.5]}`, rec.Body.String())
	})

	t.Run("method", func(t *testing.T) {
		rec := do(t, h, http.MethodPut, EmbedPath, ``)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rc, err := cache.NewClient(mr.Addr(), 1)
	require.NoError(t, err)
	defer rc.Close()

	h := newTestRouter(t, newUpstream(t), setup{limiter: rc})
	body := `{"messages":[],"options":{"forceLocal":true}}`

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, ChatPath, body).Code)
	rec := do(t, h, http.MethodPost, ChatPath, body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"Too many requests"}`, rec.Body.String())
}

func TestAuth(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), setup{jwtSecret: "s3cret"})
	body := `{"messages":[],"options":{"forceLocal":true}}`

	assert.Equal(t, http.StatusUnauthorized, do(t, h, http.MethodPost, ChatPath, body).Code)
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodOptions, ChatPath, "").Code)

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "u1"}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	rec := do(t, h, http.MethodPost, ChatPath, body, "Authorization", "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth_ErrorsCarryCORSAndMethodCheck(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), setup{jwtSecret: "s3cret"})

	for _, path := range []string{ChatPath, EmbedPath} {
		rec := do(t, h, http.MethodPost, path, `{}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)

		rec = do(t, h, http.MethodGet, path, "")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code, path)
		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"), path)
	}
}

type panicky struct{}

func (panicky) Reply(context.Context, []models.Message, *models.PageContext, *models.Options) models.ChatResponse {
	panic("prompt builder exploded")
}

func TestRecover(t *testing.T) {
	h := NewRouter(NewHandler(panicky{}, nil, nil), auth.NewMiddleware(""))

	rec := do(t, h, http.MethodPost, ChatPath, `{"messages":[]}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"prompt builder exploded"}`, rec.Body.String())
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t, newUpstream(t), setup{})

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	do(t, h, http.MethodPost, ChatPath, `{"messages":[],"options":{"forceLocal":true}}`)
	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `http_requests_total{method="POST",path="/api/artemis-chat",status="200"}`)
}
