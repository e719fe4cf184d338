// Package embed proxies text and image embedding requests to a Hugging Face
// feature-extraction pipeline and caches the resulting vectors.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"artemis-proxy/internal/models"
	"artemis-proxy/internal/telemetry"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotConfigured = errors.New("HF_TOKEN not configured")
	ErrInvalidInput  = errors.New("invalid embed request")
)

type FeatureExtractor interface {
	Configured() bool
	FeatureExtraction(ctx context.Context, model string, payload []byte, binary bool) (json.RawMessage, error)
}

// VectorCache stores encoded vectors. Get must return an error on a miss.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

type Service struct {
	hf            FeatureExtractor
	defaultModel  string
	cache         VectorCache
	ttl           time.Duration
	images        *http.Client
	group         singleflight.Group
	retryDelay    time.Duration
	flightTimeout time.Duration
}

// NewService builds an embedding service. cache may be nil.
func NewService(hf FeatureExtractor, defaultModel string, cache VectorCache, ttl time.Duration, images *http.Client) *Service {
	return &Service{
		hf:            hf,
		defaultModel:  defaultModel,
		cache:         cache,
		ttl:           ttl,
		images:        images,
		retryDelay:    300 * time.Millisecond,
		flightTimeout: 2 * time.Minute,
	}
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// InvalidMessage returns the client-facing text of an ErrInvalidInput error.
func InvalidMessage(err error) string {
	return strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
}

// Embed validates req and returns the embedding vector as raw JSON.
func (s *Service) Embed(ctx context.Context, req models.EmbedRequest) (json.RawMessage, error) {
	if s.hf == nil || !s.hf.Configured() {
		return nil, ErrNotConfigured
	}
	model := req.Model
	if model == "" {
		model = s.defaultModel
	}

	var (
		input string
		fetch func(ctx context.Context) (json.RawMessage, error)
	)
	switch req.Type {
	case "text":
		text, ok := models.StringField(req.Text)
		if !ok || text == "" {
			return nil, invalid("text required")
		}
		input = text
		fetch = func(ctx context.Context) (json.RawMessage, error) {
			payload, err := json.Marshal(map[string]string{"inputs": text})
			if err != nil {
				return nil, err
			}
			return s.hf.FeatureExtraction(ctx, model, payload, false)
		}
	case "image":
		src, ok := models.StringField(req.Image)
		if !ok || src == "" {
			return nil, invalid("image (url or data:) required")
		}
		input = src
		fetch = func(ctx context.Context) (json.RawMessage, error) {
			data, err := s.fetchImage(ctx, src)
			if err != nil {
				return nil, err
			}
			return s.hf.FeatureExtraction(ctx, model, data, true)
		}
	default:
		return nil, invalid(`type must be "text" or "image"`)
	}

	key := cacheKey(model, req.Type, input)
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, key); err == nil {
			telemetry.EmbedCache(true)
			return json.RawMessage(cached), nil
		}
		telemetry.EmbedCache(false)
	}

	// Identical requests share one upstream call. The call runs detached from
	// any single caller so one client hanging up does not fail the others.
	ch := s.group.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()

		out, err := fetch(flightCtx)
		if err != nil {
			return nil, err
		}
		vector := flattenOnce(out)
		if s.cache != nil {
			if err := s.cache.Set(flightCtx, key, vector, s.ttl); err != nil {
				slog.Warn("Failed to cache vector", "key", key, "error", err)
			}
		}
		return vector, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func cacheKey(model, kind, input string) string {
	return fmt.Sprintf("embed:%s:%016x", model, xxhash.Sum64String(kind+"|"+input))
}

// flattenOnce unwraps one level of nesting: [[...], ...] becomes the first row.
func flattenOnce(out json.RawMessage) json.RawMessage {
	var rows []json.RawMessage
	if err := json.Unmarshal(out, &rows); err != nil || len(rows) == 0 {
		return out
	}
	if first := bytes.TrimSpace(rows[0]); len(first) > 0 && first[0] == '[' {
		return first
	}
	return out
}
