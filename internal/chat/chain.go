package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"artemis-proxy/internal/models"
	"artemis-proxy/internal/providers"
	"artemis-proxy/internal/resilience"
	"artemis-proxy/internal/telemetry"

	"github.com/google/uuid"
)

// Provider labels reported to clients.
const (
	ProviderOpenAI        = "openai-compatible"
	ProviderHuggingFace   = "huggingface"
	ProviderHFImage       = "huggingface-image"
	ProviderLocalOnly     = "local-only"
	ProviderLocalFallback = "local-fallback"
)

const (
	imageReply         = "Here is your generated image."
	imageNotConfigured = "Image generator not configured. Set HF_TOKEN and HF_IMAGE_MODEL."
)

// Completer is an OpenAI-compatible chat backend.
type Completer interface {
	Configured() bool
	Chat(ctx context.Context, model, system string, messages []models.Message) (string, error)
}

// Generator is a Hugging Face style text and image backend.
type Generator interface {
	Configured() bool
	Generate(ctx context.Context, model, prompt string) (string, error)
	TextToImage(ctx context.Context, model, prompt string) (string, error)
}

type Settings struct {
	OpenAIModel      string
	HFChatModel      string
	HFFallbackModel  string
	HFImageModel     string
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

// Chain answers chat turns by walking the configured providers in order
// until one replies, ending with the local responder.
type Chain struct {
	openai   Completer
	hf       Generator
	settings Settings

	mu       sync.Mutex
	breakers map[string]*resilience.CircuitBreaker

	now func() time.Time
}

func NewChain(openai Completer, hf Generator, settings Settings) *Chain {
	return &Chain{
		openai:   openai,
		hf:       hf,
		settings: settings,
		breakers: make(map[string]*resilience.CircuitBreaker),
		now:      time.Now,
	}
}

// request carries the per-call state of one Reply.
type request struct {
	messages []models.Message
	context  *models.PageContext
	options  models.Options
	traceID  string
	start    time.Time
}

// attempt is the outcome of one provider step.
type attempt struct {
	reply string
	model string
	note  string
}

type step struct {
	name       string
	configured bool
	run        func(ctx context.Context, req *request) (attempt, string, error)
}

// Reply never fails: provider errors are logged and the next provider is
// tried, with the local responder as the last resort.
func (c *Chain) Reply(ctx context.Context, messages []models.Message, pc *models.PageContext, opts *models.Options) models.ChatResponse {
	req := &request{
		messages: messages,
		context:  pc,
		start:    c.now(),
	}
	if opts != nil {
		req.options = *opts
	}
	req.traceID = NewTraceID(req.start)

	resp := c.reply(ctx, req)
	resp.TraceID = req.traceID
	resp.ElapsedMs = c.now().Sub(req.start).Milliseconds()

	telemetry.ChatReply(resp.Provider)
	slog.Info("Chat reply",
		"trace_id", resp.TraceID,
		"provider", resp.Provider,
		"model", resp.ModelUsed,
		"note", resp.Note,
		"elapsed_ms", resp.ElapsedMs,
	)
	return resp
}

func (c *Chain) reply(ctx context.Context, req *request) models.ChatResponse {
	if req.options.ForceLocal {
		return models.ChatResponse{
			Reply:    LocalReply(req.messages, req.context),
			Provider: ProviderLocalOnly,
			Note:     "forced-local",
		}
	}
	if req.options.GenerateImage {
		return c.image(ctx, req)
	}

	steps := []step{c.openAIStep(), c.huggingFaceStep(req)}
	if req.options.ForceProvider == "huggingface" {
		steps[0], steps[1] = steps[1], steps[0]
	}

	var (
		lastErr    error
		lastModel  string
		failedStep string
	)
	for _, s := range steps {
		if !s.configured {
			continue
		}
		a, model, err := s.run(ctx, req)
		if err != nil {
			slog.Warn("Provider failed", "trace_id", req.traceID, "provider", s.name, "model", model, "error", err)
			lastErr, lastModel, failedStep = err, model, s.name
			continue
		}

		note := a.note
		switch {
		case failedStep == ProviderOpenAI && note != "ok":
			note = "openai-failed:" + openAIFailure(lastErr) + ";" + note
		case failedStep == ProviderOpenAI:
			note = "openai-failed:" + openAIFailure(lastErr)
		case failedStep == ProviderHuggingFace && s.name == ProviderOpenAI:
			note = "hf-failed:openai-ok"
		}
		return models.ChatResponse{Reply: a.reply, Provider: s.name, ModelUsed: a.model, Note: note}
	}

	if lastErr == nil {
		return models.ChatResponse{
			Reply:    LocalReply(req.messages, req.context),
			Provider: ProviderLocalFallback,
			Note:     "no-provider",
		}
	}
	return models.ChatResponse{
		Reply:     LocalReply(req.messages, req.context),
		Provider:  ProviderLocalFallback,
		ModelUsed: lastModel,
		Note:      lastErr.Error(),
	}
}

func (c *Chain) openAIStep() step {
	return step{
		name:       ProviderOpenAI,
		configured: c.openai != nil && c.openai.Configured(),
		run: func(ctx context.Context, req *request) (attempt, string, error) {
			model := c.settings.OpenAIModel
			system := SystemPrompt(req.context, &req.options)
			var reply string
			err := c.call(ctx, ProviderOpenAI, model, func() error {
				var err error
				reply, err = c.openai.Chat(ctx, model, system, req.messages)
				return err
			})
			if err != nil {
				return attempt{}, model, err
			}
			return attempt{reply: reply, model: model, note: "ok"}, model, nil
		},
	}
}

func (c *Chain) huggingFaceStep(req *request) step {
	primary := SanitizeModelID(firstNonEmpty(req.options.HFModel, c.settings.HFChatModel))
	fallback := SanitizeModelID(firstNonEmpty(req.options.HFFallback, c.settings.HFFallbackModel))

	return step{
		name:       ProviderHuggingFace,
		configured: c.hf != nil && c.hf.Configured(),
		run: func(ctx context.Context, req *request) (attempt, string, error) {
			prompt := HuggingFacePrompt(SystemPrompt(req.context, &req.options), req.messages)

			reply, err := c.generate(ctx, primary, prompt)
			if err == nil {
				return attempt{reply: reply, model: primary, note: "ok"}, primary, nil
			}
			if !fallbackWorthy(err) || fallback == "" || fallback == primary {
				return attempt{}, primary, err
			}

			slog.Info("Trying fallback model", "trace_id", req.traceID, "model", fallback, "cause", failureCode(err))
			reply, err2 := c.generate(ctx, fallback, prompt)
			if err2 != nil {
				slog.Warn("Fallback model failed", "trace_id", req.traceID, "model", fallback, "error", err2)
				return attempt{}, primary, err
			}
			return attempt{reply: reply, model: fallback, note: "fallback:" + failureCode(err)}, fallback, nil
		},
	}
}

func (c *Chain) generate(ctx context.Context, model, prompt string) (string, error) {
	var reply string
	err := c.call(ctx, ProviderHuggingFace, model, func() error {
		var err error
		reply, err = c.hf.Generate(ctx, model, prompt)
		return err
	})
	return reply, err
}

func (c *Chain) image(ctx context.Context, req *request) models.ChatResponse {
	model := SanitizeModelID(firstNonEmpty(req.options.ImageModel, c.settings.HFImageModel))
	if c.hf == nil || !c.hf.Configured() || model == "" {
		return models.ChatResponse{
			Reply:    imageNotConfigured,
			Provider: ProviderLocalFallback,
			Note:     "image-not-configured",
		}
	}

	prompt := req.options.ImagePrompt
	if prompt == "" && len(req.messages) > 0 {
		prompt = req.messages[len(req.messages)-1].Content
	}

	var uri string
	err := c.call(ctx, ProviderHFImage, model, func() error {
		var err error
		uri, err = c.hf.TextToImage(ctx, model, prompt)
		return err
	})
	if err != nil {
		slog.Warn("Image generation failed", "trace_id", req.traceID, "model", model, "error", err)
		return models.ChatResponse{
			Reply:    LocalReply(req.messages, req.context),
			Provider: ProviderLocalFallback,
			Note:     "image-error:" + err.Error(),
		}
	}
	return models.ChatResponse{
		Reply:        imageReply,
		Provider:     ProviderHFImage,
		ModelUsed:    model,
		Note:         "ok",
		ImageDataURI: uri,
	}
}

// call runs fn behind the breaker for provider+model and records the outcome.
func (c *Chain) call(ctx context.Context, provider, model string, fn func() error) error {
	err := c.breaker(provider+":"+model).ExecuteContext(ctx, fn)
	switch {
	case err == nil:
		telemetry.ProviderCall(provider, "ok")
	case errors.Is(err, resilience.ErrOpen):
		telemetry.ProviderCall(provider, "breaker-open")
		return fmt.Errorf("%s %s: %w", provider, model, err)
	default:
		telemetry.ProviderCall(provider, providers.CodeOf(err))
	}
	return err
}

func (c *Chain) breaker(key string) *resilience.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	cb, ok := c.breakers[key]
	if !ok {
		cb = resilience.NewCircuitBreaker(key, c.settings.BreakerThreshold, c.settings.BreakerCooldown)
		c.breakers[key] = cb
	}
	return cb
}

// fallbackWorthy reports whether a primary model failure should be retried on
// the fallback model. An open breaker counts: the primary is unavailable
// until its cooldown ends.
func fallbackWorthy(err error) bool {
	return providers.IsTransient(err) || errors.Is(err, resilience.ErrOpen)
}

func failureCode(err error) string {
	if errors.Is(err, resilience.ErrOpen) {
		return "breaker-open"
	}
	return providers.CodeOf(err)
}

func openAIFailure(err error) string {
	var pe *providers.Error
	if errors.As(err, &pe) && pe.Status != 0 {
		return strconv.Itoa(pe.Status)
	}
	return failureCode(err)
}

// NewTraceID returns "<start ms in base 36>-<6 random hex chars>".
func NewTraceID(start time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strconv.FormatInt(start.UnixMilli(), 36) + "-" + random[:6]
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
