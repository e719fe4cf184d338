package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"artemis-proxy/internal/api"
	"artemis-proxy/internal/auth"
	"artemis-proxy/internal/cache"
	"artemis-proxy/internal/chat"
	"artemis-proxy/internal/config"
	"artemis-proxy/internal/embed"
	"artemis-proxy/internal/providers"

	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP proxy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	cfg := config.NewConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	slog.Info("Starting Artemis proxy",
		"port", cfg.HTTPPort,
		"openai", cfg.OpenAIConfigured(),
		"huggingface", cfg.HuggingFaceConfigured(),
	)

	var (
		vectorCache embed.VectorCache
		limiter     api.RateLimiter
	)
	if cfg.RedisAddr != "" {
		redisClient, err := cache.NewClient(cfg.RedisAddr, cfg.RateLimitPerMinute)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			return err
		}
		defer redisClient.Close()
		slog.Info("Connected to Redis", "addr", cfg.RedisAddr)
		vectorCache, limiter = redisClient, redisClient
	}

	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	openai := providers.NewOpenAI(cfg.AIAPIBase, cfg.AIAPIKey, httpClient)
	hf := providers.NewHuggingFace(cfg.HFAPIBase, cfg.HFToken, httpClient)

	chain := chat.NewChain(openai, hf, chat.Settings{
		OpenAIModel:      cfg.AIModel,
		HFChatModel:      cfg.HFChatModel,
		HFFallbackModel:  cfg.HFChatFallback,
		HFImageModel:     cfg.HFImageModel,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
	})
	embedder := embed.NewService(hf, cfg.HFClipModel, vectorCache, cfg.EmbedCacheTTL, httpClient)

	handler := api.NewHandler(chain, embedder, limiter)
	authMiddleware := auth.NewMiddleware(cfg.JWTSecret)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:           api.NewRouter(handler, authMiddleware),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server shutdown error", "error", err)
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
