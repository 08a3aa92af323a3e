package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"patient-rag-assistant/config"
	"patient-rag-assistant/llm"
	"patient-rag-assistant/observability"
	"patient-rag-assistant/rag"
)

const serviceName = "patient-rag-assistant"

func main() {
	_ = godotenv.Load()

	cfgPath := flag.String("config", "config.yaml", "path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger(serviceName, cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mp, err := observability.SetupMetrics(ctx, serviceName, cfg.Metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up metrics")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("metrics shutdown")
		}
	}()

	metrics, err := llm.NewMetrics(mp)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create metrics")
	}

	srv, err := NewServer(cfg, openAIBackend(cfg, metrics))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build server")
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 30*time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	log.Info().
		Str("addr", cfg.Server.Addr).
		Str("chat_model", cfg.OpenAI.ChatModel).
		Str("metrics_exporter", cfg.Metrics.Exporter).
		Msg("server running")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("server failed")
	}
}

// openAIBackend builds a client per credential. The "simple" embedding model
// swaps in the offline embedder while answers still come from the chat API.
func openAIBackend(cfg *config.AppConfig, metrics *llm.Metrics) BackendFactory {
	return func(apiKey string) (rag.Embedder, rag.Generator, error) {
		client, err := llm.NewClient(llm.Config{
			APIKey:         apiKey,
			BaseURL:        cfg.OpenAI.BaseURL,
			ChatModel:      cfg.OpenAI.ChatModel,
			EmbeddingModel: cfg.OpenAI.EmbeddingModel,
			Temperature:    *cfg.OpenAI.Temperature,
			MaxRetries:     cfg.OpenAI.MaxRetries,
			Timeout:        cfg.OpenAI.RequestTimeout,
			Metrics:        metrics,
		})
		if err != nil {
			return nil, nil, err
		}
		if cfg.OpenAI.EmbeddingModel == "simple" {
			return rag.NewSimpleEmbedder(), client, nil
		}
		return client, client, nil
	}
}
