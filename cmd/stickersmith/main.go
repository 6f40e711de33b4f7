package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stickersmith/stickersmith/internal/config"
	"github.com/stickersmith/stickersmith/internal/logging"
	"github.com/stickersmith/stickersmith/internal/server"
	"github.com/stickersmith/stickersmith/pkg/pipeline"
	"github.com/stickersmith/stickersmith/pkg/planner"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	flag.Parse()

	// Missing .env is fine; the environment may be set another way.
	_ = godotenv.Load()
	log := logging.Init()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFromFile(*configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load config")
		}
		cfg = loaded
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	client, err := buildPlanner(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up planner backend")
	}
	if client == nil {
		log.Info().Msg("planner disabled, running deterministic-only")
	} else {
		log.Info().Str("backend", cfg.Planner.Backend).Str("model", cfg.Planner.Model).Msg("planner enabled")
	}

	pipe := pipeline.New(pipeline.Options{
		Client: client,
		Planner: planner.Config{
			Timeout:     cfg.Planner.Timeout(),
			MaxTokens:   cfg.Planner.MaxTokens,
			Temperature: cfg.Planner.Temperature,
		},
		Logger: log,
	})

	srv, err := server.New(cfg, pipe, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up server")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("shutdown incomplete")
	}
}

func buildPlanner(cfg *config.Config) (planner.Client, error) {
	switch cfg.Planner.Backend {
	case "openrouter":
		return planner.NewOpenRouter(cfg.Planner.APIKey, cfg.Planner.BaseURL, cfg.Planner.Model)
	case "ollama":
		base := cfg.Planner.BaseURL
		if base == "" || base == config.Default().Planner.BaseURL {
			base = "http://127.0.0.1:11434"
		}
		return planner.NewOllama(base, cfg.Planner.Model)
	default:
		return nil, nil
	}
}
