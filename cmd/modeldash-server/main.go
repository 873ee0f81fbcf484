// Package main provides the REST API server for modeldash.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/refinelab/modeldash/internal/config"
	"github.com/refinelab/modeldash/internal/db"
	"github.com/refinelab/modeldash/internal/embedding"
	"github.com/refinelab/modeldash/internal/kb"
	"github.com/refinelab/modeldash/internal/metrics"
	"github.com/refinelab/modeldash/internal/ollama"
	"github.com/refinelab/modeldash/internal/server"
	"github.com/refinelab/modeldash/internal/service"
	"github.com/refinelab/modeldash/internal/vectorstore/chroma"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	flag.Parse()

	// Local .env overrides are optional.
	_ = godotenv.Load()

	cfg, err := config.LoadFile(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()
	slog.SetDefault(logger)

	logger.Info("starting modeldash-server", "addr", cfg.ListenAddr)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	dbClient, err := db.NewClient(ctx, cfg.DatabasePath, logger)
	if err != nil {
		cancel()
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer dbClient.Close()

	if err := dbClient.InitSchema(ctx); err != nil {
		cancel()
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}
	if *wipeDB || os.Getenv("MODELDASH_WIPE_DB") == "true" {
		if err := dbClient.WipeData(ctx); err != nil {
			cancel()
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
		logger.Warn("database wiped")
	}
	cancel()

	collector := metrics.NewCollector()

	store := chroma.NewStore(chroma.Config{URL: cfg.ChromaURL})

	embedder, err := embedding.NewOllamaClient(cfg.EmbeddingModel, cfg.EmbeddingDim)
	if err != nil {
		logger.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	ollamaClient, err := ollama.NewClient(collector, logger)
	if err != nil {
		logger.Error("failed to create ollama client", "error", err)
		os.Exit(1)
	}

	kbManager := kb.NewManager(dbClient, store, embedder, collector, logger)
	trainer := service.NewTrainer(dbClient, kbManager, ollamaClient, nil, cfg.ModelfileDir, logger)
	jobs := service.NewJobManager(dbClient, trainer, logger)
	evaluator := service.NewEvaluator(dbClient, cfg.OllamaHost, cfg.EvalSampleLimit, collector, logger)

	srv := server.New(cfg, server.Deps{
		DB:        dbClient,
		KB:        kbManager,
		Store:     store,
		Embedder:  embedder,
		Ollama:    ollamaClient,
		Jobs:      jobs,
		Evaluator: evaluator,
		Metrics:   collector,
		Logger:    logger,
	})

	runCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
