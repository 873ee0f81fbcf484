// Package server exposes the dashboard REST API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/refinelab/modeldash/internal/config"
	"github.com/refinelab/modeldash/internal/db"
	"github.com/refinelab/modeldash/internal/embedding"
	"github.com/refinelab/modeldash/internal/kb"
	"github.com/refinelab/modeldash/internal/metrics"
	"github.com/refinelab/modeldash/internal/ollama"
	"github.com/refinelab/modeldash/internal/vectorstore"
)

// ModelManager is the Ollama surface the model endpoints depend on.
// Implemented by *ollama.Client; tests provide fakes.
type ModelManager interface {
	List(ctx context.Context) ([]ollama.Model, error)
	Show(ctx context.Context, name string) (*ollama.ModelDetails, error)
	Create(ctx context.Context, name, from, system string, params ollama.ModelfileParams) error
	Delete(ctx context.Context, name string) error
	Heartbeat(ctx context.Context) error
}

// JobRunner starts and stops background training jobs.
// Implemented by *service.JobManager.
type JobRunner interface {
	Start(ctx context.Context, jobID int64) error
	Stop(ctx context.Context, jobID int64) error
	Running() []int64
}

// EvaluationRunner starts and stops evaluation runs.
// Implemented by *service.Evaluator.
type EvaluationRunner interface {
	Start(ctx context.Context, evalID int64) error
	Stop(ctx context.Context, evalID int64) error
}

// Server wires the REST API to the dashboard services.
type Server struct {
	cfg       config.Config
	db        *db.Client
	kb        *kb.Manager
	store     vectorstore.Store
	embedder  embedding.Embedder
	ollama    ModelManager
	jobs      JobRunner
	evaluator EvaluationRunner
	metrics   *metrics.Collector
	logger    *slog.Logger

	http *http.Server
}

// Deps carries the service dependencies for a Server.
type Deps struct {
	DB        *db.Client
	KB        *kb.Manager
	Store     vectorstore.Store
	Embedder  embedding.Embedder
	Ollama    ModelManager
	Jobs      JobRunner
	Evaluator EvaluationRunner
	Metrics   *metrics.Collector
	Logger    *slog.Logger
}

// New creates a Server with its routes registered.
func New(cfg config.Config, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NewCollector()
	}

	s := &Server{
		cfg:       cfg,
		db:        deps.DB,
		kb:        deps.KB,
		store:     deps.Store,
		embedder:  deps.Embedder,
		ollama:    deps.Ollama,
		jobs:      deps.Jobs,
		evaluator: deps.Evaluator,
		metrics:   collector,
		logger:    logger,
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 60 * time.Second, // long for LLM-backed endpoints
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// router builds the gin engine with all API routes.
func (s *Server) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(s.logger))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "http://localhost:5173"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		api.GET("/stats", s.handleStats)

		api.GET("/datasets", s.handleListDatasets)
		api.POST("/datasets", s.handleCreateDataset)
		api.GET("/datasets/:id", s.handleGetDataset)
		api.DELETE("/datasets/:id", s.handleDeleteDataset)
		api.POST("/datasets/:id/favorite", s.handleToggleFavorite)

		api.GET("/training-jobs", s.handleListJobs)
		api.POST("/training-jobs", s.handleCreateJob)
		api.GET("/training-jobs/:id", s.handleGetJob)
		api.PUT("/training-jobs/:id", s.handleUpdateJob)
		api.DELETE("/training-jobs/:id", s.handleDeleteJob)
		api.POST("/training-jobs/:id/start", s.handleStartJob)
		api.POST("/training-jobs/:id/stop", s.handleStopJob)
		api.GET("/training-jobs/:id/status", s.handleJobStatus)
		api.GET("/training-history", s.handleTrainingHistory)
		api.POST("/detect-stuck-training", s.handleDetectStuckTraining)

		api.GET("/evaluations", s.handleListEvaluations)
		api.POST("/evaluations", s.handleCreateEvaluation)
		api.GET("/evaluations/:id", s.handleGetEvaluation)
		api.PUT("/evaluations/:id", s.handleUpdateEvaluation)
		api.DELETE("/evaluations/:id", s.handleDeleteEvaluation)
		api.POST("/evaluations/:id/start", s.handleStartEvaluation)
		api.POST("/evaluations/:id/stop", s.handleStopEvaluation)
		api.GET("/evaluations/:id/status", s.handleEvaluationStatus)

		// Model names can be namespaced (user/model:tag), so the name
		// segment is a wildcard rather than a path parameter.
		api.GET("/models", s.handleListModels)
		api.GET("/models/*name", s.handleGetModel)
		api.PUT("/models/*name", s.handleUpdateModel)
		api.DELETE("/models/*name", s.handleDeleteModel)

		rag := api.Group("/rag/jobs/:job_id")
		{
			rag.GET("/datasets", s.handleRAGListDatasets)
			rag.POST("/datasets/:dataset_id", s.handleRAGIngest)
			rag.DELETE("/datasets/:dataset_id", s.handleRAGDeleteDataset)
			rag.GET("/collections", s.handleRAGListCollections)
			rag.POST("/query", s.handleRAGQuery)
		}

		chroma := api.Group("/chromadb")
		{
			chroma.GET("/collections", s.handleChromaListCollections)
			chroma.GET("/collections/:name/count", s.handleChromaCount)
			chroma.POST("/collections/:name/query", s.handleChromaQuery)
			chroma.DELETE("/collections/:name", s.handleChromaDeleteCollection)
		}
	}

	return router
}

// Run starts the HTTP server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.ListenAddr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

// Handler returns the HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}
