package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/wordclip/wordclip/internal/analysis"
	"github.com/wordclip/wordclip/internal/config"
	"github.com/wordclip/wordclip/internal/entitlement"
	"github.com/wordclip/wordclip/internal/job"
	"github.com/wordclip/wordclip/internal/logger"
	"github.com/wordclip/wordclip/internal/media"
	"github.com/wordclip/wordclip/internal/quota"
	"github.com/wordclip/wordclip/internal/search"
	"github.com/wordclip/wordclip/internal/segment"
	"github.com/wordclip/wordclip/internal/storage/pg"
	"github.com/wordclip/wordclip/internal/streaming"
	"github.com/wordclip/wordclip/internal/wordindex"
	"github.com/wordclip/wordclip/internal/worker"
)

func main() {
	config.LoadConfig()
	cfg := config.AppConfig

	log := logger.New(logger.FromConfig(cfg.LogLevel, cfg.LogFormat))

	gin.SetMode(cfg.GinMode)

	// Scratch directory for audio and caption files.
	if err := os.MkdirAll(cfg.ScratchDir, 0o755); err != nil {
		log.Error("failed to create scratch dir", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Initialize database (runs migrations).
	db, err := pg.InitDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to initialize database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.DB.Close()

	// Stores.
	segmentStore := segment.NewStore(db.DB, log)
	jobStore := job.NewStore(db.DB, log)
	wordIndex := wordindex.NewStore(db.DB, log)
	analysisStore := analysis.NewStore(db.DB, log)
	counterStore := quota.NewPGCounterStore(db.DB)

	// External collaborators.
	ytdlp := media.NewYtDlp(cfg.YtDlpPath, log)
	transcriber := media.NewWhisperTranscriber(cfg.FFmpegPath, cfg.WhisperPath, cfg.WhisperModel, log)
	aiProvider := analysis.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.AnalysisModel, log)
	entitlements := entitlement.NewPGProvider(db.DB)

	// Quota engine.
	quotaEngine := quota.NewEngine(
		counterStore,
		entitlements,
		cfg.FreeAnalysisLimit,
		time.Duration(cfg.FreeAnalysisWindowMin)*time.Minute,
		log,
	)
	throttle := quota.ThrottleLimits{
		UserLimit: cfg.ThrottleUserLimit,
		IPLimit:   cfg.ThrottleIPLimit,
		Window:    time.Duration(cfg.ThrottleWindowMinutes) * time.Minute,
	}

	// Streaming analysis.
	registry := streaming.NewRegistry(cfg.MaxActiveStreams, log)
	analysisService := analysis.NewService(analysisStore, aiProvider, registry, log)

	// Search pipeline and worker pool.
	pipeline := worker.NewPipeline(jobStore, segmentStore, wordIndex, ytdlp, ytdlp, transcriber, worker.PipelineConfig{
		ScratchDir:              cfg.ScratchDir,
		ChunkSeconds:            cfg.ChunkSeconds,
		MaxChunks:               cfg.MaxChunks,
		MaxCandidates:           cfg.MaxCandidates,
		ResultsPerStrategy:      cfg.ResultsPerStrategy,
		JobTimeout:              time.Duration(cfg.JobTimeoutMinutes) * time.Minute,
		EnglishMinFunctionWords: cfg.EnglishMinFunctionWords,
		EnglishMaxNonASCIIRatio: cfg.EnglishMaxNonASCIIRatio,
	}, log)
	pool := worker.NewPool(jobStore, pipeline, cfg.MaxConcurrentJobs,
		time.Duration(cfg.JobPollIntervalSecs)*time.Second, log)
	pool.Start()

	// Services and handlers.
	searchService := search.NewService(segmentStore, jobStore, log)
	searchHandler := search.NewHandler(searchService, quotaEngine, throttle, log)
	analysisHandler := analysis.NewHandler(analysisService, quotaEngine, throttle, log)
	wordHandler := wordindex.NewHandler(wordIndex, log)

	router := setupRouter(routerInput{
		logger:          log,
		searchHandler:   searchHandler,
		analysisHandler: analysisHandler,
		wordHandler:     wordHandler,
		wordIndex:       wordIndex,
		registry:        registry,
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("server listening", slog.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	pool.Shutdown()
	registry.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(),
		time.Duration(cfg.ServerShutdownTimeoutSeconds)*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	log.Info("server exited")
}

type routerInput struct {
	logger          *logger.Logger
	searchHandler   *search.Handler
	analysisHandler *analysis.Handler
	wordHandler     *wordindex.Handler
	wordIndex       *wordindex.Store
	registry        *streaming.Registry
}

func setupRouter(input routerInput) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	// CORS middleware.
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", config.AppConfig.CORSAllowedOrigins)
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Request-scoped logging context.
	router.Use(func(c *gin.Context) {
		requestID := uuid.New().String()
		c.Request = c.Request.WithContext(logger.WithRequestID(c.Request.Context(), requestID))
		c.Header("X-Request-ID", requestID)
		c.Next()
	})

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.POST("/search", input.searchHandler.Search)

	router.POST("/analyze", input.analysisHandler.Analyze)
	router.POST("/analyze/stream", input.analysisHandler.AnalyzeStream)

	router.GET("/examples/:word", input.wordHandler.GetExamples)
	router.GET("/word/:word", input.wordHandler.GetWord)
	router.GET("/words", input.wordHandler.ListWords)

	router.GET("/stats", func(c *gin.Context) {
		stats, err := input.wordIndex.GetStats(c.Request.Context())
		if err != nil {
			input.logger.Error("failed to load stats", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load stats"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"totalWords":    stats.TotalWords,
			"totalMappings": stats.TotalMappings,
			"streams":       input.registry.GetMetrics(),
		})
	})

	return router
}
