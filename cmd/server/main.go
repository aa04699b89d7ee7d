package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bilozorDev/orests-journal-ios-app/internal/config"
	"github.com/bilozorDev/orests-journal-ios-app/internal/handler"
	"github.com/bilozorDev/orests-journal-ios-app/internal/logger"
	"github.com/bilozorDev/orests-journal-ios-app/internal/metrics"
	"github.com/bilozorDev/orests-journal-ios-app/internal/repository"
	"github.com/bilozorDev/orests-journal-ios-app/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "journal server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	log, err := logger.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	for _, w := range cfg.Warnings {
		log.Warn("Configuration fallback", zap.String("detail", w))
	}

	log.Info("Pet health journal search",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	metrics.Register()
	gin.SetMode(cfg.Server.GinMode)

	repo, err := repository.NewPostgresRepository(
		cfg.GetPostgreSQLDSN(),
		cfg.PostgreSQL.MaxConnections,
		cfg.PostgreSQL.MaxIdleConnections,
	)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer repo.Close()

	log.Info("Connected to PostgreSQL database")

	embedder, err := service.NewEmbedder(cfg.Embedding, log)
	if err != nil {
		return err
	}

	log.Info("Embedding provider initialized",
		zap.String("provider", cfg.Embedding.Provider),
		zap.String("model", cfg.Embedding.Model),
		zap.Int("dimensions", cfg.Embedding.Dimensions))

	searchCfg := service.SearchServiceConfig{
		Embedder:       embedder,
		Events:         repo,
		Shaper:         service.NewResultShaper(cfg.Search.ChronologicalIntent),
		MatchThreshold: cfg.Search.MatchThreshold,
		MatchCount:     cfg.Search.MatchCount,
		MaxMatchCount:  cfg.Search.MaxMatchCount,
		Logger:         log.Named("search"),
	}
	if cfg.Search.LogEnabled {
		searchCfg.SearchLog = repo
	}
	searchService := service.NewSearchService(searchCfg)

	indexer := service.NewEmbeddingIndexer(embedder, repo, service.IndexerConfig{
		BatchSize:     cfg.Backfill.BatchSize,
		Concurrency:   cfg.Backfill.Concurrency,
		RatePerSecond: cfg.Backfill.RatePerSecond,
	}, log.Named("indexer"))

	searchHandler := handler.NewSearchHandler(searchService, repo)
	embeddingHandler := handler.NewEmbeddingHandler(embedder, indexer)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestLogger(log.Named("http")))
	router.Use(metrics.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.Server.AllowedOrigins}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Content-Type", "Authorization", "apikey"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status, code := "healthy", http.StatusOK
		if err := repo.Ping(ctx); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":     status,
			"service":    "pet-health-journal-search",
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		// Search endpoints
		apiV1.POST("/search", searchHandler.Search)
		apiV1.POST("/search/stream", searchHandler.SearchStream)
		apiV1.GET("/events/:id", searchHandler.GetEvent)

		// Embedding endpoints
		apiV1.POST("/embeddings/query", embeddingHandler.EmbedQuery)
		apiV1.POST("/embeddings/backfill", embeddingHandler.Backfill)
		apiV1.POST("/webhooks/health-embedding", embeddingHandler.Webhook)
	}

	srv := &http.Server{
		Addr:              cfg.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info("Shutting down server", zap.Stringer("signal", sig))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
