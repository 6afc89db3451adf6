package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ugc-studio/internal/config"
	"ugc-studio/internal/handler"
	"ugc-studio/internal/llm"
	"ugc-studio/internal/metrics"
	"ugc-studio/internal/service"
	"ugc-studio/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "./configs/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := logger.Init(cfg.Log.Level, cfg.Log.Format); err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, err := llm.NewRegistryFromConfig(ctx, cfg.Providers)
	if err != nil {
		logger.Fatalf("Failed to build chat providers: %v", err)
	}

	files, err := service.NewFileStore(cfg.Uploads)
	if err != nil {
		logger.Fatalf("Failed to prepare upload directories: %v", err)
	}

	store := service.NewStorage(cfg.Storage)
	defer store.Close()

	generator := service.NewGenerator(registry, cfg.Generation.SystemPrompt, cfg.Generation.MaxHistoryMessages)
	images := llm.NewImageGenerator(cfg.Providers, cfg.Generation.Storyboard)
	chatService := service.NewChatService(cfg, store, generator, images, files)
	go chatService.RunCleanup(ctx)

	limiter := handler.NewRateLimiter(cfg.RateLimit)
	go limiter.Run(ctx, time.Minute)

	chatHandler := handler.NewChatHandler(chatService, files, cfg.Generation.StreamTimeout)
	router := setupRouter(cfg, chatHandler, limiter, files)

	server := &http.Server{
		Addr:           fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
	}

	go func() {
		logger.Infof("Backend listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down backend...")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
	defer done()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}

	if cfg.Storage.Type == "disk" {
		if err := store.Backup(); err != nil {
			logger.Errorf("Backup failed: %v", err)
		}
	}
	logger.Info("Backend stopped")
}

func setupRouter(cfg *config.Config, chatHandler *handler.ChatHandler, limiter *handler.RateLimiter, files *service.FileStore) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.CORS)))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().Unix(),
		})
	})
	router.GET("/metrics", metrics.Handler())

	router.Static(service.UploadsRoute, files.UploadsDir())
	router.Static(service.GeneratedRoute, files.GeneratedDir())

	api := router.Group("/api", limiter.Middleware())
	chatHandler.RegisterRoutes(api)

	return router
}

func corsConfig(c config.CORSConfig) cors.Config {
	return cors.Config{
		AllowOrigins:     c.AllowedOrigins,
		AllowMethods:     c.AllowedMethods,
		AllowHeaders:     c.AllowedHeaders,
		ExposeHeaders:    c.ExposedHeaders,
		AllowCredentials: c.AllowCredentials,
		MaxAge:           time.Duration(c.MaxAge) * time.Second,
	}
}
