package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"ugc-studio/internal/client"
	"ugc-studio/internal/handler"
	"ugc-studio/internal/metrics"
	"ugc-studio/internal/studio"
	"ugc-studio/internal/utils"
	"ugc-studio/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

const maxAttachmentBytes = 20 << 20

func init() {
	serveCmd.Flags().Int("port", 0, "listen port (overrides studio.port)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the browser gateway",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if port, _ := cmd.Flags().GetInt("port"); port > 0 {
			cfg.Studio.Port = port
		}
		return serve(cmd.Context())
	},
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Replies are streamed, so the client has no overall timeout unless configured.
	httpClient := utils.NewHTTPClient(cfg.Studio.HTTPTimeout)
	studioHandler := handler.NewStudioHandler(func(sessionID string) *client.APIClient {
		return client.NewAPIClient(cfg.Studio.APIBaseURL, sessionID, httpClient)
	}, studio.Options{
		BaseURL:        cfg.Studio.APIBaseURL,
		Provider:       cfg.Studio.Provider,
		WelcomeMessage: cfg.Studio.WelcomeMessage,
		MaxAttachments: cfg.Studio.MaxAttachments,
	}, cfg.Studio.WorkspaceTTL, maxAttachmentBytes)

	workspaces := studioHandler.Workspaces()
	go workspaces.Run(ctx, cfg.Studio.CleanupInterval)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     cfg.CORS.AllowedMethods,
		AllowHeaders:     cfg.CORS.AllowedHeaders,
		ExposeHeaders:    cfg.CORS.ExposedHeaders,
		AllowCredentials: cfg.CORS.AllowCredentials,
		MaxAge:           time.Duration(cfg.CORS.MaxAge) * time.Second,
	}))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "ok",
			"workspaces": workspaces.Len(),
			"timestamp":  time.Now().Unix(),
		})
	})
	router.GET("/metrics", metrics.Handler())
	studioHandler.RegisterRoutes(router)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Studio.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("Studio gateway listening on port %d (backend %s)", cfg.Studio.Port, cfg.Studio.APIBaseURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down studio gateway...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Gateway shutdown failed: %v", err)
	}
	workspaces.CloseAll()
	return nil
}
