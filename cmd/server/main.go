// Command server is the development data server. It accepts the writes
// the agent syncs and serves the resulting JSON tree under /data.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wearesierraleone/frontend/internal/config"
	"github.com/wearesierraleone/frontend/internal/flatfile"
	routes "github.com/wearesierraleone/frontend/internal/http"
	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/ws"
)

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if err := applog.Init(cfg.Env, cfg.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer applog.Sync()
	logger := applog.Named("server")

	// 2. Open the data tree
	tree, err := flatfile.Open(cfg.DataDir)
	if err != nil {
		logger.Fatal("Failed to open data directory", zap.String("dir", cfg.DataDir), zap.Error(err))
	}

	// 3. Initialize WebSocket Hub
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Close()

	// 4. Initialize Gin Router
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// 5. Setup Routes
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	env := &routes.Env{Tree: tree, Hub: hub, Log: applog.Named("data")}
	routes.SetupDataRoutes(ctx, router, env, hub, cfg.CORSOrigin)

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Data server listening", zap.String("port", cfg.Port), zap.String("dataDir", cfg.DataDir))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exiting")
}
