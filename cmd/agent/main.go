// Command agent is the on-device sync agent. It keeps user actions in a
// local store, delivers them when the API is reachable, and serves the
// merged read path to the page.
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

	"github.com/wearesierraleone/frontend/internal/actions"
	"github.com/wearesierraleone/frontend/internal/config"
	"github.com/wearesierraleone/frontend/internal/connectivity"
	"github.com/wearesierraleone/frontend/internal/dataaccess"
	"github.com/wearesierraleone/frontend/internal/db"
	routes "github.com/wearesierraleone/frontend/internal/http"
	"github.com/wearesierraleone/frontend/internal/identity"
	applog "github.com/wearesierraleone/frontend/internal/logger"
	"github.com/wearesierraleone/frontend/internal/queue"
	"github.com/wearesierraleone/frontend/internal/remote"
	"github.com/wearesierraleone/frontend/internal/store"
	"github.com/wearesierraleone/frontend/internal/syncer"
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
	logger := applog.Named("agent")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Open the local store
	backend, err := db.Open(cfg.StoreURL)
	if err != nil {
		logger.Fatal("Failed to open local store", zap.Error(err))
	}
	st := store.New(backend)
	defer st.Close()

	// 3. Remote API and connectivity
	resolver, err := remote.NewResolver(cfg.DeploymentMode, cfg.APIBaseURL, cfg.DataBaseURL)
	if err != nil {
		logger.Fatal("Invalid deployment configuration", zap.Error(err))
	}
	client := remote.NewClient(resolver, cfg.ReadTimeout, cfg.WriteTimeout)
	network := connectivity.NewProbeStatus(client.Probe, cfg.ProbeInterval)

	opts := connectivity.DefaultOptions()
	opts.ReconnectDelay = cfg.SyncReconnectDelay
	opts.StartupDelay = cfg.SyncStartupDelay
	opts.Interval = cfg.SyncInterval
	monitor := connectivity.NewMonitor(network, client, opts)

	// 4. WebSocket hub for sync notifications
	hub := ws.NewHub()
	go hub.Run()
	defer hub.Close()

	// 5. Sync engine
	sc := &syncer.Context{
		Store:  st,
		Queue:  queue.New(st),
		Status: monitor,
		Remote: client,
		Notifier: syncer.NotifierFunc(func(_ context.Context, msg string) {
			logger.Info(msg)
			hub.Publish("sync", gin.H{"message": msg})
		}),
	}
	engine, err := syncer.NewEngine(*sc,
		syncer.WithMaxAttempts(cfg.MaxAttempts),
		syncer.WithRetryDelay(cfg.SyncRetryDelay),
	)
	if err != nil {
		logger.Fatal("Failed to build sync engine", zap.Error(err))
	}
	defer engine.Stop()
	monitor.SetDrainer(engine)

	go network.Run(ctx)
	go monitor.Run(ctx)

	// 6. Routes
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	env := &routes.AgentEnv{
		Actions: actions.New(sc, identity.New(st)),
		Data:    dataaccess.New(st, client),
		Queue:   sc.Queue,
		Sync:    monitor,
		Engine:  engine,
		Network: network,
		Mode:    resolver.Mode(),
	}
	routes.SetupAgentRoutes(router, env, hub, applog.Named("api"), cfg.CORSOrigin)

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:              ":" + cfg.AgentPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("Agent listening",
			zap.String("port", cfg.AgentPort),
			zap.String("mode", resolver.Mode()),
			zap.Int("queued", sc.Queue.Len(ctx)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down agent...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Agent forced to shutdown", zap.Error(err))
	}
	logger.Info("Agent exiting")
}
