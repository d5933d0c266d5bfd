package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/wearesierraleone/frontend/internal/ws"
)

const limiterCleanupEvery = 10 * time.Minute

func useCommon(router *gin.Engine, log *zap.Logger, corsOrigin string) {
	router.Use(LoggerMiddleware(log))
	router.Use(gin.Recovery())
	router.Use(SecurityHeadersMiddleware())
	router.Use(CORSMiddleware(corsOrigin))
}

func serveWs(hub *ws.Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws.ServeWs(hub, c.Writer, c.Request)
	}
}

// SetupDataRoutes configures the development data server: the write
// endpoints the agent syncs to, and the static data tree they maintain.
// The limiter cleanup goroutine stops with ctx.
func SetupDataRoutes(ctx context.Context, router *gin.Engine, env *Env, hub *ws.Hub, corsOrigin string) {
	if env.Log == nil {
		env.Log = zap.NewNop()
	}
	useCommon(router, env.Log, corsOrigin)

	if env.WriteRate == 0 {
		env.WriteRate = rate.Limit(rateLimitRPS)
	}
	if env.WriteBurst == 0 {
		env.WriteBurst = rateLimitBurst
	}
	limiter := NewIPRateLimiter(env.WriteRate, env.WriteBurst)
	go limiter.Cleanup(ctx, limiterCleanupEvery)

	// Only content creation is limited per IP.
	limited := RateLimitMiddleware(limiter)
	router.POST("/upvote", env.Upvote)
	router.POST("/downvote", env.Downvote)
	router.POST("/vote", env.Vote)
	router.POST("/comment", env.Comment)
	router.POST("/sign", env.Sign)
	router.POST("/submit", limited, env.Submit)
	router.POST("/report", limited, env.Report)
	router.POST("/create-petition", limited, env.CreatePetition)

	router.Static("/data", env.Tree.Root())

	if hub != nil {
		router.GET("/ws", serveWs(hub))
	}
}

// SetupAgentRoutes configures the local agent API that the page talks to.
func SetupAgentRoutes(router *gin.Engine, env *AgentEnv, hub *ws.Hub, log *zap.Logger, corsOrigin string) {
	useCommon(router, log, corsOrigin)

	api := router.Group("/api")
	{
		api.GET("/posts", env.GetPosts)
		api.POST("/posts", env.SubmitPost)
		api.GET("/posts/:id", env.GetPost)
		api.GET("/posts/:id/comments", env.GetComments)
		api.POST("/posts/:id/comments", env.Comment)
		api.POST("/posts/:id/comments/:commentId/flag", env.FlagComment)
		api.GET("/posts/:id/votes", env.GetVotes)
		api.POST("/posts/:id/vote", env.Vote)
		api.GET("/posts/:id/petition", env.GetPetition)
		api.POST("/posts/:id/sign", env.Sign)
		api.POST("/posts/:id/report", env.Report)

		api.GET("/sync/status", env.SyncStatus)
		api.POST("/sync/now", env.SyncNow)
		api.PUT("/connectivity", env.SetConnectivity)
	}

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if hub != nil {
		router.GET("/ws", serveWs(hub))
	}
}
