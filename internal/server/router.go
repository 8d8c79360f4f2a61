package server

import (
	"net/http"

	"chatrelay/internal/config"
	"chatrelay/internal/metrics"
	"chatrelay/internal/mw"
	"chatrelay/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps 是 HTTP 层依赖的组件句柄，由 main 在启动时创建。
type Deps struct {
	Users   UserStore
	Chats   ChatLister
	Hub     *ws.Hub
	Relay   ws.Dispatcher
	Limiter *mw.Limiter
}

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	if d.Limiter != nil {
		r.Use(mw.RateLimit(d.Limiter))
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": d.Hub.Connections()})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	h := NewHandler(d.Users, d.Chats, cfg)
	api := r.Group("/api")
	api.POST("/users", h.UpsertUser)
	api.POST("/users/create", h.UpsertUser)
	api.GET("/users/:id/chats", h.ListChats)

	r.GET("/ws", ws.Serve(d.Hub, d.Relay, cfg))
	return r
}
