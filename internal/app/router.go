package app

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gamehub/internal/auth"
	"gamehub/internal/catalog"
	"gamehub/internal/covers"
	"gamehub/internal/games"
	"gamehub/internal/hub"
	"gamehub/internal/jobs"
	"gamehub/internal/metrics"
)

// Router builds the HTTP surface: public reads, admin writes behind a
// bearer token, and the operational endpoints.
func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), a.requestLog(), requestMetrics())
	_ = router.SetTrustedProxies([]string{"127.0.0.1"})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/ready", a.ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/ws", hub.WSHandler(a.Hub))

	auth.NewHandler(auth.Admin{
		Username:     a.Config.Auth.AdminUser,
		PasswordHash: a.Config.Auth.AdminPassHash,
	}, a.Tokens).RegisterRoutes(router.Group("/auth"))

	games.NewHandler(a.Games).RegisterRoutes(router.Group("/games"))

	admin := router.Group("/admin")
	admin.Use(auth.AdminOnly(a.Tokens))
	catalog.NewHandler(a.Catalog).RegisterRoutes(admin)
	jobs.NewHandler(a.Jobs, a.Enrich).RegisterRoutes(admin)
	covers.NewHandler(a.Covers).RegisterRoutes(admin)

	return router
}

func (a *App) ready(c *gin.Context) {
	stats := a.Hub.Stats()
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := a.DB.PingContext(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "not_ready",
			"db_error":   err.Error(),
			"ws_clients": stats.WSClients,
		})
		return
	}
	if a.Badger.IsClosed() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "covers": "closed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":      "ready",
		"db":          "ok",
		"tcp_clients": stats.TCPClients,
		"ws_clients":  stats.WSClients,
	})
}

func (a *App) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		a.Log.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
		)
	}
}

func requestMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.APIRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
