package web

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yanayukhimuk/Logging/core"
	"github.com/yanayukhimuk/Logging/pkg/auth"
)

// systemController serves health, metrics and the admin API
type systemController struct {
	health  *core.HealthMonitor
	stats   func() map[string]core.SinkStats
	metrics http.Handler
	keyring *auth.Keyring
}

func newSystemController(opts Options) *systemController {
	return &systemController{
		health:  opts.Health,
		stats:   opts.Stats,
		metrics: opts.Metrics,
		keyring: opts.Keyring,
	}
}

func (s *systemController) MountRoutes(router gin.IRouter) {
	router.GET("/health", s.Health)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics))
	}
	if s.stats != nil {
		admin := router.Group("/admin", auth.RequireAPIKey(s.keyring))
		admin.GET("/sinks", s.Sinks)
	}
}

// Health reports the last known state of every checked sink. With
// ?refresh=true a check round runs first.
func (s *systemController) Health(c *gin.Context) {
	if s.health == nil {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
		return
	}

	if c.Query("refresh") == "true" {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
		s.health.CheckNow(ctx)
		cancel()
	}

	status, code := "ok", http.StatusOK
	if !s.health.Healthy() {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"status": status,
		"sinks":  s.health.Status(),
	})
}

// Sinks returns the delivery counters of every sink
func (s *systemController) Sinks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sinks": s.stats()})
}
