package server

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"reefscan/internal/logging"
)

// NewRouter wires the API routes.
func NewRouter(h *Handler, log *zap.SugaredLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logging.OrNop(log)))

	r.GET("/healthz", Health)
	r.HEAD("/healthz", Health)

	v1 := r.Group("/v1")
	{
		v1.POST("/classify", h.Classify)
		v1.POST("/patches", h.Patch)
		v1.GET("/scans", h.Scans)
		v1.GET("/sites", h.Sites)
		v1.GET("/sites/trend.png", h.Trend)
	}
	return r
}

func requestLogger(log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugw("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
