package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"domain-check-gateway/internal/api/handlers"
	"domain-check-gateway/internal/api/middleware"
)

func NewRouter(h *handlers.Handler, mode string, logger *zap.Logger) *gin.Engine {
	gin.SetMode(mode)
	router := gin.New()

	// Middleware
	router.Use(middleware.Logger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())

	router.POST("/check", h.Check)
	router.GET("/stats/data", h.StatsData)
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router
}
