package api

import (
	"github.com/gin-gonic/gin"
)

// RouteConfig holds the settings the routes depend on
type RouteConfig struct {
	JWTSecret    string
	JWTIssuer    string
	RateLimitRPS float64
}

func SetupRoutes(cfg RouteConfig, handler *Handler) *gin.Engine {
	router := gin.New()
	router.Use(Recover(), Observe())

	// Health endpoint (no auth)
	router.GET("/health", handler.Health)

	// Run routes, authenticated and throttled per caller
	limiter := NewRunLimiter(cfg.RateLimitRPS, int(cfg.RateLimitRPS*2))
	runs := router.Group("/api/v1/runs")
	runs.Use(RequireToken(cfg.JWTSecret, cfg.JWTIssuer), Throttle(limiter))
	{
		runs.POST("", handler.SubmitRun)
		runs.GET("/:id", handler.GetRun)
	}

	return router
}
