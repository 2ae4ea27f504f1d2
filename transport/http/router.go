package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/dust3/gatekeeper/guard/ratelimit"
	"github.com/dust3/gatekeeper/service"
)

// SetupRouter sets up the Gin router
func SetupRouter(
	gate *service.AuthGate,
	buyback *service.BuybackService,
	limiter *ratelimit.Limiter,
	rates RateClasses,
	log *slog.Logger,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogMiddleware(log))

	handlers := NewHandlers(gate, buyback, rates, log)

	router.GET("/csrf-token", RateLimitMiddleware(limiter, rates.General), handlers.CSRFToken)

	// Auth routes
	auth := router.Group("/auth")
	{
		auth.POST("/connect", handlers.Connect)
		auth.POST("/refresh", RateLimitMiddleware(limiter, rates.Connect), handlers.Refresh)
		auth.POST("/logout", RateLimitMiddleware(limiter, rates.Connect), handlers.Logout)
	}

	// Buyback routes
	buybackGroup := router.Group("/buyback")
	{
		buybackGroup.GET("/quote/:item", RateLimitMiddleware(limiter, rates.Quote), handlers.Quote)
		buybackGroup.POST("/settle", AuthMiddleware(gate), handlers.Settle)
		buybackGroup.GET("/settlements/:item", AuthMiddleware(gate), handlers.History)
	}

	// Protected API routes
	api := router.Group("/api")
	api.Use(AuthMiddleware(gate))
	{
		api.GET("/me", handlers.Me)
	}

	// Operator routes
	admin := router.Group("/admin")
	admin.Use(AuthMiddleware(gate), AdminMiddleware(gate))
	{
		admin.GET("/settlements/:item", handlers.SettlementStatus)
	}

	return router
}
