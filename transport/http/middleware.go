package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dust3/gatekeeper/core"
	"github.com/dust3/gatekeeper/guard/ratelimit"
	"github.com/dust3/gatekeeper/service"
)

const sessionWalletKey = "sessionWallet"

// AuthMiddleware creates middleware that validates access tokens
func AuthMiddleware(gate *service.AuthGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		if len(auth) < 8 || auth[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}

		session, err := gate.ValidateAccess(auth[7:])
		if err != nil {
			if err == core.ErrTokenExpired {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
			} else {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			}
			return
		}

		c.Set(sessionWalletKey, session.Wallet)

		c.Next()
	}
}

// AdminMiddleware refuses wallets outside the operator allow-list. It
// must run after AuthMiddleware.
func AdminMiddleware(gate *service.AuthGate) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString(sessionWalletKey)
		if wallet == "" || !gate.IsAdmin(wallet) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
		c.Next()
	}
}

// RateLimitMiddleware bounds request volume per client IP for endpoints
// that skip the full admission pipeline.
func RateLimitMiddleware(limiter *ratelimit.Limiter, cfg ratelimit.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		res := limiter.Allow("ip:"+c.ClientIP(), cfg)
		if !res.Allowed {
			writeError(c, slog.Default(), core.RateLimited(res.RetryAfter))
			return
		}
		c.Next()
	}
}

// RequestLogMiddleware logs one line per request.
func RequestLogMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"ip", c.ClientIP(),
			"duration", time.Since(start))
	}
}
