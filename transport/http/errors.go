package http

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dust3/gatekeeper/core"
)

// rejectionStatus maps stable rejection codes to HTTP statuses.
var rejectionStatus = map[core.Code]int{
	core.CodeRateLimited:          http.StatusTooManyRequests,
	core.CodeAccountLocked:        http.StatusTooManyRequests,
	core.CodeCSRFInvalid:          http.StatusForbidden,
	core.CodeNonceInvalid:         http.StatusBadRequest,
	core.CodeNonceReused:          http.StatusBadRequest,
	core.CodeSignatureInvalid:     http.StatusUnauthorized,
	core.CodeItemNotOwned:         http.StatusForbidden,
	core.CodeSlippageExceeded:     http.StatusConflict,
	core.CodeTreasuryInsufficient: http.StatusServiceUnavailable,
	core.CodeBuybackDisabled:      http.StatusServiceUnavailable,
}

// writeError renders err as a JSON error response. Guard rejections keep
// their stable code and message; anything else becomes a generic 500 with
// a correlation id, with the detail kept in the server log only.
func writeError(c *gin.Context, log *slog.Logger, err error) {
	var rejection *core.Rejection
	if errors.As(err, &rejection) {
		status, ok := rejectionStatus[rejection.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		if rejection.RetryAfter > 0 {
			seconds := int(math.Ceil(rejection.RetryAfter.Seconds()))
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		c.AbortWithStatusJSON(status, gin.H{
			"code":      string(rejection.Code),
			"error":     rejection.Message,
			"retryable": rejection.Retryable,
		})
		return
	}

	switch {
	case errors.Is(err, core.ErrTokenExpired):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token expired"})
	case errors.Is(err, core.ErrTokenInvalidated):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has been invalidated"})
	case errors.Is(err, core.ErrInvalidToken):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid token"})
	case errors.Is(err, core.ErrIdentityInactive):
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Account is deactivated"})
	case errors.Is(err, core.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Not found"})
	default:
		correlationID := uuid.New().String()
		log.Error("request failed",
			"correlation_id", correlationID,
			"path", c.FullPath(),
			"error", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":          "Internal server error",
			"correlation_id": correlationID,
		})
	}
}
