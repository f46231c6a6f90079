package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AbortWithUpstreamUnavailable sends a 503 response for upstream provider failures.
// Used when the AI provider is unreachable or returns transient errors after retries.
func AbortWithUpstreamUnavailable(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, NewAPIError(message, nil))
}
