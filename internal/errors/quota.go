package errors

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// QuotaError represents a standardized 403 response for exhausted free-tier quota.
type QuotaError struct {
	Error               string `json:"error"`
	RequestsUsed        int    `json:"requestsUsed"`
	RequestsLimit       int    `json:"requestsLimit"`
	RetryAfterSeconds   int64  `json:"retryAfterSeconds"`
	RetryAfterFormatted string `json:"retryAfterFormatted"`
}

// AbortWithQuotaExceeded sends a 403 response for free-tier quota exhaustion.
func AbortWithQuotaExceeded(c *gin.Context, used, limit int, retryAfter time.Duration) {
	seconds := int64(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.FormatInt(seconds, 10))
	c.AbortWithStatusJSON(http.StatusForbidden, &QuotaError{
		Error:               "Free analysis quota exhausted. Subscribe for unlimited access.",
		RequestsUsed:        used,
		RequestsLimit:       limit,
		RetryAfterSeconds:   seconds,
		RetryAfterFormatted: FormatRetryAfter(retryAfter),
	})
}
