package errors

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// RateLimitError represents a standardized 429 Too Many Requests response.
type RateLimitError struct {
	Error               string `json:"error"`
	RetryAfterSeconds   int64  `json:"retryAfterSeconds"`
	RetryAfterFormatted string `json:"retryAfterFormatted"`
}

// AbortWithRateLimit sends a 429 response with a Retry-After header and aborts the request.
func AbortWithRateLimit(c *gin.Context, message string, retryAfter time.Duration) {
	seconds := int64(retryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.FormatInt(seconds, 10))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, &RateLimitError{
		Error:               message,
		RetryAfterSeconds:   seconds,
		RetryAfterFormatted: FormatRetryAfter(retryAfter),
	})
}

// FormatRetryAfter renders a duration as a human-readable wait hint.
func FormatRetryAfter(d time.Duration) string {
	if d < time.Minute {
		s := int64(d.Seconds())
		if s < 1 {
			s = 1
		}
		return fmt.Sprintf("%d seconds", s)
	}
	if d < time.Hour {
		return fmt.Sprintf("%d minutes", int64(d.Minutes()+0.5))
	}
	hours := int64(d.Hours())
	minutes := int64(d.Minutes()) - hours*60
	if minutes == 0 {
		return fmt.Sprintf("%d hours", hours)
	}
	return fmt.Sprintf("%d hours %d minutes", hours, minutes)
}
