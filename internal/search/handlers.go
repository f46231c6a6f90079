package search

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/wordclip/wordclip/internal/errors"
	"github.com/wordclip/wordclip/internal/job"
	"github.com/wordclip/wordclip/internal/logger"
	"github.com/wordclip/wordclip/internal/query"
	"github.com/wordclip/wordclip/internal/quota"
	"github.com/wordclip/wordclip/internal/segment"
)

// Handler exposes POST /search.
type Handler struct {
	service  *Service
	quotas   *quota.Engine
	throttle quota.ThrottleLimits
	logger   *logger.Logger
}

// NewHandler creates the search handler.
func NewHandler(service *Service, quotas *quota.Engine, throttle quota.ThrottleLimits, log *logger.Logger) *Handler {
	return &Handler{
		service:  service,
		quotas:   quotas,
		throttle: throttle,
		logger:   log.WithComponent("search-handler"),
	}
}

type searchBody struct {
	Query  string `json:"query"`
	JobID  string `json:"jobId,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// statusMessages are the human-readable progress lines for polling
// clients.
var statusMessages = map[job.Status]string{
	job.StatusQueued:       "Your search is queued",
	job.StatusSearching:    "Searching the video catalog",
	job.StatusDownloading:  "Downloading audio",
	job.StatusTranscribing: "Transcribing audio",
}

// Search handles POST /search: cache check, then enqueue or report.
func (h *Handler) Search(c *gin.Context) {
	var body searchBody
	if err := c.ShouldBindJSON(&body); err != nil || body.Query == "" {
		apierrors.AbortWithBadRequest(c, "query is required", nil)
		return
	}

	ctx := c.Request.Context()

	throttled, err := h.quotas.CheckThrottle(ctx, body.UserID, c.ClientIP(), "search", h.throttle)
	if err != nil {
		h.logger.Error("throttle check failed", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Rate limit check failed", nil)
		return
	}
	if !throttled.Allowed {
		apierrors.AbortWithRateLimit(c, "Too many requests", throttled.RetryAfter)
		return
	}

	resolution, err := h.service.Resolve(ctx, body.Query, body.JobID)
	if err != nil {
		if errors.Is(err, query.ErrInvalidInput) {
			apierrors.AbortWithBadRequest(c, err.Error(), nil)
			return
		}
		h.logger.Error("search resolution failed", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Search failed", nil)
		return
	}

	if resolution.Cached != nil {
		c.JSON(http.StatusOK, completedResponse("", body.Query, *resolution.Cached))
		return
	}

	j := resolution.Job
	switch {
	case j.Status == job.StatusCompleted && j.Result != nil:
		c.JSON(http.StatusOK, completedResponse(j.ID, j.Query, *j.Result))
	case j.Status == job.StatusFailed:
		c.JSON(http.StatusOK, gin.H{
			"status": string(job.StatusFailed),
			"jobId":  j.ID,
			"query":  j.Query,
			"error":  j.Error,
		})
	default:
		resp := gin.H{
			"status":  string(j.Status),
			"jobId":   j.ID,
			"query":   j.Query,
			"message": statusMessages[j.Status],
		}
		if j.CurrentVideoID != "" {
			resp["currentVideoId"] = j.CurrentVideoID
		}
		c.JSON(http.StatusOK, resp)
	}
}

// completedResponse shapes a finished segment, reconstructing the watch
// URL from the video id.
func completedResponse(jobID, originalQuery string, seg segment.Segment) gin.H {
	resp := gin.H{
		"status":    string(job.StatusCompleted),
		"query":     originalQuery,
		"videoId":   seg.VideoID,
		"videoUrl":  "https://www.youtube.com/watch?v=" + seg.VideoID,
		"startTime": seg.StartTime,
		"endTime":   seg.EndTime,
		"caption":   seg.Caption,
		"captions":  seg.Captions,
	}
	if jobID != "" {
		resp["jobId"] = jobID
	}
	return resp
}
