package analysis

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	apierrors "github.com/wordclip/wordclip/internal/errors"
	"github.com/wordclip/wordclip/internal/logger"
	"github.com/wordclip/wordclip/internal/quota"
	"github.com/wordclip/wordclip/internal/streaming"
)

// Handler exposes the analysis surface: the buffered JSON endpoint and
// the SSE streaming endpoint, both behind the quota gates.
type Handler struct {
	service  *Service
	quotas   *quota.Engine
	throttle quota.ThrottleLimits
	logger   *logger.Logger
}

// NewHandler creates the analysis handler.
func NewHandler(service *Service, quotas *quota.Engine, throttle quota.ThrottleLimits, log *logger.Logger) *Handler {
	return &Handler{
		service:  service,
		quotas:   quotas,
		throttle: throttle,
		logger:   log.WithComponent("analysis-handler"),
	}
}

// response is the buffered endpoint's body.
type response struct {
	Result
	Cached      bool `json:"cached"`
	AccessCount int  `json:"accessCount"`
}

// gate runs validation and both limiters. Returns the request and false
// when the request was already answered.
func (h *Handler) gate(c *gin.Context) (Request, bool) {
	var req Request
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.AbortWithBadRequest(c, "Invalid request body", nil)
		return Request{}, false
	}
	if err := req.Validate(); err != nil {
		apierrors.AbortWithBadRequest(c, err.Error(), nil)
		return Request{}, false
	}

	ctx := c.Request.Context()
	clientIP := c.ClientIP()

	throttled, err := h.quotas.CheckThrottle(ctx, req.UserID, clientIP, "analyze", h.throttle)
	if err != nil {
		h.logger.Error("throttle check failed", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Rate limit check failed", nil)
		return Request{}, false
	}
	if !throttled.Allowed {
		apierrors.AbortWithRateLimit(c, "Too many requests", throttled.RetryAfter)
		return Request{}, false
	}

	identity := req.UserID
	if identity == "" {
		identity = "ip:" + clientIP
	}
	decision, err := h.quotas.CheckAIQuota(ctx, identity)
	if err != nil {
		h.logger.Error("quota check failed", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Quota check failed", nil)
		return Request{}, false
	}

	setPaywallHeaders(c, decision)
	if !decision.Allowed {
		apierrors.AbortWithQuotaExceeded(c, decision.Used, decision.Limit, decision.RetryAfter)
		return Request{}, false
	}

	return req, true
}

// setPaywallHeaders reports quota consumption on every gated response.
func setPaywallHeaders(c *gin.Context, d quota.Decision) {
	if d.HasSubscription {
		c.Header("X-Paywall-Requests-Limit", "unlimited")
	} else {
		c.Header("X-Paywall-Requests-Limit", strconv.Itoa(d.Limit))
	}
	c.Header("X-Paywall-Requests-Used", strconv.Itoa(d.Used))
	c.Header("X-Paywall-Has-Subscription", strconv.FormatBool(d.HasSubscription))
}

// Analyze handles POST /analyze — the buffered JSON form.
func (h *Handler) Analyze(c *gin.Context) {
	req, ok := h.gate(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	fp := req.Fingerprint()
	log := h.logger.WithContext(logger.WithFingerprint(ctx, fp))

	record, err := h.service.FindCached(ctx, fp)
	if err != nil {
		log.Error("cache lookup failed", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to look up analysis", nil)
		return
	}
	if record != nil {
		c.JSON(http.StatusOK, response{Result: record.Result, Cached: true, AccessCount: record.AccessCount})
		return
	}

	stream, created, err := h.service.StartOrJoin(req)
	if err != nil {
		if errors.Is(err, streaming.ErrRegistryFull) {
			apierrors.AbortWithUpstreamUnavailable(c, "Analysis capacity exhausted, try again shortly")
			return
		}
		log.Error("failed to start analysis stream", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to start analysis", nil)
		return
	}
	log.Debug("awaiting analysis stream", slog.Bool("created", created))

	result, err := h.service.Await(ctx, stream)
	if err != nil {
		if errors.Is(err, ctx.Err()) && ctx.Err() != nil {
			return // client went away
		}
		apierrors.AbortWithUpstreamUnavailable(c, "Analysis failed: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, response{Result: result, Cached: false, AccessCount: 1})
}

// AnalyzeStream handles POST /analyze/stream — the SSE form.
func (h *Handler) AnalyzeStream(c *gin.Context) {
	req, ok := h.gate(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	fp := req.Fingerprint()
	log := h.logger.WithContext(logger.WithFingerprint(ctx, fp))

	record, err := h.service.FindCached(ctx, fp)
	if err != nil {
		log.Error("cache lookup failed", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to look up analysis", nil)
		return
	}
	if record != nil {
		h.replayRecord(c, record, log)
		return
	}

	stream, created, err := h.service.StartOrJoin(req)
	if err != nil {
		if errors.Is(err, streaming.ErrRegistryFull) {
			apierrors.AbortWithUpstreamUnavailable(c, "Analysis capacity exhausted, try again shortly")
			return
		}
		log.Error("failed to start analysis stream", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to start analysis", nil)
		return
	}

	flusher := h.startSSE(c)
	if flusher == nil {
		return
	}

	sub := stream.Subscribe(ctx)
	defer h.service.registry.Unsubscribe(fp, sub.ID)

	log.Debug("streaming analysis to client",
		slog.Bool("created", created),
		slog.String("subscriber_id", sub.ID))

	for {
		select {
		case frame, open := <-sub.Ch:
			if !open {
				return
			}
			if !writeFrame(c, flusher, frame.Payload()) {
				return
			}
			if frame.IsTerminal() {
				return
			}
		case <-ctx.Done():
			return
		case <-sub.Context().Done():
			return
		}
	}
}

// replayRecord streams a cached transcript with pacing, then the
// terminal frame.
func (h *Handler) replayRecord(c *gin.Context, record *Record, log *logger.Logger) {
	flusher := h.startSSE(c)
	if flusher == nil {
		return
	}

	ctx := c.Request.Context()
	for _, step := range ReplayPlan(record) {
		if ctx.Err() != nil {
			return
		}
		frame := streaming.Frame{Kind: streaming.FrameChunk, Text: step.Text}
		if !writeFrame(c, flusher, frame.Payload()) {
			return
		}
		if step.Delay > 0 {
			time.Sleep(step.Delay)
		}
	}

	done := streaming.Frame{
		Kind:         streaming.FrameDone,
		FullResponse: FullResponseText(record.Result),
	}
	writeFrame(c, flusher, done.Payload())

	log.Debug("cached analysis replayed", slog.Int("access_count", record.AccessCount))
}

// startSSE sets the event-stream headers and returns the flusher.
func (h *Handler) startSSE(c *gin.Context) http.Flusher {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		h.logger.Error("response writer doesn't support flushing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Streaming not supported"})
		return nil
	}
	return flusher
}

// writeFrame emits one SSE data frame. Returns false when the client is
// gone.
func writeFrame(c *gin.Context, flusher http.Flusher, payload []byte) bool {
	if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
