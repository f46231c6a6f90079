package wordindex

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	apierrors "github.com/wordclip/wordclip/internal/errors"
	"github.com/wordclip/wordclip/internal/logger"
)

// Handler exposes the read side of the word index.
type Handler struct {
	store  *Store
	logger *logger.Logger
}

// NewHandler creates a word index handler.
func NewHandler(store *Store, log *logger.Logger) *Handler {
	return &Handler{store: store, logger: log.WithComponent("word-index-handler")}
}

// GetExamples handles GET /examples/:word — the bare example list.
func (h *Handler) GetExamples(c *gin.Context) {
	word := c.Param("word")

	entry, err := h.store.FindByWord(c.Request.Context(), word)
	if err != nil {
		h.logger.Error("failed to look up word", slog.String("word", word), slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to look up word", nil)
		return
	}
	if entry == nil {
		apierrors.AbortWithNotFound(c, "No examples found for word", map[string]interface{}{"word": word})
		return
	}

	c.JSON(http.StatusOK, entry.Examples)
}

// GetWord handles GET /word/:word — the entry with its count.
func (h *Handler) GetWord(c *gin.Context) {
	word := c.Param("word")

	entry, err := h.store.FindByWord(c.Request.Context(), word)
	if err != nil {
		h.logger.Error("failed to look up word", slog.String("word", word), slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to look up word", nil)
		return
	}
	if entry == nil {
		apierrors.AbortWithNotFound(c, "Word not found", map[string]interface{}{"word": word})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"word":     entry.Word,
		"examples": entry.Examples,
		"count":    len(entry.Examples),
	})
}

// ListWords handles GET /words?limit&offset — an alphabetical page.
func (h *Handler) ListWords(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if err != nil || limit < 1 || limit > 1000 {
		limit = 100
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	words, err := h.store.ListWords(c.Request.Context(), limit, offset)
	if err != nil {
		h.logger.Error("failed to list words", slog.String("error", err.Error()))
		apierrors.AbortWithInternal(c, "Failed to list words", nil)
		return
	}
	if words == nil {
		words = []string{}
	}

	c.JSON(http.StatusOK, gin.H{
		"words":  words,
		"limit":  limit,
		"offset": offset,
	})
}
