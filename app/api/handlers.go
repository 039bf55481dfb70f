package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/yt-monitor/app/database"
	"github.com/lysyi3m/yt-monitor/app/feed"
	"github.com/lysyi3m/yt-monitor/app/output"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

func NewHandler(configCache ConfigCounter, itemRepo database.ItemRepository, sourceRepo database.SourceRepository,
	backend, version string) *Handler {
	return &Handler{
		itemRepo:    itemRepo,
		sourceRepo:  sourceRepo,
		generator:   feed.NewGenerator(version),
		configCache: configCache,
		backend:     backend,
		version:     version,
	}
}

func (h *Handler) GetSummariesFeed(c *gin.Context) {
	items, err := h.itemRepo.ListRecentDelivered(c.Request.Context(), parseLimit(c))
	if err != nil {
		slog.Error("Database error", "operation", "list_recent", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	rss, err := h.generator.Run(selfLink(c), items)
	if err != nil {
		slog.Error("RSS generation error", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.Header("Content-Type", "application/xml; charset=utf-8")
	c.Header("X-Feed-Items", strconv.Itoa(len(items)))

	c.String(http.StatusOK, rss)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":                "ok",
		"timestamp":             time.Now().In(time.Local).Format(time.RFC3339),
		"output_backend":        h.backend,
		"loaded_configurations": h.configCache.GetConfigCount(),
	}

	if stats, err := h.itemRepo.GetStats(c.Request.Context()); err == nil {
		health["videos"] = stats.Items
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.itemRepo.GetStats(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "get_stats", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"videos":        stats.Items,
		"channels":      stats.Sources,
		"summary":       stats.ByGeneration,
		"output":        stats.ByDelivery,
		"tokens_input":  stats.InputTokens,
		"tokens_output": stats.OutputTokens,
	})
}

func (h *Handler) APIListSummaries(c *gin.Context) {
	items, err := h.itemRepo.ListRecentDelivered(c.Request.Context(), parseLimit(c))
	if err != nil {
		slog.Error("Database error", "operation", "list_recent", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	summaries := make([]itemSummary, 0, len(items))
	for _, item := range items {
		summaries = append(summaries, toSummary(item, false))
	}

	c.JSON(http.StatusOK, gin.H{
		"summaries": summaries,
		"total":     len(summaries),
	})
}

func (h *Handler) APIGetItem(c *gin.Context) {
	id := c.Param("id")

	item, err := h.itemRepo.GetItem(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Video not found"})
		return
	}
	if err != nil {
		slog.Error("Database error", "operation", "get_item", "item_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	c.JSON(http.StatusOK, toSummary(*item, true))
}

func (h *Handler) APIListSources(c *gin.Context) {
	sources, err := h.sourceRepo.ListSources(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "list_sources", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	channels := make([]gin.H, 0, len(sources))
	for _, s := range sources {
		channels = append(channels, gin.H{
			"channel_id":      s.ID,
			"name":            s.Name,
			"enabled":         s.Enabled,
			"error_count":     s.ErrorCount,
			"last_checked_at": s.LastCheckedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"channels": channels,
		"total":    len(channels),
	})
}

func toSummary(item database.Item, withTranscript bool) itemSummary {
	s := itemSummary{
		ID:               item.ID,
		ChannelID:        item.SourceID,
		ChannelName:      item.SourceName,
		Title:            item.Title,
		URL:              output.WatchURL + item.ID,
		PublishedAt:      item.PublishedAt,
		Tier:             item.Tier,
		Summary:          item.GeneratedText,
		InputTokens:      item.InputTokens,
		OutputTokens:     item.OutputTokens,
		GenerationStatus: string(item.GenerationStatus),
		GenerationError:  item.GenerationError,
		DeliveryStatus:   string(item.DeliveryStatus),
		DeliveryRef:      item.DeliveryRef,
		DeliveryError:    item.DeliveryError,
	}
	if withTranscript {
		s.Transcript = &item.ExtractedText
	}
	return s
}

func parseLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	return min(limit, maxLimit)
}

func selfLink(c *gin.Context) string {
	scheme := "http"
	if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + c.Request.Host + c.Request.URL.Path
}
