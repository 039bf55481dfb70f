package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

const apiKeyHeader = "X-API-Key"

// NewServer builds the reporting API. The /api group is only mounted when
// an access key is configured.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(requestLogger(), gin.Recovery(), cors())

	r.GET("/feeds/summaries", handler.GetSummariesFeed)
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)

	endpoints := gin.H{
		"feed":   "/feeds/summaries",
		"health": "/health",
		"stats":  "/stats",
	}

	if apiAccessKey != "" {
		api := r.Group("/api", authMiddleware(apiAccessKey))
		api.GET("/summaries", handler.APIListSummaries)
		api.GET("/items/:id", handler.APIGetItem)
		api.GET("/channels", handler.APIListSources)

		endpoints["summaries"] = "/api/summaries?limit=<n>"
		endpoints["item"] = "/api/items/<video_id>"
		endpoints["channels"] = "/api/channels"
		slog.Info("Reporting API enabled", "auth_header", apiKeyHeader)
	} else {
		slog.Info("Reporting API disabled, API_ACCESS_KEY not set")
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":      "YT Monitor",
			"version":      handler.version,
			"endpoints":    endpoints,
			"api_enabled":  apiAccessKey != "",
			"auth_headers": []string{apiKeyHeader, "Authorization: Bearer"},
		})
	})
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if errs := c.Errors.String(); errs != "" {
			attrs = append(attrs, "error", errs)
		}

		if c.Writer.Status() >= http.StatusInternalServerError {
			slog.Error("HTTP request", attrs...)
			return
		}
		slog.Debug("HTTP request", attrs...)
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, "+apiKeyHeader+", Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// authMiddleware accepts the key in X-API-Key or as a bearer token.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(apiKeyHeader)
		if bearer, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer "); key == "" && ok {
			key = bearer
		}

		switch {
		case key == "":
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
		case subtle.ConstantTimeCompare([]byte(key), []byte(apiAccessKey)) != 1:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
		default:
			c.Next()
		}
	}
}
