package api

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/llmos-bridge/bridge/pkg/config"
)

// bearerAuth enforces the configured token on every grouped route. An
// empty configured token disables the check.
func bearerAuth(cfg *config.ServerConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := cfg.AuthToken()
		if token == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		presented, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			abortError(c, http.StatusUnauthorized, "invalid or missing bearer token")
			return
		}
		c.Next()
	}
}

// securityHeaders sets the standard security response headers.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Next()
	}
}

// requestLogger logs one line per request at debug, errors at warn.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Warn("Request failed", attrs...)
			return
		}
		logger.Debug("Request handled", attrs...)
	}
}

// clientIdentity names the caller for rate limiting and audit. Proxy
// headers win over the bare remote address.
func clientIdentity(c *gin.Context) string {
	if user := c.GetHeader("X-Forwarded-User"); user != "" {
		return user
	}
	if user := c.GetHeader("X-Remote-User"); user != "" {
		return user
	}
	return c.ClientIP()
}
