package server

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const apiKeyHeader = "X-API-Key"

// requireAPIKey gates a route group behind the shared secret. The key is
// accepted from the X-API-Key header or the api_key query parameter. An
// unset server-side key fails closed: protected endpoints refuse to serve
// rather than silently disabling auth.
func requireAPIKey(configured string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if configured == "" {
			abortError(c, http.StatusInternalServerError, "API_KEY not configured",
				"set API_KEY in the environment to protect this endpoint")
			return
		}

		provided := c.GetHeader(apiKeyHeader)
		if provided == "" {
			provided = c.Query("api_key")
		}
		if provided == "" {
			abortError(c, http.StatusUnauthorized, "missing API key",
				"provide the key via the X-API-Key header or the api_key query parameter")
			return
		}
		if !equalKeys(provided, configured) {
			abortError(c, http.StatusForbidden, "invalid API key",
				"the provided API key is incorrect")
			return
		}
		c.Next()
	}
}

// equalKeys compares keys in constant time regardless of length.
func equalKeys(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}

func abortError(c *gin.Context, status int, errMsg, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"error": errMsg, "message": detail})
}

// requestLogger logs each request with zerolog.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msg("http request")
	}
}
