package api

import (
	"net/http"
	"strconv"
	"time"

	"assessment-results/internal/logger"

	"github.com/gin-gonic/gin"
)

const (
	PartyIDHeader = "X-Party-Id"
	partyIDKey    = "party_id"
)

func CORSMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+PartyIDHeader)

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func LoggingMiddleware() gin.HandlerFunc {
	log := logger.Component("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("Request handled")
	}
}

func RecoveryMiddleware() gin.HandlerFunc {
	log := logger.Component("http")
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		log.Error().Interface("panic", recovered).Str("path", c.Request.URL.Path).Msg("Recovered from panic")
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	})
}

// ActingUserMiddleware resolves the editing teacher from the X-Party-Id header
// set by the upstream gateway.
func ActingUserMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		partyID, err := strconv.ParseInt(c.GetHeader(PartyIDHeader), 10, 64)
		if err != nil || partyID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid " + PartyIDHeader + " header"})
			return
		}
		c.Set(partyIDKey, partyID)
		c.Next()
	}
}

func actingPartyID(c *gin.Context) int64 {
	return c.GetInt64(partyIDKey)
}
