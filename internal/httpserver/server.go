package httpserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"clubportal/internal/util"
	"clubportal/pkg/metrics"
	"clubportal/pkg/trace"
)

// AuthMiddleware validates the bearer token and stores the member identity
// in the gin context for handlers.
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.ExtractToken(c.Request)
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			c.Abort()
			return
		}

		memberID, role, err := util.ParseJWT(token, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		c.Set("member_id", memberID)
		c.Set("role", role)

		c.Next()
	}
}

// TraceMiddleware propagates or mints the request trace id and echoes it in
// the response.
func TraceMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(trace.Header)
		if id == "" {
			id = trace.NewTraceID()
		}
		c.Request = c.Request.WithContext(trace.WithContext(c.Request.Context(), id))
		c.Header(trace.Header, id)
		c.Next()
	}
}

// MetricsMiddleware records per-route request durations.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequestDuration(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
