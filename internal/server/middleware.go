package server

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obsmetrics "github.com/smallbiznis/pasar/internal/observability/metrics"
	"github.com/smallbiznis/pasar/pkg/log/ctxlogger"
	"go.uber.org/zap"
)

const contextUserIDKey = "user_id"

// RequestID tags every request with an id that follows it through the
// logs.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := strings.TrimSpace(c.GetHeader("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)
		ctx := ctxlogger.WithRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", ctxlogger.RequestID(c.Request.Context())),
		}
		if c.Writer.Status() >= 500 {
			log.Error("http request", fields...)
		} else {
			log.Info("http request", fields...)
		}
	}
}

func HTTPMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		obsmetrics.HTTPRequests.WithLabelValues(
			c.Request.Method,
			route,
			statusLabel(c.Writer.Status()),
		).Inc()
		obsmetrics.HTTPDuration.WithLabelValues(c.Request.Method, route).
			Observe(time.Since(start).Seconds())
	}
}

func statusLabel(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}

// AuthRequired verifies the bearer token and stashes the caller's id.
func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := s.authenticate(c)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.Set(contextUserIDKey, userID)
		c.Next()
	}
}

// authenticate resolves the caller from the Authorization header, or
// from an access_token query parameter for transports that cannot set
// headers (the browser WebSocket API).
func (s *Server) authenticate(c *gin.Context) (snowflake.ID, error) {
	token := ""
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if strings.HasPrefix(header, "Bearer ") {
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	return s.verifier.Verify(token)
}

func currentUserID(c *gin.Context) snowflake.ID {
	value, ok := c.Get(contextUserIDKey)
	if !ok {
		return 0
	}
	userID, ok := value.(snowflake.ID)
	if !ok {
		return 0
	}
	return userID
}
