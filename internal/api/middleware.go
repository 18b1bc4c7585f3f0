package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/netra-labs/netra/internal/startup"
	"github.com/netra-labs/netra/pkg/logging"
	"github.com/netra-labs/netra/pkg/metrics"
)

// RequestIDMiddleware adds a unique request ID to each request and
// threads it through the logging context
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Header("X-Request-ID", id)
		c.Set("request_id", id)

		ctx := logging.WithRequestID(c.Request.Context(), id)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// LoggingMiddleware logs each request through the structured logger
func LoggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.LogRequest(
			c.Request.Context(),
			c.Request.Method,
			c.FullPath(),
			c.Request.UserAgent(),
			c.ClientIP(),
			c.Writer.Status(),
			time.Since(start),
		)
	}
}

// RecoveryMiddleware converts panics into 500 responses and counts them
func RecoveryMiddleware(logger *logging.Logger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Request handler panicked",
					"panic", fmt.Sprintf("%v", r),
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
				)
				if m != nil {
					m.RecordPanic("api")
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, APIResponse{
					Success: false,
					Error: &APIError{
						Code:    "INTERNAL_ERROR",
						Message: "An internal error occurred",
					},
					RequestID: requestID(c),
					Timestamp: time.Now(),
				})
			}
		}()
		c.Next()
	}
}

// CORSMiddleware configures cross-origin access for the dashboard
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}

	if len(allowedOrigins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = allowedOrigins
	}

	return cors.New(cfg)
}

// AvailabilityMiddleware gates requests on the application's availability
// level: unavailable rejects everything, minimal rejects writes. Health
// and monitoring routes are mounted outside this middleware so operators
// can always see what is wrong.
func AvailabilityMiddleware(state *startup.AppState) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch level := state.Level(); level {
		case startup.LevelUnavailable:
			ServiceUnavailableResponse(c, "service is unavailable")
			c.Abort()
		case startup.LevelMinimal:
			if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
				ServiceUnavailableResponse(c, "service is running at minimal availability; writes are disabled")
				c.Abort()
				return
			}
			c.Next()
		default:
			c.Next()
		}
	}
}
