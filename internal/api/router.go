package api

import (
	"github.com/gin-gonic/gin"

	"github.com/netra-labs/netra/internal/startup"
	"github.com/netra-labs/netra/pkg/config"
	"github.com/netra-labs/netra/pkg/health"
	"github.com/netra-labs/netra/pkg/logging"
	"github.com/netra-labs/netra/pkg/metrics"
)

// RouterConfig bundles the dependencies the HTTP surface needs
type RouterConfig struct {
	Config         *config.Config
	Logger         *logging.Logger
	Metrics        *metrics.Metrics
	HealthService  *health.Service
	State          *startup.AppState
	Sessions       *SessionHandler
	Monitoring     *MonitoringHandler
	Costs          *CostHandler
	AllowedOrigins []string
}

// NewRouter creates the HTTP router. Health, metrics and monitoring routes
// stay reachable at every availability level; the session API is gated.
func NewRouter(rc RouterConfig) *gin.Engine {
	if rc.Config.Environment == config.EnvProduction || rc.Config.Environment == config.EnvStaging {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(RequestIDMiddleware())
	router.Use(RecoveryMiddleware(rc.Logger, rc.Metrics))
	router.Use(LoggingMiddleware(rc.Logger))
	router.Use(CORSMiddleware(rc.AllowedOrigins))
	if rc.Metrics != nil {
		router.Use(rc.Metrics.PrometheusMiddleware())
	}

	// Probes and metrics
	router.GET("/health", rc.HealthService.Handler())
	router.GET("/health/live", rc.HealthService.LivenessHandler())
	router.GET("/health/ready", rc.HealthService.ReadinessHandler())
	if rc.Metrics != nil {
		router.GET("/metrics", gin.WrapH(rc.Metrics.Handler()))
	}

	v1 := router.Group("/api/v1")

	// Operational visibility stays up even when the service is degraded
	if rc.Monitoring != nil {
		monitoring := v1.Group("/monitoring")
		{
			monitoring.GET("/connections", rc.Monitoring.GetConnectionStats)
			monitoring.GET("/connections/:environment", rc.Monitoring.GetConnectionStatsForEnvironment)
			monitoring.GET("/connector", rc.Monitoring.GetConnectorStatus)
			monitoring.GET("/startup", rc.Monitoring.GetStartupStatus)
			monitoring.GET("/timeouts", rc.Monitoring.GetTimeoutProfiles)
		}
	}

	if rc.Costs != nil {
		v1.GET("/costs/report", rc.Costs.GetReport)
	}

	// Business routes are gated on the availability level
	if rc.Sessions != nil {
		sessions := v1.Group("/sessions")
		sessions.Use(AvailabilityMiddleware(rc.State))
		{
			sessions.POST("", rc.Sessions.CreateSession)
			sessions.GET("", rc.Sessions.ListSessions)
			sessions.GET("/:id", rc.Sessions.GetSession)
			sessions.POST("/:id/archive", rc.Sessions.ArchiveSession)
			sessions.DELETE("/:id", rc.Sessions.DeleteSession)
			sessions.POST("/:id/messages", rc.Sessions.AppendMessage)
			sessions.GET("/:id/messages", rc.Sessions.ListMessages)
		}
	}

	return router
}
