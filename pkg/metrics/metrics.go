package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight *prometheus.GaugeVec

	// Connection monitor metrics
	ConnectionAttempts    *prometheus.CounterVec
	ConnectionDuration    *prometheus.HistogramVec
	TimeoutViolations     *prometheus.CounterVec
	ConnectionSuccessRate *prometheus.GaugeVec

	// VPC connector metrics
	ConnectorState        *prometheus.GaugeVec
	ConnectorUtilization  *prometheus.GaugeVec
	ConnectorScaledTimeout *prometheus.GaugeVec

	// Startup / degradation metrics
	StartupPhaseDuration *prometheus.HistogramVec
	AvailabilityLevel    *prometheus.GaugeVec

	// Session metrics
	ActiveSessions *prometheus.GaugeVec
	MessagesTotal  *prometheus.CounterVec

	// System metrics
	DatabaseConnections *prometheus.GaugeVec
	RedisConnections    *prometheus.GaugeVec

	// Error metrics
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	Namespace string `json:"namespace"`
	Subsystem string `json:"subsystem"`
	Enabled   bool   `json:"enabled"`
}

// DefaultConfig returns default metrics configuration
func DefaultConfig() *Config {
	return &Config{
		Namespace: "netra",
		Subsystem: "",
		Enabled:   true,
	}
}

// NewMetrics creates and registers all Prometheus metrics on the default registerer
func NewMetrics(config *Config) *Metrics {
	return NewMetricsWithRegisterer(config, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates all Prometheus metrics and registers them
// on the given registerer. Tests pass their own registry.
func NewMetricsWithRegisterer(config *Config, reg prometheus.Registerer) *Metrics {
	if config == nil {
		config = DefaultConfig()
	}

	if !config.Enabled {
		return &Metrics{}
	}

	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestsInFlight: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "http_requests_in_flight",
				Help:      "Number of HTTP requests currently being processed",
			},
			[]string{"method", "path"},
		),
		ConnectionAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "db_connection_attempts_total",
				Help:      "Total number of database connection attempts",
			},
			[]string{"environment", "status"},
		),
		ConnectionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "db_connection_duration_seconds",
				Help:      "Database connection establishment duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 20, 45, 60, 95},
			},
			[]string{"environment"},
		),
		TimeoutViolations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "db_timeout_violations_total",
				Help:      "Connection attempts that exceeded the configured timeout",
			},
			[]string{"environment"},
		),
		ConnectionSuccessRate: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "db_connection_success_rate",
				Help:      "Rolling connection success rate per environment",
			},
			[]string{"environment"},
		),
		ConnectorState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "vpc_connector_state",
				Help:      "VPC connector capacity state (0=normal 1=pressure 2=scaling 3=overloaded)",
			},
			[]string{"connector"},
		),
		ConnectorUtilization: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "vpc_connector_utilization",
				Help:      "VPC connector utilization ratio",
			},
			[]string{"connector"},
		),
		ConnectorScaledTimeout: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "vpc_connector_scaled_timeout_seconds",
				Help:      "Effective connection timeout after capacity scaling",
			},
			[]string{"connector"},
		),
		StartupPhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "startup_phase_duration_seconds",
				Help:      "Startup phase duration in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 95},
			},
			[]string{"phase", "status"},
		),
		AvailabilityLevel: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "availability_level",
				Help:      "Service availability level (0=full 1=degraded 2=minimal 3=unavailable)",
			},
			[]string{"component"},
		),
		ActiveSessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "active_sessions",
				Help:      "Number of open chat sessions",
			},
			[]string{"environment"},
		),
		MessagesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "messages_total",
				Help:      "Total number of chat messages stored",
			},
			[]string{"role"},
		),
		DatabaseConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "database_connections",
				Help:      "Database connection pool status",
			},
			[]string{"state"},
		),
		RedisConnections: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "redis_connections",
				Help:      "Redis connection pool status",
			},
			[]string{"state"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "errors_total",
				Help:      "Total number of errors by component and type",
			},
			[]string{"component", "error_type"},
		),
		PanicsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: config.Namespace,
				Subsystem: config.Subsystem,
				Name:      "panics_total",
				Help:      "Total number of recovered panics",
			},
			[]string{"component"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.ConnectionAttempts,
		m.ConnectionDuration,
		m.TimeoutViolations,
		m.ConnectionSuccessRate,
		m.ConnectorState,
		m.ConnectorUtilization,
		m.ConnectorScaledTimeout,
		m.StartupPhaseDuration,
		m.AvailabilityLevel,
		m.ActiveSessions,
		m.MessagesTotal,
		m.DatabaseConnections,
		m.RedisConnections,
		m.ErrorsTotal,
		m.PanicsTotal,
	)

	return m
}

// RecordHTTPRequest records HTTP request metrics
func (m *Metrics) RecordHTTPRequest(method, path string, statusCode int, duration time.Duration) {
	if m.HTTPRequestsTotal == nil {
		return
	}

	statusStr := strconv.Itoa(statusCode)
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

// RecordConnectionAttempt records a database connection attempt
func (m *Metrics) RecordConnectionAttempt(environment string, success bool, duration time.Duration) {
	if m.ConnectionAttempts == nil {
		return
	}

	status := "success"
	if !success {
		status = "failure"
	}
	m.ConnectionAttempts.WithLabelValues(environment, status).Inc()
	m.ConnectionDuration.WithLabelValues(environment).Observe(duration.Seconds())
}

// RecordTimeoutViolation records a connection that ran past its timeout
func (m *Metrics) RecordTimeoutViolation(environment string) {
	if m.TimeoutViolations == nil {
		return
	}

	m.TimeoutViolations.WithLabelValues(environment).Inc()
}

// UpdateConnectionSuccessRate updates the rolling success rate gauge
func (m *Metrics) UpdateConnectionSuccessRate(environment string, rate float64) {
	if m.ConnectionSuccessRate == nil {
		return
	}

	m.ConnectionSuccessRate.WithLabelValues(environment).Set(rate)
}

// UpdateConnectorState updates VPC connector gauges
func (m *Metrics) UpdateConnectorState(connector string, state int, utilization float64, scaledTimeout time.Duration) {
	if m.ConnectorState == nil {
		return
	}

	m.ConnectorState.WithLabelValues(connector).Set(float64(state))
	m.ConnectorUtilization.WithLabelValues(connector).Set(utilization)
	m.ConnectorScaledTimeout.WithLabelValues(connector).Set(scaledTimeout.Seconds())
}

// RecordStartupPhase records a startup phase outcome
func (m *Metrics) RecordStartupPhase(phase, status string, duration time.Duration) {
	if m.StartupPhaseDuration == nil {
		return
	}

	m.StartupPhaseDuration.WithLabelValues(phase, status).Observe(duration.Seconds())
}

// UpdateAvailabilityLevel updates the availability level gauge
func (m *Metrics) UpdateAvailabilityLevel(component string, level int) {
	if m.AvailabilityLevel == nil {
		return
	}

	m.AvailabilityLevel.WithLabelValues(component).Set(float64(level))
}

// UpdateActiveSessions updates the open session gauge
func (m *Metrics) UpdateActiveSessions(environment string, count int64) {
	if m.ActiveSessions == nil {
		return
	}

	m.ActiveSessions.WithLabelValues(environment).Set(float64(count))
}

// RecordMessage records a stored chat message
func (m *Metrics) RecordMessage(role string) {
	if m.MessagesTotal == nil {
		return
	}

	m.MessagesTotal.WithLabelValues(role).Inc()
}

// UpdateDatabaseConnections updates database connection metrics
func (m *Metrics) UpdateDatabaseConnections(open, idle, max int) {
	if m.DatabaseConnections == nil {
		return
	}

	m.DatabaseConnections.WithLabelValues("open").Set(float64(open))
	m.DatabaseConnections.WithLabelValues("idle").Set(float64(idle))
	m.DatabaseConnections.WithLabelValues("max").Set(float64(max))
}

// UpdateRedisConnections updates Redis connection metrics
func (m *Metrics) UpdateRedisConnections(total, idle, stale int) {
	if m.RedisConnections == nil {
		return
	}

	m.RedisConnections.WithLabelValues("total").Set(float64(total))
	m.RedisConnections.WithLabelValues("idle").Set(float64(idle))
	m.RedisConnections.WithLabelValues("stale").Set(float64(stale))
}

// RecordError records error metrics
func (m *Metrics) RecordError(component, errorType string) {
	if m.ErrorsTotal == nil {
		return
	}

	m.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

// RecordPanic records panic metrics
func (m *Metrics) RecordPanic(component string) {
	if m.PanicsTotal == nil {
		return
	}

	m.PanicsTotal.WithLabelValues(component).Inc()
}

// PrometheusMiddleware creates a middleware for Prometheus metrics collection
func (m *Metrics) PrometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.HTTPRequestsInFlight != nil {
			m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Inc()
			defer m.HTTPRequestsInFlight.WithLabelValues(c.Request.Method, c.FullPath()).Dec()
		}

		start := time.Now()
		c.Next()
		duration := time.Since(start)

		m.RecordHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), duration)
	}
}

// Handler returns the Prometheus metrics HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
