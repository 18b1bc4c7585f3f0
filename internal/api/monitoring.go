package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/netra-labs/netra/internal/connmon"
	"github.com/netra-labs/netra/internal/startup"
	"github.com/netra-labs/netra/internal/vpcmon"
	"github.com/netra-labs/netra/pkg/config"
)

// ConnectionStatsSource exposes rolling connection statistics
type ConnectionStatsSource interface {
	StatsFor(env config.Environment) (connmon.Stats, bool)
	AllStats() map[config.Environment]connmon.Stats
}

// ConnectorStatusSource exposes the VPC connector's capacity state
type ConnectorStatusSource interface {
	Snapshot() vpcmon.Snapshot
	ScaledTimeout(base time.Duration) time.Duration
}

// MonitoringHandler serves the operational read-only endpoints
type MonitoringHandler struct {
	connections ConnectionStatsSource
	connector   ConnectorStatusSource
	state       *startup.AppState
	report      *startup.Report
}

// NewMonitoringHandler creates a monitoring handler. The connector source
// and startup report may be nil when the corresponding subsystem is not
// running, endpoints degrade to partial responses.
func NewMonitoringHandler(connections ConnectionStatsSource, connector ConnectorStatusSource, state *startup.AppState, report *startup.Report) *MonitoringHandler {
	return &MonitoringHandler{
		connections: connections,
		connector:   connector,
		state:       state,
		report:      report,
	}
}

// GetConnectionStats returns rolling connection statistics for every
// environment that has recorded at least one attempt
// GET /api/v1/monitoring/connections
func (h *MonitoringHandler) GetConnectionStats(c *gin.Context) {
	SuccessResponse(c, gin.H{
		"environments": h.connections.AllStats(),
	})
}

// GetConnectionStatsForEnvironment returns connection statistics for one environment
// GET /api/v1/monitoring/connections/:environment
func (h *MonitoringHandler) GetConnectionStatsForEnvironment(c *gin.Context) {
	env, err := config.ParseEnvironment(c.Param("environment"))
	if err != nil {
		BadRequestResponse(c, err.Error())
		return
	}

	stats, ok := h.connections.StatsFor(env)
	if !ok {
		stats = connmon.Stats{Environment: env}
	}

	SuccessResponse(c, gin.H{
		"stats":   stats,
		"sampled": ok,
	})
}

// GetConnectorStatus returns the VPC connector capacity snapshot
// GET /api/v1/monitoring/connector
func (h *MonitoringHandler) GetConnectorStatus(c *gin.Context) {
	if h.connector == nil {
		ServiceUnavailableResponse(c, "connector monitoring is not running")
		return
	}

	SuccessResponse(c, h.connector.Snapshot())
}

// GetStartupStatus returns the boot report and current component availability
// GET /api/v1/monitoring/startup
func (h *MonitoringHandler) GetStartupStatus(c *gin.Context) {
	level := h.state.Level()

	components := make(map[string]string)
	for name, componentLevel := range h.state.Components() {
		components[name] = componentLevel.String()
	}

	data := gin.H{
		"level":      level.String(),
		"components": components,
	}
	if h.report != nil {
		data["boot"] = h.report
	}

	SuccessResponse(c, data)
}

type timeoutProfileView struct {
	config.TimeoutProfile
	ScaledConnection time.Duration `json:"scaled_connection_timeout"`
}

// GetTimeoutProfiles returns the per-environment timeout profiles, with
// the connection timeout each environment would get under the connector's
// current capacity state
// GET /api/v1/monitoring/timeouts
func (h *MonitoringHandler) GetTimeoutProfiles(c *gin.Context) {
	profiles := make(map[config.Environment]timeoutProfileView)
	for env, profile := range config.Profiles() {
		view := timeoutProfileView{
			TimeoutProfile:   profile,
			ScaledConnection: profile.Connection,
		}
		if h.connector != nil {
			view.ScaledConnection = h.connector.ScaledTimeout(profile.Connection)
		}
		profiles[env] = view
	}

	data := gin.H{"profiles": profiles}
	if h.connector != nil {
		data["connector_state"] = h.connector.Snapshot().StateName
	}

	SuccessResponse(c, data)
}
