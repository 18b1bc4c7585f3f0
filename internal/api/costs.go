package api

import (
	"database/sql"

	"github.com/gin-gonic/gin"

	"github.com/netra-labs/netra/internal/connmon"
	"github.com/netra-labs/netra/internal/costs"
	"github.com/netra-labs/netra/pkg/config"
)

// PoolStatsSource exposes the live database pool counters
type PoolStatsSource interface {
	Stats() sql.DBStats
}

// CostHandler serves connection cost analysis reports
type CostHandler struct {
	analyzer    *costs.Analyzer
	connections ConnectionStatsSource
	pool        PoolStatsSource
	defaultEnv  config.Environment
}

// NewCostHandler creates a cost handler rooted at the running environment
func NewCostHandler(analyzer *costs.Analyzer, connections ConnectionStatsSource, pool PoolStatsSource, defaultEnv config.Environment) *CostHandler {
	return &CostHandler{
		analyzer:    analyzer,
		connections: connections,
		pool:        pool,
		defaultEnv:  defaultEnv,
	}
}

// GetReport returns pool right-sizing and timeout recommendations.
// Pool counters are only live for the environment this instance runs in;
// reports for other environments rely on connection stats alone.
// GET /api/v1/costs/report?environment=staging
func (h *CostHandler) GetReport(c *gin.Context) {
	env := h.defaultEnv
	if raw := c.Query("environment"); raw != "" {
		parsed, err := config.ParseEnvironment(raw)
		if err != nil {
			BadRequestResponse(c, err.Error())
			return
		}
		env = parsed
	}

	stats, ok := h.connections.StatsFor(env)
	if !ok {
		stats = connmon.Stats{Environment: env}
	}

	var poolStats sql.DBStats
	if h.pool != nil && env == h.defaultEnv {
		poolStats = h.pool.Stats()
	}

	report := h.analyzer.Analyze(env, config.ProfileFor(env), stats, poolStats)
	SuccessResponse(c, report)
}
