package costs

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/netra-labs/netra/internal/connmon"
	"github.com/netra-labs/netra/pkg/config"
	"github.com/netra-labs/netra/pkg/logging"
)

// Estimated monthly cost carried by one pooled connection: Cloud SQL
// memory per backend plus the connector throughput it reserves.
const monthlyCostPerConnection = 1.75

// Severity of a cost finding
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Recommendation is one actionable cost or reliability finding
type Recommendation struct {
	Resource               string   `json:"resource"`
	Severity               Severity `json:"severity"`
	Current                string   `json:"current"`
	Recommended            string   `json:"recommended"`
	Reason                 string   `json:"reason"`
	EstimatedMonthlySaving float64  `json:"estimated_monthly_saving"`
}

// Report bundles the findings for one environment
type Report struct {
	Environment            config.Environment `json:"environment"`
	GeneratedAt            time.Time          `json:"generated_at"`
	Recommendations        []Recommendation   `json:"recommendations"`
	EstimatedMonthlySaving float64            `json:"estimated_monthly_saving"`
}

// Analyzer derives pool right-sizing and timeout recommendations from
// observed connection behavior
type Analyzer struct {
	logger *logging.Logger
}

// NewAnalyzer creates a cost analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{logger: logging.GetLogger()}
}

// Analyze compares the configured timeout profile against observed
// connection stats and current pool usage, and returns right-sizing
// recommendations. A report with no recommendations means the
// configuration matches observed load.
func (a *Analyzer) Analyze(env config.Environment, profile config.TimeoutProfile, stats connmon.Stats, poolStats sql.DBStats) *Report {
	report := &Report{
		Environment: env,
		GeneratedAt: time.Now(),
	}

	a.checkPoolSize(report, profile, poolStats)
	a.checkIdleConnections(report, profile, poolStats)
	a.checkConnectionTimeout(report, profile, stats)
	a.checkReliability(report, stats)

	for _, rec := range report.Recommendations {
		report.EstimatedMonthlySaving += rec.EstimatedMonthlySaving
	}

	a.logger.Info("Cost analysis completed",
		"environment", string(env),
		"recommendations", len(report.Recommendations),
		"estimated_monthly_saving", report.EstimatedMonthlySaving,
	)

	return report
}

// checkPoolSize flags pools provisioned far beyond observed peak usage
func (a *Analyzer) checkPoolSize(report *Report, profile config.TimeoutProfile, poolStats sql.DBStats) {
	if poolStats.MaxOpenConnections <= 0 {
		return
	}

	// Size to twice the observed open connections, floor of 5
	peak := poolStats.OpenConnections
	recommended := peak * 2
	if recommended < 5 {
		recommended = 5
	}

	if recommended >= poolStats.MaxOpenConnections {
		return
	}

	excess := poolStats.MaxOpenConnections - recommended
	report.Recommendations = append(report.Recommendations, Recommendation{
		Resource:               "max_open_conns",
		Severity:               SeverityMedium,
		Current:                fmt.Sprintf("%d", poolStats.MaxOpenConnections),
		Recommended:            fmt.Sprintf("%d", recommended),
		Reason:                 fmt.Sprintf("pool allows %d connections but only %d were open", poolStats.MaxOpenConnections, peak),
		EstimatedMonthlySaving: float64(excess) * monthlyCostPerConnection,
	})
}

// checkIdleConnections flags idle pools holding connections open
func (a *Analyzer) checkIdleConnections(report *Report, profile config.TimeoutProfile, poolStats sql.DBStats) {
	if profile.MaxIdleConns <= 2 {
		return
	}

	if poolStats.Idle <= profile.MaxIdleConns/2 {
		return
	}

	recommended := profile.MaxIdleConns / 2
	report.Recommendations = append(report.Recommendations, Recommendation{
		Resource:               "max_idle_conns",
		Severity:               SeverityLow,
		Current:                fmt.Sprintf("%d", profile.MaxIdleConns),
		Recommended:            fmt.Sprintf("%d", recommended),
		Reason:                 fmt.Sprintf("%d connections sit idle; idle backends still consume instance memory", poolStats.Idle),
		EstimatedMonthlySaving: float64(profile.MaxIdleConns-recommended) * monthlyCostPerConnection * 0.5,
	})
}

// checkConnectionTimeout flags timeouts far above observed worst-case
// connection latency
func (a *Analyzer) checkConnectionTimeout(report *Report, profile config.TimeoutProfile, stats connmon.Stats) {
	if stats.Attempts < 20 || stats.MaxDuration == 0 {
		return
	}

	// Keep 3x headroom over the slowest observed attempt
	headroom := stats.MaxDuration * 3
	if headroom >= profile.Connection {
		return
	}

	recommended := headroom.Round(time.Second)
	if recommended < 5*time.Second {
		recommended = 5 * time.Second
	}
	if recommended >= profile.Connection {
		return
	}

	report.Recommendations = append(report.Recommendations, Recommendation{
		Resource:    "connection_timeout",
		Severity:    SeverityLow,
		Current:     profile.Connection.String(),
		Recommended: recommended.String(),
		Reason: fmt.Sprintf("slowest of %d observed attempts took %s; a %s timeout hides real outages",
			stats.Attempts, stats.MaxDuration.Round(time.Millisecond), profile.Connection),
	})
}

// checkReliability flags environments where spending is masking a
// reliability problem rather than solving it
func (a *Analyzer) checkReliability(report *Report, stats connmon.Stats) {
	if stats.WindowSize < 10 {
		return
	}

	if stats.ViolationRate > 0.20 {
		report.Recommendations = append(report.Recommendations, Recommendation{
			Resource:    "vpc_connector",
			Severity:    SeverityHigh,
			Current:     fmt.Sprintf("%.0f%% timeout violations", stats.ViolationRate*100),
			Recommended: "raise connector min instances",
			Reason:      "frequent timeout violations usually mean the connector is cold-starting; pre-provisioned instances cost less than failed requests",
		})
	}

	if stats.SuccessRate < 0.90 {
		report.Recommendations = append(report.Recommendations, Recommendation{
			Resource:    "database",
			Severity:    SeverityHigh,
			Current:     fmt.Sprintf("%.0f%% success rate", stats.SuccessRate*100),
			Recommended: "investigate before resizing",
			Reason:      "pool changes on top of a failing database only shift the errors around",
		})
	}
}
