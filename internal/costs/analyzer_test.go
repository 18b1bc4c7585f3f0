package costs

import (
	"database/sql"
	"testing"
	"time"

	"github.com/netra-labs/netra/internal/connmon"
	"github.com/netra-labs/netra/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stagingProfile() config.TimeoutProfile {
	return config.ProfileFor(config.EnvStaging)
}

func healthyStats() connmon.Stats {
	return connmon.Stats{
		Environment:   config.EnvStaging,
		Attempts:      200,
		Successes:     198,
		Failures:      2,
		SuccessRate:   0.99,
		ViolationRate: 0.0,
		MinDuration:   200 * time.Millisecond,
		MaxDuration:   2 * time.Second,
		AvgDuration:   500 * time.Millisecond,
		WindowSize:    100,
	}
}

func TestAnalyzer_OversizedPool(t *testing.T) {
	a := NewAnalyzer()

	poolStats := sql.DBStats{
		MaxOpenConnections: 25,
		OpenConnections:    3,
		Idle:               2,
	}

	report := a.Analyze(config.EnvStaging, stagingProfile(), healthyStats(), poolStats)

	var found *Recommendation
	for i := range report.Recommendations {
		if report.Recommendations[i].Resource == "max_open_conns" {
			found = &report.Recommendations[i]
		}
	}
	require.NotNil(t, found, "expected a pool size recommendation")
	assert.Equal(t, "25", found.Current)
	assert.Equal(t, "6", found.Recommended)
	assert.Greater(t, found.EstimatedMonthlySaving, 0.0)
	assert.Greater(t, report.EstimatedMonthlySaving, 0.0)
}

func TestAnalyzer_RightSizedPoolIsQuiet(t *testing.T) {
	a := NewAnalyzer()

	poolStats := sql.DBStats{
		MaxOpenConnections: 25,
		OpenConnections:    20,
		Idle:               1,
	}

	report := a.Analyze(config.EnvStaging, stagingProfile(), healthyStats(), poolStats)

	for _, rec := range report.Recommendations {
		assert.NotEqual(t, "max_open_conns", rec.Resource)
	}
}

func TestAnalyzer_IdleConnections(t *testing.T) {
	a := NewAnalyzer()

	poolStats := sql.DBStats{
		MaxOpenConnections: 25,
		OpenConnections:    20,
		Idle:               5, // staging allows 5 idle, more than half are idle
	}

	report := a.Analyze(config.EnvStaging, stagingProfile(), healthyStats(), poolStats)

	var resources []string
	for _, rec := range report.Recommendations {
		resources = append(resources, rec.Resource)
	}
	assert.Contains(t, resources, "max_idle_conns")
}

func TestAnalyzer_GenerousTimeout(t *testing.T) {
	a := NewAnalyzer()

	// Slowest attempt 2s against a 45s staging budget
	report := a.Analyze(config.EnvStaging, stagingProfile(), healthyStats(), sql.DBStats{})

	var found *Recommendation
	for i := range report.Recommendations {
		if report.Recommendations[i].Resource == "connection_timeout" {
			found = &report.Recommendations[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "45s", found.Current)
	assert.Equal(t, "6s", found.Recommended)
}

func TestAnalyzer_TimeoutNeedsEnoughSamples(t *testing.T) {
	a := NewAnalyzer()

	stats := healthyStats()
	stats.Attempts = 5

	report := a.Analyze(config.EnvStaging, stagingProfile(), stats, sql.DBStats{})

	for _, rec := range report.Recommendations {
		assert.NotEqual(t, "connection_timeout", rec.Resource)
	}
}

func TestAnalyzer_ReliabilityBeforeCost(t *testing.T) {
	a := NewAnalyzer()

	stats := healthyStats()
	stats.SuccessRate = 0.70
	stats.ViolationRate = 0.30

	report := a.Analyze(config.EnvStaging, stagingProfile(), stats, sql.DBStats{})

	var resources []string
	var severities []Severity
	for _, rec := range report.Recommendations {
		resources = append(resources, rec.Resource)
		severities = append(severities, rec.Severity)
	}
	assert.Contains(t, resources, "vpc_connector")
	assert.Contains(t, resources, "database")
	assert.Contains(t, severities, SeverityHigh)
}

func TestAnalyzer_ReliabilityNeedsWindow(t *testing.T) {
	a := NewAnalyzer()

	stats := healthyStats()
	stats.SuccessRate = 0.50
	stats.WindowSize = 5

	report := a.Analyze(config.EnvStaging, stagingProfile(), stats, sql.DBStats{})

	for _, rec := range report.Recommendations {
		assert.NotEqual(t, "database", rec.Resource)
	}
}
