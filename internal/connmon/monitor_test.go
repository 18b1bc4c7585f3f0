package connmon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/netra-labs/netra/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.MonitorConfig {
	return config.MonitorConfig{
		SampleWindow:     100,
		MinSamples:       10,
		WarningRatio:     0.80,
		CriticalRatio:    0.95,
		MinSuccessRate:   0.90,
		MaxViolationRate: 0.20,
	}
}

// collectAlerts registers a recording callback on the monitor
func collectAlerts(mon *Monitor) *[]ThresholdAlert {
	var alerts []ThresholdAlert
	mon.OnAlert(func(alert ThresholdAlert) {
		alerts = append(alerts, alert)
	})
	return &alerts
}

func TestMonitor_RecordsCounters(t *testing.T) {
	mon := NewMonitor(testConfig())
	ctx := context.Background()

	mon.RecordAttempt(ctx, config.EnvDevelopment, 100*time.Millisecond, nil)
	mon.RecordAttempt(ctx, config.EnvDevelopment, 300*time.Millisecond, nil)
	mon.RecordAttempt(ctx, config.EnvDevelopment, 200*time.Millisecond, errors.New("refused"))

	stats, ok := mon.StatsFor(config.EnvDevelopment)
	require.True(t, ok)
	assert.Equal(t, int64(3), stats.Attempts)
	assert.Equal(t, int64(2), stats.Successes)
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, int64(0), stats.TimeoutViolations)
	assert.Equal(t, 100*time.Millisecond, stats.MinDuration)
	assert.Equal(t, 300*time.Millisecond, stats.MaxDuration)
	assert.Equal(t, 200*time.Millisecond, stats.AvgDuration)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 0.001)
}

func TestMonitor_EnvironmentsAreIndependent(t *testing.T) {
	mon := NewMonitor(testConfig())
	ctx := context.Background()

	mon.RecordAttempt(ctx, config.EnvDevelopment, 100*time.Millisecond, nil)
	mon.RecordAttempt(ctx, config.EnvStaging, 200*time.Millisecond, nil)

	dev, ok := mon.StatsFor(config.EnvDevelopment)
	require.True(t, ok)
	assert.Equal(t, int64(1), dev.Attempts)

	staging, ok := mon.StatsFor(config.EnvStaging)
	require.True(t, ok)
	assert.Equal(t, int64(1), staging.Attempts)

	_, ok = mon.StatsFor(config.EnvProduction)
	assert.False(t, ok)

	assert.Len(t, mon.AllStats(), 2)
}

func TestMonitor_WarningThreshold(t *testing.T) {
	mon := NewMonitor(testConfig())
	alerts := collectAlerts(mon)

	// Development profile allows 10s per connection; 8.5s crosses the
	// 80% warning line but not the 95% critical line.
	mon.RecordAttempt(context.Background(), config.EnvDevelopment, 8500*time.Millisecond, nil)

	require.Len(t, *alerts, 1)
	alert := (*alerts)[0]
	assert.Equal(t, AlertWarning, alert.Level)
	assert.Equal(t, ReasonDurationNearTimeout, alert.Reason)
	assert.Equal(t, config.EnvDevelopment, alert.Environment)
}

func TestMonitor_CriticalThreshold(t *testing.T) {
	mon := NewMonitor(testConfig())
	alerts := collectAlerts(mon)

	// 9.6s of a 10s budget crosses the 95% critical line
	mon.RecordAttempt(context.Background(), config.EnvDevelopment, 9600*time.Millisecond, nil)

	require.Len(t, *alerts, 1)
	assert.Equal(t, AlertCritical, (*alerts)[0].Level)
	assert.Equal(t, ReasonDurationNearTimeout, (*alerts)[0].Reason)
}

func TestMonitor_TimeoutViolation(t *testing.T) {
	mon := NewMonitor(testConfig())
	alerts := collectAlerts(mon)

	mon.RecordAttempt(context.Background(), config.EnvDevelopment, 11*time.Second, nil)

	stats, _ := mon.StatsFor(config.EnvDevelopment)
	assert.Equal(t, int64(1), stats.TimeoutViolations)

	require.Len(t, *alerts, 1)
	assert.Equal(t, AlertCritical, (*alerts)[0].Level)
	assert.Equal(t, ReasonTimeoutViolation, (*alerts)[0].Reason)
}

func TestMonitor_FastAttemptsRaiseNoAlerts(t *testing.T) {
	mon := NewMonitor(testConfig())
	alerts := collectAlerts(mon)

	for i := 0; i < 20; i++ {
		mon.RecordAttempt(context.Background(), config.EnvDevelopment, 50*time.Millisecond, nil)
	}

	assert.Empty(t, *alerts)
}

func TestMonitor_SuccessRateNeedsMinSamples(t *testing.T) {
	cfg := testConfig()
	cfg.MinSamples = 10
	mon := NewMonitor(cfg)
	alerts := collectAlerts(mon)
	ctx := context.Background()

	// 9 failing attempts: below the sample floor, no aggregate alert
	for i := 0; i < 9; i++ {
		mon.RecordAttempt(ctx, config.EnvDevelopment, 50*time.Millisecond, errors.New("refused"))
	}
	assert.Empty(t, *alerts)

	// The tenth attempt clears the floor and trips the success rate check
	mon.RecordAttempt(ctx, config.EnvDevelopment, 50*time.Millisecond, errors.New("refused"))
	require.NotEmpty(t, *alerts)
	assert.Equal(t, ReasonLowSuccessRate, (*alerts)[0].Reason)
	assert.Equal(t, AlertCritical, (*alerts)[0].Level)
}

func TestMonitor_ViolationRateAlert(t *testing.T) {
	cfg := testConfig()
	cfg.MinSamples = 10
	mon := NewMonitor(cfg)
	ctx := context.Background()

	// 7 fast successes, then 3 violations: 30% violation rate over 10
	// samples, above the 20% ceiling, while success rate stays at 100%.
	for i := 0; i < 7; i++ {
		mon.RecordAttempt(ctx, config.EnvDevelopment, 50*time.Millisecond, nil)
	}

	alerts := collectAlerts(mon)
	for i := 0; i < 3; i++ {
		mon.RecordAttempt(ctx, config.EnvDevelopment, 11*time.Second, nil)
	}

	var reasons []AlertReason
	for _, a := range *alerts {
		reasons = append(reasons, a.Reason)
	}
	assert.Contains(t, reasons, ReasonHighViolationRate)
	assert.NotContains(t, reasons, ReasonLowSuccessRate)
}

func TestMonitor_WindowWrapsAround(t *testing.T) {
	cfg := testConfig()
	cfg.SampleWindow = 5
	cfg.MinSamples = 5
	mon := NewMonitor(cfg)
	ctx := context.Background()

	// Fill the window with failures, then push them out with successes
	for i := 0; i < 5; i++ {
		mon.RecordAttempt(ctx, config.EnvTest, 10*time.Millisecond, errors.New("refused"))
	}
	for i := 0; i < 5; i++ {
		mon.RecordAttempt(ctx, config.EnvTest, 10*time.Millisecond, nil)
	}

	stats, _ := mon.StatsFor(config.EnvTest)
	assert.Equal(t, int64(10), stats.Attempts)
	assert.Equal(t, 5, stats.WindowSize)
	assert.Equal(t, 1.0, stats.SuccessRate) // window holds only successes now

	samples := mon.RecentSamples(config.EnvTest)
	require.Len(t, samples, 5)
	for _, s := range samples {
		assert.True(t, s.Success)
	}
}

func TestMonitor_CallbackPanicIsRecovered(t *testing.T) {
	mon := NewMonitor(testConfig())
	mon.OnAlert(func(alert ThresholdAlert) {
		panic("bad callback")
	})

	received := 0
	mon.OnAlert(func(alert ThresholdAlert) {
		received++
	})

	assert.NotPanics(t, func() {
		mon.RecordAttempt(context.Background(), config.EnvDevelopment, 11*time.Second, nil)
	})
	assert.Equal(t, 1, received) // later callbacks still run
}

func TestMonitor_Reset(t *testing.T) {
	mon := NewMonitor(testConfig())
	ctx := context.Background()

	mon.RecordAttempt(ctx, config.EnvDevelopment, 100*time.Millisecond, nil)
	mon.Reset(config.EnvDevelopment)

	_, ok := mon.StatsFor(config.EnvDevelopment)
	assert.False(t, ok)
}
