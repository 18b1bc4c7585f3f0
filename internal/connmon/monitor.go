package connmon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netra-labs/netra/pkg/config"
	"github.com/netra-labs/netra/pkg/logging"
	"github.com/netra-labs/netra/pkg/metrics"
	"github.com/netra-labs/netra/pkg/resilience"
	"github.com/sirupsen/logrus"
)

// AlertLevel classifies a threshold alert
type AlertLevel string

const (
	AlertWarning  AlertLevel = "warning"
	AlertCritical AlertLevel = "critical"
)

// AlertReason identifies which threshold was crossed
type AlertReason string

const (
	ReasonDurationNearTimeout AlertReason = "duration_near_timeout"
	ReasonTimeoutViolation    AlertReason = "timeout_violation"
	ReasonLowSuccessRate      AlertReason = "low_success_rate"
	ReasonHighViolationRate   AlertReason = "high_violation_rate"
)

// ThresholdAlert describes a crossed connection threshold
type ThresholdAlert struct {
	Level       AlertLevel         `json:"level"`
	Reason      AlertReason        `json:"reason"`
	Environment config.Environment `json:"environment"`
	Value       float64            `json:"value"`
	Threshold   float64            `json:"threshold"`
	Message     string             `json:"message"`
	Timestamp   time.Time          `json:"timestamp"`
}

// AlertFunc receives threshold alerts. Callbacks must not block;
// panics are recovered and logged so one bad callback cannot take
// the monitor down.
type AlertFunc func(alert ThresholdAlert)

// Sample is one recorded connection attempt
type Sample struct {
	Timestamp        time.Time     `json:"timestamp"`
	Duration         time.Duration `json:"duration"`
	Success          bool          `json:"success"`
	TimeoutViolation bool          `json:"timeout_violation"`
}

// Stats is a point-in-time snapshot of one environment's connection metrics
type Stats struct {
	Environment       config.Environment `json:"environment"`
	Attempts          int64              `json:"attempts"`
	Successes         int64              `json:"successes"`
	Failures          int64              `json:"failures"`
	TimeoutViolations int64              `json:"timeout_violations"`
	SuccessRate       float64            `json:"success_rate"`
	ViolationRate     float64            `json:"violation_rate"`
	MinDuration       time.Duration      `json:"min_duration"`
	MaxDuration       time.Duration      `json:"max_duration"`
	AvgDuration       time.Duration      `json:"avg_duration"`
	WindowSize        int                `json:"window_size"`
	LastAttempt       time.Time          `json:"last_attempt"`
}

// envMetrics accumulates counters and the sliding sample window
// for one environment. Guarded by the owning Monitor's mutex.
type envMetrics struct {
	attempts          int64
	successes         int64
	failures          int64
	timeoutViolations int64
	totalDuration     time.Duration
	minDuration       time.Duration
	maxDuration       time.Duration
	lastAttempt       time.Time

	// ring buffer of the most recent samples
	samples []Sample
	next    int
	filled  bool
}

func (em *envMetrics) record(sample Sample) {
	em.attempts++
	if sample.Success {
		em.successes++
	} else {
		em.failures++
	}
	if sample.TimeoutViolation {
		em.timeoutViolations++
	}

	em.totalDuration += sample.Duration
	if em.minDuration == 0 || sample.Duration < em.minDuration {
		em.minDuration = sample.Duration
	}
	if sample.Duration > em.maxDuration {
		em.maxDuration = sample.Duration
	}
	em.lastAttempt = sample.Timestamp

	em.samples[em.next] = sample
	em.next = (em.next + 1) % len(em.samples)
	if em.next == 0 {
		em.filled = true
	}
}

// window returns the samples currently in the ring, oldest first
func (em *envMetrics) window() []Sample {
	if !em.filled {
		out := make([]Sample, em.next)
		copy(out, em.samples[:em.next])
		return out
	}

	out := make([]Sample, 0, len(em.samples))
	out = append(out, em.samples[em.next:]...)
	out = append(out, em.samples[:em.next]...)
	return out
}

// Monitor tracks database connection attempts per environment and raises
// alerts when duration, success rate, or timeout violation thresholds are
// crossed. All methods are safe for concurrent use.
type Monitor struct {
	cfg config.MonitorConfig

	mutex     sync.RWMutex
	envs      map[config.Environment]*envMetrics
	callbacks []AlertFunc

	metrics *metrics.Metrics
	alerts  *resilience.AlertManager
	logger  *logging.Logger
}

// Option configures a Monitor
type Option func(*Monitor)

// WithMetrics wires Prometheus metrics recording into the monitor
func WithMetrics(m *metrics.Metrics) Option {
	return func(mon *Monitor) {
		mon.metrics = m
	}
}

// WithAlertManager routes threshold alerts through the alert manager
// in addition to registered callbacks
func WithAlertManager(am *resilience.AlertManager) Option {
	return func(mon *Monitor) {
		mon.alerts = am
	}
}

// NewMonitor creates a connection monitor with the given thresholds
func NewMonitor(cfg config.MonitorConfig, opts ...Option) *Monitor {
	if cfg.SampleWindow <= 0 {
		cfg.SampleWindow = 100
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 10
	}

	mon := &Monitor{
		cfg:    cfg,
		envs:   make(map[config.Environment]*envMetrics),
		logger: logging.GetLogger(),
	}

	for _, opt := range opts {
		opt(mon)
	}

	return mon
}

// OnAlert registers a callback invoked whenever a threshold is crossed
func (mon *Monitor) OnAlert(fn AlertFunc) {
	mon.mutex.Lock()
	defer mon.mutex.Unlock()
	mon.callbacks = append(mon.callbacks, fn)
}

// RecordAttempt records one connection attempt and evaluates thresholds.
// The attempt is judged against the timeout profile of its environment:
// crossing 80% of the connection timeout raises a warning, 95% a critical
// alert, and exceeding it entirely counts as a timeout violation.
func (mon *Monitor) RecordAttempt(ctx context.Context, env config.Environment, duration time.Duration, err error) {
	profile := config.ProfileFor(env)
	success := err == nil
	violation := duration >= profile.Connection

	sample := Sample{
		Timestamp:        time.Now(),
		Duration:         duration,
		Success:          success,
		TimeoutViolation: violation,
	}

	mon.mutex.Lock()
	em, ok := mon.envs[env]
	if !ok {
		em = &envMetrics{samples: make([]Sample, mon.cfg.SampleWindow)}
		mon.envs[env] = em
	}
	em.record(sample)
	stats := mon.statsLocked(env, em)
	callbacks := make([]AlertFunc, len(mon.callbacks))
	copy(callbacks, mon.callbacks)
	mon.mutex.Unlock()

	mon.logger.LogConnectionEvent(ctx, string(env), success, duration, logrus.Fields{
		"timeout_violation": violation,
		"attempts":          stats.Attempts,
	})

	if mon.metrics != nil {
		mon.metrics.RecordConnectionAttempt(string(env), success, duration)
		if violation {
			mon.metrics.RecordTimeoutViolation(string(env))
		}
		mon.metrics.UpdateConnectionSuccessRate(string(env), stats.SuccessRate)
	}

	for _, alert := range mon.evaluate(env, profile, duration, violation, stats) {
		mon.dispatch(ctx, alert, callbacks)
	}
}

// evaluate applies the per-attempt and aggregate thresholds
func (mon *Monitor) evaluate(env config.Environment, profile config.TimeoutProfile, duration time.Duration, violation bool, stats Stats) []ThresholdAlert {
	now := time.Now()
	var alerts []ThresholdAlert

	connSeconds := profile.Connection.Seconds()
	durSeconds := duration.Seconds()

	switch {
	case violation:
		alerts = append(alerts, ThresholdAlert{
			Level:       AlertCritical,
			Reason:      ReasonTimeoutViolation,
			Environment: env,
			Value:       durSeconds,
			Threshold:   connSeconds,
			Message:     fmt.Sprintf("connection attempt took %.1fs, exceeding the %.1fs timeout", durSeconds, connSeconds),
			Timestamp:   now,
		})
	case durSeconds >= connSeconds*mon.cfg.CriticalRatio:
		alerts = append(alerts, ThresholdAlert{
			Level:       AlertCritical,
			Reason:      ReasonDurationNearTimeout,
			Environment: env,
			Value:       durSeconds,
			Threshold:   connSeconds * mon.cfg.CriticalRatio,
			Message:     fmt.Sprintf("connection attempt took %.1fs of a %.1fs budget", durSeconds, connSeconds),
			Timestamp:   now,
		})
	case durSeconds >= connSeconds*mon.cfg.WarningRatio:
		alerts = append(alerts, ThresholdAlert{
			Level:       AlertWarning,
			Reason:      ReasonDurationNearTimeout,
			Environment: env,
			Value:       durSeconds,
			Threshold:   connSeconds * mon.cfg.WarningRatio,
			Message:     fmt.Sprintf("connection attempt took %.1fs of a %.1fs budget", durSeconds, connSeconds),
			Timestamp:   now,
		})
	}

	// Aggregate thresholds only fire once the window carries enough samples
	if stats.WindowSize >= mon.cfg.MinSamples {
		if stats.SuccessRate < mon.cfg.MinSuccessRate {
			alerts = append(alerts, ThresholdAlert{
				Level:       AlertCritical,
				Reason:      ReasonLowSuccessRate,
				Environment: env,
				Value:       stats.SuccessRate,
				Threshold:   mon.cfg.MinSuccessRate,
				Message:     fmt.Sprintf("connection success rate %.0f%% is below %.0f%%", stats.SuccessRate*100, mon.cfg.MinSuccessRate*100),
				Timestamp:   now,
			})
		}

		if stats.ViolationRate > mon.cfg.MaxViolationRate {
			alerts = append(alerts, ThresholdAlert{
				Level:       AlertWarning,
				Reason:      ReasonHighViolationRate,
				Environment: env,
				Value:       stats.ViolationRate,
				Threshold:   mon.cfg.MaxViolationRate,
				Message:     fmt.Sprintf("timeout violation rate %.0f%% is above %.0f%%", stats.ViolationRate*100, mon.cfg.MaxViolationRate*100),
				Timestamp:   now,
			})
		}
	}

	return alerts
}

// dispatch delivers an alert to callbacks and the alert manager
func (mon *Monitor) dispatch(ctx context.Context, alert ThresholdAlert, callbacks []AlertFunc) {
	mon.logger.Warn("Connection threshold crossed",
		"level", string(alert.Level),
		"reason", string(alert.Reason),
		"environment", string(alert.Environment),
		"value", alert.Value,
		"threshold", alert.Threshold,
	)

	for _, fn := range callbacks {
		mon.invoke(fn, alert)
	}

	if mon.alerts != nil {
		severity := resilience.SeverityWarning
		if alert.Level == AlertCritical {
			severity = resilience.SeverityCritical
		}

		err := mon.alerts.SendAlert(ctx, resilience.Alert{
			Severity:    severity,
			Title:       "Database connection threshold crossed",
			Description: alert.Message,
			Source:      "connection_monitor",
			Tags: map[string]string{
				"environment": string(alert.Environment),
				"reason":      string(alert.Reason),
			},
			Metadata: map[string]interface{}{
				"value":     alert.Value,
				"threshold": alert.Threshold,
			},
		})
		if err != nil {
			mon.logger.Debug("Connection alert dropped", "error", err)
		}
	}
}

// invoke runs one callback, recovering panics so a misbehaving
// callback cannot break attempt recording
func (mon *Monitor) invoke(fn AlertFunc, alert ThresholdAlert) {
	defer func() {
		if r := recover(); r != nil {
			mon.logger.Error("Alert callback panicked",
				"panic", fmt.Sprintf("%v", r),
				"environment", string(alert.Environment),
			)
			if mon.metrics != nil {
				mon.metrics.RecordPanic("connection_monitor")
			}
		}
	}()
	fn(alert)
}

// StatsFor returns the snapshot for one environment
func (mon *Monitor) StatsFor(env config.Environment) (Stats, bool) {
	mon.mutex.RLock()
	defer mon.mutex.RUnlock()

	em, ok := mon.envs[env]
	if !ok {
		return Stats{Environment: env}, false
	}
	return mon.statsLocked(env, em), true
}

// AllStats returns snapshots for every environment with recorded attempts
func (mon *Monitor) AllStats() map[config.Environment]Stats {
	mon.mutex.RLock()
	defer mon.mutex.RUnlock()

	out := make(map[config.Environment]Stats, len(mon.envs))
	for env, em := range mon.envs {
		out[env] = mon.statsLocked(env, em)
	}
	return out
}

// RecentSamples returns the sliding window for one environment, oldest first
func (mon *Monitor) RecentSamples(env config.Environment) []Sample {
	mon.mutex.RLock()
	defer mon.mutex.RUnlock()

	em, ok := mon.envs[env]
	if !ok {
		return nil
	}
	return em.window()
}

// Reset clears all recorded metrics for one environment
func (mon *Monitor) Reset(env config.Environment) {
	mon.mutex.Lock()
	defer mon.mutex.Unlock()
	delete(mon.envs, env)
}

// statsLocked builds a snapshot; callers must hold at least the read lock
func (mon *Monitor) statsLocked(env config.Environment, em *envMetrics) Stats {
	stats := Stats{
		Environment:       env,
		Attempts:          em.attempts,
		Successes:         em.successes,
		Failures:          em.failures,
		TimeoutViolations: em.timeoutViolations,
		MinDuration:       em.minDuration,
		MaxDuration:       em.maxDuration,
		LastAttempt:       em.lastAttempt,
	}

	if em.attempts > 0 {
		stats.AvgDuration = em.totalDuration / time.Duration(em.attempts)
	}

	// Rates come from the sliding window so that old history cannot
	// mask a fresh run of failures
	window := em.window()
	stats.WindowSize = len(window)
	if len(window) > 0 {
		var succ, viol int
		for _, s := range window {
			if s.Success {
				succ++
			}
			if s.TimeoutViolation {
				viol++
			}
		}
		stats.SuccessRate = float64(succ) / float64(len(window))
		stats.ViolationRate = float64(viol) / float64(len(window))
	}

	return stats
}
