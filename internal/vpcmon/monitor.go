package vpcmon

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/netra-labs/netra/pkg/config"
	"github.com/netra-labs/netra/pkg/logging"
	"github.com/netra-labs/netra/pkg/metrics"
	"github.com/netra-labs/netra/pkg/resilience"
)

// StateChange describes a connector state transition
type StateChange struct {
	Connector string           `json:"connector"`
	From      ConnectorState   `json:"from"`
	To        ConnectorState   `json:"to"`
	Metrics   ConnectorMetrics `json:"metrics"`
	Timestamp time.Time        `json:"timestamp"`
}

// StateChangeFunc receives connector state transitions
type StateChangeFunc func(change StateChange)

// Snapshot is a point-in-time view of the monitor
type Snapshot struct {
	Connector     string           `json:"connector"`
	State         ConnectorState   `json:"state"`
	StateName     string           `json:"state_name"`
	TimeoutFactor float64          `json:"timeout_factor"`
	Metrics       ConnectorMetrics `json:"metrics"`
	LastPoll      time.Time        `json:"last_poll"`
	LastError     string           `json:"last_error,omitempty"`
}

// Monitor polls a MetricsSource for connector observations, derives the
// connector state, and stretches connection timeouts accordingly. A poll
// failure keeps the previous state rather than guessing a new one.
type Monitor struct {
	cfg    config.ConnectorConfig
	source MetricsSource

	// baseTimeout is the unscaled connection timeout reported through the
	// scaled timeout gauge
	baseTimeout time.Duration

	mutex       sync.RWMutex
	state       ConnectorState
	lastMetrics ConnectorMetrics
	lastPoll    time.Time
	lastErr     error
	callbacks   []StateChangeFunc

	metrics *metrics.Metrics
	alerts  *resilience.AlertManager
	logger  *logging.Logger

	stopChan chan struct{}
	running  bool
	runMutex sync.Mutex
}

// Option configures a Monitor
type Option func(*Monitor)

// WithMetrics wires Prometheus metrics recording into the monitor
func WithMetrics(m *metrics.Metrics) Option {
	return func(mon *Monitor) {
		mon.metrics = m
	}
}

// WithAlertManager routes worsening state transitions through the alert manager
func WithAlertManager(am *resilience.AlertManager) Option {
	return func(mon *Monitor) {
		mon.alerts = am
	}
}

// WithBaseTimeout sets the connection timeout whose scaled value is
// exported through the metrics gauge
func WithBaseTimeout(base time.Duration) Option {
	return func(mon *Monitor) {
		mon.baseTimeout = base
	}
}

// NewMonitor creates a connector monitor. The source must not be nil.
func NewMonitor(cfg config.ConnectorConfig, source MetricsSource, opts ...Option) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}

	mon := &Monitor{
		cfg:      cfg,
		source:   source,
		state:    StateNormal,
		logger:   logging.GetLogger(),
		stopChan: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(mon)
	}

	return mon
}

// OnStateChange registers a callback invoked on every state transition
func (mon *Monitor) OnStateChange(fn StateChangeFunc) {
	mon.mutex.Lock()
	defer mon.mutex.Unlock()
	mon.callbacks = append(mon.callbacks, fn)
}

// Start begins polling the metrics source in the background
func (mon *Monitor) Start(ctx context.Context) {
	mon.runMutex.Lock()
	defer mon.runMutex.Unlock()

	if mon.running {
		return
	}
	mon.running = true

	go mon.pollLoop(ctx)
	mon.logger.Info("Connector monitor started",
		"connector", mon.cfg.Name,
		"poll_interval", mon.cfg.PollInterval.String(),
	)
}

// Stop stops the polling loop
func (mon *Monitor) Stop() {
	mon.runMutex.Lock()
	defer mon.runMutex.Unlock()

	if !mon.running {
		return
	}
	close(mon.stopChan)
	mon.running = false
	mon.logger.Info("Connector monitor stopped", "connector", mon.cfg.Name)
}

func (mon *Monitor) pollLoop(ctx context.Context) {
	// observe immediately rather than waiting out the first interval
	mon.Poll(ctx)

	ticker := time.NewTicker(mon.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-mon.stopChan:
			return
		case <-ticker.C:
			mon.Poll(ctx)
		}
	}
}

// Poll fetches one observation and updates the connector state. It is
// exported so callers can force a refresh outside the poll interval.
func (mon *Monitor) Poll(ctx context.Context) {
	observed, err := mon.source.Fetch(ctx)
	now := time.Now()

	if err != nil {
		mon.mutex.Lock()
		mon.lastErr = err
		mon.lastPoll = now
		state := mon.state
		mon.mutex.Unlock()

		mon.logger.Warn("Connector metrics fetch failed",
			"connector", mon.cfg.Name,
			"error", err.Error(),
			"state_retained", state.String(),
		)
		return
	}

	if observed.Timestamp.IsZero() {
		observed.Timestamp = now
	}

	newState := DeriveState(observed, mon.cfg)

	mon.mutex.Lock()
	prev := mon.state
	mon.state = newState
	mon.lastMetrics = observed
	mon.lastPoll = now
	mon.lastErr = nil
	callbacks := make([]StateChangeFunc, len(mon.callbacks))
	copy(callbacks, mon.callbacks)
	mon.mutex.Unlock()

	if mon.metrics != nil {
		scaled := ScaledTimeout(mon.baseTimeout, newState, mon.cfg.TimeoutBuffer)
		mon.metrics.UpdateConnectorState(mon.cfg.Name, int(newState), observed.Utilization, scaled)
	}

	if prev != newState {
		change := StateChange{
			Connector: mon.cfg.Name,
			From:      prev,
			To:        newState,
			Metrics:   observed,
			Timestamp: now,
		}
		mon.notifyStateChange(ctx, change, callbacks)
	}
}

func (mon *Monitor) notifyStateChange(ctx context.Context, change StateChange, callbacks []StateChangeFunc) {
	mon.logger.Info("Connector state changed",
		"connector", change.Connector,
		"from", change.From.String(),
		"to", change.To.String(),
		"utilization", change.Metrics.Utilization,
		"timeout_factor", change.To.TimeoutFactor(),
	)

	for _, fn := range callbacks {
		mon.invoke(fn, change)
	}

	// Only worsening transitions page; recovery is logged above
	if mon.alerts != nil && change.To > change.From {
		severity := resilience.SeverityWarning
		if change.To == StateOverloaded {
			severity = resilience.SeverityCritical
		}

		err := mon.alerts.SendAlert(ctx, resilience.Alert{
			Severity:    severity,
			Title:       "VPC connector state degraded",
			Description: fmt.Sprintf("connector %s moved from %s to %s at %.0f%% utilization", change.Connector, change.From, change.To, change.Metrics.Utilization*100),
			Source:      "vpc_monitor",
			Tags: map[string]string{
				"connector": change.Connector,
				"from":      change.From.String(),
				"to":        change.To.String(),
			},
			Metadata: map[string]interface{}{
				"utilization":    change.Metrics.Utilization,
				"latency":        change.Metrics.Latency.String(),
				"instances":      change.Metrics.Instances,
				"timeout_factor": change.To.TimeoutFactor(),
			},
		})
		if err != nil {
			mon.logger.Debug("Connector alert dropped", "error", err)
		}
	}
}

func (mon *Monitor) invoke(fn StateChangeFunc, change StateChange) {
	defer func() {
		if r := recover(); r != nil {
			mon.logger.Error("State change callback panicked",
				"panic", fmt.Sprintf("%v", r),
				"connector", change.Connector,
			)
			if mon.metrics != nil {
				mon.metrics.RecordPanic("vpc_monitor")
			}
		}
	}()
	fn(change)
}

// State returns the current connector state
func (mon *Monitor) State() ConnectorState {
	mon.mutex.RLock()
	defer mon.mutex.RUnlock()
	return mon.state
}

// ScaledTimeout stretches a base timeout for the current connector state
func (mon *Monitor) ScaledTimeout(base time.Duration) time.Duration {
	return ScaledTimeout(base, mon.State(), mon.cfg.TimeoutBuffer)
}

// Snapshot returns a point-in-time view of the monitor
func (mon *Monitor) Snapshot() Snapshot {
	mon.mutex.RLock()
	defer mon.mutex.RUnlock()

	snap := Snapshot{
		Connector:     mon.cfg.Name,
		State:         mon.state,
		StateName:     mon.state.String(),
		TimeoutFactor: mon.state.TimeoutFactor(),
		Metrics:       mon.lastMetrics,
		LastPoll:      mon.lastPoll,
	}
	if mon.lastErr != nil {
		snap.LastError = mon.lastErr.Error()
	}
	return snap
}
