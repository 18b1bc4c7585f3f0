package vpcmon

import (
	"context"
	"time"

	"github.com/netra-labs/netra/pkg/config"
)

// ConnectorState classifies how much capacity headroom the VPC connector
// has left. Worse states stretch connection timeouts so that attempts
// are not abandoned while the connector is scaling out.
type ConnectorState int

const (
	// StateNormal - the connector has plenty of headroom
	StateNormal ConnectorState = iota
	// StateCapacityPressure - utilization or latency is elevated
	StateCapacityPressure
	// StateScaling - the connector is adding instances
	StateScaling
	// StateOverloaded - the connector is saturated
	StateOverloaded
)

func (s ConnectorState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateCapacityPressure:
		return "capacity_pressure"
	case StateScaling:
		return "scaling"
	case StateOverloaded:
		return "overloaded"
	default:
		return "unknown"
	}
}

// TimeoutFactor returns the multiplier applied to base timeouts in this state
func (s ConnectorState) TimeoutFactor() float64 {
	switch s {
	case StateCapacityPressure:
		return 1.4
	case StateScaling:
		return 1.8
	case StateOverloaded:
		return 2.5
	default:
		return 1.0
	}
}

// ConnectorMetrics is one observation of the VPC connector
type ConnectorMetrics struct {
	// Utilization is the fraction of connector throughput in use, 0 to 1
	Utilization float64 `json:"utilization"`
	// Latency is the recent median connection latency through the connector
	Latency time.Duration `json:"latency"`
	// Instances is the current connector instance count
	Instances int `json:"instances"`
	// MaxInstances is the configured instance ceiling
	MaxInstances int `json:"max_instances"`
	// Timestamp is when the observation was taken
	Timestamp time.Time `json:"timestamp"`
}

// MetricsSource supplies connector observations. Production wires this to
// the cloud monitoring API; tests supply fixed observations.
type MetricsSource interface {
	Fetch(ctx context.Context) (ConnectorMetrics, error)
}

// MetricsSourceFunc adapts a function to the MetricsSource interface
type MetricsSourceFunc func(ctx context.Context) (ConnectorMetrics, error)

func (f MetricsSourceFunc) Fetch(ctx context.Context) (ConnectorMetrics, error) {
	return f(ctx)
}

// DeriveState maps a connector observation to a state using the configured
// thresholds. The mapping is pure: the same observation and thresholds
// always produce the same state.
func DeriveState(m ConnectorMetrics, cfg config.ConnectorConfig) ConnectorState {
	switch {
	case m.Utilization >= cfg.OverloadThreshold:
		return StateOverloaded
	case m.Utilization >= cfg.ScalingThreshold:
		// Above the scaling line with instance headroom means the
		// connector is actively adding capacity
		if m.MaxInstances == 0 || m.Instances < m.MaxInstances {
			return StateScaling
		}
		return StateOverloaded
	case m.Utilization >= cfg.PressureThreshold:
		return StateCapacityPressure
	case cfg.LatencyThreshold > 0 && m.Latency >= cfg.LatencyThreshold:
		return StateCapacityPressure
	default:
		return StateNormal
	}
}

// ScaledTimeout stretches a base timeout for the given connector state:
// the base is multiplied by the state's factor, then a fixed buffer is
// added on top.
func ScaledTimeout(base time.Duration, state ConnectorState, buffer time.Duration) time.Duration {
	return time.Duration(float64(base)*state.TimeoutFactor()) + buffer
}
