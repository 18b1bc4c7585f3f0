package vpcmon

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/netra-labs/netra/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConnectorConfig() config.ConnectorConfig {
	return config.ConnectorConfig{
		Name:              "netra-staging",
		PollInterval:      30 * time.Second,
		TimeoutBuffer:     10 * time.Second,
		PressureThreshold: 0.60,
		ScalingThreshold:  0.75,
		OverloadThreshold: 0.90,
		LatencyThreshold:  500 * time.Millisecond,
	}
}

func TestConnectorState_TimeoutFactor(t *testing.T) {
	assert.Equal(t, 1.0, StateNormal.TimeoutFactor())
	assert.Equal(t, 1.4, StateCapacityPressure.TimeoutFactor())
	assert.Equal(t, 1.8, StateScaling.TimeoutFactor())
	assert.Equal(t, 2.5, StateOverloaded.TimeoutFactor())
}

func TestDeriveState(t *testing.T) {
	cfg := testConnectorConfig()

	tests := []struct {
		name    string
		metrics ConnectorMetrics
		want    ConnectorState
	}{
		{
			name:    "idle connector",
			metrics: ConnectorMetrics{Utilization: 0.10, Latency: 50 * time.Millisecond, Instances: 2, MaxInstances: 10},
			want:    StateNormal,
		},
		{
			name:    "just below pressure",
			metrics: ConnectorMetrics{Utilization: 0.59, Latency: 50 * time.Millisecond, Instances: 2, MaxInstances: 10},
			want:    StateNormal,
		},
		{
			name:    "utilization pressure",
			metrics: ConnectorMetrics{Utilization: 0.65, Latency: 50 * time.Millisecond, Instances: 3, MaxInstances: 10},
			want:    StateCapacityPressure,
		},
		{
			name:    "latency pressure at low utilization",
			metrics: ConnectorMetrics{Utilization: 0.20, Latency: 800 * time.Millisecond, Instances: 2, MaxInstances: 10},
			want:    StateCapacityPressure,
		},
		{
			name:    "scaling with headroom",
			metrics: ConnectorMetrics{Utilization: 0.80, Latency: 100 * time.Millisecond, Instances: 5, MaxInstances: 10},
			want:    StateScaling,
		},
		{
			name:    "scaling band but no headroom left",
			metrics: ConnectorMetrics{Utilization: 0.80, Latency: 100 * time.Millisecond, Instances: 10, MaxInstances: 10},
			want:    StateOverloaded,
		},
		{
			name:    "saturated",
			metrics: ConnectorMetrics{Utilization: 0.95, Latency: 2 * time.Second, Instances: 10, MaxInstances: 10},
			want:    StateOverloaded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveState(tt.metrics, cfg))
		})
	}
}

func TestDeriveState_IsPure(t *testing.T) {
	cfg := testConnectorConfig()
	m := ConnectorMetrics{Utilization: 0.70, Latency: 100 * time.Millisecond, Instances: 3, MaxInstances: 10}

	first := DeriveState(m, cfg)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, DeriveState(m, cfg))
	}
}

func TestScaledTimeout(t *testing.T) {
	base := 45 * time.Second
	buffer := 10 * time.Second

	// float multiplication may land a nanosecond off the exact product
	tolerance := float64(time.Microsecond)
	assert.InDelta(t, float64(55*time.Second), float64(ScaledTimeout(base, StateNormal, buffer)), tolerance)
	assert.InDelta(t, float64(73*time.Second), float64(ScaledTimeout(base, StateCapacityPressure, buffer)), tolerance)
	assert.InDelta(t, float64(91*time.Second), float64(ScaledTimeout(base, StateScaling, buffer)), tolerance)
	assert.InDelta(t, float64(122500*time.Millisecond), float64(ScaledTimeout(base, StateOverloaded, buffer)), tolerance)
}

func TestMonitor_PollUpdatesState(t *testing.T) {
	utilization := 0.10
	source := MetricsSourceFunc(func(ctx context.Context) (ConnectorMetrics, error) {
		return ConnectorMetrics{Utilization: utilization, Instances: 2, MaxInstances: 10}, nil
	})

	mon := NewMonitor(testConnectorConfig(), source)
	assert.Equal(t, StateNormal, mon.State())

	mon.Poll(context.Background())
	assert.Equal(t, StateNormal, mon.State())

	utilization = 0.95
	mon.Poll(context.Background())
	assert.Equal(t, StateOverloaded, mon.State())

	snap := mon.Snapshot()
	assert.Equal(t, "netra-staging", snap.Connector)
	assert.Equal(t, "overloaded", snap.StateName)
	assert.Equal(t, 2.5, snap.TimeoutFactor)
	assert.Empty(t, snap.LastError)
}

func TestMonitor_FetchFailureRetainsState(t *testing.T) {
	calls := 0
	source := MetricsSourceFunc(func(ctx context.Context) (ConnectorMetrics, error) {
		calls++
		if calls == 1 {
			return ConnectorMetrics{Utilization: 0.80, Instances: 5, MaxInstances: 10}, nil
		}
		return ConnectorMetrics{}, errors.New("monitoring api unreachable")
	})

	mon := NewMonitor(testConnectorConfig(), source)

	mon.Poll(context.Background())
	require.Equal(t, StateScaling, mon.State())

	mon.Poll(context.Background())
	assert.Equal(t, StateScaling, mon.State()) // failure keeps the last state

	snap := mon.Snapshot()
	assert.Contains(t, snap.LastError, "unreachable")
}

func TestMonitor_StateChangeCallbacks(t *testing.T) {
	utilization := 0.10
	source := MetricsSourceFunc(func(ctx context.Context) (ConnectorMetrics, error) {
		return ConnectorMetrics{Utilization: utilization, Instances: 2, MaxInstances: 10}, nil
	})

	mon := NewMonitor(testConnectorConfig(), source)

	var changes []StateChange
	mon.OnStateChange(func(change StateChange) {
		changes = append(changes, change)
	})

	mon.Poll(context.Background()) // normal -> normal, no change
	assert.Empty(t, changes)

	utilization = 0.65
	mon.Poll(context.Background())
	require.Len(t, changes, 1)
	assert.Equal(t, StateNormal, changes[0].From)
	assert.Equal(t, StateCapacityPressure, changes[0].To)

	utilization = 0.10
	mon.Poll(context.Background())
	require.Len(t, changes, 2)
	assert.Equal(t, StateNormal, changes[1].To)
}

func TestMonitor_CallbackPanicIsRecovered(t *testing.T) {
	source := MetricsSourceFunc(func(ctx context.Context) (ConnectorMetrics, error) {
		return ConnectorMetrics{Utilization: 0.95, Instances: 10, MaxInstances: 10}, nil
	})

	mon := NewMonitor(testConnectorConfig(), source)
	mon.OnStateChange(func(change StateChange) {
		panic("bad callback")
	})

	assert.NotPanics(t, func() {
		mon.Poll(context.Background())
	})
	assert.Equal(t, StateOverloaded, mon.State())
}

func TestMonitor_ScaledTimeoutTracksState(t *testing.T) {
	utilization := 0.10
	source := MetricsSourceFunc(func(ctx context.Context) (ConnectorMetrics, error) {
		return ConnectorMetrics{Utilization: utilization, Instances: 5, MaxInstances: 10}, nil
	})

	mon := NewMonitor(testConnectorConfig(), source, WithBaseTimeout(45*time.Second))

	mon.Poll(context.Background())
	assert.Equal(t, 55*time.Second, mon.ScaledTimeout(45*time.Second))

	utilization = 0.80
	mon.Poll(context.Background())
	assert.InDelta(t, float64(91*time.Second), float64(mon.ScaledTimeout(45*time.Second)), float64(time.Microsecond))
}

func TestMonitor_StartStop(t *testing.T) {
	polled := make(chan struct{}, 1)
	source := MetricsSourceFunc(func(ctx context.Context) (ConnectorMetrics, error) {
		select {
		case polled <- struct{}{}:
		default:
		}
		return ConnectorMetrics{Utilization: 0.10}, nil
	})

	cfg := testConnectorConfig()
	cfg.PollInterval = 10 * time.Millisecond
	mon := NewMonitor(cfg, source)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mon.Start(ctx)
	defer mon.Stop()

	select {
	case <-polled:
	case <-time.After(time.Second):
		t.Fatal("monitor never polled the source")
	}
}
