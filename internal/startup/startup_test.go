package startup

import (
	"context"
	"testing"
	"time"

	"github.com/netra-labs/netra/pkg/errors"
	"github.com/netra-labs/netra/pkg/resilience"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityLevel_Ordering(t *testing.T) {
	assert.True(t, LevelFull < LevelDegraded)
	assert.True(t, LevelDegraded < LevelMinimal)
	assert.True(t, LevelMinimal < LevelUnavailable)
}

func TestAppState_MostRestrictiveWins(t *testing.T) {
	state := NewAppState()
	assert.Equal(t, LevelFull, state.Level())

	state.SetComponent("database", LevelFull)
	state.SetComponent("cache", LevelDegraded)
	assert.Equal(t, LevelDegraded, state.Level())

	state.SetComponent("services", LevelMinimal)
	assert.Equal(t, LevelMinimal, state.Level())

	// Recovery of one component doesn't mask the worst one
	state.SetComponent("cache", LevelFull)
	assert.Equal(t, LevelMinimal, state.Level())

	state.SetComponent("services", LevelFull)
	assert.Equal(t, LevelFull, state.Level())
}

func TestAppState_Components(t *testing.T) {
	state := NewAppState()
	state.SetComponent("database", LevelFull)

	level, ok := state.Component("database")
	require.True(t, ok)
	assert.Equal(t, LevelFull, level)

	_, ok = state.Component("missing")
	assert.False(t, ok)

	// Components returns a copy
	components := state.Components()
	components["database"] = LevelUnavailable
	assert.Equal(t, LevelFull, state.Level())
}

func TestOrchestrator_AllPhasesSucceed(t *testing.T) {
	state := NewAppState()
	o := NewOrchestrator(state)

	var order []string
	for _, name := range []string{PhaseDatabase, PhaseCache, PhaseServices, PhaseValidation} {
		name := name
		o.AddPhase(Phase{
			Name:     name,
			Required: name == PhaseDatabase,
			Run: func(ctx context.Context) error {
				order = append(order, name)
				return nil
			},
		})
	}

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LevelFull, report.Level)
	assert.Equal(t, []string{PhaseDatabase, PhaseCache, PhaseServices, PhaseValidation}, order)
	assert.Len(t, report.Phases, 4)
	for _, result := range report.Phases {
		assert.True(t, result.Success)
		assert.Equal(t, LevelFull, result.Level)
	}
}

func TestOrchestrator_RequiredPhaseFailureAborts(t *testing.T) {
	state := NewAppState()
	o := NewOrchestrator(state)

	ran := false
	o.AddPhase(Phase{
		Name:     PhaseDatabase,
		Required: true,
		Run: func(ctx context.Context) error {
			return errors.NewUnavailableError("database unreachable")
		},
	})
	o.AddPhase(Phase{
		Name: PhaseCache,
		Run: func(ctx context.Context) error {
			ran = true
			return nil
		},
	})

	report, err := o.Run(context.Background())
	require.Error(t, err)
	assert.False(t, ran) // later phases never run
	assert.Equal(t, LevelUnavailable, report.Level)
	require.Len(t, report.Phases, 1)
	assert.False(t, report.Phases[0].Success)
}

func TestOrchestrator_OptionalPhaseFallsBack(t *testing.T) {
	state := NewAppState()
	o := NewOrchestrator(state)

	o.AddPhase(Phase{
		Name:     PhaseDatabase,
		Required: true,
		Run:      func(ctx context.Context) error { return nil },
	})
	o.AddPhase(Phase{
		Name:          PhaseCache,
		FallbackLevel: LevelDegraded,
		Run: func(ctx context.Context) error {
			return errors.NewUnavailableError("redis unreachable")
		},
	})
	o.AddPhase(Phase{
		Name: PhaseServices,
		Run:  func(ctx context.Context) error { return nil },
	})

	report, err := o.Run(context.Background())
	require.NoError(t, err) // optional failure does not abort startup
	assert.Equal(t, LevelDegraded, report.Level)
	require.Len(t, report.Phases, 3)
	assert.True(t, report.Phases[1].Fallback)
	assert.Equal(t, LevelDegraded, report.Phases[1].Level)
	assert.True(t, report.Phases[2].Success)
}

func TestOrchestrator_OptionalFailureDefaultsToDegraded(t *testing.T) {
	state := NewAppState()
	o := NewOrchestrator(state)

	o.AddPhase(Phase{
		Name: PhaseServices,
		Run: func(ctx context.Context) error {
			return errors.NewInternalError("boom")
		},
	})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LevelDegraded, report.Level)
}

func TestOrchestrator_PhaseTimeout(t *testing.T) {
	state := NewAppState()
	o := NewOrchestrator(state)

	o.AddPhase(Phase{
		Name:          PhaseCache,
		Timeout:       20 * time.Millisecond,
		FallbackLevel: LevelDegraded,
		Run: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
				return nil
			}
		},
	})

	start := time.Now()
	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, LevelDegraded, report.Level)
}

func TestOrchestrator_PhaseRetry(t *testing.T) {
	state := NewAppState()
	o := NewOrchestrator(state)

	retry := resilience.RetryConfig{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		Multiplier:   2.0,
	}

	attempts := 0
	o.AddPhase(Phase{
		Name:     PhaseDatabase,
		Required: true,
		Retry:    &retry,
		Run: func(ctx context.Context) error {
			attempts++
			if attempts < 3 {
				return errors.NewTimeoutError("database connect")
			}
			return nil
		},
	})

	report, err := o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, LevelFull, report.Level)
}

func TestOrchestrator_PhasePanicBecomesFailure(t *testing.T) {
	state := NewAppState()
	o := NewOrchestrator(state)

	o.AddPhase(Phase{
		Name:          PhaseServices,
		FallbackLevel: LevelMinimal,
		Run: func(ctx context.Context) error {
			panic("bad wiring")
		},
	})

	var report *Report
	var err error
	assert.NotPanics(t, func() {
		report, err = o.Run(context.Background())
	})
	require.NoError(t, err)
	assert.Equal(t, LevelMinimal, report.Level)
	assert.Contains(t, report.Phases[0].Error, "panicked")
}

func TestOrchestrator_RequiredPanicAborts(t *testing.T) {
	state := NewAppState()
	o := NewOrchestrator(state)

	o.AddPhase(Phase{
		Name:     PhaseDatabase,
		Required: true,
		Run: func(ctx context.Context) error {
			panic("bad wiring")
		},
	})

	report, err := o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, LevelUnavailable, report.Level)
}
