package startup

import (
	"context"
	"fmt"
	"time"

	"github.com/netra-labs/netra/pkg/errors"
	"github.com/netra-labs/netra/pkg/logging"
	"github.com/netra-labs/netra/pkg/metrics"
	"github.com/netra-labs/netra/pkg/resilience"
	"github.com/sirupsen/logrus"
)

// Standard phase names, in execution order
const (
	PhaseDatabase   = "database"
	PhaseCache      = "cache"
	PhaseServices   = "services"
	PhaseValidation = "validation"
)

// PhaseFunc performs one startup phase
type PhaseFunc func(ctx context.Context) error

// Phase describes one step of the startup sequence
type Phase struct {
	// Name identifies the phase in logs, metrics, and state
	Name string
	// Run performs the phase
	Run PhaseFunc
	// Timeout bounds the phase; zero means no phase-level bound
	Timeout time.Duration
	// Required phases abort startup on failure. Optional phases
	// degrade to FallbackLevel and startup continues.
	Required bool
	// FallbackLevel is the availability recorded when an optional
	// phase fails
	FallbackLevel AvailabilityLevel
	// Retry, when set, re-runs the phase on retryable failures
	Retry *resilience.RetryConfig
}

// PhaseResult records the outcome of one phase
type PhaseResult struct {
	Phase     string            `json:"phase"`
	Success   bool              `json:"success"`
	Fallback  bool              `json:"fallback"`
	Level     AvailabilityLevel `json:"level"`
	Duration  time.Duration     `json:"duration"`
	Error     string            `json:"error,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
}

// Report summarizes a completed startup run
type Report struct {
	Level     AvailabilityLevel `json:"level"`
	LevelName string            `json:"level_name"`
	Phases    []PhaseResult     `json:"phases"`
	Duration  time.Duration     `json:"duration"`
	StartedAt time.Time         `json:"started_at"`
}

// Orchestrator runs startup phases in order, degrading instead of
// aborting when an optional phase fails
type Orchestrator struct {
	phases  []Phase
	state   *AppState
	metrics *metrics.Metrics
	alerts  *resilience.AlertManager
	logger  *logging.Logger

	results []PhaseResult
	started time.Time
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithMetrics wires Prometheus metrics recording into the orchestrator
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithAlertManager routes phase failures through the alert manager
func WithAlertManager(am *resilience.AlertManager) Option {
	return func(o *Orchestrator) {
		o.alerts = am
	}
}

// NewOrchestrator creates a startup orchestrator writing availability
// into the given state
func NewOrchestrator(state *AppState, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		state:  state,
		logger: logging.GetLogger(),
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// AddPhase appends a phase to the startup sequence
func (o *Orchestrator) AddPhase(phase Phase) {
	o.phases = append(o.phases, phase)
}

// Run executes all phases in order. A required phase failure stops the
// sequence and returns an error; optional failures degrade availability
// and continue. The returned report is valid in both cases.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	o.started = time.Now()
	o.results = o.results[:0]

	var firstErr error

	for _, phase := range o.phases {
		result := o.runPhase(ctx, phase)
		o.results = append(o.results, result)
		o.state.SetComponent(phase.Name, result.Level)

		if o.metrics != nil {
			status := "success"
			if !result.Success {
				status = "failure"
			}
			o.metrics.RecordStartupPhase(phase.Name, status, result.Duration)
			o.metrics.UpdateAvailabilityLevel(phase.Name, int(result.Level))
		}

		if !result.Success {
			if phase.Required {
				firstErr = errors.NewStartupError(phase.Name, result.Error)
				o.sendPhaseAlert(ctx, phase, result, resilience.SeverityCritical)
				break
			}
			o.sendPhaseAlert(ctx, phase, result, resilience.SeverityWarning)
		}
	}

	report := &Report{
		Level:     o.state.Level(),
		Phases:    append([]PhaseResult(nil), o.results...),
		Duration:  time.Since(o.started),
		StartedAt: o.started,
	}
	report.LevelName = report.Level.String()

	o.logger.Info("Startup sequence finished",
		"level", report.LevelName,
		"phases", len(report.Phases),
		"duration", report.Duration.String(),
	)

	if firstErr != nil {
		return report, firstErr
	}
	return report, nil
}

// runPhase executes one phase with its timeout and retry policy
func (o *Orchestrator) runPhase(ctx context.Context, phase Phase) PhaseResult {
	start := time.Now()

	run := phase.Run
	if phase.Retry != nil {
		retrier := resilience.NewRetrier(*phase.Retry)
		inner := run
		run = func(ctx context.Context) error {
			return retrier.Execute(ctx, inner)
		}
	}

	phaseCtx := ctx
	if phase.Timeout > 0 {
		var cancel context.CancelFunc
		phaseCtx, cancel = context.WithTimeout(ctx, phase.Timeout)
		defer cancel()
	}

	err := o.safeRun(run, phaseCtx, phase.Name)
	duration := time.Since(start)

	result := PhaseResult{
		Phase:     phase.Name,
		Success:   err == nil,
		Duration:  duration,
		Timestamp: start,
	}

	if err == nil {
		result.Level = LevelFull
		o.logger.LogStartupEvent(ctx, phase.Name, true, logrus.Fields{
			"duration_ms": duration.Milliseconds(),
		})
		return result
	}

	result.Error = err.Error()
	if phase.Required {
		result.Level = LevelUnavailable
	} else {
		result.Fallback = true
		result.Level = phase.FallbackLevel
		if result.Level == LevelFull {
			// an optional phase that fails is at least degraded
			result.Level = LevelDegraded
		}
	}

	o.logger.LogStartupEvent(ctx, phase.Name, false, logrus.Fields{
		"duration_ms": duration.Milliseconds(),
		"required":    phase.Required,
		"level":       result.Level.String(),
		"error":       err.Error(),
	})

	return result
}

// safeRun executes a phase function, converting panics into errors so
// one broken phase cannot crash the process during boot
func (o *Orchestrator) safeRun(run PhaseFunc, ctx context.Context, name string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewStartupError(name, fmt.Sprintf("phase panicked: %v", r))
			if o.metrics != nil {
				o.metrics.RecordPanic("startup")
			}
		}
	}()
	return run(ctx)
}

func (o *Orchestrator) sendPhaseAlert(ctx context.Context, phase Phase, result PhaseResult, severity resilience.AlertSeverity) {
	if o.alerts == nil {
		return
	}

	err := o.alerts.SendAlert(ctx, resilience.Alert{
		Severity:    severity,
		Title:       "Startup phase failed",
		Description: fmt.Sprintf("phase %s failed: %s", phase.Name, result.Error),
		Source:      "startup",
		Tags: map[string]string{
			"phase":    phase.Name,
			"required": fmt.Sprintf("%t", phase.Required),
			"level":    result.Level.String(),
		},
		Metadata: map[string]interface{}{
			"duration": result.Duration.String(),
		},
	})
	if err != nil {
		o.logger.Debug("Startup alert dropped", "error", err)
	}
}
