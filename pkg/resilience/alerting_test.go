package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"

	appErrors "github.com/netra-labs/netra/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAlertHandler captures alerts for assertions
type recordingAlertHandler struct {
	mu     sync.Mutex
	alerts []Alert
	fail   bool
}

func (h *recordingAlertHandler) HandleAlert(ctx context.Context, alert Alert) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.fail {
		return errors.New("handler failed")
	}
	h.alerts = append(h.alerts, alert)
	return nil
}

func (h *recordingAlertHandler) Name() string {
	return "recording"
}

func (h *recordingAlertHandler) received() []Alert {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]Alert, len(h.alerts))
	copy(out, h.alerts)
	return out
}

func TestAlertManager_SendAlert(t *testing.T) {
	am := NewAlertManager()
	handler := &recordingAlertHandler{}
	am.AddHandler(handler)

	err := am.SendAlert(context.Background(), Alert{
		Severity:    SeverityWarning,
		Title:       "Connection timeout approaching",
		Description: "attempt took 38s of a 45s budget",
		Source:      "connection_monitor",
	})
	require.NoError(t, err)

	alerts := handler.received()
	require.Len(t, alerts, 1)
	assert.Equal(t, SeverityWarning, alerts[0].Severity)
	assert.NotEmpty(t, alerts[0].ID)
	assert.False(t, alerts[0].Timestamp.IsZero())
}

func TestAlertManager_AllHandlersFailed(t *testing.T) {
	am := NewAlertManager()
	am.AddHandler(&recordingAlertHandler{fail: true})

	err := am.SendAlert(context.Background(), Alert{
		Severity: SeverityError,
		Title:    "test",
		Source:   "test",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all alert handlers failed")
}

func TestAlertManager_PartialHandlerFailure(t *testing.T) {
	am := NewAlertManager()
	working := &recordingAlertHandler{}
	am.AddHandler(&recordingAlertHandler{fail: true})
	am.AddHandler(working)

	err := am.SendAlert(context.Background(), Alert{
		Severity: SeverityError,
		Title:    "test",
		Source:   "test",
	})
	require.NoError(t, err) // one handler succeeded
	assert.Len(t, working.received(), 1)
}

func TestAlertManager_RateLimiting(t *testing.T) {
	am := NewAlertManager()
	am.rateLimit = 3
	handler := &recordingAlertHandler{}
	am.AddHandler(handler)

	for i := 0; i < 3; i++ {
		err := am.SendAlert(context.Background(), Alert{
			Severity: SeverityInfo,
			Title:    "test",
			Source:   "noisy_source",
		})
		require.NoError(t, err)
	}

	err := am.SendAlert(context.Background(), Alert{
		Severity: SeverityInfo,
		Title:    "test",
		Source:   "noisy_source",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit")

	// Other sources are unaffected
	err = am.SendAlert(context.Background(), Alert{
		Severity: SeverityInfo,
		Title:    "test",
		Source:   "quiet_source",
	})
	require.NoError(t, err)

	assert.Len(t, handler.received(), 4)
}

func TestLoggingAlertHandler(t *testing.T) {
	handler := NewLoggingAlertHandler()

	err := handler.HandleAlert(context.Background(), Alert{
		ID:       "test-1",
		Severity: SeverityCritical,
		Title:    "Connector overloaded",
		Source:   "vpc_monitor",
		Tags:     map[string]string{"connector": "netra-staging"},
		Metadata: map[string]interface{}{"utilization": 0.93},
	})
	require.NoError(t, err)
	assert.Equal(t, "logging", handler.Name())
}

func TestErrorAlertGenerator_SeverityMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		severity AlertSeverity
	}{
		{"timeout", appErrors.NewTimeoutError("connect"), SeverityWarning},
		{"external", appErrors.NewExternalError("cloud-sql", "down"), SeverityWarning},
		{"unavailable", appErrors.NewUnavailableError("database offline"), SeverityCritical},
		{"internal", appErrors.NewInternalError("boom"), SeverityError},
		{"validation", appErrors.NewValidationError("bad"), SeverityInfo},
		{"circuit breaker", &CircuitBreakerError{Name: "db", State: StateOpen}, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			am := NewAlertManager()
			handler := &recordingAlertHandler{}
			am.AddHandler(handler)
			gen := NewErrorAlertGenerator(am)

			gen.HandleError(context.Background(), tt.err, "test_source", nil)

			alerts := handler.received()
			require.Len(t, alerts, 1)
			assert.Equal(t, tt.severity, alerts[0].Severity)
			assert.Equal(t, "test_source", alerts[0].Source)
		})
	}
}

func TestErrorAlertGenerator_NilError(t *testing.T) {
	am := NewAlertManager()
	handler := &recordingAlertHandler{}
	am.AddHandler(handler)
	gen := NewErrorAlertGenerator(am)

	gen.HandleError(context.Background(), nil, "test_source", nil)
	assert.Empty(t, handler.received())
}
