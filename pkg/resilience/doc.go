// Package resilience provides circuit breaking, retry with exponential
// backoff, and alert routing for Netra's connection and startup paths.
//
// # Circuit Breaker Pattern
//
// The circuit breaker prevents cascading failures by monitoring the failure
// rate of database and connector calls and temporarily blocking requests
// when the failure rate exceeds a threshold.
//
//	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
//		Name:        "database",
//		MaxRequests: 3,
//		Interval:    time.Minute,
//		Timeout:     30 * time.Second,
//	})
//
//	result, err := cb.Execute(ctx, func(ctx context.Context) (interface{}, error) {
//		return repo.Load(ctx, id)
//	})
//
// # Retry with Exponential Backoff
//
// The retry mechanism automatically retries failed operations with
// exponential backoff and jitter. DatabaseRetryConfig stretches the
// schedule to cover VPC connector cold starts.
//
//	retrier := resilience.NewRetrier(resilience.DatabaseRetryConfig())
//	err := retrier.Execute(ctx, func(ctx context.Context) error {
//		return db.Connect(ctx)
//	})
//
// # Error Alerting
//
// The alerting system generates and routes alerts based on error patterns
// and threshold violations reported by the monitors.
//
//	am := resilience.NewAlertManager()
//	am.AddHandler(resilience.NewLoggingAlertHandler())
//
//	eag := resilience.NewErrorAlertGenerator(am)
//	eag.HandleError(ctx, err, "connection_monitor", metadata)
//
// The package is thread-safe and designed for high-concurrency use.
package resilience
