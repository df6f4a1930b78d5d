package resilience

// WireHealthReporting attaches a state-change listener to cb that feeds
// health: an open transition reports the service as erroring, a
// transition back to closed (recovery from half-open) reports recovery.
// The circuit breaker is one of the two feeds into the health monitor
// (the other being per-call error reports); this is the
// composition-time wiring for the breaker feed, independent of
// whatever per-call error reporting a caller already does against the
// same HealthMonitor.
func WireHealthReporting(cb *CircuitBreaker, health *HealthMonitor, serviceName string) {
	cb.AddStateChangeListener(func(_ string, from, to CircuitState) {
		switch to {
		case StateOpen:
			health.ReportError(serviceName)
		case StateClosed:
			if from != StateClosed {
				health.ReportRecovery(serviceName)
			}
		}
	})
}
