package resilience

import (
	"time"

	"github.com/itsneelabh/contractengine/core"
)

// ResilienceDependencies holds the optional collaborators and knob
// overrides a breaker is built with; zero values fall back to the
// package defaults.
type ResilienceDependencies struct {
	Logger           core.Logger
	Metrics          MetricsCollector
	FailureThreshold int
	RecoveryTimeout  time.Duration
}

// CreateCircuitBreaker builds a breaker for the named service, wiring
// in the caller's logger and, when the telemetry module has registered
// the global metrics registry, the registry-backed metrics collector.
func CreateCircuitBreaker(name string, deps ResilienceDependencies) (*CircuitBreaker, error) {
	config := DefaultCircuitBreakerConfig(name)
	config.Logger = deps.Logger
	config.Metrics = deps.Metrics
	if deps.FailureThreshold > 0 {
		config.FailureThreshold = deps.FailureThreshold
	}
	if deps.RecoveryTimeout > 0 {
		config.RecoveryTimeout = deps.RecoveryTimeout
	}
	if config.Metrics == nil && core.GetGlobalMetricsRegistry() != nil {
		config.Metrics = NewRegistryMetrics()
	}
	return NewCircuitBreaker(config)
}
