package resilience

import (
	"github.com/itsneelabh/contractengine/core"
)

// MetricsCollector receives circuit breaker events. The default is a
// no-op; CreateCircuitBreaker swaps in the registry-backed collector
// when the telemetry module has registered itself with core.
type MetricsCollector interface {
	// StateChange fires on every breaker transition.
	StateChange(name string, from, to CircuitState)
	// Rejection fires when an open breaker turns a call away.
	Rejection(name string)
	// Outcome fires once per guarded call with its success flag.
	Outcome(name string, success bool)
}

type noopMetrics struct{}

func (noopMetrics) StateChange(string, CircuitState, CircuitState) {}
func (noopMetrics) Rejection(string)                               {}
func (noopMetrics) Outcome(string, bool)                           {}

// registryMetrics emits breaker events through the process-global
// metrics registry. The registry is re-read on every event rather than
// captured at construction, so breakers built before telemetry
// initialization still emit once it comes up.
type registryMetrics struct{}

// NewRegistryMetrics returns a MetricsCollector backed by
// core.GetGlobalMetricsRegistry; safe to use before the registry exists.
func NewRegistryMetrics() MetricsCollector { return registryMetrics{} }

func (registryMetrics) StateChange(name string, from, to CircuitState) {
	if r := core.GetGlobalMetricsRegistry(); r != nil {
		r.Counter("circuit_breaker.transitions", "name", name, "from", from.String(), "to", to.String())
		var open float64
		if to == StateOpen {
			open = 1
		}
		r.Gauge("circuit_breaker.open", open, "name", name)
	}
}

func (registryMetrics) Rejection(name string) {
	if r := core.GetGlobalMetricsRegistry(); r != nil {
		r.Counter("circuit_breaker.rejections", "name", name)
	}
}

func (registryMetrics) Outcome(name string, success bool) {
	if r := core.GetGlobalMetricsRegistry(); r != nil {
		outcome := "failure"
		if success {
			outcome = "success"
		}
		r.Counter("circuit_breaker.calls", "name", name, "outcome", outcome)
	}
}
