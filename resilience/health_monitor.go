package resilience

import (
	"sync"
	"time"

	"github.com/itsneelabh/contractengine/core"
)

// OperationMode is the system-wide degradation level derived from the
// number of currently-unavailable services: FULL (0), DEGRADED (1-2),
// MINIMAL (>=3). Every pipeline error site and the circuit breaker feed
// into the HealthMonitor that derives this.
type OperationMode string

const (
	ModeFull     OperationMode = "FULL"
	ModeDegraded OperationMode = "DEGRADED"
	ModeMinimal  OperationMode = "MINIMAL"
)

// ServiceHealth is a snapshot of one service's health counters.
type ServiceHealth struct {
	Name              string    `json:"name"`
	ConsecutiveErrors int       `json:"consecutive_errors"`
	Available         bool      `json:"available"`
	LastError         time.Time `json:"last_error,omitempty"`
	LastRecovery      time.Time `json:"last_recovery,omitempty"`
}

// HealthMonitor tracks per-service consecutive error counts and derives
// the global OperationMode. It is process-global: every pipeline
// component and the circuit breaker report into the same instance via
// GetHealthMonitor().
type HealthMonitor struct {
	mu        sync.RWMutex
	threshold int
	services  map[string]*ServiceHealth
	logger    core.Logger
}

// NewHealthMonitor creates a HealthMonitor with the given consecutive-
// error threshold (default 3) before a service is marked unavailable.
func NewHealthMonitor(threshold int) *HealthMonitor {
	if threshold <= 0 {
		threshold = 3
	}
	return &HealthMonitor{
		threshold: threshold,
		services:  make(map[string]*ServiceHealth),
		logger:    &core.NoOpLogger{},
	}
}

// SetLogger attaches a component-aware logger.
func (h *HealthMonitor) SetLogger(logger core.Logger) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logger = logger
}

func (h *HealthMonitor) entry(service string) *ServiceHealth {
	s, ok := h.services[service]
	if !ok {
		s = &ServiceHealth{Name: service, Available: true}
		h.services[service] = s
	}
	return s
}

// ReportError records a failure for service. Reaching the threshold
// marks the service unavailable.
func (h *HealthMonitor) ReportError(service string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.entry(service)
	s.ConsecutiveErrors++
	s.LastError = time.Now()

	wasAvailable := s.Available
	if s.ConsecutiveErrors >= h.threshold {
		s.Available = false
	}

	if wasAvailable && !s.Available {
		h.logger.Warn("service marked unavailable", map[string]interface{}{
			"service":            service,
			"consecutive_errors": s.ConsecutiveErrors,
		})
	}
}

// ReportRecovery resets service's consecutive error counter and marks it
// available again.
func (h *HealthMonitor) ReportRecovery(service string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s := h.entry(service)
	wasAvailable := s.Available
	s.ConsecutiveErrors = 0
	s.Available = true
	s.LastRecovery = time.Now()

	if !wasAvailable {
		h.logger.Info("service recovered", map[string]interface{}{"service": service})
	}
}

// IsAvailable reports whether service is currently considered healthy.
func (h *HealthMonitor) IsAvailable(service string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.services[service]
	if !ok {
		return true
	}
	return s.Available
}

// Snapshot returns a copy of every tracked service's health record.
func (h *HealthMonitor) Snapshot() map[string]ServiceHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]ServiceHealth, len(h.services))
	for name, s := range h.services {
		out[name] = *s
	}
	return out
}

// OperationMode derives the system-wide degradation level from the count
// of currently-unavailable services.
func (h *HealthMonitor) OperationMode() OperationMode {
	h.mu.RLock()
	defer h.mu.RUnlock()

	unavailable := 0
	for _, s := range h.services {
		if !s.Available {
			unavailable++
		}
	}

	switch {
	case unavailable == 0:
		return ModeFull
	case unavailable <= 2:
		return ModeDegraded
	default:
		return ModeMinimal
	}
}

// Degraded reports whether the system is running below FULL mode.
// Callers that only need a yes/no for user-facing notices use this
// rather than switching on OperationMode themselves.
func (h *HealthMonitor) Degraded() bool {
	return h.OperationMode() != ModeFull
}

// Reset clears all tracked service state. Intended for tests.
func (h *HealthMonitor) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.services = make(map[string]*ServiceHealth)
}

var (
	globalHealthMonitor     *HealthMonitor
	globalHealthMonitorOnce sync.Once
	globalHealthMonitorMu   sync.Mutex
)

// GetHealthMonitor returns the process-global HealthMonitor singleton,
// constructing it with the default threshold (3) on first use.
func GetHealthMonitor() *HealthMonitor {
	globalHealthMonitorOnce.Do(func() {
		globalHealthMonitorMu.Lock()
		defer globalHealthMonitorMu.Unlock()
		if globalHealthMonitor == nil {
			globalHealthMonitor = NewHealthMonitor(3)
		}
	})
	return globalHealthMonitor
}

// SetHealthMonitor overrides the process-global singleton. Intended for
// tests that need a fresh monitor with a non-default threshold.
func SetHealthMonitor(h *HealthMonitor) {
	globalHealthMonitorMu.Lock()
	defer globalHealthMonitorMu.Unlock()
	globalHealthMonitor = h
}
