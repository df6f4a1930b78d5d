package fsm

import (
	"context"
	"time"

	"github.com/itsneelabh/contractengine/memory"
)

// PipelineRunner is satisfied by *pipeline.Pipeline; defined locally so
// the FSM depends only on the shape it needs and tests can supply a
// fake without constructing a real pipeline.
type PipelineRunner interface {
	Run(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// MemoryManager is satisfied by *memory.Manager.
type MemoryManager interface {
	AddMessage(ctx context.Context, sessionID string, msg memory.Message) error
	EnhancedContext(ctx context.Context, sessionID, userID, query string) (memory.EnhancedContext, error)
}

// HealthReporter is satisfied by *resilience.HealthMonitor; the FSM
// reports pipeline failures/recoveries to it without importing the
// resilience package directly (mirrors memory.buffer's
// resilienceBreaker pattern to avoid an import cycle risk and keep the
// FSM's collaborator surface minimal).
type HealthReporter interface {
	ReportError(service string)
	ReportRecovery(service string)
	// Degraded reports whether any tracked service is currently
	// unavailable; user-facing replies carry a notice while it is true.
	Degraded() bool
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// noopHealthReporter is used when no HealthReporter is injected.
type noopHealthReporter struct{}

func (noopHealthReporter) ReportError(string)    {}
func (noopHealthReporter) ReportRecovery(string) {}
func (noopHealthReporter) Degraded() bool        { return false }
