package resilience

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/itsneelabh/contractengine/core"
)

// CircuitState identifies where a breaker is in its recovery cycle.
type CircuitState int

const (
	// StateClosed allows all requests through.
	StateClosed CircuitState = iota
	// StateOpen rejects all requests until the recovery timeout elapses.
	StateOpen
	// StateHalfOpen allows a single trial request to probe recovery.
	StateHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	// DefaultFailureThreshold is how many consecutive failures trip the
	// breaker. Five matches the Redis outage shape this engine degrades
	// around: a connection blip recovers within one or two calls, a real
	// outage does not.
	DefaultFailureThreshold = 5
	// DefaultRecoveryTimeout is how long an open breaker waits before
	// letting a trial request probe the service again.
	DefaultRecoveryTimeout = 30 * time.Second
)

// CircuitBreakerConfig configures one breaker. Name identifies the
// guarded service ("redis", "llm") in logs, metrics, and listener
// callbacks.
type CircuitBreakerConfig struct {
	Name             string
	FailureThreshold int
	RecoveryTimeout  time.Duration
	Logger           core.Logger
	Metrics          MetricsCollector

	// now is a test seam; production breakers use time.Now.
	now func() time.Time
}

// DefaultCircuitBreakerConfig returns a config with the package
// defaults applied.
func DefaultCircuitBreakerConfig(name string) *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		Name:             name,
		FailureThreshold: DefaultFailureThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
	}
}

// StateChangeListener observes breaker transitions. Listeners run
// synchronously inside the transition, so they must be fast and must
// not call back into the breaker.
type StateChangeListener func(name string, from, to CircuitState)

// CircuitBreaker guards one external service with the classic
// three-state cycle: consecutive failures trip CLOSED to OPEN, the
// recovery timeout moves OPEN to HALF_OPEN, and a single trial request
// decides between CLOSED (success) and OPEN again (failure).
//
// Two usage styles are supported and may be mixed: Execute wraps a call
// and records its outcome automatically; CanExecute/RecordSuccess/
// RecordFailure let a caller that already has its own call site (the
// Redis buffer store) drive the same state machine by hand.
type CircuitBreaker struct {
	name             string
	failureThreshold int
	recoveryTimeout  time.Duration
	logger           core.Logger
	metrics          MetricsCollector
	now              func() time.Time

	mu                  sync.Mutex
	state               CircuitState
	consecutiveFailures int
	openedAt            time.Time
	trialInFlight       bool
	forced              bool

	listeners []StateChangeListener
}

// NewCircuitBreaker builds a breaker from config, applying defaults for
// zero values.
func NewCircuitBreaker(config *CircuitBreakerConfig) (*CircuitBreaker, error) {
	if config == nil {
		return nil, fmt.Errorf("circuit breaker config is required")
	}
	if config.Name == "" {
		return nil, fmt.Errorf("circuit breaker name is required")
	}
	cb := &CircuitBreaker{
		name:             config.Name,
		failureThreshold: config.FailureThreshold,
		recoveryTimeout:  config.RecoveryTimeout,
		logger:           config.Logger,
		metrics:          config.Metrics,
		now:              config.now,
	}
	if cb.failureThreshold <= 0 {
		cb.failureThreshold = DefaultFailureThreshold
	}
	if cb.recoveryTimeout <= 0 {
		cb.recoveryTimeout = DefaultRecoveryTimeout
	}
	if cb.logger == nil {
		cb.logger = &core.NoOpLogger{}
	}
	if cb.metrics == nil {
		cb.metrics = noopMetrics{}
	}
	if cb.now == nil {
		cb.now = time.Now
	}
	return cb, nil
}

// NewSimpleCircuitBreaker builds an unnamed-service breaker from just
// the two knobs that matter; used by tests and ad hoc guards.
func NewSimpleCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) *CircuitBreaker {
	cb, _ := NewCircuitBreaker(&CircuitBreakerConfig{
		Name:             "circuit",
		FailureThreshold: failureThreshold,
		RecoveryTimeout:  recoveryTimeout,
	})
	return cb
}

// Name returns the guarded service name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// GetState returns the current state, applying any pending
// open-to-half-open promotion first so callers never observe a stale
// OPEN past the recovery timeout.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.maybePromoteLocked()
	return cb.state
}

// AddStateChangeListener registers fn for every state transition.
func (cb *CircuitBreaker) AddStateChangeListener(fn StateChangeListener) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.listeners = append(cb.listeners, fn)
}

// CanExecute reports whether a call may proceed right now. In HALF_OPEN
// it also claims the single trial slot, so exactly one caller gets true
// until that trial's outcome is recorded.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.canExecuteLocked()
}

func (cb *CircuitBreaker) canExecuteLocked() bool {
	cb.maybePromoteLocked()

	switch cb.state {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true
	default:
		cb.metrics.Rejection(cb.name)
		return false
	}
}

// maybePromoteLocked moves OPEN to HALF_OPEN once the recovery timeout
// has elapsed. Caller must hold mu.
func (cb *CircuitBreaker) maybePromoteLocked() {
	if cb.forced || cb.state != StateOpen {
		return
	}
	if cb.now().Sub(cb.openedAt) >= cb.recoveryTimeout {
		cb.transitionLocked(StateHalfOpen)
		cb.trialInFlight = false
	}
}

// RecordSuccess resets the failure count and, after a successful
// half-open trial, closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.forced {
		return
	}
	cb.consecutiveFailures = 0
	cb.trialInFlight = false
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
	cb.metrics.Outcome(cb.name, true)
}

// RecordFailure counts a failure: in CLOSED it trips the breaker at the
// threshold, in HALF_OPEN it sends the breaker straight back to OPEN.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.forced {
		return
	}
	cb.metrics.Outcome(cb.name, false)

	switch cb.state {
	case StateHalfOpen:
		cb.trialInFlight = false
		cb.openLocked()
	case StateClosed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.failureThreshold {
			cb.openLocked()
		}
	}
}

func (cb *CircuitBreaker) openLocked() {
	cb.openedAt = cb.now()
	cb.transitionLocked(StateOpen)
}

// Execute runs fn through the breaker, recording its outcome. A
// rejected call returns core.ErrCircuitBreakerOpen wrapped with the
// service name so callers can branch with errors.Is.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !cb.CanExecute() {
		return fmt.Errorf("circuit breaker %q is open: %w", cb.name, core.ErrCircuitBreakerOpen)
	}

	err := fn()
	if err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Reset forces the breaker back to CLOSED and clears all counters and
// overrides.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.forced = false
	cb.consecutiveFailures = 0
	cb.trialInFlight = false
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}

// ForceOpen pins the breaker OPEN until ClearForce or Reset; used to
// take a backing service out of rotation manually.
func (cb *CircuitBreaker) ForceOpen() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.forced = true
	cb.openedAt = cb.now()
	if cb.state != StateOpen {
		cb.transitionLocked(StateOpen)
	}
}

// ForceClosed pins the breaker CLOSED until ClearForce or Reset.
func (cb *CircuitBreaker) ForceClosed() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.forced = true
	cb.consecutiveFailures = 0
	cb.trialInFlight = false
	if cb.state != StateClosed {
		cb.transitionLocked(StateClosed)
	}
}

// ClearForce lifts a ForceOpen/ForceClosed override, leaving the
// breaker in its current state but under automatic control again.
func (cb *CircuitBreaker) ClearForce() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.forced = false
}

// transitionLocked performs the state change and notifies listeners and
// metrics. Caller must hold mu.
func (cb *CircuitBreaker) transitionLocked(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	cb.logger.Info("circuit breaker state change", map[string]interface{}{
		"name": cb.name,
		"from": from.String(),
		"to":   to.String(),
	})
	cb.metrics.StateChange(cb.name, from, to)
	for _, fn := range cb.listeners {
		fn(cb.name, from, to)
	}
}
