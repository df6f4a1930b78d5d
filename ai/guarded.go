package ai

import (
	"context"
	"errors"
	"math/rand"
	"net/url"
	"time"

	"github.com/itsneelabh/contractengine/core"
)

// CircuitBreaker is the minimal surface GuardedClient needs from
// resilience.CircuitBreaker. Defined locally (mirrors
// memory.resilienceBreaker's narrow-interface pattern) so this package
// never imports resilience directly, avoiding a dependency cycle risk
// now that resilience itself reports into a HealthMonitor this package
// also reports into.
type CircuitBreaker interface {
	Execute(ctx context.Context, fn func() error) error
}

// ServiceHealthReporter is the minimal surface GuardedClient needs from
// resilience.HealthMonitor.
type ServiceHealthReporter interface {
	ReportError(service string)
	ReportRecovery(service string)
}

// GuardedClient wraps a core.AIClient with circuit-breaker protection
// and health-monitor reporting; the wrapped client (ai.OpenAIClient)
// already enforces the 30s LLM call timeout on its own HTTP client.
// A rejected call (circuit
// open) surfaces as an ordinary error to the caller, so
// fsm/llm_helpers.go's existing regex/heuristic fallbacks fire exactly
// as they would on any other LLM failure — no special-casing needed
// upstream of this wrapper.
type GuardedClient struct {
	inner       core.AIClient
	breaker     CircuitBreaker
	health      ServiceHealthReporter
	serviceName string
}

// DefaultLLMServiceName is the service name GuardedClient reports to the
// health monitor when none is given.
const DefaultLLMServiceName = "llm"

// NewGuardedClient wraps inner. breaker and health may each be nil
// independently: a nil breaker runs inner unguarded; a nil health
// reporter simply skips the health-monitor feed.
func NewGuardedClient(inner core.AIClient, breaker CircuitBreaker, health ServiceHealthReporter, serviceName string) *GuardedClient {
	if serviceName == "" {
		serviceName = DefaultLLMServiceName
	}
	return &GuardedClient{inner: inner, breaker: breaker, health: health, serviceName: serviceName}
}

// retryJitterCeiling bounds the random delay before the single
// transient-error retry.
const retryJitterCeiling = 250 * time.Millisecond

// GenerateResponse implements core.AIClient. A transient transport
// failure gets exactly one retry after a jittered delay; a response
// that arrived but could not be parsed is never retried, since a
// malformed body will not become well-formed on replay.
func (g *GuardedClient) GenerateResponse(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	resp, err := g.generateOnce(ctx, prompt, options)
	if err != nil && isTransientTransportError(err) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Duration(rand.Int63n(int64(retryJitterCeiling)))):
		}
		resp, err = g.generateOnce(ctx, prompt, options)
	}
	return resp, err
}

func (g *GuardedClient) generateOnce(ctx context.Context, prompt string, options *core.AIOptions) (*core.AIResponse, error) {
	if g.breaker == nil {
		return g.inner.GenerateResponse(ctx, prompt, options)
	}

	var resp *core.AIResponse
	err := g.breaker.Execute(ctx, func() error {
		var innerErr error
		resp, innerErr = g.inner.GenerateResponse(ctx, prompt, options)
		return innerErr
	})

	if g.health != nil {
		if err != nil {
			g.health.ReportError(g.serviceName)
		} else {
			g.health.ReportRecovery(g.serviceName)
		}
	}

	return resp, err
}

// isTransientTransportError reports whether err came from the network
// layer (connection refused, timeout, DNS) rather than from the
// provider's response body or the circuit breaker.
func isTransientTransportError(err error) bool {
	if errors.Is(err, core.ErrCircuitBreakerOpen) {
		return false
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

var _ core.AIClient = (*GuardedClient)(nil)
