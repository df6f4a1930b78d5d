package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/itsneelabh/contractengine/core"
)

// maxLabelValues caps the distinct values recorded per label key before
// further values collapse to "overflow". Unbounded label values
// (session ids leaking into metric labels, typically) blow up metric
// cardinality in the backend; the cap turns that bug into a visible
// "overflow" series instead of a billing incident.
const maxLabelValues = 100

// Registry implements core.MetricsRegistry on the OTel metric API, with
// instrument caching and label-cardinality protection. Instruments
// record against the global meter provider, so a deployment that never
// installs one pays only a map lookup per emission.
type Registry struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
	gauges     map[string]metric.Float64Gauge

	labelsMu   sync.Mutex
	seenLabels map[string]map[string]struct{}
}

// NewRegistry creates a Registry emitting under meterName.
func NewRegistry(meterName string) *Registry {
	return &Registry{
		meter:      otel.Meter(meterName),
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
		gauges:     make(map[string]metric.Float64Gauge),
		seenLabels: make(map[string]map[string]struct{}),
	}
}

var (
	globalMu       sync.RWMutex
	globalRegistry *Registry
)

// SetRegistry installs the process-global registry; Init calls this.
func SetRegistry(r *Registry) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalRegistry = r
}

// GetRegistry returns the process-global registry, nil before Init.
func GetRegistry() *Registry {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalRegistry
}

// Counter increments the named counter by 1.
func (r *Registry) Counter(name string, labels ...string) {
	c, err := r.counter(name)
	if err != nil {
		return
	}
	c.Add(context.Background(), 1, metric.WithAttributes(r.attrs(labels)...))
}

// EmitWithContext records value into the named histogram with ctx for
// exemplar/trace correlation.
func (r *Registry) EmitWithContext(ctx context.Context, name string, value float64, labels ...string) {
	h, err := r.histogram(name)
	if err != nil {
		return
	}
	h.Record(ctx, value, metric.WithAttributes(r.attrs(labels)...))
}

// Gauge sets the named gauge to value.
func (r *Registry) Gauge(name string, value float64, labels ...string) {
	g, err := r.gauge(name)
	if err != nil {
		return
	}
	g.Record(context.Background(), value, metric.WithAttributes(r.attrs(labels)...))
}

// Histogram records value into the named distribution.
func (r *Registry) Histogram(name string, value float64, labels ...string) {
	r.EmitWithContext(context.Background(), name, value, labels...)
}

// GetBaggage returns the request-scoped labels carried by ctx.
func (r *Registry) GetBaggage(ctx context.Context) map[string]string {
	return BaggageFrom(ctx)
}

func (r *Registry) counter(name string) (metric.Int64Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[name]; ok {
		return c, nil
	}
	c, err := r.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	r.counters[name] = c
	return c, nil
}

func (r *Registry) histogram(name string) (metric.Float64Histogram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[name]; ok {
		return h, nil
	}
	h, err := r.meter.Float64Histogram(name)
	if err != nil {
		return nil, err
	}
	r.histograms[name] = h
	return h, nil
}

func (r *Registry) gauge(name string) (metric.Float64Gauge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.gauges[name]; ok {
		return g, nil
	}
	g, err := r.meter.Float64Gauge(name)
	if err != nil {
		return nil, err
	}
	r.gauges[name] = g
	return g, nil
}

// attrs converts label pairs to OTel attributes, applying the
// cardinality cap per label key. An odd trailing label is dropped.
func (r *Registry) attrs(labels []string) []attribute.KeyValue {
	n := len(labels) / 2
	if n == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, n)
	for i := 0; i+1 < len(labels); i += 2 {
		out = append(out, attribute.String(labels[i], r.guardLabel(labels[i], labels[i+1])))
	}
	return out
}

// guardLabel returns value, or "overflow" once the key has seen
// maxLabelValues distinct values.
func (r *Registry) guardLabel(key, value string) string {
	r.labelsMu.Lock()
	defer r.labelsMu.Unlock()
	seen, ok := r.seenLabels[key]
	if !ok {
		seen = make(map[string]struct{})
		r.seenLabels[key] = seen
	}
	if _, ok := seen[value]; ok {
		return value
	}
	if len(seen) >= maxLabelValues {
		return "overflow"
	}
	seen[value] = struct{}{}
	return value
}

var _ core.MetricsRegistry = (*Registry)(nil)
