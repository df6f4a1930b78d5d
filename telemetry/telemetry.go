// Package telemetry wires this engine's observability: an OpenTelemetry
// tracer for turn/pipeline spans and a metrics registry that engine
// internals (FSM transitions, pipeline runs, circuit breakers) emit
// through without importing OTel themselves. The registry registers
// itself with core so loggers pick up trace correlation and every
// package can reach it via core.GetGlobalMetricsRegistry.
package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/itsneelabh/contractengine/core"
)

// Config configures telemetry initialization. The zero value is valid:
// no exporter, full sampling, metrics registry still live (instruments
// record against the global meter provider, a no-op until a deployment
// installs one).
type Config struct {
	// ServiceName identifies this engine in exported spans.
	ServiceName string
	// Endpoint is the OTLP/gRPC collector address (host:port). Empty
	// disables span export unless DevMode is set.
	Endpoint string
	// DevMode swaps the OTLP exporter for pretty-printed stdout spans.
	DevMode bool
	// SamplingRate is the trace sampling ratio in [0,1]; 0 means 1.0.
	SamplingRate float64
	// Insecure disables TLS on the OTLP connection.
	Insecure bool
}

// Provider owns the tracer provider and metrics registry built by Init.
type Provider struct {
	tracerProvider *sdktrace.TracerProvider
	registry       *Registry
	shutdownOnce   sync.Once
}

// Init sets up tracing and the metrics registry, installs both
// globally (otel tracer provider, core metrics registry), and returns
// the Provider for shutdown.
func Init(cfg Config) (*Provider, error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "contract-engine"
	}
	if cfg.SamplingRate <= 0 || cfg.SamplingRate > 1 {
		cfg.SamplingRate = 1.0
	}

	p := &Provider{registry: NewRegistry(cfg.ServiceName)}

	exporter, err := newSpanExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("telemetry: span exporter: %w", err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SamplingRate))),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", cfg.ServiceName),
		)),
	}
	if exporter != nil {
		opts = append(opts, sdktrace.WithBatcher(exporter))
	}
	p.tracerProvider = sdktrace.NewTracerProvider(opts...)

	otel.SetTracerProvider(p.tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	SetRegistry(p.registry)
	core.SetMetricsRegistry(p.registry)

	return p, nil
}

// newSpanExporter picks the exporter for cfg: stdout in dev mode, OTLP
// when an endpoint is configured, none otherwise.
func newSpanExporter(cfg Config) (sdktrace.SpanExporter, error) {
	if cfg.DevMode {
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	}
	if cfg.Endpoint == "" {
		return nil, nil
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(context.Background(), opts...)
}

// Registry returns the metrics registry built by Init.
func (p *Provider) Registry() *Registry { return p.registry }

// Shutdown flushes pending spans. Safe to call more than once.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		if p.tracerProvider != nil {
			err = p.tracerProvider.Shutdown(ctx)
		}
	})
	return err
}
