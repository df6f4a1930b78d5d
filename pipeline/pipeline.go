package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/itsneelabh/contractengine/core"
)

// Component is a single pipeline stage. RunBatch lets a component process
// several inputs in one call (e.g. an AttributeAnalyzer batching several
// product records into one LLM call); Run is sugar for the common
// single-input case.
type Component interface {
	Name() string
	Run(ctx context.Context, input map[string]any) (map[string]any, error)
}

// BatchComponent is implemented by components that can process several
// inputs together more efficiently than one at a time.
type BatchComponent interface {
	Component
	RunBatch(ctx context.Context, inputs []map[string]any) ([]map[string]any, error)
}

// Pipeline threads a fixed, linear sequence of components: each
// component's output map is merged into the running state and handed to
// the next component. The three pipelines named in the engine (product
// search, preference match, rolling summarizer) are all linear chains, so
// this never needs to model a general dependency graph.
type Pipeline struct {
	name       string
	components []Component
	logger     core.Logger
}

// New creates a named pipeline from an ordered list of components.
func New(name string, logger core.Logger, components ...Component) *Pipeline {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Pipeline{
		name:       name,
		components: components,
		logger:     logger,
	}
}

// Name returns the pipeline's name, used in telemetry labels and logs.
func (p *Pipeline) Name() string {
	return p.name
}

// Run executes every component in order, merging each component's output
// into the accumulated state map before passing it to the next component.
// A failing component aborts the run and returns a wrapped error naming the
// component that failed.
func (p *Pipeline) Run(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	state := make(map[string]any, len(inputs))
	for k, v := range inputs {
		state[k] = v
	}

	if len(state) == 0 {
		return nil, core.NewFrameworkError("pipeline.Run", "pipeline", core.ErrPipelineEmptyInput).WithID(p.name)
	}

	started := time.Now()
	defer func() {
		if registry := core.GetGlobalMetricsRegistry(); registry != nil {
			registry.EmitWithContext(ctx, "pipeline.duration_ms",
				float64(time.Since(started).Milliseconds()), "pipeline", p.name)
		}
	}()

	for _, component := range p.components {
		select {
		case <-ctx.Done():
			return state, ctx.Err()
		default:
		}

		p.logger.DebugWithContext(ctx, "pipeline component starting", map[string]interface{}{
			"pipeline":  p.name,
			"component": component.Name(),
		})

		out, err := component.Run(ctx, state)
		if err != nil {
			p.logger.ErrorWithContext(ctx, "pipeline component failed", map[string]interface{}{
				"pipeline":  p.name,
				"component": component.Name(),
				"error":     err.Error(),
			})
			return state, fmt.Errorf("%s: %w: %w", component.Name(), core.ErrPipelineComponentFailed, err)
		}

		for k, v := range out {
			state[k] = v
		}
	}

	return state, nil
}
