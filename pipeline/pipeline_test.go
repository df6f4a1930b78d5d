package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/itsneelabh/contractengine/core"
)

type fakeComponent struct {
	name string
	fn   func(ctx context.Context, input map[string]any) (map[string]any, error)
}

func (f *fakeComponent) Name() string { return f.name }
func (f *fakeComponent) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	return f.fn(ctx, input)
}

func TestPipeline_Run_ThreadsState(t *testing.T) {
	first := &fakeComponent{name: "first", fn: func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return map[string]any{"step1": true}, nil
	}}
	second := &fakeComponent{name: "second", fn: func(ctx context.Context, input map[string]any) (map[string]any, error) {
		if _, ok := input["step1"]; !ok {
			t.Error("second component should see first component's output")
		}
		return map[string]any{"step2": true}, nil
	}}

	p := New("test-pipeline", &core.NoOpLogger{}, first, second)
	out, err := p.Run(context.Background(), map[string]any{"query": "gpu"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out["step1"] != true || out["step2"] != true {
		t.Errorf("Run() output missing merged state: %+v", out)
	}
	if out["query"] != "gpu" {
		t.Errorf("Run() should retain original input, got %+v", out)
	}
}

func TestPipeline_Run_EmptyInputRejected(t *testing.T) {
	p := New("test-pipeline", &core.NoOpLogger{})
	_, err := p.Run(context.Background(), nil)
	if !errors.Is(err, core.ErrPipelineEmptyInput) {
		t.Errorf("expected ErrPipelineEmptyInput, got %v", err)
	}
}

func TestPipeline_Run_ComponentFailureAborts(t *testing.T) {
	boom := errors.New("boom")
	failing := &fakeComponent{name: "failing", fn: func(ctx context.Context, input map[string]any) (map[string]any, error) {
		return nil, boom
	}}
	neverRuns := &fakeComponent{name: "never", fn: func(ctx context.Context, input map[string]any) (map[string]any, error) {
		t.Error("component after a failure should not run")
		return nil, nil
	}}

	p := New("test-pipeline", &core.NoOpLogger{}, failing, neverRuns)
	_, err := p.Run(context.Background(), map[string]any{"query": "gpu"})
	if !errors.Is(err, core.ErrPipelineComponentFailed) {
		t.Errorf("expected ErrPipelineComponentFailed, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped boom error, got %v", err)
	}
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	component := &fakeComponent{name: "c", fn: func(ctx context.Context, input map[string]any) (map[string]any, error) {
		t.Error("component should not run once context is cancelled")
		return nil, nil
	}}

	p := New("test-pipeline", &core.NoOpLogger{}, component)
	_, err := p.Run(ctx, map[string]any{"query": "gpu"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
