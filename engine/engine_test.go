package engine

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/pipeline"
)

type staticAdapter struct {
	items []pipeline.Product
}

func (a *staticAdapter) Search(ctx context.Context, query string) ([]pipeline.Product, error) {
	return a.items, nil
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg, err := core.NewConfig(
		core.WithRedisURL("redis://"+mr.Addr()),
		core.WithAI(false, "", ""),
	)
	require.NoError(t, err)

	adapter := &staticAdapter{items: []pipeline.Product{
		{Name: "GPU A", Price: 300.0, Rating: 4.5},
		{Name: "GPU B", Price: 500.0, Rating: 4.8},
	}}

	e, err := New(cfg, adapter, WithContractTemplateRef("../contracts/purchase_item.yaml"))
	require.NoError(t, err)
	return e
}

func TestNewRequiresAdapter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	cfg, err := core.NewConfig(core.WithRedisURL("redis://" + mr.Addr()))
	require.NoError(t, err)

	_, err = New(cfg, nil)
	assert.Error(t, err)
}

func TestEngineDrivesContractEndToEnd(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	reply, err := e.Orchestrator.HandleTurn(ctx, "s1", "I want to buy a GPU")
	require.NoError(t, err)
	assert.Contains(t, reply, "1. GPU A")

	reply, err = e.Orchestrator.HandleTurn(ctx, "s1", "2")
	require.NoError(t, err)
	assert.Contains(t, reply, "Confirm purchase")

	reply, err = e.Orchestrator.HandleTurn(ctx, "s1", "yes")
	require.NoError(t, err)
	assert.Contains(t, reply, "Order confirmed")
}

func TestEngineBuffersConversationInMemoryTier(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	_, err := e.Orchestrator.HandleTurn(ctx, "s2", "I want to buy a GPU")
	require.NoError(t, err)

	enhanced, err := e.Memory.EnhancedContext(ctx, "s2", "s2", "")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, enhanced.MessageCount, 2, "user and assistant turns should be buffered")
}

func TestEngineReportsFullOperationModeAtRest(t *testing.T) {
	e := newTestEngine(t)
	assert.NotNil(t, e.Health)
	assert.Equal(t, "FULL", string(e.Health.OperationMode()))
}
