package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itsneelabh/contractengine/fsm"
	"github.com/itsneelabh/contractengine/pipeline"
	"github.com/itsneelabh/contractengine/session"
)

type fakePipeline struct {
	out map[string]any
	err error
}

func (f *fakePipeline) Run(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

type fakeIntentExtractor struct{ intent Intent }

func (f *fakeIntentExtractor) Classify(ctx context.Context, sessionID, utterance string) (Intent, error) {
	return f.intent, nil
}

type fakeToolHandler struct{ reply string }

func (f *fakeToolHandler) HandleTool(ctx context.Context, sessionID, utterance string) (string, error) {
	return f.reply, nil
}

type fakeChatHandler struct{ reply string }

func (f *fakeChatHandler) HandleChat(ctx context.Context, sessionID, utterance string) (string, error) {
	return f.reply, nil
}

type fakePendingStore struct {
	pending map[string]*PendingConfirmation
}

func newFakePendingStore() *fakePendingStore {
	return &fakePendingStore{pending: make(map[string]*PendingConfirmation)}
}

func (f *fakePendingStore) Get(ctx context.Context, sessionID string) (*PendingConfirmation, error) {
	return f.pending[sessionID], nil
}

func (f *fakePendingStore) Clear(ctx context.Context, sessionID string) error {
	delete(f.pending, sessionID)
	return nil
}

type fakeArtifactWriter struct {
	writes []string
}

func (f *fakeArtifactWriter) WriteArtifact(ctx context.Context, kind, sessionID string, payload map[string]any) error {
	f.writes = append(f.writes, kind+":"+sessionID)
	return nil
}

type fakeChatHistory struct {
	userMsgs, assistantMsgs []string
}

func (f *fakeChatHistory) AppendUserMessage(ctx context.Context, sessionID, content string) error {
	f.userMsgs = append(f.userMsgs, content)
	return nil
}

func (f *fakeChatHistory) AppendAssistantMessage(ctx context.Context, sessionID, content string) error {
	f.assistantMsgs = append(f.assistantMsgs, content)
	return nil
}

func newTestOrchestrator(opts ...Option) (*Orchestrator, *session.Manager) {
	search := &fakePipeline{out: map[string]any{"status": "ok", "items": []pipeline.Product{
		{Name: "GPU A", Price: 300.0, Rating: 4.5},
	}}}
	sm := fsm.New(fsm.WithSearchPipeline(search))
	mgr := session.NewManager(session.NewInMemorySessionStore(), nil)
	o := New(sm, mgr, "../contracts/purchase_item.yaml", opts...)
	return o, mgr
}

func TestHandleTurnTemplateLoadFailureRepliesWithError(t *testing.T) {
	sm := fsm.New()
	mgr := session.NewManager(session.NewInMemorySessionStore(), nil)
	o := New(sm, mgr, "does/not/exist.yaml", WithIntentExtractor(&fakeIntentExtractor{intent: IntentContract}))

	reply, err := o.HandleTurn(context.Background(), "s1", "I want to buy a GPU")
	require.NoError(t, err)
	assert.Contains(t, reply, "error processing your request")

	_, err = mgr.LoadContext(context.Background(), "s1")
	assert.Error(t, err, "no resident session should survive a template load failure")
}

func TestHandleTurnStartsFreshContractOnContractIntent(t *testing.T) {
	o, _ := newTestOrchestrator(WithIntentExtractor(&fakeIntentExtractor{intent: IntentContract}))

	reply, err := o.HandleTurn(context.Background(), "s1", "I want to buy a GPU")
	require.NoError(t, err)
	assert.Contains(t, reply, "1. GPU A")
}

func TestHandleTurnDelegatesToolIntent(t *testing.T) {
	o, _ := newTestOrchestrator(
		WithIntentExtractor(&fakeIntentExtractor{intent: IntentTool}),
		WithToolHandler(&fakeToolHandler{reply: "tool result"}),
	)

	reply, err := o.HandleTurn(context.Background(), "s1", "what's the weather")
	require.NoError(t, err)
	assert.Equal(t, "tool result", reply)
}

func TestHandleTurnDelegatesChatIntentByDefault(t *testing.T) {
	o, _ := newTestOrchestrator(
		WithIntentExtractor(&fakeIntentExtractor{intent: IntentChat}),
		WithChatHandler(&fakeChatHandler{reply: "hi there"}),
	)

	reply, err := o.HandleTurn(context.Background(), "s1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)
}

func TestHandleTurnAdvancesResidentSession(t *testing.T) {
	o, mgr := newTestOrchestrator(WithIntentExtractor(&fakeIntentExtractor{intent: IntentContract}))
	ctx := context.Background()

	_, err := o.HandleTurn(ctx, "s1", "I want to buy a GPU")
	require.NoError(t, err)

	sessionCtx, err := mgr.LoadContext(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, fsm.StateRankAndSelect, sessionCtx.CurrentState)

	reply, err := o.HandleTurn(ctx, "s1", "1")
	require.NoError(t, err)
	assert.Contains(t, reply, "Confirm purchase")
}

func TestHandleTurnForgetsResidentSessionOnTerminal(t *testing.T) {
	artifacts := &fakeArtifactWriter{}
	o, mgr := newTestOrchestrator(
		WithIntentExtractor(&fakeIntentExtractor{intent: IntentContract}),
		WithArtifactWriter(artifacts),
	)
	ctx := context.Background()

	_, err := o.HandleTurn(ctx, "s1", "I want to buy a GPU")
	require.NoError(t, err)
	_, err = o.HandleTurn(ctx, "s1", "1")
	require.NoError(t, err)
	reply, err := o.HandleTurn(ctx, "s1", "yes")
	require.NoError(t, err)
	assert.Contains(t, reply, "Order confirmed")
	assert.Len(t, artifacts.writes, 1)

	_, err = mgr.LoadContext(ctx, "s1")
	assert.Error(t, err, "resident session should be cleared after a terminal transition")
}

func TestHandleTurnResolvesPendingConfirmationYes(t *testing.T) {
	pending := newFakePendingStore()
	pending.pending["s1"] = &PendingConfirmation{SessionID: "s1", ProductName: "Widget"}
	artifacts := &fakeArtifactWriter{}
	o, _ := newTestOrchestrator(WithPendingConfirmationStore(pending), WithArtifactWriter(artifacts))

	reply, err := o.HandleTurn(context.Background(), "s1", "yes")
	require.NoError(t, err)
	assert.Contains(t, reply, "Order confirmed")
	assert.Len(t, artifacts.writes, 1)
	_, stillPending := pending.pending["s1"]
	assert.False(t, stillPending)
}

func TestHandleTurnResolvesPendingConfirmationNo(t *testing.T) {
	pending := newFakePendingStore()
	pending.pending["s1"] = &PendingConfirmation{SessionID: "s1", ProductName: "Widget"}
	o, _ := newTestOrchestrator(WithPendingConfirmationStore(pending))

	reply, err := o.HandleTurn(context.Background(), "s1", "no")
	require.NoError(t, err)
	assert.Contains(t, reply, "Purchase cancelled")
}

func TestHandleTurnRecoversFromPanic(t *testing.T) {
	sm := fsm.New(fsm.WithSearchPipeline(&fakePipeline{err: errors.New("boom")}))
	mgr := session.NewManager(session.NewInMemorySessionStore(), nil)
	o := New(sm, mgr, "../contracts/purchase_item.yaml", WithIntentExtractor(&panicIntentExtractor{}))

	reply, err := o.HandleTurn(context.Background(), "s1", "hi")
	require.NoError(t, err)
	assert.Contains(t, reply, "error processing your request")
}

type panicIntentExtractor struct{}

func (panicIntentExtractor) Classify(ctx context.Context, sessionID, utterance string) (Intent, error) {
	panic("intentional test panic")
}
