package fsm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/itsneelabh/contractengine/pipeline"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

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

type recordingHealth struct {
	errors    []string
	recovered []string
	degraded  bool
}

func (r *recordingHealth) ReportError(service string)    { r.errors = append(r.errors, service) }
func (r *recordingHealth) ReportRecovery(service string) { r.recovered = append(r.recovered, service) }
func (r *recordingHealth) Degraded() bool                { return r.degraded }

func sampleSearchItems() []pipeline.Product {
	return []pipeline.Product{
		{Name: "Item A", Price: 100.0, Rating: 4.0},
		{Name: "Item B", Price: 200.0, Rating: 4.5},
	}
}

func TestStartToSearchToRankAndSelectHappyPath(t *testing.T) {
	search := &fakePipeline{out: map[string]any{
		"status": "ok",
		"items":  sampleSearchItems(),
	}}
	sm := New(WithSearchPipeline(search), WithClock(fixedClock{time.Unix(0, 0)}))
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))

	transition, err := sm.Next(context.Background(), session, "graphics card under $300")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !transition.RequiresUserInput() {
		t.Fatalf("expected a user-input barrier after presenting options, got status=%v", transition.Status)
	}
	if session.CurrentState != StateRankAndSelect {
		t.Fatalf("expected state rank_and_select, got %v", session.CurrentState)
	}
	if len(session.TopProducts) != 2 {
		t.Fatalf("expected top products to be populated, got %d", len(session.TopProducts))
	}
	if len(session.StepLog) == 0 {
		t.Fatalf("expected step_log to record transitions")
	}
}

func TestStartWithEmptyInputAsksForProduct(t *testing.T) {
	sm := New()
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))
	transition, err := sm.Next(context.Background(), session, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !transition.AskUser {
		t.Fatalf("expected ask_user transition")
	}
	if session.CurrentState != StateStart {
		t.Fatalf("expected to remain in start, got %v", session.CurrentState)
	}
}

func TestSearchPipelineErrorRecordsHealthAndStaysForRetry(t *testing.T) {
	search := &fakePipeline{err: errors.New("adapter down")}
	health := &recordingHealth{}
	sm := New(WithSearchPipeline(search), WithHealthReporter(health))
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))
	session.CurrentState = StateSearch
	session.ProductQuery = "gpu"

	transition, err := sm.Next(context.Background(), session, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !transition.RequiresUserInput() {
		t.Fatalf("expected retry prompt on pipeline error")
	}
	if len(health.errors) != 1 || health.errors[0] != "search_pipeline" {
		t.Fatalf("expected health monitor to record search_pipeline error, got %v", health.errors)
	}
	if len(session.PipelineExecutions["product_search"]) != 1 {
		t.Fatalf("expected one recorded pipeline execution")
	}
}

func TestTooManyResultsRoutesToRefineConstraints(t *testing.T) {
	search := &fakePipeline{out: map[string]any{
		"status":      "too_many_results",
		"attributes":  []string{"brand", "price"},
		"total_found": 200,
	}}
	sm := New(WithSearchPipeline(search))
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))
	session.CurrentState = StateSearch

	transition, err := sm.Next(context.Background(), session, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.CurrentState != StateRefineConstraints {
		t.Fatalf("expected refine_constraints, got %v", session.CurrentState)
	}
	if !transition.RequiresUserInput() {
		t.Fatalf("expected a user-input barrier")
	}
}

func TestRefineConstraintsAccumulatesAndReturnsToSearch(t *testing.T) {
	search := &fakePipeline{out: map[string]any{"status": "ok", "items": sampleSearchItems()}}
	sm := New(WithSearchPipeline(search))
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))
	session.CurrentState = StateRefineConstraints
	session.Constraints = []pipeline.HardConstraint{{Type: "general", Operator: "contains", Value: "quiet"}}

	_, err := sm.Next(context.Background(), session, "under $250")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(session.Constraints) != 2 {
		t.Fatalf("expected constraints to accumulate, got %d", len(session.Constraints))
	}
	if session.RefinementAttempts != 1 {
		t.Fatalf("expected refinement_attempts to increment, got %d", session.RefinementAttempts)
	}
}

func TestTooManyResultsAfterRefinementBoundFails(t *testing.T) {
	search := &fakePipeline{out: map[string]any{
		"status":      "too_many_results",
		"attributes":  []string{"brand", "price"},
		"total_found": 200,
	}}
	sm := New(WithSearchPipeline(search))
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))
	session.CurrentState = StateSearch
	session.RefinementAttempts = 3

	transition, err := sm.Next(context.Background(), session, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transition.Status != StatusFailed || session.ContractStatus != ContractFailed {
		t.Fatalf("expected failure after refinement bound, got status=%v contract=%v", transition.Status, session.ContractStatus)
	}
	if session.RefinementAttempts != 3 {
		t.Fatalf("refinement_attempts must stay within bound, got %d", session.RefinementAttempts)
	}
}

func TestConfirmSelectionToConfirmOrderToCompleted(t *testing.T) {
	sm := New()
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))
	session.CurrentState = StateRankAndSelect
	session.TopProducts = sampleSearchItems()

	// First turn: show the list, wait for a pick.
	transition, err := sm.Next(context.Background(), session, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !transition.RequiresUserInput() {
		t.Fatalf("expected to ask for a selection")
	}

	// Second turn: pick item 2, tail-calls into confirm_order which
	// itself asks for final confirmation.
	transition, err = sm.Next(context.Background(), session, "2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.CurrentState != StateConfirmOrder {
		t.Fatalf("expected confirm_order, got %v", session.CurrentState)
	}
	if session.SelectedProduct == nil || session.SelectedProduct.Name != "Item B" {
		t.Fatalf("expected Item B selected, got %+v", session.SelectedProduct)
	}
	if !transition.RequiresUserInput() {
		t.Fatalf("expected confirm_order to ask for final confirmation")
	}

	// Third turn: confirm.
	transition, err = sm.Next(context.Background(), session, "yes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !transition.IsTerminal() || session.ContractStatus != ContractCompleted {
		t.Fatalf("expected contract completed, got status=%v contract=%v", transition.Status, session.ContractStatus)
	}
}

func TestCancelAtConfirmSelectionCancelsContract(t *testing.T) {
	sm := New()
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))
	session.CurrentState = StateConfirmSelection
	session.TopProducts = sampleSearchItems()

	transition, err := sm.Next(context.Background(), session, "cancel this please")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transition.Status != StatusCancelled || session.ContractStatus != ContractCancelled {
		t.Fatalf("expected cancelled, got status=%v contract=%v", transition.Status, session.ContractStatus)
	}
}

func TestConfirmOrderNegativeCancels(t *testing.T) {
	sm := New()
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))
	session.CurrentState = StateConfirmOrder
	selected := pipeline.Product{Name: "Item A", Price: 100.0}
	session.SelectedProduct = &selected

	transition, err := sm.Next(context.Background(), session, "no")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transition.Status != StatusCancelled {
		t.Fatalf("expected cancelled status, got %v", transition.Status)
	}
}

func TestInvalidStateSurfacesFailed(t *testing.T) {
	sm := New()
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))
	session.CurrentState = State("nonexistent_state")

	transition, err := sm.Next(context.Background(), session, "anything")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transition.Status != StatusFailed {
		t.Fatalf("expected failed status for invalid state, got %v", transition.Status)
	}
}

func TestSearchBeyondProductThresholdCollectsPreferencesFirst(t *testing.T) {
	items := make([]pipeline.Product, 12)
	for i := range items {
		items[i] = pipeline.Product{Name: "Item", Price: 100.0, Rating: 4.0}
	}
	search := &fakePipeline{out: map[string]any{"status": "ok", "items": items}}
	preference := &fakePipeline{out: map[string]any{
		"status":          "success",
		"ranked_products": items[:3],
		"scores":          []float64{0.9, 0.8, 0.7},
		"ranking_method":  "pipeline",
	}}
	sm := New(WithSearchPipeline(search), WithPreferencePipeline(preference))
	tpl := &ContractTemplate{
		ContractType: "purchase_item",
		Parameters:   map[string]interface{}{"product_threshold": 10},
		Subtasks:     []Subtask{{Name: "search_products"}, {Name: "match_preferences"}, {Name: "confirm_order"}},
	}
	session := NewSessionContextFromTemplate("s1", "tpl.yaml", tpl, time.Unix(0, 0))

	// First turn: search exceeds the threshold, so the FSM detours
	// through ask_clarification and waits for preferences.
	transition, err := sm.Next(context.Background(), session, "washing machine")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.CurrentState != StateWaitForPreferences {
		t.Fatalf("expected wait_for_preferences, got %v", session.CurrentState)
	}
	if !transition.RequiresUserInput() {
		t.Fatalf("expected a user-input barrier collecting preferences")
	}
	if !session.SubtaskCompleted("search_products") {
		t.Fatalf("expected search_products subtask completed")
	}

	// Second turn: preferences parsed, pipeline ranks, recommendation
	// shown at the confirm_purchase barrier.
	transition, err = sm.Next(context.Background(), session, "energy efficient, under 500")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if session.CurrentState != StateConfirmPurchase {
		t.Fatalf("expected confirm_purchase, got %v", session.CurrentState)
	}
	if !strings.Contains(transition.UserMessage, "1. ") {
		t.Fatalf("expected a numbered list, got %q", transition.UserMessage)
	}
	if !session.SubtaskCompleted("match_preferences") {
		t.Fatalf("expected match_preferences subtask completed")
	}
}

func TestCompletionRecordsConfirmOrderSubtask(t *testing.T) {
	sm := New()
	tpl := &ContractTemplate{
		ContractType: "purchase_item",
		Subtasks:     []Subtask{{Name: "rank_and_select"}, {Name: "confirm_order"}},
	}
	session := NewSessionContextFromTemplate("s1", "tpl.yaml", tpl, time.Unix(0, 0))
	session.CurrentState = StateRankAndSelect
	session.TopProducts = sampleSearchItems()

	if _, err := sm.Next(context.Background(), session, "1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !session.SubtaskCompleted("rank_and_select") {
		t.Fatalf("expected rank_and_select subtask completed after selection")
	}

	transition, err := sm.Next(context.Background(), session, "yes")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transition.Status != StatusCompleted {
		t.Fatalf("expected completion, got %v", transition.Status)
	}
	if !session.SubtaskCompleted("confirm_order") {
		t.Fatalf("expected confirm_order subtask completed")
	}
	if session.SelectedProduct == nil {
		t.Fatalf("expected a selected product on completion")
	}
}

func TestDegradedModeAppendsNoticeToReplies(t *testing.T) {
	search := &fakePipeline{out: map[string]any{"status": "ok", "items": sampleSearchItems()}}
	health := &recordingHealth{degraded: true}
	sm := New(WithSearchPipeline(search), WithHealthReporter(health))
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))

	transition, err := sm.Next(context.Background(), session, "graphics card")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(transition.UserMessage, "temporarily unavailable") {
		t.Fatalf("expected degraded-mode notice in reply, got %q", transition.UserMessage)
	}
}

func TestCancellationReplyOmitsDegradedNotice(t *testing.T) {
	health := &recordingHealth{degraded: true}
	sm := New(WithHealthReporter(health))
	session := NewSessionContext("s1", "tpl.yaml", time.Unix(0, 0))
	session.CurrentState = StateConfirmOrder

	transition, err := sm.Next(context.Background(), session, "cancel")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transition.UserMessage != cancelSentence {
		t.Fatalf("expected the exact cancellation sentence, got %q", transition.UserMessage)
	}
}
