package fsm

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/itsneelabh/contractengine/pipeline"
)

// handleAskClarification implements the ask_clarification state. It
// always transitions on to
// wait_for_preferences, showing a clarifying prompt there.
func handleAskClarification(ctx context.Context, sm *StateMachine, session *SessionContext, input string) (*StateTransition, error) {
	return NewSuccessTransition(StateWaitForPreferences,
		"Tell me about any preferences you'd like considered (budget, brand, features).", nil), nil
}

// handleWaitForPreferences implements wait_for_preferences: input
// parsed -> match_preferences, recording preferences and constraints.
func handleWaitForPreferences(ctx context.Context, sm *StateMachine, session *SessionContext, input string) (*StateTransition, error) {
	if isCancelRequest(input) {
		return NewCancelTransition(cancelSentence), nil
	}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return NewUserInputTransition("Tell me about any preferences you'd like considered (budget, brand, features).", nil), nil
	}

	if relevant, _, _, _ := isResponseRelevant(ctx, sm.AI, sm.Logger, trimmed, "product preferences", session.ProductQuery); !relevant {
		return NewUserInputTransition("Let's stay focused on your purchase. What preferences should I consider (budget, brand, features)?", nil), nil
	}

	var priorContext string
	if sm.Memory != nil {
		if enhanced, err := sm.Memory.EnhancedContext(ctx, session.SessionID, session.SessionID, trimmed); err == nil {
			priorContext = enhanced.CurrentSummary
		} else if sm.Logger != nil {
			sm.Logger.WarnWithContext(ctx, "enhanced context lookup failed, proceeding without prior summary", map[string]interface{}{
				"session_id": session.SessionID,
				"error":      err.Error(),
			})
		}
	}

	prefs, constraints := analyzeUserPreferences(ctx, sm.AI, sm.Logger, trimmed, session.SearchResults, priorContext)
	merged := mergeConstraints(session.Constraints, constraints)

	t := NewSuccessTransition(StateMatchPreferences, "", map[string]any{
		"preferences": prefs,
		"constraints": merged,
	})
	t.ToolsUsed = []string{"analyze_user_preferences"}
	return t, nil
}

// handleMatchPreferences implements match_preferences: pipeline ranks
// >=1 -> confirm_purchase with a numbered list and recommendation;
// empty/error -> stay with a degradation message.
func handleMatchPreferences(ctx context.Context, sm *StateMachine, session *SessionContext, input string) (*StateTransition, error) {
	started := time.Now()
	var out map[string]any
	var runErr error
	if sm.PreferencePipeline != nil {
		out, runErr = sm.PreferencePipeline.Run(ctx, map[string]any{
			"items":       session.SearchResults,
			"constraints": session.Constraints,
			"preferences": preferencesAsMap(session.Preferences),
		})
	}
	elapsed := time.Since(started).Seconds()

	record := &PipelineExecutionRecord{ExecutionTime: elapsed, Timestamp: sm.Clock.Now()}

	if runErr != nil || sm.PreferencePipeline == nil {
		sm.Health.ReportError("preference_pipeline")
		record.Status = "error"
		record.ResultSummary = map[string]any{"error": errString(runErr)}

		// FSM-internal ranking fallback: rank by
		// (-rating, price) and proceed rather than dead-ending the turn.
		ranked := rankingFallback(session.SearchResults)
		if len(ranked) == 0 {
			t := NewUserInputTransition("We couldn't find preference-matched products right now. Want to try again?", nil)
			t.PipelineName = "preference_match"
			t.PipelineExecution = record
			return t, nil
		}
		rec := generateProductRecommendation(ctx, sm.AI, sm.Logger, ranked, session.Preferences, session.Constraints)
		t := presentRankedTransition(ranked, rec)
		t.ToolsUsed = []string{"fallback_ranker", "generate_product_recommendation"}
		t.PipelineName = "preference_match"
		t.PipelineExecution = record
		return t, nil
	}
	sm.Health.ReportRecovery("preference_pipeline")

	status, _ := out["status"].(string)
	ranked, _ := out["ranked_products"].([]pipeline.Product)
	record.ResultSummary = map[string]any{"items_count": len(ranked), "ranking_method": out["ranking_method"]}

	if status != "success" || len(ranked) == 0 {
		record.Status = "empty"
		t := NewUserInputTransition("None of the results matched your preferences. Want to adjust them?", nil)
		t.PipelineName = "preference_match"
		t.PipelineExecution = record
		t.PipelineResult = out
		return t, nil
	}

	record.Status = "ok"
	rec := generateProductRecommendation(ctx, sm.AI, sm.Logger, ranked, session.Preferences, session.Constraints)
	t := presentRankedTransition(ranked, rec)
	t.ToolsUsed = []string{"preference_match", "generate_product_recommendation"}
	t.PipelineName = "preference_match"
	t.PipelineExecution = record
	t.PipelineResult = out
	return t, nil
}

// presentRankedTransition advances to confirm_purchase while stopping
// the turn there: the numbered list plus recommendation must reach the
// user intact, not be replaced by the selection handler's own prompt in
// a tail-call.
func presentRankedTransition(ranked []pipeline.Product, rec map[string]any) *StateTransition {
	next := StateConfirmPurchase
	return &StateTransition{
		NextState:   &next,
		UserMessage: formatRecommendationMessage(ranked, rec),
		AskUser:     true,
		Status:      StatusWaitingForInput,
		ContextUpdates: map[string]any{
			"top_products":            ranked,
			"product_recommendations": rec,
		},
		ContractUpdates: map[string]any{"match_preferences": true},
	}
}

// handleFilterProducts implements the legacy filter_products path
// (done -> match_preferences).
func handleFilterProducts(ctx context.Context, sm *StateMachine, session *SessionContext, input string) (*StateTransition, error) {
	filtered := filterProducts(ctx, sm.AI, sm.Logger, session.SearchResults, session.Preferences, session.Constraints)
	t := NewSuccessTransition(StateMatchPreferences, "", map[string]any{
		"search_results": filtered,
	})
	t.ToolsUsed = []string{"filter_products_with_llm"}
	return t, nil
}

// handleCheckCompatibility implements the legacy check_compatibility
// path (done -> present_options).
func handleCheckCompatibility(ctx context.Context, sm *StateMachine, session *SessionContext, input string) (*StateTransition, error) {
	return NewSuccessTransition(StateRankAndSelect, "", map[string]any{
		"top_products": session.SearchResults,
	}), nil
}

func preferencesAsMap(prefs map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(prefs))
	for k, v := range prefs {
		out[k] = v
	}
	return out
}

func formatRecommendationMessage(ranked []pipeline.Product, rec map[string]any) string {
	var sb strings.Builder
	sb.WriteString("Here's what I found:\n")
	optionIndex := 1
	for i, p := range ranked {
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(p.Name)
		sb.WriteString("\n")
	}
	if r, ok := rec["recommendation"].(map[string]any); ok {
		if choice, ok := r["choice"].(string); ok && choice != "" {
			for i, p := range ranked {
				if p.Name == choice {
					optionIndex = i + 1
					break
				}
			}
			reasoning, _ := r["reasoning"].(string)
			sb.WriteString(fmt.Sprintf("My recommendation: Option %d (%s)", optionIndex, choice))
			if reasoning != "" {
				sb.WriteString(" — " + reasoning)
			}
		}
	}
	return sb.String()
}
