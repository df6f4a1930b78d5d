package fsm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/itsneelabh/contractengine/pipeline"
)

const maxRefinementAttempts = 3

// handleStart implements the start state: product_query
// set -> search, else ask "What product are you looking for?".
func handleStart(ctx context.Context, sm *StateMachine, session *SessionContext, input string) (*StateTransition, error) {
	if isCancelRequest(input) {
		return NewCancelTransition(cancelSentence), nil
	}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return NewUserInputTransition("What product are you looking for?", nil), nil
	}

	_, _, _, enhancedQuery := ExtractCriteria(ctx, sm.AI, sm.Logger, trimmed)

	t := NewSuccessTransition(StateSearch, "", map[string]any{
		"product_query":  trimmed,
		"enhanced_query": enhancedQuery,
	})
	t.ToolsUsed = []string{"extract_initial_criteria"}
	return t, nil
}

// handleSearch implements the search state.
func handleSearch(ctx context.Context, sm *StateMachine, session *SessionContext, input string) (*StateTransition, error) {
	query := session.EnhancedQuery
	if query == "" {
		query = session.ProductQuery
	}

	started := time.Now()
	var out map[string]any
	var runErr error
	if sm.SearchPipeline != nil {
		out, runErr = sm.SearchPipeline.Run(ctx, map[string]any{
			"query":            query,
			"hard_constraints": session.Constraints,
		})
	}
	elapsed := time.Since(started).Seconds()

	if runErr != nil || sm.SearchPipeline == nil {
		sm.Health.ReportError("search_pipeline")
		t := NewUserInputTransition("We hit an error searching for products. Want to try again?", nil)
		t.PipelineName = "product_search"
		t.PipelineExecution = &PipelineExecutionRecord{
			Status: "error", ExecutionTime: elapsed,
			ResultSummary: map[string]any{"error": errString(runErr)},
			Timestamp:     sm.Clock.Now(),
		}
		return t, nil
	}
	sm.Health.ReportRecovery("search_pipeline")

	status, _ := out["status"].(string)
	items, _ := out["items"].([]pipeline.Product)

	record := &PipelineExecutionRecord{
		ExecutionTime: elapsed,
		Timestamp:     sm.Clock.Now(),
	}

	switch status {
	case "too_many_results":
		attributes, _ := out["attributes"].([]string)
		record.Status = "too_many_results"
		record.ResultSummary = map[string]any{"total_found": out["total_found"], "attributes": attributes}
		// Refinement is bounded: once the attempts are spent and the
		// result set is still too large, report failure instead of
		// sending the user around the refine loop again.
		if session.RefinementAttempts >= maxRefinementAttempts {
			t := NewErrorTransition(
				"We couldn't narrow the results down enough. Please start over with a more specific search.",
				fmt.Sprintf("refinement bound reached with %v matching products", out["total_found"]),
			)
			t.PipelineName = "product_search"
			t.PipelineExecution = record
			t.PipelineResult = out
			return t, nil
		}
		t := NewSuccessTransition(StateRefineConstraints, "",
			map[string]any{"extracted_attributes": attributes})
		t.PipelineName = "product_search"
		t.PipelineExecution = record
		t.PipelineResult = out
		return t, nil

	case "error":
		sm.Health.ReportError("product_search")
		record.Status = "error"
		record.ResultSummary = map[string]any{"error": out["error"]}
		t := NewUserInputTransition("We hit an error searching for products. Want to try again?", nil)
		t.PipelineName = "product_search"
		t.PipelineExecution = record
		t.PipelineResult = out
		return t, nil

	default:
		record.Status = "ok"
		record.ResultSummary = map[string]any{"items_count": len(items)}
		if len(items) == 0 {
			t := NewUserInputTransition("No products matched. Want to try a different search?", nil)
			t.PipelineName = "product_search"
			t.PipelineExecution = record
			t.PipelineResult = out
			return t, nil
		}
		// Moderate result sets go straight to selection; anything past
		// the contract's product_threshold collects preferences first so
		// the preference pipeline can cut the list down.
		next := StateRankAndSelect
		if len(items) > session.productThreshold() {
			next = StateAskClarification
		}
		t := NewSuccessTransition(next, "", map[string]any{
			"search_results": items,
			"top_products":   items,
		})
		t.ToolsUsed = []string{"product_search"}
		t.ContractUpdates = map[string]any{"search_products": true}
		t.PipelineName = "product_search"
		t.PipelineExecution = record
		t.PipelineResult = out
		return t, nil
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// handleRefineConstraints implements the refine_constraints state.
func handleRefineConstraints(ctx context.Context, sm *StateMachine, session *SessionContext, input string) (*StateTransition, error) {
	if isCancelRequest(input) {
		return NewCancelTransition(cancelSentence), nil
	}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return NewUserInputTransition(formatRefinementPrompt(session.ExtractedAttributes), nil), nil
	}

	fresh := parseConstraints(trimmed)
	merged := mergeConstraints(session.Constraints, fresh)

	attempts := session.RefinementAttempts + 1
	if attempts > maxRefinementAttempts {
		attempts = maxRefinementAttempts
	}

	// Past the refinement bound, proceed with whatever constraints
	// have accumulated so far rather than looping indefinitely.
	t := NewSuccessTransition(StateSearch, "", map[string]any{
		"constraints":         merged,
		"refinement_attempts": attempts,
	})
	t.ContractUpdates = map[string]any{"refine_constraints": true}
	return t, nil
}

// formatRefinementPrompt asks the user to narrow their search, listing
// up to 3 of the differentiating attributes the search pipeline
// surfaced.
func formatRefinementPrompt(attributes []string) string {
	if len(attributes) == 0 {
		return "That's a lot of matches. What constraints would you like to apply (price, brand, etc.)?"
	}
	shown := attributes
	if len(shown) > 3 {
		shown = shown[:3]
	}
	return "That's a lot of matches. Want to narrow it down by " + strings.Join(shown, ", ") + "?"
}
