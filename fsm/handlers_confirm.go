package fsm

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/itsneelabh/contractengine/pipeline"
)

// handleConfirmSelection implements both present_options/rank_and_select
// (display) and confirm_selection/confirm_purchase (digit parsing).
// The transition table names them as separate states connected by a
// "user provides input" edge, but that edge carries no transformation of
// its own — the display state simply waits, and the parsing state acts
// on whatever the user typed. This engine merges them into one handler
// registered under both state names (see statemachine.go's handler
// table) rather than threading a no-op intermediate state through the
// tail-call loop.
func handleConfirmSelection(ctx context.Context, sm *StateMachine, session *SessionContext, input string) (*StateTransition, error) {
	if isCancelRequest(input) {
		return NewCancelTransition(cancelSentence), nil
	}

	items := session.TopProducts
	if len(items) == 0 {
		items = session.SearchResults
	}

	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return NewUserInputTransition(formatSelectionPrompt(items), nil), nil
	}

	idx, ok := parseSelectionIndex(trimmed, len(items))
	if !ok {
		return NewUserInputTransition(
			fmt.Sprintf("Please choose a number between 1 and %d.", len(items)), nil), nil
	}

	selected := items[idx]
	t := NewSuccessTransition(StateConfirmOrder, "", map[string]any{
		"selected_product":     &selected,
		"confirmation_pending": true,
	})
	t.ContractUpdates = map[string]any{"rank_and_select": true}
	return t, nil
}

func formatSelectionPrompt(items []pipeline.Product) string {
	var sb strings.Builder
	sb.WriteString("Which one would you like?\n")
	for i, p := range items {
		sb.WriteString(strconv.Itoa(i + 1))
		sb.WriteString(". ")
		sb.WriteString(p.Name)
		sb.WriteString("\n")
	}
	return sb.String()
}

// parseSelectionIndex accepts a 1-based digit or the literal "yes" when
// there is exactly one item to confirm.
func parseSelectionIndex(input string, n int) (int, bool) {
	lower := strings.ToLower(strings.TrimSpace(input))
	if lower == "yes" && n == 1 {
		return 0, true
	}
	num, err := strconv.Atoi(lower)
	if err != nil {
		return 0, false
	}
	if num < 1 || num > n {
		return 0, false
	}
	return num - 1, true
}

var affirmativeWords = map[string]bool{"yes": true, "y": true, "yeah": true, "yep": true, "confirm": true, "sure": true}
var negativeWords = map[string]bool{"no": true, "n": true, "nope": true, "nah": true}

// handleConfirmOrder implements confirm_order.
func handleConfirmOrder(ctx context.Context, sm *StateMachine, session *SessionContext, input string) (*StateTransition, error) {
	if isCancelRequest(input) {
		return NewCancelTransition(cancelSentence), nil
	}

	trimmed := strings.ToLower(strings.TrimSpace(input))
	if trimmed == "" {
		return NewUserInputTransition(formatConfirmOrderPrompt(session.SelectedProduct), nil), nil
	}

	if affirmativeWords[trimmed] {
		t := NewCompletionTransition("Order confirmed. Thanks for your purchase!", map[string]any{
			"confirmation_pending": false,
		})
		t.ContractUpdates = map[string]any{"confirm_order": true}
		return t, nil
	}
	if negativeWords[trimmed] {
		return NewCancelTransition(cancelSentence), nil
	}

	return NewUserInputTransition("Please answer yes or no.", nil), nil
}

func formatConfirmOrderPrompt(p *pipeline.Product) string {
	if p == nil {
		return "Confirm this order? (yes/no)"
	}
	return fmt.Sprintf("Confirm purchase of %s for %v? (yes/no)", p.Name, p.Price)
}
