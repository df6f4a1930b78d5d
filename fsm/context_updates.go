package fsm

import "github.com/itsneelabh/contractengine/pipeline"

// applyContextUpdate writes one key from a StateTransition's
// ContextUpdates onto session. Unknown keys are ignored rather than
// causing a panic — handlers are expected to only use the documented
// field names, but a typo here should never crash a user turn.
func applyContextUpdate(session *SessionContext, key string, value any) {
	switch key {
	case "product_query":
		if v, ok := value.(string); ok {
			session.ProductQuery = v
		}
	case "enhanced_query":
		if v, ok := value.(string); ok {
			session.EnhancedQuery = v
		}
	case "search_results":
		if v, ok := value.([]pipeline.Product); ok {
			session.SearchResults = v
		}
	case "extracted_attributes":
		if v, ok := value.([]string); ok {
			session.ExtractedAttributes = v
		}
	case "preferences":
		if v, ok := value.(map[string]string); ok {
			session.Preferences = v
		}
	case "constraints":
		if v, ok := value.([]pipeline.HardConstraint); ok {
			session.Constraints = v
		}
	case "refinement_attempts":
		if v, ok := value.(int); ok {
			session.RefinementAttempts = v
		}
	case "top_products":
		if v, ok := value.([]pipeline.Product); ok {
			session.TopProducts = v
		}
	case "product_recommendations":
		if v, ok := value.(map[string]any); ok {
			session.ProductRecommendations = v
		}
	case "selected_product":
		// Set once: the selection is immutable for the rest of an
		// active contract.
		if v, ok := value.(*pipeline.Product); ok && session.SelectedProduct == nil {
			session.SelectedProduct = v
		}
	case "confirmation_pending":
		if v, ok := value.(bool); ok {
			session.ConfirmationPending = v
		}
	}
}
