// Package fsm implements the Contract FSM: a per-session
// state machine that drives a multi-step purchase negotiation by
// invoking stateless pipelines and a tiered memory manager from
// per-state handlers, run to completion within a turn via a bounded
// tail-call loop.
package fsm

// State enumerates the Contract FSM's state set.
// present_options/rank_and_select and confirm_selection/confirm_purchase
// are aliases; this engine keeps both names reachable as synonyms but
// normalizes internally to one canonical name.
type State string

const (
	StateStart              State = "start"
	StateSearch             State = "search"
	StateRefineConstraints  State = "refine_constraints"
	StateAskClarification   State = "ask_clarification"
	StateWaitForPreferences State = "wait_for_preferences"
	StateMatchPreferences   State = "match_preferences"
	StateFilterProducts     State = "filter_products"
	StateCheckCompatibility State = "check_compatibility"
	StateRankAndSelect      State = "rank_and_select"
	StateConfirmSelection   State = "confirm_selection"
	StateConfirmOrder       State = "confirm_order"
	StateCompleted          State = "completed"
	StateCancelled          State = "cancelled"
	StateFailed             State = "failed"
	StateError              State = "error"
)

// presentOptions and confirmPurchase alias
// rank_and_select/confirm_selection; kept as named constants so
// handlers and templates can reference either name.
const (
	StatePresentOptions  State = StateRankAndSelect
	StateConfirmPurchase State = StateConfirmSelection
)

// TransitionStatus is the status recorded on a StateTransition.
type TransitionStatus string

const (
	StatusContinue        TransitionStatus = "continue"
	StatusWaitingForInput TransitionStatus = "waiting_for_input"
	StatusCompleted       TransitionStatus = "completed"
	StatusCancelled       TransitionStatus = "cancelled"
	StatusFailed          TransitionStatus = "failed"
)

// ContractStatus mirrors SessionContext.contract_status's enumeration.
type ContractStatus string

const (
	ContractActive    ContractStatus = "active"
	ContractCompleted ContractStatus = "completed"
	ContractCancelled ContractStatus = "cancelled"
	ContractFailed    ContractStatus = "failed"
	ContractError     ContractStatus = "error"
)

// maxHandlerHops bounds the run-to-completion tail-call loop within a
// single turn; exceeding it is a fatal bug and surfaces as
// StatusFailed/invalid_state.
const maxHandlerHops = 16
