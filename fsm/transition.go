package fsm

// StateTransition is the ephemeral value returned by every handler.
// StateMachine.apply is the sole site that turns it into mutations on
// a SessionContext.
type StateTransition struct {
	NextState       *State
	UserMessage     string
	AskUser         bool
	Status          TransitionStatus
	ContextUpdates  map[string]any
	ContractUpdates map[string]any
	ToolsUsed       []string
	ErrorMessage    string

	// PipelineName/PipelineExecution/PipelineResult, when PipelineName
	// is non-empty, tell apply() to append a PipelineExecutionRecord
	// and recompute that pipeline's rolling average execution time.
	// Handlers set these instead of writing to the session
	// directly, keeping apply() the sole mutation site.
	PipelineName      string
	PipelineExecution *PipelineExecutionRecord
	PipelineResult    map[string]any
}

// IsTerminal reports whether this transition ends the contract.
func (t *StateTransition) IsTerminal() bool {
	switch t.Status {
	case StatusCompleted, StatusCancelled, StatusFailed:
		return true
	default:
		return false
	}
}

// IsError reports whether this transition represents a failure.
func (t *StateTransition) IsError() bool {
	return t.Status == StatusFailed || t.ErrorMessage != ""
}

// RequiresUserInput reports whether this transition is a user-input
// barrier: the tail-call loop must stop and surface UserMessage rather
// than re-entering the FSM in the same turn.
func (t *StateTransition) RequiresUserInput() bool {
	return t.AskUser || t.Status == StatusWaitingForInput
}

// NewSuccessTransition advances to nextState with an optional message,
// continuing the turn.
func NewSuccessTransition(nextState State, message string, contextUpdates map[string]any) *StateTransition {
	return &StateTransition{
		NextState:      &nextState,
		UserMessage:    message,
		Status:         StatusContinue,
		ContextUpdates: contextUpdates,
	}
}

// NewErrorTransition forces StatusFailed.
func NewErrorTransition(message string, errorMessage string) *StateTransition {
	failed := StateFailed
	return &StateTransition{
		NextState:    &failed,
		UserMessage:  message,
		Status:       StatusFailed,
		ErrorMessage: errorMessage,
	}
}

// NewUserInputTransition stays in the current state and asks the user
// for more input.
func NewUserInputTransition(message string, contextUpdates map[string]any) *StateTransition {
	return &StateTransition{
		UserMessage:    message,
		AskUser:        true,
		Status:         StatusWaitingForInput,
		ContextUpdates: contextUpdates,
	}
}

// NewCompletionTransition ends the contract successfully.
func NewCompletionTransition(message string, contextUpdates map[string]any) *StateTransition {
	completed := StateCompleted
	return &StateTransition{
		NextState:      &completed,
		UserMessage:    message,
		Status:         StatusCompleted,
		ContextUpdates: contextUpdates,
	}
}

// NewCancelTransition ends the contract as cancelled.
func NewCancelTransition(message string) *StateTransition {
	cancelled := StateCancelled
	return &StateTransition{
		NextState:   &cancelled,
		UserMessage: message,
		Status:      StatusCancelled,
	}
}
