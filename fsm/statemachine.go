package fsm

import (
	"context"
	"fmt"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/memory"
)

// Handler implements one state's logic. Handlers are pure with respect
// to external I/O through the StateMachine's injected collaborators and
// must not mutate session directly: they return a
// StateTransition for StateMachine.apply to commit.
type Handler func(ctx context.Context, sm *StateMachine, session *SessionContext, input string) (*StateTransition, error)

// StateMachine dispatches to the handler for session.CurrentState and
// applies the returned StateTransition, tail-calling into the next
// handler within the same turn until a user-input barrier or terminal
// state is reached.
type StateMachine struct {
	handlers map[State]Handler

	SearchPipeline     PipelineRunner
	PreferencePipeline PipelineRunner
	Memory             MemoryManager
	Health             HealthReporter
	Clock              Clock
	AI                 core.AIClient
	Logger             core.Logger
}

// Option configures a StateMachine at construction time.
type Option func(*StateMachine)

func WithSearchPipeline(p PipelineRunner) Option {
	return func(sm *StateMachine) { sm.SearchPipeline = p }
}
func WithPreferencePipeline(p PipelineRunner) Option {
	return func(sm *StateMachine) { sm.PreferencePipeline = p }
}
func WithMemoryManager(m MemoryManager) Option   { return func(sm *StateMachine) { sm.Memory = m } }
func WithHealthReporter(h HealthReporter) Option { return func(sm *StateMachine) { sm.Health = h } }
func WithClock(c Clock) Option                   { return func(sm *StateMachine) { sm.Clock = c } }
func WithAIClient(ai core.AIClient) Option       { return func(sm *StateMachine) { sm.AI = ai } }
func WithLogger(l core.Logger) Option            { return func(sm *StateMachine) { sm.Logger = l } }

// New constructs a StateMachine with the default handler table.
func New(opts ...Option) *StateMachine {
	sm := &StateMachine{
		Health: noopHealthReporter{},
		Clock:  SystemClock{},
		Logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(sm)
	}
	sm.handlers = defaultHandlers()
	return sm
}

func defaultHandlers() map[State]Handler {
	return map[State]Handler{
		StateStart:              handleStart,
		StateSearch:             handleSearch,
		StateRefineConstraints:  handleRefineConstraints,
		StateAskClarification:   handleAskClarification,
		StateWaitForPreferences: handleWaitForPreferences,
		StateMatchPreferences:   handleMatchPreferences,
		StateFilterProducts:     handleFilterProducts,
		StateCheckCompatibility: handleCheckCompatibility,
		StateRankAndSelect:      handleConfirmSelection, // present_options alias
		StateConfirmSelection:   handleConfirmSelection,
		StateConfirmOrder:       handleConfirmOrder,
	}
}

// Next drives one user turn: it dispatches to the handler for
// session.CurrentState, applies the result, and tail-calls into the
// next handler until a user-input barrier, a terminal status, or
// maxHandlerHops is reached.
func (sm *StateMachine) Next(ctx context.Context, session *SessionContext, input string) (*StateTransition, error) {
	session.mu.Lock()
	defer session.mu.Unlock()

	sm.bufferMessage(ctx, session.SessionID, memory.RoleUser, input)

	// finish commits t and buffers the assistant-facing reply before
	// returning, so every exit from the turn (success, user-input
	// barrier, or error) leaves the same record in memory that the user
	// actually saw. While the system runs degraded, the reply carries a
	// single notice at the message boundary.
	finish := func(t *StateTransition) (*StateTransition, error) {
		if t.UserMessage != "" && !t.IsTerminal() && sm.Health.Degraded() {
			t.UserMessage += "\n" + degradedModeNotice
		}
		applied := sm.applyLocked(session, t)
		sm.bufferMessage(ctx, session.SessionID, memory.RoleAssistant, applied.UserMessage)
		return applied, nil
	}

	current := input
	for hop := 0; hop < maxHandlerHops; hop++ {
		handler, ok := sm.handlers[session.CurrentState]
		if !ok {
			return finish(NewErrorTransition(
				"Something went wrong processing your request.",
				fmt.Sprintf("invalid_state: no handler for state %q", session.CurrentState),
			))
		}

		transition, err := handler(ctx, sm, session, current)
		if err != nil {
			return finish(NewErrorTransition(
				"Something went wrong processing your request.",
				err.Error(),
			))
		}

		if transition.IsTerminal() || transition.RequiresUserInput() || transition.NextState == nil {
			return finish(transition)
		}

		sm.applyLocked(session, transition)

		// Tail-call: re-enter the FSM on the new state within the same
		// turn. Only the first hop consumes user input; subsequent hops
		// run with no fresh input since the state already advanced.
		current = ""
	}

	return finish(NewErrorTransition(
		"Something went wrong processing your request.",
		fmt.Sprintf("invalid_state: exceeded %d handler hops in one turn", maxHandlerHops),
	))
}

// bufferMessage appends content to the session's ephemeral memory buffer
// when a MemoryManager is configured. Buffering failures are logged, not
// propagated: the memory tiers are a best-effort conversational
// aid, not part of the FSM's correctness invariants, so a Redis hiccup
// must not fail the turn.
func (sm *StateMachine) bufferMessage(ctx context.Context, sessionID, role, content string) {
	if sm.Memory == nil || content == "" {
		return
	}
	if err := sm.Memory.AddMessage(ctx, sessionID, memory.Message{
		Role:      role,
		Content:   content,
		Timestamp: sm.Clock.Now(),
	}); err != nil {
		sm.Logger.Error("memory buffer write failed", map[string]interface{}{
			"session_id": sessionID,
			"role":       role,
			"error":      err.Error(),
		})
	}
}

// applyLocked is the sole mutation site for SessionContext. Caller
// must hold session.mu.
func (sm *StateMachine) applyLocked(session *SessionContext, t *StateTransition) *StateTransition {
	from := session.CurrentState

	for k, v := range t.ContextUpdates {
		applyContextUpdate(session, k, v)
	}

	// ContractUpdates carry subtask completions keyed by subtask name;
	// a falsy value leaves the subtask untouched.
	for name, v := range t.ContractUpdates {
		if done, ok := v.(bool); ok && done {
			session.completeSubtask(name)
		}
	}

	session.ToolsUsed = append(session.ToolsUsed, t.ToolsUsed...)

	if t.PipelineName != "" && t.PipelineExecution != nil {
		session.recordPipelineExecution(t.PipelineName, *t.PipelineExecution, t.PipelineResult)
	}

	to := from
	if t.NextState != nil {
		to = *t.NextState
		session.CurrentState = to
	}
	session.recordTransition(from, to)
	if registry := core.GetGlobalMetricsRegistry(); registry != nil {
		registry.Counter("fsm.transitions", "from", string(from), "to", string(to))
	}

	switch t.Status {
	case StatusCompleted:
		session.ContractStatus = ContractCompleted
	case StatusCancelled:
		session.ContractStatus = ContractCancelled
	case StatusFailed:
		session.ContractStatus = ContractFailed
	}

	session.UpdatedAt = sm.Clock.Now()
	return t
}
