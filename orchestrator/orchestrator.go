package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/fsm"
	"github.com/itsneelabh/contractengine/session"
	"github.com/itsneelabh/contractengine/telemetry"
)

// Orchestrator is the dispatch glue between the front-end and the
// Contract FSM. A single
// Orchestrator serves every session: the fsm.StateMachine it holds is
// stateless glue around injected collaborators, and all per-session
// mutable state lives in a fsm.SessionContext managed through
// session.Manager. Per-session operations are serialized via a
// per-session mutex: contention across sessions is never
// shared.
type Orchestrator struct {
	sm                  *fsm.StateMachine
	sessions            *session.Manager
	contractTemplateRef string

	intentExtractor IntentExtractor
	toolHandler     ToolHandler
	ragHandler      RAGHandler
	chatHandler     ChatHandler
	pending         PendingConfirmationStore
	artifacts       ArtifactWriter
	chatHistory     ChatHistoryStore
	logger          core.Logger

	templateOnce sync.Once
	template     *fsm.ContractTemplate
	templateErr  error

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

func WithIntentExtractor(e IntentExtractor) Option {
	return func(o *Orchestrator) { o.intentExtractor = e }
}
func WithToolHandler(h ToolHandler) Option { return func(o *Orchestrator) { o.toolHandler = h } }
func WithRAGHandler(h RAGHandler) Option   { return func(o *Orchestrator) { o.ragHandler = h } }
func WithChatHandler(h ChatHandler) Option { return func(o *Orchestrator) { o.chatHandler = h } }
func WithPendingConfirmationStore(s PendingConfirmationStore) Option {
	return func(o *Orchestrator) { o.pending = s }
}
func WithArtifactWriter(w ArtifactWriter) Option { return func(o *Orchestrator) { o.artifacts = w } }
func WithChatHistoryStore(s ChatHistoryStore) Option {
	return func(o *Orchestrator) { o.chatHistory = s }
}
func WithLogger(l core.Logger) Option { return func(o *Orchestrator) { o.logger = l } }

// New constructs an Orchestrator wired to sm (the shared FSM glue) and
// sessions (the two-level persistence layer), loading fresh contracts
// from contractTemplateRef.
func New(sm *fsm.StateMachine, sessions *session.Manager, contractTemplateRef string, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sm:                  sm,
		sessions:            sessions,
		contractTemplateRef: contractTemplateRef,
		logger:              &core.NoOpLogger{},
		locks:               make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) lockFor(sessionID string) *sync.Mutex {
	o.locksMu.Lock()
	defer o.locksMu.Unlock()
	l, ok := o.locks[sessionID]
	if !ok {
		l = &sync.Mutex{}
		o.locks[sessionID] = l
	}
	return l
}

// HandleTurn drives one user turn end to end: pending confirmation,
// then resident FSM, then intent classification.
// Any panic surfacing from a handler or collaborator is treated like the
// taxonomy's residual-exception case: the resident context is cleared
// and a generic error reply is returned rather than propagating the
// panic to the caller.
func (o *Orchestrator) HandleTurn(ctx context.Context, sessionID, utterance string) (reply string, err error) {
	lock := o.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	// Span per turn; the session id rides as baggage so every log line
	// and metric emitted below correlates without threading it by hand.
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.turn")
	defer span.End()
	ctx = telemetry.WithBaggage(ctx, "session_id", sessionID)

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("panic handling turn, clearing resident session", map[string]interface{}{
				"session_id": sessionID, "panic": fmt.Sprintf("%v", r),
			})
			_ = o.sessions.Forget(ctx, sessionID)
			reply = "there was an error processing your request."
			err = nil
		}
	}()

	if o.chatHistory != nil {
		if herr := o.chatHistory.AppendUserMessage(ctx, sessionID, utterance); herr != nil {
			o.logger.Warn("chat history append failed", map[string]interface{}{"session_id": sessionID, "error": herr.Error()})
		}
	}

	reply, err = o.route(ctx, sessionID, utterance)
	if err != nil {
		o.logger.Error("turn handling failed, clearing resident session", map[string]interface{}{
			"session_id": sessionID, "error": err.Error(),
		})
		_ = o.sessions.Forget(ctx, sessionID)
		reply = "there was an error processing your request."
		err = nil
	}

	if o.chatHistory != nil && reply != "" {
		if herr := o.chatHistory.AppendAssistantMessage(ctx, sessionID, reply); herr != nil {
			o.logger.Warn("chat history append failed", map[string]interface{}{"session_id": sessionID, "error": herr.Error()})
		}
	}

	return reply, nil
}

func (o *Orchestrator) route(ctx context.Context, sessionID, utterance string) (string, error) {
	// Step 2: a pending confirmation outside the FSM always wins.
	if o.pending != nil {
		if pc, err := o.pending.Get(ctx, sessionID); err == nil && pc != nil {
			return o.resolvePendingConfirmation(ctx, sessionID, pc, utterance)
		}
	}

	// Step 3: a resident FSM (i.e. a persisted, non-terminal
	// SessionContext) advances with this turn's input.
	if sessionCtx, err := o.sessions.LoadContext(ctx, sessionID); err == nil && sessionCtx != nil {
		return o.advance(ctx, sessionCtx, utterance)
	}

	// Step 4: classify intent and dispatch.
	if o.intentExtractor == nil {
		return "", fmt.Errorf("orchestrator: no intent extractor configured")
	}
	intent, err := o.intentExtractor.Classify(ctx, sessionID, utterance)
	if err != nil {
		return "", err
	}

	switch intent {
	case IntentContract:
		return o.startContract(ctx, sessionID, utterance)
	case IntentTool:
		if o.toolHandler == nil {
			return "", fmt.Errorf("orchestrator: no tool handler configured")
		}
		return o.toolHandler.HandleTool(ctx, sessionID, utterance)
	case IntentRAG:
		if o.ragHandler == nil {
			return "", fmt.Errorf("orchestrator: no rag handler configured")
		}
		return o.ragHandler.HandleRAG(ctx, sessionID, utterance)
	default:
		if o.chatHandler == nil {
			return "", fmt.Errorf("orchestrator: no chat handler configured")
		}
		return o.chatHandler.HandleChat(ctx, sessionID, utterance)
	}
}

// loadTemplate parses the contract template once and reuses it for
// every subsequent contract on this Orchestrator.
func (o *Orchestrator) loadTemplate() (*fsm.ContractTemplate, error) {
	o.templateOnce.Do(func() {
		o.template, o.templateErr = fsm.LoadContractTemplate(o.contractTemplateRef)
	})
	return o.template, o.templateErr
}

func (o *Orchestrator) startContract(ctx context.Context, sessionID, utterance string) (string, error) {
	tpl, err := o.loadTemplate()
	if err != nil {
		// A broken template is fatal for the contract: no resident
		// session is created and the user gets the generic error reply.
		o.logger.Error("contract template load failed", map[string]interface{}{
			"template_ref": o.contractTemplateRef, "error": err.Error(),
		})
		return "There was an error processing your request.", nil
	}
	sessionCtx := fsm.NewSessionContextFromTemplate(sessionID, o.contractTemplateRef, tpl, time.Now())
	return o.advance(ctx, sessionCtx, utterance)
}

// advance runs sm.Next on sessionCtx and persists the result, clearing
// the resident context on a terminal transition.
func (o *Orchestrator) advance(ctx context.Context, sessionCtx *fsm.SessionContext, utterance string) (string, error) {
	transition, err := o.sm.Next(ctx, sessionCtx, utterance)
	if err != nil {
		return "", err
	}

	if transition.IsTerminal() {
		if o.artifacts != nil && transition.Status == fsm.StatusCompleted {
			if werr := o.artifacts.WriteArtifact(ctx, "contracts", sessionCtx.SessionID, contractArtifactPayload(sessionCtx)); werr != nil {
				o.logger.Warn("artifact write failed", map[string]interface{}{
					"session_id": sessionCtx.SessionID, "error": werr.Error(),
				})
			}
		}
		if ferr := o.sessions.Forget(ctx, sessionCtx.SessionID); ferr != nil {
			o.logger.Warn("forget resident session failed", map[string]interface{}{
				"session_id": sessionCtx.SessionID, "error": ferr.Error(),
			})
		}
		return transition.UserMessage, nil
	}

	pipelineMeta := pipelineMetadataFrom(transition)
	if serr := o.sessions.SaveSessionContext(ctx, sessionCtx, pipelineMeta...); serr != nil {
		return "", serr
	}
	return transition.UserMessage, nil
}

func pipelineMetadataFrom(t *fsm.StateTransition) []session.PipelineMetadata {
	if t.PipelineName == "" {
		return nil
	}
	return []session.PipelineMetadata{{
		PipelineName: t.PipelineName,
		Result:       t.PipelineResult,
	}}
}

func contractArtifactPayload(sessionCtx *fsm.SessionContext) map[string]any {
	return map[string]any{
		// Sessions emit one artifact per completed contract today, but
		// the audit trail keys on artifact_id so replays or future
		// multi-artifact sessions never collide.
		"artifact_id":      uuid.NewString(),
		"artifact_type":    "contracts",
		"session_id":       sessionCtx.SessionID,
		"timestamp":        time.Now().Format(time.RFC3339),
		"contract_status":  sessionCtx.ContractStatus,
		"selected_product": sessionCtx.SelectedProduct,
		"step_log":         sessionCtx.StepLog,
		"retention_policy": "7_years",
	}
}

func (o *Orchestrator) resolvePendingConfirmation(ctx context.Context, sessionID string, pc *PendingConfirmation, utterance string) (string, error) {
	switch parseConfirmationAnswer(utterance) {
	case AnswerYes:
		if o.artifacts != nil {
			payload := map[string]any{
				"artifact_type":    "contracts",
				"session_id":       sessionID,
				"timestamp":        time.Now().Format(time.RFC3339),
				"product":          pc.ProductName,
				"retention_policy": "7_years",
			}
			if werr := o.artifacts.WriteArtifact(ctx, "contracts", sessionID, payload); werr != nil {
				o.logger.Warn("artifact write failed", map[string]interface{}{"session_id": sessionID, "error": werr.Error()})
			}
		}
		if o.pending != nil {
			_ = o.pending.Clear(ctx, sessionID)
		}
		return "Order confirmed. Thanks for your purchase!", nil
	case AnswerNo:
		if o.pending != nil {
			_ = o.pending.Clear(ctx, sessionID)
		}
		return "Purchase cancelled. Is there anything else I can help you with?", nil
	default:
		return fmt.Sprintf("Should I go ahead and confirm %s? (yes/no)", pc.ProductName), nil
	}
}

var confirmationYes = map[string]bool{"yes": true, "y": true, "yeah": true, "yep": true, "confirm": true, "sure": true}
var confirmationNo = map[string]bool{"no": true, "n": true, "nope": true, "nah": true, "cancel": true}

func parseConfirmationAnswer(input string) ConfirmationAnswer {
	lower := normalizeConfirmation(input)
	if confirmationYes[lower] {
		return AnswerYes
	}
	if confirmationNo[lower] {
		return AnswerNo
	}
	return AnswerUnknown
}

func normalizeConfirmation(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		if r == ' ' || r == '\t' || r == '\n' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}
