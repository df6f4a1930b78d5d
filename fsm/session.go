package fsm

import (
	"sync"
	"time"

	"github.com/itsneelabh/contractengine/pipeline"
)

// PipelineExecutionRecord is one entry in
// SessionContext.PipelineExecutions[pipelineName].
type PipelineExecutionRecord struct {
	Status        string         `json:"status"`
	ExecutionTime float64        `json:"execution_time"`
	ResultSummary map[string]any `json:"result_summary"`
	Timestamp     time.Time      `json:"timestamp"`
}

// SessionContext is the single per-session root aggregate.
// It is mutated exclusively by StateMachine.apply; handlers never write
// to it directly.
type SessionContext struct {
	SessionID           string   `json:"session_id"`
	ContractTemplateRef string   `json:"contract_template_ref"`
	ContractType        string   `json:"contract_type,omitempty"`
	CurrentState        State    `json:"current_state"`
	StepLog             []string `json:"step_log"`

	Subtasks           []Subtask      `json:"subtasks,omitempty"`
	ContractParameters map[string]any `json:"contract_parameters,omitempty"`

	ProductQuery  string `json:"product_query"`
	EnhancedQuery string `json:"enhanced_query"`

	SearchResults       []pipeline.Product        `json:"search_results"`
	ExtractedAttributes []string                  `json:"extracted_attributes"`
	Preferences         map[string]string         `json:"preferences"`
	Constraints         []pipeline.HardConstraint `json:"constraints"`
	RefinementAttempts  int                       `json:"refinement_attempts"`

	TopProducts            []pipeline.Product `json:"top_products"`
	ProductRecommendations map[string]any     `json:"product_recommendations"`
	SelectedProduct        *pipeline.Product  `json:"selected_product"`

	ContractStatus      ContractStatus `json:"contract_status"`
	ConfirmationPending bool           `json:"confirmation_pending"`
	ToolsUsed           []string       `json:"tools_used"`

	PipelineExecutions         map[string][]PipelineExecutionRecord `json:"pipeline_executions"`
	LastPipelineResults        map[string]map[string]any            `json:"last_pipeline_results"`
	PipelinePerformanceMetrics map[string]float64                   `json:"pipeline_performance_metrics"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	mu sync.Mutex
}

// NewSessionContext constructs a fresh SessionContext for a new
// contract.
func NewSessionContext(sessionID, contractTemplateRef string, now time.Time) *SessionContext {
	return &SessionContext{
		SessionID:                  sessionID,
		ContractTemplateRef:        contractTemplateRef,
		CurrentState:               StateStart,
		StepLog:                    []string{},
		Preferences:                make(map[string]string),
		ToolsUsed:                  []string{},
		PipelineExecutions:         make(map[string][]PipelineExecutionRecord),
		LastPipelineResults:        make(map[string]map[string]any),
		PipelinePerformanceMetrics: make(map[string]float64),
		ContractStatus:             ContractActive,
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
}

// NewSessionContextFromTemplate constructs a SessionContext bound to an
// already-loaded contract template, copying the template's subtasks and
// parameters so handlers can consult them without re-reading the file.
func NewSessionContextFromTemplate(sessionID, contractTemplateRef string, tpl *ContractTemplate, now time.Time) *SessionContext {
	c := NewSessionContext(sessionID, contractTemplateRef, now)
	if tpl == nil {
		return c
	}
	c.ContractType = tpl.ContractType
	c.Subtasks = append([]Subtask{}, tpl.Subtasks...)
	if len(tpl.Parameters) > 0 {
		c.ContractParameters = make(map[string]any, len(tpl.Parameters))
		for k, v := range tpl.Parameters {
			c.ContractParameters[k] = v
		}
	}
	return c
}

// Clone returns a field-wise copy of the context with its own lock,
// suitable for caching a snapshot. Slice and map fields are shared with
// the original; callers treat snapshots as read-only.
func (c *SessionContext) Clone() *SessionContext {
	return &SessionContext{
		SessionID:                  c.SessionID,
		ContractTemplateRef:        c.ContractTemplateRef,
		ContractType:               c.ContractType,
		CurrentState:               c.CurrentState,
		StepLog:                    c.StepLog,
		Subtasks:                   c.Subtasks,
		ContractParameters:         c.ContractParameters,
		ProductQuery:               c.ProductQuery,
		EnhancedQuery:              c.EnhancedQuery,
		SearchResults:              c.SearchResults,
		ExtractedAttributes:        c.ExtractedAttributes,
		Preferences:                c.Preferences,
		Constraints:                c.Constraints,
		RefinementAttempts:         c.RefinementAttempts,
		TopProducts:                c.TopProducts,
		ProductRecommendations:     c.ProductRecommendations,
		SelectedProduct:            c.SelectedProduct,
		ContractStatus:             c.ContractStatus,
		ConfirmationPending:        c.ConfirmationPending,
		ToolsUsed:                  c.ToolsUsed,
		PipelineExecutions:         c.PipelineExecutions,
		LastPipelineResults:        c.LastPipelineResults,
		PipelinePerformanceMetrics: c.PipelinePerformanceMetrics,
		CreatedAt:                  c.CreatedAt,
		UpdatedAt:                  c.UpdatedAt,
	}
}

// productThreshold reads the contract's product_threshold parameter,
// defaulting to 10. Result sets larger than this go through the
// preference-collection flow before ranking.
func (c *SessionContext) productThreshold() int {
	v, ok := c.ContractParameters["product_threshold"]
	if !ok {
		return 10
	}
	switch n := v.(type) {
	case int:
		if n > 0 {
			return n
		}
	case float64:
		if n > 0 {
			return int(n)
		}
	}
	return 10
}

// completeSubtask marks the named subtask completed. Unknown names are
// ignored: a template may declare fewer milestones than the FSM can
// report. Must be called with mu held.
func (c *SessionContext) completeSubtask(name string) {
	for i := range c.Subtasks {
		if c.Subtasks[i].Name == name {
			c.Subtasks[i].Completed = true
			return
		}
	}
}

// SubtaskCompleted reports whether the named subtask has been recorded
// as completed.
func (c *SessionContext) SubtaskCompleted(name string) bool {
	for _, st := range c.Subtasks {
		if st.Name == name && st.Completed {
			return true
		}
	}
	return false
}

// recordTransition appends "<from> -> <to>" to the append-only
// StepLog. Must be called with mu held.
func (c *SessionContext) recordTransition(from, to State) {
	c.StepLog = append(c.StepLog, string(from)+" -> "+string(to))
}

// recordPipelineExecution appends an execution record for pipelineName
// and recomputes its rolling average execution time, maintaining the
// invariant that every PipelineExecutions entry has a matching
// PipelinePerformanceMetrics[pipelineName+"_avg_time"].
func (c *SessionContext) recordPipelineExecution(pipelineName string, rec PipelineExecutionRecord, result map[string]any) {
	c.PipelineExecutions[pipelineName] = append(c.PipelineExecutions[pipelineName], rec)
	c.LastPipelineResults[pipelineName] = result

	records := c.PipelineExecutions[pipelineName]
	var total float64
	for _, r := range records {
		total += r.ExecutionTime
	}
	c.PipelinePerformanceMetrics[pipelineName+"_avg_time"] = total / float64(len(records))
}
