package engine

import (
	"context"

	"github.com/itsneelabh/contractengine/memory"
	"github.com/itsneelabh/contractengine/orchestrator"
	"github.com/itsneelabh/contractengine/pipeline/summarize"
)

type options struct {
	contractTemplateRef string
	summaryMirror       memory.SummaryMirrorStore
	semanticStore       memory.SemanticStore
	summarizerBackend   summarize.ModelBackend
	piiRedactor         memory.PIIRedactor
	orchestratorOpts    []orchestrator.Option
}

// Option configures Engine construction beyond the required Config and
// ShoppingAdapter.
type Option func(*options)

// WithContractTemplateRef overrides the default purchase-item template.
func WithContractTemplateRef(ref string) Option {
	return func(o *options) { o.contractTemplateRef = ref }
}

// WithSummaryMirror wires the best-effort SQL mirror of the current
// rolling summary. Omit to run without one; a nil mirror is a supported
// configuration (memory.RedisSummaryStore treats it as "no mirror").
func WithSummaryMirror(m memory.SummaryMirrorStore) Option {
	return func(o *options) { o.summaryMirror = m }
}

// WithSemanticStore enables the long-term semantic memory tier, backed
// by an external vector store + embedder the deployment supplies.
func WithSemanticStore(s memory.SemanticStore) Option {
	return func(o *options) { o.semanticStore = s }
}

// WithPIIRedactor gates summary persistence through the external PII
// redactor; semantic-tier writes already gate through the redactor the
// caller builds into their SemanticStore.
func WithPIIRedactor(r memory.PIIRedactor) Option {
	return func(o *options) { o.piiRedactor = r }
}

// WithSummarizerBackend supplies the T5-style abstractive model backend;
// omitted, the rolling summarizer always uses its deterministic
// truncation fallback.
func WithSummarizerBackend(b summarize.ModelBackend) Option {
	return func(o *options) { o.summarizerBackend = b }
}

// WithOrchestratorOptions appends additional orchestrator.Option values
// (e.g. WithArtifactWriter, WithToolHandler) on top of this package's
// defaults.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(o *options) { o.orchestratorOpts = append(o.orchestratorOpts, opts...) }
}

// contractOnlyIntentExtractor is the default orchestrator.IntentExtractor
// for this engine: intent classification across tool/RAG/chat surfaces
// lives in the front-end, but the orchestrator still requires an
// extractor to decide whether a fresh utterance starts a contract. Since
// this engine only implements the contract flow, every fresh utterance is
// classified as IntentContract; a deployment that fronts this engine with
// real multi-intent routing supplies its own via
// orchestrator.WithIntentExtractor (through WithOrchestratorOptions),
// which orchestrator.New applies after this package's defaults.
type contractOnlyIntentExtractor struct{}

func (contractOnlyIntentExtractor) Classify(ctx context.Context, sessionID, utterance string) (orchestrator.Intent, error) {
	return orchestrator.IntentContract, nil
}
