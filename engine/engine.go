// Package engine is the composition root: it wires the Redis-backed
// stores, the resilience layer, the guarded AI client, the two
// pipelines and the tiered memory manager into one fsm.StateMachine and
// hands it to an orchestrator.Orchestrator. The resilience and memory
// layers are mandatory per-turn collaborators, not optional add-ons.
package engine

import (
	"context"
	"fmt"

	"github.com/itsneelabh/contractengine/ai"
	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/fsm"
	"github.com/itsneelabh/contractengine/memory"
	"github.com/itsneelabh/contractengine/orchestrator"
	"github.com/itsneelabh/contractengine/pipeline"
	"github.com/itsneelabh/contractengine/pipeline/preference"
	"github.com/itsneelabh/contractengine/pipeline/search"
	"github.com/itsneelabh/contractengine/pipeline/summarize"
	"github.com/itsneelabh/contractengine/resilience"
	"github.com/itsneelabh/contractengine/session"
	"github.com/itsneelabh/contractengine/telemetry"
)

// defaultContractTemplateRef matches the purchase-item template shipped
// under contracts/, the same ref orchestrator_test.go exercises.
const defaultContractTemplateRef = "contracts/purchase_item.yaml"

// Engine holds every live collaborator assembled by New, so a caller
// (tests, cmd/engine) can reach into individual subsystems (e.g. to read
// resilience health for a /health endpoint) without re-deriving them.
type Engine struct {
	Config       *core.Config
	Health       *resilience.HealthMonitor
	Memory       *memory.Manager
	Sessions     *session.Manager
	Orchestrator *orchestrator.Orchestrator
	Telemetry    *telemetry.Provider

	redisBreaker *resilience.CircuitBreaker
	llmBreaker   *resilience.CircuitBreaker
}

// New assembles a fully wired Engine from cfg. adapter is the external
// shopping API collaborator; it is the one required injected dependency
// this package cannot default on its own.
func New(cfg *core.Config, adapter search.ShoppingAdapter, opts ...Option) (*Engine, error) {
	if cfg == nil {
		var err error
		cfg, err = core.NewConfig()
		if err != nil {
			return nil, fmt.Errorf("engine: default config: %w", err)
		}
	}
	if adapter == nil {
		return nil, fmt.Errorf("engine: a ShoppingAdapter is required")
	}

	logger := cfg.Logger()
	if logger == nil {
		logger = &core.NoOpLogger{}
	}

	o := &options{contractTemplateRef: defaultContractTemplateRef}
	for _, opt := range opts {
		opt(o)
	}

	e := &Engine{Config: cfg}

	// --- Telemetry first, so the breakers and pipelines built below
	// find the metrics registry already installed.
	if cfg.Telemetry.Enabled {
		provider, err := telemetry.Init(telemetry.Config{
			ServiceName:  cfg.Telemetry.ServiceName,
			Endpoint:     cfg.Telemetry.Endpoint,
			SamplingRate: cfg.Telemetry.SamplingRate,
			Insecure:     cfg.Telemetry.Insecure,
			DevMode:      cfg.Development.Enabled,
		})
		if err != nil {
			return nil, fmt.Errorf("engine: telemetry: %w", err)
		}
		e.Telemetry = provider
	}

	// --- Resilience: one process-global health monitor, fed by a
	// circuit breaker per guarded external dependency. Create each
	// breaker via the factory (auto-detects telemetry, injects the
	// logger), then attach the health listener before the breaker ever
	// sees load.
	e.Health = resilience.NewHealthMonitor(cfg.Resilience.HealthMonitor.DegradedThreshold)
	e.Health.SetLogger(logger)

	breakerDeps := resilience.ResilienceDependencies{
		Logger:           logger,
		FailureThreshold: cfg.Resilience.CircuitBreaker.FailureThreshold,
		RecoveryTimeout:  cfg.Resilience.CircuitBreaker.RecoveryTimeout,
	}
	redisBreaker, err := resilience.CreateCircuitBreaker("redis", breakerDeps)
	if err != nil {
		return nil, fmt.Errorf("engine: redis circuit breaker: %w", err)
	}
	resilience.WireHealthReporting(redisBreaker, e.Health, "redis")
	e.redisBreaker = redisBreaker

	llmBreaker, err := resilience.CreateCircuitBreaker("llm", breakerDeps)
	if err != nil {
		return nil, fmt.Errorf("engine: llm circuit breaker: %w", err)
	}
	resilience.WireHealthReporting(llmBreaker, e.Health, "llm")
	e.llmBreaker = llmBreaker

	// --- Redis clients, DB-isolated per core/redis_client.go's scheme.
	memoryRedis, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL: cfg.Redis.URL, DB: core.RedisDBMemory, Namespace: cfg.Redis.Namespace, Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: memory redis client: %w", err)
	}
	sessionRedis, err := core.NewRedisClient(core.RedisClientOptions{
		RedisURL: cfg.Redis.URL, DB: core.RedisDBSessions, Namespace: cfg.Redis.Namespace, Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: session redis client: %w", err)
	}

	// --- Tiered memory manager. The semantic tier needs an external
	// vector store/embedder, so it stays nil unless the caller supplies
	// one via WithSemanticStore.
	bufferStore := memory.NewRedisBufferStore(memoryRedis, redisBreaker, logger)
	summaryStore := memory.NewRedisSummaryStore(memoryRedis, o.summaryMirror, logger)
	if o.piiRedactor != nil {
		summaryStore.WithRedactor(o.piiRedactor)
	}
	summarizer := summarize.NewRollingSummarizer(o.summarizerBackend, summarize.DeviceCPU, logger)
	e.Memory = memory.NewManager(bufferStore, summaryStore, o.semanticStore, summarizer, logger)

	// --- AI client, guarded by the llm circuit breaker and reporting
	// into the same health monitor the redis breaker feeds.
	var aiClient core.AIClient
	if cfg.AI.Enabled {
		aiClient = ai.NewGuardedClient(ai.NewOpenAIClient(cfg.AI.APIKey, logger), llmBreaker, e.Health, ai.DefaultLLMServiceName)
	}

	// --- Pipelines, built from the guarded AI client so every LLM call
	// a pipeline component makes is already circuit-protected.
	searchPipeline := pipeline.New("product_search", logger,
		search.NewSearch(adapter, logger),
		search.NewAttributeAnalyzer(aiClient, logger),
		search.NewResultLimiter(search.DefaultMaxResults),
	)
	preferencePipeline := pipeline.New("preference_match", logger,
		preference.NewSpecScraper(logger),
		preference.NewCompatibilityChecker(aiClient, logger),
		preference.NewPreferenceRanker(aiClient, logger),
	)

	// --- Session persistence.
	sessionStore := session.NewRedisSessionStore(sessionRedis, logger)
	e.Sessions = session.NewManager(sessionStore, logger)

	// --- The FSM itself: every collaborator above becomes reachable
	// from a live turn through this StateMachine.
	sm := fsm.New(
		fsm.WithSearchPipeline(searchPipeline),
		fsm.WithPreferencePipeline(preferencePipeline),
		fsm.WithMemoryManager(e.Memory),
		fsm.WithHealthReporter(e.Health),
		fsm.WithAIClient(aiClient),
		fsm.WithLogger(logger),
	)

	// Conversation history is buffered once, inside sm.Next itself
	// (fsm/statemachine.go's bufferMessage), not duplicated here via
	// orchestrator.WithChatHistoryStore: that hook exists for deployments
	// that route tool/RAG/chat-intent turns (never reaching the FSM)
	// through this same orchestrator and still want them recorded.
	orchOpts := []orchestrator.Option{
		orchestrator.WithIntentExtractor(contractOnlyIntentExtractor{}),
		orchestrator.WithLogger(logger),
	}
	orchOpts = append(orchOpts, o.orchestratorOpts...)

	e.Orchestrator = orchestrator.New(sm, e.Sessions, o.contractTemplateRef, orchOpts...)

	return e, nil
}

// Shutdown flushes telemetry; a no-op when telemetry is disabled.
func (e *Engine) Shutdown(ctx context.Context) error {
	if e.Telemetry != nil {
		return e.Telemetry.Shutdown(ctx)
	}
	return nil
}
