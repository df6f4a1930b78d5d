package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the contract execution engine.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := NewConfig(
//	    WithRedisURL("redis://localhost:6379"),
//	    WithAI(true, "openai", os.Getenv("OPENAI_API_KEY")),
//	)
type Config struct {
	Name string `json:"name" env:"ENGINE_NAME" default:"contract-engine"`

	Redis       RedisConfig       `json:"redis"`
	SQL         SQLConfig         `json:"sql"`
	VectorStore VectorStoreConfig `json:"vector_store"`
	ObjectStore ObjectStoreConfig `json:"object_store"`
	AI          AIConfig          `json:"ai"`
	Telemetry   TelemetryConfig   `json:"telemetry"`
	Memory      MemoryConfig      `json:"memory"`
	Resilience  ResilienceConfig  `json:"resilience"`
	Logging     LoggingConfig     `json:"logging"`
	Development DevelopmentConfig `json:"development"`

	logger Logger `json:"-"`
}

// RedisConfig configures the shared Redis client used by the memory,
// session and resilience packages (each subsystem isolates itself with a
// logical DB, see RedisDB* constants).
type RedisConfig struct {
	URL             string        `json:"url" env:"ENGINE_REDIS_URL,REDIS_URL" default:"redis://localhost:6379"`
	Namespace       string        `json:"namespace" env:"ENGINE_REDIS_NAMESPACE" default:"contractengine"`
	DialTimeout     time.Duration `json:"dial_timeout" env:"ENGINE_REDIS_DIAL_TIMEOUT" default:"5s"`
	CleanupInterval time.Duration `json:"cleanup_interval" env:"ENGINE_REDIS_CLEANUP_INTERVAL" default:"10m"`
}

// SQLConfig configures the best-effort SQL mirror of the current rolling
// summary (MemoryManager's SummaryMirrorStore). Disabled by default: the
// fast Redis summary store is authoritative, the SQL mirror only serves
// analytics/audit reads.
type SQLConfig struct {
	Enabled bool   `json:"enabled" env:"ENGINE_SQL_ENABLED" default:"false"`
	Driver  string `json:"driver" env:"ENGINE_SQL_DRIVER" default:"pgx"`
	DSN     string `json:"dsn" env:"ENGINE_SQL_DSN"`
	Table   string `json:"table" env:"ENGINE_SQL_TABLE" default:"session_summaries"`
}

// VectorStoreConfig configures the semantic memory tier's backing vector
// store (384-dim cosine, per the memory manager's SemanticStore).
type VectorStoreConfig struct {
	Enabled    bool   `json:"enabled" env:"ENGINE_VECTOR_ENABLED" default:"false"`
	Endpoint   string `json:"endpoint" env:"ENGINE_VECTOR_ENDPOINT"`
	Collection string `json:"collection" env:"ENGINE_VECTOR_COLLECTION" default:"session_memories"`
	Dimensions int    `json:"dimensions" env:"ENGINE_VECTOR_DIMENSIONS" default:"384"`
	NList      int    `json:"nlist" env:"ENGINE_VECTOR_NLIST" default:"128"`
}

// ObjectStoreConfig configures where audit artifacts (contract transcripts,
// recommendation snapshots) are written.
type ObjectStoreConfig struct {
	Enabled bool   `json:"enabled" env:"ENGINE_OBJECT_STORE_ENABLED" default:"false"`
	Bucket  string `json:"bucket" env:"ENGINE_OBJECT_STORE_BUCKET"`
	Prefix  string `json:"prefix" env:"ENGINE_OBJECT_STORE_PREFIX" default:"contracts/"`
}

// AIConfig contains the LLM provider configuration used by the FSM's
// LLM-helper contracts (criteria extraction, relevance checks, compatibility
// analysis, recommendation generation).
type AIConfig struct {
	Enabled       bool          `json:"enabled" env:"ENGINE_AI_ENABLED" default:"true"`
	Provider      string        `json:"provider" env:"ENGINE_AI_PROVIDER" default:"openai"`
	APIKey        string        `json:"api_key" env:"ENGINE_AI_API_KEY,OPENAI_API_KEY"`
	BaseURL       string        `json:"base_url" env:"ENGINE_AI_BASE_URL"`
	Model         string        `json:"model" env:"ENGINE_AI_MODEL" default:"gpt-4o"`
	Temperature   float32       `json:"temperature" env:"ENGINE_AI_TEMPERATURE" default:"0.3"`
	MaxTokens     int           `json:"max_tokens" env:"ENGINE_AI_MAX_TOKENS" default:"2000"`
	Timeout       time.Duration `json:"timeout" env:"ENGINE_AI_TIMEOUT" default:"30s"`
	RetryAttempts int           `json:"retry_attempts" env:"ENGINE_AI_RETRY_ATTEMPTS" default:"1"`
	RetryDelay    time.Duration `json:"retry_delay" env:"ENGINE_AI_RETRY_DELAY" default:"500ms"`
}

// TelemetryConfig contains observability configuration for metrics and
// distributed tracing around FSM transitions and pipeline invocations.
type TelemetryConfig struct {
	Enabled        bool    `json:"enabled" env:"ENGINE_TELEMETRY_ENABLED" default:"false"`
	Endpoint       string  `json:"endpoint" env:"ENGINE_TELEMETRY_ENDPOINT,OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName    string  `json:"service_name" env:"ENGINE_TELEMETRY_SERVICE_NAME,OTEL_SERVICE_NAME" default:"contract-engine"`
	MetricsEnabled bool    `json:"metrics_enabled" env:"ENGINE_TELEMETRY_METRICS" default:"true"`
	TracingEnabled bool    `json:"tracing_enabled" env:"ENGINE_TELEMETRY_TRACING" default:"true"`
	SamplingRate   float64 `json:"sampling_rate" env:"ENGINE_TELEMETRY_SAMPLING_RATE" default:"1.0"`
	Insecure       bool    `json:"insecure" env:"ENGINE_TELEMETRY_INSECURE" default:"true"`
}

// MemoryConfig contains the tiered memory manager's size/TTL limits.
type MemoryConfig struct {
	BufferMaxMessages    int           `json:"buffer_max_messages" env:"ENGINE_MEMORY_BUFFER_MAX_MESSAGES" default:"30"`
	BufferMaxTokens      int           `json:"buffer_max_tokens" env:"ENGINE_MEMORY_BUFFER_MAX_TOKENS" default:"4000"`
	BufferTTL            time.Duration `json:"buffer_ttl" env:"ENGINE_MEMORY_BUFFER_TTL" default:"6h"`
	SummaryTriggerTokens int           `json:"summary_trigger_tokens" env:"ENGINE_MEMORY_SUMMARY_TRIGGER_TOKENS" default:"3000"`
	SummaryHistoryDepth  int           `json:"summary_history_depth" env:"ENGINE_MEMORY_SUMMARY_HISTORY_DEPTH" default:"8"`
	SummaryTTL           time.Duration `json:"summary_ttl" env:"ENGINE_MEMORY_SUMMARY_TTL" default:"24h"`
	SemanticEnabled      bool          `json:"semantic_enabled" env:"ENGINE_MEMORY_SEMANTIC_ENABLED" default:"false"`
	CleanupInterval      time.Duration `json:"cleanup_interval" env:"ENGINE_MEMORY_CLEANUP_INTERVAL" default:"10m"`
}

// ResilienceConfig contains fault tolerance pattern settings for the FastKVStore
// client and the LLM-helper retry policy.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"`
	Retry          RetryConfig          `json:"retry"`
	HealthMonitor  HealthMonitorConfig  `json:"health_monitor"`
}

// CircuitBreakerConfig defines circuit breaker settings. The breaker
// fails fast once a run of consecutive failures hits FailureThreshold,
// waits RecoveryTimeout, then probes recovery with a single trial call.
type CircuitBreakerConfig struct {
	Enabled          bool          `json:"enabled" env:"ENGINE_CB_ENABLED" default:"true"`
	FailureThreshold int           `json:"failure_threshold" env:"ENGINE_CB_FAILURE_THRESHOLD" default:"5"`
	RecoveryTimeout  time.Duration `json:"recovery_timeout" env:"ENGINE_CB_RECOVERY_TIMEOUT" default:"30s"`
}

// RetryConfig defines the one-retry-with-jitter policy used by LLM helper
// calls: a single retry on transport errors, none on JSON-parse failures.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts" env:"ENGINE_RETRY_MAX_ATTEMPTS" default:"2"`
	InitialDelay  time.Duration `json:"initial_delay" env:"ENGINE_RETRY_INITIAL_DELAY" default:"200ms"`
	MaxDelay      time.Duration `json:"max_delay" env:"ENGINE_RETRY_MAX_DELAY" default:"2s"`
	BackoffFactor float64       `json:"backoff_factor" env:"ENGINE_RETRY_BACKOFF_FACTOR" default:"2.0"`
	JitterEnabled bool          `json:"jitter_enabled" env:"ENGINE_RETRY_JITTER" default:"true"`
}

// HealthMonitorConfig tunes the process-global health monitor's operation
// mode derivation (FULL/DEGRADED/MINIMAL).
type HealthMonitorConfig struct {
	DegradedThreshold int           `json:"degraded_threshold" env:"ENGINE_HEALTH_DEGRADED_THRESHOLD" default:"3"`
	MinimalThreshold  int           `json:"minimal_threshold" env:"ENGINE_HEALTH_MINIMAL_THRESHOLD" default:"8"`
	RecoveryWindow    time.Duration `json:"recovery_window" env:"ENGINE_HEALTH_RECOVERY_WINDOW" default:"1m"`
}

// LoggingConfig contains logging configuration. Supports structured (JSON)
// and human-readable (text) formats.
type LoggingConfig struct {
	Level      string `json:"level" env:"ENGINE_LOG_LEVEL" default:"info"`
	Format     string `json:"format" env:"ENGINE_LOG_FORMAT" default:"json"`
	Output     string `json:"output" env:"ENGINE_LOG_OUTPUT" default:"stdout"`
	TimeFormat string `json:"time_format" env:"ENGINE_LOG_TIME_FORMAT" default:"2006-01-02T15:04:05.000Z07:00"`
}

// DevelopmentConfig contains settings for local development and testing.
type DevelopmentConfig struct {
	Enabled      bool `json:"enabled" env:"ENGINE_DEV_MODE" default:"false"`
	MockAI       bool `json:"mock_ai" env:"ENGINE_MOCK_AI" default:"false"`
	DebugLogging bool `json:"debug_logging" env:"ENGINE_DEBUG" default:"false"`
	PrettyLogs   bool `json:"pretty_logs" env:"ENGINE_PRETTY_LOGS" default:"false"`
}

// Option is a functional option for configuring the engine.
type Option func(*Config) error

// DefaultConfig returns a configuration with sensible defaults, adjusted for
// the detected execution environment (Kubernetes vs local).
func DefaultConfig() *Config {
	cfg := &Config{
		Name: "contract-engine",
		Redis: RedisConfig{
			URL:             "redis://localhost:6379",
			Namespace:       "contractengine",
			DialTimeout:     5 * time.Second,
			CleanupInterval: 10 * time.Minute,
		},
		SQL: SQLConfig{
			Driver: "pgx",
			Table:  "session_summaries",
		},
		VectorStore: VectorStoreConfig{
			Collection: "session_memories",
			Dimensions: 384,
			NList:      128,
		},
		ObjectStore: ObjectStoreConfig{
			Prefix: "contracts/",
		},
		AI: AIConfig{
			Enabled:       true,
			Provider:      "openai",
			Model:         "gpt-4o",
			Temperature:   0.3,
			MaxTokens:     2000,
			Timeout:       30 * time.Second,
			RetryAttempts: 1,
			RetryDelay:    500 * time.Millisecond,
		},
		Telemetry: TelemetryConfig{
			MetricsEnabled: true,
			TracingEnabled: true,
			SamplingRate:   1.0,
			Insecure:       true,
			ServiceName:    "contract-engine",
		},
		Memory: MemoryConfig{
			BufferMaxMessages:    30,
			BufferMaxTokens:      4000,
			BufferTTL:            6 * time.Hour,
			SummaryTriggerTokens: 3000,
			SummaryHistoryDepth:  8,
			SummaryTTL:           24 * time.Hour,
			CleanupInterval:      10 * time.Minute,
		},
		Resilience: ResilienceConfig{
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				RecoveryTimeout:  30 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:   2,
				InitialDelay:  200 * time.Millisecond,
				MaxDelay:      2 * time.Second,
				BackoffFactor: 2.0,
				JitterEnabled: true,
			},
			HealthMonitor: HealthMonitorConfig{
				DegradedThreshold: 3,
				MinimalThreshold:  8,
				RecoveryWindow:    time.Minute,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: time.RFC3339Nano,
		},
		Development: DevelopmentConfig{},
	}

	cfg.DetectEnvironment()

	return cfg
}

// DetectEnvironment automatically adjusts configuration based on the
// detected environment. Called by DefaultConfig(); Kubernetes is detected
// via KUBERNETES_SERVICE_HOST.
func (c *Config) DetectEnvironment() {
	if os.Getenv("KUBERNETES_SERVICE_HOST") != "" {
		c.Redis.URL = "redis://redis.default.svc.cluster.local:6379"
		c.Logging.Format = "json"
		return
	}

	c.Redis.URL = "redis://localhost:6379"
	if os.Getenv("ENGINE_DEV_MODE") == "" {
		c.Development.Enabled = true
		c.Development.PrettyLogs = true
		c.Logging.Format = "text"
	}
}

// LoadFromEnv loads configuration from environment variables. Environment
// variables take precedence over defaults but are overridden by functional
// options.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("ENGINE_NAME"); v != "" {
		c.Name = v
	}

	if v := firstNonEmpty("ENGINE_REDIS_URL", "REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("ENGINE_REDIS_NAMESPACE"); v != "" {
		c.Redis.Namespace = v
	}

	if v := os.Getenv("ENGINE_SQL_ENABLED"); v != "" {
		c.SQL.Enabled = parseBool(v)
	}
	if v := os.Getenv("ENGINE_SQL_DSN"); v != "" {
		c.SQL.DSN = v
	}

	if v := os.Getenv("ENGINE_VECTOR_ENABLED"); v != "" {
		c.VectorStore.Enabled = parseBool(v)
	}
	if v := os.Getenv("ENGINE_VECTOR_ENDPOINT"); v != "" {
		c.VectorStore.Endpoint = v
	}

	if v := os.Getenv("ENGINE_AI_ENABLED"); v != "" {
		c.AI.Enabled = parseBool(v)
	}
	if v := firstNonEmpty("ENGINE_AI_API_KEY", "OPENAI_API_KEY"); v != "" {
		c.AI.APIKey = v
	}
	if v := os.Getenv("ENGINE_AI_MODEL"); v != "" {
		c.AI.Model = v
	}
	if v := os.Getenv("ENGINE_AI_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.AI.Timeout = d
		}
	}

	if v := os.Getenv("ENGINE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = parseBool(v)
	}
	if v := firstNonEmpty("ENGINE_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Endpoint = v
	}

	if v := os.Getenv("ENGINE_MEMORY_BUFFER_MAX_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Memory.BufferMaxMessages = n
		}
	}
	if v := os.Getenv("ENGINE_MEMORY_SUMMARY_TRIGGER_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Memory.SummaryTriggerTokens = n
		}
	}

	if v := os.Getenv("ENGINE_CB_ENABLED"); v != "" {
		c.Resilience.CircuitBreaker.Enabled = parseBool(v)
	}
	if v := os.Getenv("ENGINE_RETRY_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Resilience.Retry.MaxAttempts = n
		}
	}

	if v := os.Getenv("ENGINE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("ENGINE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("ENGINE_DEV_MODE"); v != "" {
		c.Development.Enabled = parseBool(v)
	}
	if v := os.Getenv("ENGINE_DEBUG"); v != "" {
		c.Development.DebugLogging = parseBool(v)
	}

	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if c.Redis.URL == "" {
		return fmt.Errorf("redis URL is required: %w", ErrMissingConfiguration)
	}
	if c.AI.Enabled && c.AI.Provider == "" {
		return fmt.Errorf("AI provider is required when AI is enabled: %w", ErrInvalidConfiguration)
	}
	if c.Memory.BufferMaxMessages <= 0 {
		return fmt.Errorf("memory.buffer_max_messages must be positive: %w", ErrInvalidConfiguration)
	}
	if c.Resilience.CircuitBreaker.FailureThreshold <= 0 {
		return fmt.Errorf("resilience.circuit_breaker.failure_threshold must be positive: %w", ErrInvalidConfiguration)
	}
	if c.SQL.Enabled && c.SQL.DSN == "" {
		return fmt.Errorf("sql.dsn is required when sql is enabled: %w", ErrMissingConfiguration)
	}
	return nil
}

func firstNonEmpty(envVars ...string) string {
	for _, name := range envVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// parseStringList splits a comma-separated string into a slice of strings.
func parseStringList(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// parseBool converts a string to a boolean value, treating "1"/"true"/"yes"/"on"
// (case-insensitive) as true.
func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// WithName sets the engine's service name, used in logs and telemetry.
func WithName(name string) Option {
	return func(c *Config) error {
		if name == "" {
			return fmt.Errorf("name cannot be empty: %w", ErrInvalidConfiguration)
		}
		c.Name = name
		return nil
	}
}

// WithRedisURL sets the Redis connection URL shared by memory, session and
// resilience subsystems.
func WithRedisURL(url string) Option {
	return func(c *Config) error {
		if url == "" {
			return fmt.Errorf("redis URL cannot be empty: %w", ErrInvalidConfiguration)
		}
		c.Redis.URL = url
		return nil
	}
}

// WithAI enables the AI client with the given provider and API key.
func WithAI(enabled bool, provider, apiKey string) Option {
	return func(c *Config) error {
		c.AI.Enabled = enabled
		if provider != "" {
			c.AI.Provider = provider
		}
		if apiKey != "" {
			c.AI.APIKey = apiKey
		}
		return nil
	}
}

// WithAIModel overrides the LLM model used for all helper contracts.
func WithAIModel(model string) Option {
	return func(c *Config) error {
		c.AI.Model = model
		return nil
	}
}

// WithTelemetry enables OTel export to the given OTLP endpoint.
func WithTelemetry(enabled bool, endpoint string) Option {
	return func(c *Config) error {
		c.Telemetry.Enabled = enabled
		if endpoint != "" {
			c.Telemetry.Endpoint = endpoint
		}
		return nil
	}
}

// WithLogLevel overrides the configured log level.
func WithLogLevel(level string) Option {
	return func(c *Config) error {
		c.Logging.Level = level
		return nil
	}
}

// WithLogFormat overrides the configured log format ("json" or "text").
func WithLogFormat(format string) Option {
	return func(c *Config) error {
		c.Logging.Format = format
		return nil
	}
}

// WithCircuitBreaker overrides the circuit breaker's consecutive-failure
// threshold and recovery timeout.
func WithCircuitBreaker(failureThreshold int, recoveryTimeout time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.CircuitBreaker.FailureThreshold = failureThreshold
		c.Resilience.CircuitBreaker.RecoveryTimeout = recoveryTimeout
		return nil
	}
}

// WithRetry overrides the LLM helper retry policy.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(c *Config) error {
		c.Resilience.Retry.MaxAttempts = maxAttempts
		c.Resilience.Retry.InitialDelay = initialDelay
		return nil
	}
}

// WithDevelopmentMode toggles development-friendly defaults (pretty logs,
// mock AI responses).
func WithDevelopmentMode(enabled bool) Option {
	return func(c *Config) error {
		c.Development.Enabled = enabled
		c.Development.PrettyLogs = enabled
		return nil
	}
}

// WithMockAI toggles canned AI responses, useful for tests that should not
// make network calls.
func WithMockAI(enabled bool) Option {
	return func(c *Config) error {
		c.Development.MockAI = enabled
		return nil
	}
}

// WithLogger injects a pre-built logger, bypassing ProductionLogger
// construction. Mainly useful in tests.
func WithLogger(logger Logger) Option {
	return func(c *Config) error {
		c.logger = logger
		return nil
	}
}

// NewConfig builds a Config by layering defaults, environment variables and
// functional options (in that priority order), then validates the result.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := DefaultConfig()

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load env config: %w", err)
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if cfg.logger == nil {
		logger := NewProductionLogger(cfg.Logging, cfg.Development, cfg.Name)
		if prodLogger, ok := logger.(*ProductionLogger); ok {
			trackLogger(prodLogger)
		}
		cfg.logger = logger
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Logger returns the engine's configured logger.
func (c *Config) Logger() Logger {
	return c.logger
}

// ============================================================================
// ProductionLogger Implementation - Layered Observability Architecture
// ============================================================================

// ProductionLogger provides layered, component-aware observability for
// engine operations: structured or text output, optional trace correlation,
// and metrics emission once the telemetry module registers itself.
type ProductionLogger struct {
	level       string
	debug       bool
	serviceName string
	component   string
	format      string
	output      io.Writer

	metricsEnabled bool
}

// NewProductionLogger creates a logger from LoggingConfig.
func NewProductionLogger(logging LoggingConfig, dev DevelopmentConfig, serviceName string) Logger {
	var output io.Writer = os.Stdout
	if logging.Output == "stderr" {
		output = os.Stderr
	}

	return &ProductionLogger{
		level:          strings.ToLower(logging.Level),
		debug:          dev.DebugLogging || logging.Level == "debug",
		serviceName:    serviceName,
		component:      "engine",
		format:         logging.Format,
		output:         output,
		metricsEnabled: false,
	}
}

// WithComponent returns a logger that tags every entry with the given
// component name (e.g. "engine/fsm", "engine/memory"), so logs can be
// filtered per subsystem.
func (p *ProductionLogger) WithComponent(component string) Logger {
	clone := *p
	clone.component = component
	return &clone
}

// EnableMetrics is called by the telemetry package to enable the metrics layer.
func (p *ProductionLogger) EnableMetrics() {
	p.metricsEnabled = true
}

func (p *ProductionLogger) Info(msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, nil)
}

func (p *ProductionLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("INFO", msg, fields, ctx)
}

func (p *ProductionLogger) Error(msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, nil)
}

func (p *ProductionLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("ERROR", msg, fields, ctx)
}

func (p *ProductionLogger) Warn(msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, nil)
}

func (p *ProductionLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	p.logEvent("WARN", msg, fields, ctx)
}

func (p *ProductionLogger) Debug(msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, nil)
	}
}

func (p *ProductionLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	if p.debug {
		p.logEvent("DEBUG", msg, fields, ctx)
	}
}

// Core logging implementation with all three layers: structured output,
// trace correlation, and metrics emission.
func (p *ProductionLogger) logEvent(level, msg string, fields map[string]interface{}, ctx context.Context) {
	timestamp := time.Now().Format(time.RFC3339)

	if p.format == "json" {
		logEntry := map[string]interface{}{
			"timestamp": timestamp,
			"level":     level,
			"service":   p.serviceName,
			"component": p.component,
			"message":   msg,
		}

		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); len(baggage) > 0 {
				for k, v := range baggage {
					logEntry["trace."+k] = v
				}
			}
		}

		for k, v := range fields {
			logEntry[k] = v
		}

		if data, err := json.Marshal(logEntry); err == nil {
			fmt.Fprintln(p.output, string(data))
		}
	} else {
		traceInfo := ""
		if ctx != nil && p.metricsEnabled {
			if baggage := getContextBaggage(ctx); baggage["request_id"] != "" {
				traceInfo = fmt.Sprintf("[req=%s] ", baggage["request_id"])
			}
		}

		var fieldStr strings.Builder
		if len(fields) > 0 {
			fieldStr.WriteString(" ")
			for k, v := range fields {
				fieldStr.WriteString(fmt.Sprintf("%s=%v ", k, v))
			}
		}

		fmt.Fprintf(p.output, "%s [%s] [%s/%s] %s%s%s\n",
			timestamp, level, p.serviceName, p.component, traceInfo, msg, fieldStr.String())
	}

	if p.metricsEnabled {
		p.emitEngineMetric(level, msg, fields, ctx)
	}
}

// Metrics emission with cardinality protection: only a known low-cardinality
// set of fields becomes a label, everything else stays in the log line.
func (p *ProductionLogger) emitEngineMetric(level, msg string, fields map[string]interface{}, ctx context.Context) {
	labels := []string{
		"level", level,
		"service", p.serviceName,
		"component", p.component,
	}

	for k, v := range fields {
		switch k {
		case "operation", "status", "error_type", "state", "provider":
			labels = append(labels, k, fmt.Sprintf("%v", v))
		}
	}

	if ctx != nil {
		emitMetricWithContext(ctx, "contractengine.operations", 1.0, labels...)
	} else {
		emitMetric("contractengine.operations", 1.0, labels...)
	}
}

// Helper functions for weak coupling to the telemetry package.
func emitMetric(name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.Counter(name, labels...)
	}
}

func emitMetricWithContext(ctx context.Context, name string, value float64, labels ...string) {
	if globalMetricsRegistry != nil {
		globalMetricsRegistry.EmitWithContext(ctx, name, value, labels...)
	}
}

func getContextBaggage(ctx context.Context) map[string]string {
	if globalMetricsRegistry != nil {
		return globalMetricsRegistry.GetBaggage(ctx)
	}
	return make(map[string]string)
}
