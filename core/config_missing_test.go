package core

import (
	"context"
	"testing"
)

// LogEntry captures a single call made to MockLogger, for assertions in
// tests that need to verify what was logged.
type LogEntry struct {
	Level  string
	Msg    string
	Fields map[string]interface{}
}

// MockLogger is a Logger implementation that records every call instead of
// writing anywhere, for use in tests that need to assert on log output.
type MockLogger struct {
	entries []LogEntry
}

func (m *MockLogger) record(level, msg string, fields map[string]interface{}) {
	m.entries = append(m.entries, LogEntry{Level: level, Msg: msg, Fields: fields})
}

func (m *MockLogger) Info(msg string, fields map[string]interface{})  { m.record("INFO", msg, fields) }
func (m *MockLogger) Error(msg string, fields map[string]interface{}) { m.record("ERROR", msg, fields) }
func (m *MockLogger) Warn(msg string, fields map[string]interface{})  { m.record("WARN", msg, fields) }
func (m *MockLogger) Debug(msg string, fields map[string]interface{}) { m.record("DEBUG", msg, fields) }

func (m *MockLogger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	m.record("INFO", msg, fields)
}
func (m *MockLogger) ErrorWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	m.record("ERROR", msg, fields)
}
func (m *MockLogger) WarnWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	m.record("WARN", msg, fields)
}
func (m *MockLogger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	m.record("DEBUG", msg, fields)
}

// TestWithLogger tests the WithLogger config option
func TestWithLogger(t *testing.T) {
	mockLogger := &MockLogger{entries: make([]LogEntry, 0)}

	config := DefaultConfig()

	if config.logger != nil {
		t.Error("Initial config should have nil logger")
	}

	option := WithLogger(mockLogger)
	if err := option(config); err != nil {
		t.Errorf("WithLogger() error = %v", err)
	}

	if config.logger != mockLogger {
		t.Error("Logger was not set correctly")
	}
	if config.Logger() != mockLogger {
		t.Error("Logger() accessor did not return the injected logger")
	}

	nilOption := WithLogger(nil)
	if err := nilOption(config); err != nil {
		t.Errorf("WithLogger(nil) error = %v", err)
	}
	if config.logger != nil {
		t.Error("Logger should be nil after WithLogger(nil)")
	}
}

// TestNewConfigWithInjectedLogger verifies NewConfig doesn't construct a
// ProductionLogger when one was already supplied via WithLogger.
func TestNewConfigWithInjectedLogger(t *testing.T) {
	mockLogger := &MockLogger{entries: make([]LogEntry, 0)}

	cfg, err := NewConfig(WithLogger(mockLogger), WithRedisURL("redis://localhost:6379"))
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.Logger() != mockLogger {
		t.Error("NewConfig should preserve an injected logger instead of building its own")
	}
}

// TestNewConfigBuildsProductionLoggerByDefault verifies NewConfig falls
// back to a ProductionLogger when no logger was injected.
func TestNewConfigBuildsProductionLoggerByDefault(t *testing.T) {
	cfg, err := NewConfig()
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.Logger() == nil {
		t.Fatal("expected a default logger to be constructed")
	}
	if _, ok := cfg.Logger().(*ProductionLogger); !ok {
		t.Errorf("Logger() = %T, want *ProductionLogger", cfg.Logger())
	}
}

// TestNewConfigRejectsInvalidOption verifies option application errors
// propagate out of NewConfig without constructing a logger or validating.
func TestNewConfigRejectsInvalidOption(t *testing.T) {
	_, err := NewConfig(WithRedisURL(""))
	if err == nil {
		t.Error("expected error from invalid option")
	}
}

// TestNewConfigRejectsInvalidConfiguration verifies Validate() failures
// propagate out of NewConfig.
func TestNewConfigRejectsInvalidConfiguration(t *testing.T) {
	_, err := NewConfig(func(c *Config) error {
		c.Memory.BufferMaxMessages = -1
		return nil
	})
	if err == nil {
		t.Error("expected validation error to propagate from NewConfig")
	}
}

func TestProductionLoggerWithComponent(t *testing.T) {
	base := NewProductionLogger(LoggingConfig{Level: "info", Format: "json"}, DevelopmentConfig{}, "contract-engine")
	componentAware, ok := base.(ComponentAwareLogger)
	if !ok {
		t.Fatal("ProductionLogger should implement ComponentAwareLogger")
	}

	scoped := componentAware.WithComponent("fsm")
	scopedProd, ok := scoped.(*ProductionLogger)
	if !ok {
		t.Fatal("WithComponent should return a *ProductionLogger")
	}
	if scopedProd.component != "fsm" {
		t.Errorf("component = %q, want %q", scopedProd.component, "fsm")
	}

	baseProd := base.(*ProductionLogger)
	if baseProd.component == "fsm" {
		t.Error("WithComponent should not mutate the receiver")
	}
}
