package core

import (
	"os"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Name != "contract-engine" {
		t.Errorf("Name = %q, want %q", cfg.Name, "contract-engine")
	}
	if cfg.Redis.Namespace != "contractengine" {
		t.Errorf("Redis.Namespace = %q, want %q", cfg.Redis.Namespace, "contractengine")
	}
	if cfg.Memory.BufferMaxMessages != 30 {
		t.Errorf("Memory.BufferMaxMessages = %d, want 30", cfg.Memory.BufferMaxMessages)
	}
	if cfg.Memory.BufferMaxTokens != 4000 {
		t.Errorf("Memory.BufferMaxTokens = %d, want 4000", cfg.Memory.BufferMaxTokens)
	}
	if cfg.Memory.SummaryTriggerTokens != 3000 {
		t.Errorf("Memory.SummaryTriggerTokens = %d, want 3000", cfg.Memory.SummaryTriggerTokens)
	}
	if cfg.VectorStore.Dimensions != 384 {
		t.Errorf("VectorStore.Dimensions = %d, want 384", cfg.VectorStore.Dimensions)
	}
	if !cfg.AI.Enabled {
		t.Error("AI.Enabled should default to true")
	}
	if cfg.Resilience.CircuitBreaker.FailureThreshold != 5 {
		t.Errorf("CircuitBreaker.FailureThreshold = %d, want 5", cfg.Resilience.CircuitBreaker.FailureThreshold)
	}
}

func TestConfigOptions(t *testing.T) {
	t.Run("WithName", func(t *testing.T) {
		cfg, err := NewConfig(WithName("custom-engine"))
		if err != nil {
			t.Fatalf("NewConfig() error = %v", err)
		}
		if cfg.Name != "custom-engine" {
			t.Errorf("Name = %q, want %q", cfg.Name, "custom-engine")
		}
	})

	t.Run("WithName empty rejected", func(t *testing.T) {
		_, err := NewConfig(WithName(""))
		if err == nil {
			t.Error("expected error for empty name")
		}
	})

	t.Run("WithRedisURL", func(t *testing.T) {
		url := "redis://custom-host:6380"
		cfg, err := NewConfig(WithRedisURL(url))
		if err != nil {
			t.Fatalf("NewConfig() error = %v", err)
		}
		if cfg.Redis.URL != url {
			t.Errorf("Redis.URL = %q, want %q", cfg.Redis.URL, url)
		}
	})

	t.Run("WithRedisURL empty rejected", func(t *testing.T) {
		_, err := NewConfig(WithRedisURL(""))
		if err == nil {
			t.Error("expected error for empty redis URL")
		}
	})

	t.Run("WithAI", func(t *testing.T) {
		cfg, err := NewConfig(WithAI(true, "openai", "sk-test"))
		if err != nil {
			t.Fatalf("NewConfig() error = %v", err)
		}
		if cfg.AI.Provider != "openai" || cfg.AI.APIKey != "sk-test" {
			t.Errorf("AI config not applied: %+v", cfg.AI)
		}
	})

	t.Run("WithAIModel", func(t *testing.T) {
		cfg, err := NewConfig(WithAIModel("gpt-4o-mini"))
		if err != nil {
			t.Fatalf("NewConfig() error = %v", err)
		}
		if cfg.AI.Model != "gpt-4o-mini" {
			t.Errorf("AI.Model = %q, want %q", cfg.AI.Model, "gpt-4o-mini")
		}
	})

	t.Run("WithTelemetry", func(t *testing.T) {
		cfg, err := NewConfig(WithTelemetry(true, "http://otel:4317"))
		if err != nil {
			t.Fatalf("NewConfig() error = %v", err)
		}
		if !cfg.Telemetry.Enabled || cfg.Telemetry.Endpoint != "http://otel:4317" {
			t.Errorf("Telemetry config not applied: %+v", cfg.Telemetry)
		}
	})

	t.Run("WithLogLevel", func(t *testing.T) {
		cfg, err := NewConfig(WithLogLevel("debug"))
		if err != nil {
			t.Fatalf("NewConfig() error = %v", err)
		}
		if cfg.Logging.Level != "debug" {
			t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
		}
	})

	t.Run("WithLogFormat", func(t *testing.T) {
		cfg, err := NewConfig(WithLogFormat("text"))
		if err != nil {
			t.Fatalf("NewConfig() error = %v", err)
		}
		if cfg.Logging.Format != "text" {
			t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "text")
		}
	})

	t.Run("WithCircuitBreaker", func(t *testing.T) {
		cfg, err := NewConfig(WithCircuitBreaker(20, 60*time.Second))
		if err != nil {
			t.Fatalf("NewConfig() error = %v", err)
		}
		if cfg.Resilience.CircuitBreaker.FailureThreshold != 20 {
			t.Errorf("FailureThreshold = %d, want 20", cfg.Resilience.CircuitBreaker.FailureThreshold)
		}
		if cfg.Resilience.CircuitBreaker.RecoveryTimeout != 60*time.Second {
			t.Errorf("RecoveryTimeout = %v, want 60s", cfg.Resilience.CircuitBreaker.RecoveryTimeout)
		}
	})

	t.Run("WithRetry", func(t *testing.T) {
		cfg, err := NewConfig(WithRetry(5, 2*time.Second))
		if err != nil {
			t.Fatalf("NewConfig() error = %v", err)
		}
		if cfg.Resilience.Retry.MaxAttempts != 5 {
			t.Errorf("MaxAttempts = %d, want 5", cfg.Resilience.Retry.MaxAttempts)
		}
	})

	t.Run("WithDevelopmentMode", func(t *testing.T) {
		cfg, err := NewConfig(WithDevelopmentMode(true))
		if err != nil {
			t.Fatalf("NewConfig() error = %v", err)
		}
		if !cfg.Development.Enabled || !cfg.Development.PrettyLogs {
			t.Errorf("Development config not applied: %+v", cfg.Development)
		}
	})

	t.Run("WithMockAI", func(t *testing.T) {
		cfg, err := NewConfig(WithMockAI(true))
		if err != nil {
			t.Fatalf("NewConfig() error = %v", err)
		}
		if !cfg.Development.MockAI {
			t.Error("Development.MockAI should be true")
		}
	})
}

func TestConfigValidate(t *testing.T) {
	t.Run("empty redis URL rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Redis.URL = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected validation error for empty redis URL")
		}
	})

	t.Run("AI enabled without provider rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.AI.Enabled = true
		cfg.AI.Provider = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected validation error for missing AI provider")
		}
	})

	t.Run("non-positive buffer size rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Memory.BufferMaxMessages = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected validation error for non-positive buffer size")
		}
	})

	t.Run("non-positive failure threshold rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Resilience.CircuitBreaker.FailureThreshold = 0
		if err := cfg.Validate(); err == nil {
			t.Error("expected validation error for non-positive failure threshold")
		}
	})

	t.Run("sql enabled without dsn rejected", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.SQL.Enabled = true
		cfg.SQL.DSN = ""
		if err := cfg.Validate(); err == nil {
			t.Error("expected validation error for missing SQL DSN")
		}
	})

	t.Run("default config is valid", func(t *testing.T) {
		cfg := DefaultConfig()
		if err := cfg.Validate(); err != nil {
			t.Errorf("default config should validate, got %v", err)
		}
	})
}

func TestConfigLoadFromEnv(t *testing.T) {
	os.Setenv("ENGINE_NAME", "env-engine")
	os.Setenv("ENGINE_REDIS_URL", "redis://from-env:6379")
	os.Setenv("ENGINE_LOG_LEVEL", "warn")
	defer func() {
		os.Unsetenv("ENGINE_NAME")
		os.Unsetenv("ENGINE_REDIS_URL")
		os.Unsetenv("ENGINE_LOG_LEVEL")
	}()

	cfg := DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv() error = %v", err)
	}

	if cfg.Name != "env-engine" {
		t.Errorf("Name = %q, want %q", cfg.Name, "env-engine")
	}
	if cfg.Redis.URL != "redis://from-env:6379" {
		t.Errorf("Redis.URL = %q, want %q", cfg.Redis.URL, "redis://from-env:6379")
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "warn")
	}
}

func TestConfigOptionsOverrideEnv(t *testing.T) {
	os.Setenv("ENGINE_NAME", "env-engine")
	defer os.Unsetenv("ENGINE_NAME")

	cfg, err := NewConfig(WithName("option-engine"))
	if err != nil {
		t.Fatalf("NewConfig() error = %v", err)
	}
	if cfg.Name != "option-engine" {
		t.Errorf("Name = %q, want %q (options should win over env)", cfg.Name, "option-engine")
	}
}

func TestParseBool(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"true", true},
		{"TRUE", true},
		{"1", true},
		{"yes", true},
		{"on", true},
		{"false", false},
		{"0", false},
		{"", false},
		{"garbage", false},
	}
	for _, tt := range tests {
		if got := parseBool(tt.in); got != tt.want {
			t.Errorf("parseBool(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseStringList(t *testing.T) {
	got := parseStringList("a, b ,c,,d")
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("parseStringList() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("parseStringList()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func BenchmarkNewConfig(b *testing.B) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := NewConfig(
			WithName("bench-engine"),
			WithRedisURL("redis://localhost:6379"),
		)
		if err != nil {
			b.Fatal(err)
		}
	}
}
