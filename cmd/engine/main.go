// Command engine runs the contract execution engine as a standalone HTTP
// service: one POST /turn endpoint that drives a session's state machine
// forward by one user utterance, plus a /health endpoint reporting the
// resilience layer's current operation mode.
//
// Startup validates required environment variables up front, builds
// the long-lived engine.Engine, logs a startup banner, then serves
// until a signal asks for a graceful shutdown.
//
// Environment Variables:
//
//	ENGINE_REDIS_URL       - Redis connection URL (required)
//	ENGINE_PORT            - HTTP listen port (default: 8090)
//	ENGINE_AI_API_KEY      - LLM provider API key (optional; AI features
//	                         degrade to deterministic fallbacks without one)
//
// Example Usage:
//
//	export ENGINE_REDIS_URL="redis://localhost:6379"
//	export ENGINE_AI_API_KEY="sk-..."
//	go run ./cmd/engine
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/engine"
	"github.com/itsneelabh/contractengine/pipeline"
	"github.com/itsneelabh/contractengine/pipeline/search"
)

func main() {
	if err := validateConfig(); err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	cfg, err := core.NewConfig()
	if err != nil {
		log.Fatalf("Failed to build configuration: %v", err)
	}
	logger := cfg.Logger()

	e, err := engine.New(cfg, stubShoppingAdapter{})
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	port := 8090
	if portStr := os.Getenv("ENGINE_PORT"); portStr != "" {
		if p, err := strconv.Atoi(portStr); err == nil {
			port = p
		}
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/turn", handleTurn(e))
	mux.HandleFunc("/health", handleHealth(e))

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: otelhttp.NewHandler(mux, "contract-engine"),
	}

	log.Println("==============================================")
	log.Println("Contract Execution Engine")
	log.Println("==============================================")
	log.Println("AI Provider:", getAIProviderStatus())
	log.Printf("Server Port: %d\n", port)
	log.Println("Resilience: Circuit Breakers + Health Monitor enabled")
	log.Println("==============================================")
	log.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Shutting down gracefully...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", map[string]interface{}{"error": err.Error()})
		}
		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Error("telemetry shutdown error", map[string]interface{}{"error": err.Error()})
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Shutdown completed")
}

type turnRequest struct {
	SessionID string `json:"session_id"`
	Utterance string `json:"utterance"`
}

type turnResponse struct {
	SessionID string `json:"session_id"`
	Reply     string `json:"reply"`
}

func handleTurn(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req turnRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Utterance == "" {
			http.Error(w, "utterance is required", http.StatusBadRequest)
			return
		}
		// First turn of a fresh conversation may omit the session id;
		// mint one and hand it back so the client can continue the
		// session.
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}

		reply, err := e.Orchestrator.HandleTurn(r.Context(), req.SessionID, req.Utterance)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(turnResponse{SessionID: req.SessionID, Reply: reply}); err != nil {
			e.Config.Logger().Error("failed to encode turn response", map[string]interface{}{"error": err.Error()})
		}
	}
}

func handleHealth(e *engine.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"operation_mode": string(e.Health.OperationMode()),
		})
	}
}

// validateConfig validates required environment variables before
// anything is constructed.
func validateConfig() error {
	redisURL := os.Getenv("ENGINE_REDIS_URL")
	if redisURL == "" {
		return fmt.Errorf("ENGINE_REDIS_URL environment variable required")
	}
	if !strings.HasPrefix(redisURL, "redis://") && !strings.HasPrefix(redisURL, "rediss://") {
		return fmt.Errorf("invalid ENGINE_REDIS_URL format (must start with redis:// or rediss://)")
	}
	if portStr := os.Getenv("ENGINE_PORT"); portStr != "" {
		if _, err := strconv.Atoi(portStr); err != nil {
			return fmt.Errorf("invalid ENGINE_PORT value: %v", err)
		}
	}
	return nil
}

func getAIProviderStatus() string {
	if os.Getenv("ENGINE_AI_API_KEY") != "" || os.Getenv("OPENAI_API_KEY") != "" {
		return "OpenAI"
	}
	return "disabled (deterministic fallbacks only)"
}

// stubShoppingAdapter is a placeholder search.ShoppingAdapter; the
// shopping catalog API is an external collaborator. A real deployment
// supplies its own via engine.New's adapter argument; this command
// exists to exercise the wiring end to end, not to ship a catalog
// integration.
type stubShoppingAdapter struct{}

func (stubShoppingAdapter) Search(ctx context.Context, query string) ([]pipeline.Product, error) {
	return nil, fmt.Errorf("stubShoppingAdapter: no shopping catalog configured")
}

var _ search.ShoppingAdapter = stubShoppingAdapter{}
