package search

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/pipeline"
)

// maxAttributes bounds the differentiating-attribute list.
const maxAttributes = 7

// attributeCacheTTL is the AttributeAnalyzer result cache lifetime.
const attributeCacheTTL = 60 * time.Minute

// categoryHeuristics maps a substring of the canonicalized query to a
// fixed attribute list, used when the LLM call fails.
var categoryHeuristics = []struct {
	substr     string
	attributes []string
}{
	{"gpu", []string{"brand", "vram", "core_clock", "power_draw", "price", "availability"}},
	{"graphics card", []string{"brand", "vram", "core_clock", "power_draw", "price", "availability"}},
	{"laptop", []string{"brand", "cpu", "ram", "storage", "screen_size", "battery_life", "price"}},
	{"phone", []string{"brand", "storage", "camera", "battery_life", "screen_size", "price"}},
	{"washing", []string{"brand", "capacity", "energy_rating", "spin_speed", "price"}},
	{"tv", []string{"brand", "screen_size", "resolution", "refresh_rate", "price"}},
	{"headphone", []string{"brand", "noise_cancelling", "battery_life", "wireless", "price"}},
}

// defaultAttributes is used when no category heuristic matches.
var defaultAttributes = []string{"brand", "price", "rating", "availability"}

// AttributeAnalyzer derives the handful of attributes that differentiate
// a search's result set, used by the FSM's refine_constraints prompt.
// LLM-backed with a TTL cache keyed by canonicalised query + item
// identities; falls back to category heuristics on LLM failure.
type AttributeAnalyzer struct {
	ai     core.AIClient
	cache  *pipeline.TTLCache[[]string]
	logger core.Logger
}

// NewAttributeAnalyzer constructs an AttributeAnalyzer. ai may be nil to
// always use the heuristic fallback (e.g. AI disabled in config).
func NewAttributeAnalyzer(ai core.AIClient, logger core.Logger) *AttributeAnalyzer {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &AttributeAnalyzer{
		ai:     ai,
		cache:  pipeline.NewTTLCache[[]string](),
		logger: logger,
	}
}

// Name implements pipeline.Component.
func (a *AttributeAnalyzer) Name() string { return "attribute_analyzer" }

// Run reads input["items"] ([]pipeline.Product) and input["query"]
// (string), writing input["attributes"] ([]string).
func (a *AttributeAnalyzer) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	items, _ := input["items"].([]pipeline.Product)
	query, _ := input["query"].(string)

	if len(items) == 0 {
		return map[string]any{"attributes": []string{}}, nil
	}

	cacheKey := cacheKeyFor(query, items)
	if cached, ok := a.cache.Get(cacheKey); ok {
		return map[string]any{"attributes": cached}, nil
	}

	attributes := a.analyzeWithLLM(ctx, query, items)
	if attributes == nil {
		attributes = heuristicAttributes(query)
	}

	a.cache.Set(cacheKey, attributes, attributeCacheTTL)
	return map[string]any{"attributes": attributes}, nil
}

func (a *AttributeAnalyzer) analyzeWithLLM(ctx context.Context, query string, items []pipeline.Product) []string {
	if a.ai == nil {
		return nil
	}

	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Name)
	}
	prompt := fmt.Sprintf(
		"List up to %d product attributes (single lowercase words, comma-separated) that best "+
			"differentiate these search results for the query %q: %s",
		maxAttributes, query, strings.Join(names, "; "))

	resp, err := a.ai.GenerateResponse(ctx, prompt, &core.AIOptions{Temperature: 0.2, MaxTokens: 200})
	if err != nil {
		a.logger.WarnWithContext(ctx, "attribute analyzer LLM call failed, using heuristics", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	attrs := parseAttributeList(resp.Content)
	if len(attrs) == 0 {
		return nil
	}
	return attrs
}

func parseAttributeList(content string) []string {
	parts := strings.Split(content, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		attr := strings.ToLower(strings.TrimSpace(p))
		attr = strings.Trim(attr, ".\"'")
		if attr == "" {
			continue
		}
		out = append(out, attr)
		if len(out) >= maxAttributes {
			break
		}
	}
	return out
}

func heuristicAttributes(query string) []string {
	lower := strings.ToLower(query)
	for _, h := range categoryHeuristics {
		if strings.Contains(lower, h.substr) {
			return h.attributes
		}
	}
	return defaultAttributes
}

func cacheKeyFor(query string, items []pipeline.Product) string {
	h := sha256.New()
	h.Write([]byte(strings.ToLower(strings.TrimSpace(query))))
	for _, it := range items {
		h.Write([]byte("|"))
		h.Write([]byte(it.Name))
	}
	return hex.EncodeToString(h.Sum(nil))
}
