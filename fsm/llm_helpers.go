package fsm

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/pipeline"
)

// This file holds the LLM helpers the FSM handlers call directly; the
// pipeline-internal helpers (attribute analysis, compatibility
// checking, preference ranking) live in the pipeline/search and
// pipeline/preference packages instead. Every helper here degrades to
// a deterministic fallback rather than propagating an LLM failure
// across the FSM boundary.

// productTaxonomy is the known-product regex catalog used by
// ExtractCriteria's fallback.
var productTaxonomy = []struct {
	pattern *regexp.Regexp
	product string
}{
	{regexp.MustCompile(`(?i)graphics?\s*cards?|gpu|rtx\s*\d+|geforce|radeon`), "graphics card"},
	{regexp.MustCompile(`(?i)laptops?|notebooks?`), "laptop"},
	{regexp.MustCompile(`(?i)phones?|smartphones?`), "phone"},
	{regexp.MustCompile(`(?i)washing\s*machines?|washers?`), "washing machine"},
	{regexp.MustCompile(`(?i)tvs?|televisions?`), "tv"},
	{regexp.MustCompile(`(?i)headphones?|earbuds?`), "headphone"},
}

var specPatternRe = regexp.MustCompile(`(?i)rtx\s*\d+|\d+\s*(?:gb|tb|mhz|ghz|inch|")`)

// ExtractCriteria implements extract_initial_criteria.
func ExtractCriteria(ctx context.Context, ai core.AIClient, logger core.Logger, rawPrompt string) (baseProduct string, specifications map[string]string, searchKeywords []string, enhancedQuery string) {
	if ai != nil {
		resp, err := ai.GenerateResponse(ctx, buildCriteriaPrompt(rawPrompt), &core.AIOptions{Temperature: 0, MaxTokens: 300})
		if err == nil && resp != nil {
			if bp, specs, kws, ok := parseCriteriaResponse(resp.Content); ok {
				return bp, specs, kws, fuseQuery(rawPrompt, specs)
			}
		}
		if logger != nil {
			logger.WarnWithContext(ctx, "extract_initial_criteria LLM call failed or unparsable, using regex fallback", nil)
		}
	}
	return fallbackExtractCriteria(rawPrompt)
}

func buildCriteriaPrompt(rawPrompt string) string {
	return "Extract base_product, specifications and search_keywords as JSON from: " + rawPrompt
}

// parseCriteriaResponse is deliberately minimal: it expects
// "base_product: X" / "keywords: a,b,c" lines, matching the
// conservative line-oriented parsing convention used throughout this
// engine's LLM helpers (reject anything that doesn't conform, rather
// than guess).
func parseCriteriaResponse(content string) (string, map[string]string, []string, bool) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	var baseProduct string
	specs := map[string]string{}
	var keywords []string
	found := false
	for _, line := range lines {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		switch key {
		case "base_product":
			baseProduct = value
			found = true
		case "keywords", "search_keywords":
			for _, kw := range strings.Split(value, ",") {
				if kw = strings.TrimSpace(kw); kw != "" {
					keywords = append(keywords, kw)
				}
			}
		default:
			specs[key] = value
		}
	}
	if !found {
		return "", nil, nil, false
	}
	return baseProduct, specs, keywords, true
}

func fallbackExtractCriteria(rawPrompt string) (string, map[string]string, []string, string) {
	baseProduct := "product"
	for _, entry := range productTaxonomy {
		if entry.pattern.MatchString(rawPrompt) {
			baseProduct = entry.product
			break
		}
	}
	specs := map[string]string{}
	if m := specPatternRe.FindAllString(rawPrompt, -1); len(m) > 0 {
		for i, spec := range m {
			specs[fmt.Sprintf("spec_%d", i)] = spec
		}
	}
	keywords := strings.Fields(rawPrompt)
	return baseProduct, specs, keywords, fuseQuery(rawPrompt, specs)
}

// fuseQuery fuses extracted specifications into the raw query,
// producing the enhanced query used downstream.
func fuseQuery(rawPrompt string, specs map[string]string) string {
	if len(specs) == 0 {
		return rawPrompt
	}
	var sb strings.Builder
	sb.WriteString(rawPrompt)
	for _, v := range specs {
		sb.WriteString(" ")
		sb.WriteString(v)
	}
	return sb.String()
}

// irrelevantTopics is the unrelated-domain pattern catalog used by
// isResponseRelevant's fallback.
var irrelevantTopics = regexp.MustCompile(`(?i)weather|politics|quantum|physics|chemistry`)
var competingBuyRe = regexp.MustCompile(`(?i)\bbuy\b`)

// isResponseRelevant implements is_response_relevant.
func isResponseRelevant(ctx context.Context, ai core.AIClient, logger core.Logger, response, expectedContext, productContext string) (isRelevant bool, confidence float64, reason string, detectedIntent string) {
	if ai != nil {
		resp, err := ai.GenerateResponse(ctx, "Is this response relevant to "+expectedContext+": "+response, &core.AIOptions{Temperature: 0, MaxTokens: 150})
		if err == nil && resp != nil && resp.Content != "" {
			relevant := !strings.Contains(strings.ToLower(resp.Content), "not relevant")
			return relevant, 0.8, resp.Content, ""
		}
		if logger != nil {
			logger.WarnWithContext(ctx, "is_response_relevant LLM call failed, using pattern fallback", nil)
		}
	}
	if irrelevantTopics.MatchString(response) {
		return false, 0.5, "matched unrelated-topic pattern", "off_topic"
	}
	if competingBuyRe.MatchString(response) && productContext != "" && !strings.Contains(strings.ToLower(response), strings.ToLower(productContext)) {
		return false, 0.5, "mentions buying a different product", "competing_purchase"
	}
	return true, 0.5, "no disqualifying pattern matched", ""
}

// filterProducts implements filter_products_with_llm.
func filterProducts(ctx context.Context, ai core.AIClient, logger core.Logger, items []pipeline.Product, preferences map[string]string, constraints []pipeline.HardConstraint) []pipeline.Product {
	if ai != nil {
		if filtered, ok := filterProductsWithLLM(ctx, ai, items, preferences, constraints); ok {
			if len(items) < 5 || len(filtered) >= 5 {
				return filtered
			}
			if logger != nil {
				logger.WarnWithContext(ctx, "filter_products_with_llm under-filtered, using top-10 fallback", nil)
			}
		}
	}
	return firstN(items, 10)
}

func filterProductsWithLLM(ctx context.Context, ai core.AIClient, items []pipeline.Product, preferences map[string]string, constraints []pipeline.HardConstraint) ([]pipeline.Product, bool) {
	resp, err := ai.GenerateResponse(ctx, "Filter products by preferences/constraints", &core.AIOptions{Temperature: 0, MaxTokens: 300})
	if err != nil || resp == nil {
		return nil, false
	}
	// No structured parser is wired for free-form filtering output;
	// treat a successful call as "no narrowing performed" so the
	// ≥5-items guarantee in the caller still holds.
	return items, true
}

func firstN(items []pipeline.Product, n int) []pipeline.Product {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

// generateProductRecommendation implements
// generate_product_recommendation.
func generateProductRecommendation(ctx context.Context, ai core.AIClient, logger core.Logger, topItems []pipeline.Product, preferences map[string]string, constraints []pipeline.HardConstraint) map[string]any {
	if len(topItems) == 0 {
		return map[string]any{"numbered_products": []pipeline.Product{}, "recommendation": map[string]any{}}
	}
	if ai != nil {
		resp, err := ai.GenerateResponse(ctx, "Recommend one of these products with reasoning", &core.AIOptions{Temperature: 0.3, MaxTokens: 300})
		if err == nil && resp != nil && resp.Content != "" {
			return map[string]any{
				"numbered_products": topItems,
				"recommendation": map[string]any{
					"choice":    topItems[0].Name,
					"reasoning": resp.Content,
				},
			}
		}
		if logger != nil {
			logger.WarnWithContext(ctx, "generate_product_recommendation LLM call failed, using first-item fallback", nil)
		}
	}
	return map[string]any{
		"numbered_products": topItems,
		"recommendation": map[string]any{
			"choice":    topItems[0].Name,
			"reasoning": "Selected as the top-ranked match among the available options.",
		},
	}
}

var (
	prefPriceRe      = regexp.MustCompile(`(?i)(?:under|below|less than|max(?:imum)?)\s*\$?\s*(\d+(?:\.\d+)?)`)
	prefCapacityRe   = regexp.MustCompile(`(?i)(\d+)\s*(gb|tb)\b`)
	prefEfficiencyRe = regexp.MustCompile(`(?i)energy[- ]efficient|low[- ]power|eco[- ]friendly`)
)

// analyzeUserPreferences implements analyze_user_preferences.
// priorContext, when non-empty, is the rolling conversation summary
// from the memory subsystem for this session: a
// buyer who said "no kids toys" earlier in the conversation should not have to
// repeat it, so it rides along in the prompt alongside the current
// turn's text.
func analyzeUserPreferences(ctx context.Context, ai core.AIClient, logger core.Logger, text string, items []pipeline.Product, priorContext string) (map[string]string, []pipeline.HardConstraint) {
	if ai != nil {
		prompt := "Extract preferences and constraints from: " + text
		if priorContext != "" {
			prompt = "Prior conversation context: " + priorContext + "\n" + prompt
		}
		resp, err := ai.GenerateResponse(ctx, prompt, &core.AIOptions{Temperature: 0, MaxTokens: 200})
		if err == nil && resp != nil && resp.Content != "" {
			if prefs, constraints, ok := parsePreferencesResponse(resp.Content); ok {
				return prefs, constraints
			}
		}
		if logger != nil {
			logger.WarnWithContext(ctx, "analyze_user_preferences LLM call failed or unparsable, using regex fallback", nil)
		}
	}
	return fallbackAnalyzePreferences(text)
}

func parsePreferencesResponse(content string) (map[string]string, []pipeline.HardConstraint, bool) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	prefs := map[string]string{}
	var constraints []pipeline.HardConstraint
	found := false
	for _, line := range lines {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])
		if key == "" || value == "" {
			continue
		}
		prefs[key] = value
		found = true
	}
	return prefs, constraints, found
}

func fallbackAnalyzePreferences(text string) (map[string]string, []pipeline.HardConstraint) {
	prefs := map[string]string{}
	var constraints []pipeline.HardConstraint

	if m := prefPriceRe.FindStringSubmatch(text); m != nil {
		if value, err := strconv.ParseFloat(m[1], 64); err == nil {
			constraints = append(constraints, pipeline.HardConstraint{Type: "price", Operator: "<=", Value: value})
		}
	}
	if m := prefCapacityRe.FindStringSubmatch(text); m != nil {
		prefs["capacity"] = m[1] + strings.ToUpper(m[2])
	}
	if prefEfficiencyRe.MatchString(text) {
		prefs["efficiency"] = "high"
	}
	return prefs, constraints
}
