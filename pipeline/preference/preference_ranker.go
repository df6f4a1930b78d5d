package preference

import (
	"context"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/pipeline"
)

// PreferenceRanker scores items against soft preferences and returns the
// top-K ranked products with a parallel scores array. Falls back to a
// deterministic rating/price blend when the LLM-backed scorer is
// unavailable or fails.
type PreferenceRanker struct {
	ai     core.AIClient
	topK   int
	logger core.Logger
}

// NewPreferenceRanker constructs a PreferenceRanker. ai may be nil to
// always use the deterministic fallback scorer.
func NewPreferenceRanker(ai core.AIClient, logger core.Logger) *PreferenceRanker {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &PreferenceRanker{ai: ai, topK: TopK, logger: logger}
}

// Name implements pipeline.Component.
func (r *PreferenceRanker) Name() string { return "preference_ranker" }

// Run reads input["items"] and input["preferences"]
// (map[string]interface{}), writing ranked_products/scores/
// ranking_method/status.
func (r *PreferenceRanker) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	items, _ := input["items"].([]pipeline.Product)
	preferences, _ := input["preferences"].(map[string]interface{})

	if len(items) > maxInputItems {
		items = items[:maxInputItems]
	}

	if len(items) == 0 {
		return map[string]any{
			"status":          StatusNoProducts,
			"ranked_products": []pipeline.Product{},
			"scores":          []float64{},
		}, nil
	}

	ranked, scores, method := r.rank(ctx, items, preferences)

	return map[string]any{
		"status":              StatusSuccess,
		"ranked_products":     ranked,
		"scores":              scores,
		"ranking_method":      method,
		"total_processed":     len(items),
		"preferences_applied": preferences,
	}, nil
}

func (r *PreferenceRanker) rank(ctx context.Context, items []pipeline.Product, preferences map[string]interface{}) ([]pipeline.Product, []float64, string) {
	if r.ai != nil {
		if ranked, scores, ok := r.rankWithLLM(ctx, items, preferences); ok {
			return ranked, scores, RankingMethodPipeline
		}
	}
	return r.rankFallback(items)
}

// rankWithLLM asks the model for one "name: score" line per item, in the
// same order as items. A response that doesn't parse into exactly one
// numeric score per item is treated as a failure so the caller falls
// back to the deterministic scorer.
func (r *PreferenceRanker) rankWithLLM(ctx context.Context, items []pipeline.Product, preferences map[string]interface{}) ([]pipeline.Product, []float64, bool) {
	resp, err := r.ai.GenerateResponse(ctx, preferenceRankingPrompt(items, preferences), &core.AIOptions{Temperature: 0.2, MaxTokens: 400})
	if err != nil || resp == nil {
		r.logger.WarnWithContext(ctx, "preference ranker LLM call failed, using fallback scorer", map[string]interface{}{
			"error": errString(err),
		})
		return nil, nil, false
	}

	scores, ok := parseRankingScores(resp.Content, len(items))
	if !ok {
		r.logger.WarnWithContext(ctx, "preference ranker LLM response unparsable, using fallback scorer", nil)
		return nil, nil, false
	}

	type scored struct {
		product pipeline.Product
		score   float64
	}
	all := make([]scored, len(items))
	for i, it := range items {
		all[i] = scored{product: it, score: scores[i]}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	k := r.topK
	if k <= 0 || k > len(all) {
		k = len(all)
	}
	ranked := make([]pipeline.Product, k)
	outScores := make([]float64, k)
	for i := 0; i < k; i++ {
		ranked[i] = all[i].product
		outScores[i] = all[i].score
	}
	return ranked, outScores, true
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// parseRankingScores expects one line per item: "<anything>: <score>".
func parseRankingScores(content string, n int) ([]float64, bool) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) != n {
		return nil, false
	}
	scores := make([]float64, n)
	for i, line := range lines {
		parts := strings.Split(line, ":")
		if len(parts) < 2 {
			return nil, false
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[len(parts)-1]), 64)
		if err != nil {
			return nil, false
		}
		scores[i] = v
	}
	return scores, true
}

func preferenceRankingPrompt(items []pipeline.Product, preferences map[string]interface{}) string {
	prompt := "Score each product 0-1 against the stated preferences, one line 'name: score' per product in order: "
	for _, it := range items {
		prompt += it.Name + "; "
	}
	for k, v := range preferences {
		prompt += k + "="
		switch val := v.(type) {
		case string:
			prompt += val + "; "
		default:
			prompt += "; "
		}
	}
	return prompt
}

// rankFallback is the deterministic ranking fallback:
// score = 0.6*normalized_rating + 0.4*(1 - normalized_price).
func (r *PreferenceRanker) rankFallback(items []pipeline.Product) ([]pipeline.Product, []float64, string) {
	minPrice, maxPrice := priceRange(items)

	type scored struct {
		product pipeline.Product
		score   float64
	}
	all := make([]scored, len(items))
	for i, it := range items {
		normRating := it.NumericRating() / 5.0
		normPrice := normalizePrice(it.NumericPrice(), minPrice, maxPrice)
		score := 0.6*normRating + 0.4*(1-normPrice)
		all[i] = scored{product: it, score: score}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })

	k := r.topK
	if k <= 0 || k > len(all) {
		k = len(all)
	}

	ranked := make([]pipeline.Product, k)
	scores := make([]float64, k)
	for i := 0; i < k; i++ {
		ranked[i] = all[i].product
		scores[i] = all[i].score
	}
	return ranked, scores, RankingMethodFallback
}

func priceRange(items []pipeline.Product) (float64, float64) {
	min, max := 0.0, 0.0
	first := true
	for _, it := range items {
		p := it.NumericPrice()
		if math.IsInf(p, 1) {
			continue
		}
		if first || p < min {
			min = p
		}
		if first || p > max {
			max = p
		}
		first = false
	}
	return min, max
}

func normalizePrice(price, min, max float64) float64 {
	if math.IsInf(price, 1) {
		return 1 // treat missing price as worst-case (most expensive)
	}
	if max <= min {
		return 0
	}
	return (price - min) / (max - min)
}
