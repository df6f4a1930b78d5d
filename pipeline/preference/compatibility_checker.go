package preference

import (
	"context"
	"fmt"
	"strings"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/pipeline"
)

// CompatibilityChecker evaluates hard constraints against enriched
// items. It calls the LLM helper check_product_compatibility;
// on LLM failure it fails open, treating every item as compatible and
// annotating the result so callers can tell the difference.
type CompatibilityChecker struct {
	ai     core.AIClient
	logger core.Logger
}

// NewCompatibilityChecker constructs a CompatibilityChecker. ai may be
// nil to always evaluate constraints locally/fail-open.
func NewCompatibilityChecker(ai core.AIClient, logger core.Logger) *CompatibilityChecker {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &CompatibilityChecker{ai: ai, logger: logger}
}

// Name implements pipeline.Component.
func (c *CompatibilityChecker) Name() string { return "compatibility_checker" }

// Run reads input["items"], input["constraints"] ([]HardConstraint), and
// writes the compatible subset plus per-item Compatibility records.
func (c *CompatibilityChecker) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	items, _ := input["items"].([]pipeline.Product)
	constraints, _ := input["constraints"].([]HardConstraint)

	if len(constraints) == 0 {
		return map[string]any{"items": items, "compatibility": allCompatible(items)}, nil
	}

	results, failedOpen := c.evaluate(ctx, items, constraints)

	compatible := make([]pipeline.Product, 0, len(items))
	for i, r := range results {
		if r.Compatible {
			compatible = append(compatible, items[i])
		}
	}

	out := map[string]any{
		"items":         compatible,
		"compatibility": results,
	}
	if failedOpen {
		out["fail_open"] = true
	}
	return out, nil
}

func allCompatible(items []pipeline.Product) []Compatibility {
	out := make([]Compatibility, len(items))
	for i, it := range items {
		out[i] = Compatibility{ProductName: it.Name, Compatible: true}
	}
	return out
}

// evaluate tries the LLM helper first when configured. A genuine LLM
// failure fails open (treat all items as compatible, annotated).
// With no LLM configured it evaluates constraints locally
// instead of discarding them outright.
func (c *CompatibilityChecker) evaluate(ctx context.Context, items []pipeline.Product, constraints []HardConstraint) ([]Compatibility, bool) {
	if c.ai == nil {
		return c.evaluateLocally(items, constraints), false
	}
	if results, ok := c.evaluateWithLLM(ctx, items, constraints); ok {
		return results, false
	}
	return allCompatible(items), true
}

func (c *CompatibilityChecker) evaluateWithLLM(ctx context.Context, items []pipeline.Product, constraints []HardConstraint) ([]Compatibility, bool) {
	prompt := buildCompatibilityPrompt(items, constraints)
	resp, err := c.ai.GenerateResponse(ctx, prompt, &core.AIOptions{Temperature: 0, MaxTokens: 500})
	if err != nil {
		c.logger.WarnWithContext(ctx, "compatibility LLM call failed, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return nil, false
	}
	return parseCompatibilityResponse(resp.Content, items)
}

func buildCompatibilityPrompt(items []pipeline.Product, constraints []HardConstraint) string {
	var sb strings.Builder
	sb.WriteString("For each product, answer compatible or incompatible against these constraints: ")
	for _, c := range constraints {
		fmt.Fprintf(&sb, "%s %s %v; ", c.Type, c.Operator, c.Value)
	}
	sb.WriteString("Products: ")
	for _, it := range items {
		sb.WriteString(it.Name)
		sb.WriteString("; ")
	}
	return sb.String()
}

// parseCompatibilityResponse is deliberately conservative: a response
// that doesn't parse into one verdict per item is treated as a parse
// failure so the caller fails open (every item compatible, annotated)
// rather than guessing.
func parseCompatibilityResponse(content string, items []pipeline.Product) ([]Compatibility, bool) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) != len(items) {
		return nil, false
	}
	results := make([]Compatibility, len(items))
	for i, it := range items {
		results[i] = Compatibility{
			ProductName: it.Name,
			Compatible:  !strings.Contains(strings.ToLower(lines[i]), "incompatible"),
		}
	}
	return results, true
}

func (c *CompatibilityChecker) evaluateLocally(items []pipeline.Product, constraints []HardConstraint) []Compatibility {
	results := make([]Compatibility, len(items))
	for i, item := range items {
		compatible := true
		var reason string
		for _, constraint := range constraints {
			if !satisfiesConstraint(item, constraint) {
				compatible = false
				reason = fmt.Sprintf("fails %s %s %v", constraint.Type, constraint.Operator, constraint.Value)
				break
			}
		}
		results[i] = Compatibility{ProductName: item.Name, Compatible: compatible, Reason: reason}
	}
	return results
}

func satisfiesConstraint(item pipeline.Product, c HardConstraint) bool {
	switch c.Type {
	case "price":
		return satisfiesNumeric(item.NumericPrice(), c.Operator, c.Value)
	case "rating":
		return satisfiesNumeric(item.NumericRating(), c.Operator, c.Value)
	case "brand":
		target, _ := c.Value.(string)
		return strings.EqualFold(item.Brand, target) || strings.Contains(strings.ToLower(item.Name), strings.ToLower(target))
	default:
		// "general"/contains constraints never disqualify an item on
		// their own; they only influence ranking via PreferenceRanker.
		return true
	}
}

func satisfiesNumeric(value float64, operator string, target interface{}) bool {
	bound, ok := toFloatValue(target)
	if !ok {
		return true
	}
	switch operator {
	case "<=":
		return value <= bound
	case "<":
		return value < bound
	case ">=":
		return value >= bound
	case ">":
		return value > bound
	case "==", "=":
		return value == bound
	default:
		return true
	}
}

func toFloatValue(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}
