package preference

import (
	"context"
	"strings"
	"time"

	"github.com/itsneelabh/contractengine/core"
	"github.com/itsneelabh/contractengine/pipeline"
)

// specCacheTTL bounds how long an item's inferred detailed specs are
// reused across invocations.
const specCacheTTL = 60 * time.Minute

type enrichedSpec struct {
	detailedSpecs map[string]interface{}
	features      []string
}

// categorySpecRules infers detailed_specs/compatibility_features from a
// substring of the product name/description, mirroring
// search.categoryHeuristics' category-keyed approach for a category this
// engine has no live spec-sheet scraper for.
var categorySpecRules = []struct {
	substr   string
	specs    map[string]interface{}
	features []string
}{
	{"gpu", map[string]interface{}{"interface": "PCIe 4.0", "cooling": "active"}, []string{"pcie_4.0", "dual_fan"}},
	{"graphics card", map[string]interface{}{"interface": "PCIe 4.0", "cooling": "active"}, []string{"pcie_4.0", "dual_fan"}},
	{"laptop", map[string]interface{}{"form_factor": "clamshell"}, []string{"backlit_keyboard", "wifi_6"}},
	{"phone", map[string]interface{}{"connector": "USB-C"}, []string{"5g", "wireless_charging"}},
}

var defaultSpec = enrichedSpec{detailedSpecs: map[string]interface{}{}, features: []string{}}

// SpecScraper enriches each product with detailed_specs and
// compatibility_features, caching results per item identity (name).
type SpecScraper struct {
	cache  *pipeline.TTLCache[enrichedSpec]
	logger core.Logger
}

// NewSpecScraper constructs a SpecScraper.
func NewSpecScraper(logger core.Logger) *SpecScraper {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &SpecScraper{cache: pipeline.NewTTLCache[enrichedSpec](), logger: logger}
}

// Name implements pipeline.Component.
func (s *SpecScraper) Name() string { return "spec_scraper" }

// Run reads input["items"] ([]pipeline.Product) and writes the enriched
// copy back to the same key.
func (s *SpecScraper) Run(ctx context.Context, input map[string]any) (map[string]any, error) {
	items, _ := input["items"].([]pipeline.Product)
	if len(items) > maxInputItems {
		s.logger.WarnWithContext(ctx, "spec scraper truncating oversized input", map[string]interface{}{
			"received": len(items), "max": maxInputItems,
		})
		items = items[:maxInputItems]
	}

	enriched := make([]pipeline.Product, len(items))
	for i, item := range items {
		enriched[i] = s.enrich(item)
	}
	return map[string]any{"items": enriched}, nil
}

func (s *SpecScraper) enrich(item pipeline.Product) pipeline.Product {
	spec, ok := s.cache.Get(item.Name)
	if !ok {
		spec = inferSpec(item)
		s.cache.Set(item.Name, spec, specCacheTTL)
	}
	item.DetailedSpecs = spec.detailedSpecs
	item.CompatibilityFeatures = spec.features
	return item
}

func inferSpec(item pipeline.Product) enrichedSpec {
	haystack := strings.ToLower(item.Name + " " + item.Description)
	for _, rule := range categorySpecRules {
		if strings.Contains(haystack, rule.substr) {
			return enrichedSpec{detailedSpecs: rule.specs, features: rule.features}
		}
	}
	return defaultSpec
}
