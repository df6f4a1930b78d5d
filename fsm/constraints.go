package fsm

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/itsneelabh/contractengine/pipeline"
)

var (
	priceBoundRe = regexp.MustCompile(`(?i)(?:under|below|less than|max(?:imum)?)\s*\$?\s*(\d+(?:\.\d+)?)`)
	brandRe      = regexp.MustCompile(`(?i)(?:brand|make|manufacturer)\s+([A-Za-z0-9][A-Za-z0-9 ]{0,30})`)
)

// parseConstraints extracts hard constraints from free-form user
// input: a price bound, a brand name, and
// a fallback general/contains constraint when nothing else matches.
func parseConstraints(input string) []pipeline.HardConstraint {
	var constraints []pipeline.HardConstraint

	if m := priceBoundRe.FindStringSubmatch(input); m != nil {
		if value, err := strconv.ParseFloat(m[1], 64); err == nil {
			constraints = append(constraints, pipeline.HardConstraint{
				Type: "price", Operator: "<=", Value: value,
			})
		}
	}

	if m := brandRe.FindStringSubmatch(input); m != nil {
		constraints = append(constraints, pipeline.HardConstraint{
			Type: "brand", Operator: "==", Value: strings.TrimSpace(m[1]),
		})
	}

	if len(constraints) == 0 {
		trimmed := strings.TrimSpace(input)
		if trimmed != "" {
			constraints = append(constraints, pipeline.HardConstraint{
				Type: "general", Operator: "contains", Value: trimmed,
			})
		}
	}

	return constraints
}

// mergeConstraints accumulates newly parsed constraints onto existing
// ones across refinement rounds; constraints are never replaced.
func mergeConstraints(existing, fresh []pipeline.HardConstraint) []pipeline.HardConstraint {
	return append(append([]pipeline.HardConstraint{}, existing...), fresh...)
}
