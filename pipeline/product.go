package pipeline

import "math"

// HardConstraint is the {type, operator, value} hard-constraint
// record shared by the search and preference pipelines and the FSM's
// refine_constraints handler.
type HardConstraint struct {
	Type     string      `json:"type"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// Product is the shared product record threaded through both
// pipelines. Price/Rating accept either a numeric or
// a loosely-formatted string at ingestion time (external shopping
// adapters return either), normalized once here via
// NumericPrice/NumericRating so every downstream component works with
// floats.
type Product struct {
	Name                  string                 `json:"name"`
	Price                 interface{}            `json:"price,omitempty"`
	Rating                interface{}            `json:"rating,omitempty"`
	Description           string                 `json:"description,omitempty"`
	Brand                 string                 `json:"brand,omitempty"`
	Specs                 map[string]interface{} `json:"specs,omitempty"`
	Availability          string                 `json:"availability,omitempty"`
	DetailedSpecs         map[string]interface{} `json:"detailed_specs,omitempty"`
	CompatibilityFeatures []string               `json:"compatibility_features,omitempty"`
}

// NumericPrice returns Price as a float64, treating a missing or
// unparsable price as +Inf so it ranks last.
func (p Product) NumericPrice() float64 {
	return toFloat(p.Price, math.Inf(1))
}

// NumericRating returns Rating as a float64, treating a missing or
// unparsable rating as 0. The value is not clamped to [0,5].
func (p Product) NumericRating() float64 {
	return toFloat(p.Rating, 0)
}

func toFloat(v interface{}, fallback float64) float64 {
	switch t := v.(type) {
	case nil:
		return fallback
	case float64:
		return t
	case float32:
		return float64(t)
	case int:
		return float64(t)
	case int64:
		return float64(t)
	case string:
		return parseNumericPrefix(t, fallback)
	default:
		return fallback
	}
}

// parseNumericPrefix extracts the leading decimal number from strings
// like "$1,299.00" or "4.5 stars", stripping currency symbols and
// thousands separators. Returns fallback if no digits are found.
func parseNumericPrefix(s string, fallback float64) float64 {
	var digits []byte
	seenDot := false
	started := false
scan:
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
			started = true
		case c == '.' && !seenDot && started:
			digits = append(digits, c)
			seenDot = true
		case c == ',':
			continue
		case started:
			break scan
		}
	}
	if len(digits) == 0 {
		return fallback
	}
	var whole, frac float64
	var fracDiv float64 = 1
	inFrac := false
	for _, d := range digits {
		if d == '.' {
			inFrac = true
			continue
		}
		digit := float64(d - '0')
		if inFrac {
			fracDiv *= 10
			frac += digit / fracDiv
		} else {
			whole = whole*10 + digit
		}
	}
	return whole + frac
}
