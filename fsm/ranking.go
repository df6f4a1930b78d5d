package fsm

import (
	"sort"

	"github.com/itsneelabh/contractengine/pipeline"
)

// fallbackRankLimit caps how many items the ranking fallback keeps.
const fallbackRankLimit = 5

// rankingFallback implements the FSM-internal ranking fallback used
// when the preference pipeline fails outright: rank by (-rating,
// price) ascending and keep the top 5.
func rankingFallback(items []pipeline.Product) []pipeline.Product {
	ranked := append([]pipeline.Product{}, items...)
	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := ranked[i].NumericRating(), ranked[j].NumericRating()
		if ri != rj {
			return ri > rj
		}
		return ranked[i].NumericPrice() < ranked[j].NumericPrice()
	})
	if len(ranked) > fallbackRankLimit {
		ranked = ranked[:fallbackRankLimit]
	}
	return ranked
}
