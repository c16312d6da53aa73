// Package ranking orders substitutes for display. Ranking is pure and
// deterministic: the same input set always yields the same order.
package ranking

import (
	"cmp"
	"slices"
	"strings"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
)

// Rank returns a sorted copy of subs. Keys, in priority order: exact before
// partial, higher score, in stock first, more stock, lower price, same
// manufacturer as source, name, drug id.
func Rank(subs []entities.Substitute, source entities.Drug) []entities.Substitute {
	ranked := slices.Clone(subs)
	if ranked == nil {
		return []entities.Substitute{}
	}

	sourceMaker := strings.ToLower(strings.TrimSpace(source.Manufacturer))

	slices.SortStableFunc(ranked, func(a, b entities.Substitute) int {
		if c := cmp.Compare(matchTypeRank(a.MatchType), matchTypeRank(b.MatchType)); c != 0 {
			return c
		}
		if c := cmp.Compare(b.MatchScore, a.MatchScore); c != 0 {
			return c
		}
		if c := compareBool(a.InStock(), b.InStock()); c != 0 {
			return c
		}
		if c := cmp.Compare(b.AvailableStock, a.AvailableStock); c != 0 {
			return c
		}
		if c := a.Price.Cmp(b.Price); c != 0 {
			return c
		}
		if sourceMaker != "" {
			if c := compareBool(sameMaker(a, sourceMaker), sameMaker(b, sourceMaker)); c != 0 {
				return c
			}
		}
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.DrugID, b.DrugID)
	})

	return ranked
}

func matchTypeRank(t entities.MatchType) int {
	if t == entities.MatchExact {
		return 0
	}
	return 1
}

// compareBool sorts true before false.
func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case a:
		return -1
	default:
		return 1
	}
}

func sameMaker(s entities.Substitute, maker string) bool {
	return strings.ToLower(strings.TrimSpace(s.Manufacturer)) == maker
}
