// Package matching finds drugs whose salt composition equals or overlaps a
// source drug's composition within one store.
package matching

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
)

const (
	// ExactScore is the score of every exact match.
	ExactScore = 100
	// PartialThreshold is the lowest score kept as a partial match.
	PartialThreshold = 50
	// PartialSearchLimit skips the partial search once this many exact matches exist.
	PartialSearchLimit = 5

	presenceWeight = 70
	strengthWeight = 30
)

// Engine classifies candidate drugs as exact or partial substitutes.
type Engine struct {
	store interfaces.DrugStore
	clock clock.Clock
}

// NewEngine creates a matching engine reading candidates from store.
func NewEngine(store interfaces.DrugStore, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	return &Engine{store: store, clock: clk}
}

// FindMatches returns exact matches and, when includePartial is set and fewer than
// PartialSearchLimit exact matches were found, partial matches scoring at least
// PartialThreshold. The result is unordered; callers rank it.
func (e *Engine) FindMatches(ctx context.Context, source entities.Drug, storeID string, includePartial bool) ([]entities.Substitute, error) {
	if len(source.Links) == 0 {
		return []entities.Substitute{}, nil
	}

	candidates, err := e.store.FindCandidates(ctx, interfaces.CandidateQuery{
		StoreID:       storeID,
		ExcludeDrugID: source.ID,
		Status:        entities.StatusActive,
		SaltIDs:       source.SaltIDs(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates for drug %s: %w", source.ID, err)
	}

	now := e.clock.Now()
	results := make([]entities.Substitute, 0, len(candidates))
	exactIDs := make(map[string]struct{})

	for _, c := range candidates {
		if !entities.SameComposition(source.Links, c.Links) {
			continue
		}
		exactIDs[c.ID] = struct{}{}
		results = append(results, toSubstitute(c, entities.MatchExact, ExactScore, now))
	}

	exactCount := len(results)
	if includePartial && exactCount < PartialSearchLimit {
		// Both passes use the same any-overlap filter, so the candidate set is reused.
		for _, c := range candidates {
			if _, exact := exactIDs[c.ID]; exact {
				continue
			}
			score := CalculateMatchScore(source.Links, c.Links)
			if score < PartialThreshold {
				continue
			}
			results = append(results, toSubstitute(c, entities.MatchPartial, score, now))
		}
	}

	logging.Debug("Matched substitutes",
		"drug_id", source.ID,
		"store_id", storeID,
		"candidates", len(candidates),
		"exact", exactCount,
		"partial", len(results)-exactCount)

	return results, nil
}

// CalculateMatchScore weighs salt presence at 70 and strength agreement at 30,
// both relative to the source's salt count. Extra salts in the candidate are
// not penalised.
func CalculateMatchScore(source, candidate []entities.CompositionLink) int {
	if len(source) == 0 {
		return 0
	}

	bySalt := make(map[string]entities.CompositionLink, len(candidate))
	for _, l := range candidate {
		bySalt[l.SaltID] = l
	}

	var matching, exact int
	for _, l := range source {
		other, ok := bySalt[l.SaltID]
		if !ok {
			continue
		}
		matching++
		if l.SameStrength(other) {
			exact++
		}
	}

	n := float64(len(source))
	return int(math.Round(presenceWeight*float64(matching)/n + strengthWeight*float64(exact)/n))
}

// AvailableStock sums quantities of batches that expire after now.
func AvailableStock(batches []entities.Batch, now time.Time) int64 {
	var total int64
	for _, b := range batches {
		if b.ExpiryDate.After(now) {
			total += b.Quantity
		}
	}
	return total
}

// RepresentativePrice is the mean MRP over all batches, rounded to 2 places.
// It is zero when there are no batches.
func RepresentativePrice(batches []entities.Batch) decimal.Decimal {
	if len(batches) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, b := range batches {
		sum = sum.Add(b.MRP)
	}
	return sum.Div(decimal.NewFromInt(int64(len(batches)))).Round(2)
}

func toSubstitute(d entities.Drug, matchType entities.MatchType, score int, now time.Time) entities.Substitute {
	return entities.Substitute{
		DrugID:         d.ID,
		Name:           d.Name,
		Manufacturer:   d.Manufacturer,
		Form:           d.Form,
		Price:          RepresentativePrice(d.Batches),
		AvailableStock: AvailableStock(d.Batches, now),
		MatchType:      matchType,
		MatchScore:     score,
		Composition:    entities.CloneLinks(d.Links),
	}
}
