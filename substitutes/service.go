// Package substitutes answers "what can replace this drug in this store" by
// combining the matching engine, ranking and the substitute cache.
package substitutes

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/DikshantJangra/hoperxpharma-sub002/apperrors"
	"github.com/DikshantJangra/hoperxpharma-sub002/cache"
	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
	"github.com/DikshantJangra/hoperxpharma-sub002/logging"
	"github.com/DikshantJangra/hoperxpharma-sub002/matching"
	"github.com/DikshantJangra/hoperxpharma-sub002/metrics"
	"github.com/DikshantJangra/hoperxpharma-sub002/ranking"
	"github.com/DikshantJangra/hoperxpharma-sub002/tracing"
	"github.com/DikshantJangra/hoperxpharma-sub002/validation"
)

// DefaultTTL is how long a computed substitute list is served from cache.
const DefaultTTL = time.Hour

// Compile-time check to ensure Service implements SubstituteFinder
var _ interfaces.SubstituteFinder = (*Service)(nil)

var idValidator = validation.NewCompositionValidator()

// checkID rejects ids that are empty or could spill into another segment of a
// cache key or pattern.
func checkID(name, id string) error {
	if id == "" {
		return apperrors.InvalidArgument(name + " is required")
	}
	if err := idValidator.ValidateID(id); err != nil {
		return apperrors.InvalidArgument(name + ": " + err.Error())
	}
	return nil
}

// Service is the substitute lookup orchestrator. Concurrent misses for the same
// key each compute and store the result; the last write wins.
type Service struct {
	store  interfaces.DrugStore
	cache  interfaces.Cache
	engine *matching.Engine
	ttl    time.Duration
}

// NewService wires the orchestrator. A non-positive ttl uses DefaultTTL.
func NewService(store interfaces.DrugStore, c interfaces.Cache, clk clock.Clock, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{
		store:  store,
		cache:  c,
		engine: matching.NewEngine(store, clk),
		ttl:    ttl,
	}
}

// FindSubstitutes returns ranked substitutes for drugID in storeID, serving from
// cache when possible. Cache failures degrade to a recomputation.
func (s *Service) FindSubstitutes(ctx context.Context, drugID, storeID string, includePartial bool) (result []entities.Substitute, err error) {
	if err := checkID("drugId", drugID); err != nil {
		return nil, err
	}
	if err := checkID("storeId", storeID); err != nil {
		return nil, err
	}

	ctx, end := tracing.StartSpan(ctx, "substitutes.find",
		attribute.String("drug_id", drugID),
		attribute.String("store_id", storeID),
		attribute.Bool("include_partial", includePartial))
	defer func() { end(err) }()

	start := time.Now()
	key := cache.SubstituteKey(drugID, storeID, includePartial)

	if cached, ok := s.fromCache(ctx, key); ok {
		tracing.SetAttributes(ctx, attribute.Bool("cache_hit", true), attribute.Int("result_count", len(cached)))
		metrics.SubstituteLookupDuration.WithLabelValues("hit").Observe(time.Since(start).Seconds())
		return cached, nil
	}

	source, err := s.store.GetDrug(ctx, drugID)
	if err != nil {
		if _, ok := apperrors.As(err); !ok {
			err = apperrors.Database("failed to load drug", err)
		}
		return nil, err
	}
	if source.IsDeleted() {
		return nil, apperrors.NotFound(apperrors.CodeDrugNotFound, fmt.Sprintf("drug %s not found", drugID))
	}

	matches, err := s.engine.FindMatches(ctx, source, storeID, includePartial)
	if err != nil {
		return nil, apperrors.Database("failed to find substitutes", err)
	}
	result = ranking.Rank(matches, source)

	for _, sub := range result {
		metrics.SubstituteMatches.WithLabelValues(string(sub.MatchType)).Inc()
	}

	s.toCache(ctx, key, result)

	tracing.SetAttributes(ctx, attribute.Bool("cache_hit", false), attribute.Int("result_count", len(result)))
	metrics.SubstituteLookupDuration.WithLabelValues("miss").Observe(time.Since(start).Seconds())
	return result, nil
}

func (s *Service) fromCache(ctx context.Context, key string) ([]entities.Substitute, bool) {
	raw, found, err := s.cache.Get(ctx, key)
	if err != nil {
		logging.Warn("Substitute cache read failed, recomputing", "key", key, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var subs []entities.Substitute
	if err := json.Unmarshal(raw, &subs); err != nil {
		logging.Warn("Discarding undecodable cache entry", "key", key, "error", err)
		return nil, false
	}
	if subs == nil {
		subs = []entities.Substitute{}
	}
	return subs, true
}

func (s *Service) toCache(ctx context.Context, key string, subs []entities.Substitute) {
	raw, err := json.Marshal(subs)
	if err != nil {
		logging.Warn("Failed to encode substitutes for cache", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
		logging.Warn("Substitute cache write failed", "key", key, "error", err)
	}
}

// InvalidateCache drops every cached lookup whose source is drugID.
func (s *Service) InvalidateCache(ctx context.Context, drugID string) error {
	if err := checkID("drugId", drugID); err != nil {
		return err
	}
	n, err := s.cache.DeletePattern(ctx, cache.DrugPattern(drugID))
	if err != nil {
		return apperrors.External(fmt.Sprintf("failed to invalidate substitutes of drug %s", drugID), err)
	}
	logging.Debug("Invalidated drug substitutes", "drug_id", drugID, "keys", n)
	return nil
}

// InvalidateStoreCache drops every cached lookup in storeID.
func (s *Service) InvalidateStoreCache(ctx context.Context, storeID string) error {
	if err := checkID("storeId", storeID); err != nil {
		return err
	}
	n, err := s.cache.DeletePattern(ctx, cache.StorePattern(storeID))
	if err != nil {
		return apperrors.External(fmt.Sprintf("failed to invalidate substitutes of store %s", storeID), err)
	}
	logging.Debug("Invalidated store substitutes", "store_id", storeID, "keys", n)
	return nil
}

// InvalidateAll drops every cached lookup and returns how many were removed.
func (s *Service) InvalidateAll(ctx context.Context) (int, error) {
	n, err := s.cache.DeletePattern(ctx, cache.AllSubstitutesPattern())
	if err != nil {
		return n, apperrors.External("failed to invalidate substitutes", err)
	}
	return n, nil
}

// Stats reports the number of active, non-deleted drugs in a store.
func (s *Service) Stats(ctx context.Context, storeID string) (interfaces.SubstituteStats, error) {
	if err := checkID("storeId", storeID); err != nil {
		return interfaces.SubstituteStats{}, err
	}
	n, err := s.store.CountActive(ctx, storeID)
	if err != nil {
		return interfaces.SubstituteStats{}, apperrors.Database("failed to count active drugs", err)
	}
	return interfaces.SubstituteStats{TotalActiveDrugs: n}, nil
}
