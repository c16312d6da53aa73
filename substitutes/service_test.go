package substitutes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DikshantJangra/hoperxpharma-sub002/apperrors"
	"github.com/DikshantJangra/hoperxpharma-sub002/cache"
	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
	"github.com/DikshantJangra/hoperxpharma-sub002/data"
	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
	"github.com/DikshantJangra/hoperxpharma-sub002/interfaces"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// countingStore counts calls reaching the underlying store.
type countingStore struct {
	interfaces.DrugStore
	gets, finds int
}

func (c *countingStore) GetDrug(ctx context.Context, id string) (entities.Drug, error) {
	c.gets++
	return c.DrugStore.GetDrug(ctx, id)
}

func (c *countingStore) FindCandidates(ctx context.Context, q interfaces.CandidateQuery) ([]entities.Drug, error) {
	c.finds++
	return c.DrugStore.FindCandidates(ctx, q)
}

// brokenCache fails every operation.
type brokenCache struct{}

var errCacheDown = errors.New("cache down")

func (brokenCache) Get(context.Context, string) ([]byte, bool, error) { return nil, false, errCacheDown }
func (brokenCache) Set(context.Context, string, []byte, time.Duration) error {
	return errCacheDown
}
func (brokenCache) Delete(context.Context, string) error { return errCacheDown }
func (brokenCache) DeletePattern(context.Context, string) (int, error) {
	return 0, errCacheDown
}
func (brokenCache) Exists(context.Context, string) (bool, error) { return false, errCacheDown }
func (brokenCache) Flush(context.Context) error                  { return errCacheDown }
func (brokenCache) Ping(context.Context) error                   { return errCacheDown }
func (brokenCache) Close() error                                 { return nil }

func link(saltID, value string) entities.CompositionLink {
	v := decimal.RequireFromString(value)
	return entities.CompositionLink{SaltID: saltID, SaltName: saltID, StrengthValue: &v, StrengthUnit: "mg"}
}

func batch(qty int64, mrp string, expiry time.Time) entities.Batch {
	return entities.Batch{Quantity: qty, MRP: decimal.RequireFromString(mrp), ExpiryDate: expiry}
}

type fixture struct {
	svc   *Service
	store *countingStore
	repo  *data.DrugContainer
	cache *cache.InProcess
	clock *clock.MockClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clk := clock.NewMockClock(now)
	repo := data.NewDrugContainer(clk)
	fresh := now.AddDate(1, 0, 0)
	repo.LoadData([]entities.Drug{
		{ID: "src", Name: "Crocin", Manufacturer: "GSK", StoreID: "s1", Status: entities.StatusActive,
			Links: []entities.CompositionLink{link("para", "500")}},
		{ID: "x", Name: "Calpol", Manufacturer: "GSK", StoreID: "s1", Status: entities.StatusActive,
			Links: []entities.CompositionLink{link("para", "500")}, Batches: []entities.Batch{batch(0, "30", fresh)}},
		{ID: "y", Name: "Dolo", Manufacturer: "Micro", StoreID: "s1", Status: entities.StatusActive,
			Links: []entities.CompositionLink{link("para", "500")}, Batches: []entities.Batch{batch(40, "25", fresh)}},
		{ID: "z", Name: "Pacimol", Manufacturer: "Ipca", StoreID: "s1", Status: entities.StatusActive,
			Links: []entities.CompositionLink{link("para", "650")}, Batches: []entities.Batch{batch(100, "15", fresh)}},
		{ID: "other-store", Name: "Calpol", StoreID: "s2", Status: entities.StatusActive,
			Links: []entities.CompositionLink{link("para", "500")}},
		{ID: "s2-src", Name: "Crocin", StoreID: "s2", Status: entities.StatusActive,
			Links: []entities.CompositionLink{link("para", "500")}},
		{ID: "empty", Name: "Unknown", StoreID: "s1", Status: entities.StatusSaltPending},
	}, nil)

	store := &countingStore{DrugStore: repo}
	c := cache.NewInProcess(clk, time.Hour)
	t.Cleanup(func() { _ = c.Close() })

	return &fixture{
		svc:   NewService(store, c, clk, time.Hour),
		store: store,
		repo:  repo,
		cache: c,
		clock: clk,
	}
}

func ids(subs []entities.Substitute) []string {
	out := make([]string, len(subs))
	for i, s := range subs {
		out[i] = s.DrugID
	}
	return out
}

func TestFindSubstitutes_RanksExactThenPartial(t *testing.T) {
	f := newFixture(t)

	subs, err := f.svc.FindSubstitutes(context.Background(), "src", "s1", true)
	require.NoError(t, err)

	// y is in stock, x is not; z is a partial match despite the best price and stock
	assert.Equal(t, []string{"y", "x", "z"}, ids(subs))
	assert.Equal(t, entities.MatchPartial, subs[2].MatchType)
	assert.Equal(t, 70, subs[2].MatchScore)
	assert.Equal(t, int64(40), subs[0].AvailableStock)
	assert.Equal(t, "25", subs[0].Price.String())
}

func TestFindSubstitutes_ExactOnly(t *testing.T) {
	f := newFixture(t)

	subs, err := f.svc.FindSubstitutes(context.Background(), "src", "s1", false)
	require.NoError(t, err)
	assert.Equal(t, []string{"y", "x"}, ids(subs))
}

func TestFindSubstitutes_CacheHitSkipsStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.FindSubstitutes(ctx, "src", "s1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.gets)
	assert.Equal(t, 1, f.store.finds)

	second, err := f.svc.FindSubstitutes(ctx, "src", "s1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.gets, "hit must not load the source drug")
	assert.Equal(t, 1, f.store.finds, "hit must not query candidates")
	assert.Equal(t, ids(first), ids(second))
	assert.True(t, first[0].Price.Equal(second[0].Price))

	exists, _ := f.cache.Exists(ctx, cache.SubstituteKey("src", "s1", true))
	assert.True(t, exists)
}

func TestFindSubstitutes_KeyIncludesEveryInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.FindSubstitutes(ctx, "src", "s1", true)
	require.NoError(t, err)
	_, err = f.svc.FindSubstitutes(ctx, "src", "s1", false)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.finds, "includePartial is part of the key")

	subs, err := f.svc.FindSubstitutes(ctx, "s2-src", "s2", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"other-store"}, ids(subs), "stores are isolated")
}

func TestFindSubstitutes_TTLExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.FindSubstitutes(ctx, "src", "s1", true)
	require.NoError(t, err)

	f.clock.Advance(59 * time.Minute)
	_, err = f.svc.FindSubstitutes(ctx, "src", "s1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.store.finds)

	f.clock.Advance(2 * time.Minute)
	_, err = f.svc.FindSubstitutes(ctx, "src", "s1", true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.finds, "expired entry recomputed")
}

func TestFindSubstitutes_EmptyComposition(t *testing.T) {
	f := newFixture(t)

	subs, err := f.svc.FindSubstitutes(context.Background(), "empty", "s1", true)
	require.NoError(t, err)
	assert.NotNil(t, subs)
	assert.Empty(t, subs)
	assert.Equal(t, 0, f.store.finds)
}

func TestFindSubstitutes_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.FindSubstitutes(ctx, "", "s1", true)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = f.svc.FindSubstitutes(ctx, "src", "", true)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	_, err = f.svc.FindSubstitutes(ctx, "missing", "s1", true)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	require.NoError(t, f.repo.SoftDelete(ctx, "src", now))
	_, err = f.svc.FindSubstitutes(ctx, "src", "s1", true)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestIDsCannotEscapeTheirKeySegment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.FindSubstitutes(ctx, "src", "s1", true)
	require.NoError(t, err)

	tests := []struct {
		name string
		call func() error
	}{
		{"drug id with delimiter", func() error { _, err := f.svc.FindSubstitutes(ctx, "src:s1", "s1", true); return err }},
		{"store id with delimiter", func() error { _, err := f.svc.FindSubstitutes(ctx, "src", "s1:true", true); return err }},
		{"glob drug id", func() error { return f.svc.InvalidateCache(ctx, "*") }},
		{"glob store id", func() error { return f.svc.InvalidateStoreCache(ctx, "*") }},
		{"stats store id", func() error { _, err := f.svc.Stats(ctx, "s1:x"); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), apperrors.ErrInvalidArgument)
		})
	}

	exists, err := f.cache.Exists(ctx, cache.SubstituteKey("src", "s1", true))
	require.NoError(t, err)
	assert.True(t, exists, "rejected invalidations must not touch other keys")
}

func TestFindSubstitutes_CacheFailureDegrades(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, brokenCache{}, f.clock, 0)

	subs, err := svc.FindSubstitutes(context.Background(), "src", "s1", true)
	require.NoError(t, err)
	assert.Len(t, subs, 3)
}

func TestFindSubstitutes_UndecodableEntryRecomputed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.cache.Set(ctx, cache.SubstituteKey("src", "s1", true), []byte("{not json"), time.Hour))
	subs, err := f.svc.FindSubstitutes(ctx, "src", "s1", true)
	require.NoError(t, err)
	assert.Len(t, subs, 3)
	assert.Equal(t, 1, f.store.finds)
}

func TestInvalidateCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.svc.FindSubstitutes(ctx, "src", "s1", true)
	_, _ = f.svc.FindSubstitutes(ctx, "src", "s1", false)
	_, _ = f.svc.FindSubstitutes(ctx, "x", "s1", true)

	require.NoError(t, f.svc.InvalidateCache(ctx, "src"))
	assert.Equal(t, 1, f.cache.Len(), "only the other drug's entry remains")

	assert.ErrorIs(t, f.svc.InvalidateCache(ctx, ""), apperrors.ErrInvalidArgument)
}

func TestInvalidateStoreCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, _ = f.svc.FindSubstitutes(ctx, "src", "s1", true)
	_, _ = f.svc.FindSubstitutes(ctx, "s2-src", "s2", true)

	require.NoError(t, f.svc.InvalidateStoreCache(ctx, "s1"))
	exists, _ := f.cache.Exists(ctx, cache.SubstituteKey("s2-src", "s2", true))
	assert.True(t, exists)
	exists, _ = f.cache.Exists(ctx, cache.SubstituteKey("src", "s1", true))
	assert.False(t, exists)

	n, err := f.svc.InvalidateAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestInvalidate_CacheError(t *testing.T) {
	f := newFixture(t)
	svc := NewService(f.store, brokenCache{}, f.clock, 0)

	err := svc.InvalidateCache(context.Background(), "src")
	assert.ErrorIs(t, err, apperrors.ErrExternalService)
	assert.ErrorIs(t, err, errCacheDown)
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	stats, err := f.svc.Stats(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalActiveDrugs)

	_, err = f.svc.Stats(context.Background(), "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}
