package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DikshantJangra/hoperxpharma-sub002/clock"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"substitutes:d1:*", "substitutes:d1:s1:true", true},
		{"substitutes:d1:*", "substitutes:d10:s1:true", false},
		{"substitutes:*:s1:*", "substitutes:d1:s1:false", true},
		{"substitutes:*:s1:*", "substitutes:d1:s10:false", false},
		{"substitutes:*", "substitutes:", true},
		{"*", "", true},
		{"", "", true},
		{"", "x", false},
		{"a*b*c", "aXXbYYc", true},
		{"a*b*c", "aXXbYY", false},
		{"a?c", "abc", false},
		{"a?c", "a?c", true},
		{"[ab]", "a", false},
		{"**", "anything", true},
	}

	for _, tt := range tests {
		t.Run(tt.pattern+"|"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, MatchPattern(tt.pattern, tt.key))
		})
	}
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "substitutes:d1:s1:true", SubstituteKey("d1", "s1", true))
	assert.Equal(t, "substitutes:d1:s1:false", SubstituteKey("d1", "s1", false))
	assert.NotEqual(t, SubstituteKey("d1", "s1", true), SubstituteKey("d1", "s2", true))

	assert.True(t, MatchPattern(DrugPattern("d1"), SubstituteKey("d1", "s1", true)))
	assert.False(t, MatchPattern(DrugPattern("d1"), SubstituteKey("d2", "s1", true)))
	assert.True(t, MatchPattern(StorePattern("s1"), SubstituteKey("d9", "s1", false)))
	assert.False(t, MatchPattern(StorePattern("s1"), SubstituteKey("d9", "s2", false)))
	assert.True(t, MatchPattern(AllSubstitutesPattern(), SubstituteKey("d9", "s2", false)))
}

func TestNew(t *testing.T) {
	c, err := New(Options{Backend: BackendInProcess})
	require.NoError(t, err)
	_, ok := c.(*InProcess)
	assert.True(t, ok)
	require.NoError(t, c.Close())

	c, err = New(Options{Backend: BackendRedis, RedisURL: "redis://localhost:6379/0", KeyPrefix: "test:"})
	require.NoError(t, err)
	_, ok = c.(*Redis)
	assert.True(t, ok)
	require.NoError(t, c.Close())

	_, err = New(Options{Backend: BackendRedis, RedisURL: "://bad"})
	assert.Error(t, err)

	_, err = New(Options{Backend: "memcached"})
	assert.Error(t, err)
}

func TestRedisGlob(t *testing.T) {
	assert.Equal(t, "app:substitutes:*", redisGlob("app:", "substitutes:*"))
	assert.Equal(t, `p\*:a\?b\[c\]*`, redisGlob("p*:", "a?b[c]*"))
	assert.Equal(t, `substitutes:d\\1:*`, redisGlob("", `substitutes:d\1:*`))
}

func TestInProcess_GetSet(t *testing.T) {
	ctx := context.Background()
	c := NewInProcess(clock.NewMockClock(time.Now()), time.Hour)
	defer c.Close()

	_, found, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)

	value := []byte(`[{"drugId":"d2"}]`)
	require.NoError(t, c.Set(ctx, "k", value, time.Hour))
	value[0] = 'X'

	got, found, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, `[{"drugId":"d2"}]`, string(got), "cache keeps its own copy")

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, c.Delete(ctx, "k"))
	exists, err = c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestInProcess_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	c := NewInProcess(clk, time.Hour)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Hour))

	clk.Advance(59 * time.Minute)
	_, found, _ := c.Get(ctx, "k")
	assert.True(t, found)

	clk.Advance(time.Minute)
	_, found, _ = c.Get(ctx, "k")
	assert.False(t, found, "entry must not be served at or after its expiry")
	assert.Equal(t, 0, c.Len(), "expired entry evicted on read")
}

func TestInProcess_ExistsEvictsExpired(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Now())
	c := NewInProcess(clk, time.Hour)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	clk.Advance(2 * time.Second)

	exists, err := c.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 0, c.Len())
}

func TestInProcess_NoTTL(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Now())
	c := NewInProcess(clk, time.Hour)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), 0))
	clk.Advance(24 * 365 * time.Hour)
	_, found, _ := c.Get(ctx, "k")
	assert.True(t, found)
}

func TestInProcess_Sweep(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Now())
	c := NewInProcess(clk, time.Hour)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "short", []byte("v"), time.Minute))
	require.NoError(t, c.Set(ctx, "long", []byte("v"), time.Hour))

	clk.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.Sweep())
	assert.Equal(t, 1, c.Len())
}

func TestInProcess_BackgroundSweeper(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewMockClock(time.Now())
	c := NewInProcess(clk, 10*time.Millisecond)
	defer c.Close()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))
	clk.Advance(time.Hour)

	assert.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestInProcess_DeletePattern(t *testing.T) {
	ctx := context.Background()
	c := NewInProcess(nil, time.Hour)
	defer c.Close()

	keys := []string{
		SubstituteKey("d1", "s1", true),
		SubstituteKey("d1", "s1", false),
		SubstituteKey("d1", "s2", true),
		SubstituteKey("d2", "s1", true),
		SubstituteKey("d2", "s2", false),
		"other:d1:s1",
	}
	for _, k := range keys {
		require.NoError(t, c.Set(ctx, k, []byte("v"), time.Hour))
	}

	n, err := c.DeletePattern(ctx, DrugPattern("d1"))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = c.DeletePattern(ctx, StorePattern("s1"))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	exists, _ := c.Exists(ctx, SubstituteKey("d2", "s2", false))
	assert.True(t, exists, "other stores untouched")
	exists, _ = c.Exists(ctx, "other:d1:s1")
	assert.True(t, exists, "non-substitute keys untouched")

	require.NoError(t, c.Flush(ctx))
	assert.Equal(t, 0, c.Len())
}

func TestInProcess_CloseIsIdempotent(t *testing.T) {
	c := NewInProcess(nil, time.Millisecond)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.NoError(t, c.Ping(context.Background()))
}
