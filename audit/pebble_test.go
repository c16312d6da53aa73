package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DikshantJangra/hoperxpharma-sub002/entities"
)

func openPebble(t *testing.T, dir string) *PebbleRepository {
	t.Helper()
	repo, err := NewPebbleRepository(dir)
	require.NoError(t, err)
	return repo
}

func seedEntries(t *testing.T, repo *PebbleRepository, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		action := entities.AuditUpdated
		if i%2 == 0 {
			action = entities.AuditCreated
		}
		require.NoError(t, repo.Append(context.Background(), entities.AuditLogEntry{
			ID:             fmt.Sprintf("e%02d", i),
			DrugID:         fmt.Sprintf("d%d", i%3),
			Action:         action,
			UserID:         "u1",
			NewComposition: []entities.CompositionLink{link("Paracetamol", "500")},
			Timestamp:      start.Add(time.Duration(i) * time.Minute),
		}))
	}
}

func TestPebbleRepository_NewestFirstWithPaging(t *testing.T) {
	repo := openPebble(t, t.TempDir())
	defer repo.Close()
	seedEntries(t, repo, 10)

	entries, total, err := repo.Query(context.Background(), entities.AuditFilter{Limit: 3, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 10, total)
	require.Len(t, entries, 3)
	assert.Equal(t, "e07", entries[0].ID)
	assert.Equal(t, "e06", entries[1].ID)
	assert.Equal(t, "e05", entries[2].ID)
	assert.Equal(t, "Paracetamol 500mg", FormatComposition(entries[0].NewComposition))
}

func TestPebbleRepository_Filters(t *testing.T) {
	repo := openPebble(t, t.TempDir())
	defer repo.Close()
	seedEntries(t, repo, 10)
	ctx := context.Background()

	entries, total, err := repo.Query(ctx, entities.AuditFilter{DrugID: "d0"})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	for _, e := range entries {
		assert.Equal(t, "d0", e.DrugID)
	}

	_, total, err = repo.Query(ctx, entities.AuditFilter{Action: entities.AuditCreated})
	require.NoError(t, err)
	assert.Equal(t, 5, total)

	from := start.Add(3 * time.Minute)
	to := start.Add(5 * time.Minute)
	entries, total, err = repo.Query(ctx, entities.AuditFilter{StartDate: &from, EndDate: &to})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, entries, 3)
	assert.Equal(t, "e05", entries[0].ID)
	assert.Equal(t, "e03", entries[2].ID)
}

func TestPebbleRepository_OrdersTimesBefore1970(t *testing.T) {
	repo := openPebble(t, t.TempDir())
	defer repo.Close()
	ctx := context.Background()

	at := map[string]time.Time{
		"early":  time.Date(1965, 3, 1, 0, 0, 0, 0, time.UTC),
		"eve":    time.Date(1969, 12, 31, 23, 59, 59, 0, time.UTC),
		"epoch":  time.Unix(0, 0).UTC(),
		"recent": start,
	}
	for id, ts := range at {
		require.NoError(t, repo.Append(ctx, entities.AuditLogEntry{
			ID: id, DrugID: "d1", Action: entities.AuditUpdated, Timestamp: ts,
		}))
	}

	ids := func(entries []entities.AuditLogEntry) []string {
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.ID)
		}
		return out
	}

	entries, total, err := repo.Query(ctx, entities.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"recent", "epoch", "eve", "early"}, ids(entries))

	from := time.Date(1969, 1, 1, 0, 0, 0, 0, time.UTC)
	entries, _, err = repo.Query(ctx, entities.AuditFilter{StartDate: &from})
	require.NoError(t, err)
	assert.Equal(t, []string{"recent", "epoch", "eve"}, ids(entries))
}

func TestPebbleRepository_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	repo := openPebble(t, dir)
	seedEntries(t, repo, 4)
	require.NoError(t, repo.Close())

	repo = openPebble(t, dir)
	defer repo.Close()

	require.NoError(t, repo.Ping(context.Background()))
	_, total, err := repo.Query(context.Background(), entities.AuditFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
}

func TestPebbleRepository_CancelledContext(t *testing.T) {
	repo := openPebble(t, t.TempDir())
	defer repo.Close()
	seedEntries(t, repo, 2)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := repo.Query(ctx, entities.AuditFilter{})
	assert.ErrorIs(t, err, context.Canceled)
}
