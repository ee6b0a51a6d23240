package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-catalog/internal/domains/catalog/identity"
	"household-catalog/internal/domains/catalog/localcache"
	"household-catalog/internal/domains/catalog/model"
)

func TestSynchronizer_ReplacesCacheAndRecordsLegacyIDs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.PutBook(ctx, model.Book{ID: "stale", Title: "Gone"}))

	f.store.SeedCategory(model.Category{ID: "c1", LegacyID: "old-cat", Name: "Fiction"})
	f.store.SeedBook(model.Book{ID: "b1", LegacyID: "old-book", Title: "Dune", Categories: []string{"Fiction"}})

	report, err := f.sync.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Books)
	assert.Equal(t, 1, report.Categories)
	assert.Equal(t, 2, report.Mapped)

	_, ok := f.cache.Book("stale")
	assert.False(t, ok, "remote wins")
	_, ok = f.cache.Book("b1")
	assert.True(t, ok)

	assert.Equal(t, "b1", f.ids.Resolve("old-book"))
	assert.Equal(t, "c1", f.ids.Resolve("old-cat"))
}

func TestSynchronizer_FetchFailureLeavesCacheUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.Replace(ctx,
		[]model.Book{{ID: "b1", Title: "Local"}},
		[]model.Category{{ID: "c1", Name: "Fiction", Count: 1}},
	))
	f.store.SetUnreachable(true)

	report, err := f.sync.Sync(ctx)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, model.IsTransient(err))

	assert.Len(t, f.cache.Books(), 1)
	assert.Len(t, f.cache.Categories(), 1)
}

func TestSynchronizer_KeepsUnconfirmedRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	tmpBook := model.TempIDPrefix + "book"
	require.NoError(t, f.cache.PutBook(ctx, model.Book{ID: tmpBook, Title: "Offline"}))
	require.NoError(t, f.cache.PutCategory(ctx, model.Category{ID: model.TempIDPrefix + "a", Name: "Travel"}))
	require.NoError(t, f.cache.PutCategory(ctx, model.Category{ID: model.TempIDPrefix + "b", Name: "Fiction"}))

	f.store.SeedCategory(model.Category{ID: "c1", Name: "Fiction"})
	f.store.SeedBook(model.Book{ID: "b1", Title: "Dune"})

	_, err := f.sync.Sync(ctx)
	require.NoError(t, err)

	_, ok := f.cache.Book(tmpBook)
	assert.True(t, ok)
	assert.Len(t, f.cache.Books(), 2)

	travel, ok := f.cache.CategoryByName("Travel")
	require.True(t, ok)
	assert.True(t, model.IsTemporary(travel.ID))

	// tên đã có trên store → bản remote thắng
	fiction, ok := f.cache.CategoryByName("Fiction")
	require.True(t, ok)
	assert.Equal(t, "c1", fiction.ID)
	assert.Len(t, f.cache.Categories(), 2)
}

func TestSynchronizer_SnapshotSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedBook(model.Book{ID: "b1", LegacyID: "old-1", Title: "Dune"})
	f.pull(t)

	// process mới trên cùng backend đọc lại được snapshot
	snap := Snapshot{
		Cache:   localcache.New(f.backend),
		IDs:     identity.NewMapper(f.backend),
		Pending: NewPendingWriteQueue(f.backend, 3),
	}
	require.NoError(t, snap.Load(ctx))

	_, ok := snap.Cache.Book("b1")
	assert.True(t, ok)
	assert.Equal(t, "b1", snap.IDs.Resolve("old-1"))
	assert.Zero(t, snap.Pending.Len())
}
