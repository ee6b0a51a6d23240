package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-catalog/internal/domains/catalog/model"
)

// mapResolver là IdentityResolver tối giản cho test
type mapResolver map[string]string

func (m mapResolver) Resolve(id string) string {
	if v, ok := m[id]; ok {
		return v
	}
	return id
}

func (m mapResolver) Record(ctx context.Context, legacyID, canonicalID string) {
	m[legacyID] = canonicalID
}

func TestFacade_ResolvesLegacyIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SeedBook(model.Book{ID: "canonical-1", Title: "Dune", Categories: []string{"Fiction"}})

	ids := mapResolver{"legacy-1": "canonical-1"}
	f := NewFacade(store, ids)

	b, err := f.GetBook(ctx, "legacy-1")
	require.NoError(t, err)
	assert.Equal(t, "Dune", b.Title)

	title := "Dune (1965)"
	require.NoError(t, f.UpdateBook(ctx, "legacy-1", model.BookPatch{Title: &title}))
	b, err = store.GetBook(ctx, "canonical-1")
	require.NoError(t, err)
	assert.Equal(t, title, b.Title)

	require.NoError(t, f.DeleteBook(ctx, "legacy-1"))
	_, err = store.GetBook(ctx, "canonical-1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestFacade_CreateRecordsLegacyMapping(t *testing.T) {
	ctx := context.Background()
	ids := mapResolver{}
	f := NewFacade(NewMemoryStore(), ids)

	id, err := f.CreateBook(ctx, &model.Book{LegacyID: "old-7", Title: "SICP"})
	require.NoError(t, err)
	assert.Equal(t, id, ids.Resolve("old-7"))

	catID, err := f.CreateCategory(ctx, &model.Category{LegacyID: "old-cat", Name: "CS"})
	require.NoError(t, err)
	assert.Equal(t, catID, ids.Resolve("old-cat"))

	// không có legacy id → không ghi mapping
	_, err = f.CreateBook(ctx, &model.Book{Title: "No legacy"})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestFacade_ReplaceCategoryResolvesID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SeedCategory(model.Category{ID: "c-new", Name: "Fiction", Count: 9})
	f := NewFacade(store, mapResolver{"c-old": "c-new"})

	in := &model.Category{ID: "c-old", Name: "Fiction", Count: 2}
	require.NoError(t, f.ReplaceCategory(ctx, in))
	assert.Equal(t, "c-old", in.ID, "caller's category must not be mutated")

	got, err := store.GetCategory(ctx, "c-new")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Count)
}

func TestFacade_CategoryCounts(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SeedCategory(model.Category{ID: "c1", Name: "Fiction", Count: 5})
	store.SeedCategory(model.Category{ID: "c2", Name: "CS"})
	store.SeedBook(model.Book{Title: "A", Categories: []string{"Fiction"}})
	store.SeedBook(model.Book{Title: "B", Categories: []string{"Fiction", "CS"}})

	counts, ok, err := NewFacade(store, mapResolver{}).CategoryCounts(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, map[string]int{"Fiction": 2, "CS": 1}, counts)
}

// storeWithoutStats che StatsProvider của MemoryStore
type storeWithoutStats struct{ Store }

func TestFacade_CategoryCountsUnsupported(t *testing.T) {
	f := NewFacade(storeWithoutStats{NewMemoryStore()}, mapResolver{})
	counts, ok, err := f.CategoryCounts(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, counts)
}
