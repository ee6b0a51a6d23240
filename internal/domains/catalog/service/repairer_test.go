package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-catalog/internal/domains/catalog/model"
)

func TestRepairer_Plan(t *testing.T) {
	categories := []model.Category{
		{ID: "cat-fiction-01", Name: "Fiction"},
		{ID: "cat-history-01", Name: "History"},
		{ID: "short", Name: "Poetry"},
	}

	tests := []struct {
		name        string
		book        model.Book
		wantChanged bool
		wantCats    []string
		wantPrimary string
	}{
		{
			name:        "well formed",
			book:        model.Book{Categories: []string{"Fiction"}, PrimaryCategory: "Fiction"},
			wantChanged: false,
		},
		{
			name:        "missing categories reinitialized from primary",
			book:        model.Book{PrimaryCategory: "History", Drift: model.DriftCategoriesMissing},
			wantChanged: true,
			wantCats:    []string{"History"},
			wantPrimary: "History",
		},
		{
			name:        "malformed categories without primary",
			book:        model.Book{Drift: model.DriftCategoriesMalformed},
			wantChanged: true,
			wantCats:    []string{},
			wantPrimary: "Other",
		},
		{
			name:        "ids replaced and deduplicated",
			book:        model.Book{Categories: []string{"cat-fiction-01", "Fiction", "cat-history-01"}, PrimaryCategory: "Fiction"},
			wantChanged: true,
			wantCats:    []string{"Fiction", "History"},
			wantPrimary: "Fiction",
		},
		{
			name:        "short value is never treated as id",
			book:        model.Book{Categories: []string{"short"}, PrimaryCategory: "short"},
			wantChanged: false,
		},
		{
			name:        "primary outside list",
			book:        model.Book{Categories: []string{"History"}, PrimaryCategory: "Fiction"},
			wantChanged: true,
			wantCats:    []string{"History"},
			wantPrimary: "History",
		},
		{
			name:        "empty list without primary gets fallback",
			book:        model.Book{Categories: []string{}},
			wantChanged: true,
			wantCats:    []string{},
			wantPrimary: "Other",
		},
		{
			name:        "empty list keeps its primary",
			book:        model.Book{Categories: []string{}, PrimaryCategory: "Poetry"},
			wantChanged: false,
		},
	}

	r := NewRepairer(nil, nil, "Other", 8)
	idToName := map[string]string{}
	names := map[string]struct{}{}
	for _, c := range categories {
		idToName[c.ID] = c.Name
		names[c.Name] = struct{}{}
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			patch, changed := r.plan(tt.book, idToName, names, &RepairReport{})
			require.Equal(t, tt.wantChanged, changed)
			if !changed {
				return
			}
			require.NotNil(t, patch.Categories)
			require.NotNil(t, patch.PrimaryCategory)
			assert.Equal(t, tt.wantCats, *patch.Categories)
			assert.Equal(t, tt.wantPrimary, *patch.PrimaryCategory)
		})
	}
}

func TestRepairer_LeavesEmptyListWithPrimaryAlone(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedCategory(model.Category{ID: "c1", Name: "Poetry"})
	f.store.SeedBook(model.Book{ID: "b1", Title: "Leaves of Grass", Categories: []string{}, PrimaryCategory: "Poetry"})
	f.pull(t)

	report, err := f.repair.Repair(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Repaired)
	assert.Zero(t, f.store.Calls("UpdateBook"))
	assert.Equal(t, "Poetry", f.storeBook(t, "b1").PrimaryCategory)

	cached, ok := f.cache.Book("b1")
	require.True(t, ok)
	assert.Equal(t, "Poetry", cached.PrimaryCategory)
}

func TestRepairer_WritesBackAndClearsDrift(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedCategory(model.Category{ID: "c1", Name: "History"})
	f.store.SeedBook(model.Book{ID: "b1", Title: "SPQR", PrimaryCategory: "History", Drift: model.DriftCategoriesMissing})
	f.pull(t)

	report, err := f.repair.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Repaired)
	assert.Equal(t, 1, report.Reinitialized)

	stored := f.storeBook(t, "b1")
	assert.Equal(t, []string{"History"}, stored.Categories)
	assert.Zero(t, stored.Drift)

	cached, _ := f.cache.Book("b1")
	assert.Zero(t, cached.Drift)

	// lượt thứ hai không còn gì để sửa
	again, err := f.repair.Repair(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Repaired)
}

func TestRepairer_WriteFailureKeepsGoing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedCategory(model.Category{ID: "c1", Name: "History"})
	f.store.SeedBook(model.Book{ID: "b1", Title: "A", PrimaryCategory: "History", Drift: model.DriftCategoriesMissing})
	f.store.SeedBook(model.Book{ID: "b2", Title: "B", PrimaryCategory: "History", Drift: model.DriftCategoriesMissing})
	f.pull(t)

	f.store.FailOn(func(op, id string) error {
		if op == "UpdateBook" && id == "b1" {
			return errors.New("rejected")
		}
		return nil
	})

	report, err := f.repair.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Repaired)

	// book lỗi giữ nguyên drift trong cache để lượt sau thử lại
	b1, _ := f.cache.Book("b1")
	assert.True(t, b1.Drift.NeedsReinit())
	b2, _ := f.cache.Book("b2")
	assert.Zero(t, b2.Drift)
}

func TestRepairer_UnconfirmedBookRepairedLocally(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.PutCategory(ctx, model.Category{ID: "c1", Name: "History"}))
	tmp := model.TempIDPrefix + "1"
	require.NoError(t, f.cache.PutBook(ctx, model.Book{ID: tmp, Title: "A", PrimaryCategory: "History", Drift: model.DriftCategoriesMissing}))

	report, err := f.repair.Repair(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Repaired)
	assert.Zero(t, f.store.Calls("UpdateBook"))

	cached, _ := f.cache.Book(tmp)
	assert.Equal(t, []string{"History"}, cached.Categories)
}

func TestRepairer_NeedsCategoryList(t *testing.T) {
	f := newFixture(t)
	f.store.SetUnreachable(true)

	_, err := f.repair.Repair(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoCategories)
	assert.True(t, model.IsTransient(err))
}
