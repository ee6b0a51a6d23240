package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-catalog/internal/domains/catalog/model"
)

func seedCounts(f *fixture) {
	f.store.SeedCategory(model.Category{ID: "c1", Name: "Fiction", Count: 5})
	f.store.SeedCategory(model.Category{ID: "c2", Name: "History", Count: 5})
	f.store.SeedCategory(model.Category{ID: "c3", Name: "Empty", Count: 0})
	f.store.SeedBook(model.Book{ID: "b1", Title: "A", Categories: []string{"Fiction"}})
	f.store.SeedBook(model.Book{ID: "b2", Title: "B", Categories: []string{"Fiction", "History"}})
}

func TestRecalculator_FullPassIsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedCounts(f)
	f.pull(t)

	first, err := f.recalc.Recalculate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Checked)
	assert.Equal(t, 2, first.Updated)
	assert.Equal(t, 1, first.Unchanged)
	assert.Equal(t, 2, f.storeCategory(t, "Fiction").Count)
	assert.Equal(t, 1, f.storeCategory(t, "History").Count)

	writes := f.store.Calls("UpdateCategory")

	second, err := f.recalc.Recalculate(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, second.Updated)
	assert.Equal(t, 3, second.Unchanged)
	assert.Equal(t, writes, f.store.Calls("UpdateCategory"), "unchanged counts must not be written")
}

func TestRecalculator_NamedTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedCounts(f)
	f.pull(t)

	report, err := f.recalc.Recalculate(ctx, []string{"History", "History", "Ghost"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, []string{"Ghost"}, report.Skipped)

	// Fiction không nằm trong danh sách → không bị đụng tới
	assert.Equal(t, 5, f.storeCategory(t, "Fiction").Count)
}

func TestRecalculator_ContinuesAfterFailedCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedCounts(f)
	f.pull(t)

	f.store.FailOn(func(op, id string) error {
		if id == "c1" && (op == "UpdateCategory" || op == "ReplaceCategory") {
			return model.Transient(errors.New("timeout"))
		}
		return nil
	})

	report, err := f.recalc.Recalculate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Updated)

	assert.Equal(t, 5, f.storeCategory(t, "Fiction").Count)
	assert.Equal(t, 1, f.storeCategory(t, "History").Count)

	// cache chưa nhận giá trị mới của category lỗi → lượt sau thử lại
	cached, _ := f.cache.Category("c1")
	assert.Equal(t, 5, cached.Count)

	f.store.FailOn(nil)
	retry, err := f.recalc.Recalculate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Updated)
	assert.Equal(t, 2, f.storeCategory(t, "Fiction").Count)
}

func TestRecalculator_FallsBackToReplace(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedCounts(f)
	f.pull(t)

	f.store.FailOn(func(op, id string) error {
		if op == "UpdateCategory" && id == "c1" {
			return errors.New("partial update rejected")
		}
		return nil
	})

	report, err := f.recalc.Recalculate(ctx, []string{"Fiction"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 1, report.Replaced)
	assert.Equal(t, 2, f.storeCategory(t, "Fiction").Count)
	assert.Equal(t, 1, f.store.Calls("ReplaceCategory"))
}

func TestRecalculator_TemporaryCategoryStaysLocal(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.cache.PutCategory(ctx, model.Category{ID: model.TempIDPrefix + "x", Name: "Draft"}))
	require.NoError(t, f.cache.PutBook(ctx, model.Book{ID: "b1", Title: "A", Categories: []string{"Draft"}}))

	report, err := f.recalc.Recalculate(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Updated)
	assert.Zero(t, f.store.Calls("UpdateCategory"))

	cached, ok := f.cache.CategoryByName("Draft")
	require.True(t, ok)
	assert.Equal(t, 1, cached.Count)
}

func TestRecalculator_UsesServerStatistics(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedCounts(f)
	f.pull(t)
	recalc := NewRecalculator(f.repo, f.cache, 2, true)

	report, err := recalc.Recalculate(ctx, nil)
	require.NoError(t, err)
	assert.True(t, report.ServerStats)
	assert.Equal(t, 1, f.store.Calls("CategoryStats"))
	assert.Equal(t, 2, f.storeCategory(t, "Fiction").Count)

	// recalculation theo tên luôn đếm trong cache
	named, err := recalc.Recalculate(ctx, []string{"Fiction"})
	require.NoError(t, err)
	assert.False(t, named.ServerStats)
	assert.Equal(t, 1, f.store.Calls("CategoryStats"))
}

func TestRecalculator_ServerStatisticsUnavailable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedCounts(f)
	f.pull(t)
	f.store.FailOn(func(op, id string) error {
		if op == "CategoryStats" {
			return model.Transient(errors.New("timeout"))
		}
		return nil
	})

	report, err := NewRecalculator(f.repo, f.cache, 2, true).Recalculate(ctx, nil)
	require.NoError(t, err)
	assert.False(t, report.ServerStats)
	assert.Equal(t, 2, report.Updated)
}
