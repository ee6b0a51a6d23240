package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"household-catalog/internal/domains/catalog/model"
)

func TestCoordinator_AddValidates(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Add(context.Background(), model.BookInput{Title: ""})
	assert.ErrorIs(t, err, model.ErrInvalidBook)
	assert.Empty(t, f.cache.Books())
}

func TestCoordinator_AddDropsReservedCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	res, err := f.coord.Add(ctx, model.BookInput{Title: "Misc", Categories: []string{"uncategorized", "Essays"}})
	require.NoError(t, err)
	f.dispatcher.Wait()

	assert.Equal(t, []string{"Essays"}, res.Book.Categories)
	assert.Equal(t, "Essays", res.Book.PrimaryCategory)

	categories, err := f.store.ListCategories(ctx)
	require.NoError(t, err)
	require.Len(t, categories, 1)
	assert.Equal(t, "Essays", categories[0].Name)
}

func TestCoordinator_AddWithoutCategoriesUsesFallbackPrimary(t *testing.T) {
	f := newFixture(t)

	res, err := f.coord.Add(context.Background(), model.BookInput{Title: "Loose"})
	require.NoError(t, err)
	assert.Empty(t, res.Book.Categories)
	assert.Equal(t, "Other", res.Book.PrimaryCategory)
	assert.Empty(t, res.Recalc)
}

func TestCoordinator_AddWhileStoreDownIsQueuedAndFlushed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SetUnreachable(true)

	res, err := f.coord.Add(ctx, model.BookInput{Title: "Offline", Categories: []string{"Fiction"}})
	require.NoError(t, err)
	f.dispatcher.Wait()

	assert.True(t, res.Partial())
	assert.True(t, res.Queued)
	assert.True(t, strings.HasPrefix(res.ID, model.TempIDPrefix))
	assert.Contains(t, res.States, model.StateRemoteFailed)
	_, ok := f.cache.Book(res.ID)
	assert.True(t, ok)

	// category cũng được tạo tạm trong cache và chờ flush
	fiction, ok := f.cache.CategoryByName("Fiction")
	require.True(t, ok)
	assert.True(t, model.IsTemporary(fiction.ID))
	assert.Equal(t, 1, fiction.Count)
	assert.Equal(t, 2, f.pending.Len())

	f.store.SetUnreachable(false)
	flush, err := f.coord.FlushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, flush.Applied)
	assert.Zero(t, flush.Remaining)

	canonical := f.ids.Resolve(res.ID)
	require.NotEqual(t, res.ID, canonical)
	_, ok = f.cache.Book(canonical)
	assert.True(t, ok)
	assert.Equal(t, "Offline", f.storeBook(t, canonical).Title)

	stored := f.storeCategory(t, "Fiction")
	assert.Equal(t, 1, stored.Count)
	cached, ok := f.cache.CategoryByName("Fiction")
	require.True(t, ok)
	assert.Equal(t, stored.ID, cached.ID)
}

func TestCoordinator_UpdateThenDeleteOfUnconfirmedBook(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SetUnreachable(true)

	added, err := f.coord.Add(ctx, model.BookInput{Title: "Draft"})
	require.NoError(t, err)

	title := "Draft v2"
	upd, err := f.coord.Update(ctx, added.ID, model.BookPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, model.RemoteSkipped, upd.Remote)
	assert.Equal(t, "Draft v2", upd.Book.Title)

	del, err := f.coord.Delete(ctx, added.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RemoteSkipped, del.Remote)

	f.store.SetUnreachable(false)
	flush, err := f.coord.FlushPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, flush.Superseded)

	books, err := f.store.ListBooks(ctx)
	require.NoError(t, err)
	assert.Empty(t, books)
}

func TestCoordinator_UpdateCategoriesRecalculatesBothSides(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedCategory(model.Category{ID: "cat-fiction", Name: "Fiction", Count: 1})
	f.store.SeedBook(model.Book{ID: "b1", Title: "Dune", Categories: []string{"Fiction"}, PrimaryCategory: "Fiction"})
	f.pull(t)
	f.ids.Record(ctx, "legacy-b1", "b1")

	cats := []string{" History "}
	res, err := f.coord.Update(ctx, "legacy-b1", model.BookPatch{Categories: &cats})
	require.NoError(t, err)
	f.dispatcher.Wait()

	assert.Equal(t, "b1", res.ID)
	assert.Equal(t, []string{"Fiction", "History"}, res.Recalc)
	assert.Equal(t, "History", res.Book.PrimaryCategory)

	stored := f.storeBook(t, "b1")
	assert.Equal(t, []string{"History"}, stored.Categories)
	assert.Equal(t, 0, f.storeCategory(t, "Fiction").Count)
	assert.Equal(t, 1, f.storeCategory(t, "History").Count)
}

func TestCoordinator_UpdateWaitsBehindQueuedWrite(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedCategory(model.Category{ID: "cat-fiction", Name: "Fiction", Count: 1})
	f.store.SeedBook(model.Book{ID: "b1", Title: "Dune", Categories: []string{"Fiction"}, PrimaryCategory: "Fiction"})
	f.pull(t)

	// 1. Store down: edit vào queue
	f.store.SetUnreachable(true)
	offline := "Offline edit"
	res, err := f.coord.Update(ctx, "b1", model.BookPatch{Title: &offline})
	require.NoError(t, err)
	require.True(t, res.Queued)

	// 2. Store lên lại: edit mới xếp sau edit cũ
	f.store.SetUnreachable(false)
	latest := "Latest edit"
	cats := []string{"History"}
	res, err = f.coord.Update(ctx, "b1", model.BookPatch{Title: &latest, Categories: &cats})
	require.NoError(t, err)
	f.dispatcher.Wait()

	assert.Equal(t, model.RemoteQueued, res.Remote)
	assert.True(t, res.Queued)
	assert.False(t, res.Partial())
	assert.Equal(t, 2, f.pending.Len())
	assert.Equal(t, "Dune", f.storeBook(t, "b1").Title)

	// 3. Reconcile: flush theo thứ tự, write mới nhất thắng
	_, err = f.reconciler.Run(ctx)
	require.NoError(t, err)
	f.dispatcher.Wait()

	stored := f.storeBook(t, "b1")
	assert.Equal(t, "Latest edit", stored.Title)
	assert.Equal(t, []string{"History"}, stored.Categories)

	cached, ok := f.cache.Book("b1")
	require.True(t, ok)
	assert.Equal(t, "Latest edit", cached.Title)
	assert.Equal(t, []string{"History"}, cached.Categories)

	assert.Zero(t, f.pending.Len())
	assert.Equal(t, 0, f.storeCategory(t, "Fiction").Count)
	assert.Equal(t, 1, f.storeCategory(t, "History").Count)
}

func TestCoordinator_UpdateOfOtherBookIsNotHeldBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedBook(model.Book{ID: "b1", Title: "Dune"})
	f.store.SeedBook(model.Book{ID: "b2", Title: "Emma"})
	f.pull(t)

	f.store.SetUnreachable(true)
	offline := "Offline edit"
	_, err := f.coord.Update(ctx, "b1", model.BookPatch{Title: &offline})
	require.NoError(t, err)
	f.store.SetUnreachable(false)

	title := "Emma (annotated)"
	res, err := f.coord.Update(ctx, "b2", model.BookPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, model.RemoteAcked, res.Remote)
	assert.Equal(t, "Emma (annotated)", f.storeBook(t, "b2").Title)
	assert.Equal(t, 1, f.pending.Len())
}

func TestCoordinator_DeleteSupersedesQueuedUpdates(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedBook(model.Book{ID: "b1", Title: "Dune"})
	f.pull(t)
	f.ids.Record(ctx, "legacy-b1", "b1")

	f.store.SetUnreachable(true)
	offline := "Offline edit"
	_, err := f.coord.Update(ctx, "legacy-b1", model.BookPatch{Title: &offline})
	require.NoError(t, err)
	require.Equal(t, 1, f.pending.Len())
	f.store.SetUnreachable(false)

	res, err := f.coord.Delete(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.RemoteAcked, res.Remote)
	assert.Zero(t, f.pending.Len())

	_, err = f.store.GetBook(ctx, "b1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCoordinator_UpdateWithoutCategoryChangeSkipsRecalc(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedBook(model.Book{ID: "b1", Title: "Dune", Categories: []string{"Fiction"}})
	f.pull(t)

	title := "Dune Messiah"
	res, err := f.coord.Update(ctx, "b1", model.BookPatch{Title: &title})
	require.NoError(t, err)
	assert.Empty(t, res.Recalc)
	assert.Equal(t, "Dune Messiah", f.storeBook(t, "b1").Title)

	_, err = f.coord.Update(ctx, "missing", model.BookPatch{Title: &title})
	assert.ErrorIs(t, err, model.ErrBookNotFound)
}

func TestCoordinator_DeleteUnknownBook(t *testing.T) {
	f := newFixture(t)

	_, err := f.coord.Delete(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrBookNotFound)

	_, err = f.coord.Delete(context.Background(), model.TempIDPrefix+"nope")
	assert.ErrorIs(t, err, model.ErrBookNotFound)
}

func TestCoordinator_DeleteAlreadyGoneRemotely(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedBook(model.Book{ID: "b1", Title: "Dune"})
	f.pull(t)
	require.NoError(t, f.store.DeleteBook(ctx, "b1"))

	res, err := f.coord.Delete(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, model.RemoteAcked, res.Remote)
}

func TestCoordinator_LendAndReturn(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedBook(model.Book{ID: "b1", Title: "Dune", BorrowStatus: model.BorrowAvailable})
	f.pull(t)

	lentAt := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	returnedAt := lentAt.Add(72 * time.Hour)

	_, err := f.coord.Lend(ctx, "b1", "  ", lentAt)
	assert.ErrorIs(t, err, model.ErrInvalidBook)

	res, err := f.coord.Lend(ctx, "b1", "Alice", lentAt)
	require.NoError(t, err)
	assert.Equal(t, model.BorrowLent, res.Book.BorrowStatus)
	assert.Equal(t, "Alice", res.Book.Borrower)
	require.Len(t, res.Book.BorrowHistory, 1)
	assert.Nil(t, res.Book.BorrowHistory[0].ReturnDate)

	_, err = f.coord.Lend(ctx, "b1", "Bob", lentAt)
	assert.ErrorIs(t, err, model.ErrAlreadyLent)

	res, err = f.coord.Return(ctx, "b1", returnedAt)
	require.NoError(t, err)
	assert.Equal(t, model.BorrowAvailable, res.Book.BorrowStatus)
	assert.Empty(t, res.Book.Borrower)
	require.Len(t, res.Book.BorrowHistory, 1)
	require.NotNil(t, res.Book.BorrowHistory[0].ReturnDate)
	assert.True(t, returnedAt.Equal(*res.Book.BorrowHistory[0].ReturnDate))

	stored := f.storeBook(t, "b1")
	assert.Equal(t, model.BorrowAvailable, stored.BorrowStatus)
	assert.Len(t, stored.BorrowHistory, 1)

	_, err = f.coord.Return(ctx, "b1", returnedAt)
	assert.ErrorIs(t, err, model.ErrNotLent)

	_, err = f.coord.Lend(ctx, "missing", "Alice", lentAt)
	assert.ErrorIs(t, err, model.ErrBookNotFound)
}

func TestCoordinator_CreateCategory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedBook(model.Book{ID: "b1", Title: "Odes", Categories: []string{"Poetry"}})
	f.pull(t)

	created, err := f.coord.CreateCategory(ctx, model.CategoryInput{Name: "Poetry"})
	require.NoError(t, err)
	f.dispatcher.Wait()
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, 1, f.storeCategory(t, "Poetry").Count)

	_, err = f.coord.CreateCategory(ctx, model.CategoryInput{Name: "Poetry"})
	assert.ErrorIs(t, err, model.ErrDuplicateCategory)

	_, err = f.coord.CreateCategory(ctx, model.CategoryInput{Name: "UNCATEGORIZED"})
	assert.ErrorIs(t, err, model.ErrReservedCategory)
	assert.True(t, model.IsConstraintViolation(err))

	_, err = f.coord.CreateCategory(ctx, model.CategoryInput{Name: ""})
	assert.ErrorIs(t, err, model.ErrInvalidCategory)
}

func TestCoordinator_RenameCategoryCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedCategory(model.Category{ID: "c1", Name: "Fiction", Count: 2})
	f.store.SeedCategory(model.Category{ID: "c2", Name: "History", Count: 1})
	f.store.SeedBook(model.Book{ID: "b1", Title: "A", Categories: []string{"Fiction", "Classic"}, PrimaryCategory: "Fiction"})
	f.store.SeedBook(model.Book{ID: "b2", Title: "B", Categories: []string{"Fiction"}, PrimaryCategory: "Fiction"})
	f.store.SeedBook(model.Book{ID: "b3", Title: "C", Categories: []string{"History"}, PrimaryCategory: "History"})
	f.pull(t)

	_, err := f.coord.RenameCategory(ctx, "c1", "History")
	assert.ErrorIs(t, err, model.ErrDuplicateCategory)
	_, err = f.coord.RenameCategory(ctx, "c1", "Uncategorized")
	assert.ErrorIs(t, err, model.ErrReservedCategory)

	change, err := f.coord.RenameCategory(ctx, "c1", "Novels")
	require.NoError(t, err)
	f.dispatcher.Wait()

	assert.Equal(t, 2, change.BooksUpdated)
	assert.Zero(t, change.BooksFailed)
	assert.Equal(t, "Novels", change.Category.Name)

	b1 := f.storeBook(t, "b1")
	assert.Equal(t, []string{"Novels", "Classic"}, b1.Categories)
	assert.Equal(t, "Novels", b1.PrimaryCategory)
	assert.Equal(t, []string{"History"}, f.storeBook(t, "b3").Categories)

	novels := f.storeCategory(t, "Novels")
	assert.Equal(t, "c1", novels.ID)
	assert.Equal(t, 2, novels.Count)
}

func TestCoordinator_DeleteCategoryStripsBooks(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.store.SeedCategory(model.Category{ID: "c1", Name: "Fiction", Count: 2})
	f.store.SeedBook(model.Book{ID: "b1", Title: "A", Categories: []string{"Fiction", "Classic"}, PrimaryCategory: "Fiction"})
	f.store.SeedBook(model.Book{ID: "b2", Title: "B", Categories: []string{"Fiction"}, PrimaryCategory: "Fiction"})
	f.pull(t)

	change, err := f.coord.DeleteCategory(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, change.BooksUpdated)

	b1 := f.storeBook(t, "b1")
	assert.Equal(t, []string{"Classic"}, b1.Categories)
	assert.Equal(t, "Classic", b1.PrimaryCategory)

	b2 := f.storeBook(t, "b2")
	assert.Empty(t, b2.Categories)
	assert.Equal(t, "Other", b2.PrimaryCategory)

	_, err = f.store.GetCategory(ctx, "c1")
	assert.ErrorIs(t, err, model.ErrCategoryNotFound)
	_, ok := f.cache.Category("c1")
	assert.False(t, ok)

	_, err = f.coord.DeleteCategory(ctx, "c1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCoordinator_FireAndForgetWithoutQueue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	coord := NewCoordinator(f.repo, f.cache, f.ids, f.dispatcher, nil, CoordinatorConfig{})
	f.store.SetUnreachable(true)

	res, err := coord.Add(ctx, model.BookInput{Title: "Offline"})
	require.NoError(t, err)
	assert.True(t, res.Partial())
	assert.False(t, res.Queued)

	flush, err := coord.FlushPending(ctx)
	require.NoError(t, err)
	assert.Zero(t, flush.Attempted)
}
