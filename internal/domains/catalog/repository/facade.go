package repository

import (
	"context"

	"household-catalog/internal/domains/catalog/model"
)

// Facade ủy quyền cho Store đang active. Mọi id đều đi qua Identity Mapper
// trước; Facade không retry và không batch.
type Facade struct {
	store Store
	ids   IdentityResolver
}

var _ RepositoryInterface = (*Facade)(nil)

func NewFacade(store Store, ids IdentityResolver) *Facade {
	return &Facade{store: store, ids: ids}
}

func (f *Facade) StoreName() string {
	return f.store.Name()
}

// ========================================
// BOOKS
// ========================================

func (f *Facade) ListBooks(ctx context.Context) ([]model.Book, error) {
	return f.store.ListBooks(ctx)
}

func (f *Facade) GetBook(ctx context.Context, id string) (*model.Book, error) {
	return f.store.GetBook(ctx, f.ids.Resolve(id))
}

// CreateBook trả về canonical id; nếu record mang legacy id thì ghi mapping
func (f *Facade) CreateBook(ctx context.Context, book *model.Book) (string, error) {
	id, err := f.store.CreateBook(ctx, book)
	if err != nil {
		return "", err
	}
	if book.LegacyID != "" {
		f.ids.Record(ctx, book.LegacyID, id)
	}
	return id, nil
}

func (f *Facade) UpdateBook(ctx context.Context, id string, patch model.BookPatch) error {
	return f.store.UpdateBook(ctx, f.ids.Resolve(id), patch)
}

func (f *Facade) DeleteBook(ctx context.Context, id string) error {
	return f.store.DeleteBook(ctx, f.ids.Resolve(id))
}

func (f *Facade) QueryBooks(ctx context.Context, q model.BookQuery) ([]model.Book, error) {
	return f.store.QueryBooks(ctx, q)
}

func (f *Facade) CountBooks(ctx context.Context, q model.BookQuery) (int, error) {
	return f.store.CountBooks(ctx, q)
}

// ========================================
// CATEGORIES
// ========================================

func (f *Facade) ListCategories(ctx context.Context) ([]model.Category, error) {
	return f.store.ListCategories(ctx)
}

func (f *Facade) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	return f.store.GetCategory(ctx, f.ids.Resolve(id))
}

func (f *Facade) CreateCategory(ctx context.Context, category *model.Category) (string, error) {
	id, err := f.store.CreateCategory(ctx, category)
	if err != nil {
		return "", err
	}
	if category.LegacyID != "" {
		f.ids.Record(ctx, category.LegacyID, id)
	}
	return id, nil
}

func (f *Facade) UpdateCategory(ctx context.Context, id string, patch model.CategoryPatch) error {
	return f.store.UpdateCategory(ctx, f.ids.Resolve(id), patch)
}

func (f *Facade) ReplaceCategory(ctx context.Context, category *model.Category) error {
	c := *category
	c.ID = f.ids.Resolve(c.ID)
	return f.store.ReplaceCategory(ctx, &c)
}

func (f *Facade) DeleteCategory(ctx context.Context, id string) error {
	return f.store.DeleteCategory(ctx, f.ids.Resolve(id))
}

func (f *Facade) QueryCategories(ctx context.Context, q model.CategoryQuery) ([]model.Category, error) {
	return f.store.QueryCategories(ctx, q)
}

func (f *Facade) CategoryCounts(ctx context.Context) (map[string]int, bool, error) {
	stats, ok := f.store.(StatsProvider)
	if !ok {
		return nil, false, nil
	}
	rows, err := stats.CategoryStats(ctx)
	if err != nil {
		return nil, true, err
	}
	counts := make(map[string]int, len(rows))
	for _, r := range rows {
		counts[r.Name] = r.BookCount
	}
	return counts, true, nil
}
