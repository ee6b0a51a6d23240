package repository

import (
	"context"

	"household-catalog/internal/domains/catalog/model"
)

// Store là contract của một backing store cụ thể (document, relational,
// relational-over-HTTP, in-memory). Mỗi method là đúng một call xuống store.
type Store interface {
	Name() string

	ListBooks(ctx context.Context) ([]model.Book, error)
	GetBook(ctx context.Context, id string) (*model.Book, error)
	CreateBook(ctx context.Context, book *model.Book) (string, error)
	UpdateBook(ctx context.Context, id string, patch model.BookPatch) error
	DeleteBook(ctx context.Context, id string) error
	QueryBooks(ctx context.Context, q model.BookQuery) ([]model.Book, error)
	CountBooks(ctx context.Context, q model.BookQuery) (int, error)

	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	CreateCategory(ctx context.Context, category *model.Category) (string, error)
	UpdateCategory(ctx context.Context, id string, patch model.CategoryPatch) error
	ReplaceCategory(ctx context.Context, category *model.Category) error
	DeleteCategory(ctx context.Context, id string) error
	QueryCategories(ctx context.Context, q model.CategoryQuery) ([]model.Category, error)
}

// StatsProvider: store tự tính count theo join/group-by (relational store)
type StatsProvider interface {
	CategoryStats(ctx context.Context) ([]model.CategoryStat, error)
	BorrowStats(ctx context.Context) (*model.BorrowStats, error)
}

// BookPager: store phân trang ở phía DB, trả về một trang kèm tổng số
// record khớp query. Store không có thì handler cắt trang trong RAM.
type BookPager interface {
	QueryBooksPage(ctx context.Context, q model.BookQuery, offset, limit int) ([]model.Book, int, error)
}

// IdentityResolver là phần Identity Mapper mà Facade cần
type IdentityResolver interface {
	Resolve(id string) string
	Record(ctx context.Context, legacyID, canonicalID string)
}

// RepositoryInterface là bề mặt CRUD/query duy nhất mà các service dùng.
// Service không bao giờ phụ thuộc trực tiếp vào Store cụ thể.
type RepositoryInterface interface {
	StoreName() string

	ListBooks(ctx context.Context) ([]model.Book, error)
	GetBook(ctx context.Context, id string) (*model.Book, error)
	CreateBook(ctx context.Context, book *model.Book) (string, error)
	UpdateBook(ctx context.Context, id string, patch model.BookPatch) error
	DeleteBook(ctx context.Context, id string) error
	QueryBooks(ctx context.Context, q model.BookQuery) ([]model.Book, error)
	CountBooks(ctx context.Context, q model.BookQuery) (int, error)

	ListCategories(ctx context.Context) ([]model.Category, error)
	GetCategory(ctx context.Context, id string) (*model.Category, error)
	CreateCategory(ctx context.Context, category *model.Category) (string, error)
	UpdateCategory(ctx context.Context, id string, patch model.CategoryPatch) error
	ReplaceCategory(ctx context.Context, category *model.Category) error
	DeleteCategory(ctx context.Context, id string) error
	QueryCategories(ctx context.Context, q model.CategoryQuery) ([]model.Category, error)

	// CategoryCounts trả về (name → book count) nếu store có statistics.
	// ok = false khi store không hỗ trợ.
	CategoryCounts(ctx context.Context) (counts map[string]int, ok bool, err error)
}
