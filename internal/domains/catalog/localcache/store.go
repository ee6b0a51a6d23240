package localcache

import (
	"context"
	"fmt"
	"sync"

	"household-catalog/internal/domains/catalog/model"
	"household-catalog/pkg/cache"
)

// Keys trong local persisted cache
const (
	BooksKey      = "catalog:books"
	CategoriesKey = "catalog:categories"
)

// Store là working copy của catalog trong process: danh sách Book và
// Category, persist qua cache.Cache sau mỗi thay đổi. Một instance được
// tạo bởi container và truyền cho các service cần nó.
type Store struct {
	mu         sync.RWMutex
	books      []model.Book
	categories []model.Category
	backend    cache.Cache
}

func New(backend cache.Cache) *Store {
	return &Store{
		books:      []model.Book{},
		categories: []model.Category{},
		backend:    backend,
	}
}

// Load đọc snapshot đã persist (lần chạy trước). Cache miss → rỗng.
func (s *Store) Load(ctx context.Context) error {
	var books []model.Book
	if _, err := s.backend.Get(ctx, BooksKey, &books); err != nil {
		return fmt.Errorf("load books: %w", err)
	}
	var categories []model.Category
	if _, err := s.backend.Get(ctx, CategoriesKey, &categories); err != nil {
		return fmt.Errorf("load categories: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.books = nonNilBooks(books)
	s.categories = nonNilCategories(categories)
	return nil
}

// Replace thay toàn bộ working copy (remote wins) rồi persist cả hai key.
// Bộ nhớ luôn được swap; lỗi persist được trả về để caller log.
func (s *Store) Replace(ctx context.Context, books []model.Book, categories []model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.books = cloneBooks(nonNilBooks(books))
	s.categories = append([]model.Category{}, categories...)

	if err := s.backend.Set(ctx, BooksKey, s.books, 0); err != nil {
		return fmt.Errorf("persist books: %w", err)
	}
	if err := s.backend.Set(ctx, CategoriesKey, s.categories, 0); err != nil {
		return fmt.Errorf("persist categories: %w", err)
	}
	return nil
}

// ========================================
// BOOKS
// ========================================

func (s *Store) Books() []model.Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneBooks(s.books)
}

func (s *Store) Book(id string) (model.Book, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.bookIndex(id); i >= 0 {
		return s.books[i].Clone(), true
	}
	return model.Book{}, false
}

// CountBooks đếm Book có name trong categories (linear scan)
func (s *Store) CountBooks(name string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for i := range s.books {
		if s.books[i].HasCategory(name) {
			n++
		}
	}
	return n
}

// PutBook upsert; book mới được chèn lên đầu (mới nhất trước)
func (s *Store) PutBook(ctx context.Context, b model.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.bookIndex(b.ID); i >= 0 {
		s.books[i] = b.Clone()
	} else {
		s.books = append([]model.Book{b.Clone()}, s.books...)
	}
	return s.persistBooksLocked(ctx)
}

// UpdateBook áp fn lên bản trong cache. Trả về bản trước và sau khi sửa.
func (s *Store) UpdateBook(ctx context.Context, id string, fn func(*model.Book)) (before, after model.Book, ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.bookIndex(id)
	if i < 0 {
		return model.Book{}, model.Book{}, false, nil
	}
	before = s.books[i].Clone()
	fn(&s.books[i])
	after = s.books[i].Clone()
	return before, after, true, s.persistBooksLocked(ctx)
}

func (s *Store) RemoveBook(ctx context.Context, id string) (model.Book, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.bookIndex(id)
	if i < 0 {
		return model.Book{}, false, nil
	}
	removed := s.books[i]
	s.books = append(s.books[:i], s.books[i+1:]...)
	return removed, true, s.persistBooksLocked(ctx)
}

// RekeyBook đổi temp id sang canonical id sau khi store xác nhận create
func (s *Store) RekeyBook(ctx context.Context, oldID, newID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.bookIndex(oldID)
	if i < 0 {
		return false, nil
	}
	s.books[i].ID = newID
	return true, s.persistBooksLocked(ctx)
}

// ========================================
// CATEGORIES
// ========================================

func (s *Store) Categories() []model.Category {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]model.Category{}, s.categories...)
}

func (s *Store) CategoryByName(name string) (model.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.categories {
		if c.Name == name {
			return c, true
		}
	}
	return model.Category{}, false
}

func (s *Store) Category(id string) (model.Category, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.categoryIndex(id); i >= 0 {
		return s.categories[i], true
	}
	return model.Category{}, false
}

func (s *Store) PutCategory(ctx context.Context, c model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.categoryIndex(c.ID); i >= 0 {
		s.categories[i] = c
	} else {
		s.categories = append(s.categories, c)
	}
	return s.persistCategoriesLocked(ctx)
}

func (s *Store) RemoveCategory(ctx context.Context, id string) (model.Category, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.categoryIndex(id)
	if i < 0 {
		return model.Category{}, false, nil
	}
	removed := s.categories[i]
	s.categories = append(s.categories[:i], s.categories[i+1:]...)
	return removed, true, s.persistCategoriesLocked(ctx)
}

// RekeyCategory đổi temp id của category sang id do store cấp.
// Nếu newID đã có trong cache (adopt category có sẵn) thì bản temp bị bỏ.
func (s *Store) RekeyCategory(ctx context.Context, oldID, newID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.categoryIndex(oldID)
	if i < 0 {
		return false, nil
	}
	if s.categoryIndex(newID) >= 0 {
		s.categories = append(s.categories[:i], s.categories[i+1:]...)
	} else {
		s.categories[i].ID = newID
	}
	return true, s.persistCategoriesLocked(ctx)
}

// SetCategoryCount chỉ sửa derived count của category trong cache
func (s *Store) SetCategoryCount(ctx context.Context, id string, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.categoryIndex(id)
	if i < 0 {
		return nil
	}
	s.categories[i].Count = count
	return s.persistCategoriesLocked(ctx)
}

// ========================================
// helpers
// ========================================

func (s *Store) bookIndex(id string) int {
	for i := range s.books {
		if s.books[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) categoryIndex(id string) int {
	for i := range s.categories {
		if s.categories[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) persistBooksLocked(ctx context.Context) error {
	if err := s.backend.Set(ctx, BooksKey, s.books, 0); err != nil {
		return fmt.Errorf("persist books: %w", err)
	}
	return nil
}

func (s *Store) persistCategoriesLocked(ctx context.Context) error {
	if err := s.backend.Set(ctx, CategoriesKey, s.categories, 0); err != nil {
		return fmt.Errorf("persist categories: %w", err)
	}
	return nil
}

func cloneBooks(in []model.Book) []model.Book {
	out := make([]model.Book, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}

func nonNilBooks(in []model.Book) []model.Book {
	if in == nil {
		return []model.Book{}
	}
	return in
}

func nonNilCategories(in []model.Category) []model.Category {
	if in == nil {
		return []model.Category{}
	}
	return in
}
