package repository

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"household-catalog/internal/domains/catalog/model"
)

var errUnreachable = errors.New("memory store: unreachable")

// MemoryStore là backing store trong RAM. Dùng cho STORE_DRIVER=memory
// (chạy thử, demo) và làm store giả lập trong test, có fault injection.
type MemoryStore struct {
	mu          sync.RWMutex
	books       map[string]model.Book
	categories  map[string]model.Category
	unreachable bool
	failOn      func(op, id string) error
	calls       map[string]int
}

var (
	_ Store         = (*MemoryStore)(nil)
	_ StatsProvider = (*MemoryStore)(nil)
)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books:      make(map[string]model.Book),
		categories: make(map[string]model.Category),
		calls:      make(map[string]int),
	}
}

func (s *MemoryStore) Name() string { return "memory" }

// SetUnreachable giả lập mất kết nối: mọi call trả ErrTransient
func (s *MemoryStore) SetUnreachable(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unreachable = v
}

// FailOn cài hook lỗi theo (op, id), vd op = "UpdateBook"
func (s *MemoryStore) FailOn(fn func(op, id string) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn = fn
}

// Calls trả về số lần op được gọi (kể cả lần lỗi)
func (s *MemoryStore) Calls(op string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls[op]
}

// SeedBook ghi thẳng record (giữ nguyên id, drift) mà không qua validation
func (s *MemoryStore) SeedBook(b model.Book) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = newMemoryID()
	}
	s.books[b.ID] = b.Clone()
}

func (s *MemoryStore) SeedCategory(c model.Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = newMemoryID()
	}
	s.categories[c.ID] = c
}

// check phải được gọi khi đang giữ lock
func (s *MemoryStore) check(op, id string) error {
	s.calls[op]++
	if s.unreachable {
		return model.Transient(errUnreachable)
	}
	if s.failOn != nil {
		return s.failOn(op, id)
	}
	return nil
}

// ========================================
// BOOKS
// ========================================

func (s *MemoryStore) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.QueryBooks(ctx, model.BookQuery{})
}

func (s *MemoryStore) GetBook(ctx context.Context, id string) (*model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("GetBook", id); err != nil {
		return nil, err
	}
	b, ok := s.books[id]
	if !ok {
		return nil, model.ErrBookNotFound
	}
	out := b.Clone()
	return &out, nil
}

func (s *MemoryStore) CreateBook(ctx context.Context, book *model.Book) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CreateBook", ""); err != nil {
		return "", err
	}
	b := book.Clone()
	b.ID = newMemoryID()
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.UpdatedAt = time.Now().UTC()
	b.Drift = 0
	s.books[b.ID] = b
	return b.ID, nil
}

func (s *MemoryStore) UpdateBook(ctx context.Context, id string, patch model.BookPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("UpdateBook", id); err != nil {
		return err
	}
	b, ok := s.books[id]
	if !ok {
		return model.ErrBookNotFound
	}
	patch.Apply(&b)
	b.UpdatedAt = time.Now().UTC()
	s.books[id] = b
	return nil
}

func (s *MemoryStore) DeleteBook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("DeleteBook", id); err != nil {
		return err
	}
	if _, ok := s.books[id]; !ok {
		return model.ErrBookNotFound
	}
	delete(s.books, id)
	return nil
}

func (s *MemoryStore) QueryBooks(ctx context.Context, q model.BookQuery) ([]model.Book, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("QueryBooks", ""); err != nil {
		return nil, err
	}
	out := make([]model.Book, 0, len(s.books))
	for _, b := range s.books {
		if q.Matches(b) {
			out = append(out, b.Clone())
		}
	}
	sortBooks(out)
	return out, nil
}

func (s *MemoryStore) QueryBooksPage(ctx context.Context, q model.BookQuery, offset, limit int) ([]model.Book, int, error) {
	books, err := s.QueryBooks(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return pageOf(books, offset, limit), len(books), nil
}

// pageOf cắt books[offset:offset+limit], ngoài biên thì trả về slice rỗng
func pageOf(books []model.Book, offset, limit int) []model.Book {
	total := len(books)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return books[offset:end]
}

func (s *MemoryStore) CountBooks(ctx context.Context, q model.BookQuery) (int, error) {
	books, err := s.QueryBooks(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(books), nil
}

// ========================================
// CATEGORIES
// ========================================

func (s *MemoryStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.QueryCategories(ctx, model.CategoryQuery{})
}

func (s *MemoryStore) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("GetCategory", id); err != nil {
		return nil, err
	}
	c, ok := s.categories[id]
	if !ok {
		return nil, model.ErrCategoryNotFound
	}
	return &c, nil
}

func (s *MemoryStore) CreateCategory(ctx context.Context, category *model.Category) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CreateCategory", ""); err != nil {
		return "", err
	}
	if s.nameTakenLocked(category.Name, "") {
		return "", model.ErrDuplicateCategory
	}
	c := *category
	c.ID = newMemoryID()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	s.categories[c.ID] = c
	return c.ID, nil
}

func (s *MemoryStore) UpdateCategory(ctx context.Context, id string, patch model.CategoryPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("UpdateCategory", id); err != nil {
		return err
	}
	c, ok := s.categories[id]
	if !ok {
		return model.ErrCategoryNotFound
	}
	if patch.Name != nil && s.nameTakenLocked(*patch.Name, id) {
		return model.ErrDuplicateCategory
	}
	patch.Apply(&c)
	s.categories[id] = c
	return nil
}

func (s *MemoryStore) ReplaceCategory(ctx context.Context, category *model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("ReplaceCategory", category.ID); err != nil {
		return err
	}
	if _, ok := s.categories[category.ID]; !ok {
		return model.ErrCategoryNotFound
	}
	if s.nameTakenLocked(category.Name, category.ID) {
		return model.ErrDuplicateCategory
	}
	s.categories[category.ID] = *category
	return nil
}

func (s *MemoryStore) DeleteCategory(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("DeleteCategory", id); err != nil {
		return err
	}
	if _, ok := s.categories[id]; !ok {
		return model.ErrCategoryNotFound
	}
	delete(s.categories, id)
	return nil
}

func (s *MemoryStore) QueryCategories(ctx context.Context, q model.CategoryQuery) ([]model.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("QueryCategories", ""); err != nil {
		return nil, err
	}
	out := make([]model.Category, 0, len(s.categories))
	for _, c := range s.categories {
		if q.Matches(c) {
			out = append(out, c)
		}
	}
	sortCategories(out)
	return out, nil
}

// ========================================
// STATISTICS
// ========================================

func (s *MemoryStore) CategoryStats(ctx context.Context) ([]model.CategoryStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("CategoryStats", ""); err != nil {
		return nil, err
	}
	out := make([]model.CategoryStat, 0, len(s.categories))
	for _, c := range s.categories {
		n := 0
		for _, b := range s.books {
			if b.HasCategory(c.Name) {
				n++
			}
		}
		out = append(out, model.CategoryStat{ID: c.ID, Name: c.Name, Count: c.Count, BookCount: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *MemoryStore) BorrowStats(ctx context.Context) (*model.BorrowStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check("BorrowStats", ""); err != nil {
		return nil, err
	}
	stats := &model.BorrowStats{Total: len(s.books)}
	for _, b := range s.books {
		if b.BorrowStatus == model.BorrowLent {
			stats.Lent++
		}
	}
	stats.Available = stats.Total - stats.Lent
	return stats, nil
}

// ========================================
// helpers
// ========================================

func (s *MemoryStore) nameTakenLocked(name, exceptID string) bool {
	for id, c := range s.categories {
		if id != exceptID && c.Name == name {
			return true
		}
	}
	return false
}

func newMemoryID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// sortBooks: created_at DESC, id ASC, giống thứ tự các store khác trả về
func sortBooks(books []model.Book) {
	sort.SliceStable(books, func(i, j int) bool {
		if !books[i].CreatedAt.Equal(books[j].CreatedAt) {
			return books[i].CreatedAt.After(books[j].CreatedAt)
		}
		return books[i].ID < books[j].ID
	})
}

func sortCategories(categories []model.Category) {
	sort.SliceStable(categories, func(i, j int) bool {
		if categories[i].Name != categories[j].Name {
			return categories[i].Name < categories[j].Name
		}
		return categories[i].ID < categories[j].ID
	})
}
