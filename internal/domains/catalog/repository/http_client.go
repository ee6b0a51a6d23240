package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"household-catalog/internal/domains/catalog/model"
	"household-catalog/internal/shared/response"
)

// HTTPStore nói chuyện với relational store qua REST API
// (envelope {success, data, error, meta}).
type HTTPStore struct {
	baseURL  string
	client   *http.Client
	pageSize int
}

var (
	_ Store         = (*HTTPStore)(nil)
	_ StatsProvider = (*HTTPStore)(nil)
)

func NewHTTPStore(baseURL string, timeout time.Duration, pageSize int) *HTTPStore {
	if pageSize <= 0 {
		pageSize = 100
	}
	return &HTTPStore{
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		pageSize: pageSize,
	}
}

// WithHTTPClient thay http.Client (test dùng client của httptest server)
func (s *HTTPStore) WithHTTPClient(c *http.Client) *HTTPStore {
	s.client = c
	return s
}

func (s *HTTPStore) Name() string { return "http" }

// envelope là shape chung của mọi response
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *response.Error `json:"error"`
	Meta    *response.Meta  `json:"meta"`
}

// wireBook giữ categories ở dạng raw để phát hiện drift
type wireBook struct {
	model.Book
	Categories json.RawMessage `json:"categories"`
}

func (w wireBook) toBook() model.Book {
	b := w.Book
	cats, drift := model.DecodeCategoriesJSON(w.Categories)
	b.Categories = cats
	b.Drift |= drift
	return b
}

// resource quyết định sentinel error khi server trả 404/409
type resource int

const (
	resourceBook resource = iota
	resourceCategory
)

// ========================================
// BOOKS
// ========================================

func (s *HTTPStore) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.QueryBooks(ctx, model.BookQuery{})
}

func (s *HTTPStore) GetBook(ctx context.Context, id string) (*model.Book, error) {
	var w wireBook
	if _, err := s.do(ctx, http.MethodGet, "/books/"+url.PathEscape(id), nil, nil, resourceBook, &w); err != nil {
		return nil, err
	}
	b := w.toBook()
	return &b, nil
}

func (s *HTTPStore) CreateBook(ctx context.Context, book *model.Book) (string, error) {
	var created wireBook
	if _, err := s.do(ctx, http.MethodPost, "/books", nil, book, resourceBook, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("create book: server returned no id")
	}
	return created.ID, nil
}

func (s *HTTPStore) UpdateBook(ctx context.Context, id string, patch model.BookPatch) error {
	_, err := s.do(ctx, http.MethodPut, "/books/"+url.PathEscape(id), nil, patch, resourceBook, nil)
	return err
}

func (s *HTTPStore) DeleteBook(ctx context.Context, id string) error {
	_, err := s.do(ctx, http.MethodDelete, "/books/"+url.PathEscape(id), nil, nil, resourceBook, nil)
	return err
}

// QueryBooks đọc hết các trang theo meta.total
func (s *HTTPStore) QueryBooks(ctx context.Context, q model.BookQuery) ([]model.Book, error) {
	books := make([]model.Book, 0)
	for page := 1; ; page++ {
		params := bookQueryParams(q)
		params.Set("page", strconv.Itoa(page))
		params.Set("limit", strconv.Itoa(s.pageSize))

		var batch []wireBook
		meta, err := s.do(ctx, http.MethodGet, "/books", params, nil, resourceBook, &batch)
		if err != nil {
			return nil, err
		}
		for _, w := range batch {
			books = append(books, w.toBook())
		}

		if len(batch) < s.pageSize {
			break
		}
		if meta != nil && meta.Total > 0 && len(books) >= meta.Total {
			break
		}
	}
	return books, nil
}

func (s *HTTPStore) CountBooks(ctx context.Context, q model.BookQuery) (int, error) {
	params := bookQueryParams(q)
	params.Set("page", "1")
	params.Set("limit", "1")

	var batch []wireBook
	meta, err := s.do(ctx, http.MethodGet, "/books", params, nil, resourceBook, &batch)
	if err != nil {
		return 0, err
	}
	if meta == nil {
		return len(batch), nil
	}
	return meta.Total, nil
}

// ========================================
// CATEGORIES
// ========================================

func (s *HTTPStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.QueryCategories(ctx, model.CategoryQuery{})
}

func (s *HTTPStore) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	var c model.Category
	if _, err := s.do(ctx, http.MethodGet, "/categories/"+url.PathEscape(id), nil, nil, resourceCategory, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *HTTPStore) CreateCategory(ctx context.Context, category *model.Category) (string, error) {
	var created model.Category
	if _, err := s.do(ctx, http.MethodPost, "/categories", nil, category, resourceCategory, &created); err != nil {
		return "", err
	}
	if created.ID == "" {
		return "", fmt.Errorf("create category: server returned no id")
	}
	return created.ID, nil
}

func (s *HTTPStore) UpdateCategory(ctx context.Context, id string, patch model.CategoryPatch) error {
	_, err := s.do(ctx, http.MethodPut, "/categories/"+url.PathEscape(id), nil, patch, resourceCategory, nil)
	return err
}

// ReplaceCategory: PUT với đủ mọi field
func (s *HTTPStore) ReplaceCategory(ctx context.Context, category *model.Category) error {
	patch := model.CategoryPatch{
		Name:  &category.Name,
		Count: &category.Count,
		Icon:  &category.Icon,
		Color: &category.Color,
	}
	return s.UpdateCategory(ctx, category.ID, patch)
}

func (s *HTTPStore) DeleteCategory(ctx context.Context, id string) error {
	_, err := s.do(ctx, http.MethodDelete, "/categories/"+url.PathEscape(id), nil, nil, resourceCategory, nil)
	return err
}

func (s *HTTPStore) QueryCategories(ctx context.Context, q model.CategoryQuery) ([]model.Category, error) {
	params := url.Values{}
	if q.Name != "" {
		params.Set("name", q.Name)
	}
	categories := make([]model.Category, 0)
	if _, err := s.do(ctx, http.MethodGet, "/categories", params, nil, resourceCategory, &categories); err != nil {
		return nil, err
	}
	return categories, nil
}

// ========================================
// STATISTICS
// ========================================

func (s *HTTPStore) CategoryStats(ctx context.Context) ([]model.CategoryStat, error) {
	var stats []model.CategoryStat
	if _, err := s.do(ctx, http.MethodGet, "/statistics/categories", nil, nil, resourceCategory, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

func (s *HTTPStore) BorrowStats(ctx context.Context) (*model.BorrowStats, error) {
	var stats model.BorrowStats
	if _, err := s.do(ctx, http.MethodGet, "/statistics/borrow", nil, nil, resourceBook, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// ========================================
// transport
// ========================================

func (s *HTTPStore) do(ctx context.Context, method, path string, params url.Values, body interface{}, res resource, out interface{}) (*response.Meta, error) {
	endpoint := s.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, model.Transient(err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, model.Transient(err))
	}

	var env envelope
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &env); err != nil && resp.StatusCode < 300 {
			return nil, fmt.Errorf("%s %s: decode envelope: %w", method, path, err)
		}
	}

	if resp.StatusCode >= 300 || !env.Success {
		return nil, statusError(method, path, resp.StatusCode, env.Error, res)
	}

	if out != nil && len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return nil, fmt.Errorf("%s %s: decode data: %w", method, path, err)
		}
	}
	return env.Meta, nil
}

// statusError map HTTP status sang error taxonomy
func statusError(method, path string, status int, apiErr *response.Error, res resource) error {
	msg := http.StatusText(status)
	if apiErr != nil && apiErr.Message != "" {
		msg = apiErr.Message
	}

	var sentinel error
	switch {
	case status == http.StatusNotFound:
		sentinel = model.ErrBookNotFound
		if res == resourceCategory {
			sentinel = model.ErrCategoryNotFound
		}
	case status == http.StatusConflict:
		sentinel = model.ErrConstraintViolation
		if res == resourceCategory {
			sentinel = model.ErrDuplicateCategory
		}
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		sentinel = model.ErrInvalidBook
		if res == resourceCategory {
			sentinel = model.ErrInvalidCategory
		}
	case status == http.StatusTooManyRequests || status == http.StatusRequestTimeout || status >= 500:
		sentinel = model.Transient(errors.New(msg))
	default:
		return fmt.Errorf("%s %s: unexpected status %d: %s", method, path, status, msg)
	}
	return fmt.Errorf("%s %s: %w (%s)", method, path, sentinel, msg)
}

func bookQueryParams(q model.BookQuery) url.Values {
	params := url.Values{}
	if q.Category != "" {
		params.Set("category", q.Category)
	}
	if q.Uncategorized {
		params.Set("uncategorized", "true")
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.BorrowStatus != "" {
		params.Set("borrow_status", string(q.BorrowStatus))
	}
	return params
}
