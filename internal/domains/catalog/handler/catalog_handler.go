package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"household-catalog/internal/domains/catalog/model"
	"household-catalog/internal/domains/catalog/repository"
	"household-catalog/internal/shared/response"
	"household-catalog/pkg/logger"
)

// HealthFunc kiểm tra kết nối tới store (DB ping, mongo ping)
type HealthFunc func(ctx context.Context) error

// ============================================================
// HANDLER STRUCT
// ============================================================
// CatalogHandler expose một repository.Store qua REST, là counterpart
// của repository.HTTPStore.
type CatalogHandler struct {
	store  repository.Store
	health HealthFunc
}

func NewCatalogHandler(store repository.Store, health HealthFunc) *CatalogHandler {
	return &CatalogHandler{store: store, health: health}
}

// RegisterRoutes gắn mọi route dưới group (vd /api/v1)
func (h *CatalogHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/ping", h.Ping)
	rg.GET("/health", h.Health)

	books := rg.Group("/books")
	{
		books.GET("", h.ListBooks)
		books.GET("/:id", h.GetBook)
		books.POST("", h.CreateBook)
		books.PUT("/:id", h.UpdateBook)
		books.DELETE("/:id", h.DeleteBook)
	}

	categories := rg.Group("/categories")
	{
		categories.GET("", h.ListCategories)
		categories.GET("/:id", h.GetCategory)
		categories.POST("", h.CreateCategory)
		categories.PUT("/:id", h.UpdateCategory)
		categories.DELETE("/:id", h.DeleteCategory)
	}

	stats := rg.Group("/statistics")
	{
		stats.GET("/categories", h.CategoryStatistics)
		stats.GET("/borrow", h.BorrowStatistics)
	}
}

// ========== BOOKS ==========

// GET /books?page=1&limit=20&category=&uncategorized=&search=&borrow_status=
func (h *CatalogHandler) ListBooks(c *gin.Context) {
	var q model.BookQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	page := queryInt(c, "page", 1)
	limit := queryInt(c, "limit", 20)

	books, total, err := h.queryPage(c.Request.Context(), q, (page-1)*limit, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, books, &response.Meta{
		Page:  page,
		Limit: limit,
		Total: total,
	})
}

// queryPage: store có LIMIT/OFFSET thì phân trang ở DB, không thì cắt trong RAM
func (h *CatalogHandler) queryPage(ctx context.Context, q model.BookQuery, offset, limit int) ([]model.Book, int, error) {
	if pager, ok := h.store.(repository.BookPager); ok {
		return pager.QueryBooksPage(ctx, q, offset, limit)
	}

	books, err := h.store.QueryBooks(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	total := len(books)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return books[offset:end], total, nil
}

// GET /books/:id
func (h *CatalogHandler) GetBook(c *gin.Context) {
	book, err := h.store.GetBook(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, book)
}

// POST /books: nhận nguyên record, id do store cấp
func (h *CatalogHandler) CreateBook(c *gin.Context) {
	var book model.Book
	if err := c.ShouldBindJSON(&book); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if book.BorrowStatus == "" {
		book.BorrowStatus = model.BorrowAvailable
	}
	if err := book.Validate(); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid book", err)
		return
	}

	id, err := h.store.CreateBook(c.Request.Context(), &book)
	if err != nil {
		h.handleError(c, err)
		return
	}
	created, err := h.store.GetBook(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, created)
}

// PUT /books/:id: chỉ ghi các field có trong body
func (h *CatalogHandler) UpdateBook(c *gin.Context) {
	var patch model.BookPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := patch.Validate(); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid book patch", err)
		return
	}

	id := c.Param("id")
	if err := h.store.UpdateBook(c.Request.Context(), id, patch); err != nil {
		h.handleError(c, err)
		return
	}
	book, err := h.store.GetBook(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, book)
}

// DELETE /books/:id
func (h *CatalogHandler) DeleteBook(c *gin.Context) {
	if err := h.store.DeleteBook(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

// ========== CATEGORIES ==========

// GET /categories?name=
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	var q model.CategoryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	categories, err := h.store.QueryCategories(c.Request.Context(), q)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, categories)
}

func (h *CatalogHandler) GetCategory(c *gin.Context) {
	category, err := h.store.GetCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, category)
}

// POST /categories: tên trùng → 409
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var category model.Category
	if err := c.ShouldBindJSON(&category); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	in := model.CategoryInput{Name: category.Name, Icon: category.Icon, Color: category.Color}
	if err := in.Validate(); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid category", err)
		return
	}
	if category.Count < 0 {
		category.Count = 0
	}

	id, err := h.store.CreateCategory(c.Request.Context(), &category)
	if err != nil {
		h.handleError(c, err)
		return
	}
	created, err := h.store.GetCategory(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusCreated, created)
}

func (h *CatalogHandler) UpdateCategory(c *gin.Context) {
	var patch model.CategoryPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := patch.Validate(); err != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid category patch", err)
		return
	}

	id := c.Param("id")
	if err := h.store.UpdateCategory(c.Request.Context(), id, patch); err != nil {
		h.handleError(c, err)
		return
	}
	category, err := h.store.GetCategory(c.Request.Context(), id)
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, category)
}

func (h *CatalogHandler) DeleteCategory(c *gin.Context) {
	if err := h.store.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"id": c.Param("id")})
}

// ========== STATISTICS ==========

// GET /statistics/categories → [{id, name, count, book_count}]
func (h *CatalogHandler) CategoryStatistics(c *gin.Context) {
	stats, ok := h.store.(repository.StatsProvider)
	if !ok {
		response.ErrorResponse(c, http.StatusNotImplemented, "NOT_IMPLEMENTED", "store has no statistics")
		return
	}
	rows, err := stats.CategoryStats(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

func (h *CatalogHandler) BorrowStatistics(c *gin.Context) {
	stats, ok := h.store.(repository.StatsProvider)
	if !ok {
		response.ErrorResponse(c, http.StatusNotImplemented, "NOT_IMPLEMENTED", "store has no statistics")
		return
	}
	row, err := stats.BorrowStats(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	response.Success(c, http.StatusOK, row)
}

// ========== HEALTH ==========

func (h *CatalogHandler) Ping(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"message": "pong"})
}

func (h *CatalogHandler) Health(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			logger.Error("health check failed", err)
			response.ErrorResponse(c, http.StatusServiceUnavailable, "UNHEALTHY", err.Error())
			return
		}
	}
	response.Success(c, http.StatusOK, gin.H{"status": "healthy", "store": h.store.Name()})
}

// ============================================================
// ERROR MAPPING
// ============================================================

type errorStatus struct {
	err    error
	status int
	code   string
}

// errorStatusMap: thứ tự quan trọng, lỗi cụ thể đứng trước lỗi tổng quát
var errorStatusMap = []errorStatus{
	{model.ErrBookNotFound, http.StatusNotFound, "BOOK_NOT_FOUND"},
	{model.ErrCategoryNotFound, http.StatusNotFound, "CATEGORY_NOT_FOUND"},
	{model.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{model.ErrDuplicateCategory, http.StatusConflict, "DUPLICATE_CATEGORY"},
	{model.ErrReservedCategory, http.StatusConflict, "RESERVED_CATEGORY"},
	{model.ErrConstraintViolation, http.StatusConflict, "CONFLICT"},
	{model.ErrInvalidBook, http.StatusBadRequest, "INVALID_BOOK"},
	{model.ErrInvalidCategory, http.StatusBadRequest, "INVALID_CATEGORY"},
	{model.ErrTransient, http.StatusServiceUnavailable, "STORE_UNAVAILABLE"},
}

func (h *CatalogHandler) handleError(c *gin.Context, err error) {
	for _, m := range errorStatusMap {
		if errors.Is(err, m.err) {
			response.ErrorResponse(c, m.status, m.code, err.Error())
			return
		}
	}

	logger.ErrorWithFields("catalog handler: unexpected error", err, map[string]interface{}{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
	})
	response.InternalServerError(c, "internal server error")
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 1 {
		return def
	}
	return v
}
