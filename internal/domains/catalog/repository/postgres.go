package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"

	"household-catalog/internal/domains/catalog/model"
	"household-catalog/internal/infrastructure/database"
	pgtx "household-catalog/pkg/database"
)

// PostgresStore là relational store. cmd/api expose nó qua REST,
// client truy cập qua HTTPStore.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var (
	_ Store         = (*PostgresStore)(nil)
	_ StatsProvider = (*PostgresStore)(nil)
)

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (r *PostgresStore) Name() string { return "postgres" }

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS categories (
		id          BIGSERIAL PRIMARY KEY,
		legacy_id   TEXT,
		name        TEXT NOT NULL UNIQUE,
		count       INTEGER NOT NULL DEFAULT 0 CHECK (count >= 0),
		icon        TEXT NOT NULL DEFAULT '',
		color       TEXT NOT NULL DEFAULT '',
		created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS books (
		id             BIGSERIAL PRIMARY KEY,
		legacy_id      TEXT,
		title          TEXT NOT NULL,
		author         TEXT NOT NULL DEFAULT '',
		publisher      TEXT NOT NULL DEFAULT '',
		isbn           TEXT NOT NULL DEFAULT '',
		publish_date   TEXT NOT NULL DEFAULT '',
		description    TEXT NOT NULL DEFAULT '',
		cover_url      TEXT NOT NULL DEFAULT '',
		pages          INTEGER NOT NULL DEFAULT 0,
		price          NUMERIC(12,2) NOT NULL DEFAULT 0,
		categories     TEXT[],
		category_name  TEXT NOT NULL DEFAULT '',
		borrow_status  TEXT NOT NULL DEFAULT 'available',
		borrower       TEXT NOT NULL DEFAULT '',
		borrow_date    TIMESTAMPTZ,
		return_date    TIMESTAMPTZ,
		borrow_history JSONB NOT NULL DEFAULT '[]',
		created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_books_categories ON books USING GIN (categories)`,
	`CREATE INDEX IF NOT EXISTS idx_books_created_at ON books (created_at DESC, id)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_books_legacy_id ON books (legacy_id) WHERE legacy_id IS NOT NULL`,
}

// EnsureSchema tạo bảng nếu chưa có, tất cả trong một transaction
func (r *PostgresStore) EnsureSchema(ctx context.Context) error {
	return pgtx.WithTransaction(ctx, r.pool, func(tx pgx.Tx) error {
		for _, stmt := range schemaStatements {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("ensure schema: %w", err)
			}
		}
		return nil
	})
}

const bookColumns = `
	id::text, COALESCE(legacy_id, ''), title, author, publisher, isbn, publish_date,
	description, cover_url, pages, price, categories, category_name,
	borrow_status, borrower, borrow_date, return_date, borrow_history,
	created_at, updated_at`

const categoryColumns = `id::text, COALESCE(legacy_id, ''), name, count, icon, color, created_at`

// ========================================
// BOOKS
// ========================================

func (r *PostgresStore) ListBooks(ctx context.Context) ([]model.Book, error) {
	return r.QueryBooks(ctx, model.BookQuery{})
}

func (r *PostgresStore) GetBook(ctx context.Context, id string) (*model.Book, error) {
	key, ok := parseSerialID(id)
	if !ok {
		return nil, model.ErrBookNotFound
	}

	query := `SELECT ` + bookColumns + ` FROM books WHERE id = $1`
	book, err := scanBook(r.pool.QueryRow(ctx, query, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrBookNotFound
	}
	if err != nil {
		return nil, classifyPgError("get book", err)
	}
	return book, nil
}

func (r *PostgresStore) CreateBook(ctx context.Context, book *model.Book) (string, error) {
	history, err := json.Marshal(nonNilHistory(book.BorrowHistory))
	if err != nil {
		return "", fmt.Errorf("marshal borrow history: %w", err)
	}

	createdAt := book.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO books (
			legacy_id, title, author, publisher, isbn, publish_date, description,
			cover_url, pages, price, categories, category_name, borrow_status,
			borrower, borrow_date, return_date, borrow_history, created_at, updated_at
		) VALUES (
			NULLIF($1, ''), $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13,
			$14, $15, $16, $17, $18, NOW()
		)
		RETURNING id::text`

	var id string
	err = r.pool.QueryRow(ctx, query,
		book.LegacyID, book.Title, book.Author, book.Publisher, book.ISBN, book.PublishDate, book.Description,
		book.CoverURL, book.Pages, book.Price, pq.Array(nonNilStrings(book.Categories)), book.PrimaryCategory, borrowStatusOrDefault(book.BorrowStatus),
		book.Borrower, book.BorrowDate, book.ReturnDate, history, createdAt,
	).Scan(&id)
	if err != nil {
		return "", classifyPgError("create book", err)
	}
	return id, nil
}

func (r *PostgresStore) UpdateBook(ctx context.Context, id string, patch model.BookPatch) error {
	key, ok := parseSerialID(id)
	if !ok {
		return model.ErrBookNotFound
	}

	query, args, err := buildBookUpdate(key, patch)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return classifyPgError("update book", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrBookNotFound
	}
	return nil
}

func (r *PostgresStore) DeleteBook(ctx context.Context, id string) error {
	key, ok := parseSerialID(id)
	if !ok {
		return model.ErrBookNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM books WHERE id = $1`, key)
	if err != nil {
		return classifyPgError("delete book", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrBookNotFound
	}
	return nil
}

func (r *PostgresStore) QueryBooks(ctx context.Context, q model.BookQuery) ([]model.Book, error) {
	where, args := buildBookWhere(q)
	query := fmt.Sprintf(`SELECT %s FROM books WHERE %s ORDER BY created_at DESC, id`, bookColumns, where)
	return r.queryBooks(ctx, query, args)
}

// QueryBooksPage: đếm tổng trước, rồi LIMIT/OFFSET với cùng WHERE
func (r *PostgresStore) QueryBooksPage(ctx context.Context, q model.BookQuery, offset, limit int) ([]model.Book, int, error) {
	total, err := r.CountBooks(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	if offset >= total {
		return []model.Book{}, total, nil
	}

	query, args := buildBookPageQuery(q, offset, limit)
	books, err := r.queryBooks(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	return books, total, nil
}

func (r *PostgresStore) queryBooks(ctx context.Context, query string, args []interface{}) ([]model.Book, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyPgError("query books", err)
	}
	defer rows.Close()

	books := []model.Book{}
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, classifyPgError("scan book", err)
		}
		books = append(books, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("iterate books", err)
	}
	return books, nil
}

func (r *PostgresStore) CountBooks(ctx context.Context, q model.BookQuery) (int, error) {
	where, args := buildBookWhere(q)
	var n int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM books WHERE `+where, args...).Scan(&n); err != nil {
		return 0, classifyPgError("count books", err)
	}
	return n, nil
}

// ========================================
// CATEGORIES
// ========================================

func (r *PostgresStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	return r.QueryCategories(ctx, model.CategoryQuery{})
}

func (r *PostgresStore) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	key, ok := parseSerialID(id)
	if !ok {
		return nil, model.ErrCategoryNotFound
	}
	c, err := scanCategory(r.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, key))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, model.ErrCategoryNotFound
	}
	if err != nil {
		return nil, classifyPgError("get category", err)
	}
	return c, nil
}

func (r *PostgresStore) CreateCategory(ctx context.Context, category *model.Category) (string, error) {
	createdAt := category.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO categories (legacy_id, name, count, icon, color, created_at)
		VALUES (NULLIF($1, ''), $2, $3, $4, $5, $6)
		RETURNING id::text`,
		category.LegacyID, category.Name, category.Count, category.Icon, category.Color, createdAt,
	).Scan(&id)
	if database.IsUniqueViolation(err) {
		return "", model.ErrDuplicateCategory
	}
	if err != nil {
		return "", classifyPgError("create category", err)
	}
	return id, nil
}

func (r *PostgresStore) UpdateCategory(ctx context.Context, id string, patch model.CategoryPatch) error {
	key, ok := parseSerialID(id)
	if !ok {
		return model.ErrCategoryNotFound
	}

	sets := []string{}
	args := []interface{}{}
	argIndex := 1
	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}
	if patch.Name != nil {
		add("name", *patch.Name)
	}
	if patch.Count != nil {
		add("count", *patch.Count)
	}
	if patch.Icon != nil {
		add("icon", *patch.Icon)
	}
	if patch.Color != nil {
		add("color", *patch.Color)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, key)
	query := fmt.Sprintf(`UPDATE categories SET %s WHERE id = $%d`, strings.Join(sets, ", "), argIndex)

	tag, err := r.pool.Exec(ctx, query, args...)
	if database.IsUniqueViolation(err) {
		return model.ErrDuplicateCategory
	}
	if err != nil {
		return classifyPgError("update category", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrCategoryNotFound
	}
	return nil
}

// ReplaceCategory ghi đè toàn bộ record (fallback khi update count lỗi)
func (r *PostgresStore) ReplaceCategory(ctx context.Context, category *model.Category) error {
	key, ok := parseSerialID(category.ID)
	if !ok {
		return model.ErrCategoryNotFound
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE categories
		SET legacy_id = NULLIF($1, ''), name = $2, count = $3, icon = $4, color = $5
		WHERE id = $6`,
		category.LegacyID, category.Name, category.Count, category.Icon, category.Color, key,
	)
	if database.IsUniqueViolation(err) {
		return model.ErrDuplicateCategory
	}
	if err != nil {
		return classifyPgError("replace category", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrCategoryNotFound
	}
	return nil
}

func (r *PostgresStore) DeleteCategory(ctx context.Context, id string) error {
	key, ok := parseSerialID(id)
	if !ok {
		return model.ErrCategoryNotFound
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, key)
	if err != nil {
		return classifyPgError("delete category", err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrCategoryNotFound
	}
	return nil
}

func (r *PostgresStore) QueryCategories(ctx context.Context, q model.CategoryQuery) ([]model.Category, error) {
	query := `SELECT ` + categoryColumns + ` FROM categories`
	args := []interface{}{}
	if q.Name != "" {
		query += ` WHERE name = $1`
		args = append(args, q.Name)
	}
	query += ` ORDER BY name, id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classifyPgError("query categories", err)
	}
	defer rows.Close()

	categories := []model.Category{}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, classifyPgError("scan category", err)
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("iterate categories", err)
	}
	return categories, nil
}

// ========================================
// STATISTICS
// ========================================

// CategoryStats: count thật theo membership, tính bằng LEFT JOIN + GROUP BY
func (r *PostgresStore) CategoryStats(ctx context.Context) ([]model.CategoryStat, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id::text, c.name, c.count, COUNT(b.id)::int AS book_count
		FROM categories c
		LEFT JOIN books b ON c.name = ANY(b.categories)
		GROUP BY c.id, c.name, c.count
		ORDER BY c.name`)
	if err != nil {
		return nil, classifyPgError("category stats", err)
	}
	defer rows.Close()

	stats := []model.CategoryStat{}
	for rows.Next() {
		var s model.CategoryStat
		if err := rows.Scan(&s.ID, &s.Name, &s.Count, &s.BookCount); err != nil {
			return nil, classifyPgError("scan category stat", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

func (r *PostgresStore) BorrowStats(ctx context.Context) (*model.BorrowStats, error) {
	var s model.BorrowStats
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*)::int,
		       COUNT(*) FILTER (WHERE borrow_status = 'lent')::int
		FROM books`).Scan(&s.Total, &s.Lent)
	if err != nil {
		return nil, classifyPgError("borrow stats", err)
	}
	s.Available = s.Total - s.Lent
	return &s, nil
}

// ============================================
// HELPER METHODS
// ============================================

// buildBookWhere dịch BookQuery sang WHERE clause với $n args
func buildBookWhere(q model.BookQuery) (string, []interface{}) {
	conditions := []string{"TRUE"}
	args := []interface{}{}
	argIndex := 1

	if q.Category != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(categories)", argIndex))
		args = append(args, q.Category)
		argIndex++
	}

	if q.Uncategorized {
		conditions = append(conditions, "(categories IS NULL OR cardinality(categories) = 0)")
	}

	if q.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(title ILIKE $%[1]d OR author ILIKE $%[1]d OR isbn ILIKE $%[1]d OR publisher ILIKE $%[1]d)", argIndex))
		args = append(args, "%"+q.Search+"%")
		argIndex++
	}

	if q.BorrowStatus != "" {
		conditions = append(conditions, fmt.Sprintf("borrow_status = $%d", argIndex))
		args = append(args, string(q.BorrowStatus))
		argIndex++
	}

	return strings.Join(conditions, " AND "), args
}

// buildBookPageQuery: SELECT một trang, limit/offset là 2 args cuối
func buildBookPageQuery(q model.BookQuery, offset, limit int) (string, []interface{}) {
	where, args := buildBookWhere(q)
	n := len(args)
	query := fmt.Sprintf(`SELECT %s FROM books WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		bookColumns, where, n+1, n+2)
	return query, append(args, limit, offset)
}

// buildBookUpdate tạo UPDATE động chỉ với các field có trong patch
func buildBookUpdate(id int64, patch model.BookPatch) (string, []interface{}, error) {
	sets := []string{}
	args := []interface{}{}
	argIndex := 1

	add := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIndex))
		args = append(args, value)
		argIndex++
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Author != nil {
		add("author", *patch.Author)
	}
	if patch.Publisher != nil {
		add("publisher", *patch.Publisher)
	}
	if patch.ISBN != nil {
		add("isbn", *patch.ISBN)
	}
	if patch.PublishDate != nil {
		add("publish_date", *patch.PublishDate)
	}
	if patch.Description != nil {
		add("description", *patch.Description)
	}
	if patch.CoverURL != nil {
		add("cover_url", *patch.CoverURL)
	}
	if patch.Pages != nil {
		add("pages", *patch.Pages)
	}
	if patch.Price != nil {
		add("price", *patch.Price)
	}
	if patch.Categories != nil {
		add("categories", pq.Array(nonNilStrings(*patch.Categories)))
	}
	if patch.PrimaryCategory != nil {
		add("category_name", *patch.PrimaryCategory)
	}
	if patch.BorrowStatus != nil {
		add("borrow_status", string(*patch.BorrowStatus))
	}
	if patch.Borrower != nil {
		add("borrower", *patch.Borrower)
	}
	if patch.BorrowDate != nil {
		add("borrow_date", *patch.BorrowDate)
	}
	if patch.ReturnDate != nil {
		add("return_date", *patch.ReturnDate)
	}
	if patch.BorrowHistory != nil {
		history, err := json.Marshal(nonNilHistory(*patch.BorrowHistory))
		if err != nil {
			return "", nil, fmt.Errorf("marshal borrow history: %w", err)
		}
		add("borrow_history", history)
	}

	sets = append(sets, "updated_at = NOW()")
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE books SET %s WHERE id = $%d`, strings.Join(sets, ", "), argIndex)
	return query, args, nil
}

func scanBook(row pgx.Row) (*model.Book, error) {
	var (
		b          model.Book
		categories []string
		status     string
		history    []byte
	)
	err := row.Scan(
		&b.ID, &b.LegacyID, &b.Title, &b.Author, &b.Publisher, &b.ISBN, &b.PublishDate,
		&b.Description, &b.CoverURL, &b.Pages, &b.Price, pq.Array(&categories), &b.PrimaryCategory,
		&status, &b.Borrower, &b.BorrowDate, &b.ReturnDate, &history,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	// NULL → drift: record cũ chưa từng có cột categories
	if categories == nil {
		b.Drift |= model.DriftCategoriesMissing
	}
	b.Categories = categories
	b.BorrowStatus = model.BorrowStatus(status)

	if len(history) > 0 {
		if err := json.Unmarshal(history, &b.BorrowHistory); err != nil {
			return nil, fmt.Errorf("decode borrow history: %w", err)
		}
	}
	return &b, nil
}

func scanCategory(row pgx.Row) (*model.Category, error) {
	var c model.Category
	if err := row.Scan(&c.ID, &c.LegacyID, &c.Name, &c.Count, &c.Icon, &c.Color, &c.CreatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// classifyPgError map lỗi driver sang error taxonomy của catalog
func classifyPgError(op string, err error) error {
	switch {
	case database.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w: %v", op, model.ErrConstraintViolation, err)
	case database.IsConnectionError(err):
		return fmt.Errorf("%s: %w", op, model.Transient(err))
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}

func parseSerialID(id string) (int64, bool) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func borrowStatusOrDefault(s model.BorrowStatus) string {
	if s == "" {
		return string(model.BorrowAvailable)
	}
	return string(s)
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func nonNilHistory(in []model.BorrowRecord) []model.BorrowRecord {
	if in == nil {
		return []model.BorrowRecord{}
	}
	return in
}
