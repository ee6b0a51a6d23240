package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"household-catalog/internal/domains/catalog/model"
)

// Field names theo schema cũ của cloud document store
const (
	fieldID            = "_id"
	fieldLegacyID      = "legacyId"
	fieldTitle         = "title"
	fieldAuthor        = "author"
	fieldPublisher     = "publisher"
	fieldISBN          = "isbn"
	fieldPublishDate   = "publishDate"
	fieldDescription   = "description"
	fieldCoverURL      = "coverUrl"
	fieldPages         = "pages"
	fieldPrice         = "price"
	fieldCategories    = "categories"
	fieldCategory      = "category"
	fieldBorrowStatus  = "borrowStatus"
	fieldBorrower      = "borrower"
	fieldBorrowDate    = "borrowDate"
	fieldReturnDate    = "returnDate"
	fieldBorrowHistory = "borrowHistory"
	fieldCreateTime    = "createTime"
	fieldUpdateTime    = "updateTime"

	fieldName  = "name"
	fieldCount = "count"
	fieldIcon  = "icon"
	fieldColor = "color"
)

// Document store lưu borrowStatus bằng 'in'/'out'
const (
	docStatusIn  = "in"
	docStatusOut = "out"
)

// MongoStore là document-oriented backing store
type MongoStore struct {
	books      *mongo.Collection
	categories *mongo.Collection
}

var (
	_ Store         = (*MongoStore)(nil)
	_ StatsProvider = (*MongoStore)(nil)
)

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		books:      db.Collection("books"),
		categories: db.Collection("categories"),
	}
}

func (s *MongoStore) Name() string { return "mongo" }

// EnsureIndexes: tên category unique, sort theo createTime
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	if _, err := s.categories.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: fieldName, Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("ensure category name index: %w", err)
	}
	if _, err := s.books.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: fieldCategories, Value: 1}}},
		{Keys: bson.D{{Key: fieldCreateTime, Value: -1}, {Key: fieldID, Value: 1}}},
	}); err != nil {
		return fmt.Errorf("ensure book indexes: %w", err)
	}
	return nil
}

// ========================================
// BOOKS
// ========================================

func (s *MongoStore) ListBooks(ctx context.Context) ([]model.Book, error) {
	return s.QueryBooks(ctx, model.BookQuery{})
}

func (s *MongoStore) GetBook(ctx context.Context, id string) (*model.Book, error) {
	var doc bson.M
	err := s.books.FindOne(ctx, idFilter(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrBookNotFound
	}
	if err != nil {
		return nil, classifyMongoError("get book", err)
	}
	b := decodeBookDocument(doc)
	return &b, nil
}

func (s *MongoStore) CreateBook(ctx context.Context, book *model.Book) (string, error) {
	doc := encodeBookDocument(book)
	res, err := s.books.InsertOne(ctx, doc)
	if err != nil {
		return "", classifyMongoError("create book", err)
	}
	return idString(res.InsertedID), nil
}

func (s *MongoStore) UpdateBook(ctx context.Context, id string, patch model.BookPatch) error {
	set := bookPatchDocument(patch)
	set[fieldUpdateTime] = time.Now().UTC()

	res, err := s.books.UpdateOne(ctx, idFilter(id), bson.M{"$set": set})
	if err != nil {
		return classifyMongoError("update book", err)
	}
	if res.MatchedCount == 0 {
		return model.ErrBookNotFound
	}
	return nil
}

func (s *MongoStore) DeleteBook(ctx context.Context, id string) error {
	res, err := s.books.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return classifyMongoError("delete book", err)
	}
	if res.DeletedCount == 0 {
		return model.ErrBookNotFound
	}
	return nil
}

func (s *MongoStore) QueryBooks(ctx context.Context, q model.BookQuery) ([]model.Book, error) {
	return s.findBooks(ctx, buildBookFilter(q), options.Find().SetSort(bookSort))
}

// QueryBooksPage: CountDocuments + Skip/Limit trên cùng filter
func (s *MongoStore) QueryBooksPage(ctx context.Context, q model.BookQuery, offset, limit int) ([]model.Book, int, error) {
	filter := buildBookFilter(q)
	total, err := s.books.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, classifyMongoError("count books", err)
	}
	if int64(offset) >= total {
		return []model.Book{}, int(total), nil
	}

	opts := options.Find().SetSort(bookSort).SetSkip(int64(offset)).SetLimit(int64(limit))
	books, err := s.findBooks(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	return books, int(total), nil
}

// bookSort giữ cùng thứ tự với relational store: mới nhất trước, rồi _id
var bookSort = bson.D{{Key: fieldCreateTime, Value: -1}, {Key: fieldID, Value: 1}}

func (s *MongoStore) findBooks(ctx context.Context, filter bson.M, opts *options.FindOptionsBuilder) ([]model.Book, error) {
	cursor, err := s.books.Find(ctx, filter, opts)
	if err != nil {
		return nil, classifyMongoError("query books", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError("decode books", err)
	}

	books := make([]model.Book, 0, len(docs))
	for _, doc := range docs {
		books = append(books, decodeBookDocument(doc))
	}
	return books, nil
}

func (s *MongoStore) CountBooks(ctx context.Context, q model.BookQuery) (int, error) {
	n, err := s.books.CountDocuments(ctx, buildBookFilter(q))
	if err != nil {
		return 0, classifyMongoError("count books", err)
	}
	return int(n), nil
}

// ========================================
// CATEGORIES
// ========================================

func (s *MongoStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.QueryCategories(ctx, model.CategoryQuery{})
}

func (s *MongoStore) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	var doc bson.M
	err := s.categories.FindOne(ctx, idFilter(id)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, model.ErrCategoryNotFound
	}
	if err != nil {
		return nil, classifyMongoError("get category", err)
	}
	c := decodeCategoryDocument(doc)
	return &c, nil
}

func (s *MongoStore) CreateCategory(ctx context.Context, category *model.Category) (string, error) {
	createdAt := category.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	doc := bson.M{
		fieldName:       category.Name,
		fieldCount:      category.Count,
		fieldIcon:       category.Icon,
		fieldColor:      category.Color,
		fieldCreateTime: createdAt,
	}
	if category.LegacyID != "" {
		doc[fieldLegacyID] = category.LegacyID
	}

	res, err := s.categories.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return "", model.ErrDuplicateCategory
	}
	if err != nil {
		return "", classifyMongoError("create category", err)
	}
	return idString(res.InsertedID), nil
}

func (s *MongoStore) UpdateCategory(ctx context.Context, id string, patch model.CategoryPatch) error {
	set := bson.M{}
	if patch.Name != nil {
		set[fieldName] = *patch.Name
	}
	if patch.Count != nil {
		set[fieldCount] = *patch.Count
	}
	if patch.Icon != nil {
		set[fieldIcon] = *patch.Icon
	}
	if patch.Color != nil {
		set[fieldColor] = *patch.Color
	}
	if len(set) == 0 {
		return nil
	}

	res, err := s.categories.UpdateOne(ctx, idFilter(id), bson.M{"$set": set})
	if mongo.IsDuplicateKeyError(err) {
		return model.ErrDuplicateCategory
	}
	if err != nil {
		return classifyMongoError("update category", err)
	}
	if res.MatchedCount == 0 {
		return model.ErrCategoryNotFound
	}
	return nil
}

// ReplaceCategory ghi đè cả document (giữ _id)
func (s *MongoStore) ReplaceCategory(ctx context.Context, category *model.Category) error {
	doc := bson.M{
		fieldName:       category.Name,
		fieldCount:      category.Count,
		fieldIcon:       category.Icon,
		fieldColor:      category.Color,
		fieldCreateTime: category.CreatedAt,
	}
	if category.LegacyID != "" {
		doc[fieldLegacyID] = category.LegacyID
	}

	res, err := s.categories.ReplaceOne(ctx, idFilter(category.ID), doc)
	if mongo.IsDuplicateKeyError(err) {
		return model.ErrDuplicateCategory
	}
	if err != nil {
		return classifyMongoError("replace category", err)
	}
	if res.MatchedCount == 0 {
		return model.ErrCategoryNotFound
	}
	return nil
}

func (s *MongoStore) DeleteCategory(ctx context.Context, id string) error {
	res, err := s.categories.DeleteOne(ctx, idFilter(id))
	if err != nil {
		return classifyMongoError("delete category", err)
	}
	if res.DeletedCount == 0 {
		return model.ErrCategoryNotFound
	}
	return nil
}

func (s *MongoStore) QueryCategories(ctx context.Context, q model.CategoryQuery) ([]model.Category, error) {
	filter := bson.M{}
	if q.Name != "" {
		filter[fieldName] = q.Name
	}
	opts := options.Find().SetSort(bson.D{{Key: fieldName, Value: 1}, {Key: fieldID, Value: 1}})
	cursor, err := s.categories.Find(ctx, filter, opts)
	if err != nil {
		return nil, classifyMongoError("query categories", err)
	}
	defer cursor.Close(ctx)

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classifyMongoError("decode categories", err)
	}
	out := make([]model.Category, 0, len(docs))
	for _, doc := range docs {
		out = append(out, decodeCategoryDocument(doc))
	}
	return out, nil
}

// ========================================
// STATISTICS
// ========================================

// CategoryStats đếm membership bằng aggregation, mỗi book tính một lần
// cho mỗi tên (setUnion bỏ trùng trong cùng book)
func (s *MongoStore) CategoryStats(ctx context.Context) ([]model.CategoryStat, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$project", Value: bson.M{
			"cats": bson.M{"$cond": bson.A{
				bson.M{"$isArray": "$" + fieldCategories},
				bson.M{"$setUnion": bson.A{"$" + fieldCategories, bson.A{}}},
				bson.A{},
			}},
		}}},
		{{Key: "$unwind", Value: "$cats"}},
		{{Key: "$match", Value: bson.M{"cats": bson.M{"$type": "string"}}}},
		{{Key: "$group", Value: bson.M{"_id": "$cats", "n": bson.M{"$sum": 1}}}},
	}

	cursor, err := s.books.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, classifyMongoError("category stats", err)
	}
	defer cursor.Close(ctx)

	var groups []struct {
		Name string `bson:"_id"`
		N    int    `bson:"n"`
	}
	if err := cursor.All(ctx, &groups); err != nil {
		return nil, classifyMongoError("decode category stats", err)
	}
	counts := make(map[string]int, len(groups))
	for _, g := range groups {
		counts[g.Name] = g.N
	}

	categories, err := s.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	stats := make([]model.CategoryStat, 0, len(categories))
	for _, c := range categories {
		stats = append(stats, model.CategoryStat{ID: c.ID, Name: c.Name, Count: c.Count, BookCount: counts[c.Name]})
	}
	return stats, nil
}

func (s *MongoStore) BorrowStats(ctx context.Context) (*model.BorrowStats, error) {
	total, err := s.books.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, classifyMongoError("borrow stats", err)
	}
	lent, err := s.books.CountDocuments(ctx, bson.M{fieldBorrowStatus: bson.M{"$in": bson.A{docStatusOut, string(model.BorrowLent)}}})
	if err != nil {
		return nil, classifyMongoError("borrow stats", err)
	}
	return &model.BorrowStats{Total: int(total), Lent: int(lent), Available: int(total - lent)}, nil
}

// ============================================
// ENCODE / DECODE
// ============================================

// idFilter: id có thể là ObjectID (hex) hoặc string id của cloud store cũ
func idFilter(id string) bson.M {
	if oid, err := bson.ObjectIDFromHex(id); err == nil {
		return bson.M{fieldID: bson.M{"$in": bson.A{oid, id}}}
	}
	return bson.M{fieldID: id}
}

func idString(v interface{}) string {
	switch id := v.(type) {
	case bson.ObjectID:
		return id.Hex()
	case string:
		return id
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

// buildBookFilter dịch BookQuery sang bson filter
func buildBookFilter(q model.BookQuery) bson.M {
	and := bson.A{}

	if q.Category != "" {
		and = append(and, bson.M{fieldCategories: q.Category})
	}
	if q.Uncategorized {
		and = append(and, bson.M{"$or": bson.A{
			bson.M{fieldCategories: bson.M{"$exists": false}},
			bson.M{fieldCategories: nil},
			bson.M{fieldCategories: bson.M{"$size": 0}},
		}})
	}
	if q.Search != "" {
		re := bson.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		and = append(and, bson.M{"$or": bson.A{
			bson.M{fieldTitle: re},
			bson.M{fieldAuthor: re},
			bson.M{fieldISBN: re},
			bson.M{fieldPublisher: re},
		}})
	}
	if q.BorrowStatus != "" {
		and = append(and, bson.M{fieldBorrowStatus: bson.M{"$in": docStatusValues(q.BorrowStatus)}})
	}

	if len(and) == 0 {
		return bson.M{}
	}
	if len(and) == 1 {
		return and[0].(bson.M)
	}
	return bson.M{"$and": and}
}

func encodeBookDocument(b *model.Book) bson.M {
	createdAt := b.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	doc := bson.M{
		fieldTitle:         b.Title,
		fieldAuthor:        b.Author,
		fieldPublisher:     b.Publisher,
		fieldISBN:          b.ISBN,
		fieldPublishDate:   b.PublishDate,
		fieldDescription:   b.Description,
		fieldCoverURL:      b.CoverURL,
		fieldPages:         b.Pages,
		fieldPrice:         b.Price.String(),
		fieldCategories:    nonNilStrings(b.Categories),
		fieldCategory:      b.PrimaryCategory,
		fieldBorrowStatus:  toDocStatus(b.BorrowStatus),
		fieldBorrower:      b.Borrower,
		fieldBorrowHistory: encodeHistory(b.BorrowHistory),
		fieldCreateTime:    createdAt,
		fieldUpdateTime:    time.Now().UTC(),
	}
	if b.LegacyID != "" {
		doc[fieldLegacyID] = b.LegacyID
	}
	if b.BorrowDate != nil {
		doc[fieldBorrowDate] = *b.BorrowDate
	}
	if b.ReturnDate != nil {
		doc[fieldReturnDate] = *b.ReturnDate
	}
	return doc
}

func bookPatchDocument(p model.BookPatch) bson.M {
	set := bson.M{}
	putString := func(key string, v *string) {
		if v != nil {
			set[key] = *v
		}
	}
	putString(fieldTitle, p.Title)
	putString(fieldAuthor, p.Author)
	putString(fieldPublisher, p.Publisher)
	putString(fieldISBN, p.ISBN)
	putString(fieldPublishDate, p.PublishDate)
	putString(fieldDescription, p.Description)
	putString(fieldCoverURL, p.CoverURL)
	putString(fieldCategory, p.PrimaryCategory)
	putString(fieldBorrower, p.Borrower)
	if p.Pages != nil {
		set[fieldPages] = *p.Pages
	}
	if p.Price != nil {
		set[fieldPrice] = p.Price.String()
	}
	if p.Categories != nil {
		set[fieldCategories] = nonNilStrings(*p.Categories)
	}
	if p.BorrowStatus != nil {
		set[fieldBorrowStatus] = toDocStatus(*p.BorrowStatus)
	}
	if p.BorrowDate != nil {
		set[fieldBorrowDate] = *p.BorrowDate
	}
	if p.ReturnDate != nil {
		set[fieldReturnDate] = *p.ReturnDate
	}
	if p.BorrowHistory != nil {
		set[fieldBorrowHistory] = encodeHistory(*p.BorrowHistory)
	}
	return set
}

// decodeBookDocument chấp nhận mọi shape đã từng tồn tại trong collection.
// categories sai kiểu được đánh dấu Drift để Repairer xử lý.
func decodeBookDocument(doc map[string]interface{}) model.Book {
	b := model.Book{
		ID:              idString(doc[fieldID]),
		LegacyID:        docString(doc, fieldLegacyID),
		Title:           docString(doc, fieldTitle),
		Author:          docString(doc, fieldAuthor),
		Publisher:       docString(doc, fieldPublisher),
		ISBN:            docString(doc, fieldISBN),
		PublishDate:     docString(doc, fieldPublishDate),
		Description:     docString(doc, fieldDescription),
		CoverURL:        docString(doc, fieldCoverURL),
		Pages:           docInt(doc[fieldPages]),
		Price:           docDecimal(doc[fieldPrice]),
		PrimaryCategory: docString(doc, fieldCategory),
		BorrowStatus:    fromDocStatus(docString(doc, fieldBorrowStatus)),
		Borrower:        docString(doc, fieldBorrower),
		BorrowDate:      docTime(doc[fieldBorrowDate]),
		ReturnDate:      docTime(doc[fieldReturnDate]),
		BorrowHistory:   decodeHistory(doc[fieldBorrowHistory]),
	}
	if t := docTime(doc[fieldCreateTime]); t != nil {
		b.CreatedAt = *t
	}
	if t := docTime(doc[fieldUpdateTime]); t != nil {
		b.UpdatedAt = *t
	}

	raw, present := doc[fieldCategories]
	if !present {
		raw = nil
	}
	if arr, ok := raw.(bson.A); ok {
		raw = []interface{}(arr)
	}
	b.Categories, b.Drift = model.CoerceCategories(raw)
	return b
}

func decodeCategoryDocument(doc map[string]interface{}) model.Category {
	c := model.Category{
		ID:       idString(doc[fieldID]),
		LegacyID: docString(doc, fieldLegacyID),
		Name:     docString(doc, fieldName),
		Count:    docInt(doc[fieldCount]),
		Icon:     docString(doc, fieldIcon),
		Color:    docString(doc, fieldColor),
	}
	if t := docTime(doc[fieldCreateTime]); t != nil {
		c.CreatedAt = *t
	}
	return c
}

func encodeHistory(in []model.BorrowRecord) bson.A {
	out := bson.A{}
	for _, r := range in {
		entry := bson.M{fieldBorrower: r.Borrower, fieldBorrowDate: r.BorrowDate}
		if r.ReturnDate != nil {
			entry[fieldReturnDate] = *r.ReturnDate
		}
		out = append(out, entry)
	}
	return out
}

func decodeHistory(v interface{}) []model.BorrowRecord {
	items, ok := asArray(v)
	if !ok {
		return nil
	}
	out := make([]model.BorrowRecord, 0, len(items))
	for _, item := range items {
		m, ok := asMap(item)
		if !ok {
			continue
		}
		r := model.BorrowRecord{Borrower: docString(m, fieldBorrower), ReturnDate: docTime(m[fieldReturnDate])}
		if t := docTime(m[fieldBorrowDate]); t != nil {
			r.BorrowDate = *t
		}
		out = append(out, r)
	}
	return out
}

func toDocStatus(s model.BorrowStatus) string {
	if s == model.BorrowLent {
		return docStatusOut
	}
	return docStatusIn
}

func fromDocStatus(s string) model.BorrowStatus {
	switch s {
	case docStatusOut, string(model.BorrowLent):
		return model.BorrowLent
	default:
		return model.BorrowAvailable
	}
}

func docStatusValues(s model.BorrowStatus) bson.A {
	if s == model.BorrowLent {
		return bson.A{docStatusOut, string(model.BorrowLent)}
	}
	return bson.A{docStatusIn, string(model.BorrowAvailable)}
}

func docString(doc map[string]interface{}, key string) string {
	switch v := doc[key].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// docInt: form cũ lưu pages dạng string ("320" hoặc "")
func docInt(v interface{}) int {
	switch n := v.(type) {
	case int32:
		return int(n)
	case int64:
		return int(n)
	case int:
		return n
	case float64:
		return int(n)
	case string:
		i, _ := strconv.Atoi(strings.TrimSpace(n))
		return i
	default:
		return 0
	}
}

func docDecimal(v interface{}) decimal.Decimal {
	switch n := v.(type) {
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(n))
		if err != nil {
			return decimal.Zero
		}
		return d
	case float64:
		return decimal.NewFromFloat(n)
	case int32:
		return decimal.NewFromInt(int64(n))
	case int64:
		return decimal.NewFromInt(n)
	case bson.Decimal128:
		d, err := decimal.NewFromString(n.String())
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}

func docTime(v interface{}) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case bson.DateTime:
		t = x.Time().UTC()
	case time.Time:
		t = x.UTC()
	case string:
		if x == "" {
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, x)
		if err != nil {
			parsed, err = time.Parse("2006-01-02", x)
			if err != nil {
				return nil
			}
		}
		t = parsed.UTC()
	default:
		return nil
	}
	return &t
}

func asArray(v interface{}) ([]interface{}, bool) {
	switch a := v.(type) {
	case bson.A:
		return []interface{}(a), true
	case []interface{}:
		return a, true
	default:
		return nil, false
	}
}

func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case bson.M:
		return m, true
	case map[string]interface{}:
		return m, true
	case bson.D:
		out := make(map[string]interface{}, len(m))
		for _, e := range m {
			out[e.Key] = e.Value
		}
		return out, true
	default:
		return nil, false
	}
}

// classifyMongoError map lỗi driver sang error taxonomy
func classifyMongoError(op string, err error) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w: %v", op, model.ErrConstraintViolation, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return fmt.Errorf("%s: %w", op, model.Transient(err))
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
