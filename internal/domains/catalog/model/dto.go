package model

import (
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/shopspring/decimal"
)

// ========================================
// BOOK DTOs
// ========================================

// BookInput là dữ liệu tạo sách mới (từ CLI, REST hoặc import)
type BookInput struct {
	LegacyID    string          `json:"legacy_id,omitempty"`
	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Publisher   string          `json:"publisher"`
	ISBN        string          `json:"isbn"`
	PublishDate string          `json:"publish_date"`
	Description string          `json:"description"`
	CoverURL    string          `json:"cover_url"`
	Pages       int             `json:"pages"`
	Price       decimal.Decimal `json:"price"`
	Categories  []string        `json:"categories"`
}

func (r BookInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Title,
			validation.Required.Error("title is required"),
			validation.Length(1, 500),
		),
		validation.Field(&r.Author, validation.Length(0, 255)),
		validation.Field(&r.ISBN, validation.Length(0, 20)),
		validation.Field(&r.CoverURL, is.URL),
		validation.Field(&r.Pages, validation.Min(0)),
		validation.Field(&r.Price, validation.By(nonNegativeDecimal)),
		validation.Field(&r.Categories, validation.Each(validation.Required.Error("category name must not be empty"))),
	)
}

// ToBook tạo Book với categories đã bỏ trùng và primary category
func (r BookInput) ToBook(fallbackCategory string, now time.Time) Book {
	cats := UniqueNames(trimAll(r.Categories))
	return Book{
		LegacyID:        r.LegacyID,
		Title:           strings.TrimSpace(r.Title),
		Author:          r.Author,
		Publisher:       r.Publisher,
		ISBN:            r.ISBN,
		PublishDate:     r.PublishDate,
		Description:     r.Description,
		CoverURL:        r.CoverURL,
		Pages:           r.Pages,
		Price:           r.Price,
		Categories:      cats,
		PrimaryCategory: PrimaryFor(cats, fallbackCategory),
		BorrowStatus:    BorrowAvailable,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Validate dùng ở phía server khi nhận nguyên record (POST /books)
func (b Book) Validate() error {
	return validation.ValidateStruct(&b,
		validation.Field(&b.Title,
			validation.Required.Error("title is required"),
			validation.Length(1, 500),
		),
		validation.Field(&b.Pages, validation.Min(0)),
		validation.Field(&b.Price, validation.By(nonNegativeDecimal)),
		validation.Field(&b.BorrowStatus, validation.In(BorrowAvailable, BorrowLent)),
	)
}

// BookPatch: chỉ các field khác nil được ghi (last write wins)
type BookPatch struct {
	Title           *string          `json:"title,omitempty"`
	Author          *string          `json:"author,omitempty"`
	Publisher       *string          `json:"publisher,omitempty"`
	ISBN            *string          `json:"isbn,omitempty"`
	PublishDate     *string          `json:"publish_date,omitempty"`
	Description     *string          `json:"description,omitempty"`
	CoverURL        *string          `json:"cover_url,omitempty"`
	Pages           *int             `json:"pages,omitempty"`
	Price           *decimal.Decimal `json:"price,omitempty"`
	Categories      *[]string        `json:"categories,omitempty"`
	PrimaryCategory *string          `json:"primary_category,omitempty"`
	BorrowStatus    *BorrowStatus    `json:"borrow_status,omitempty"`
	Borrower        *string          `json:"borrower,omitempty"`
	BorrowDate      *time.Time       `json:"borrow_date,omitempty"`
	ReturnDate      *time.Time       `json:"return_date,omitempty"`
	BorrowHistory   *[]BorrowRecord  `json:"borrow_history,omitempty"`
}

func (p BookPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.NilOrNotEmpty.Error("title must not be empty"), validation.Length(1, 500)),
		validation.Field(&p.Pages, validation.Min(0)),
		validation.Field(&p.BorrowStatus, validation.In(BorrowAvailable, BorrowLent)),
	)
}

func (p BookPatch) IsEmpty() bool {
	return p == BookPatch{}
}

// TouchesCategories: patch có thay đổi membership
func (p BookPatch) TouchesCategories() bool {
	return p.Categories != nil
}

// Apply ghi patch lên b
func (p BookPatch) Apply(b *Book) {
	setString(&b.Title, p.Title)
	setString(&b.Author, p.Author)
	setString(&b.Publisher, p.Publisher)
	setString(&b.ISBN, p.ISBN)
	setString(&b.PublishDate, p.PublishDate)
	setString(&b.Description, p.Description)
	setString(&b.CoverURL, p.CoverURL)
	setString(&b.PrimaryCategory, p.PrimaryCategory)
	setString(&b.Borrower, p.Borrower)
	if p.Pages != nil {
		b.Pages = *p.Pages
	}
	if p.Price != nil {
		b.Price = *p.Price
	}
	if p.Categories != nil {
		b.Categories = append([]string{}, (*p.Categories)...)
		b.Drift = 0
	}
	if p.BorrowStatus != nil {
		b.BorrowStatus = *p.BorrowStatus
	}
	if p.BorrowDate != nil {
		t := *p.BorrowDate
		b.BorrowDate = &t
	}
	if p.ReturnDate != nil {
		t := *p.ReturnDate
		b.ReturnDate = &t
	}
	if p.BorrowHistory != nil {
		b.BorrowHistory = append([]BorrowRecord{}, (*p.BorrowHistory)...)
	}
}

// ========================================
// CATEGORY DTOs
// ========================================

type CategoryInput struct {
	LegacyID string `json:"legacy_id,omitempty"`
	Name     string `json:"name"`
	Icon     string `json:"icon,omitempty"`
	Color    string `json:"color,omitempty"`
}

func (r CategoryInput) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name,
			validation.Required.Error("category name is required"),
			validation.Length(1, 100),
		),
		validation.Field(&r.Color, validation.Length(0, 20)),
	)
}

func (r CategoryInput) ToCategory(now time.Time) Category {
	return Category{
		LegacyID:  r.LegacyID,
		Name:      strings.TrimSpace(r.Name),
		Icon:      r.Icon,
		Color:     r.Color,
		CreatedAt: now,
	}
}

type CategoryPatch struct {
	Name  *string `json:"name,omitempty"`
	Count *int    `json:"count,omitempty"`
	Icon  *string `json:"icon,omitempty"`
	Color *string `json:"color,omitempty"`
}

func (p CategoryPatch) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.NilOrNotEmpty.Error("category name must not be empty")),
		validation.Field(&p.Count, validation.Min(0)),
	)
}

func (p CategoryPatch) Apply(c *Category) {
	setString(&c.Name, p.Name)
	setString(&c.Icon, p.Icon)
	setString(&c.Color, p.Color)
	if p.Count != nil {
		c.Count = *p.Count
	}
}

// ========================================
// helpers
// ========================================

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, strings.TrimSpace(s))
	}
	return out
}

func nonNegativeDecimal(value interface{}) error {
	d, ok := value.(decimal.Decimal)
	if !ok {
		return nil
	}
	if d.IsNegative() {
		return validation.NewError("validation_price_negative", "price must not be negative")
	}
	return nil
}
