package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type BorrowStatus string

const (
	BorrowAvailable BorrowStatus = "available"
	BorrowLent      BorrowStatus = "lent"
)

// TempIDPrefix đánh dấu id do client tự cấp khi store chưa trả về canonical id
const TempIDPrefix = "tmp_"

// Book là record đã normalize. Mọi store adapter decode về struct này,
// các shape cũ (categories thiếu/sai kiểu) được ghi lại trong Drift.
type Book struct {
	ID       string `json:"id"`
	LegacyID string `json:"legacy_id,omitempty"`

	Title       string          `json:"title"`
	Author      string          `json:"author"`
	Publisher   string          `json:"publisher"`
	ISBN        string          `json:"isbn"`
	PublishDate string          `json:"publish_date"`
	Description string          `json:"description"`
	CoverURL    string          `json:"cover_url"`
	Pages       int             `json:"pages"`
	Price       decimal.Decimal `json:"price"`

	Categories      []string `json:"categories"`
	PrimaryCategory string   `json:"primary_category"`

	BorrowStatus  BorrowStatus   `json:"borrow_status"`
	Borrower      string         `json:"borrower,omitempty"`
	BorrowDate    *time.Time     `json:"borrow_date,omitempty"`
	ReturnDate    *time.Time     `json:"return_date,omitempty"`
	BorrowHistory []BorrowRecord `json:"borrow_history,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Drift Drift `json:"drift,omitempty"`
}

type BorrowRecord struct {
	Borrower   string     `json:"borrower"`
	BorrowDate time.Time  `json:"borrow_date"`
	ReturnDate *time.Time `json:"return_date,omitempty"`
}

// IsTemporary: id do client cấp, store chưa xác nhận
func IsTemporary(id string) bool {
	return len(id) > len(TempIDPrefix) && id[:len(TempIDPrefix)] == TempIDPrefix
}

// HasCategory kiểm tra membership theo display name
func (b *Book) HasCategory(name string) bool {
	for _, c := range b.Categories {
		if c == name {
			return true
		}
	}
	return false
}

// CategoryNames trả về tập tên (đã bỏ trùng), giữ thứ tự xuất hiện
func (b *Book) CategoryNames() []string {
	return UniqueNames(b.Categories)
}

// Clone deep-copy các slice để cache không bị sửa từ bên ngoài
func (b Book) Clone() Book {
	out := b
	if b.Categories != nil {
		out.Categories = append([]string(nil), b.Categories...)
	}
	if b.BorrowHistory != nil {
		out.BorrowHistory = make([]BorrowRecord, len(b.BorrowHistory))
		copy(out.BorrowHistory, b.BorrowHistory)
	}
	if b.BorrowDate != nil {
		t := *b.BorrowDate
		out.BorrowDate = &t
	}
	if b.ReturnDate != nil {
		t := *b.ReturnDate
		out.ReturnDate = &t
	}
	return out
}

// PrimaryFor: phần tử đầu tiên, hoặc fallback khi rỗng
func PrimaryFor(categories []string, fallback string) string {
	if len(categories) == 0 {
		return fallback
	}
	return categories[0]
}

// UniqueNames bỏ tên rỗng và tên trùng
func UniqueNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// UnionNames hợp hai tập tên, giữ thứ tự a rồi b
func UnionNames(a, b []string) []string {
	all := make([]string, 0, len(a)+len(b))
	all = append(all, a...)
	all = append(all, b...)
	return UniqueNames(all)
}

// SameNames so sánh hai danh sách như multiset có thứ tự
func SameNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
