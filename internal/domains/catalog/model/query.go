package model

import "strings"

// BookQuery là predicate có cấu trúc, mỗi store tự dịch sang query của nó
// (WHERE clause, bson filter, query params). Các field rỗng bị bỏ qua.
type BookQuery struct {
	Category      string       `form:"category"`
	Uncategorized bool         `form:"uncategorized"`
	Search        string       `form:"search"`
	BorrowStatus  BorrowStatus `form:"borrow_status"`
}

// IsEmpty: không có điều kiện nào → tương đương list
func (q BookQuery) IsEmpty() bool {
	return q.Category == "" && !q.Uncategorized && q.Search == "" && q.BorrowStatus == ""
}

// Matches dùng cho MemoryStore và local cache
func (q BookQuery) Matches(b Book) bool {
	if q.Category != "" && !b.HasCategory(q.Category) {
		return false
	}
	if q.Uncategorized && len(b.Categories) > 0 {
		return false
	}
	if q.BorrowStatus != "" && b.BorrowStatus != q.BorrowStatus {
		return false
	}
	if q.Search != "" {
		needle := strings.ToLower(q.Search)
		hay := []string{b.Title, b.Author, b.ISBN, b.Publisher}
		found := false
		for _, h := range hay {
			if strings.Contains(strings.ToLower(h), needle) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

type CategoryQuery struct {
	Name string `form:"name"`
}

func (q CategoryQuery) Matches(c Category) bool {
	return q.Name == "" || c.Name == q.Name
}
