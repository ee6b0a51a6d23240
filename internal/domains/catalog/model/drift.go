package model

import (
	"encoding/json"
)

// Drift là bit flags do store decoder gắn vào Book khi record trên wire
// không đúng shape hiện tại. Repairer là bước duy nhất đọc và xóa chúng.
type Drift uint8

const (
	// DriftCategoriesMissing: record không có field categories (hoặc null)
	DriftCategoriesMissing Drift = 1 << iota
	// DriftCategoriesMalformed: categories không phải list of string
	DriftCategoriesMalformed
)

func (d Drift) Has(flag Drift) bool {
	return d&flag != 0
}

// NeedsReinit: categories phải được khởi tạo lại từ primary category
func (d Drift) NeedsReinit() bool {
	return d.Has(DriftCategoriesMissing) || d.Has(DriftCategoriesMalformed)
}

// CoerceCategories chuyển giá trị raw (đã decode từ JSON/BSON sang Go)
// thành list tên. Giá trị không hợp lệ trả về nil kèm drift flag.
func CoerceCategories(raw interface{}) ([]string, Drift) {
	switch v := raw.(type) {
	case nil:
		return nil, DriftCategoriesMissing
	case []string:
		return append([]string{}, v...), 0
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, DriftCategoriesMalformed
			}
			out = append(out, s)
		}
		return out, 0
	default:
		return nil, DriftCategoriesMalformed
	}
}

// DecodeCategoriesJSON: giống CoerceCategories nhưng cho json.RawMessage
func DecodeCategoriesJSON(raw json.RawMessage) ([]string, Drift) {
	if len(raw) == 0 {
		return nil, DriftCategoriesMissing
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, DriftCategoriesMalformed
	}
	return CoerceCategories(v)
}
