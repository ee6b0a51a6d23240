package model

import "time"

// Category.Count là derived aggregate: luôn bằng số Book có Name trong categories.
// Category có Count == 0 không bao giờ bị xóa tự động.
type Category struct {
	ID        string    `json:"id"`
	LegacyID  string    `json:"legacy_id,omitempty"`
	Name      string    `json:"name"`
	Count     int       `json:"count"`
	Icon      string    `json:"icon,omitempty"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// CategoryStat là một dòng của statistics endpoint
type CategoryStat struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Count     int    `json:"count"`
	BookCount int    `json:"book_count"`
}

type BorrowStats struct {
	Total     int `json:"total"`
	Lent      int `json:"lent"`
	Available int `json:"available"`
}

// IdentityMapEntry: (legacy id → canonical id)
type IdentityMapEntry struct {
	LegacyID    string `json:"legacy_id"`
	CanonicalID string `json:"canonical_id"`
}
