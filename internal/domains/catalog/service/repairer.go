package service

import (
	"context"
	"errors"
	"fmt"

	"household-catalog/internal/domains/catalog/localcache"
	"household-catalog/internal/domains/catalog/model"
	"household-catalog/internal/domains/catalog/repository"
	"household-catalog/pkg/logger"
)

var errNoCategories = errors.New("category list unavailable")

// Repairer chữa các dạng categories cũ:
//   - thiếu hoặc sai kiểu → khởi tạo lại từ primary category
//   - phần tử là category id → thay bằng tên
//   - primary category không nằm trong list → lấy phần tử đầu
type Repairer struct {
	repo        repository.RepositoryInterface
	cache       *localcache.Store
	fallback    string
	idMinLength int
}

var _ DriftRepairer = (*Repairer)(nil)

func NewRepairer(repo repository.RepositoryInterface, cache *localcache.Store, fallback string, idMinLength int) *Repairer {
	if idMinLength <= 0 {
		idMinLength = 8
	}
	return &Repairer{repo: repo, cache: cache, fallback: fallback, idMinLength: idMinLength}
}

func (r *Repairer) Repair(ctx context.Context) (*RepairReport, error) {
	categories, err := r.categories(ctx)
	if err != nil {
		return nil, err
	}

	idToName := make(map[string]string, len(categories))
	names := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		idToName[c.ID] = c.Name
		names[c.Name] = struct{}{}
	}

	report := &RepairReport{}
	for _, book := range r.cache.Books() {
		report.Scanned++

		fix, ok := r.plan(book, idToName, names, report)
		if !ok {
			continue
		}

		// Book chưa được store xác nhận: chỉ sửa trong cache
		if !model.IsTemporary(book.ID) {
			if err := r.repo.UpdateBook(ctx, book.ID, fix); err != nil {
				report.Failed++
				logger.ErrorWithFields("repair: write-back failed", err, map[string]interface{}{
					"book_id": book.ID,
				})
				continue
			}
		}

		if _, _, _, err := r.cache.UpdateBook(ctx, book.ID, fix.Apply); err != nil {
			logger.ErrorWithFields("repair: failed to persist local cache", err, map[string]interface{}{
				"book_id": book.ID,
			})
		}
		report.Repaired++
	}

	logger.Info("repair: done", map[string]interface{}{
		"scanned":       report.Scanned,
		"repaired":      report.Repaired,
		"failed":        report.Failed,
		"reinitialized": report.Reinitialized,
		"ids_replaced":  report.IDsReplaced,
	})
	return report, nil
}

// plan trả về patch cần ghi, ok = false nếu book đã đúng shape
func (r *Repairer) plan(book model.Book, idToName map[string]string, names map[string]struct{}, report *RepairReport) (model.BookPatch, bool) {
	categories := book.Categories
	primary := book.PrimaryCategory
	changed := false

	// 1. Khởi tạo lại categories bị thiếu/sai kiểu
	if book.Drift.NeedsReinit() {
		categories = []string{}
		if primary != "" {
			categories = []string{primary}
		}
		changed = true
		report.Reinitialized++
	}

	// 2. Category id → name
	replaced := false
	normalized := make([]string, 0, len(categories))
	for _, c := range categories {
		if name, isID := r.lookupID(c, idToName, names); isID {
			normalized = append(normalized, name)
			replaced = true
			report.IDsReplaced++
			continue
		}
		normalized = append(normalized, c)
	}
	if replaced {
		categories = model.UniqueNames(normalized)
		changed = true
	}

	// 3. primary phải thuộc categories
	if len(categories) > 0 && !contains(categories, primary) {
		primary = categories[0]
		changed = true
		report.PrimaryFixed++
	} else if len(categories) == 0 && primary == "" {
		// list rỗng giữ nguyên primary đang có, chỉ điền fallback khi trống
		primary = r.fallback
		changed = true
		report.PrimaryFixed++
	}

	if !changed {
		return model.BookPatch{}, false
	}
	return model.BookPatch{Categories: &categories, PrimaryCategory: &primary}, true
}

// lookupID: giá trị chỉ được coi là id khi đủ dài, có trong tập id và
// không trùng tên category nào
func (r *Repairer) lookupID(value string, idToName map[string]string, names map[string]struct{}) (string, bool) {
	if len(value) < r.idMinLength {
		return "", false
	}
	if _, isName := names[value]; isName {
		return "", false
	}
	name, ok := idToName[value]
	return name, ok
}

// categories lấy từ cache; cache rỗng thì hỏi store
func (r *Repairer) categories(ctx context.Context) ([]model.Category, error) {
	if cached := r.cache.Categories(); len(cached) > 0 {
		return cached, nil
	}
	categories, err := r.repo.ListCategories(ctx)
	if err != nil {
		logger.Error("repair: category list unavailable", err)
		return nil, fmt.Errorf("%w: %w", errNoCategories, err)
	}
	return categories, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
