package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"household-catalog/internal/domains/catalog/localcache"
	"household-catalog/internal/domains/catalog/model"
	"household-catalog/internal/domains/catalog/repository"
	"household-catalog/pkg/logger"
)

// Synchronizer thay toàn bộ local cache bằng snapshot của store.
// All-or-nothing: fetch lỗi thì cache giữ nguyên.
type Synchronizer struct {
	repo  repository.RepositoryInterface
	cache *localcache.Store
	ids   repository.IdentityResolver
}

var _ CatalogSynchronizer = (*Synchronizer)(nil)

func NewSynchronizer(repo repository.RepositoryInterface, cache *localcache.Store, ids repository.IdentityResolver) *Synchronizer {
	return &Synchronizer{repo: repo, cache: cache, ids: ids}
}

func (s *Synchronizer) Sync(ctx context.Context) (*SyncReport, error) {
	start := time.Now()

	// 1. Fetch books và categories song song, lỗi đầu tiên cancel bên còn lại
	var (
		books      []model.Book
		categories []model.Category
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		books, err = s.repo.ListBooks(gctx)
		if err != nil {
			return fmt.Errorf("fetch books: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		categories, err = s.repo.ListCategories(gctx)
		if err != nil {
			return fmt.Errorf("fetch categories: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		logger.ErrorWithFields("sync: fetch failed, local cache untouched", err, map[string]interface{}{
			"store": s.repo.StoreName(),
		})
		return nil, err
	}

	// 2. Ghi mapping cho record còn mang legacy id
	report := &SyncReport{Books: len(books), Categories: len(categories)}
	for _, b := range books {
		if b.LegacyID != "" {
			s.ids.Record(ctx, b.LegacyID, b.ID)
			report.Mapped++
		}
	}
	for _, c := range categories {
		if c.LegacyID != "" {
			s.ids.Record(ctx, c.LegacyID, c.ID)
			report.Mapped++
		}
	}

	// 3. Remote wins. Record temp (create còn nằm trong pending queue)
	// chưa có trên store nên được giữ lại.
	books, categories = s.keepUnconfirmed(books, categories)
	if err := s.cache.Replace(ctx, books, categories); err != nil {
		logger.Error("sync: failed to persist local cache", err)
		return report, err
	}

	report.Duration = time.Since(start)
	logger.Info("sync: local cache replaced", map[string]interface{}{
		"store":      s.repo.StoreName(),
		"books":      report.Books,
		"categories": report.Categories,
		"mapped":     report.Mapped,
	})
	return report, nil
}

func (s *Synchronizer) keepUnconfirmed(books []model.Book, categories []model.Category) ([]model.Book, []model.Category) {
	var localBooks []model.Book
	for _, b := range s.cache.Books() {
		if model.IsTemporary(b.ID) {
			localBooks = append(localBooks, b)
		}
	}
	if len(localBooks) > 0 {
		books = append(localBooks, books...)
	}

	known := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		known[c.Name] = struct{}{}
	}
	for _, c := range s.cache.Categories() {
		if _, exists := known[c.Name]; model.IsTemporary(c.ID) && !exists {
			categories = append(categories, c)
		}
	}
	return books, categories
}
