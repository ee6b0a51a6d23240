package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"household-catalog/internal/domains/catalog/identity"
	"household-catalog/internal/domains/catalog/localcache"
	"household-catalog/internal/domains/catalog/model"
	"household-catalog/internal/domains/catalog/repository"
	infraCache "household-catalog/internal/infrastructure/cache"
)

// fixture nối toàn bộ engine trên MemoryStore + MemoryCache
type fixture struct {
	store      *repository.MemoryStore
	backend    *infraCache.MemoryCache
	ids        *identity.Mapper
	cache      *localcache.Store
	repo       *repository.Facade
	pending    *PendingWriteQueue
	recalc     *Recalculator
	dispatcher *InlineDispatcher
	coord      *Coordinator
	sync       *Synchronizer
	repair     *Repairer
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:   repository.NewMemoryStore(),
		backend: infraCache.NewMemoryCache(),
	}
	f.ids = identity.NewMapper(f.backend)
	f.cache = localcache.New(f.backend)
	f.repo = repository.NewFacade(f.store, f.ids)
	f.pending = NewPendingWriteQueue(f.backend, 3)
	f.recalc = NewRecalculator(f.repo, f.cache, 4, false)
	f.dispatcher = NewInlineDispatcher(f.recalc)
	f.coord = NewCoordinator(f.repo, f.cache, f.ids, f.dispatcher, f.pending, CoordinatorConfig{
		FallbackCategory: "Other",
		ReservedCategory: "Uncategorized",
	})
	f.sync = NewSynchronizer(f.repo, f.cache, f.ids)
	f.repair = NewRepairer(f.repo, f.cache, "Other", 8)
	f.reconciler = NewReconciler(f.coord, f.sync, f.repair, f.recalc)

	t.Cleanup(f.dispatcher.Wait)
	return f
}

// pull đồng bộ cache từ store
func (f *fixture) pull(t *testing.T) {
	t.Helper()
	_, err := f.sync.Sync(context.Background())
	require.NoError(t, err)
}

func (f *fixture) storeCategory(t *testing.T, name string) model.Category {
	t.Helper()
	found, err := f.store.QueryCategories(context.Background(), model.CategoryQuery{Name: name})
	require.NoError(t, err)
	require.Len(t, found, 1, "category %q", name)
	return found[0]
}

func (f *fixture) storeBook(t *testing.T, id string) model.Book {
	t.Helper()
	b, err := f.store.GetBook(context.Background(), id)
	require.NoError(t, err)
	return *b
}
