package service

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"household-catalog/internal/domains/catalog/localcache"
	"household-catalog/internal/domains/catalog/model"
	"household-catalog/internal/domains/catalog/repository"
	"household-catalog/pkg/logger"
)

// Recalculator giữ Category.Count = số Book tham chiếu tới tên đó.
// Chỉ ghi khi giá trị khác; mỗi category độc lập, lỗi của một category
// không chặn các category khác.
type Recalculator struct {
	repo           repository.RepositoryInterface
	cache          *localcache.Store
	concurrency    int
	useServerStats bool

	// compute + write của cùng một tên được serialize
	locks sync.Map // name → *sync.Mutex
}

var _ AggregateRecalculator = (*Recalculator)(nil)

func NewRecalculator(repo repository.RepositoryInterface, cache *localcache.Store, concurrency int, useServerStats bool) *Recalculator {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Recalculator{
		repo:           repo,
		cache:          cache,
		concurrency:    concurrency,
		useServerStats: useServerStats,
	}
}

func (r *Recalculator) Recalculate(ctx context.Context, names []string) (*RecalcReport, error) {
	report := &RecalcReport{}
	targets := r.targets(names, report)

	// Full pass có thể dùng statistics của server thay cho linear scan
	var serverCounts map[string]int
	if len(names) == 0 && r.useServerStats {
		counts, ok, err := r.repo.CategoryCounts(ctx)
		switch {
		case err != nil:
			logger.Error("recalc: server statistics unavailable, counting locally", err)
		case ok:
			serverCounts = counts
			report.ServerStats = true
		}
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(r.concurrency)

	for _, target := range targets {
		target := target
		report.Checked++
		g.Go(func() error {
			outcome := r.recalculateOne(ctx, target, serverCounts)
			mu.Lock()
			defer mu.Unlock()
			switch outcome {
			case outcomeUnchanged:
				report.Unchanged++
			case outcomeUpdated:
				report.Updated++
			case outcomeReplaced:
				report.Updated++
				report.Replaced++
			case outcomeFailed:
				report.Failed++
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info("recalc: done", map[string]interface{}{
		"checked":   report.Checked,
		"updated":   report.Updated,
		"unchanged": report.Unchanged,
		"failed":    report.Failed,
		"skipped":   len(report.Skipped),
	})
	return report, nil
}

type recalcOutcome int

const (
	outcomeUnchanged recalcOutcome = iota
	outcomeUpdated
	outcomeReplaced
	outcomeFailed
)

func (r *Recalculator) recalculateOne(ctx context.Context, target model.Category, serverCounts map[string]int) recalcOutcome {
	lock := r.lockFor(target.Name)
	lock.Lock()
	defer lock.Unlock()

	// đọc lại bản mới nhất trong cache khi đã giữ lock
	current, ok := r.cache.Category(target.ID)
	if !ok {
		return outcomeUnchanged
	}

	want, fromServer := serverCounts[current.Name]
	if !fromServer {
		want = r.cache.CountBooks(current.Name)
	}
	if want == current.Count {
		return outcomeUnchanged
	}

	fields := map[string]interface{}{
		"category_id": current.ID,
		"name":        current.Name,
		"from":        current.Count,
		"to":          want,
	}

	outcome := outcomeUpdated
	if !model.IsTemporary(current.ID) {
		err := r.repo.UpdateCategory(ctx, current.ID, model.CategoryPatch{Count: &want})
		if err != nil && !model.IsNotFound(err) {
			// fallback: ghi nguyên record một lần
			logger.Warn("recalc: count update failed, replacing whole record", fields)
			replacement := current
			replacement.Count = want
			if rerr := r.repo.ReplaceCategory(ctx, &replacement); rerr == nil {
				err = nil
				outcome = outcomeReplaced
			} else {
				err = rerr
			}
		}
		if err != nil {
			logger.ErrorWithFields("recalc: count write failed", err, fields)
			return outcomeFailed
		}
	}

	if err := r.cache.SetCategoryCount(ctx, current.ID, want); err != nil {
		logger.ErrorWithFields("recalc: failed to persist local cache", err, fields)
	}
	logger.Debug("recalc: count updated for " + current.Name)
	return outcome
}

// targets: names rỗng → mọi category trong cache; tên không có record → Skipped
func (r *Recalculator) targets(names []string, report *RecalcReport) []model.Category {
	if len(names) == 0 {
		return r.cache.Categories()
	}
	out := make([]model.Category, 0, len(names))
	for _, name := range model.UniqueNames(names) {
		c, ok := r.cache.CategoryByName(name)
		if !ok {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		out = append(out, c)
	}
	return out
}

func (r *Recalculator) lockFor(name string) *sync.Mutex {
	v, _ := r.locks.LoadOrStore(name, &sync.Mutex{})
	return v.(*sync.Mutex)
}
