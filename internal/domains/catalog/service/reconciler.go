package service

import (
	"context"
	"fmt"
	"time"

	"household-catalog/pkg/logger"
)

// PendingFlusher là phần Coordinator mà Reconciler cần
type PendingFlusher interface {
	FlushPending(ctx context.Context) (*FlushReport, error)
}

// Reconciler chạy một lượt đầy đủ:
// flush pending writes → sync → repair → recalculate (full)
type Reconciler struct {
	flusher PendingFlusher
	sync    CatalogSynchronizer
	repair  DriftRepairer
	recalc  AggregateRecalculator
}

func NewReconciler(flusher PendingFlusher, sync CatalogSynchronizer, repair DriftRepairer, recalc AggregateRecalculator) *Reconciler {
	return &Reconciler{flusher: flusher, sync: sync, repair: repair, recalc: recalc}
}

func (r *Reconciler) Run(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{StartedAt: time.Now().UTC()}
	defer func() { report.Duration = time.Since(report.StartedAt) }()

	// 1. Pending writes phải tới store trước khi lấy snapshot
	if r.flusher != nil {
		flush, err := r.flusher.FlushPending(ctx)
		if err != nil {
			logger.Error("reconcile: pending flush failed", err)
		}
		report.Flush = flush
	}

	// 2. Sync lỗi → dừng, cache giữ nguyên
	syncReport, err := r.sync.Sync(ctx)
	report.Sync = syncReport
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}

	// 3. Repair
	repairReport, err := r.repair.Repair(ctx)
	report.Repair = repairReport
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}

	// 4. Full recalculation
	recalcReport, err := r.recalc.Recalculate(ctx, nil)
	report.Recalc = recalcReport
	if err != nil {
		return report, fmt.Errorf("reconcile: %w", err)
	}

	logger.Info("reconcile: pass complete", map[string]interface{}{
		"books":       syncReport.Books,
		"categories":  syncReport.Categories,
		"repaired":    repairReport.Repaired,
		"recalc_sets": recalcReport.Updated,
	})
	return report, nil
}
