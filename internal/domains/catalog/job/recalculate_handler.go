package job

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"household-catalog/internal/domains/catalog/service"
	"household-catalog/internal/shared"
	"household-catalog/pkg/logger"
)

// SnapshotLoader đọc lại local cache dùng chung (redis) trước khi tính
type SnapshotLoader interface {
	Load(ctx context.Context) error
}

// RecalculateHandler xử lý task do RecalcEnqueuer tạo ra
type RecalculateHandler struct {
	recalc   service.AggregateRecalculator
	snapshot SnapshotLoader
}

func NewRecalculateHandler(recalc service.AggregateRecalculator, snapshot SnapshotLoader) *RecalculateHandler {
	return &RecalculateHandler{recalc: recalc, snapshot: snapshot}
}

// ProcessTask: count write lỗi được log trong report, không retry cả task
// vì lượt reconcile kế tiếp sẽ tính lại toàn bộ
func (h *RecalculateHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	var payload shared.RecalculatePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Error("CatalogRecalculate: Failed to unmarshal payload", err)
		return fmt.Errorf("unmarshal recalculate payload: %v: %w", err, asynq.SkipRetry)
	}

	// process enqueue và worker khác nhau → đọc lại working copy mới nhất
	if err := h.snapshot.Load(ctx); err != nil {
		logger.Error("CatalogRecalculate: failed to load local cache", err)
		return err
	}

	report, err := h.recalc.Recalculate(ctx, payload.Names)
	if err != nil {
		logger.Error("CatalogRecalculate: failed", err)
		return err
	}

	logger.Info("CatalogRecalculate: completed", map[string]interface{}{
		"names":   payload.Names,
		"updated": report.Updated,
		"failed":  report.Failed,
		"skipped": len(report.Skipped),
	})
	return nil
}
