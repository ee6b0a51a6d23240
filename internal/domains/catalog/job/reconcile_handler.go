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

// Reconciler là phần service.Reconciler mà handler cần
type Reconciler interface {
	Run(ctx context.Context) (*service.ReconcileReport, error)
}

// ReconcileHandler chạy một lượt reconcile đầy đủ (cron hoặc enqueue tay)
type ReconcileHandler struct {
	reconciler Reconciler
	snapshot   SnapshotLoader
}

func NewReconcileHandler(reconciler Reconciler, snapshot SnapshotLoader) *ReconcileHandler {
	return &ReconcileHandler{reconciler: reconciler, snapshot: snapshot}
}

// ProcessTask:
// 1. Parse payload (payload rỗng vẫn hợp lệ).
// 2. Đọc lại local cache (pending writes có thể do process khác ghi).
// 3. Chạy Reconciler. Sync lỗi (store unreachable) → trả lỗi để asynq retry.
func (h *ReconcileHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	// 1. Parse payload
	var payload shared.ReconcilePayload
	if len(task.Payload()) > 0 {
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			logger.Error("CatalogReconcile: Failed to unmarshal payload", err)
			// Payload hỏng → không retry
			return fmt.Errorf("unmarshal reconcile payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	// 2. Snapshot
	if err := h.snapshot.Load(ctx); err != nil {
		logger.Error("CatalogReconcile: failed to load local cache", err)
		return err
	}

	// 3. Reconcile
	report, err := h.reconciler.Run(ctx)
	if err != nil {
		logger.ErrorWithFields("CatalogReconcile: pass failed", err, map[string]interface{}{
			"reason": payload.Reason,
		})
		return err
	}

	logger.Info("CatalogReconcile: completed", map[string]interface{}{
		"reason":      payload.Reason,
		"duration_ms": report.Duration.Milliseconds(),
	})
	return nil
}
