package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"household-catalog/internal/shared"
	"household-catalog/pkg/logger"
)

// TaskEnqueuer là phần asynq.Client mà RecalcEnqueuer dùng
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// RecalcEnqueuer dispatch recalculation thành asynq task (SYNC_DISPATCH=queue)
// để worker xử lý thay vì process của user.
type RecalcEnqueuer struct {
	client   TaskEnqueuer
	maxRetry int
}

func NewRecalcEnqueuer(client TaskEnqueuer, maxRetry int) *RecalcEnqueuer {
	return &RecalcEnqueuer{client: client, maxRetry: maxRetry}
}

func (e *RecalcEnqueuer) Dispatch(ctx context.Context, names []string) error {
	payload, err := json.Marshal(shared.RecalculatePayload{Names: names})
	if err != nil {
		return fmt.Errorf("marshal recalculate payload: %w", err)
	}

	task := asynq.NewTask(shared.TypeCatalogRecalculate, payload)
	info, err := e.client.EnqueueContext(
		context.WithoutCancel(ctx),
		task,
		asynq.Queue(shared.QueueCatalog),
		asynq.MaxRetry(e.maxRetry),
		asynq.Timeout(2*time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue recalculate: %w", err)
	}

	logger.Info("recalculation enqueued", map[string]interface{}{
		"task_id": info.ID,
		"names":   names,
	})
	return nil
}

// EnqueueReconcile dùng cho CLI/API khi muốn chạy reconcile trên worker
func EnqueueReconcile(ctx context.Context, client TaskEnqueuer, reason string) (string, error) {
	payload, err := json.Marshal(shared.ReconcilePayload{Reason: reason})
	if err != nil {
		return "", fmt.Errorf("marshal reconcile payload: %w", err)
	}
	info, err := client.EnqueueContext(ctx, asynq.NewTask(shared.TypeCatalogReconcile, payload),
		asynq.Queue(shared.QueueCatalog),
		asynq.MaxRetry(1),
	)
	if err != nil {
		return "", fmt.Errorf("enqueue reconcile: %w", err)
	}
	return info.ID, nil
}
