package service

import (
	"context"
	"time"

	"household-catalog/internal/domains/catalog/model"
)

// CatalogSynchronizer kéo snapshot từ store về local cache
type CatalogSynchronizer interface {
	Sync(ctx context.Context) (*SyncReport, error)
}

// DriftRepairer chuẩn hóa category reference của mọi Book trong cache
type DriftRepairer interface {
	Repair(ctx context.Context) (*RepairReport, error)
}

// AggregateRecalculator tính lại Category.Count. names rỗng = tất cả.
type AggregateRecalculator interface {
	Recalculate(ctx context.Context, names []string) (*RecalcReport, error)
}

// RecalcDispatcher quyết định recalculation chạy ở đâu (goroutine hay asynq)
type RecalcDispatcher interface {
	Dispatch(ctx context.Context, names []string) error
}

// MutationCoordinator là entry point duy nhất cho thay đổi do user tạo ra
type MutationCoordinator interface {
	Add(ctx context.Context, in model.BookInput) (*model.MutationResult, error)
	Update(ctx context.Context, id string, patch model.BookPatch) (*model.MutationResult, error)
	Delete(ctx context.Context, id string) (*model.MutationResult, error)
	Lend(ctx context.Context, id, borrower string, at time.Time) (*model.MutationResult, error)
	Return(ctx context.Context, id string, at time.Time) (*model.MutationResult, error)

	CreateCategory(ctx context.Context, in model.CategoryInput) (*model.Category, error)
	RenameCategory(ctx context.Context, id, newName string) (*CategoryChange, error)
	DeleteCategory(ctx context.Context, id string) (*CategoryChange, error)

	FlushPending(ctx context.Context) (*FlushReport, error)
}

// ========================================
// REPORTS
// ========================================

type SyncReport struct {
	Books      int           `json:"books"`
	Categories int           `json:"categories"`
	Mapped     int           `json:"mapped"`
	Duration   time.Duration `json:"duration"`
}

type RepairReport struct {
	Scanned       int `json:"scanned"`
	Repaired      int `json:"repaired"`
	Failed        int `json:"failed"`
	Reinitialized int `json:"reinitialized"`
	IDsReplaced   int `json:"ids_replaced"`
	PrimaryFixed  int `json:"primary_fixed"`
}

type RecalcReport struct {
	Checked     int      `json:"checked"`
	Updated     int      `json:"updated"`
	Unchanged   int      `json:"unchanged"`
	Replaced    int      `json:"replaced"`
	Failed      int      `json:"failed"`
	Skipped     []string `json:"skipped,omitempty"`
	ServerStats bool     `json:"server_stats"`
}

// CategoryChange là kết quả rename/delete category kèm cascade xuống book
type CategoryChange struct {
	Category     model.Category `json:"category"`
	BooksUpdated int            `json:"books_updated"`
	BooksFailed  int            `json:"books_failed"`
}

type FlushReport struct {
	Attempted  int `json:"attempted"`
	Applied    int `json:"applied"`
	Superseded int `json:"superseded"`
	Dropped    int `json:"dropped"`
	Remaining  int `json:"remaining"`
}

type ReconcileReport struct {
	Flush     *FlushReport  `json:"flush,omitempty"`
	Sync      *SyncReport   `json:"sync"`
	Repair    *RepairReport `json:"repair"`
	Recalc    *RecalcReport `json:"recalc"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}
